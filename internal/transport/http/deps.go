// SPDX-License-Identifier: Apache-2.0

package httptransport

import (
	"context"

	"github.com/adiadia/lastseen/internal/domain"
	"github.com/adiadia/lastseen/internal/source"
)

type RecordReader interface {
	HealthCheck(ctx context.Context) bool
	LatestPerSource(ctx context.Context) ([]domain.LatestRecord, error)
	History(ctx context.Context, sourceID string, limit int) ([]domain.StoredRecord, error)
}

type SourceLister interface {
	Statuses() []source.Status
}
