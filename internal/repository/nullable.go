// SPDX-License-Identifier: Apache-2.0

package repository

import (
	"fmt"

	"github.com/adiadia/lastseen/internal/domain"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 200
)

// ClampHistoryLimit maps a requested page size onto [1, 200], defaulting to 20.
func ClampHistoryLimit(limit int) int {
	if limit <= 0 {
		return defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		return maxHistoryLimit
	}
	return limit
}

// nullable stores empty optional fields as NULL.
func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// orderingKey is the value latest-per-source sorts on. Results built without
// a UTC key are taken to be in UTC already.
func orderingKey(r domain.Result) string {
	if r.ObservedAt == "" {
		return ""
	}
	if r.ObservedAtUTC != "" {
		return r.ObservedAtUTC
	}
	return r.ObservedAt
}

// writable rejects results that cannot be stored at all.
func writable(r domain.Result) error {
	if r.SourceID == "" {
		return fmt.Errorf("%w: result without source id", domain.ErrStorageWrite)
	}
	return nil
}
