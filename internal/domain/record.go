// SPDX-License-Identifier: Apache-2.0

package domain

import (
	"encoding/json"
	"time"
)

// StoredRecord is one persisted fetch result. Rows are append-only.
type StoredRecord struct {
	ID         int64     `json:"id"`
	Result
	InsertedAt time.Time `json:"inserted_at"`
}

// LatestRecord is the read-API projection of the latest non-error row of a source.
// It always encodes all seven keys; absent values are null.
type LatestRecord struct {
	SourceID    string `json:"source_id"`
	SourceName  string `json:"source_name"`
	ObservedAt  string `json:"observed_at"`
	Description string `json:"description"`
	EventKind   string `json:"event_kind"`
	ActivityURL string `json:"activity_url"`
	SourceURL   string `json:"source_url"`
}

func (l LatestRecord) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		SourceID    string  `json:"source_id"`
		SourceName  string  `json:"source_name"`
		ObservedAt  *string `json:"observed_at"`
		Description *string `json:"description"`
		EventKind   *string `json:"event_kind"`
		ActivityURL *string `json:"activity_url"`
		SourceURL   *string `json:"source_url"`
	}{
		SourceID:    l.SourceID,
		SourceName:  l.SourceName,
		ObservedAt:  orNull(l.ObservedAt),
		Description: orNull(l.Description),
		EventKind:   orNull(l.EventKind),
		ActivityURL: orNull(l.ActivityURL),
		SourceURL:   orNull(l.SourceURL),
	})
}

func orNull(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// SchemaVersion is the schema revision this build reads and writes.
const SchemaVersion = 1
