// SPDX-License-Identifier: Apache-2.0

package domain

import (
	"strings"
	"unicode/utf8"
)

// Canonical layout of Result.ObservedAt.
const ObservedAtLayout = "2006-01-02 15:04:05"

// MaxRawPayloadBytes bounds the audit snapshot kept with a result.
const MaxRawPayloadBytes = 256 << 10

const descNotConfigured = "not configured"

// Result is the normalized outcome of one fetch attempt against one source.
// Empty optional fields mean "absent" and are persisted as NULL.
type Result struct {
	SourceID   string `json:"source_id"`
	SourceName string `json:"source_name"`
	ObservedAt string `json:"observed_at,omitempty"`
	// ObservedAtUTC is ObservedAt converted to UTC; it orders observations
	// whose sources report different offsets.
	ObservedAtUTC string `json:"observed_at_utc,omitempty"`
	RawTimestamp  string `json:"raw_timestamp,omitempty"`
	Description   string `json:"description,omitempty"`
	EventKind     string `json:"event_kind,omitempty"`
	ActivityURL   string `json:"activity_url,omitempty"`
	SourceURL     string `json:"source_url,omitempty"`
	RawPayload    string `json:"raw_payload,omitempty"`
	IsError       bool   `json:"is_error"`
}

// BaseResult starts a result for a source. Callers fill in the activity fields.
func BaseResult(sourceID, sourceName, sourceURL, rawPayload string) Result {
	return Result{
		SourceID:   sourceID,
		SourceName: sourceName,
		SourceURL:  sourceURL,
		RawPayload: SanitizePayload(rawPayload),
	}
}

// ErrorResult builds a failed result; the message becomes the description.
func ErrorResult(sourceID, sourceName, sourceURL, message string) Result {
	return BaseResult(sourceID, sourceName, sourceURL, "").WithError(message)
}

// NotConfigured is the result of a source whose configuration is incomplete.
func NotConfigured(sourceID, sourceName, sourceURL string) Result {
	return ErrorResult(sourceID, sourceName, sourceURL, descNotConfigured)
}

// WithError marks r as failed. The event kind is cleared; the raw payload is kept
// so the failing response stays inspectable.
func (r Result) WithError(message string) Result {
	message = strings.TrimSpace(message)
	if message == "" {
		message = "unknown error"
	}
	r.IsError = true
	r.EventKind = ""
	r.Description = message
	return r
}

// HasActivity reports whether the result carries a dated observation.
func (r Result) HasActivity() bool {
	return !r.IsError && r.ObservedAt != ""
}

// CleanText makes s storable in a TEXT column: invalid UTF-8 sequences become
// U+FFFD and NUL bytes are dropped.
func CleanText(s string) string {
	if utf8.ValidString(s) && strings.IndexByte(s, 0) < 0 {
		return s
	}
	return strings.ReplaceAll(strings.ToValidUTF8(s, "\uFFFD"), "\x00", "")
}

// SanitizePayload cleans a raw snapshot and caps it at MaxRawPayloadBytes.
func SanitizePayload(s string) string {
	return TruncatePayload(CleanText(s))
}

// Sanitized returns r with every text field cleaned for storage.
func (r Result) Sanitized() Result {
	r.SourceName = CleanText(r.SourceName)
	r.ObservedAt = CleanText(r.ObservedAt)
	r.ObservedAtUTC = CleanText(r.ObservedAtUTC)
	r.RawTimestamp = CleanText(r.RawTimestamp)
	r.Description = CleanText(r.Description)
	r.EventKind = CleanText(r.EventKind)
	r.ActivityURL = CleanText(r.ActivityURL)
	r.SourceURL = CleanText(r.SourceURL)
	r.RawPayload = SanitizePayload(r.RawPayload)
	return r
}

// TruncatePayload cuts s to MaxRawPayloadBytes without splitting a UTF-8 sequence.
func TruncatePayload(s string) string {
	if len(s) <= MaxRawPayloadBytes {
		return s
	}
	cut := MaxRawPayloadBytes
	for cut > 0 && !isRuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
