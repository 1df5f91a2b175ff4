// SPDX-License-Identifier: Apache-2.0

package source

import (
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/adiadia/lastseen/internal/config"
	"github.com/adiadia/lastseen/internal/domain"
)

var colonOffsetRe = regexp.MustCompile(`([+-]\d{2}):(\d{2})$`)

// CompactOffset rewrites a trailing "+03:00" style offset as "+0300".
// Anything else is returned unchanged.
func CompactOffset(ts string) string {
	return colonOffsetRe.ReplaceAllString(strings.TrimSpace(ts), "$1$2")
}

// NormalizeTimestamp parses raw with the input layout and renders it with the
// output layout (the canonical layout when none is set).
func NormalizeTimestamp(raw string, f config.DateFormat) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("%w: empty timestamp", domain.ErrParse)
	}
	if f.Input == "" {
		return "", errors.New("no input layout")
	}
	out := f.Output
	if out == "" {
		out = domain.ObservedAtLayout
	}

	t, err := time.Parse(f.Input, raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrParse, err)
	}
	if f.UTC {
		t = t.UTC()
	}
	return t.Format(out), nil
}

// FormatDate returns the raw timestamp together with its normalized form. A
// timestamp that does not parse yields an empty normalized value and a warning;
// the activity is still reported, only without a displayable time.
func FormatDate(raw string, f config.DateFormat, logger *slog.Logger) (string, string) {
	normalized, err := NormalizeTimestamp(raw, f)
	if err != nil {
		if logger == nil {
			logger = slog.Default()
		}
		logger.Warn("timestamp not parsed", "raw", raw, "layout", f.Input, "error", err)
		return raw, ""
	}
	return raw, normalized
}

// UTCTimestamp renders raw in the canonical layout after converting it to
// UTC, whatever f.UTC says. It is the ordering key stored next to the display
// value; an unparseable timestamp yields "".
func UTCTimestamp(raw string, f config.DateFormat) string {
	t, err := time.Parse(f.Input, strings.TrimSpace(raw))
	if err != nil || f.Input == "" {
		return ""
	}
	return t.UTC().Format(domain.ObservedAtLayout)
}
