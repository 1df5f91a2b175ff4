// SPDX-License-Identifier: Apache-2.0

package source

import "strings"

// maxFieldLen bounds a value extracted between two markers.
const maxFieldLen = 2048

// lastBetween returns the text between the rightmost occurrence of start and the
// next occurrence of end. Pages that list entries oldest-first keep the newest
// one at the rightmost marker.
func lastBetween(s, start, end string) (string, bool) {
	idx := strings.LastIndex(s, start)
	if idx < 0 {
		return "", false
	}
	return cut(s[idx+len(start):], end)
}

// firstBetween is lastBetween for pages that list newest-first.
func firstBetween(s, start, end string) (string, bool) {
	idx := strings.Index(s, start)
	if idx < 0 {
		return "", false
	}
	return cut(s[idx+len(start):], end)
}

func cut(rest, end string) (string, bool) {
	window := rest
	if len(window) > maxFieldLen+len(end) {
		window = window[:maxFieldLen+len(end)]
	}
	stop := strings.Index(window, end)
	if stop < 0 {
		return "", false
	}
	return strings.TrimSpace(window[:stop]), true
}

// collapseSpace folds every whitespace run into a single space.
func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
