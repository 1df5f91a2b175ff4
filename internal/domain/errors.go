// SPDX-License-Identifier: Apache-2.0

package domain

import (
	"context"
	"errors"
)

var ErrConfigIncomplete = errors.New("config incomplete")
var ErrTransport = errors.New("transport failure")
var ErrParse = errors.New("parse failure")
var ErrStorageUnavailable = errors.New("storage unavailable")
var ErrStorageWrite = errors.New("storage write failure")
var ErrSchemaMismatch = errors.New("schema version mismatch")

// Error kinds used as log attributes and metric labels.
const (
	KindOK                 = "ok"
	KindEmpty              = "empty"
	KindConfigIncomplete   = "config_incomplete"
	KindTransport          = "transport"
	KindParse              = "parse"
	KindPanic              = "panic"
	KindStorageUnavailable = "storage_unavailable"
	KindStorageWrite       = "storage_write"
	KindUnknown            = "unknown"
)

// ErrorKind maps err onto the error taxonomy. Deadline and cancellation errors
// count as transport failures.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return KindOK
	case errors.Is(err, ErrConfigIncomplete):
		return KindConfigIncomplete
	case errors.Is(err, ErrTransport),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return KindTransport
	case errors.Is(err, ErrParse):
		return KindParse
	case errors.Is(err, ErrStorageUnavailable), errors.Is(err, ErrSchemaMismatch):
		return KindStorageUnavailable
	case errors.Is(err, ErrStorageWrite):
		return KindStorageWrite
	default:
		return KindUnknown
	}
}
