package core

import (
	"context"
	"errors"
	"net"
)

// Common errors.
var (
	ErrNotFound         = errors.New("specification not found")
	ErrValidationFailed = errors.New("validation failed")
	ErrConflict         = errors.New("conflicting concurrent change")
	ErrNetwork          = errors.New("network failure")
	// ErrStale marks a confirmation or rollback that no longer matches the
	// latest optimistic state. It is never surfaced as a rollback.
	ErrStale    = errors.New("stale transaction result")
	ErrReadOnly = errors.New("collection is in read-only mode")
)

// Kind classifies an error for the presentation layer.
type Kind string

const (
	KindNone       Kind = ""
	KindNotFound   Kind = "not_found"
	KindValidation Kind = "validation_failed"
	KindConflict   Kind = "conflict"
	KindNetwork    Kind = "network"
	KindStale      Kind = "stale"
	KindUnknown    Kind = "unknown"
)

// KindOf classifies err. Transport level errors (net.Error, context
// deadline) are reported as KindNetwork.
func KindOf(err error) Kind {
	var netErr net.Error
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrStale):
		return KindStale
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrValidationFailed):
		return KindValidation
	case errors.Is(err, ErrConflict):
		return KindConflict
	case errors.Is(err, ErrNetwork),
		errors.Is(err, context.DeadlineExceeded),
		errors.As(err, &netErr):
		return KindNetwork
	default:
		return KindUnknown
	}
}

// Recoverable reports whether the user may retry the intent that produced err.
func Recoverable(err error) bool {
	switch KindOf(err) {
	case KindValidation, KindConflict, KindNetwork, KindUnknown:
		return true
	default:
		return false
	}
}
