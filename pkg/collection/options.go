package collection

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// DefaultEventBuffer is the capacity of channels returned by Store.Watch.
const DefaultEventBuffer = 100

// options holds the internal configuration of a Store.
type options struct {
	logger       *slog.Logger
	errorHandler func(*Transaction, error)
	eventBuffer  int
	readOnly     bool
	now          func() time.Time
	newID        func() string
}

// Option defines a functional option for configuring a Store.
type Option func(*options)

func defaultOptions() *options {
	return &options{
		logger:      nil,
		eventBuffer: DefaultEventBuffer,
		now:         time.Now,
		newID:       uuid.NewString,
	}
}

// WithLogger sets the logger for the store.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithErrorHandler registers a callback invoked after a failed transaction
// was rolled back. Stale results never reach it.
func WithErrorHandler(fn func(*Transaction, error)) Option {
	return func(o *options) {
		o.errorHandler = fn
	}
}

// WithEventBuffer sets the buffer of channels returned by Watch.
// Zero or negative means DefaultEventBuffer.
func WithEventBuffer(size int) Option {
	return func(o *options) {
		if size > 0 {
			o.eventBuffer = size
		}
	}
}

// WithReadOnly rejects every mutation with core.ErrReadOnly. Load keeps working.
func WithReadOnly(enabled bool) Option {
	return func(o *options) {
		o.readOnly = enabled
	}
}

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithIDGenerator overrides the generator of provisional entity ids and
// transaction ids.
func WithIDGenerator(fn func() string) Option {
	return func(o *options) {
		if fn != nil {
			o.newID = fn
		}
	}
}
