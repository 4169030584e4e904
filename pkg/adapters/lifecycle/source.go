// Package lifecycle bridges collection change events into a lifecycle
// control plane.
package lifecycle

import (
	"context"

	"github.com/aretw0/lifecycle"

	"github.com/aretw0/brewing/pkg/core"
)

type eventSource struct {
	events <-chan core.Event
	filter func(core.Event) bool
	out    chan lifecycle.Event
}

// SourceOption configures a Source.
type SourceOption func(*eventSource)

// WithFilter forwards only the events for which keep returns true.
func WithFilter(keep func(core.Event) bool) SourceOption {
	return func(s *eventSource) {
		s.filter = keep
	}
}

// NewSource creates a lifecycle.Source fed by a store or adapter event
// channel, such as the one returned by collection.Store.Watch.
func NewSource(events <-chan core.Event, opts ...SourceOption) lifecycle.Source {
	s := &eventSource{
		events: events,
		out:    make(chan lifecycle.Event),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *eventSource) Events() <-chan lifecycle.Event {
	return s.out
}

// Start forwards events until ctx is done or the input closes. core.Event
// satisfies lifecycle.Event through its String method.
func (s *eventSource) Start(ctx context.Context) error {
	lifecycle.Go(ctx, func(ctx context.Context) error {
		defer close(s.out)
		for {
			select {
			case <-ctx.Done():
				return nil
			case e, ok := <-s.events:
				if !ok {
					return nil
				}
				if s.filter != nil && !s.filter(e) {
					continue
				}
				select {
				case s.out <- e:
				case <-ctx.Done():
					return nil
				}
			}
		}
	})
	return nil
}
