package fs

import (
	"context"
	"sync"
	"time"

	"github.com/aretw0/lifecycle"

	"github.com/aretw0/brewing/pkg/core"
)

// debouncer collapses bursts of filesystem events for the same id (an
// atomic rename produces several) into one delivery.
type debouncer struct {
	delay time.Duration

	mu      sync.Mutex
	timers  map[string]*time.Timer
	stopped bool
	wg      sync.WaitGroup
}

func newDebouncer(delay time.Duration) *debouncer {
	return &debouncer{
		delay:  delay,
		timers: make(map[string]*time.Timer),
	}
}

// add schedules deliver(e) after the quiet period, replacing any pending
// delivery for e.ID.
func (d *debouncer) add(e core.Event, deliver func(core.Event)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}

	if t, ok := d.timers[e.ID]; ok && t.Stop() {
		d.wg.Done()
	}
	d.wg.Add(1)
	var t *time.Timer
	t = time.AfterFunc(d.delay, func() {
		defer d.wg.Done()
		d.mu.Lock()
		if d.timers[e.ID] == t {
			delete(d.timers, e.ID)
		}
		d.mu.Unlock()
		deliver(e)
	})
	d.timers[e.ID] = t
}

// stopAndWait drops pending deliveries and waits for running ones.
func (d *debouncer) stopAndWait(timeout time.Duration) bool {
	d.mu.Lock()
	d.stopped = true
	for id, t := range d.timers {
		if t.Stop() {
			d.wg.Done()
		}
		delete(d.timers, id)
	}
	d.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	done := make(chan struct{})
	lifecycle.Go(ctx, func(context.Context) error {
		d.wg.Wait()
		close(done)
		return nil
	})
	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}
