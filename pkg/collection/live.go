package collection

import (
	"sync"

	"github.com/aretw0/brewing/pkg/core"
)

// Live is a view bound to a Store. It is recomputed synchronously on every
// store notification and never regresses to a result computed from an older
// store version.
type Live struct {
	store  *Store
	view   View
	cancel func()

	mu        sync.RWMutex
	data      []core.Specification
	version   uint64
	loading   bool
	err       error
	listeners []func([]core.Specification)
	closed    bool

	changes chan struct{}
}

// Live binds view to the store and computes its first result.
func (s *Store) Live(view View) *Live {
	l := &Live{
		store:   s,
		view:    view,
		changes: make(chan struct{}, 1),
	}
	// Subscribing first means no change between the initial computation and
	// the registration can be missed.
	l.cancel = s.Subscribe(func(core.Event) { l.refresh() })
	l.refresh()
	return l
}

func (l *Live) refresh() {
	specs, version, loaded, loadErr := l.store.read()

	l.mu.Lock()
	if l.closed || (version < l.version && l.data != nil) {
		l.mu.Unlock()
		return
	}
	l.data = Compute(specs, l.view)
	l.version = version
	l.loading = !loaded
	l.err = loadErr
	data := l.cloneLocked()
	fns := append([]func([]core.Specification){}, l.listeners...)
	l.mu.Unlock()

	select {
	case l.changes <- struct{}{}:
	default:
	}
	for _, fn := range fns {
		fn(data)
	}
}

// Data returns a copy of the last computed result.
func (l *Live) Data() []core.Specification {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cloneLocked()
}

// Loading is true until the store's first successful load.
func (l *Live) Loading() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.loading
}

// Err returns the error of the store's most recent load, or nil.
func (l *Live) Err() error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.err
}

// Version is the store version the current result was computed from.
func (l *Live) Version() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.version
}

// Changes signals that a new result is available. Signals coalesce: a
// reader that falls behind sees one pending signal.
func (l *Live) Changes() <-chan struct{} {
	return l.changes
}

// OnChange registers fn to receive every recomputed result.
func (l *Live) OnChange(fn func([]core.Specification)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.listeners = append(l.listeners, fn)
}

// Close detaches the view from the store. The last result stays readable.
func (l *Live) Close() {
	l.cancel()
	l.mu.Lock()
	l.closed = true
	l.listeners = nil
	l.mu.Unlock()
}

func (l *Live) cloneLocked() []core.Specification {
	out := make([]core.Specification, len(l.data))
	for i, spec := range l.data {
		out[i] = spec.Clone()
	}
	return out
}
