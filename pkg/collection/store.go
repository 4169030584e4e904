package collection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/aretw0/lifecycle"

	"github.com/aretw0/brewing/pkg/core"
)

// entry is the per-entity bookkeeping of the mutation pipeline.
type entry struct {
	seq      uint64 // latest issued transaction
	pending  int    // transactions not yet resolved
	settled  uint64 // settle counter at the last resolution
	deleting bool
	lane     *lane
}

// lane serializes the collaborator calls of one entity in issue order.
type lane struct {
	queue   []*Transaction
	running bool
}

// Store is the single source of truth for the in-memory state of a
// specification collection. Mutations apply optimistically and are
// persisted asynchronously through the collaborator.
type Store struct {
	persistence core.Persistence
	logger      *slog.Logger
	opts        *options
	ctx         context.Context

	mu          sync.RWMutex
	entities    map[string]core.Specification
	order       []string // first observation order
	meta        map[string]*entry
	aliases     map[string]string // provisional id -> server id
	tombstones  map[string]uint64 // confirmed deletes -> settle counter
	version     uint64
	settleSeq   uint64
	inflight    int
	idle        chan struct{}
	loaded      bool
	loadErr     error
	loadSeq     uint64
	loadApplied uint64

	lmu          sync.RWMutex
	listeners    map[uint64]func(core.Event)
	nextListener uint64
}

// New creates a Store backed by the given collaborator.
func New(p core.Persistence, opts ...Option) *Store {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		persistence: p,
		logger:      logger.With("component", "collection"),
		opts:        o,
		ctx:         context.Background(),
		entities:    make(map[string]core.Specification),
		meta:        make(map[string]*entry),
		aliases:     make(map[string]string),
		tombstones:  make(map[string]uint64),
		listeners:   make(map[uint64]func(core.Event)),
	}
}

// Insert completes partial with defaults, applies it to the snapshot and
// persists it asynchronously. An empty ID gets a provisional uuid the
// collaborator may replace; an empty Name becomes core.DefaultName.
func (s *Store) Insert(partial core.Specification) (*Transaction, error) {
	if s.opts.readOnly {
		return nil, core.ErrReadOnly
	}

	spec := partial.Clone()
	now := s.opts.now()
	if spec.ID == "" {
		spec.ID = s.opts.newID()
	}
	if spec.Name == "" {
		spec.Name = core.DefaultName
	}
	if spec.DateCreated.IsZero() {
		spec.DateCreated = now
	}
	if spec.DateUpdated.IsZero() {
		spec.DateUpdated = spec.DateCreated
	}
	if err := core.Validate(spec); err != nil {
		return nil, err
	}

	tx, ev, err := func() (*Transaction, core.Event, error) {
		s.mu.Lock()
		defer s.mu.Unlock()

		key := s.resolveLocked(spec.ID)
		if _, exists := s.entities[key]; exists {
			return nil, core.Event{}, fmt.Errorf("%w: specification %s already exists", core.ErrConflict, spec.ID)
		}
		delete(s.tombstones, spec.ID)
		s.insertAtLocked(spec.ID, spec, -1)

		modified := spec.Clone()
		tx := s.beginLocked(KindInsert, spec.ID, nil, &modified)
		s.meta[spec.ID].deleting = false
		return tx, s.eventLocked(core.EventInsert, spec.ID, nil), nil
	}()
	if err != nil {
		return nil, err
	}

	s.logger.Debug("insert applied", "id", spec.ID, "tx", tx.ID)
	s.emit(ev)
	return tx, nil
}

// Update applies mutate to a copy of the entity and commits the copy to the
// snapshot immediately. mutate runs under the store lock and must not call
// back into the Store. ID and DateCreated cannot be changed by mutate.
func (s *Store) Update(id string, mutate func(*core.Specification)) (*Transaction, error) {
	if s.opts.readOnly {
		return nil, core.ErrReadOnly
	}

	tx, ev, err := func() (*Transaction, core.Event, error) {
		s.mu.Lock()
		defer s.mu.Unlock()

		key := s.resolveLocked(id)
		cur, ok := s.entities[key]
		if !ok {
			return nil, core.Event{}, fmt.Errorf("update %s: %w", id, core.ErrNotFound)
		}

		draft := cur.Clone()
		if mutate != nil {
			mutate(&draft)
		}
		draft.ID = key
		draft.DateCreated = cur.DateCreated
		draft.DateUpdated = s.opts.now()
		if err := core.Validate(draft); err != nil {
			return nil, core.Event{}, err
		}

		s.entities[key] = draft
		original := cur.Clone()
		modified := draft.Clone()
		tx := s.beginLocked(KindUpdate, key, &original, &modified)
		return tx, s.eventLocked(core.EventUpdate, key, nil), nil
	}()
	if err != nil {
		return nil, err
	}

	s.logger.Debug("update applied", "id", tx.EntityID, "tx", tx.ID, "changes", tx.Changes())
	s.emit(ev)
	return tx, nil
}

// Publish copies the draft content into the published content.
func (s *Store) Publish(id string) (*Transaction, error) {
	now := s.opts.now()
	return s.Update(id, func(d *core.Specification) {
		d.Content = core.String(core.StringValue(d.DraftContent))
		d.DatePublished = &now
	})
}

// Delete removes the entity from the snapshot immediately and persists the
// removal asynchronously. Deleting an entity that is already gone (or whose
// delete is in flight) returns a committed no-op transaction.
func (s *Store) Delete(id string) (*Transaction, error) {
	if s.opts.readOnly {
		return nil, core.ErrReadOnly
	}

	tx, ev, err := func() (*Transaction, *core.Event, error) {
		s.mu.Lock()
		defer s.mu.Unlock()

		key := s.resolveLocked(id)
		cur, ok := s.entities[key]
		if !ok {
			_, tombstoned := s.tombstones[key]
			e := s.meta[key]
			if tombstoned || (e != nil && e.deleting) {
				return settled(s.opts.newID(), KindDelete, key, s.opts.now()), nil, nil
			}
			return nil, nil, fmt.Errorf("delete %s: %w", id, core.ErrNotFound)
		}

		pos := s.removeLocked(key)
		original := cur.Clone()
		tx := s.beginLocked(KindDelete, key, &original, nil)
		tx.position = pos
		s.meta[key].deleting = true
		ev := s.eventLocked(core.EventDelete, key, nil)
		return tx, &ev, nil
	}()
	if err != nil {
		return nil, err
	}

	if ev != nil {
		s.logger.Debug("delete applied", "id", tx.EntityID, "tx", tx.ID)
		s.emit(*ev)
	}
	return tx, nil
}

// Get returns a copy of the entity. Provisional ids resolve to the
// server-assigned id once the insert is confirmed.
func (s *Store) Get(id string) (core.Specification, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	spec, ok := s.entities[s.resolveLocked(id)]
	if !ok {
		return core.Specification{}, false
	}
	return spec.Clone(), true
}

// Resolve maps a provisional id to the id currently used by the snapshot.
func (s *Store) Resolve(id string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.resolveLocked(id)
}

// MatchID returns a predicate matching the entity known under id, following
// the id reconciliation of confirmed inserts.
func (s *Store) MatchID(id string) func(core.Specification) bool {
	return func(spec core.Specification) bool {
		return spec.ID == s.Resolve(id)
	}
}

// Snapshot returns a copy of every entity in first observation order.
func (s *Store) Snapshot() []core.Specification {
	specs, _, _, _ := s.read()
	for i := range specs {
		specs[i] = specs[i].Clone()
	}
	return specs
}

// Len returns the number of entities in the snapshot.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entities)
}

// Version is incremented on every change notification.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Pending returns the number of unresolved transactions for id.
func (s *Store) Pending(id string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if e := s.meta[s.resolveLocked(id)]; e != nil {
		return e.pending
	}
	return 0
}

// Loading reports whether no load has completed successfully yet.
func (s *Store) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return !s.loaded
}

// LoadError returns the error of the most recent load, or nil.
func (s *Store) LoadError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loadErr
}

// Wait blocks until no transaction is in flight.
func (s *Store) Wait(ctx context.Context) error {
	s.mu.Lock()
	if s.inflight == 0 {
		s.mu.Unlock()
		return nil
	}
	if s.idle == nil {
		s.idle = make(chan struct{})
	}
	idle := s.idle
	s.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe registers fn for every change notification. fn runs on the
// goroutine that caused the change, outside the store lock. The returned
// function unregisters it.
func (s *Store) Subscribe(fn func(core.Event)) (cancel func()) {
	s.lmu.Lock()
	id := s.nextListener
	s.nextListener++
	s.listeners[id] = fn
	s.lmu.Unlock()

	return sync.OnceFunc(func() {
		s.lmu.Lock()
		delete(s.listeners, id)
		s.lmu.Unlock()
	})
}

// Watch returns a buffered stream of change notifications, closed when ctx
// is done. Events are dropped (and logged) when the consumer falls behind
// by more than the configured buffer.
func (s *Store) Watch(ctx context.Context) <-chan core.Event {
	ch := make(chan core.Event, s.opts.eventBuffer)
	var mu sync.Mutex
	closed := false

	cancel := s.Subscribe(func(e core.Event) {
		mu.Lock()
		defer mu.Unlock()
		if closed {
			return
		}
		select {
		case ch <- e:
		default:
			s.logger.Warn("event dropped, consumer too slow", "event", e.String())
		}
	})

	lifecycle.Go(ctx, func(ctx context.Context) error {
		<-ctx.Done()
		cancel()
		mu.Lock()
		closed = true
		close(ch)
		mu.Unlock()
		return nil
	})
	return ch
}

func (s *Store) emit(e core.Event) {
	s.lmu.RLock()
	fns := make([]func(core.Event), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.lmu.RUnlock()

	for _, fn := range fns {
		fn(e)
	}
}

// eventLocked bumps the version and builds the matching notification.
func (s *Store) eventLocked(t core.EventType, id string, err error) core.Event {
	s.version++
	return core.Event{
		Type:      t,
		ID:        id,
		Version:   s.version,
		Err:       err,
		Timestamp: s.opts.now().UnixNano(),
	}
}

// read returns the ordered snapshot with the state it was taken at.
func (s *Store) read() ([]core.Specification, uint64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	specs := make([]core.Specification, 0, len(s.order))
	for _, id := range s.order {
		specs = append(specs, s.entities[id])
	}
	return specs, s.version, s.loaded, s.loadErr
}

func (s *Store) resolveLocked(id string) string {
	for range 8 {
		next, ok := s.aliases[id]
		if !ok {
			break
		}
		id = next
	}
	return id
}

// removeLocked drops key and returns its former position, or -1.
func (s *Store) removeLocked(key string) int {
	delete(s.entities, key)
	pos := slices.Index(s.order, key)
	if pos >= 0 {
		s.order = slices.Delete(s.order, pos, pos+1)
	}
	return pos
}

// insertAtLocked stores spec under key at pos; pos < 0 appends.
func (s *Store) insertAtLocked(key string, spec core.Specification, pos int) {
	s.entities[key] = spec
	if pos < 0 || pos > len(s.order) {
		pos = len(s.order)
	}
	s.order = slices.Insert(s.order, pos, key)
}

// rekeyLocked moves the entity known under old to new, keeping its
// position, and records old as an alias.
func (s *Store) rekeyLocked(old, new string) {
	if old == new {
		return
	}
	if _, dup := s.entities[new]; dup {
		// A load observed the server copy before the insert confirmed.
		s.removeLocked(new)
		if e := s.meta[new]; e != nil && e.pending == 0 {
			delete(s.meta, new)
		}
	}
	if spec, ok := s.entities[old]; ok {
		delete(s.entities, old)
		spec.ID = new
		s.entities[new] = spec
		if pos := slices.Index(s.order, old); pos >= 0 {
			s.order[pos] = new
		}
	}
	if e := s.meta[old]; e != nil {
		s.meta[new] = e
		delete(s.meta, old)
	}
	for k, v := range s.aliases {
		if v == old {
			s.aliases[k] = new
		}
	}
	s.aliases[old] = new
}

var errUnknownKind = errors.New("unknown transaction kind")
