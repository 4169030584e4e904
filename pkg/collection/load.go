package collection

import (
	"context"
	"fmt"

	"github.com/aretw0/brewing/pkg/core"
)

// Load fetches the full collection and merges it into the snapshot.
//
// Entities with unresolved transactions, or whose last transaction settled
// after the fetch started, keep their local value. Confirmed deletes are
// not resurrected by a response that predates them. The result of a load
// that was overtaken by a newer one is discarded. A failed load leaves the
// snapshot untouched.
func (s *Store) Load(ctx context.Context) error {
	s.mu.Lock()
	s.loadSeq++
	seq := s.loadSeq
	start := s.settleSeq
	s.mu.Unlock()

	s.logger.Debug("loading specifications", "load", seq)
	specs, err := s.persistence.FetchAll(ctx)

	ev, applied := func() (core.Event, bool) {
		s.mu.Lock()
		defer s.mu.Unlock()

		if seq < s.loadApplied {
			return core.Event{}, false
		}
		s.loadApplied = seq

		if err != nil {
			s.loadErr = err
			return s.eventLocked(core.EventLoadFailed, "", err), true
		}
		s.mergeLocked(specs, start)
		s.loaded = true
		s.loadErr = nil
		return s.eventLocked(core.EventLoad, "", nil), true
	}()

	if !applied {
		s.logger.Debug("stale load discarded", "load", seq)
		return nil
	}
	s.emit(ev)

	if err != nil {
		s.logger.Warn("load failed, keeping previous snapshot", "load", seq, "error", err)
		return fmt.Errorf("failed to load specifications: %w", err)
	}
	s.logger.Debug("load applied", "load", seq, "count", len(specs))
	return nil
}

// mergeLocked reconciles the snapshot with a server listing fetched when the
// settle counter was at start.
func (s *Store) mergeLocked(specs []core.Specification, start uint64) {
	server := make(map[string]core.Specification, len(specs))
	for _, spec := range specs {
		if spec.ID == "" {
			continue
		}
		server[spec.ID] = spec
	}

	local := func(id string) bool {
		e := s.meta[id]
		return e != nil && (e.pending > 0 || e.settled > start)
	}

	entities := make(map[string]core.Specification, len(server))
	order := make([]string, 0, len(server))

	for _, id := range s.order {
		switch {
		case local(id):
			entities[id] = s.entities[id]
		case hasKey(server, id):
			entities[id] = server[id].Clone()
		default:
			if e := s.meta[id]; e != nil && e.pending == 0 {
				delete(s.meta, id)
			}
			continue
		}
		order = append(order, id)
	}

	for _, spec := range specs {
		id := spec.ID
		if id == "" || hasKey(entities, id) {
			continue
		}
		if e := s.meta[id]; e != nil && (e.deleting || e.pending > 0) {
			continue
		}
		if at, ok := s.tombstones[id]; ok {
			if at > start {
				continue
			}
			delete(s.tombstones, id)
		}
		if local(id) {
			continue
		}
		entities[id] = server[id].Clone()
		order = append(order, id)
	}

	for id, at := range s.tombstones {
		if _, ok := server[id]; !ok && at <= start {
			delete(s.tombstones, id)
		}
	}

	s.entities = entities
	s.order = order
}

func hasKey[V any](m map[string]V, k string) bool {
	_, ok := m[k]
	return ok
}
