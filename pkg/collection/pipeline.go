package collection

import (
	"context"
	"errors"
	"fmt"

	"github.com/aretw0/lifecycle"

	"github.com/aretw0/brewing/pkg/core"
)

// beginLocked registers a transaction for key and queues it on the
// entity's lane, starting the lane if it is idle.
func (s *Store) beginLocked(kind Kind, key string, original, modified *core.Specification) *Transaction {
	e := s.meta[key]
	if e == nil {
		e = &entry{}
		s.meta[key] = e
	}
	e.seq++
	e.pending++
	s.inflight++

	tx := newTransaction(s.opts.newID(), kind, key, original, modified, s.opts.now())
	tx.Seq = e.seq

	if e.lane == nil {
		e.lane = &lane{}
	}
	l := e.lane
	l.queue = append(l.queue, tx)
	if !l.running {
		l.running = true
		s.spawn(l)
	}
	return tx
}

func (s *Store) spawn(l *lane) {
	lifecycle.Go(s.ctx, func(ctx context.Context) error {
		s.drain(ctx, l)
		return nil
	}, lifecycle.WithErrorHandler(func(err error) {
		s.logger.Error("mutation lane panic", "error", err)
	}))
}

// drain dispatches the lane's transactions one at a time, in issue order.
func (s *Store) drain(ctx context.Context, l *lane) {
	for {
		s.mu.Lock()
		if len(l.queue) == 0 {
			l.running = false
			s.mu.Unlock()
			return
		}
		tx := l.queue[0]
		l.queue[0] = nil
		l.queue = l.queue[1:]
		// Resolved at dispatch time so calls queued behind an insert target
		// the server-assigned id.
		remote := s.resolveLocked(tx.EntityID)
		s.mu.Unlock()

		result, err := s.dispatch(ctx, tx, remote)
		s.complete(tx, result, err)
	}
}

// dispatch performs the single collaborator call of tx.
func (s *Store) dispatch(ctx context.Context, tx *Transaction, remote string) (core.Specification, error) {
	switch tx.Kind {
	case KindInsert:
		return s.persistence.Create(ctx, tx.Modified.Clone())
	case KindUpdate:
		spec := tx.Modified.Clone()
		spec.ID = remote
		return s.persistence.Replace(ctx, remote, spec)
	case KindDelete:
		err := s.persistence.Remove(ctx, remote)
		if errors.Is(err, core.ErrNotFound) {
			// Already gone remotely.
			err = nil
		}
		return core.Specification{}, err
	default:
		return core.Specification{}, fmt.Errorf("%w: %s", errUnknownKind, tx.Kind)
	}
}

// complete applies the outcome of tx to the snapshot. Results of a
// transaction that is no longer the latest for its entity are discarded,
// except for the id and creation date an insert reconciles.
func (s *Store) complete(tx *Transaction, result core.Specification, err error) {
	var (
		ev        *core.Event
		state     State
		key       string
		cancelled []cancellation
	)

	func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		key = s.resolveLocked(tx.EntityID)
		e := s.meta[key]
		if e == nil {
			e = &entry{}
			s.meta[key] = e
		}
		e.pending--
		s.settleSeq++
		e.settled = s.settleSeq
		latest := e.seq == tx.Seq

		if err == nil {
			key, ev, state = s.confirmLocked(tx, key, e, result, latest)
		} else {
			if tx.Kind == KindInsert {
				cancelled = s.cancelQueuedLocked(e, key, err)
			}
			ev, state = s.rollbackLocked(tx, key, e, err, latest)
		}

		if e.pending == 0 && !e.deleting {
			if _, exists := s.entities[key]; !exists {
				delete(s.meta, key)
			}
		}
	}()

	switch state {
	case StateRolledBack:
		s.logger.Warn("transaction rolled back",
			"id", key, "tx", tx.ID, "kind", tx.Kind, "kind_of_error", core.KindOf(err), "error", err)
	case StateSuperseded:
		s.logger.Debug("stale transaction result discarded", "id", key, "tx", tx.ID, "kind", tx.Kind, "error", err)
	default:
		s.logger.Debug("transaction committed", "id", key, "tx", tx.ID, "kind", tx.Kind)
	}

	if ev != nil {
		s.emit(*ev)
	}
	if state == StateRolledBack && s.opts.errorHandler != nil {
		s.opts.errorHandler(tx, err)
	}

	var res *core.Specification
	if err == nil && tx.Kind != KindDelete {
		r := result.Clone()
		res = &r
	}
	tx.finish(state, res, err)

	for _, c := range cancelled {
		s.logger.Warn("queued transaction cancelled", "id", key, "tx", c.tx.ID, "kind", c.tx.Kind, "error", c.err)
		c.tx.finish(c.state, nil, c.err)
	}

	s.mu.Lock()
	s.inflight -= 1 + len(cancelled)
	if s.inflight == 0 && s.idle != nil {
		close(s.idle)
		s.idle = nil
	}
	s.mu.Unlock()
}

func (s *Store) confirmLocked(tx *Transaction, key string, e *entry, result core.Specification, latest bool) (string, *core.Event, State) {
	switch tx.Kind {
	case KindInsert:
		if result.ID != "" && result.ID != key {
			s.rekeyLocked(key, result.ID)
			key = result.ID
		}
		if cur, ok := s.entities[key]; ok {
			if !result.DateCreated.IsZero() {
				cur.DateCreated = result.DateCreated
			}
			if latest && !result.DateUpdated.IsZero() {
				cur.DateUpdated = result.DateUpdated
			}
			s.entities[key] = cur
		}
		ev := s.eventLocked(core.EventConfirm, key, nil)
		return key, &ev, StateCommitted

	case KindUpdate:
		if !latest {
			return key, nil, StateSuperseded
		}
		cur, ok := s.entities[key]
		if !ok {
			return key, nil, StateCommitted
		}
		confirmed := tx.Modified.Clone()
		if result.ID != "" {
			confirmed = overlay(confirmed, result)
		}
		confirmed.ID = key
		if confirmed.DateCreated.IsZero() {
			confirmed.DateCreated = cur.DateCreated
		}
		s.entities[key] = confirmed
		ev := s.eventLocked(core.EventConfirm, key, nil)
		return key, &ev, StateCommitted

	case KindDelete:
		if !latest {
			return key, nil, StateSuperseded
		}
		e.deleting = false
		s.tombstones[key] = e.settled
		ev := s.eventLocked(core.EventConfirm, key, nil)
		return key, &ev, StateCommitted
	}
	return key, nil, StateCommitted
}

// rollbackLocked reverts the optimistic change of a failed transaction.
// A failed insert removes the entity even when it is not the latest, unless
// a new insert of the same id is still queued.
func (s *Store) rollbackLocked(tx *Transaction, key string, e *entry, err error, latest bool) (*core.Event, State) {
	if !latest && tx.Kind != KindInsert {
		return nil, StateSuperseded
	}

	switch tx.Kind {
	case KindInsert:
		if !reinsertQueued(e) {
			s.removeLocked(key)
		}
		e.deleting = false
	case KindUpdate:
		if _, ok := s.entities[key]; ok {
			orig := tx.Original.Clone()
			orig.ID = key
			s.entities[key] = orig
		}
	case KindDelete:
		e.deleting = false
		if _, ok := s.entities[key]; !ok {
			orig := tx.Original.Clone()
			orig.ID = key
			s.insertAtLocked(key, orig, tx.position)
		}
	}

	ev := s.eventLocked(core.EventRollback, key, err)
	return &ev, StateRolledBack
}

type cancellation struct {
	tx    *Transaction
	state State
	err   error
}

// cancelQueuedLocked resolves the transactions queued behind a failed insert
// without calling the collaborator. Updates fail with the insert's error;
// deletes are committed since the entity is gone. A later insert of the same
// id and everything behind it stay queued.
func (s *Store) cancelQueuedLocked(e *entry, key string, cause error) []cancellation {
	if e.lane == nil {
		return nil
	}
	var out []cancellation
	n := 0
	for _, queued := range e.lane.queue {
		if queued.Kind == KindInsert {
			break
		}
		c := cancellation{tx: queued, state: StateCommitted}
		if queued.Kind == KindUpdate {
			c.state = StateRolledBack
			c.err = fmt.Errorf("insert of %s failed: %w", key, cause)
		}
		out = append(out, c)
		n++
	}
	if n == 0 {
		return nil
	}
	clear(e.lane.queue[:n])
	e.lane.queue = e.lane.queue[n:]
	e.pending -= n
	return out
}

func reinsertQueued(e *entry) bool {
	return e.lane != nil && len(e.lane.queue) > 0 && e.lane.queue[0].Kind == KindInsert
}

// overlay returns the server response with optional fields it omitted
// taken from the local record. Collaborators that do not know a field (or
// treat nil as "unchanged") must not erase it locally.
func overlay(local, server core.Specification) core.Specification {
	out := server.Clone()
	if out.Emoji == nil {
		out.Emoji = local.Emoji
	}
	if out.Summary == nil {
		out.Summary = local.Summary
	}
	if out.Content == nil {
		out.Content = local.Content
	}
	if out.DraftContent == nil {
		out.DraftContent = local.DraftContent
	}
	if out.DatePublished == nil {
		out.DatePublished = local.DatePublished
	}
	if out.DateUpdated.IsZero() {
		out.DateUpdated = local.DateUpdated
	}
	return out
}
