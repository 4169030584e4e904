package collection

import (
	"context"
	"sync"
	"time"

	"github.com/aretw0/brewing/pkg/core"
)

// Kind is the kind of mutation a transaction carries.
type Kind string

const (
	KindInsert Kind = "insert"
	KindUpdate Kind = "update"
	KindDelete Kind = "delete"
)

// State is the lifecycle state of a transaction.
type State int

const (
	// StatePending means the collaborator call has not resolved yet.
	StatePending State = iota
	// StateCommitted means the collaborator accepted the mutation.
	StateCommitted
	// StateRolledBack means the collaborator rejected the mutation and the
	// optimistic change was reverted.
	StateRolledBack
	// StateSuperseded means the call resolved after a newer transaction for
	// the same entity had been issued; its result was discarded.
	StateSuperseded
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateCommitted:
		return "committed"
	case StateRolledBack:
		return "rolled_back"
	case StateSuperseded:
		return "superseded"
	default:
		return "unknown"
	}
}

// Transaction is the mutation record of a single optimistic change.
// Original is the pre-mutation snapshot (nil for inserts), Modified the
// predicted post-mutation state (nil for deletes). Both are read-only.
type Transaction struct {
	ID        string
	Kind      Kind
	EntityID  string
	Original  *core.Specification
	Modified  *core.Specification
	Seq       uint64
	CreatedAt time.Time

	// position of the entity in the snapshot order, used to reinstate a
	// failed delete.
	position int

	mu     sync.Mutex
	state  State
	err    error
	result *core.Specification
	done   chan struct{}
}

func newTransaction(id string, kind Kind, entityID string, original, modified *core.Specification, now time.Time) *Transaction {
	return &Transaction{
		ID:        id,
		Kind:      kind,
		EntityID:  entityID,
		Original:  original,
		Modified:  modified,
		CreatedAt: now,
		done:      make(chan struct{}),
	}
}

// settled returns a transaction that is already committed. It backs
// idempotent deletes of entities that are gone.
func settled(id string, kind Kind, entityID string, now time.Time) *Transaction {
	tx := newTransaction(id, kind, entityID, nil, nil, now)
	tx.state = StateCommitted
	close(tx.done)
	return tx
}

// Done is closed once the transaction resolved and its effect (confirm,
// rollback or discard) has been applied to the store.
func (t *Transaction) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the transaction resolves and returns the collaborator
// error, if any. A superseded transaction may still report an error: its
// call failed, but nothing was reverted.
func (t *Transaction) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return t.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Err returns the collaborator error once resolved.
func (t *Transaction) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// State returns the current state.
func (t *Transaction) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Result returns the collaborator's response for inserts and updates.
func (t *Transaction) Result() (core.Specification, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.result == nil {
		return core.Specification{}, false
	}
	return t.result.Clone(), true
}

// Changes lists the fields this transaction modified.
func (t *Transaction) Changes() []string {
	switch {
	case t.Original != nil && t.Modified != nil:
		return core.Diff(*t.Original, *t.Modified)
	default:
		return nil
	}
}

func (t *Transaction) finish(state State, result *core.Specification, err error) {
	t.mu.Lock()
	t.state = state
	t.result = result
	t.err = err
	t.mu.Unlock()
	close(t.done)
}
