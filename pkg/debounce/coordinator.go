// Package debounce coalesces bursts of field edits into single store updates.
package debounce

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/introspection"

	"github.com/aretw0/brewing/pkg/collection"
	"github.com/aretw0/brewing/pkg/core"
)

// DefaultDelay is the quiet period used when Schedule gets a zero delay.
const DefaultDelay = time.Second

var (
	ErrClosed       = errors.New("coordinator is closed")
	ErrUnknownField = errors.New("unknown field")
)

// Field names an editable string field of a specification.
type Field string

const (
	FieldName         Field = "name"
	FieldSummary      Field = "summary"
	FieldEmoji        Field = "emoji"
	FieldDraftContent Field = "draft_content"
)

// Value reads the field from spec. Nil optional fields read as "".
func (f Field) Value(spec core.Specification) (string, bool) {
	switch f {
	case FieldName:
		return spec.Name, true
	case FieldSummary:
		return core.StringValue(spec.Summary), true
	case FieldEmoji:
		return core.StringValue(spec.Emoji), true
	case FieldDraftContent:
		return core.StringValue(spec.DraftContent), true
	default:
		return "", false
	}
}

// Set writes v into the field of spec.
func (f Field) Set(spec *core.Specification, v string) {
	switch f {
	case FieldName:
		spec.Name = v
	case FieldSummary:
		spec.Summary = core.String(v)
	case FieldEmoji:
		spec.Emoji = core.String(v)
	case FieldDraftContent:
		spec.DraftContent = core.String(v)
	}
}

// Key identifies one debounced field of one entity.
type Key struct {
	ID    string
	Field Field
}

func (k Key) String() string {
	return k.ID + "/" + string(k.Field)
}

// Updater is the part of the collection store the coordinator drives.
type Updater interface {
	Get(id string) (core.Specification, bool)
	Resolve(id string) string
	Update(id string, mutate func(*core.Specification)) (*collection.Transaction, error)
	Subscribe(fn func(core.Event)) (cancel func())
}

type pending struct {
	value string
	gen   uint64
	timer *time.Timer
}

// Coordinator holds one timer per key. Only the last value scheduled within
// a quiet window reaches the store, and a value the store already holds is
// never re-issued.
//
// "Already holds" compares against the store's current snapshot, which may
// still be an unconfirmed optimistic value. Local writes win: if that value
// is later rolled back, the pending edit is gone and is not replayed.
type Coordinator struct {
	store  Updater
	logger *slog.Logger
	delay  time.Duration
	cancel func()

	mu      sync.Mutex
	pending map[Key]*pending
	last    map[Key]*collection.Transaction
	gen     uint64
	closed  bool
	issued  uint64
	skipped uint64
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger of the coordinator.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithDelay sets the default quiet period.
func WithDelay(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.delay = d
		}
	}
}

// New creates a Coordinator in front of store.
func New(store Updater, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:   store,
		logger:  slog.Default(),
		delay:   DefaultDelay,
		pending: make(map[Key]*pending),
		last:    make(map[Key]*collection.Transaction),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "debounce")
	c.cancel = store.Subscribe(c.observe)
	return c
}

// Schedule records value as the pending value of key and (re)starts its
// timer. A delay of zero or less uses the default quiet period.
func (c *Coordinator) Schedule(key Key, value string, delay time.Duration) error {
	if _, ok := key.Field.Value(core.Specification{}); !ok {
		return fmt.Errorf("%w: %q", ErrUnknownField, key.Field)
	}
	if delay <= 0 {
		delay = c.delay
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}

	p := c.pending[key]
	if p == nil {
		p = &pending{}
		c.pending[key] = p
	} else {
		p.timer.Stop()
	}
	c.gen++
	gen := c.gen
	p.value = value
	p.gen = gen
	p.timer = time.AfterFunc(delay, func() { c.fire(key, gen) })
	return nil
}

// Cancel discards the pending value of key without persisting it.
func (c *Coordinator) Cancel(key Key) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dropLocked(key)
}

// Pending returns the value waiting for the timer of key.
func (c *Coordinator) Pending(key Key) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p := c.pending[key]; p != nil {
		return p.value, true
	}
	return "", false
}

// Flush issues the pending value of key now instead of waiting.
func (c *Coordinator) Flush(key Key) (*collection.Transaction, error) {
	c.mu.Lock()
	p := c.pending[key]
	if p == nil {
		c.mu.Unlock()
		return nil, nil
	}
	p.timer.Stop()
	delete(c.pending, key)
	value := p.value
	c.mu.Unlock()

	return c.issue(key, value)
}

// Last returns the transaction of the last update issued for key.
func (c *Coordinator) Last(key Key) *collection.Transaction {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last[key]
}

// Close discards every pending value and detaches from the store.
func (c *Coordinator) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	for key := range c.pending {
		c.dropLocked(key)
	}
	c.mu.Unlock()
	c.cancel()
}

func (c *Coordinator) fire(key Key, gen uint64) {
	c.mu.Lock()
	p := c.pending[key]
	if c.closed || p == nil || p.gen != gen {
		c.mu.Unlock()
		return
	}
	delete(c.pending, key)
	value := p.value
	c.mu.Unlock()

	if _, err := c.issue(key, value); err != nil {
		c.logger.Warn("debounced update rejected", "key", key.String(), "error", err)
	}
}

func (c *Coordinator) issue(key Key, value string) (*collection.Transaction, error) {
	cur, ok := c.store.Get(key.ID)
	if !ok {
		return nil, fmt.Errorf("debounced update of %s: %w", key, core.ErrNotFound)
	}
	if v, _ := key.Field.Value(cur); v == value {
		c.mu.Lock()
		c.skipped++
		c.mu.Unlock()
		c.logger.Debug("debounced value already stored", "key", key.String())
		return nil, nil
	}

	tx, err := c.store.Update(key.ID, func(d *core.Specification) {
		key.Field.Set(d, value)
	})
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.last[key] = tx
	c.issued++
	c.mu.Unlock()
	c.logger.Debug("debounced update issued", "key", key.String(), "tx", tx.ID)
	return tx, nil
}

// observe cancels pending values the store converged to on its own.
func (c *Coordinator) observe(e core.Event) {
	switch e.Type {
	case core.EventUpdate, core.EventConfirm, core.EventLoad, core.EventExternal:
	default:
		return
	}

	c.mu.Lock()
	keys := make([]Key, 0, len(c.pending))
	for key := range c.pending {
		if e.ID == "" || c.store.Resolve(key.ID) == e.ID {
			keys = append(keys, key)
		}
	}
	c.mu.Unlock()

	for _, key := range keys {
		cur, ok := c.store.Get(key.ID)
		if !ok {
			continue
		}
		v, _ := key.Field.Value(cur)

		c.mu.Lock()
		if p := c.pending[key]; p != nil && p.value == v {
			c.dropLocked(key)
			c.skipped++
			c.logger.Debug("pending value converged", "key", key.String(), "event", e.String())
		}
		c.mu.Unlock()
	}
}

func (c *Coordinator) dropLocked(key Key) bool {
	p := c.pending[key]
	if p == nil {
		return false
	}
	p.timer.Stop()
	delete(c.pending, key)
	return true
}

// CoordinatorState exposes internal state for observability.
type CoordinatorState struct {
	Pending []string      `json:"pending,omitempty"`
	Delay   time.Duration `json:"delay"`
	Issued  uint64        `json:"issued"`
	Skipped uint64        `json:"skipped"`
	Closed  bool          `json:"closed"`
}

// State implements introspection.Introspectable.
func (c *Coordinator) State() any {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := CoordinatorState{
		Delay:   c.delay,
		Issued:  c.issued,
		Skipped: c.skipped,
		Closed:  c.closed,
	}
	for key := range c.pending {
		st.Pending = append(st.Pending, key.String())
	}
	return st
}

// ComponentType implements introspection.Component.
func (c *Coordinator) ComponentType() string {
	return "debounce"
}

var _ introspection.Introspectable = (*Coordinator)(nil)
var _ introspection.Component = (*Coordinator)(nil)
