// Package memory provides an in-memory persistence collaborator.
//
// Besides backing throwaway collections, it lets tests control when each
// call resolves (Hold, Step, Resume) and inject failures (FailNext).
package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/aretw0/lifecycle"
	"github.com/google/uuid"

	"github.com/aretw0/brewing/pkg/core"
)

// Op names a collaborator operation.
type Op string

const (
	OpFetchAll      Op = "fetch_all"
	OpFetchOne      Op = "fetch_one"
	OpCreate        Op = "create"
	OpReplace       Op = "replace"
	OpRemove        Op = "remove"
	OpGetProject    Op = "get_project"
	OpUpdateProject Op = "update_project"
	OpHealth        Op = "health"
)

// Call records one collaborator invocation.
type Call struct {
	Op   Op
	ID   string
	Spec core.Specification
}

// Adapter is an in-memory implementation of core.Persistence,
// core.ProjectStore, core.Watchable and core.HealthChecker.
type Adapter struct {
	mu       sync.Mutex
	specs    map[string]core.Specification
	order    []string
	project  core.Project
	calls    []Call
	failures map[Op][]error
	watchers map[chan core.Event]struct{}

	// gate
	held    bool
	holdOps []Op
	waiting int
	release chan struct{}
	resume  chan struct{}

	assignIDs bool
	now       func() time.Time
	newID     func() string
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithAssignIDs makes Create behave like a server: it assigns a fresh id and
// stamps the creation and update dates, ignoring the client's values.
func WithAssignIDs() Option {
	return func(a *Adapter) {
		a.assignIDs = true
	}
}

// WithClock overrides the time source of server-side timestamps.
func WithClock(now func() time.Time) Option {
	return func(a *Adapter) {
		a.now = now
	}
}

// WithIDGenerator overrides the generator of server-assigned ids.
func WithIDGenerator(fn func() string) Option {
	return func(a *Adapter) {
		a.newID = fn
	}
}

// WithProject sets the initial project configuration.
func WithProject(p core.Project) Option {
	return func(a *Adapter) {
		a.project = p
	}
}

// New creates an empty Adapter.
func New(opts ...Option) *Adapter {
	a := &Adapter{
		specs:    make(map[string]core.Specification),
		failures: make(map[Op][]error),
		watchers: make(map[chan core.Event]struct{}),
		release:  make(chan struct{}),
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.project.ID == "" {
		a.project.ID = a.newID()
	}
	if a.project.Name == "" {
		a.project.Name = core.DefaultProjectName
	}
	return a
}

// Seed stores specs directly, without recording calls or notifying watchers.
func (a *Adapter) Seed(specs ...core.Specification) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, spec := range specs {
		a.putLocked(spec)
	}
}

// Put stores spec as if another client wrote it and notifies watchers.
func (a *Adapter) Put(spec core.Specification) {
	a.mu.Lock()
	a.putLocked(spec)
	a.mu.Unlock()
	a.notify(spec.ID)
}

// Drop removes id as if another client deleted it and notifies watchers.
func (a *Adapter) Drop(id string) {
	a.mu.Lock()
	a.removeLocked(id)
	a.mu.Unlock()
	a.notify(id)
}

// Specs returns the stored specifications in creation order.
func (a *Adapter) Specs() []core.Specification {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]core.Specification, 0, len(a.order))
	for _, id := range a.order {
		out = append(out, a.specs[id].Clone())
	}
	return out
}

// Calls returns the recorded invocations in arrival order.
func (a *Adapter) Calls() []Call {
	a.mu.Lock()
	defer a.mu.Unlock()
	return slices.Clone(a.calls)
}

// CallsOf returns the recorded invocations of op.
func (a *Adapter) CallsOf(op Op) []Call {
	var out []Call
	for _, c := range a.Calls() {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

// FailNext makes the next call of op fail with err. Failures queue up.
func (a *Adapter) FailNext(op Op, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.failures[op] = append(a.failures[op], err)
}

// Hold makes every following call of ops (of any op when none is given)
// block until Step or Resume.
func (a *Adapter) Hold(ops ...Op) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.holdOps = ops
	if !a.held {
		a.held = true
		a.resume = make(chan struct{})
	}
}

// Step lets exactly one held call proceed. It blocks until a call takes it.
func (a *Adapter) Step() {
	a.release <- struct{}{}
}

// Resume releases every held call and stops holding.
func (a *Adapter) Resume() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.held {
		a.held = false
		close(a.resume)
	}
}

// Waiting returns the number of calls blocked by Hold.
func (a *Adapter) Waiting() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.waiting
}

// enter records the call, waits on the gate and returns the injected
// failure, if any.
func (a *Adapter) enter(ctx context.Context, c Call) error {
	a.mu.Lock()
	a.calls = append(a.calls, c)
	held := a.held && (len(a.holdOps) == 0 || slices.Contains(a.holdOps, c.Op))
	resume := a.resume
	if held {
		a.waiting++
	}
	a.mu.Unlock()

	if held {
		var err error
		select {
		case <-a.release:
		case <-resume:
		case <-ctx.Done():
			err = ctx.Err()
		}
		a.mu.Lock()
		a.waiting--
		a.mu.Unlock()
		if err != nil {
			return err
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if q := a.failures[c.Op]; len(q) > 0 {
		a.failures[c.Op] = q[1:]
		return q[0]
	}
	return nil
}

func (a *Adapter) FetchAll(ctx context.Context) ([]core.Specification, error) {
	if err := a.enter(ctx, Call{Op: OpFetchAll}); err != nil {
		return nil, err
	}
	return a.Specs(), nil
}

func (a *Adapter) FetchOne(ctx context.Context, id string) (core.Specification, error) {
	if err := a.enter(ctx, Call{Op: OpFetchOne, ID: id}); err != nil {
		return core.Specification{}, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	spec, ok := a.specs[id]
	if !ok {
		return core.Specification{}, fmt.Errorf("%w: %s", core.ErrNotFound, id)
	}
	return spec.Clone(), nil
}

func (a *Adapter) Create(ctx context.Context, spec core.Specification) (core.Specification, error) {
	if err := a.enter(ctx, Call{Op: OpCreate, ID: spec.ID, Spec: spec.Clone()}); err != nil {
		return core.Specification{}, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.assignIDs || spec.ID == "" {
		now := a.now()
		spec.ID = a.newID()
		spec.DateCreated = now
		spec.DateUpdated = now
	}
	if _, exists := a.specs[spec.ID]; exists {
		return core.Specification{}, fmt.Errorf("%w: %s already exists", core.ErrConflict, spec.ID)
	}
	a.putLocked(spec)
	return spec.Clone(), nil
}

func (a *Adapter) Replace(ctx context.Context, id string, spec core.Specification) (core.Specification, error) {
	if err := a.enter(ctx, Call{Op: OpReplace, ID: id, Spec: spec.Clone()}); err != nil {
		return core.Specification{}, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	cur, ok := a.specs[id]
	if !ok {
		return core.Specification{}, fmt.Errorf("%w: %s", core.ErrNotFound, id)
	}
	spec.ID = id
	spec.DateCreated = cur.DateCreated
	if a.assignIDs {
		spec.DateUpdated = a.now()
	}
	a.putLocked(spec)
	return spec.Clone(), nil
}

func (a *Adapter) Remove(ctx context.Context, id string) error {
	if err := a.enter(ctx, Call{Op: OpRemove, ID: id}); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.specs[id]; !ok {
		return fmt.Errorf("%w: %s", core.ErrNotFound, id)
	}
	a.removeLocked(id)
	return nil
}

func (a *Adapter) GetProject(ctx context.Context) (core.Project, error) {
	if err := a.enter(ctx, Call{Op: OpGetProject}); err != nil {
		return core.Project{}, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.project, nil
}

func (a *Adapter) UpdateProject(ctx context.Context, update core.ProjectUpdate) (core.Project, error) {
	if err := a.enter(ctx, Call{Op: OpUpdateProject}); err != nil {
		return core.Project{}, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.project.Onboarded = update.Onboarded
	if update.Name != nil {
		a.project.Name = *update.Name
	}
	return a.project, nil
}

func (a *Adapter) Health(ctx context.Context) error {
	return a.enter(ctx, Call{Op: OpHealth})
}

// Watch streams an EventExternal for every Put and Drop until ctx is done.
func (a *Adapter) Watch(ctx context.Context) (<-chan core.Event, error) {
	ch := make(chan core.Event, 16)
	a.mu.Lock()
	a.watchers[ch] = struct{}{}
	a.mu.Unlock()

	lifecycle.Go(ctx, func(ctx context.Context) error {
		<-ctx.Done()
		a.mu.Lock()
		delete(a.watchers, ch)
		close(ch)
		a.mu.Unlock()
		return nil
	})
	return ch, nil
}

func (a *Adapter) notify(id string) {
	ev := core.Event{Type: core.EventExternal, ID: id, Timestamp: a.now().UnixNano()}
	a.mu.Lock()
	defer a.mu.Unlock()
	for ch := range a.watchers {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (a *Adapter) putLocked(spec core.Specification) {
	if _, exists := a.specs[spec.ID]; !exists {
		a.order = append(a.order, spec.ID)
	}
	a.specs[spec.ID] = spec.Clone()
}

func (a *Adapter) removeLocked(id string) {
	if _, ok := a.specs[id]; !ok {
		return
	}
	delete(a.specs, id)
	if i := slices.Index(a.order, id); i >= 0 {
		a.order = slices.Delete(a.order, i, i+1)
	}
}

var (
	_ core.Persistence   = (*Adapter)(nil)
	_ core.ProjectStore  = (*Adapter)(nil)
	_ core.Watchable     = (*Adapter)(nil)
	_ core.HealthChecker = (*Adapter)(nil)
)
