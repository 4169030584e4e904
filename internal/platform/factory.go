package platform

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/aretw0/introspection"
	"github.com/aretw0/lifecycle"

	"github.com/aretw0/brewing/pkg/adapters/fs"
	"github.com/aretw0/brewing/pkg/adapters/httpapi"
	"github.com/aretw0/brewing/pkg/adapters/memory"
	"github.com/aretw0/brewing/pkg/collection"
	"github.com/aretw0/brewing/pkg/core"
	"github.com/aretw0/brewing/pkg/debounce"
	"github.com/aretw0/brewing/pkg/git"
)

// Workspace wires a collection to its collaborator: the store, the
// debounce coordinator, the project service and the follower reloading the
// store on external changes.
type Workspace struct {
	Store       *collection.Store
	Debouncer   *debounce.Coordinator
	Project     *core.ProjectService // nil if the collaborator has no project config
	Persistence core.Persistence
	Adapter     string
	Root        string

	logger    *slog.Logger
	cancel    context.CancelFunc
	following chan struct{}
	closeOnce sync.Once
	reloads   int
	mu        sync.Mutex
}

// Open builds a workspace for the project at uri and loads it. For the
// filesystem adapter uri is the project directory; an empty uri searches
// upwards from the working directory.
func Open(uri string, opts ...Option) (*Workspace, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}
	o.logger = logger
	if o.systemDir == "" {
		o.systemDir = fs.DefaultSystemDir
	}

	root := resolveRoot(uri, o)
	cfg, err := LoadConfig(root, o.systemDir)
	if err != nil {
		return nil, err
	}
	cfg.apply(o)

	persistence := o.persistence
	adapter := o.adapter
	if persistence != nil {
		adapter = "custom"
	} else {
		persistence, err = newPersistence(root, o)
		if err != nil {
			return nil, err
		}
	}

	storeOpts := []collection.Option{
		collection.WithLogger(logger),
		collection.WithEventBuffer(o.eventBuffer),
		collection.WithReadOnly(o.readOnly),
	}
	if o.errorHandler != nil {
		handler := o.errorHandler
		storeOpts = append(storeOpts, collection.WithErrorHandler(func(tx *collection.Transaction, err error) {
			handler(fmt.Errorf("%s %s: %w", tx.Kind, tx.EntityID, err))
		}))
	}
	store := collection.New(persistence, storeOpts...)

	debounceOpts := []debounce.Option{debounce.WithLogger(logger)}
	if o.debounce > 0 {
		debounceOpts = append(debounceOpts, debounce.WithDelay(o.debounce))
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := &Workspace{
		Store:       store,
		Debouncer:   debounce.New(store, debounceOpts...),
		Persistence: persistence,
		Adapter:     adapter,
		Root:        root,
		logger:      logger.With("component", "workspace"),
		cancel:      cancel,
	}
	if ps, ok := persistence.(core.ProjectStore); ok {
		w.Project = core.NewProjectService(ps)
	}

	if err := store.Load(ctx); err != nil {
		w.Debouncer.Close()
		cancel()
		return nil, err
	}

	if watchable, ok := persistence.(core.Watchable); ok && o.watch {
		events, err := watchable.Watch(ctx)
		if err != nil {
			w.logger.Warn("external changes will not be followed", "error", err)
		} else {
			w.follow(ctx, events)
		}
	}
	return w, nil
}

func resolveRoot(uri string, o *options) string {
	if uri == "" {
		if found, err := FindRoot("."); err == nil {
			uri = found
		}
	}
	sandbox := o.adapter == AdapterFS && o.persistence == nil &&
		o.devSafety && !o.readOnly && IsDevRun()
	resolved := ResolvePath(uri, sandbox)
	if sandbox && resolved != filepath.Clean(uri) {
		o.logger.Warn("running in SAFE MODE (dev sandbox)", "original_path", uri, "resolved_path", resolved)
	}
	return resolved
}

func newPersistence(root string, o *options) (core.Persistence, error) {
	switch o.adapter {
	case AdapterFS:
		versioned := false
		if o.versioned != nil {
			versioned = *o.versioned
		} else if isDir(filepath.Join(root, ".git")) && git.IsInstalled() {
			versioned = true
		}
		repo := fs.NewRepository(fs.Config{
			Root:         root,
			SystemDir:    o.systemDir,
			AutoInit:     o.autoInit && !o.readOnly,
			MustExist:    o.mustExist,
			Versioned:    versioned && !o.readOnly,
			Logger:       o.logger,
			ErrorHandler: o.errorHandler,
		})
		if o.readOnly {
			if _, err := os.Stat(repo.SystemPath()); err != nil {
				return nil, fmt.Errorf("not a brewing project: %s", root)
			}
			return repo, nil
		}
		if err := repo.Initialize(context.Background()); err != nil {
			return nil, err
		}
		return repo, nil

	case AdapterHTTP:
		return httpapi.New(o.apiURL,
			httpapi.WithHTTPClient(o.httpClient),
			httpapi.WithLogger(o.logger),
		), nil

	case AdapterMemory:
		return memory.New(memory.WithAssignIDs()), nil

	default:
		return nil, fmt.Errorf("unknown adapter: %s", o.adapter)
	}
}

// follow reloads the store whenever the collaborator reports an external
// change. Bursts of events collapse into one reload.
func (w *Workspace) follow(ctx context.Context, events <-chan core.Event) {
	w.following = make(chan struct{})
	lifecycle.Go(ctx, func(ctx context.Context) error {
		defer close(w.following)
		for {
			select {
			case <-ctx.Done():
				return nil
			case e, ok := <-events:
				if !ok {
					return nil
				}
				w.logger.Debug("external change", "id", e.ID)
				drain(events)
				if err := w.Store.Load(ctx); err != nil && !errors.Is(err, context.Canceled) {
					w.logger.Warn("reload after external change failed", "error", err)
				}
				w.mu.Lock()
				w.reloads++
				w.mu.Unlock()
			}
		}
	}, lifecycle.WithErrorHandler(func(err error) {
		w.logger.Error("follower panic", "error", err)
	}))
}

func drain(events <-chan core.Event) {
	for {
		select {
		case _, ok := <-events:
			if !ok {
				return
			}
		default:
			return
		}
	}
}

// Close discards pending debounced edits, stops following external changes
// and waits for in-flight transactions until ctx is done.
func (w *Workspace) Close(ctx context.Context) error {
	var err error
	w.closeOnce.Do(func() {
		w.Debouncer.Close()
		err = w.Store.Wait(ctx)
		w.cancel()
		if w.following != nil {
			select {
			case <-w.following:
			case <-ctx.Done():
			}
		}
	})
	return err
}

// WorkspaceState exposes internal state for observability.
type WorkspaceState struct {
	Adapter     string `json:"adapter"`
	Root        string `json:"root"`
	Following   bool   `json:"following"`
	Reloads     int    `json:"reloads"`
	Store       any    `json:"store"`
	Debounce    any    `json:"debounce"`
	Persistence any    `json:"persistence,omitempty"`
}

// State implements introspection.Introspectable.
func (w *Workspace) State() any {
	w.mu.Lock()
	reloads := w.reloads
	w.mu.Unlock()

	s := WorkspaceState{
		Adapter:   w.Adapter,
		Root:      w.Root,
		Following: w.following != nil,
		Reloads:   reloads,
		Store:     w.Store.State(),
		Debounce:  w.Debouncer.State(),
	}
	if in, ok := w.Persistence.(introspection.Introspectable); ok {
		s.Persistence = in.State()
	}
	return s
}

// ComponentType implements introspection.Component.
func (w *Workspace) ComponentType() string {
	return "workspace"
}

var _ introspection.Introspectable = (*Workspace)(nil)
var _ introspection.Component = (*Workspace)(nil)
