package brewing

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/aretw0/brewing/internal/platform"
	"github.com/aretw0/brewing/pkg/collection"
	"github.com/aretw0/brewing/pkg/core"
	"github.com/aretw0/brewing/pkg/debounce"
)

// Version is the version of the library and the CLI.
const Version = "0.1.0"

// --- Types ---

// Specification is a public alias for the domain entity.
type Specification = core.Specification

// Project is a public alias for the project configuration.
type Project = core.Project

// Event is a public alias for a collection change event.
type Event = core.Event

// Store is a public alias for the specification collection.
type Store = collection.Store

// Transaction is a public alias for the record of an optimistic mutation.
type Transaction = collection.Transaction

// View is a public alias for a live query definition.
type View = collection.View

// Live is a public alias for a live query.
type Live = collection.Live

// Workspace is a store wired to its collaborator.
type Workspace = platform.Workspace

// DebounceKey identifies a debounced field of a specification.
type DebounceKey = debounce.Key

// --- Configuration ---

// Option defines a functional option for configuring a workspace.
type Option = platform.Option

// Adapter names.
const (
	AdapterFS     = platform.AdapterFS
	AdapterHTTP   = platform.AdapterHTTP
	AdapterMemory = platform.AdapterMemory
)

// WithAdapter selects the collaborator by name.
func WithAdapter(name string) Option {
	return platform.WithAdapter(name)
}

// WithPersistence injects a custom collaborator.
func WithPersistence(p core.Persistence) Option {
	return platform.WithPersistence(p)
}

// WithLogger sets the logger for every component.
func WithLogger(logger *slog.Logger) Option {
	return platform.WithLogger(logger)
}

// WithAPIBaseURL sets the root of the REST API.
func WithAPIBaseURL(url string) Option {
	return platform.WithAPIBaseURL(url)
}

// WithHTTPClient replaces the http.Client of the REST adapter.
func WithHTTPClient(c *http.Client) Option {
	return platform.WithHTTPClient(c)
}

// WithEventBuffer sets the buffer of change event channels.
func WithEventBuffer(size int) Option {
	return platform.WithEventBuffer(size)
}

// WithDebounce sets the quiet period for debounced edits.
func WithDebounce(d time.Duration) Option {
	return platform.WithDebounce(d)
}

// WithWatch controls reloading on external changes.
func WithWatch(enabled bool) Option {
	return platform.WithWatch(enabled)
}

// WithReadOnly rejects every mutation.
func WithReadOnly(enabled bool) Option {
	return platform.WithReadOnly(enabled)
}

// WithAutoInit creates the project layout when missing.
func WithAutoInit(auto bool) Option {
	return platform.WithAutoInit(auto)
}

// WithVersioned commits every filesystem write to git.
func WithVersioned(enabled bool) Option {
	return platform.WithVersioned(enabled)
}

// WithDevSafety controls the `go run` sandbox.
func WithDevSafety(enabled bool) Option {
	return platform.WithDevSafety(enabled)
}

// WithErrorHandler receives failures of asynchronous operations.
func WithErrorHandler(fn func(error)) Option {
	return platform.WithErrorHandler(fn)
}

// --- Factory ---

// Open builds and loads the workspace of the project at path.
func Open(path string, opts ...Option) (*Workspace, error) {
	return platform.Open(path, opts...)
}

// FindRoot looks upwards from dir for a brewing project.
func FindRoot(dir string) (string, error) {
	return platform.FindRoot(dir)
}
