package platform

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/aretw0/brewing/pkg/core"
)

// Adapter names accepted by WithAdapter and the config file.
const (
	AdapterFS     = "fs"
	AdapterHTTP   = "http"
	AdapterMemory = "memory"
)

// options holds the internal configuration of a workspace.
type options struct {
	persistence  core.Persistence
	logger       *slog.Logger
	adapter      string
	apiURL       string
	httpClient   *http.Client
	eventBuffer  int
	debounce     time.Duration
	watch        bool
	readOnly     bool
	autoInit     bool
	mustExist    bool
	versioned    *bool
	devSafety    bool
	systemDir    string
	errorHandler func(error)

	// explicit records the settings passed as options; they win over the
	// project config file.
	explicit map[string]bool
}

// Option defines a functional option for configuring a workspace.
type Option func(*options)

func defaultOptions() *options {
	return &options{
		adapter:   AdapterFS,
		watch:     true,
		devSafety: true,
		explicit:  make(map[string]bool),
	}
}

// WithAdapter selects the collaborator by name: "fs" (default), "http" or
// "memory".
func WithAdapter(name string) Option {
	return func(o *options) {
		o.adapter = name
		o.explicit["adapter"] = true
	}
}

// WithPersistence injects a collaborator, skipping adapter construction.
func WithPersistence(p core.Persistence) Option {
	return func(o *options) {
		o.persistence = p
	}
}

// WithLogger sets the logger for every component of the workspace.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithAPIBaseURL sets the root of the REST API used by the "http" adapter.
func WithAPIBaseURL(url string) Option {
	return func(o *options) {
		o.apiURL = url
		o.explicit["api_url"] = true
	}
}

// WithHTTPClient replaces the http.Client of the "http" adapter.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) {
		o.httpClient = c
	}
}

// WithEventBuffer sets the buffer of channels returned by Store.Watch.
// Zero means default (100).
func WithEventBuffer(size int) Option {
	return func(o *options) {
		o.eventBuffer = size
		o.explicit["event_buffer"] = true
	}
}

// WithDebounce sets the quiet period of the debounce coordinator.
func WithDebounce(d time.Duration) Option {
	return func(o *options) {
		o.debounce = d
		o.explicit["debounce"] = true
	}
}

// WithWatch controls whether external changes reported by the collaborator
// trigger a reload. Enabled by default.
func WithWatch(enabled bool) Option {
	return func(o *options) {
		o.watch = enabled
	}
}

// WithReadOnly rejects every mutation with core.ErrReadOnly and skips all
// initialization side effects.
func WithReadOnly(enabled bool) Option {
	return func(o *options) {
		o.readOnly = enabled
	}
}

// WithAutoInit creates the project layout when missing.
func WithAutoInit(auto bool) Option {
	return func(o *options) {
		o.autoInit = auto
	}
}

// WithMustExist fails when the project directory does not exist.
func WithMustExist(must bool) Option {
	return func(o *options) {
		o.mustExist = must
	}
}

// WithVersioned commits every write of the filesystem adapter to git.
// By default a project is versioned when its root holds a .git directory.
func WithVersioned(enabled bool) Option {
	return func(o *options) {
		o.versioned = &enabled
		o.explicit["versioned"] = true
	}
}

// WithSystemDir overrides the hidden project directory (".brewing").
func WithSystemDir(name string) Option {
	return func(o *options) {
		o.systemDir = name
	}
}

// WithDevSafety controls the sandbox used when running via `go run` or
// `go test`: by default the filesystem adapter is re-rooted into a
// temporary directory. Disable only when operating on the real project is
// intended.
func WithDevSafety(enabled bool) Option {
	return func(o *options) {
		o.devSafety = enabled
	}
}

// WithErrorHandler registers a callback for failures that happen off the
// caller's goroutine: rolled back mutations and watcher errors.
func WithErrorHandler(fn func(error)) Option {
	return func(o *options) {
		o.errorHandler = fn
	}
}
