package fs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/google/uuid"

	"github.com/aretw0/brewing/pkg/core"
	"github.com/aretw0/brewing/pkg/git"
)

const (
	// DefaultSystemDir is the project directory holding brewing data.
	DefaultSystemDir = ".brewing"
	// FeaturesDir holds one Markdown file per specification.
	FeaturesDir = "features"
	// ProjectFile holds the project configuration.
	ProjectFile = "project.json"
	// FilePattern matches specification files inside FeaturesDir.
	FilePattern = "*.md"
)

// selfWriteWindow is how long watcher events for a file written by this
// process are ignored.
const selfWriteWindow = 500 * time.Millisecond

// Config holds the configuration for the filesystem repository.
type Config struct {
	Root      string // project root; data lives in Root/SystemDir
	SystemDir string // defaults to ".brewing"
	AutoInit  bool   // create the layout (and git repository) if missing
	MustExist bool   // fail if Root does not exist
	Versioned bool   // commit every write to git
	Logger    *slog.Logger
	// ErrorHandler receives asynchronous watcher and commit failures.
	ErrorHandler func(error)
	Clock        func() time.Time
}

// Repository implements core.Persistence, core.ProjectStore,
// core.Watchable and core.HealthChecker on top of a project directory.
type Repository struct {
	Root   string
	config Config
	git    *git.Client
	cache  *cache
	logger *slog.Logger

	wmu sync.Mutex // serializes writes of this process

	mu            sync.RWMutex
	selfWrites    map[string]time.Time
	watcherActive bool
	lastReconcile *time.Time
	commits       int
}

// NewRepository creates a new filesystem-backed repository.
func NewRepository(config Config) *Repository {
	if config.SystemDir == "" {
		config.SystemDir = DefaultSystemDir
	}
	if config.Clock == nil {
		config.Clock = time.Now
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	config.Logger = logger.With("component", "fs")

	return &Repository{
		Root:       config.Root,
		config:     config,
		git:        git.NewClient(config.Root, filepath.Join(config.SystemDir, "git.lock"), config.Logger),
		cache:      newCache(filepath.Join(config.Root, config.SystemDir)),
		logger:     config.Logger,
		selfWrites: make(map[string]time.Time),
	}
}

// SystemPath returns Root/SystemDir.
func (r *Repository) SystemPath() string {
	return filepath.Join(r.Root, r.config.SystemDir)
}

func (r *Repository) featuresPath() string {
	return filepath.Join(r.SystemPath(), FeaturesDir)
}

func (r *Repository) projectPath() string {
	return filepath.Join(r.SystemPath(), ProjectFile)
}

// Initialize prepares the project layout: directories, the project file
// and, for versioned projects, the git repository.
func (r *Repository) Initialize(ctx context.Context) error {
	if r.config.MustExist {
		info, err := os.Stat(r.Root)
		if os.IsNotExist(err) {
			return fmt.Errorf("project path does not exist: %s", r.Root)
		}
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return fmt.Errorf("project path is not a directory: %s", r.Root)
		}
	}

	if _, err := os.Stat(r.SystemPath()); os.IsNotExist(err) && !r.config.AutoInit {
		return fmt.Errorf("not a brewing project (missing %s): %s", r.config.SystemDir, r.Root)
	}
	if err := os.MkdirAll(r.featuresPath(), 0755); err != nil {
		return fmt.Errorf("failed to create project directory: %w", err)
	}
	if _, err := r.GetProject(ctx); err != nil {
		return err
	}

	if !r.config.Versioned {
		return nil
	}
	if !git.IsInstalled() {
		return fmt.Errorf("git is not installed")
	}
	if !r.git.IsRepo() {
		if !r.config.AutoInit {
			return fmt.Errorf("path is not a git repository: %s", r.Root)
		}
		if err := r.git.Init(ctx); err != nil {
			return fmt.Errorf("failed to git init: %w", err)
		}
	}
	if _, err := r.ensureIgnore(); err != nil {
		return fmt.Errorf("failed to ensure .gitignore: %w", err)
	}
	return r.commit(ctx, fmt.Sprintf("chore: initialize %s", r.config.SystemDir),
		".gitignore", filepath.Join(r.config.SystemDir, ProjectFile))
}

// ensureIgnore keeps the cache and lock files out of version control.
func (r *Repository) ensureIgnore() (bool, error) {
	ignorePath := filepath.Join(r.Root, ".gitignore")
	entries := []string{
		r.config.SystemDir + "/index.json",
		r.config.SystemDir + "/*.lock",
		r.config.SystemDir + "/**/" + TempFilePrefix + "*",
	}

	content, err := os.ReadFile(ignorePath)
	if err != nil && !os.IsNotExist(err) {
		return false, err
	}
	lines := strings.Split(string(content), "\n")

	var missing []string
	for _, entry := range entries {
		if !slices.ContainsFunc(lines, func(l string) bool { return strings.TrimSpace(l) == entry }) {
			missing = append(missing, entry)
		}
	}
	if len(missing) == 0 {
		return false, nil
	}

	var b strings.Builder
	b.Write(content)
	if len(content) > 0 && !strings.HasSuffix(string(content), "\n") {
		b.WriteString("\n")
	}
	for _, entry := range missing {
		b.WriteString(entry + "\n")
	}
	return true, writeFileAtomic(ignorePath, []byte(b.String()), 0644)
}

// FetchAll lists every specification, oldest first.
func (r *Repository) FetchAll(ctx context.Context) ([]core.Specification, error) {
	if err := r.cache.Load(); err != nil {
		r.logger.Warn("cache unavailable", "error", err)
	}

	entries, err := os.ReadDir(r.featuresPath())
	if os.IsNotExist(err) {
		return []core.Specification{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list specifications: %w", err)
	}

	specs := make([]core.Specification, 0, len(entries))
	seen := make(map[string]bool, len(entries))
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if e.IsDir() || !matches(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		seen[e.Name()] = true

		if spec, ok := r.cache.Get(e.Name(), info.ModTime(), info.Size()); ok {
			specs = append(specs, spec)
			continue
		}

		spec, err := r.read(filepath.Join(r.featuresPath(), e.Name()))
		if err != nil {
			r.logger.Warn("skipping unreadable specification", "file", e.Name(), "error", err)
			continue
		}
		r.cache.Set(e.Name(), spec, info.ModTime(), info.Size())
		specs = append(specs, spec)
	}

	r.cache.Prune(seen)
	if err := r.cache.Save(); err != nil {
		r.logger.Debug("failed to save cache", "error", err)
	}

	slices.SortStableFunc(specs, func(a, b core.Specification) int {
		if c := a.DateCreated.Compare(b.DateCreated); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return specs, nil
}

// FetchOne reads a single specification.
func (r *Repository) FetchOne(ctx context.Context, id string) (core.Specification, error) {
	path, err := r.specPath(id)
	if err != nil {
		return core.Specification{}, err
	}
	spec, err := r.read(path)
	if errors.Is(err, os.ErrNotExist) {
		return core.Specification{}, fmt.Errorf("%w: %s", core.ErrNotFound, id)
	}
	return spec, err
}

// Create writes a new specification. A missing id gets a uuid; missing
// dates are stamped with the current time.
func (r *Repository) Create(ctx context.Context, spec core.Specification) (core.Specification, error) {
	if spec.ID == "" {
		spec.ID = uuid.NewString()
	}
	path, err := r.specPath(spec.ID)
	if err != nil {
		return core.Specification{}, err
	}
	now := r.config.Clock()
	if spec.DateCreated.IsZero() {
		spec.DateCreated = now
	}
	if spec.DateUpdated.IsZero() {
		spec.DateUpdated = spec.DateCreated
	}
	if spec.Name == "" {
		spec.Name = core.DefaultName
	}

	r.wmu.Lock()
	defer r.wmu.Unlock()

	if _, err := os.Stat(path); err == nil {
		return core.Specification{}, fmt.Errorf("%w: specification %s already exists", core.ErrConflict, spec.ID)
	}
	if err := r.write(path, spec); err != nil {
		return core.Specification{}, err
	}
	if err := r.commit(ctx, fmt.Sprintf("feat(%s): create %q", spec.ID, spec.Name), r.rel(path)); err != nil {
		return core.Specification{}, err
	}
	return spec, nil
}

// Replace stores the full record under id. DateCreated is kept from disk.
func (r *Repository) Replace(ctx context.Context, id string, spec core.Specification) (core.Specification, error) {
	path, err := r.specPath(id)
	if err != nil {
		return core.Specification{}, err
	}

	r.wmu.Lock()
	defer r.wmu.Unlock()

	cur, err := r.read(path)
	if errors.Is(err, os.ErrNotExist) {
		return core.Specification{}, fmt.Errorf("%w: %s", core.ErrNotFound, id)
	}
	if err != nil {
		return core.Specification{}, err
	}

	spec.ID = id
	spec.DateCreated = cur.DateCreated
	if spec.DateUpdated.IsZero() {
		spec.DateUpdated = r.config.Clock()
	}
	if err := r.write(path, spec); err != nil {
		return core.Specification{}, err
	}

	msg := fmt.Sprintf("docs(%s): update %s", id, strings.Join(core.Diff(cur, spec), ", "))
	if err := r.commit(ctx, msg, r.rel(path)); err != nil {
		return core.Specification{}, err
	}
	return spec, nil
}

// Remove deletes the specification file.
func (r *Repository) Remove(ctx context.Context, id string) error {
	path, err := r.specPath(id)
	if err != nil {
		return err
	}

	r.wmu.Lock()
	defer r.wmu.Unlock()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return fmt.Errorf("%w: %s", core.ErrNotFound, id)
	}
	r.markSelfWrite(path)
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("failed to remove specification: %w", err)
	}
	r.cache.Delete(filepath.Base(path))

	if !r.config.Versioned {
		return nil
	}
	unlock, err := r.git.Lock()
	if err != nil {
		return fmt.Errorf("failed to acquire git lock: %w", err)
	}
	defer unlock()
	if err := r.git.Rm(ctx, r.rel(path)); err != nil {
		r.logger.Debug("git rm skipped", "file", r.rel(path), "error", err)
	}
	if err := r.git.Commit(ctx, fmt.Sprintf("chore(%s): delete", id)); err != nil {
		return fmt.Errorf("failed to git commit: %w", err)
	}
	r.countCommit()
	return nil
}

// Health checks that the project directory is reachable.
func (r *Repository) Health(ctx context.Context) error {
	info, err := os.Stat(r.featuresPath())
	if err != nil {
		return fmt.Errorf("project unavailable: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("project unavailable: %s is not a directory", r.featuresPath())
	}
	return nil
}

// History returns the last n commit subjects of a versioned project.
func (r *Repository) History(ctx context.Context, n int) ([]string, error) {
	if !r.config.Versioned {
		return nil, fmt.Errorf("project is not versioned")
	}
	return r.git.Log(ctx, n)
}

func (r *Repository) read(path string) (core.Specification, error) {
	f, err := os.Open(path)
	if err != nil {
		return core.Specification{}, err
	}
	defer f.Close()

	spec, err := Parse(f)
	if err != nil {
		return core.Specification{}, fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
	}
	if id := idFromFile(path); spec.ID != id {
		// The file name is authoritative.
		spec.ID = id
	}
	return spec, nil
}

func (r *Repository) write(path string, spec core.Specification) error {
	data, err := Serialize(spec)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directories: %w", err)
	}
	r.markSelfWrite(path)
	if err := writeFileAtomic(path, data, 0644); err != nil {
		return err
	}
	return nil
}

func (r *Repository) commit(ctx context.Context, msg string, files ...string) error {
	if !r.config.Versioned {
		return nil
	}
	unlock, err := r.git.Lock()
	if err != nil {
		return fmt.Errorf("failed to acquire git lock: %w", err)
	}
	defer unlock()

	if err := r.git.Add(ctx, files...); err != nil {
		return fmt.Errorf("failed to git add: %w", err)
	}
	if err := r.git.Commit(ctx, msg); err != nil {
		return fmt.Errorf("failed to git commit: %w", err)
	}
	r.countCommit()
	return nil
}

func (r *Repository) countCommit() {
	r.mu.Lock()
	r.commits++
	r.mu.Unlock()
}

// specPath maps an id to its file, rejecting ids that would escape the
// features directory.
func (r *Repository) specPath(id string) (string, error) {
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, `/\`) || strings.ContainsRune(id, 0) {
		return "", fmt.Errorf("%w: invalid id %q", core.ErrValidationFailed, id)
	}
	return filepath.Join(r.featuresPath(), id+".md"), nil
}

func (r *Repository) rel(path string) string {
	rel, err := filepath.Rel(r.Root, path)
	if err != nil {
		return path
	}
	return filepath.ToSlash(rel)
}

func (r *Repository) markSelfWrite(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.selfWrites[filepath.Clean(path)] = r.config.Clock().Add(selfWriteWindow)
}

// isSelfWrite reports whether a watcher event on path was caused by this
// process, expiring stale marks on the way.
func (r *Repository) isSelfWrite(path string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.config.Clock()
	for p, until := range r.selfWrites {
		if now.After(until) {
			delete(r.selfWrites, p)
		}
	}
	_, ok := r.selfWrites[filepath.Clean(path)]
	return ok
}

func matches(name string) bool {
	if isTempFile(name) {
		return false
	}
	ok, err := doublestar.Match(FilePattern, name)
	return err == nil && ok
}

func idFromFile(path string) string {
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}

var (
	_ core.Persistence   = (*Repository)(nil)
	_ core.ProjectStore  = (*Repository)(nil)
	_ core.Watchable     = (*Repository)(nil)
	_ core.HealthChecker = (*Repository)(nil)
)
