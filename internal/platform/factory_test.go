package platform_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/brewing/internal/platform"
	"github.com/aretw0/brewing/pkg/adapters/fs"
	"github.com/aretw0/brewing/pkg/adapters/memory"
	"github.com/aretw0/brewing/pkg/collection"
	"github.com/aretw0/brewing/pkg/core"
	"github.com/aretw0/brewing/pkg/debounce"
)

func openFS(t *testing.T, opts ...platform.Option) (*platform.Workspace, string) {
	t.Helper()
	root := t.TempDir()
	base := []platform.Option{platform.WithAutoInit(true), platform.WithVersioned(false)}
	ws, err := platform.Open(root, append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = ws.Close(ctx)
	})
	return ws, root
}

func TestOpen_FilesystemRoundTrip(t *testing.T) {
	ws, root := openFS(t)
	ctx := context.Background()

	assert.Equal(t, platform.AdapterFS, ws.Adapter)
	assert.Equal(t, root, ws.Root)
	require.NotNil(t, ws.Project)

	tx, err := ws.Store.Insert(core.Specification{ID: "login", Name: "Login flow"})
	require.NoError(t, err)
	require.NoError(t, tx.Wait(ctx))
	assert.Equal(t, collection.StateCommitted, tx.State())
	assert.FileExists(t, filepath.Join(root, ".brewing", "features", "login.md"))

	p, err := ws.Project.Onboard(ctx, "Brew")
	require.NoError(t, err)
	assert.True(t, p.Onboarded)

	// A second workspace on the same project sees the persisted state.
	other, err := platform.Open(root, platform.WithWatch(false))
	require.NoError(t, err)
	defer other.Close(ctx)
	got, ok := other.Store.Get("login")
	require.True(t, ok)
	assert.Equal(t, "Login flow", got.Name)
}

func TestOpen_FollowsExternalChanges(t *testing.T) {
	ws, root := openFS(t)

	data, err := fs.Serialize(core.Specification{ID: "theirs", Name: "Edited elsewhere", DateCreated: time.Now()})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(root, ".brewing", "features", "theirs.md"), data, 0644))

	require.Eventually(t, func() bool {
		_, ok := ws.Store.Get("theirs")
		return ok
	}, 3*time.Second, 20*time.Millisecond)

	state := ws.State().(platform.WorkspaceState)
	assert.True(t, state.Following)
	assert.GreaterOrEqual(t, state.Reloads, 1)
}

func TestOpen_ConfigFile(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, platform.SaveConfig(root, ".brewing", platform.FileConfig{
		Adapter:  platform.AdapterMemory,
		Debounce: platform.Duration(250 * time.Millisecond),
	}))

	ws, err := platform.Open(root)
	require.NoError(t, err)
	defer ws.Close(context.Background())
	assert.Equal(t, platform.AdapterMemory, ws.Adapter)
	assert.Equal(t, 250*time.Millisecond, ws.Debouncer.State().(debounce.CoordinatorState).Delay)

	// Explicit options win.
	explicit, err := platform.Open(root, platform.WithAdapter(platform.AdapterFS), platform.WithAutoInit(true))
	require.NoError(t, err)
	defer explicit.Close(context.Background())
	assert.Equal(t, platform.AdapterFS, explicit.Adapter)
}

func TestLoadConfig(t *testing.T) {
	root := t.TempDir()
	cfg, err := platform.LoadConfig(root, ".brewing")
	require.NoError(t, err)
	assert.Equal(t, platform.FileConfig{}, cfg)

	require.NoError(t, os.MkdirAll(filepath.Join(root, ".brewing"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, ".brewing", platform.ConfigFile),
		[]byte("adapter: http\napi_url: http://localhost:9680\ndebounce: 1500\nevent_buffer: 10\n"), 0644))
	cfg, err = platform.LoadConfig(root, ".brewing")
	require.NoError(t, err)
	assert.Equal(t, "http", cfg.Adapter)
	assert.Equal(t, platform.Duration(1500*time.Millisecond), cfg.Debounce)
	assert.Equal(t, 10, cfg.EventBuffer)

	require.NoError(t, os.WriteFile(filepath.Join(root, ".brewing", platform.ConfigFile),
		[]byte("debounce: soon\n"), 0644))
	_, err = platform.LoadConfig(root, ".brewing")
	assert.Error(t, err)
}

func TestOpen_HTTPAdapter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/features":
			_ = json.NewEncoder(w).Encode([]map[string]any{
				{"id": "a", "name": "Remote", "date_created": "2024-05-01T12:00:00", "date_updated": "2024-05-01T12:00:00"},
			})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	ws, err := platform.Open(t.TempDir(),
		platform.WithAdapter(platform.AdapterHTTP),
		platform.WithAPIBaseURL(srv.URL),
	)
	require.NoError(t, err)
	defer ws.Close(context.Background())

	got, ok := ws.Store.Get("a")
	require.True(t, ok)
	assert.Equal(t, "Remote", got.Name)
	assert.False(t, ws.State().(platform.WorkspaceState).Following)
}

func TestOpen_InjectedPersistence(t *testing.T) {
	mem := memory.New()
	mem.Seed(core.Specification{ID: "seeded", Name: "Seeded"})

	var failures []error
	ws, err := platform.Open("", platform.WithPersistence(mem), platform.WithErrorHandler(func(err error) {
		failures = append(failures, err)
	}))
	require.NoError(t, err)
	ctx := context.Background()
	defer ws.Close(ctx)

	assert.Equal(t, "custom", ws.Adapter)
	assert.Equal(t, 1, ws.Store.Len())

	mem.FailNext(memory.OpReplace, core.ErrConflict)
	tx, err := ws.Store.Update("seeded", func(s *core.Specification) { s.Name = "Renamed" })
	require.NoError(t, err)
	assert.ErrorIs(t, tx.Wait(ctx), core.ErrConflict)
	require.Len(t, failures, 1)
	assert.ErrorIs(t, failures[0], core.ErrConflict)
	assert.Contains(t, failures[0].Error(), "seeded")
}

func TestOpen_Errors(t *testing.T) {
	t.Run("Unknown Adapter", func(t *testing.T) {
		_, err := platform.Open(t.TempDir(), platform.WithAdapter("s3"))
		assert.ErrorContains(t, err, "unknown adapter")
	})

	t.Run("Not a Project", func(t *testing.T) {
		_, err := platform.Open(t.TempDir())
		assert.Error(t, err)
	})

	t.Run("Read Only Missing Project", func(t *testing.T) {
		_, err := platform.Open(t.TempDir(), platform.WithReadOnly(true))
		assert.Error(t, err)
	})

	t.Run("Failed Load", func(t *testing.T) {
		mem := memory.New()
		mem.FailNext(memory.OpFetchAll, core.ErrNetwork)
		_, err := platform.Open("", platform.WithPersistence(mem))
		assert.ErrorIs(t, err, core.ErrNetwork)
	})
}

func TestOpen_ReadOnly(t *testing.T) {
	_, root := openFS(t)

	ws, err := platform.Open(root, platform.WithReadOnly(true))
	require.NoError(t, err)
	defer ws.Close(context.Background())

	_, err = ws.Store.Insert(core.Specification{Name: "nope"})
	assert.ErrorIs(t, err, core.ErrReadOnly)
}
