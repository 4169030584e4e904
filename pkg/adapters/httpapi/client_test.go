package httpapi_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/brewing/pkg/adapters/httpapi"
	"github.com/aretw0/brewing/pkg/core"
)

// fakeAPI mimics the brewing REST API: naive UTC timestamps, server
// assigned ids and a FastAPI style {"detail": ...} error body.
type fakeAPI struct {
	mu       sync.Mutex
	features map[string]map[string]any
	project  map[string]any
	next     int
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		features: map[string]map[string]any{},
		project:  map[string]any{"id": "p-1", "onboarded": false, "name": "Untitled Project"},
	}
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	const naive = "2006-01-02T15:04:05.000000"
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC).Format(naive)
	id := strings.TrimPrefix(r.URL.Path, "/features/")

	switch {
	case r.URL.Path == "/health":
		writeJSON(w, http.StatusOK, map[string]any{"status": "healthy", "timestamp": now})

	case r.URL.Path == "/project" && r.Method == http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{"data": f.project})

	case r.URL.Path == "/project" && r.Method == http.MethodPut:
		var update map[string]any
		_ = json.NewDecoder(r.Body).Decode(&update)
		f.project["onboarded"] = update["onboarded"]
		if name, ok := update["name"]; ok {
			f.project["name"] = name
		}
		writeJSON(w, http.StatusOK, f.project)

	case r.URL.Path == "/features" && r.Method == http.MethodGet:
		list := []map[string]any{}
		for _, feat := range f.features {
			list = append(list, feat)
		}
		writeJSON(w, http.StatusOK, list)

	case r.URL.Path == "/features" && r.Method == http.MethodPost:
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body["name"] == nil {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"detail": []string{"name required"}})
			return
		}
		f.next++
		newID := "srv-" + string(rune('0'+f.next))
		feat := map[string]any{
			"id": newID, "name": body["name"], "summary": nil, "content": nil,
			"draft_content": nil, "date_published": nil,
			"date_created": now, "date_updated": now,
		}
		f.features[newID] = feat
		writeJSON(w, http.StatusCreated, feat)

	case r.Method == http.MethodGet:
		feat, ok := f.features[id]
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]any{"detail": "Feature not found"})
			return
		}
		writeJSON(w, http.StatusOK, feat)

	case r.Method == http.MethodPut:
		feat, ok := f.features[id]
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]any{"detail": "Feature not found"})
			return
		}
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		for _, k := range []string{"name", "summary", "content", "draft_content"} {
			if v, ok := body[k]; ok && v != nil {
				feat[k] = v
			}
		}
		writeJSON(w, http.StatusOK, feat)

	case r.Method == http.MethodDelete:
		if _, ok := f.features[id]; !ok {
			writeJSON(w, http.StatusNotFound, map[string]any{"detail": "Feature not found"})
			return
		}
		delete(f.features, id)
		w.WriteHeader(http.StatusNoContent)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func setupClient(t *testing.T) *httpapi.Client {
	t.Helper()
	srv := httptest.NewServer(newFakeAPI())
	t.Cleanup(srv.Close)
	return httpapi.New(srv.URL + "/")
}

func TestClient_CRUD(t *testing.T) {
	ctx := context.Background()
	c := setupClient(t)

	created, err := c.Create(ctx, core.Specification{ID: "local-1", Name: "Login flow"})
	require.NoError(t, err)
	assert.Equal(t, "srv-1", created.ID)
	assert.Equal(t, "Login flow", created.Name)
	assert.Equal(t, time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC), created.DateCreated)
	assert.Nil(t, created.DatePublished)
	assert.Nil(t, created.DraftContent)

	edited := created.Clone()
	edited.DraftContent = core.String("# Login")
	replaced, err := c.Replace(ctx, created.ID, edited)
	require.NoError(t, err)
	assert.Equal(t, "# Login", core.StringValue(replaced.DraftContent))

	one, err := c.FetchOne(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, replaced, one)

	all, err := c.FetchAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	require.NoError(t, c.Remove(ctx, created.ID))
	_, err = c.FetchOne(ctx, created.ID)
	assert.ErrorIs(t, err, core.ErrNotFound)
	assert.ErrorIs(t, c.Remove(ctx, created.ID), core.ErrNotFound)
}

func TestClient_Project(t *testing.T) {
	ctx := context.Background()
	c := setupClient(t)

	p, err := c.GetProject(ctx)
	require.NoError(t, err, "enveloped bodies are unwrapped")
	assert.Equal(t, core.Project{ID: "p-1", Name: "Untitled Project"}, p)

	p, err = c.UpdateProject(ctx, core.ProjectUpdate{Onboarded: true})
	require.NoError(t, err)
	assert.True(t, p.Onboarded)
	assert.Equal(t, "Untitled Project", p.Name)
}

func TestClient_Health(t *testing.T) {
	c := setupClient(t)
	assert.NoError(t, c.Health(context.Background()))
}

func TestClient_StatusMapping(t *testing.T) {
	tests := []struct {
		status int
		want   error
		kind   core.Kind
	}{
		{http.StatusNotFound, core.ErrNotFound, core.KindNotFound},
		{http.StatusConflict, core.ErrConflict, core.KindConflict},
		{http.StatusPreconditionFailed, core.ErrConflict, core.KindConflict},
		{http.StatusBadRequest, core.ErrValidationFailed, core.KindValidation},
		{http.StatusUnprocessableEntity, core.ErrValidationFailed, core.KindValidation},
		{http.StatusInternalServerError, core.ErrNetwork, core.KindNetwork},
		{http.StatusServiceUnavailable, core.ErrNetwork, core.KindNetwork},
		{http.StatusTeapot, nil, core.KindUnknown},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, tt.status, map[string]any{"detail": "nope"})
			}))
			defer srv.Close()

			_, err := httpapi.New(srv.URL).Replace(context.Background(), "a", core.Specification{Name: "x"})
			require.Error(t, err)
			if tt.want != nil {
				assert.ErrorIs(t, err, tt.want)
			}
			assert.Equal(t, tt.kind, core.KindOf(err))
			assert.Contains(t, err.Error(), "nope")
		})
	}
}

func TestClient_TransportFailure(t *testing.T) {
	srv := httptest.NewServer(newFakeAPI())
	url := srv.URL
	srv.Close()

	c := httpapi.New(url, httpapi.WithTimeout(time.Second))
	_, err := c.FetchAll(context.Background())
	assert.ErrorIs(t, err, core.ErrNetwork)

	state := c.State().(httpapi.ClientState)
	assert.Equal(t, 1, state.Requests)
	assert.Equal(t, 1, state.Failures)
	assert.NotEmpty(t, state.LastError)
}

func TestClient_TimestampFormats(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, []map[string]any{
			{"id": "a", "name": "naive", "date_created": "2024-05-01T12:00:00", "date_updated": "2024-05-01T12:00:00.250000", "date_published": nil},
			{"id": "b", "name": "zoned", "date_created": "2024-05-01T14:00:00+02:00", "date_updated": "2024-05-01T12:00:00Z", "date_published": "2024-05-02T00:00:00Z"},
		})
	}))
	defer srv.Close()

	specs, err := httpapi.New(srv.URL).FetchAll(context.Background())
	require.NoError(t, err)
	require.Len(t, specs, 2)

	noon := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	assert.True(t, specs[0].DateCreated.Equal(noon))
	assert.True(t, specs[0].DateUpdated.Equal(noon.Add(250*time.Millisecond)))
	assert.Nil(t, specs[0].DatePublished)
	assert.True(t, specs[1].DateCreated.Equal(noon))
	require.NotNil(t, specs[1].DatePublished)
}
