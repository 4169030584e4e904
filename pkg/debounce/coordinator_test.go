package debounce_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/brewing/pkg/adapters/memory"
	"github.com/aretw0/brewing/pkg/collection"
	"github.com/aretw0/brewing/pkg/core"
	"github.com/aretw0/brewing/pkg/debounce"
)

func setup(t *testing.T) (*debounce.Coordinator, *collection.Store, *memory.Adapter) {
	t.Helper()
	m := memory.New()
	now := time.Now()
	m.Seed(core.Specification{ID: "a", Name: "Feature", DateCreated: now, DateUpdated: now})
	s := collection.New(m)
	require.NoError(t, s.Load(context.Background()))

	c := debounce.New(s, debounce.WithDelay(30*time.Millisecond))
	t.Cleanup(c.Close)
	return c, s, m
}

func TestCoordinator_Coalesces(t *testing.T) {
	c, s, m := setup(t)
	key := debounce.Key{ID: "a", Field: debounce.FieldDraftContent}

	for _, v := range []string{"v1", "v2", "v3"} {
		require.NoError(t, c.Schedule(key, v, 0))
	}

	require.Eventually(t, func() bool {
		return len(m.CallsOf(memory.OpReplace)) == 1
	}, time.Second, 5*time.Millisecond)

	tx := c.Last(key)
	require.NotNil(t, tx)
	require.NoError(t, tx.Wait(context.Background()))

	time.Sleep(100 * time.Millisecond)
	calls := m.CallsOf(memory.OpReplace)
	require.Len(t, calls, 1)
	assert.Equal(t, "v3", core.StringValue(calls[0].Spec.DraftContent))

	got, _ := s.Get("a")
	assert.Equal(t, "v3", core.StringValue(got.DraftContent))
}

func TestCoordinator_Cancel(t *testing.T) {
	c, _, m := setup(t)
	key := debounce.Key{ID: "a", Field: debounce.FieldName}

	require.NoError(t, c.Schedule(key, "Renamed", 0))
	v, ok := c.Pending(key)
	require.True(t, ok)
	assert.Equal(t, "Renamed", v)

	assert.True(t, c.Cancel(key))
	assert.False(t, c.Cancel(key))

	time.Sleep(100 * time.Millisecond)
	assert.Empty(t, m.CallsOf(memory.OpReplace))
	assert.Nil(t, c.Last(key))
}

func TestCoordinator_SkipsStoredValue(t *testing.T) {
	c, _, m := setup(t)
	key := debounce.Key{ID: "a", Field: debounce.FieldName}

	require.NoError(t, c.Schedule(key, "Feature", 0))
	time.Sleep(100 * time.Millisecond)

	assert.Empty(t, m.CallsOf(memory.OpReplace))
	st := c.State().(debounce.CoordinatorState)
	assert.Equal(t, uint64(1), st.Skipped)
	assert.Equal(t, uint64(0), st.Issued)
}

func TestCoordinator_SkipsOptimisticValue(t *testing.T) {
	c, s, m := setup(t)
	key := debounce.Key{ID: "a", Field: debounce.FieldName}
	m.Hold(memory.OpReplace)

	tx, err := s.Update("a", func(d *core.Specification) { d.Name = "Renamed" })
	require.NoError(t, err)
	require.Eventually(t, func() bool { return m.Waiting() == 1 }, time.Second, time.Millisecond)

	require.NoError(t, c.Schedule(key, "Renamed", 0))
	require.Eventually(t, func() bool {
		return c.State().(debounce.CoordinatorState).Skipped == 1
	}, time.Second, 5*time.Millisecond)

	// The optimistic value is rolled back; the skipped edit is not replayed.
	m.FailNext(memory.OpReplace, core.ErrNetwork)
	m.Resume()
	require.ErrorIs(t, tx.Wait(context.Background()), core.ErrNetwork)

	time.Sleep(100 * time.Millisecond)
	got, _ := s.Get("a")
	assert.Equal(t, "Feature", got.Name)
	assert.Len(t, m.CallsOf(memory.OpReplace), 1)
	assert.Nil(t, c.Last(key))
}

func TestCoordinator_ConvergedByStore(t *testing.T) {
	c, s, m := setup(t)
	key := debounce.Key{ID: "a", Field: debounce.FieldSummary}

	require.NoError(t, c.Schedule(key, "Short pitch", time.Hour))

	tx, err := s.Update("a", func(d *core.Specification) { d.Summary = core.String("Short pitch") })
	require.NoError(t, err)
	require.NoError(t, tx.Wait(context.Background()))

	_, ok := c.Pending(key)
	assert.False(t, ok)
	assert.Len(t, m.CallsOf(memory.OpReplace), 1)
}

func TestCoordinator_Flush(t *testing.T) {
	c, s, _ := setup(t)
	key := debounce.Key{ID: "a", Field: debounce.FieldEmoji}

	require.NoError(t, c.Schedule(key, "🍺", time.Hour))
	tx, err := c.Flush(key)
	require.NoError(t, err)
	require.NotNil(t, tx)
	require.NoError(t, tx.Wait(context.Background()))

	got, _ := s.Get("a")
	assert.Equal(t, "🍺", core.StringValue(got.Emoji))

	tx, err = c.Flush(key)
	assert.NoError(t, err)
	assert.Nil(t, tx)
}

func TestCoordinator_Close(t *testing.T) {
	c, _, m := setup(t)
	key := debounce.Key{ID: "a", Field: debounce.FieldName}

	require.NoError(t, c.Schedule(key, "Never", 0))
	c.Close()

	assert.ErrorIs(t, c.Schedule(key, "Again", 0), debounce.ErrClosed)
	time.Sleep(100 * time.Millisecond)
	assert.Empty(t, m.CallsOf(memory.OpReplace))
}

func TestCoordinator_UnknownField(t *testing.T) {
	c, _, _ := setup(t)
	err := c.Schedule(debounce.Key{ID: "a", Field: "date_created"}, "x", 0)
	assert.ErrorIs(t, err, debounce.ErrUnknownField)
}
