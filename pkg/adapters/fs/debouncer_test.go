package fs

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/brewing/pkg/core"
)

func TestDebouncer_CollapsesBursts(t *testing.T) {
	d := newDebouncer(20 * time.Millisecond)

	var mu sync.Mutex
	var got []string
	deliver := func(e core.Event) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, e.ID)
	}
	for range 5 {
		d.add(core.Event{Type: core.EventExternal, ID: "login"}, deliver)
	}
	d.add(core.Event{Type: core.EventExternal, ID: "signup"}, deliver)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 2
	}, time.Second, 5*time.Millisecond)
	assert.True(t, d.stopAndWait(time.Second))

	mu.Lock()
	defer mu.Unlock()
	assert.ElementsMatch(t, []string{"login", "signup"}, got)
}

func TestDebouncer_StopDropsPending(t *testing.T) {
	d := newDebouncer(time.Hour)
	delivered := false
	d.add(core.Event{ID: "login"}, func(core.Event) { delivered = true })

	assert.True(t, d.stopAndWait(time.Second))
	d.add(core.Event{ID: "login"}, func(core.Event) { delivered = true })
	assert.False(t, delivered)
}

func TestDebouncer_StopTimesOutOnSlowDelivery(t *testing.T) {
	d := newDebouncer(time.Millisecond)
	release := make(chan struct{})
	started := make(chan struct{})
	d.add(core.Event{ID: "login"}, func(core.Event) {
		close(started)
		<-release
	})
	<-started

	assert.False(t, d.stopAndWait(20*time.Millisecond))
	close(release)
	assert.True(t, d.stopAndWait(time.Second))
}
