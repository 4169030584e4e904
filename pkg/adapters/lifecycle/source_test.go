package lifecycle_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/brewing/pkg/adapters/lifecycle"
	"github.com/aretw0/brewing/pkg/core"
)

func TestSource_Forwards(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	in := make(chan core.Event, 3)
	src := lifecycle.NewSource(in, lifecycle.WithFilter(func(e core.Event) bool {
		return e.Type != core.EventUpdate
	}))
	require.NoError(t, src.Start(ctx))

	in <- core.Event{Type: core.EventInsert, ID: "a", Version: 1}
	in <- core.Event{Type: core.EventUpdate, ID: "a", Version: 2}
	in <- core.Event{Type: core.EventConfirm, ID: "a", Version: 3}
	close(in)

	var got []string
	timeout := time.After(2 * time.Second)
	for {
		select {
		case e, ok := <-src.Events():
			if !ok {
				assert.Equal(t, []string{"INSERT a v1", "CONFIRM a v3"}, got)
				return
			}
			got = append(got, e.String())
		case <-timeout:
			t.Fatal("timeout waiting for events")
		}
	}
}

func TestSource_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	src := lifecycle.NewSource(make(chan core.Event))
	require.NoError(t, src.Start(ctx))

	cancel()
	select {
	case _, ok := <-src.Events():
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("source did not close")
	}
}
