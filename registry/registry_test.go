package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/raykavin/vegaview/core"
	"github.com/raykavin/vegaview/logger"
	zladapter "github.com/raykavin/vegaview/logger/zerolog"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func testLogger() logger.Logger {
	nop := zerolog.Nop()
	return zladapter.NewAdapter(&nop)
}

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	reg, err := New(testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { reg.Close() })
	return reg
}

func TestRegistry_PutGet(t *testing.T) {
	reg := newTestRegistry(t)
	spec := json.RawMessage(`{"mark":"bar"}`)

	revision, err := reg.Put("viz-1", spec)
	require.NoError(t, err)
	require.Equal(t, int64(1), revision)

	sess, err := reg.Get("viz-1")
	require.NoError(t, err)
	require.Equal(t, "viz-1", sess.ID)
	require.Equal(t, int64(1), sess.Revision)
	require.JSONEq(t, string(spec), string(sess.Spec))
	require.False(t, sess.CreatedAt.IsZero())
	require.Equal(t, sess.CreatedAt, sess.UpdatedAt)
}

func TestRegistry_PutBumpsRevision(t *testing.T) {
	reg := newTestRegistry(t)

	_, err := reg.Put("viz-1", json.RawMessage(`{"mark":"bar"}`))
	require.NoError(t, err)

	created, err := reg.Get("viz-1")
	require.NoError(t, err)

	revision, err := reg.Put("viz-1", json.RawMessage(`{"mark":"line"}`))
	require.NoError(t, err)
	require.Equal(t, int64(2), revision)

	sess, err := reg.Get("viz-1")
	require.NoError(t, err)
	require.JSONEq(t, `{"mark":"line"}`, string(sess.Spec))
	require.Equal(t, created.CreatedAt, sess.CreatedAt)
	require.False(t, sess.UpdatedAt.Before(sess.CreatedAt))
}

func TestRegistry_GetUnknown(t *testing.T) {
	reg := newTestRegistry(t)

	_, err := reg.Get("nope")
	require.ErrorIs(t, err, core.ErrNotFound)
}

func TestRegistry_ConcurrentPutsSameID(t *testing.T) {
	reg := newTestRegistry(t)
	const callers = 50

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			spec := json.RawMessage(fmt.Sprintf(`{"caller":%d}`, i))
			_, err := reg.Put("shared", spec)
			require.NoError(t, err)
		}(i)
	}
	wg.Wait()

	sess, err := reg.Get("shared")
	require.NoError(t, err)
	require.Equal(t, int64(callers), sess.Revision)
}

func TestRegistry_ConcurrentPutsDistinctIDs(t *testing.T) {
	reg := newTestRegistry(t)
	const callers = 20

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("viz-%d", i)
			_, err := reg.Put(id, json.RawMessage(`{"mark":"bar"}`))
			require.NoError(t, err)
		}(i)
	}
	wg.Wait()

	require.Equal(t, callers, reg.Len())
	for i := 0; i < callers; i++ {
		sess, err := reg.Get(fmt.Sprintf("viz-%d", i))
		require.NoError(t, err)
		require.Equal(t, int64(1), sess.Revision)
	}
}

func TestRegistry_ListCreationOrder(t *testing.T) {
	reg := newTestRegistry(t)

	for _, id := range []string{"c", "a", "b"} {
		_, err := reg.Put(id, json.RawMessage(`{}`))
		require.NoError(t, err)
	}

	// Updating must not change creation order
	_, err := reg.Put("a", json.RawMessage(`{"mark":"bar"}`))
	require.NoError(t, err)

	require.Equal(t, []string{"c", "a", "b"}, reg.List())
}

func TestRegistry_Remove(t *testing.T) {
	reg := newTestRegistry(t)

	_, err := reg.Put("viz-1", json.RawMessage(`{}`))
	require.NoError(t, err)

	require.NoError(t, reg.Remove("viz-1"))
	require.Equal(t, 0, reg.Len())

	_, err = reg.Get("viz-1")
	require.ErrorIs(t, err, core.ErrNotFound)

	require.ErrorIs(t, reg.Remove("viz-1"), core.ErrNotFound)
}

func TestRegistry_WatchUnblocksOnPut(t *testing.T) {
	reg := newTestRegistry(t)

	_, err := reg.Put("viz-1", json.RawMessage(`{"mark":"bar"}`))
	require.NoError(t, err)

	type result struct {
		sess core.Session
		ok   bool
		err  error
	}
	done := make(chan result, 1)
	go func() {
		sess, ok, err := reg.Watch(context.Background(), "viz-1", 1, 5*time.Second)
		done <- result{sess, ok, err}
	}()

	// The watcher must still be parked before the next put
	select {
	case <-done:
		t.Fatal("watch returned before a new revision existed")
	case <-time.After(50 * time.Millisecond):
	}

	_, err = reg.Put("viz-1", json.RawMessage(`{"mark":"line"}`))
	require.NoError(t, err)

	select {
	case res := <-done:
		require.NoError(t, res.err)
		require.True(t, res.ok)
		require.Equal(t, int64(2), res.sess.Revision)
		require.JSONEq(t, `{"mark":"line"}`, string(res.sess.Spec))
	case <-time.After(time.Second):
		t.Fatal("watch did not return after put")
	}
}

func TestRegistry_WatchReturnsImmediatelyWhenStale(t *testing.T) {
	reg := newTestRegistry(t)

	_, err := reg.Put("viz-1", json.RawMessage(`{"mark":"bar"}`))
	require.NoError(t, err)
	_, err = reg.Put("viz-1", json.RawMessage(`{"mark":"line"}`))
	require.NoError(t, err)

	sess, ok, err := reg.Watch(context.Background(), "viz-1", 1, time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(2), sess.Revision)
}

func TestRegistry_WatchTimeout(t *testing.T) {
	reg := newTestRegistry(t)

	_, err := reg.Put("viz-1", json.RawMessage(`{}`))
	require.NoError(t, err)

	_, ok, err := reg.Watch(context.Background(), "viz-1", 1, 20*time.Millisecond)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRegistry_WatchUnknownID(t *testing.T) {
	reg := newTestRegistry(t)

	_, _, err := reg.Watch(context.Background(), "nope", 0, 20*time.Millisecond)
	require.ErrorIs(t, err, core.ErrNotFound)
}

func TestRegistry_WatchCanceled(t *testing.T) {
	reg := newTestRegistry(t)

	_, err := reg.Put("viz-1", json.RawMessage(`{}`))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, _, err = reg.Watch(ctx, "viz-1", 1, 5*time.Second)
	require.ErrorIs(t, err, context.Canceled)
}

func TestRegistry_WatchWokenByRemove(t *testing.T) {
	reg := newTestRegistry(t)

	_, err := reg.Put("viz-1", json.RawMessage(`{}`))
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, _, err := reg.Watch(context.Background(), "viz-1", 1, 5*time.Second)
		done <- err
	}()

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, reg.Remove("viz-1"))

	select {
	case err := <-done:
		require.ErrorIs(t, err, core.ErrNotFound)
	case <-time.After(time.Second):
		t.Fatal("watch was not woken by remove")
	}
}

func TestRegistry_LastUpdated(t *testing.T) {
	reg := newTestRegistry(t)

	_, found := reg.LastUpdated()
	require.False(t, found)

	_, err := reg.Put("viz-1", json.RawMessage(`{}`))
	require.NoError(t, err)

	last, found := reg.LastUpdated()
	require.True(t, found)
	require.WithinDuration(t, time.Now().UTC(), last, time.Second)
}
