package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jimsnab/go-lane"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLocal(t *testing.T) *Local {
	l := lane.NewTestingLane(context.Background())
	return NewLocal(l, 1)
}

func nextEvent(t *testing.T, w Watcher) Event {
	select {
	case ev, ok := <-w.Events():
		require.True(t, ok, "watch channel closed")
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return Event{}
}

func TestLocalPutRead(t *testing.T) {
	s := newTestLocal(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "net/nodes/n1/name", "Node One"))
	require.NoError(t, s.Put(ctx, "net/nodes/n2/name", "Node Two"))
	require.NoError(t, s.Put(ctx, "other/key", "x"))

	entries, err := s.Read(ctx, "net")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"net/nodes/n1/name": "Node One",
		"net/nodes/n2/name": "Node Two",
	}, entries)

	all, err := s.Read(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	assert.Error(t, s.Put(ctx, "bad/*/key", "x"))
}

func TestLocalWatch(t *testing.T) {
	s := newTestLocal(t)
	ctx := context.Background()

	w, err := s.Watch(ctx, "net")
	require.NoError(t, err)
	defer w.Cancel()

	assert.Equal(t, EventConnected, nextEvent(t, w).Type)

	require.NoError(t, s.Put(ctx, "elsewhere/k", "ignored"))
	require.NoError(t, s.Put(ctx, "net/a", "1"))
	require.NoError(t, s.Delete(ctx, "net/a"))
	require.NoError(t, s.Delete(ctx, "net/a"))

	assert.Equal(t, Event{Type: EventPut, Path: "net/a", Value: "1"}, nextEvent(t, w))
	assert.Equal(t, Event{Type: EventDelete, Path: "net/a"}, nextEvent(t, w))

	select {
	case ev := <-w.Events():
		t.Fatalf("unexpected event %v", ev)
	default:
	}
}

func TestLocalDeletePrefix(t *testing.T) {
	s := newTestLocal(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "net/x/a", "1"))
	require.NoError(t, s.Put(ctx, "net/x/b/c", "2"))
	require.NoError(t, s.Put(ctx, "net/y", "3"))

	require.NoError(t, s.DeletePrefix(ctx, "net/x"))

	entries, err := s.Read(ctx, "net")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"net/y": "3"}, entries)
}

func TestLocalOffline(t *testing.T) {
	s := newTestLocal(t)
	ctx := context.Background()

	w, err := s.Watch(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, EventConnected, nextEvent(t, w).Type)

	s.SetOnline(false)
	assert.Equal(t, EventDisconnected, nextEvent(t, w).Type)
	_, open := <-w.Events()
	assert.False(t, open)

	assert.ErrorIs(t, s.Put(ctx, "a", "1"), ErrOffline)
	_, err = s.Read(ctx, "")
	assert.ErrorIs(t, err, ErrOffline)

	s.SetOnline(true)
	assert.NoError(t, s.Put(ctx, "a", "1"))

	// cancelling a dropped watcher is harmless
	w.Cancel()
}

func TestLocalWatchOverflow(t *testing.T) {
	s := newTestLocal(t)
	s.SetWatchBuffer(2)
	ctx := context.Background()

	w, err := s.Watch(ctx, "")
	require.NoError(t, err)

	for _, k := range []string{"a", "b", "c", "d"} {
		require.NoError(t, s.Put(ctx, k, "v"))
	}

	count := 0
	for range w.Events() {
		count++
	}
	assert.LessOrEqual(t, count, 2)
}

func TestTokenPathToPath(t *testing.T) {
	assert.Equal(t, "x/y", tokenPathToPath("/x/y"))
	assert.Equal(t, "a/b/c", tokenPathToPath(`/a\sb/c`))
	assert.Equal(t, `a\b`, tokenPathToPath(`/a\Sb`))
}

func TestLocalAsteriskSegmentIsLiteral(t *testing.T) {
	s := newTestLocal(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "x/a*b/c", "1"))
	require.NoError(t, s.Put(ctx, "x/aZZb/c", "2"))

	entries, err := s.Read(ctx, "x/a*b")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"x/a*b/c": "1"}, entries)

	require.NoError(t, s.DeletePrefix(ctx, "x/a*b"))

	entries, err = s.Read(ctx, "x")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"x/aZZb/c": "2"}, entries)
}

func TestLocalLoadDropsWatchers(t *testing.T) {
	ctx := context.Background()
	filename := filepath.Join(t.TempDir(), "cns.db")

	src := newTestLocal(t)
	require.NoError(t, src.Put(ctx, "net/a", "1"))
	require.NoError(t, src.Save(filename))

	s := newTestLocal(t)
	require.NoError(t, s.Put(ctx, "net/old", "x"))
	w, err := s.Watch(ctx, "net")
	require.NoError(t, err)
	assert.Equal(t, EventConnected, nextEvent(t, w).Type)

	require.NoError(t, s.Load(filename))

	assert.Equal(t, EventDisconnected, nextEvent(t, w).Type)
	_, open := <-w.Events()
	assert.False(t, open)

	entries, err := s.Read(ctx, "net")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"net/a": "1"}, entries)

	// the loaded content is clean
	other := filepath.Join(t.TempDir(), "other.db")
	require.NoError(t, s.Save(other))
	_, err = os.Stat(other)
	assert.True(t, os.IsNotExist(err))
}
