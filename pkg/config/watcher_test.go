package config

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type changes struct {
	mu    sync.Mutex
	paths []string
}

func (c *changes) add(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paths = append(c.paths, path)
}

func (c *changes) get() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.paths...)
}

func TestWatcherDebouncesWrites(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "scenario.yaml")
	writeFile(t, target, "benign: {}")

	var got changes
	w, err := NewWatcher(WatcherConfig{Root: dir, OnChange: got.add, Debounce: 100 * time.Millisecond})
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	defer func() { require.NoError(t, w.Stop()) }()

	for range 3 {
		writeFile(t, target, "benign: {num_employees: 2}")
	}
	writeFile(t, filepath.Join(dir, "notes.txt"), "not a scenario")

	require.Eventually(t, func() bool { return len(got.get()) > 0 }, 5*time.Second, 10*time.Millisecond)
	time.Sleep(200 * time.Millisecond)
	for _, path := range got.get() {
		assert.Equal(t, filepath.Clean(target), path)
	}
}

func TestWatcherStopIsIdempotent(t *testing.T) {
	w, err := NewWatcher(WatcherConfig{Root: t.TempDir(), OnChange: func(string) {}})
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	require.NoError(t, w.Stop())
	require.NoError(t, w.Stop())
}

func TestWatcherStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	w, err := NewWatcher(WatcherConfig{Root: t.TempDir(), OnChange: func(string) {}})
	require.NoError(t, err)
	require.NoError(t, w.Start(ctx))
	cancel()
	select {
	case <-w.done:
	case <-time.After(5 * time.Second):
		t.Fatal("watch loop did not exit")
	}
	require.NoError(t, w.Stop())
}

func TestWatcherExpiredTimerKeepsNewerEntry(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scenario.yaml")
	w, err := NewWatcher(WatcherConfig{Root: dir, OnChange: func(string) {}, Debounce: time.Hour})
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))

	w.schedule(path)
	w.mu.Lock()
	current := w.timers[path]
	w.mu.Unlock()
	require.NotNil(t, current)

	stale := time.NewTimer(time.Hour)
	stale.Stop()
	w.pending.Add(1)
	w.fire(path, &stale)

	w.mu.Lock()
	assert.Same(t, current, w.timers[path])
	w.mu.Unlock()

	require.NoError(t, w.Stop())
	w.mu.Lock()
	assert.Empty(t, w.timers)
	w.mu.Unlock()
}
