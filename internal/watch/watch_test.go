package watch

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/bundledev/internal/events"
)

type recordingTarget struct {
	mu      sync.Mutex
	reasons []string
	ch      chan string
}

func newRecordingTarget() *recordingTarget {
	return &recordingTarget{ch: make(chan string, 16)}
}

func (r *recordingTarget) Invalidate(reason string) error {
	r.mu.Lock()
	r.reasons = append(r.reasons, reason)
	r.mu.Unlock()
	r.ch <- reason
	return nil
}

func startWatcher(t *testing.T, cfg Config) *Watcher {
	t.Helper()
	w, err := New(cfg)
	require.NoError(t, err)
	go func() { _ = w.Run(t.Context()) }()
	select {
	case <-w.Ready():
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for watcher")
	}
	return w
}

func write(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func TestWatcher_BurstOfWritesInvalidatesOnce(t *testing.T) {
	root := t.TempDir()
	write(t, filepath.Join(root, "src", "a.js"), "1")
	target := newRecordingTarget()
	bus := events.NewBus()
	defer bus.Close()
	changes, unsubscribe := events.Subscribe[events.SourceChanged](bus, 4)
	defer unsubscribe()

	startWatcher(t, Config{Root: root, Target: target, Bus: bus, QuietWindow: 50 * time.Millisecond})

	for i := range 5 {
		write(t, filepath.Join(root, "src", "a.js"), string(rune('a'+i)))
		time.Sleep(5 * time.Millisecond)
	}

	select {
	case reason := <-target.ch:
		assert.Equal(t, "changed: src/a.js", reason)
	case <-time.After(2 * time.Second):
		t.Fatal("no invalidation")
	}
	select {
	case evt := <-changes:
		assert.Equal(t, []string{"src/a.js"}, evt.Paths)
	case <-time.After(time.Second):
		t.Fatal("no source change event")
	}
	select {
	case extra := <-target.ch:
		t.Fatalf("unexpected second invalidation: %s", extra)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestWatcher_NewDirectoriesAreWatched(t *testing.T) {
	root := t.TempDir()
	target := newRecordingTarget()
	startWatcher(t, Config{Root: root, Target: target, QuietWindow: 30 * time.Millisecond})

	require.NoError(t, os.MkdirAll(filepath.Join(root, "lib"), 0o755))
	select {
	case <-target.ch:
	case <-time.After(2 * time.Second):
		t.Fatal("directory creation not seen")
	}

	write(t, filepath.Join(root, "lib", "b.js"), "x")
	select {
	case reason := <-target.ch:
		assert.Contains(t, reason, "lib/b.js")
	case <-time.After(2 * time.Second):
		t.Fatal("write in new directory not seen")
	}
}

func TestWatcher_IgnoredPathsDoNotInvalidate(t *testing.T) {
	root := t.TempDir()
	write(t, filepath.Join(root, ".gitignore"), "*.log\n")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "dist"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "node_modules", "lib"), 0o755))
	target := newRecordingTarget()
	startWatcher(t, Config{
		Root:        root,
		OutDirs:     []string{filepath.Join(root, "dist")},
		Target:      target,
		QuietWindow: 30 * time.Millisecond,
	})

	write(t, filepath.Join(root, "dist", "main.js"), "out")
	write(t, filepath.Join(root, "debug.log"), "log")
	write(t, filepath.Join(root, ".index.js.swp"), "swap")
	write(t, filepath.Join(root, "node_modules", "lib", "index.js"), "dep")

	select {
	case reason := <-target.ch:
		t.Fatalf("unexpected invalidation: %s", reason)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestIgnorer(t *testing.T) {
	root := t.TempDir()
	write(t, filepath.Join(root, ".gitignore"), "coverage/\n*.map\n")
	ig, err := NewIgnorer(root, filepath.Join(root, "dist"))
	require.NoError(t, err)

	assert.True(t, ig.Ignored(filepath.Join(root, "dist", "main.js"), false))
	assert.True(t, ig.Ignored(filepath.Join(root, "coverage"), true))
	assert.True(t, ig.Ignored(filepath.Join(root, "src", "main.js.map"), false))
	assert.True(t, ig.Ignored(filepath.Join(root, "src", "a.js~"), false))
	assert.True(t, ig.Ignored(filepath.Join(root, "node_modules"), true))
	assert.False(t, ig.Ignored(filepath.Join(root, "src", "main.js"), false))
	assert.False(t, ig.Ignored(filepath.Join(root, "distribution.js"), false))
}

func TestReason(t *testing.T) {
	assert.Equal(t, "changed: a, b", reason([]string{"a", "b"}))
	assert.Equal(t, "changed: a, b, c, ...", reason([]string{"a", "b", "c", "d"}))
}

func TestNew_RequiresTarget(t *testing.T) {
	_, err := New(Config{Root: t.TempDir()})
	assert.Error(t, err)
}
