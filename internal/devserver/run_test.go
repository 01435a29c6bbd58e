package devserver

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/bundledev/internal/compiler"
	"git.home.luguber.info/inful/bundledev/internal/config"
	"git.home.luguber.info/inful/bundledev/internal/events"
	"git.home.luguber.info/inful/bundledev/internal/hmr"
)

func freeAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	return addr
}

func health(t *testing.T, base string) healthResponse {
	t.Helper()
	var h healthResponse
	resp, err := http.Get(base + "/healthz")
	if err != nil {
		return h
	}
	defer func() { _ = resp.Body.Close() }()
	_ = json.NewDecoder(resp.Body).Decode(&h)
	return h
}

func TestServer_RunHotUpdatesAcceptedModule(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"src/index.js":  "import number from './number';\nnumber();\n",
		"src/number.js": "import { add } from './math';\nexport default function number() { return add(1, 2); }\n",
		"src/math.js":   "export function add(a, b) { return a + b; }\n",
	}
	for name, content := range files {
		p := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	}
	cfg := &config.Config{
		Mode:      config.ModeDevelopment,
		Context:   dir,
		Entry:     config.Entries{{Name: "main", Path: "./src/index.js"}},
		Output:    config.OutputConfig{Path: "dist", Filename: config.DefaultFilename, PublicPath: "/"},
		DevServer: config.DevServerConfig{Hot: config.Bool(true)},
	}

	bus := events.NewBus()
	defer bus.Close()
	c, err := compiler.New(cfg, compiler.WithBus(bus))
	require.NoError(t, err)
	defer c.Close()

	addr := freeAddr(t)
	base := "http://" + addr
	s := NewServer(c, ServerOptions{Addr: addr, Bus: bus, Watch: true})

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool {
		h := health(t, base)
		return h.Hash != "" && h.Watching
	}, 10*time.Second, 20*time.Millisecond, "initial compile and watcher")

	var (
		calls  atomic.Int32
		mu     sync.Mutex
		source string
	)
	rt := hmr.NewRuntime(hmr.WithLoader(hmr.HTTPLoader(base, nil)))
	require.NoError(t, rt.Accept("src/number.js", func(u hmr.Update) error {
		mu.Lock()
		source = string(u.Source)
		mu.Unlock()
		calls.Add(1)
		return nil
	}))
	var reloads atomic.Int32
	client := hmr.NewClient(base, rt, hmr.OnResult(func(_ hmr.Notification, r hmr.Result) {
		if r.Reload {
			reloads.Add(1)
		}
	}))
	clientDone := make(chan error, 1)
	go func() { clientDone <- client.Run(ctx) }()

	require.Eventually(t, func() bool { return health(t, base).Clients == 1 }, 5*time.Second, 20*time.Millisecond)
	require.Eventually(t, func() bool { return rt.Hash() != "" }, 5*time.Second, 20*time.Millisecond)
	initial := rt.Hash()

	p := filepath.Join(dir, "src", "number.js")
	require.NoError(t, os.WriteFile(p, []byte("import { add } from './math';\nexport default function number() { return add(40, 2); }\n"), 0o600))

	require.Eventually(t, func() bool { return calls.Load() >= 1 }, 10*time.Second, 20*time.Millisecond)
	assert.Never(t, func() bool { return calls.Load() > 1 }, 500*time.Millisecond, 20*time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
	assert.Zero(t, reloads.Load())
	assert.NotEqual(t, initial, rt.Hash())
	assert.Equal(t, hmr.StateRegistered, rt.State("src/number.js"))

	mu.Lock()
	assert.Contains(t, source, "add(40, 2)")
	assert.Contains(t, source, `"./math.js"`)
	mu.Unlock()

	cancel()
	require.NoError(t, <-done)
	require.NoError(t, <-clientDone)
}
