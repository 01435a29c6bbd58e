package hmr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRuntime_AcceptRegistersModule(t *testing.T) {
	rt := NewRuntime()
	assert.Equal(t, StateUnregistered, rt.State("src/counter.js"))

	require.NoError(t, rt.Accept("src/counter.js", func(Update) error { return nil }))
	assert.Equal(t, StateRegistered, rt.State("src/counter.js"))

	assert.Error(t, rt.Accept("", func(Update) error { return nil }))
	assert.Error(t, rt.Accept("src/x.js", nil))
}

func TestRuntime_HandlerInvokedExactlyOncePerNotification(t *testing.T) {
	rt := NewRuntime()
	calls := 0
	var dom []string
	require.NoError(t, rt.Accept("src/counter.js", func(u Update) error {
		calls++
		dom = append(dom, "counter@"+u.Hash)
		return nil
	}))

	res := rt.Apply(UpdateNotification("h1", []ModuleUpdate{{ID: "src/counter.js", Kind: KindJS}}))

	assert.Equal(t, 1, calls)
	assert.Equal(t, []string{"counter@h1"}, dom, "handler mutations are visible right after Apply")
	assert.False(t, res.Reload)
	assert.Equal(t, []string{"src/counter.js"}, res.Applied)
	assert.Equal(t, StateRegistered, rt.State("src/counter.js"))
	assert.Equal(t, "h1", rt.Hash())

	rt.Apply(UpdateNotification("h2", []ModuleUpdate{{ID: "src/counter.js", Kind: KindJS}}))
	assert.Equal(t, 2, calls)
}

func TestRuntime_UnacceptedModuleForcesReload(t *testing.T) {
	rt := NewRuntime()
	called := false
	require.NoError(t, rt.Accept("src/a.js", func(Update) error { called = true; return nil }))

	res := rt.Apply(UpdateNotification("h", []ModuleUpdate{
		{ID: "src/a.js", Kind: KindJS},
		{ID: "src/b.js", Kind: KindJS},
	}))

	assert.True(t, res.Reload)
	assert.Contains(t, res.Reason, "src/b.js")
	assert.False(t, called, "no handler runs when the update cannot be applied completely")
	assert.Equal(t, StateRegistered, rt.State("src/a.js"))
	assert.Equal(t, StateUnregistered, rt.State("src/b.js"))
}

func TestRuntime_StyleModulesNeedNoHandler(t *testing.T) {
	rt := NewRuntime()
	res := rt.Apply(UpdateNotification("h", []ModuleUpdate{{ID: "src/main.css", Kind: KindCSS}}))
	assert.False(t, res.Reload)
	assert.Equal(t, []string{"src/main.css"}, res.Styles)
	assert.Equal(t, StateUnregistered, rt.State("src/main.css"))
}

func TestRuntime_FailingHandlerMarksFailedAndReloads(t *testing.T) {
	tests := []struct {
		name    string
		handler Handler
	}{
		{"error", func(Update) error { return errors.New("boom") }},
		{"panic", func(Update) error { panic("boom") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rt := NewRuntime()
			require.NoError(t, rt.Accept("src/a.js", tt.handler))

			res := rt.Apply(UpdateNotification("h", []ModuleUpdate{{ID: "src/a.js", Kind: KindJS}}))
			assert.True(t, res.Reload)
			assert.Equal(t, []string{"src/a.js"}, res.Failed)
			assert.Equal(t, StateFailed, rt.State("src/a.js"))

			again := rt.Apply(UpdateNotification("h2", []ModuleUpdate{{ID: "src/a.js", Kind: KindJS}}))
			assert.True(t, again.Reload, "a failed module is no longer accepted")

			require.NoError(t, rt.Accept("src/a.js", func(Update) error { return nil }))
			assert.Equal(t, StateRegistered, rt.State("src/a.js"))
		})
	}
}

func TestRuntime_PanickingHandlerReportsRuntimeError(t *testing.T) {
	rt := NewRuntime()
	require.NoError(t, rt.Accept("src/a.js", func(Update) error { panic("boom") }))

	res := rt.Apply(UpdateNotification("h", []ModuleUpdate{{ID: "src/a.js", Kind: KindJS}}))
	assert.True(t, res.Reload)
	assert.Contains(t, res.Reason, "[runtime] accept handler panicked: boom")
}

func TestRuntime_StateIsApplyingDuringHandler(t *testing.T) {
	rt := NewRuntime()
	var during State
	require.NoError(t, rt.Accept("src/a.js", func(Update) error {
		during = rt.State("src/a.js")
		return nil
	}))
	rt.Apply(UpdateNotification("h", []ModuleUpdate{{ID: "src/a.js", Kind: KindJS}}))
	assert.Equal(t, StateApplying, during)
}

func TestRuntime_LoaderSuppliesSource(t *testing.T) {
	rt := NewRuntime(WithLoader(func(id, hash string) ([]byte, error) {
		if id == "src/broken.js" {
			return nil, errors.New("404")
		}
		return []byte("export default " + hash), nil
	}))
	var got string
	require.NoError(t, rt.Accept("src/a.js", func(u Update) error { got = string(u.Source); return nil }))
	require.NoError(t, rt.Accept("src/broken.js", func(Update) error { return nil }))

	res := rt.Apply(UpdateNotification("h9", []ModuleUpdate{{ID: "src/a.js", Kind: KindJS}}))
	assert.False(t, res.Reload)
	assert.Equal(t, "export default h9", got)

	res = rt.Apply(UpdateNotification("h10", []ModuleUpdate{{ID: "src/broken.js", Kind: KindJS}}))
	assert.True(t, res.Reload)
	assert.Equal(t, StateFailed, rt.State("src/broken.js"))
}

func TestRuntime_OtherNotifications(t *testing.T) {
	rt := NewRuntime()

	assert.Equal(t, Result{}, rt.Apply(HashNotification("a")))
	assert.Equal(t, Result{}, rt.Apply(HashNotification("a")))
	assert.True(t, rt.Apply(HashNotification("b")).Reload, "a different replayed hash means updates were missed")

	res := rt.Apply(ErrorNotification([]string{"src/a.js:1:1: syntax error"}))
	assert.False(t, res.Reload)
	assert.Equal(t, []string{"src/a.js:1:1: syntax error"}, res.Errors)

	assert.True(t, rt.Apply(ReloadNotification("c")).Reload)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "unregistered", StateUnregistered.String())
	assert.Equal(t, "applying", StateApplying.String())
	assert.Equal(t, "State(9)", State(9).String())
}
