package app

import (
	"context"
	"testing"

	"github.com/GriffinCanCode/AgentOS/apphost/internal/resource"
	"github.com/GriffinCanCode/AgentOS/apphost/internal/sandbox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const shopEntry = `<html>
<head><link rel="stylesheet" href="style.css"><title>Shop</title></head>
<body>
	<div id="root">loading</div>
	<script src="a.js"></script>
	<script>inline</script>
</body>
</html>`

func newTestApp(t *testing.T, scripts ...*resource.ScriptManager) (*App, *Lifecycle) {
	t.Helper()
	entry, err := resource.NewTemplate(shopEntry, "http://apps.test/shop/index.html")
	require.NoError(t, err)

	lc := NewLifecycle()
	deps := Deps{
		Engine:    sandbox.NewEngine(sandbox.NewEnvironment(), sandbox.DefaultEngineOptions()),
		Lifecycle: lc,
		Externals: func() map[string]any { return map[string]any{"react": "react-stub"} },
	}
	info := &Info{
		Name:  "shop",
		Entry: "http://apps.test/shop/index.html",
		Props: map[string]any{"user": "ann"},
	}
	resources := Resources{
		JS:   scripts,
		Link: []*resource.StyleManager{resource.NewStyle(".x{color:red}", "http://apps.test/shop/style.css")},
	}
	return New(deps, info, entry, resources, true), lc
}

func TestMountRendersMarkupAndRunsScriptsInOrder(t *testing.T) {
	a, lc := newTestApp(t,
		resource.NewScript(`order = (typeof order === "undefined" ? "" : order) + "a";`, "http://apps.test/shop/a.js"),
		resource.NewScript(`order = order + "b"; document.getElementById("root").textContent = "rendered";`, ""),
	)
	var mounted []string
	lc.BeforeMount.Tap("test", func(ev Event) { mounted = append(mounted, "before") })
	lc.AfterMount.Tap("test", func(ev Event) { mounted = append(mounted, "after:"+ev.App.Name) })

	require.NoError(t, a.Mount(context.Background()))

	assert.True(t, a.Mounted())
	assert.Equal(t, []string{"before", "after:shop"}, mounted)

	node := a.HTMLNode()
	require.NotNil(t, node)
	assert.True(t, node.Attached(a.Engine().Document()))
	assert.Equal(t, a.ContainerID(), node.ID)

	markup := node.HTML()
	assert.Contains(t, markup, `<style data-href="http://apps.test/shop/style.css">.x{color:red}</style>`)
	assert.NotContains(t, markup, "<script")
	assert.NotContains(t, markup, "<link")
	assert.Equal(t, "rendered", node.First("#root").Text())

	order, _ := a.Engine().Lookup("order")
	assert.Equal(t, "ab", order)

	require.NoError(t, a.Mount(context.Background()))
	assert.Len(t, mounted, 2, "mounting twice is a no-op")
}

func TestMountSkipsModuleScripts(t *testing.T) {
	a, _ := newTestApp(t,
		resource.NewScript(`throw new Error("must not run")`, "http://apps.test/shop/m.js").WithMimeType("module"),
		resource.NewScript(`ran = true`, "http://apps.test/shop/a.js"),
	)
	require.NoError(t, a.Mount(context.Background()))

	ran, _ := a.Engine().Lookup("ran")
	assert.Equal(t, true, ran)
}

func TestMountFailureFiresErrorHook(t *testing.T) {
	a, lc := newTestApp(t, resource.NewScript(`throw new Error("boom")`, "http://apps.test/shop/a.js"))

	var failures []error
	lc.ErrorMountApp.Tap("test", func(ev Event) { failures = append(failures, ev.Err) })
	afterMount := 0
	lc.AfterMount.Tap("test", func(Event) { afterMount++ })

	err := a.Mount(context.Background())
	require.Error(t, err)

	var scriptErr *sandbox.ScriptError
	assert.ErrorAs(t, err, &scriptErr)
	assert.Equal(t, "http://apps.test/shop/a.js", scriptErr.URL)

	require.Len(t, failures, 1)
	assert.Equal(t, 0, afterMount)
	assert.False(t, a.Mounted())
	assert.Nil(t, a.HTMLNode())
	assert.Equal(t, 0, a.Engine().Document().Len())
}

func TestMountFailureResetsIsolation(t *testing.T) {
	a, lc := newTestApp(t,
		resource.NewScript(`before = typeof partial === "undefined" ? "fresh" : "stale"; partial = "written";`, "http://apps.test/shop/a.js"),
		resource.NewScript(`if (!ready) throw new Error("not ready")`, "http://apps.test/shop/b.js"),
	)
	lc.BeforeMount.Tap("reattach", func(ev Event) {
		if sb := ev.App.Executor(); sb != nil && sb.Closed() {
			_, err := ev.App.Isolate(sandbox.StrategyLive, []string{"partial"})
			require.NoError(t, err)
		}
	})

	first, err := a.Isolate(sandbox.StrategyLive, []string{"partial"})
	require.NoError(t, err)

	require.Error(t, a.Mount(context.Background()))
	assert.True(t, first.Closed(), "a failed mount tears the isolation handle down")

	a.Engine().Update(func(env sandbox.Environment) { env.Set("ready", true) })
	require.NoError(t, a.Mount(context.Background()))

	assert.NotSame(t, first, a.Executor())
	assert.False(t, a.Executor().Closed())
	before, _ := a.Engine().Lookup("before")
	assert.Equal(t, "fresh", before, "the retry does not see values from the failed attempt")
}

func TestUnmountDetachesContainer(t *testing.T) {
	a, lc := newTestApp(t)
	var events []string
	lc.BeforeUnmount.Tap("test", func(Event) { events = append(events, "before") })
	lc.AfterUnmount.Tap("test", func(Event) { events = append(events, "after") })

	require.NoError(t, a.Unmount(context.Background()))
	assert.Empty(t, events, "unmounting an unmounted app does nothing")

	require.NoError(t, a.Mount(context.Background()))
	require.Equal(t, 1, a.Engine().Document().Len())

	require.NoError(t, a.Unmount(context.Background()))
	assert.Equal(t, []string{"before", "after"}, events)
	assert.False(t, a.Mounted())
	assert.Equal(t, 0, a.Engine().Document().Len())
}

func TestExecScriptEnv(t *testing.T) {
	a, lc := newTestApp(t)

	var seen *EvalEvent
	lc.AfterEval.Tap("test", func(ev *EvalEvent) { seen = ev })

	res, err := a.ExecScript(context.Background(),
		`module.exports.name = require("react") + ":" + __APP_PROPS__.user; leaked = 1; exports.name`,
		map[string]any{"require": "shadowed"}, "", sandbox.ExecOptions{Inline: true})
	require.NoError(t, err)
	assert.Equal(t, "react-stub:ann", res.Value)

	exports, ok := a.Exports().(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "react-stub:ann", exports["name"])

	leaked, _ := a.Engine().Lookup("leaked")
	assert.Equal(t, int64(1), leaked, "without isolation scripts write the shared environment")
	assert.Nil(t, a.Executor())

	require.NotNil(t, seen)
	assert.Contains(t, seen.Env, "require")
	assert.NoError(t, seen.Err)
	assert.Same(t, res, seen.Result)
}

func TestExportsWhileScriptsRun(t *testing.T) {
	a, _ := newTestApp(t)
	const runs = 100

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < runs; i++ {
			_, err := a.ExecScript(context.Background(),
				`module.exports.n = (module.exports.n || 0) + 1`, nil, "", sandbox.ExecOptions{Inline: true})
			assert.NoError(t, err)
		}
	}()

	for {
		select {
		case <-done:
			exports, ok := a.Exports().(map[string]any)
			require.True(t, ok)
			assert.Equal(t, int64(runs), exports["n"])

			exports["n"] = "local"
			again := a.Exports().(map[string]any)
			assert.Equal(t, int64(runs), again["n"], "callers get a copy")
			return
		default:
			_ = a.Exports()
		}
	}
}

func TestIsolate(t *testing.T) {
	a, _ := newTestApp(t)
	ctx := context.Background()

	first, err := a.Isolate(sandbox.StrategyLive, []string{"onerror", ""})
	require.NoError(t, err)
	assert.Same(t, first, a.Executor())
	assert.Equal(t, sandbox.Insulated, first.Classify("onerror"))
	assert.Equal(t, sandbox.Protected, first.Classify("require"))

	_, err = a.ExecScript(ctx, `onerror = "handler"`, nil, "", sandbox.ExecOptions{})
	require.NoError(t, err)
	assert.False(t, a.Engine().Env().Has("onerror"))

	second, err := a.Isolate(sandbox.StrategySnapshot, nil)
	require.NoError(t, err)
	assert.True(t, first.Closed(), "the previous handle is reset")
	assert.Same(t, second, a.Executor())

	second.Reset()
	_, err = a.ExecScript(ctx, `1`, nil, "", sandbox.ExecOptions{})
	assert.ErrorIs(t, err, sandbox.ErrClosed)
}

func TestScriptEntryRendersEmptyContainer(t *testing.T) {
	entry, err := resource.ScriptEntryTemplate("http://apps.test/bundle.js")
	require.NoError(t, err)

	script := resource.NewScript(`bundled = "yes"`, "http://apps.test/bundle.js")
	a := New(Deps{}, &Info{Name: "bundle", Entry: "http://apps.test/bundle.js"}, entry,
		Resources{JS: []*resource.ScriptManager{script}}, false)

	require.NoError(t, a.Mount(context.Background()))
	assert.Equal(t, 0, a.HTMLNode().Len())

	v, _ := a.Engine().Lookup("bundled")
	assert.Equal(t, "yes", v)
	assert.Equal(t, []string{"http://apps.test/bundle.js", "http://apps.test/bundle.js"}, a.SourceList())
}

func TestInfoClone(t *testing.T) {
	orig := &Info{
		Name:            "a",
		Entry:           "http://a",
		Cache:           Bool(false),
		ProtectVariable: []string{"p"},
		Props:           map[string]any{"k": "v"},
		Sandbox:         &SandboxConfig{Open: Bool(true), Snapshot: true},
	}
	clone := orig.Clone()
	clone.ProtectVariable[0] = "changed"
	clone.Props["k"] = "changed"
	*clone.Cache = true
	*clone.Sandbox.Open = false

	assert.Equal(t, "p", orig.ProtectVariable[0])
	assert.Equal(t, "v", orig.Props["k"])
	assert.False(t, *orig.Cache)
	assert.True(t, *orig.Sandbox.Open)
}

func TestInfoPolicies(t *testing.T) {
	tests := []struct {
		name      string
		info      Info
		isolation bool
		snapshot  bool
		cache     bool
	}{
		{name: "defaults", info: Info{}, isolation: true, cache: true},
		{name: "disabled", info: Info{Sandbox: &SandboxConfig{Disabled: true}}, cache: true},
		{name: "closed", info: Info{Sandbox: &SandboxConfig{Open: Bool(false)}}, cache: true},
		{name: "snapshot", info: Info{Sandbox: &SandboxConfig{Snapshot: true}}, isolation: true, snapshot: true, cache: true},
		{name: "no cache", info: Info{Cache: Bool(false)}, isolation: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.isolation, tt.info.IsolationEnabled())
			assert.Equal(t, tt.snapshot, tt.info.SnapshotMode())
			assert.Equal(t, tt.cache, tt.info.CacheEnabled())
		})
	}
}

func TestInfoValidate(t *testing.T) {
	assert.ErrorIs(t, (&Info{Entry: "http://a"}).Validate(), ErrMissingName)
	assert.ErrorIs(t, (&Info{Name: "a"}).Validate(), ErrMissingEntry)
	assert.NoError(t, (&Info{Name: "a", Entry: "http://a"}).Validate())
}
