package host

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/GriffinCanCode/AgentOS/apphost/internal/app"
	"github.com/GriffinCanCode/AgentOS/apphost/internal/hooks"
	"github.com/GriffinCanCode/AgentOS/apphost/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/apphost/internal/loader"
	"github.com/GriffinCanCode/AgentOS/apphost/internal/loader/fetch"
	"github.com/GriffinCanCode/AgentOS/apphost/internal/sandbox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

const shopIndex = `<html>
<head><link rel="stylesheet" href="style.css"><title>Shop</title></head>
<body>
	<div id="root"></div>
	<script src="a.js"></script>
	<script src="b.js"></script>
</body>
</html>`

type appServer struct {
	*httptest.Server
	hits sync.Map
	// gate, when set, holds /index until it is closed
	gate chan struct{}
}

func (s *appServer) count(path string) int32 {
	v, ok := s.hits.Load(path)
	if !ok {
		return 0
	}
	return v.(*atomic.Int32).Load()
}

func newAppServer(t *testing.T, gate chan struct{}) *appServer {
	t.Helper()
	s := &appServer{gate: gate}

	mux := http.NewServeMux()
	mux.HandleFunc("/index", func(w http.ResponseWriter, r *http.Request) {
		if s.gate != nil {
			<-s.gate
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(shopIndex))
	})
	mux.HandleFunc("/a.js", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/javascript")
		_, _ = w.Write([]byte(`window.order = (window.order || "") + "a"`))
	})
	mux.HandleFunc("/b.js", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/javascript")
		_, _ = w.Write([]byte(`window.order = (window.order || "") + "b"`))
	})
	mux.HandleFunc("/style.css", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/css")
		_, _ = w.Write([]byte(`#root { color: red }`))
	})
	mux.HandleFunc("/main.js", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/javascript")
		_, _ = w.Write([]byte(`window.direct = true`))
	})

	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		v, _ := s.hits.LoadOrStore(r.URL.Path, new(atomic.Int32))
		v.(*atomic.Int32).Add(1)
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(s.Close)
	return s
}

func newTestHost(t *testing.T, opts Options, engineOpts ...func(*sandbox.EngineOptions)) *Host {
	t.Helper()
	cfg := fetch.DefaultConfig()
	cfg.Retries = 0
	cfg.Timeout = 2 * time.Second

	eo := sandbox.DefaultEngineOptions()
	for _, fn := range engineOpts {
		fn(&eo)
	}

	h, err := New(opts, Deps{
		Loader: loader.New(fetch.NewClient(cfg), nil, nil),
		Engine: sandbox.NewEngine(sandbox.NewEnvironment(), eo),
	})
	require.NoError(t, err)
	return h
}

func TestConcurrentLoadsShareOneSequence(t *testing.T) {
	gate := make(chan struct{})
	server := newAppServer(t, gate)
	h := newTestHost(t, Options{Apps: []app.Info{{Name: "shop", Entry: server.URL + "/index"}}})

	var beforeLoad atomic.Int32
	h.Lifecycle.BeforeLoad.Tap("count", func(context.Context, *app.Info) (hooks.Outcome, error) {
		beforeLoad.Add(1)
		return hooks.Continue, nil
	})

	const callers = 8
	results := make([]*app.App, callers)
	var wg sync.WaitGroup
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			inst, err := h.LoadApp(context.Background(), "shop", nil)
			assert.NoError(t, err)
			results[i] = inst
		}()
	}

	require.Eventually(t, func() bool { return server.count("/index") == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	close(gate)
	wg.Wait()

	require.NotNil(t, results[0])
	for _, inst := range results {
		assert.Same(t, results[0], inst)
	}
	assert.Equal(t, int32(1), beforeLoad.Load())
	assert.Equal(t, int32(1), server.count("/index"))
	assert.Equal(t, int32(1), server.count("/a.js"))
}

func TestCachedInstanceIsReused(t *testing.T) {
	server := newAppServer(t, nil)
	h := newTestHost(t, Options{Apps: []app.Info{{Name: "shop", Entry: server.URL + "/index"}}})
	ctx := context.Background()

	first, err := h.LoadApp(ctx, "shop", nil)
	require.NoError(t, err)
	require.NotNil(t, first)
	fetches := server.count("/index") + server.count("/a.js") + server.count("/b.js") + server.count("/style.css")

	second, err := h.LoadApp(ctx, "shop", nil)
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, fetches, server.count("/index")+server.count("/a.js")+server.count("/b.js")+server.count("/style.css"))
	assert.Same(t, first, h.CachedApp("shop"))

	fresh, err := h.LoadApp(ctx, "shop", &app.Info{Cache: app.Bool(false)})
	require.NoError(t, err)
	require.NotNil(t, fresh)
	assert.NotSame(t, first, fresh)

	assert.True(t, h.InvalidateCache("shop"))
	assert.Nil(t, h.CachedApp("shop"))
}

func TestMarkupEntryAssemblesResourcesInDocumentOrder(t *testing.T) {
	server := newAppServer(t, nil)
	h := newTestHost(t, Options{Apps: []app.Info{{Name: "shop", Entry: server.URL + "/index"}}})

	var processed ResourceEvent
	h.Lifecycle.ProcessResource.Tap("observe", func(ev ResourceEvent) { processed = ev })

	inst, err := h.LoadApp(context.Background(), "shop", nil)
	require.NoError(t, err)
	require.NotNil(t, inst)

	require.Len(t, inst.Resources.JS, 2)
	assert.Equal(t, server.URL+"/a.js", inst.Resources.JS[0].URL())
	assert.Equal(t, server.URL+"/b.js", inst.Resources.JS[1].URL())
	require.Len(t, inst.Resources.Link, 1)
	assert.Equal(t, server.URL+"/style.css", inst.Resources.Link[0].URL())
	assert.True(t, inst.IsHTMLMode)
	assert.Equal(t, "Shop", inst.EntryManager.Title())

	require.NotNil(t, processed.Resources)
	assert.Equal(t, "shop", processed.Info.Name)
}

func TestProcessResourceEditsResources(t *testing.T) {
	server := newAppServer(t, nil)
	h := newTestHost(t, Options{Apps: []app.Info{{Name: "shop", Entry: server.URL + "/index"}}})
	h.Lifecycle.ProcessResource.Tap("drop-b", func(ev ResourceEvent) {
		ev.Resources.JS = ev.Resources.JS[:1]
	})

	inst, err := h.LoadApp(context.Background(), "shop", nil)
	require.NoError(t, err)
	require.NotNil(t, inst)
	assert.Len(t, inst.Resources.JS, 1)
}

func TestScriptEntrySynthesizesWrapper(t *testing.T) {
	server := newAppServer(t, nil)
	h := newTestHost(t, Options{})

	inst, err := h.LoadApp(context.Background(), "widget", &app.Info{Entry: server.URL + "/main.js"})
	require.NoError(t, err)
	require.NotNil(t, inst)

	require.Len(t, inst.Resources.JS, 1)
	assert.Equal(t, server.URL+"/main.js", inst.Resources.JS[0].URL())
	assert.False(t, inst.IsHTMLMode)

	nodes := inst.EntryManager.FindAllJSNodes()
	require.Len(t, nodes, 1)
	assert.Equal(t, server.URL+"/main.js", inst.EntryManager.FindAttributeValue(nodes[0], "src"))
}

func TestAbortedLoad(t *testing.T) {
	server := newAppServer(t, nil)
	h := newTestHost(t, Options{Apps: []app.Info{{Name: "X", Entry: server.URL + "/index"}}})

	afterLoad := false
	h.Lifecycle.BeforeLoad.Tap("abort", func(_ context.Context, info *app.Info) (hooks.Outcome, error) {
		if info.Name == "X" {
			return hooks.Stop, nil
		}
		return hooks.Continue, nil
	})
	h.Lifecycle.AfterLoad.Tap("observe", func(app.Event) { afterLoad = true })

	inst, err := h.LoadApp(context.Background(), "X", nil)
	assert.NoError(t, err)
	assert.Nil(t, inst)
	assert.Equal(t, int32(0), server.count("/index"))
	assert.False(t, afterLoad)
}

func TestFailedLoadReportsAndRecovers(t *testing.T) {
	var healthy atomic.Bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !healthy.Load() {
			http.Error(w, "down", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/javascript")
		_, _ = w.Write([]byte(`window.ok = true`))
	}))
	t.Cleanup(server.Close)

	h := newTestHost(t, Options{Apps: []app.Info{{Name: "flaky", Entry: server.URL + "/main.js"}}})

	var failures []app.Event
	h.Lifecycle.ErrorLoadApp.Tap("observe", func(ev app.Event) { failures = append(failures, ev) })

	inst, err := h.LoadApp(context.Background(), "flaky", nil)
	assert.NoError(t, err)
	assert.Nil(t, inst)
	require.Len(t, failures, 1)
	assert.ErrorIs(t, failures[0].Err, loader.ErrFetch)
	assert.Equal(t, "flaky", failures[0].Info.Name)

	healthy.Store(true)
	inst, err = h.LoadApp(context.Background(), "flaky", nil)
	require.NoError(t, err)
	assert.NotNil(t, inst)
	assert.Len(t, failures, 1)
}

func TestBeforeLoadErrorIsALoadFailure(t *testing.T) {
	server := newAppServer(t, nil)
	h := newTestHost(t, Options{Apps: []app.Info{{Name: "shop", Entry: server.URL + "/index"}}})
	h.Lifecycle.BeforeLoad.Tap("broken", func(context.Context, *app.Info) (hooks.Outcome, error) {
		return hooks.Continue, assert.AnError
	})

	var failed error
	h.Lifecycle.ErrorLoadApp.Tap("observe", func(ev app.Event) { failed = ev.Err })

	inst, err := h.LoadApp(context.Background(), "shop", nil)
	assert.NoError(t, err)
	assert.Nil(t, inst)
	assert.ErrorIs(t, failed, assert.AnError)
}

func TestConfigurationErrors(t *testing.T) {
	h := newTestHost(t, Options{})

	_, err := h.LoadApp(context.Background(), "ghost", nil)
	assert.ErrorIs(t, err, ErrNotRegistered)

	_, err = h.LoadApp(context.Background(), "", nil)
	assert.ErrorIs(t, err, ErrMissingName)

	err = h.RegisterApp(app.Info{Name: "ok", Entry: "http://apps.test/ok"}, app.Info{Name: "broken"})
	assert.ErrorIs(t, err, ErrMissingEntry)
	_, registered := h.AppInfo("ok")
	assert.False(t, registered)
}

func TestDuplicateRegistrationKeepsFirst(t *testing.T) {
	h := newTestHost(t, Options{})

	require.NoError(t, h.RegisterApp(app.Info{Name: "shop", Entry: "http://apps.test/one", Basename: "/one"}))
	require.NoError(t, h.RegisterApp(app.Info{Name: "shop", Entry: "http://apps.test/two", Basename: "/two"}))

	info, ok := h.AppInfo("shop")
	require.True(t, ok)
	assert.Equal(t, "http://apps.test/one", info.Entry)
	assert.Equal(t, "/one", info.Basename)

	info.Entry = "mutated"
	again, _ := h.AppInfo("shop")
	assert.Equal(t, "http://apps.test/one", again.Entry)
}

func TestMergePrecedence(t *testing.T) {
	defaults := &app.Info{
		Basename:        "/",
		Cache:           app.Bool(true),
		ProtectVariable: []string{"fetch"},
		Props:           map[string]any{"theme": "light", "lang": "en"},
		Sandbox:         &app.SandboxConfig{Open: app.Bool(true)},
	}
	registered := &app.Info{
		Name:            "shop",
		Entry:           "http://apps.test/shop",
		ProtectVariable: []string{"fetch", "history"},
		Props:           map[string]any{"theme": "dark"},
	}
	call := &app.Info{
		Cache:              app.Bool(false),
		InsulationVariable: []string{"store"},
		Sandbox:            &app.SandboxConfig{Snapshot: true},
	}

	merged := Merge(Merge(defaults, registered), call)

	assert.Equal(t, "shop", merged.Name)
	assert.Equal(t, "/", merged.Basename)
	assert.False(t, merged.CacheEnabled())
	assert.Equal(t, []string{"fetch", "history"}, merged.ProtectVariable)
	assert.Equal(t, []string{"store"}, merged.InsulationVariable)
	assert.Equal(t, map[string]any{"theme": "dark", "lang": "en"}, merged.Props)
	assert.True(t, merged.SnapshotMode())

	merged.Props["theme"] = "neon"
	merged.ProtectVariable[0] = "changed"
	assert.Equal(t, "dark", registered.Props["theme"])
	assert.Equal(t, "fetch", registered.ProtectVariable[0])
	assert.True(t, *defaults.Cache)
}

func TestRunAgainRegistersWithRunningDefaults(t *testing.T) {
	h := newTestHost(t, Options{})

	var bootstraps int
	h.Lifecycle.Bootstrap.Tap("count", func(*Options) { bootstraps++ })

	require.NoError(t, h.Run(Options{Basename: "/portal"}))
	assert.True(t, h.Running())
	assert.ErrorIs(t, h.SetOptions(Options{Basename: "/other"}), ErrRunning)

	require.NoError(t, h.Run(Options{Apps: []app.Info{
		{Name: "late", Entry: "http://apps.test/late"},
		{Name: "own", Entry: "http://apps.test/own", Basename: "/own"},
	}}))

	late, ok := h.AppInfo("late")
	require.True(t, ok)
	assert.Equal(t, "/portal", late.Basename)
	own, _ := h.AppInfo("own")
	assert.Equal(t, "/own", own.Basename)
	assert.Equal(t, 1, bootstraps)
	assert.Equal(t, "/portal", h.Options().Basename)
}

func TestDuplicatePluginIsInstalledOnce(t *testing.T) {
	h := newTestHost(t, Options{})

	setups := 0
	p := &Plugin{
		Name:       "observer",
		Setup:      func(*Host) { setups++ },
		AfterLoad:  func(app.Event) {},
		AfterMount: func(app.Event) {},
	}
	h.UsePlugin(p, p)
	h.UsePlugin(p)

	assert.Equal(t, 1, setups)
	assert.Equal(t, []string{"observer"}, h.Plugins())
	assert.Equal(t, 1, h.Lifecycle.AfterLoad.Len())
	assert.Equal(t, 1, h.Lifecycle.AfterMount.Len())

	other := &Plugin{Name: "observer"}
	h.UsePlugin(other)
	assert.Len(t, h.Plugins(), 2)
}

func TestInitializeFiresOnNew(t *testing.T) {
	var seen *Options
	p := &Plugin{Name: "init", Initialize: func(opts *Options) { seen = opts }}
	newTestHost(t, Options{Plugins: []*Plugin{p}, Basename: "/base"})

	require.NotNil(t, seen)
	assert.Equal(t, "/base", seen.Basename)
}

func TestMountAndUnmountThroughHost(t *testing.T) {
	server := newAppServer(t, nil)
	h := newTestHost(t, Options{Apps: []app.Info{{Name: "shop", Entry: server.URL + "/index"}}})
	ctx := context.Background()

	inst, err := h.MountApp(ctx, "shop", nil)
	require.NoError(t, err)
	assert.True(t, inst.Mounted())
	assert.Contains(t, h.ActiveApps(), "shop")

	order, _ := h.Engine().Lookup("order")
	assert.Equal(t, "ab", order)

	require.NoError(t, h.UnmountApp(ctx, "shop"))
	assert.False(t, inst.Mounted())
	assert.Empty(t, h.ActiveApps())
	assert.ErrorIs(t, h.UnmountApp(ctx, "shop"), ErrNotMounted)
}

func TestExternalsReachRequire(t *testing.T) {
	server := newAppServer(t, nil)
	h := newTestHost(t, Options{})
	h.SetExternal("lib", 42)
	h.SetExternals(map[string]any{"lib": 43, "other": "x"})

	inst, err := h.LoadApp(context.Background(), "widget", &app.Info{Entry: server.URL + "/main.js"})
	require.NoError(t, err)
	require.NotNil(t, inst)

	_, err = inst.ExecScript(context.Background(), `window.got = require("lib")`, nil, "", sandbox.ExecOptions{Inline: true})
	require.NoError(t, err)
	got, _ := h.Engine().Lookup("got")
	assert.EqualValues(t, 43, got)
	assert.Len(t, h.Externals(), 2)
}

func TestIsolationUnsupportedStillExecutes(t *testing.T) {
	server := newAppServer(t, nil)
	h := newTestHost(t, Options{Apps: []app.Info{{Name: "Y", Entry: server.URL + "/main.js"}}},
		func(o *sandbox.EngineOptions) { o.Capability = func() bool { return false } })

	inst, err := h.LoadApp(context.Background(), "Y", nil)
	require.NoError(t, err)
	require.NotNil(t, inst)

	_, err = inst.Isolate(sandbox.StrategyLive, nil)
	assert.ErrorIs(t, err, sandbox.ErrUnsupported)

	_, err = inst.ExecScript(context.Background(), `window.ran = "Y"`, nil, "", sandbox.ExecOptions{Inline: true})
	require.NoError(t, err)
	ran, _ := h.Engine().Lookup("ran")
	assert.Equal(t, "Y", ran)
}

func TestLoadAppURLUsesDetachedContainer(t *testing.T) {
	server := newAppServer(t, nil)
	h := newTestHost(t, Options{})

	inst, err := h.LoadAppURL(context.Background(), "adhoc", server.URL+"/index")
	require.NoError(t, err)
	require.NotNil(t, inst)
	require.NoError(t, inst.Mount(context.Background()))

	assert.Nil(t, h.Engine().Document().First("#"+inst.ContainerID()))
	assert.NotNil(t, inst.HTMLNode())
}

func TestGlobalEnvironmentAccess(t *testing.T) {
	h := newTestHost(t, Options{})

	h.SetGlobalValue("leak", "escaped")
	assert.True(t, h.GetGlobalObject().Has("leak"))

	assert.True(t, h.ClearEscapeEffect("leak", "restored"))
	v, _ := h.GetGlobalObject().Get("leak")
	assert.Equal(t, "restored", v)

	assert.False(t, h.ClearEscapeEffect("absent", 1))
	assert.False(t, h.GetGlobalObject().Has("absent"))
}

func TestCreateContextReturnsExistingHost(t *testing.T) {
	reg := NewContextRegistry()

	first, err := CreateContext(reg, Options{}, Deps{})
	require.NoError(t, err)
	second, err := CreateContext(reg, Options{}, Deps{})
	require.NoError(t, err)
	assert.Same(t, first, second)

	flag, ok := reg.Get(FlagKey)
	require.True(t, ok)
	assert.Equal(t, first.Flag, flag)
}

func TestCreateContextReservedSlot(t *testing.T) {
	reg := NewContextRegistry()
	reg.Define(ContextKey, Slot{Value: "occupied"})

	h, err := CreateContext(reg, Options{}, Deps{})
	require.NoError(t, err)
	require.NotNil(t, h)

	v, _ := reg.Get(ContextKey)
	assert.Equal(t, "occupied", v)
	_, flagged := reg.Get(FlagKey)
	assert.False(t, flagged)
}

func TestCreateContextWarnsOnVersionMismatch(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := logging.FromZap(zap.New(core), true)

	reg := NewContextRegistry()
	reg.Define(ContextKey, Slot{Value: &Host{Version: "0.9.0"}, Writable: true})

	h, err := CreateContext(reg, Options{}, Deps{Logger: logger})
	require.NoError(t, err)

	v, _ := reg.Get(ContextKey)
	assert.Same(t, h, v)
	assert.Equal(t, 1, logs.FilterMessage("another host version is registered in this process").Len())
}

func TestSameVersion(t *testing.T) {
	assert.True(t, sameVersion("1.0.0", "v1.0.0"))
	assert.False(t, sameVersion("1.0.0", "1.0.1"))
	assert.True(t, sameVersion("dev", "dev"))
}

func TestParseDescriptors(t *testing.T) {
	tests := []struct {
		name   string
		format Format
		data   string
	}{
		{
			name:   "yaml",
			format: FormatYAML,
			data: `apps:
  - name: shop
    entry: http://apps.test/shop
    protect_variable: [fetch]
    sandbox:
      snapshot: true
`,
		},
		{
			name:   "toml",
			format: FormatTOML,
			data: `[[apps]]
name = "shop"
entry = "http://apps.test/shop"
protect_variable = ["fetch"]

[apps.sandbox]
snapshot = true
`,
		},
		{
			name:   "json",
			format: FormatJSON,
			data:   `{"apps":[{"name":"shop","entry":"http://apps.test/shop","protect_variable":["fetch"],"sandbox":{"snapshot":true}}]}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			infos, err := ParseDescriptors([]byte(tt.data), tt.format)
			require.NoError(t, err)
			require.Len(t, infos, 1)
			assert.Equal(t, "shop", infos[0].Name)
			assert.Equal(t, "http://apps.test/shop", infos[0].Entry)
			assert.Equal(t, []string{"fetch"}, infos[0].ProtectVariable)
			assert.True(t, infos[0].SnapshotMode())
		})
	}
}

func TestParseDescriptorsRejectsInvalid(t *testing.T) {
	_, err := ParseDescriptors([]byte(`apps: [{name: shop}]`), FormatYAML)
	assert.ErrorIs(t, err, ErrMissingEntry)

	_, err = ParseDescriptors([]byte(`{}`), Format("ini"))
	assert.ErrorIs(t, err, ErrUnknownFormat)

	_, err = FormatOf("apps.ini")
	assert.ErrorIs(t, err, ErrUnknownFormat)
}
