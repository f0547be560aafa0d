package vm

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/GriffinCanCode/AgentOS/apphost/internal/app"
	"github.com/GriffinCanCode/AgentOS/apphost/internal/host"
	"github.com/GriffinCanCode/AgentOS/apphost/internal/loader"
	"github.com/GriffinCanCode/AgentOS/apphost/internal/loader/fetch"
	"github.com/GriffinCanCode/AgentOS/apphost/internal/sandbox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const widgetJS = `window.onerror = "widget handler";
window.onload = function () { window.loaded = (window.loaded || 0) + 1; };`

func newTestHost(t *testing.T, supported bool, infos ...app.Info) *host.Host {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/javascript")
		_, _ = w.Write([]byte(widgetJS))
	}))
	t.Cleanup(server.Close)

	for i := range infos {
		infos[i].Entry = server.URL + "/" + infos[i].Name + ".js"
	}

	cfg := fetch.DefaultConfig()
	cfg.Retries = 0
	cfg.Timeout = 2 * time.Second
	engineOpts := sandbox.DefaultEngineOptions()
	engineOpts.Capability = func() bool { return supported }

	h, err := host.New(host.Options{
		Apps:    infos,
		Plugins: []*host.Plugin{New(Config{})},
	}, host.Deps{
		Loader: loader.New(fetch.NewClient(cfg), nil, nil),
		Engine: sandbox.NewEngine(sandbox.NewEnvironment(), engineOpts),
	})
	require.NoError(t, err)
	return h
}

func TestAttachesLiveIsolationAfterLoad(t *testing.T) {
	h := newTestHost(t, true, app.Info{Name: "widget"})

	inst, err := h.LoadApp(context.Background(), "widget", nil)
	require.NoError(t, err)
	require.NotNil(t, inst)

	sb := inst.Executor()
	require.NotNil(t, sb)
	assert.Equal(t, sandbox.StrategyLive, sb.Strategy())
	for _, name := range SpecialInsulated(false) {
		assert.Equal(t, sandbox.Insulated, sb.Classify(name), name)
	}
	assert.Equal(t, sandbox.Protected, sb.Classify(app.PropsKey))
}

func TestMountRunsOnloadAndKeepsInsulatedPrivate(t *testing.T) {
	h := newTestHost(t, true, app.Info{Name: "widget"})
	ctx := context.Background()

	inst, err := h.MountApp(ctx, "widget", nil)
	require.NoError(t, err)

	loaded, _ := h.Engine().Lookup("loaded")
	assert.EqualValues(t, 1, loaded)
	assert.False(t, h.GetGlobalObject().Has("onerror"))
	assert.Equal(t, "widget handler", inst.Executor().Global()["onerror"])
}

func TestUnmountResetsAndRemountReattaches(t *testing.T) {
	h := newTestHost(t, true, app.Info{Name: "widget"})
	ctx := context.Background()

	inst, err := h.MountApp(ctx, "widget", nil)
	require.NoError(t, err)
	first := inst.Executor()

	require.NoError(t, h.UnmountApp(ctx, "widget"))
	assert.True(t, first.Closed())

	again, err := h.MountApp(ctx, "widget", nil)
	require.NoError(t, err)
	assert.Same(t, inst, again)
	require.NotNil(t, again.Executor())
	assert.NotSame(t, first, again.Executor())
	assert.False(t, again.Executor().Closed())
}

func TestSkipsWhenIsolationIsNotWanted(t *testing.T) {
	h := newTestHost(t, true,
		app.Info{Name: "plain", Sandbox: &app.SandboxConfig{Disabled: true}},
		app.Info{Name: "closed", Sandbox: &app.SandboxConfig{Open: app.Bool(false)}},
		app.Info{Name: "snap", Sandbox: &app.SandboxConfig{Snapshot: true}},
	)

	for _, name := range []string{"plain", "closed", "snap"} {
		inst, err := h.LoadApp(context.Background(), name, nil)
		require.NoError(t, err)
		require.NotNil(t, inst)
		assert.Nil(t, inst.Executor(), name)
	}
}

func TestUnsupportedRuntimeStillRunsScripts(t *testing.T) {
	h := newTestHost(t, false, app.Info{Name: "widget"})

	inst, err := h.MountApp(context.Background(), "widget", nil)
	require.NoError(t, err)
	assert.Nil(t, inst.Executor())

	handler, _ := h.Engine().Lookup("onerror")
	assert.Equal(t, "widget handler", handler)
}

func TestSpecialInsulatedInDev(t *testing.T) {
	assert.NotContains(t, SpecialInsulated(false), "webpackHotUpdate")
	assert.Contains(t, SpecialInsulated(true), "webpackHotUpdate")
}
