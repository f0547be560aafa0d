package snapshot

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

func newTestHost(t *testing.T, cfg Config, supported bool, infos ...app.Info) *host.Host {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/javascript")
		_, _ = w.Write([]byte(`window.store = "mine"; window.shared = "yes";`))
	}))
	t.Cleanup(server.Close)

	for i := range infos {
		infos[i].Entry = server.URL + "/" + infos[i].Name + ".js"
	}

	fetchCfg := fetch.DefaultConfig()
	fetchCfg.Retries = 0
	fetchCfg.Timeout = 2 * time.Second
	engineOpts := sandbox.DefaultEngineOptions()
	engineOpts.Capability = func() bool { return supported }

	h, err := host.New(host.Options{Apps: infos, Plugins: []*host.Plugin{New(cfg)}}, host.Deps{
		Loader: loader.New(fetch.NewClient(fetchCfg), nil, nil),
		Engine: sandbox.NewEngine(sandbox.NewEnvironment(), engineOpts),
	})
	require.NoError(t, err)
	return h
}

func TestSnapshotModeDescriptor(t *testing.T) {
	h := newTestHost(t, Config{}, true, app.Info{
		Name:               "snap",
		Sandbox:            &app.SandboxConfig{Snapshot: true},
		InsulationVariable: []string{"store"},
	})
	ctx := context.Background()

	inst, err := h.MountApp(ctx, "snap", nil)
	require.NoError(t, err)
	require.NotNil(t, inst.Executor())
	assert.Equal(t, sandbox.StrategySnapshot, inst.Executor().Strategy())

	assert.False(t, h.GetGlobalObject().Has("store"))
	shared, _ := h.Engine().Lookup("shared")
	assert.Equal(t, "yes", shared)
	assert.Equal(t, "mine", inst.Executor().Global()["store"])

	require.NoError(t, h.UnmountApp(ctx, "snap"))
	assert.True(t, inst.Executor().Closed())
}

func TestFallbackWhenLiveIsolationIsUnsupported(t *testing.T) {
	tests := []struct {
		name      string
		cfg       Config
		supported bool
		want      bool
	}{
		{name: "fallback on unsupported runtime", cfg: Config{Fallback: true}, supported: false, want: true},
		{name: "no fallback configured", cfg: Config{}, supported: false, want: false},
		{name: "live isolation available", cfg: Config{Fallback: true}, supported: true, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHost(t, tt.cfg, tt.supported, app.Info{Name: "plain"})

			inst, err := h.LoadApp(context.Background(), "plain", nil)
			require.NoError(t, err)
			require.NotNil(t, inst)
			if tt.want {
				require.NotNil(t, inst.Executor())
				assert.Equal(t, sandbox.StrategySnapshot, inst.Executor().Strategy())
			} else {
				assert.Nil(t, inst.Executor())
			}
		})
	}
}

func TestDisabledIsolationIsNeverSnapshotted(t *testing.T) {
	h := newTestHost(t, Config{Fallback: true}, false, app.Info{
		Name:    "off",
		Sandbox: &app.SandboxConfig{Disabled: true, Snapshot: true},
	})

	inst, err := h.LoadApp(context.Background(), "off", nil)
	require.NoError(t, err)
	require.NotNil(t, inst)
	assert.Nil(t, inst.Executor())
}
