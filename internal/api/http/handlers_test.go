package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/AgentOS/apphost/internal/app"
	"github.com/GriffinCanCode/AgentOS/apphost/internal/host"
	"github.com/GriffinCanCode/AgentOS/apphost/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/apphost/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/AgentOS/apphost/internal/loader"
	"github.com/GriffinCanCode/AgentOS/apphost/internal/loader/fetch"
	"github.com/GriffinCanCode/AgentOS/apphost/internal/sandbox"
)

func newOrigin(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/index", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(`<html><body><div id="root">hello</div></body></html>`))
	})
	mux.HandleFunc("/main.js", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/javascript")
		_, _ = w.Write([]byte(`var loaded = true`))
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func appInfo(name, entry string) []app.Info {
	return []app.Info{{Name: name, Entry: entry}}
}

type fixture struct {
	host   *host.Host
	router *gin.Engine
	origin *httptest.Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := fetch.DefaultConfig()
	cfg.Retries = 0
	cfg.Timeout = 2 * time.Second

	metrics := monitoring.NewMetrics()
	h, err := host.New(host.Options{}, host.Deps{
		Loader:  loader.New(fetch.NewClient(cfg), nil, metrics),
		Engine:  sandbox.NewEngine(sandbox.NewEnvironment(), sandbox.DefaultEngineOptions()),
		Metrics: metrics,
	})
	require.NoError(t, err)

	tracer := tracing.New("apphost-test", nil)
	t.Cleanup(tracer.Close)

	router := gin.New()
	NewHandlers(h, metrics, tracer, nil).Register(router)

	return &fixture{host: h, router: router, origin: newOrigin(t)}
}

func (f *fixture) do(t *testing.T, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	var out map[string]any
	if w.Body.Len() > 0 && w.Header().Get("Content-Type") == "application/json; charset=utf-8" {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	}
	return w, out
}

func TestHealth(t *testing.T) {
	f := newFixture(t)

	w, out := f.do(t, "GET", "/health", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", out["status"])
	assert.Equal(t, host.Version, out["version"])
	assert.Equal(t, false, out["running"])
	assert.Contains(t, out, "loader")
}

func TestRegisterAndListApps(t *testing.T) {
	f := newFixture(t)

	w, _ := f.do(t, "POST", "/apps", map[string]any{
		"apps": []map[string]any{
			{"name": "shop", "entry": f.origin.URL + "/index"},
			{"name": "cart", "entry": f.origin.URL + "/main.js"},
		},
	})
	require.Equal(t, http.StatusCreated, w.Code)

	w, _ = f.do(t, "POST", "/apps", map[string]any{"name": "blog", "entry": f.origin.URL + "/index"})
	require.Equal(t, http.StatusCreated, w.Code)

	w, out := f.do(t, "GET", "/apps", nil)
	require.Equal(t, http.StatusOK, w.Code)

	apps := out["apps"].([]any)
	require.Len(t, apps, 3)
	names := make([]string, 0, len(apps))
	for _, a := range apps {
		view := a.(map[string]any)
		names = append(names, view["name"].(string))
		assert.Equal(t, false, view["cached"])
		assert.Equal(t, false, view["mounted"])
	}
	assert.Equal(t, []string{"blog", "cart", "shop"}, names)
}

func TestRegisterRejectsInvalidDescriptor(t *testing.T) {
	f := newFixture(t)

	w, out := f.do(t, "POST", "/apps", map[string]any{"entry": f.origin.URL + "/index"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, host.ErrMissingName.Error(), out["error"])

	req := httptest.NewRequest("POST", "/apps", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLoadMountUnmount(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.host.RegisterApp(appInfo("shop", f.origin.URL+"/index")...))

	w, out := f.do(t, "POST", "/apps/shop/load", nil)
	require.Equal(t, http.StatusOK, w.Code)
	view := out["app"].(map[string]any)
	assert.Equal(t, "shop", view["name"])
	assert.Equal(t, true, view["html_mode"])
	assert.Equal(t, false, view["mounted"])
	assert.NotNil(t, f.host.CachedApp("shop"))

	w, out = f.do(t, "POST", "/apps/shop/mount", nil)
	require.Equal(t, http.StatusOK, w.Code)
	view = out["app"].(map[string]any)
	assert.Equal(t, true, view["mounted"])
	assert.Contains(t, view["html"], "hello")

	_, out = f.do(t, "GET", "/apps", nil)
	listed := out["apps"].([]any)[0].(map[string]any)
	assert.Equal(t, true, listed["mounted"])
	assert.Equal(t, true, listed["cached"])

	w, _ = f.do(t, "POST", "/apps/shop/unmount", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, out = f.do(t, "POST", "/apps/shop/unmount", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, out["error"], host.ErrNotMounted.Error())
	assert.Contains(t, out["error"], "shop")
}

func TestLoadErrors(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.host.RegisterApp(appInfo("broken", f.origin.URL+"/missing")...))

	tests := []struct {
		name       string
		path       string
		body       any
		wantStatus int
	}{
		{name: "unregistered without entry", path: "/apps/ghost/load", wantStatus: http.StatusNotFound},
		{name: "entry fails to fetch", path: "/apps/broken/load", wantStatus: http.StatusBadGateway},
		{name: "mount of failing entry", path: "/apps/broken/mount", wantStatus: http.StatusBadGateway},
		{name: "malformed body", path: "/apps/ghost/load", body: []int{1}, wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, _ := f.do(t, "POST", tt.path, tt.body)
			assert.Equal(t, tt.wantStatus, w.Code)
		})
	}
}

func TestLoadWithInlineEntry(t *testing.T) {
	f := newFixture(t)

	w, out := f.do(t, "POST", "/apps/adhoc/load", map[string]any{
		"entry": f.origin.URL + "/main.js",
		"props": map[string]any{"theme": "dark"},
	})
	require.Equal(t, http.StatusOK, w.Code)
	view := out["app"].(map[string]any)
	assert.Equal(t, false, view["html_mode"])
	assert.Equal(t, float64(1), view["scripts"])
}

func TestExecScript(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.host.RegisterApp(appInfo("calc", f.origin.URL+"/main.js")...))

	w, out := f.do(t, "POST", "/apps/calc/exec", map[string]any{"code": "1 + 2"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(3), out["value"])
	assert.NotNil(t, f.host.CachedApp("calc"))

	w, _ = f.do(t, "POST", "/apps/calc/exec", map[string]any{"code": "throw new Error('boom')"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w, _ = f.do(t, "POST", "/apps/calc/exec", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestInvalidateCache(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.host.RegisterApp(appInfo("shop", f.origin.URL+"/index")...))

	w, out := f.do(t, "DELETE", "/apps/shop/cache", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, out["evicted"])

	f.do(t, "POST", "/apps/shop/load", nil)

	_, out = f.do(t, "DELETE", "/apps/shop/cache", nil)
	assert.Equal(t, true, out["evicted"])
	assert.Nil(t, f.host.CachedApp("shop"))
}

func TestGlobals(t *testing.T) {
	f := newFixture(t)
	f.host.SetGlobalValue("answer", 42)
	f.host.SetGlobalValue("callback", func() {})

	w, out := f.do(t, "GET", "/globals", nil)
	require.Equal(t, http.StatusOK, w.Code)

	globals := out["globals"].(map[string]any)
	assert.Equal(t, float64(42), globals["answer"])
	assert.Equal(t, "[func()]", globals["callback"])
}

func TestMetricsEndpoints(t *testing.T) {
	f := newFixture(t)

	w, _ := f.do(t, "GET", "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "apphost_")

	w, out := f.do(t, "GET", "/metrics/json", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, out, "counters")
	assert.Contains(t, out, "uptime_seconds")
}

func TestStatusOf(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{host.ErrNotRegistered, http.StatusNotFound},
		{host.ErrNotMounted, http.StatusNotFound},
		{host.ErrMissingEntry, http.StatusBadRequest},
		{host.ErrRunning, http.StatusConflict},
		{host.ErrNotLoaded, http.StatusBadGateway},
		{&sandbox.ScriptError{Err: sandbox.ErrTimeout}, http.StatusGatewayTimeout},
		{&sandbox.ScriptError{URL: "main.js", Err: errors.New("boom")}, http.StatusUnprocessableEntity},
		{errors.New("unexpected"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, statusOf(tt.err), tt.err.Error())
	}
}
