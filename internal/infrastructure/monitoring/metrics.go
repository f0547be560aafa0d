package monitoring

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Load outcomes recorded by RecordAppLoad.
const (
	OutcomeLoaded  = "loaded"
	OutcomeCached  = "cached"
	OutcomeJoined  = "joined"
	OutcomeAborted = "aborted"
	OutcomeFailed  = "failed"
)

// Metrics holds all Prometheus metrics of one host process. Every instance
// owns its registry, so tests can create as many as they like.
//
// All Record/Set methods are safe on a nil receiver.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Application metrics
	AppLoads       *prometheus.CounterVec
	AppLoadSeconds *prometheus.HistogramVec
	AppsRegistered prometheus.Gauge
	AppsCached     prometheus.Gauge
	AppsMounted    prometheus.Gauge

	// Loader metrics
	Fetches        *prometheus.CounterVec
	FetchSeconds   *prometheus.HistogramVec
	LoaderCacheHit *prometheus.CounterVec

	// Sandbox metrics
	Executions       *prometheus.CounterVec
	ExecutionSeconds *prometheus.HistogramVec
	SandboxesActive  *prometheus.GaugeVec

	Uptime    prometheus.GaugeFunc
	startTime time.Time

	snapshot Snapshot
	mu       sync.RWMutex
}

// Snapshot holds current values for the JSON API.
type Snapshot struct {
	Loads       int64 `json:"loads"`
	LoadErrors  int64 `json:"load_errors"`
	Fetches     int64 `json:"fetches"`
	Executions  int64 `json:"executions"`
	ExecErrors  int64 `json:"exec_errors"`
	HTTPErrors  int64 `json:"http_errors"`
	HTTPTotal   int64 `json:"http_total"`
	MountedApps int64 `json:"mounted_apps"`
}

var durationBuckets = []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}

// NewMetrics creates a metrics collector with a private registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	m := &Metrics{
		registry:  reg,
		startTime: time.Now(),

		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "apphost_http_requests_total",
				Help: "Total number of admin API requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "apphost_http_request_duration_seconds",
				Help:    "Admin API request duration in seconds",
				Buckets: durationBuckets,
			},
			[]string{"method", "path"},
		),

		AppLoads: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "apphost_app_loads_total",
				Help: "Application load calls by outcome",
			},
			[]string{"app", "outcome"},
		),
		AppLoadSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "apphost_app_load_duration_seconds",
				Help:    "Time to assemble an application instance",
				Buckets: durationBuckets,
			},
			[]string{"app"},
		),
		AppsRegistered: factory.NewGauge(prometheus.GaugeOpts{
			Name: "apphost_apps_registered",
			Help: "Number of registered application descriptors",
		}),
		AppsCached: factory.NewGauge(prometheus.GaugeOpts{
			Name: "apphost_apps_cached",
			Help: "Number of cached application instances",
		}),
		AppsMounted: factory.NewGauge(prometheus.GaugeOpts{
			Name: "apphost_apps_mounted",
			Help: "Number of mounted application instances",
		}),

		Fetches: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "apphost_resource_fetches_total",
				Help: "Resource fetches by kind and status",
			},
			[]string{"kind", "status"},
		),
		FetchSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "apphost_resource_fetch_duration_seconds",
				Help:    "Resource fetch duration in seconds",
				Buckets: durationBuckets,
			},
			[]string{"kind"},
		),
		LoaderCacheHit: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "apphost_loader_cache_total",
				Help: "Loader cache lookups by result",
			},
			[]string{"result"},
		),

		Executions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "apphost_sandbox_executions_total",
				Help: "Script executions by isolation strategy and status",
			},
			[]string{"strategy", "status"},
		),
		ExecutionSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "apphost_sandbox_execution_duration_seconds",
				Help:    "Script execution duration in seconds",
				Buckets: durationBuckets,
			},
			[]string{"strategy"},
		),
		SandboxesActive: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "apphost_sandboxes_active",
				Help: "Attached isolation engines by strategy",
			},
			[]string{"strategy"},
		),
	}

	m.Uptime = factory.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "apphost_uptime_seconds",
		Help: "Host uptime in seconds",
	}, m.UptimeSeconds)

	return m
}

// Registry returns the collector's registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler exposes the registry in Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordHTTPRequest records an admin API request.
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())

	m.mu.Lock()
	m.snapshot.HTTPTotal++
	if status != "" && (status[0] == '4' || status[0] == '5') {
		m.snapshot.HTTPErrors++
	}
	m.mu.Unlock()
}

// RecordAppLoad records the outcome of one LoadApp call.
func (m *Metrics) RecordAppLoad(app, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.AppLoads.WithLabelValues(app, outcome).Inc()
	if outcome == OutcomeLoaded {
		m.AppLoadSeconds.WithLabelValues(app).Observe(duration.Seconds())
	}

	m.mu.Lock()
	m.snapshot.Loads++
	if outcome == OutcomeFailed {
		m.snapshot.LoadErrors++
	}
	m.mu.Unlock()
}

// SetAppCounts updates the registered/cached application gauges.
func (m *Metrics) SetAppCounts(registered, cached int) {
	if m == nil {
		return
	}
	m.AppsRegistered.Set(float64(registered))
	m.AppsCached.Set(float64(cached))
}

// SetAppsMounted updates the mounted application gauge.
func (m *Metrics) SetAppsMounted(count int) {
	if m == nil {
		return
	}
	m.AppsMounted.Set(float64(count))
	m.mu.Lock()
	m.snapshot.MountedApps = int64(count)
	m.mu.Unlock()
}

// RecordFetch records one network fetch.
func (m *Metrics) RecordFetch(kind, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.Fetches.WithLabelValues(kind, status).Inc()
	m.FetchSeconds.WithLabelValues(kind).Observe(duration.Seconds())

	m.mu.Lock()
	m.snapshot.Fetches++
	m.mu.Unlock()
}

// RecordLoaderCache records a loader cache lookup ("hit", "miss", "joined").
func (m *Metrics) RecordLoaderCache(result string) {
	if m == nil {
		return
	}
	m.LoaderCacheHit.WithLabelValues(result).Inc()
}

// RecordExecution records one script execution.
func (m *Metrics) RecordExecution(strategy string, err error, duration time.Duration) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.Executions.WithLabelValues(strategy, status).Inc()
	m.ExecutionSeconds.WithLabelValues(strategy).Observe(duration.Seconds())

	m.mu.Lock()
	m.snapshot.Executions++
	if err != nil {
		m.snapshot.ExecErrors++
	}
	m.mu.Unlock()
}

// SandboxAttached adjusts the active sandbox gauge by delta.
func (m *Metrics) SandboxAttached(strategy string, delta int) {
	if m == nil {
		return
	}
	m.SandboxesActive.WithLabelValues(strategy).Add(float64(delta))
}

// Snapshot returns the current summary values.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshot
}

// UptimeSeconds returns seconds since the collector was created.
func (m *Metrics) UptimeSeconds() float64 {
	return time.Since(m.startTime).Seconds()
}
