package host

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"sync"

	"github.com/GriffinCanCode/AgentOS/apphost/internal/app"
	"github.com/GriffinCanCode/AgentOS/apphost/internal/hooks"
	"github.com/GriffinCanCode/AgentOS/apphost/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/apphost/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/apphost/internal/loader"
	"github.com/GriffinCanCode/AgentOS/apphost/internal/loader/fetch"
	"github.com/GriffinCanCode/AgentOS/apphost/internal/sandbox"
	"github.com/GriffinCanCode/AgentOS/apphost/internal/shared/id"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Version is the host version reported to the context registry
const Version = "1.0.0"

// buildFlag identifies hosts created by this build of the package
var buildFlag = "apphost:" + id.Default().GenerateString()

// Deps are the services a host is built on. Nil fields get defaults.
type Deps struct {
	Loader  *loader.Loader
	Engine  *sandbox.Engine
	Logger  *logging.Logger
	Metrics *monitoring.Metrics
}

// Host orchestrates application loading
type Host struct {
	Lifecycle *Lifecycle
	Version   string
	Flag      string

	loader  *loader.Loader
	engine  *sandbox.Engine
	logger  *logging.Logger
	metrics *monitoring.Metrics
	plugins *hooks.Registry[Plugin]

	// runMu serializes Run
	runMu sync.Mutex

	mu         sync.RWMutex
	running    bool
	options    Options
	appInfos   map[string]*app.Info
	cacheApps  map[string]*app.App
	activeApps map[string]*app.App
	externals  map[string]any

	// loading is the in-flight load table, keyed by app name
	loading singleflight.Group
}

// New creates a host, registers opts.Apps, installs opts.Plugins and fires
// Initialize. Only configuration errors are returned.
func New(opts Options, deps Deps) (*Host, error) {
	logger := logging.OrNop(deps.Logger)
	if deps.Loader == nil {
		deps.Loader = loader.New(fetch.NewClient(fetch.DefaultConfig()), logger, deps.Metrics)
	}
	if deps.Engine == nil {
		engineOpts := sandbox.DefaultEngineOptions()
		engineOpts.Logger = logger
		engineOpts.Metrics = deps.Metrics
		deps.Engine = sandbox.NewEngine(sandbox.NewEnvironment(), engineOpts)
	}

	h := &Host{
		Lifecycle:  NewLifecycle(),
		Version:    Version,
		Flag:       buildFlag,
		loader:     deps.Loader,
		engine:     deps.Engine,
		logger:     logger.Named("host"),
		metrics:    deps.Metrics,
		plugins:    hooks.NewRegistry[Plugin](logger),
		options:    DefaultOptions(),
		appInfos:   make(map[string]*app.Info),
		cacheApps:  make(map[string]*app.App),
		activeApps: make(map[string]*app.App),
		externals:  make(map[string]any),
	}

	// raw payloads become typed managers; component payloads pass through
	h.loader.Lifecycle.Loaded.Tap("host", loader.Classify)

	if err := h.SetOptions(opts); err != nil {
		return nil, err
	}
	h.UsePlugin(opts.Plugins...)

	options := h.Options()
	h.Lifecycle.Initialize.Call(&options)
	return h, nil
}

// Run starts the host. Calling it again while running only registers
// opts.Apps, giving descriptors without their own basename or DOM getter
// the running defaults.
func (h *Host) Run(opts Options) error {
	h.runMu.Lock()
	defer h.runMu.Unlock()

	if h.Running() {
		h.logger.DevWarn("host is already running, registering apps only")
		current := h.Options()

		list := make([]app.Info, 0, len(opts.Apps))
		for _, info := range opts.Apps {
			if info.Basename == "" {
				info.Basename = firstNonEmpty(opts.Basename, current.Basename)
			}
			if info.DOMGetter == nil {
				info.DOMGetter = opts.DOMGetter
				if info.DOMGetter == nil {
					info.DOMGetter = current.DOMGetter
				}
			}
			list = append(list, info)
		}
		return h.RegisterApp(list...)
	}

	before := h.Options()
	h.Lifecycle.BeforeBootstrap.Call(&before)

	if err := h.SetOptions(opts); err != nil {
		return err
	}
	h.UsePlugin(opts.Plugins...)

	h.mu.Lock()
	h.running = true
	options := h.options
	h.mu.Unlock()

	h.logger.Info("host running",
		zap.Int("apps", len(h.AppInfos())),
		zap.Strings("plugins", h.plugins.Names()))
	h.Lifecycle.Bootstrap.Call(&options)
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// Running reports whether Run has completed
func (h *Host) Running() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.running
}

// SetOptions merges opts into the process defaults and registers
// opts.Apps. It fails with ErrRunning once the host runs.
func (h *Host) SetOptions(opts Options) error {
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		return ErrRunning
	}
	h.options = h.options.merged(opts)
	h.mu.Unlock()

	if len(opts.Apps) == 0 {
		return nil
	}
	return h.RegisterApp(opts.Apps...)
}

// Options returns a copy of the process defaults
func (h *Host) Options() Options {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := h.options
	out.ProtectVariable = append([]string(nil), out.ProtectVariable...)
	out.InsulationVariable = append([]string(nil), out.InsulationVariable...)
	out.Sandbox = out.Sandbox.Clone()
	return out
}

// UsePlugin installs plugins in order. Installing the same plugin twice
// logs a warning and keeps the first installation.
func (h *Host) UsePlugin(plugins ...*Plugin) {
	for _, p := range plugins {
		if p == nil || !h.plugins.Add(p.Name, p) {
			continue
		}
		if p.Setup != nil {
			p.Setup(h)
		}
		h.Lifecycle.use(p)
		h.logger.Debug("plugin installed", zap.String("plugin", p.Name), zap.String("version", p.Version))
	}
}

// Plugins returns installed plugin names in installation order
func (h *Host) Plugins() []string {
	return h.plugins.Names()
}

// RegisterApp registers descriptors. Every descriptor is validated before
// any is stored. A name that is already registered is skipped with a
// warning and the first registration is kept.
func (h *Host) RegisterApp(list ...app.Info) error {
	h.Lifecycle.BeforeRegisterApp.Call(list)

	h.mu.Lock()
	for i := range list {
		info := &list[i]
		if info.Name == "" {
			h.mu.Unlock()
			return ErrMissingName
		}
		if _, exists := h.appInfos[info.Name]; !exists && info.Entry == "" {
			h.mu.Unlock()
			return fmt.Errorf("%w: %s", ErrMissingEntry, info.Name)
		}
	}

	for i := range list {
		info := &list[i]
		if _, exists := h.appInfos[info.Name]; exists {
			h.logger.DevWarn("app is already registered", zap.String("app", info.Name))
			continue
		}
		h.appInfos[info.Name] = info.Clone()
		h.logger.Debug("app registered", zap.String("app", info.Name), zap.String("entry", info.Entry))
	}
	registered, cached := len(h.appInfos), len(h.cacheApps)
	h.mu.Unlock()

	h.metrics.SetAppCounts(registered, cached)
	h.Lifecycle.RegisterApp.Call(h.AppInfos())
	return nil
}

// AppInfo returns a copy of a registered descriptor
func (h *Host) AppInfo(name string) (*app.Info, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	info, ok := h.appInfos[name]
	return info.Clone(), ok
}

// AppInfos returns copies of every registered descriptor
func (h *Host) AppInfos() map[string]*app.Info {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make(map[string]*app.Info, len(h.appInfos))
	for name, info := range h.appInfos {
		out[name] = info.Clone()
	}
	return out
}

// AppNames returns the registered names in sorted order
func (h *Host) AppNames() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	names := make([]string, 0, len(h.appInfos))
	for name := range h.appInfos {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// UnregisterApp removes a descriptor and its cached instance
func (h *Host) UnregisterApp(name string) bool {
	h.mu.Lock()
	_, ok := h.appInfos[name]
	delete(h.appInfos, name)
	delete(h.cacheApps, name)
	registered, cached := len(h.appInfos), len(h.cacheApps)
	h.mu.Unlock()

	h.metrics.SetAppCounts(registered, cached)
	return ok
}

// SetExternal makes value available to require(name) in every app
func (h *Host) SetExternal(name string, value any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.externals[name] = value
}

// SetExternals adds several externals, warning about each overwrite
func (h *Host) SetExternals(values map[string]any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for name, value := range values {
		if _, exists := h.externals[name]; exists {
			h.logger.DevWarn("external will be overwritten", zap.String("external", name))
		}
		h.externals[name] = value
	}
}

// Externals returns a copy of the externals
func (h *Host) Externals() map[string]any {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return maps.Clone(h.externals)
}

// CachedApp returns the cached instance for name, nil when none
func (h *Host) CachedApp(name string) *app.App {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.cacheApps[name]
}

// InvalidateCache evicts the cached instance for name
func (h *Host) InvalidateCache(name string) bool {
	h.mu.Lock()
	_, ok := h.cacheApps[name]
	delete(h.cacheApps, name)
	registered, cached := len(h.appInfos), len(h.cacheApps)
	h.mu.Unlock()

	h.metrics.SetAppCounts(registered, cached)
	return ok
}

// ActiveApps returns the mounted instances by name
func (h *Host) ActiveApps() map[string]*app.App {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return maps.Clone(h.activeApps)
}

// MountApp loads name (reusing the cache when allowed) and mounts it
func (h *Host) MountApp(ctx context.Context, name string, opts *app.Info) (*app.App, error) {
	inst, err := h.LoadApp(ctx, name, opts)
	if err != nil {
		return nil, err
	}
	if inst == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotLoaded, name)
	}
	if err := inst.Mount(ctx); err != nil {
		return inst, err
	}

	h.mu.Lock()
	h.activeApps[name] = inst
	mounted := len(h.activeApps)
	h.mu.Unlock()

	h.metrics.SetAppsMounted(mounted)
	return inst, nil
}

// UnmountApp unmounts the active instance of name
func (h *Host) UnmountApp(ctx context.Context, name string) error {
	h.mu.Lock()
	inst, ok := h.activeApps[name]
	delete(h.activeApps, name)
	mounted := len(h.activeApps)
	h.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrNotMounted, name)
	}
	h.metrics.SetAppsMounted(mounted)
	return inst.Unmount(ctx)
}

// Loader returns the resource loader
func (h *Host) Loader() *loader.Loader { return h.loader }

// Engine returns the isolation engine
func (h *Host) Engine() *sandbox.Engine { return h.engine }

// Logger returns the host logger, for plugins
func (h *Host) Logger() *logging.Logger { return h.logger }

// Metrics returns the metrics collector, possibly nil
func (h *Host) Metrics() *monitoring.Metrics { return h.metrics }
