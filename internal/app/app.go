package app

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/GriffinCanCode/AgentOS/apphost/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/apphost/internal/resource"
	"github.com/GriffinCanCode/AgentOS/apphost/internal/sandbox"
	"github.com/GriffinCanCode/AgentOS/apphost/internal/sandbox/dom"
	"github.com/GriffinCanCode/AgentOS/apphost/internal/shared/id"
	"go.uber.org/zap"
)

// PropsKey is the per-call binding holding the descriptor props
const PropsKey = "__APP_PROPS__"

// Resources is the assembled resource set of one instance
type Resources struct {
	JS   []*resource.ScriptManager
	Link []*resource.StyleManager
}

// Deps are the host services an instance uses
type Deps struct {
	Engine    *sandbox.Engine
	Lifecycle *Lifecycle
	// Externals returns the host-provided modules for require()
	Externals func() map[string]any
	Logger    *logging.Logger
}

// App is one loaded application
type App struct {
	ID              id.InstanceID
	Name            string
	Info            *Info
	EntryManager    *resource.TemplateManager
	Resources       Resources
	IsHTMLMode      bool
	StrictIsolation bool
	CreatedAt       time.Time

	deps   Deps
	logger *logging.Logger

	// mountMu serializes Mount and Unmount
	mountMu sync.Mutex

	mu       sync.Mutex
	mounted  bool
	htmlNode *dom.Element
	executor *sandbox.Sandbox
	direct   *sandbox.Sandbox
	exports  map[string]any
	module   map[string]any
}

// New builds an instance. info is owned by the instance from now on.
func New(deps Deps, info *Info, entry *resource.TemplateManager, resources Resources, htmlMode bool) *App {
	if deps.Lifecycle == nil {
		deps.Lifecycle = NewLifecycle()
	}
	if deps.Engine == nil {
		deps.Engine = sandbox.NewEngine(nil, sandbox.DefaultEngineOptions())
	}

	a := &App{
		ID:              id.NewInstanceID(),
		Name:            info.Name,
		Info:            info,
		EntryManager:    entry,
		Resources:       resources,
		IsHTMLMode:      htmlMode,
		StrictIsolation: info.StrictIsolation(),
		CreatedAt:       time.Now(),
		deps:            deps,
	}
	a.logger = logging.OrNop(deps.Logger).Named("app").With(
		zap.String("app", a.Name),
		zap.String("instance", a.ID.String()))

	a.exports = make(map[string]any)
	a.module = map[string]any{"exports": a.exports}
	return a
}

// SourceList returns the URLs of the entry and every external resource
func (a *App) SourceList() []string {
	var list []string
	if a.EntryManager != nil && a.EntryManager.URL() != "" {
		list = append(list, a.EntryManager.URL())
	}
	for _, js := range a.Resources.JS {
		if !js.Inline() {
			list = append(list, js.URL())
		}
	}
	for _, link := range a.Resources.Link {
		list = append(list, link.URL())
	}
	return list
}

// Mounted reports whether the instance is mounted
func (a *App) Mounted() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.mounted
}

// HTMLNode returns the mounted container, nil when unmounted
func (a *App) HTMLNode() *dom.Element {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.htmlNode
}

// Executor returns the attached isolation handle, nil when none
func (a *App) Executor() *sandbox.Sandbox {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.executor
}

// Engine returns the engine scripts run on
func (a *App) Engine() *sandbox.Engine { return a.deps.Engine }

// Isolate attaches a new isolation handle with the given strategy,
// resetting any previous one. extraInsulated is added to the descriptor's
// insulated variables.
func (a *App) Isolate(strategy sandbox.Strategy, extraInsulated []string) (*sandbox.Sandbox, error) {
	info := a.Info
	insulated := append(append([]string(nil), extraInsulated...), info.InsulationVariable...)

	sb, err := sandbox.New(a.deps.Engine, sandbox.Config{
		Namespace:       a.Name,
		BaseURL:         a.baseURL(),
		StrictIsolation: a.StrictIsolation,
		Strategy:        strategy,
		Modules:         info.Modules(),
		SourceList:      a.SourceList(),
		El:              a.HTMLNode,
		InsulationVariable: func() []string {
			return nonEmpty(insulated)
		},
		ProtectVariable: func() []string {
			return nonEmpty(append(append([]string(nil), info.ProtectVariable...), a.envKeys()...))
		},
	})
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	prev := a.executor
	a.executor = sb
	a.mu.Unlock()

	if prev != nil {
		prev.Reset()
	}
	a.logger.Debug("isolation attached", zap.String("strategy", strategy.String()))
	return sb, nil
}

func nonEmpty(list []string) []string {
	out := make([]string, 0, len(list))
	for _, s := range list {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

func (a *App) baseURL() string {
	if a.EntryManager == nil {
		return ""
	}
	return a.EntryManager.URL()
}

// GetExecScriptEnv returns the per-call bindings every script of this
// instance receives: a CommonJS style module/exports/require triple and
// the descriptor props.
func (a *App) GetExecScriptEnv() map[string]any {
	externals := map[string]any{}
	if a.deps.Externals != nil {
		externals = a.deps.Externals()
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	return map[string]any{
		"exports": a.exports,
		"module":  a.module,
		"require": func(name string) any {
			return externals[name]
		},
		PropsKey: maps.Clone(a.Info.Props),
	}
}

func (a *App) envKeys() []string {
	return []string{PropsKey, "exports", "module", "require"}
}

// Exports returns what the instance's scripts assigned to module.exports.
// An exports object is returned as a copy.
func (a *App) Exports() any {
	a.mu.Lock()
	module := a.module
	a.mu.Unlock()

	var out any
	a.deps.Engine.Sync(func() {
		out = module["exports"]
		if m, ok := out.(map[string]any); ok {
			out = maps.Clone(m)
		}
	})
	return out
}

// ExecScript runs code for this instance. It uses the attached isolation
// handle; without one a direct, unisolated sandbox is created on demand.
// The instance bindings override same-named keys in env.
func (a *App) ExecScript(ctx context.Context, code string, env map[string]any, url string, opts sandbox.ExecOptions) (*sandbox.Result, error) {
	sb, err := a.runner()
	if err != nil {
		return nil, err
	}

	merged := make(map[string]any, len(env)+4)
	maps.Copy(merged, env)
	maps.Copy(merged, a.GetExecScriptEnv())

	ev := &EvalEvent{Info: a.Info, App: a, Code: code, URL: url, Env: merged}
	a.deps.Lifecycle.BeforeEval.Call(ev)

	ev.Result, ev.Err = sb.ExecScript(ctx, code, merged, url, opts)

	a.deps.Lifecycle.AfterEval.Call(ev)
	return ev.Result, ev.Err
}

func (a *App) runner() (*sandbox.Sandbox, error) {
	a.mu.Lock()
	executor, direct := a.executor, a.direct
	a.mu.Unlock()

	if executor != nil {
		if executor.Closed() {
			return nil, sandbox.ErrClosed
		}
		return executor, nil
	}
	if direct != nil {
		return direct, nil
	}

	sb, err := sandbox.New(a.deps.Engine, sandbox.Config{
		Namespace:  a.Name,
		BaseURL:    a.baseURL(),
		Strategy:   sandbox.StrategyDirect,
		SourceList: a.SourceList(),
		El:         a.HTMLNode,
	})
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.direct == nil {
		a.direct = sb
	} else {
		sb.Reset()
	}
	return a.direct, nil
}
