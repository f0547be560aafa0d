// Package vm attaches a live isolation engine to every loaded app.
package vm

import (
	"context"

	"github.com/GriffinCanCode/AgentOS/apphost/internal/app"
	"github.com/GriffinCanCode/AgentOS/apphost/internal/host"
	"github.com/GriffinCanCode/AgentOS/apphost/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/apphost/internal/sandbox"
	"go.uber.org/zap"
)

// Name is the plugin name
const Name = "apphost-browser-vm-sandbox"

// onloadScript calls the app's window.onload once it is mounted
const onloadScript = `if (typeof window.onload === 'function') { window.onload.call(window); }`

// Config configures the plugin
type Config struct {
	// Dev also insulates the hot reload globals
	Dev bool
}

// SpecialInsulated are the globals every app keeps to itself
func SpecialInsulated(dev bool) []string {
	vars := []string{"onerror", "webpackjsonp", "__REACT_ERROR_OVERLAY_GLOBAL_HOOK__"}
	if dev {
		vars = append(vars, "webpackHotUpdate")
	}
	return vars
}

type plugin struct {
	cfg       Config
	supported bool
	logger    *logging.Logger
}

// New creates the plugin. The engine capability is probed once, when the
// plugin is installed.
func New(cfg Config) *host.Plugin {
	p := &plugin{cfg: cfg, logger: logging.NewNop()}
	return &host.Plugin{
		Name:         Name,
		Version:      host.Version,
		Setup:        p.setup,
		AfterLoad:    p.afterLoad,
		BeforeMount:  p.beforeMount,
		AfterMount:   p.afterMount,
		AfterUnmount: p.afterUnmount,
	}
}

func (p *plugin) setup(h *host.Host) {
	p.logger = h.Logger().Named("vm")
	p.supported = h.Engine().Supported()
	if !p.supported {
		p.logger.DevWarn("live isolation is not supported, apps will not be isolated by this plugin")
	}
}

// wants reports whether this plugin owns isolation for info
func (p *plugin) wants(info *app.Info) bool {
	return p.supported && info.IsolationEnabled() && !info.SnapshotMode()
}

// owns reports whether inst carries this plugin's isolation engine
func owns(inst *app.App) bool {
	sb := inst.Executor()
	return sb != nil && sb.Strategy() == sandbox.StrategyLive
}

func (p *plugin) afterLoad(ev app.Event) {
	if ev.App == nil || !p.wants(ev.Info) {
		return
	}
	// cached instances keep their engine
	if owns(ev.App) && !ev.App.Executor().Closed() {
		return
	}
	p.attach(ev.App)
}

func (p *plugin) attach(inst *app.App) {
	if _, err := inst.Isolate(sandbox.StrategyLive, SpecialInsulated(p.cfg.Dev)); err != nil {
		p.logger.DevWarn("live isolation not attached", zap.String("app", inst.Name), zap.Error(err))
	}
}

func (p *plugin) beforeMount(ev app.Event) {
	if ev.App != nil && owns(ev.App) && ev.App.Executor().Closed() {
		p.attach(ev.App)
	}
}

func (p *plugin) afterMount(ev app.Event) {
	if ev.App == nil || !owns(ev.App) {
		return
	}
	if _, err := ev.App.ExecScript(context.Background(), onloadScript, nil, "", sandbox.ExecOptions{Inline: true}); err != nil {
		p.logger.DevWarn("onload failed", zap.String("app", ev.App.Name), zap.Error(err))
	}
}

func (p *plugin) afterUnmount(ev app.Event) {
	if ev.App != nil && owns(ev.App) {
		ev.App.Executor().Reset()
	}
}
