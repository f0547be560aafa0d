// Package snapshot isolates apps by diffing the shared environment around
// every execution. Descriptors ask for it with sandbox.snapshot; with
// Fallback set it also covers apps the live engine cannot isolate.
package snapshot

import (
	"github.com/GriffinCanCode/AgentOS/apphost/internal/app"
	"github.com/GriffinCanCode/AgentOS/apphost/internal/host"
	"github.com/GriffinCanCode/AgentOS/apphost/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/apphost/internal/sandbox"
	"go.uber.org/zap"
)

// Name is the plugin name
const Name = "apphost-browser-snapshot"

// Config configures the plugin
type Config struct {
	// Fallback isolates every app when live isolation is unsupported
	Fallback bool
}

type plugin struct {
	cfg       Config
	supported bool
	logger    *logging.Logger
}

// New creates the plugin
func New(cfg Config) *host.Plugin {
	p := &plugin{cfg: cfg, logger: logging.NewNop()}
	return &host.Plugin{
		Name:         Name,
		Version:      host.Version,
		Setup:        p.setup,
		AfterLoad:    p.afterLoad,
		BeforeMount:  p.beforeMount,
		AfterUnmount: p.afterUnmount,
	}
}

func (p *plugin) setup(h *host.Host) {
	p.logger = h.Logger().Named("snapshot")
	p.supported = h.Engine().Supported()
}

func (p *plugin) wants(info *app.Info) bool {
	if !info.IsolationEnabled() {
		return false
	}
	return info.SnapshotMode() || (p.cfg.Fallback && !p.supported)
}

func owns(inst *app.App) bool {
	sb := inst.Executor()
	return sb != nil && sb.Strategy() == sandbox.StrategySnapshot
}

func (p *plugin) afterLoad(ev app.Event) {
	if ev.App == nil || !p.wants(ev.Info) {
		return
	}
	if owns(ev.App) && !ev.App.Executor().Closed() {
		return
	}
	p.attach(ev.App)
}

func (p *plugin) attach(inst *app.App) {
	if _, err := inst.Isolate(sandbox.StrategySnapshot, nil); err != nil {
		p.logger.DevWarn("snapshot isolation not attached", zap.String("app", inst.Name), zap.Error(err))
		return
	}
	p.logger.Debug("snapshot isolation attached", zap.String("app", inst.Name))
}

func (p *plugin) beforeMount(ev app.Event) {
	if ev.App != nil && owns(ev.App) && ev.App.Executor().Closed() {
		p.attach(ev.App)
	}
}

func (p *plugin) afterUnmount(ev app.Event) {
	if ev.App != nil && owns(ev.App) {
		ev.App.Executor().Reset()
	}
}
