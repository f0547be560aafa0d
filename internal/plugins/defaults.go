package plugins

import (
	"github.com/GriffinCanCode/AgentOS/apphost/internal/host"
	"github.com/GriffinCanCode/AgentOS/apphost/internal/plugins/lifecycle"
	"github.com/GriffinCanCode/AgentOS/apphost/internal/plugins/preload"
	"github.com/GriffinCanCode/AgentOS/apphost/internal/plugins/snapshot"
	"github.com/GriffinCanCode/AgentOS/apphost/internal/plugins/vm"
)

// Config selects the default plugin set
type Config struct {
	Dev              bool
	SnapshotFallback bool
	DisablePreload   bool
	Preload          preload.Config
}

// Defaults returns the default plugins in installation order. The
// preloader is nil when preloading is disabled; callers Close it on
// shutdown.
func Defaults(cfg Config) ([]*host.Plugin, *preload.Preloader) {
	list := []*host.Plugin{
		lifecycle.New(),
		vm.New(vm.Config{Dev: cfg.Dev}),
		snapshot.New(snapshot.Config{Fallback: cfg.SnapshotFallback}),
	}
	if cfg.DisablePreload {
		return list, nil
	}
	preloader := preload.New(cfg.Preload)
	return append(list, preloader.Plugin()), preloader
}
