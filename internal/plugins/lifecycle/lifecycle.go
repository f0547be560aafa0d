// Package lifecycle forwards host hooks to the callbacks carried by each
// descriptor.
package lifecycle

import (
	"context"

	"github.com/GriffinCanCode/AgentOS/apphost/internal/app"
	"github.com/GriffinCanCode/AgentOS/apphost/internal/hooks"
	"github.com/GriffinCanCode/AgentOS/apphost/internal/host"
)

// Name is the plugin name
const Name = "apphost-options-life"

// New creates the plugin
func New() *host.Plugin {
	return &host.Plugin{
		Name:    Name,
		Version: host.Version,
		BeforeLoad: func(ctx context.Context, info *app.Info) (hooks.Outcome, error) {
			if cb := info.Callbacks.BeforeLoad; cb != nil && !cb(ctx, info) {
				return hooks.Stop, nil
			}
			return hooks.Continue, nil
		},
		AfterLoad: func(ev app.Event) {
			if cb := ev.Info.Callbacks.AfterLoad; cb != nil {
				cb(ev.Info, ev.App)
			}
		},
		ErrorLoadApp: func(ev app.Event) {
			if cb := ev.Info.Callbacks.ErrorLoadApp; cb != nil {
				cb(ev.Info, ev.Err)
			}
		},
		BeforeMount:   forward(func(c app.Callbacks) func(*app.Info, *app.App) { return c.BeforeMount }),
		AfterMount:    forward(func(c app.Callbacks) func(*app.Info, *app.App) { return c.AfterMount }),
		BeforeUnmount: forward(func(c app.Callbacks) func(*app.Info, *app.App) { return c.BeforeUnmount }),
		AfterUnmount:  forward(func(c app.Callbacks) func(*app.Info, *app.App) { return c.AfterUnmount }),
		ErrorMountApp: func(ev app.Event) {
			if cb := ev.Info.Callbacks.ErrorMountApp; cb != nil {
				cb(ev.Info, ev.Err)
			}
		},
	}
}

func forward(pick func(app.Callbacks) func(*app.Info, *app.App)) func(app.Event) {
	return func(ev app.Event) {
		if ev.Info == nil {
			return
		}
		if cb := pick(ev.Info.Callbacks); cb != nil {
			cb(ev.Info, ev.App)
		}
	}
}
