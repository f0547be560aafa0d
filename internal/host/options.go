package host

import (
	"maps"
	"slices"

	"github.com/GriffinCanCode/AgentOS/apphost/internal/app"
	"github.com/GriffinCanCode/AgentOS/apphost/internal/sandbox/dom"
)

// Options are the process-wide defaults and the initial registrations
type Options struct {
	Apps    []app.Info
	Plugins []*Plugin

	Basename string
	// BaseURL resolves relative entries
	BaseURL            string
	DOMGetter          func() *dom.Element
	Props              map[string]any
	Cache              *bool
	Sandbox            *app.SandboxConfig
	ProtectVariable    []string
	InsulationVariable []string
	DisablePreloadApp  bool
	Callbacks          app.Callbacks
}

// DefaultOptions returns the defaults every host starts from
func DefaultOptions() Options {
	return Options{
		Basename: "/",
		Cache:    app.Bool(true),
		Sandbox:  &app.SandboxConfig{Open: app.Bool(true)},
	}
}

// merged returns o with every field set in next overriding it. Apps and
// Plugins are not kept. Props are taken as given, not merged.
func (o Options) merged(next Options) Options {
	out := o
	out.Apps, out.Plugins = nil, nil

	if next.Basename != "" {
		out.Basename = next.Basename
	}
	if next.BaseURL != "" {
		out.BaseURL = next.BaseURL
	}
	if next.DOMGetter != nil {
		out.DOMGetter = next.DOMGetter
	}
	if next.Props != nil {
		out.Props = next.Props
	}
	if next.Cache != nil {
		out.Cache = app.Bool(*next.Cache)
	}
	if next.Sandbox != nil {
		out.Sandbox = mergeSandbox(out.Sandbox, next.Sandbox)
	}
	out.ProtectVariable = union(out.ProtectVariable, next.ProtectVariable)
	out.InsulationVariable = union(out.InsulationVariable, next.InsulationVariable)
	out.DisablePreloadApp = out.DisablePreloadApp || next.DisablePreloadApp
	out.Callbacks = mergeCallbacks(out.Callbacks, next.Callbacks)
	return out
}

// defaults is the lowest-precedence descriptor built from the options
func (o Options) defaults() *app.Info {
	info := &app.Info{
		Cache:              o.Cache,
		Sandbox:            o.Sandbox,
		ProtectVariable:    o.ProtectVariable,
		InsulationVariable: o.InsulationVariable,
		Basename:           o.Basename,
		Props:              o.Props,
		DOMGetter:          o.DOMGetter,
		Callbacks:          o.Callbacks,
	}
	return info.Clone()
}

// Merge returns a new descriptor with override applied on top of base.
// Set scalar fields and callbacks in override win, variable lists are
// unioned in order, props are merged key by key. Neither argument is
// modified and the result shares no slices or maps with them.
//
// The load pipeline applies it twice: process defaults, then the
// registered descriptor, then the call-site options.
func Merge(base, override *app.Info) *app.Info {
	out := base.Clone()
	if out == nil {
		out = &app.Info{}
	}
	if override == nil {
		return out
	}

	if override.Name != "" {
		out.Name = override.Name
	}
	if override.Entry != "" {
		out.Entry = override.Entry
	}
	if override.Basename != "" {
		out.Basename = override.Basename
	}
	if override.Cache != nil {
		out.Cache = app.Bool(*override.Cache)
	}
	if override.Sandbox != nil {
		out.Sandbox = mergeSandbox(out.Sandbox, override.Sandbox)
	}
	out.ProtectVariable = union(out.ProtectVariable, override.ProtectVariable)
	out.InsulationVariable = union(out.InsulationVariable, override.InsulationVariable)

	if override.Props != nil {
		if out.Props == nil {
			out.Props = make(map[string]any, len(override.Props))
		}
		maps.Copy(out.Props, override.Props)
	}
	if override.DOMGetter != nil {
		out.DOMGetter = override.DOMGetter
	}
	out.Callbacks = mergeCallbacks(out.Callbacks, override.Callbacks)
	return out
}

func mergeSandbox(base, override *app.SandboxConfig) *app.SandboxConfig {
	if base == nil {
		return override.Clone()
	}
	out := base.Clone()
	if override == nil {
		return out
	}
	out.Disabled = out.Disabled || override.Disabled
	if override.Open != nil {
		out.Open = app.Bool(*override.Open)
	}
	out.Snapshot = out.Snapshot || override.Snapshot
	out.StrictIsolation = out.StrictIsolation || override.StrictIsolation
	out.Modules = append(out.Modules, override.Modules...)
	return out
}

func union(a, b []string) []string {
	if len(a) == 0 && len(b) == 0 {
		return nil
	}
	out := make([]string, 0, len(a)+len(b))
	for _, s := range slices.Concat(a, b) {
		if !slices.Contains(out, s) {
			out = append(out, s)
		}
	}
	return out
}

func mergeCallbacks(base, override app.Callbacks) app.Callbacks {
	out := base
	if override.BeforeLoad != nil {
		out.BeforeLoad = override.BeforeLoad
	}
	if override.AfterLoad != nil {
		out.AfterLoad = override.AfterLoad
	}
	if override.ErrorLoadApp != nil {
		out.ErrorLoadApp = override.ErrorLoadApp
	}
	if override.BeforeMount != nil {
		out.BeforeMount = override.BeforeMount
	}
	if override.AfterMount != nil {
		out.AfterMount = override.AfterMount
	}
	if override.ErrorMountApp != nil {
		out.ErrorMountApp = override.ErrorMountApp
	}
	if override.BeforeUnmount != nil {
		out.BeforeUnmount = override.BeforeUnmount
	}
	if override.AfterUnmount != nil {
		out.AfterUnmount = override.AfterUnmount
	}
	return out
}
