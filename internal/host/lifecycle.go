package host

import (
	"github.com/GriffinCanCode/AgentOS/apphost/internal/app"
	"github.com/GriffinCanCode/AgentOS/apphost/internal/hooks"
	"github.com/GriffinCanCode/AgentOS/apphost/internal/resource"
)

// ResourceEvent lets ProcessResource callbacks edit the assembled
// resources before the instance is built.
type ResourceEvent struct {
	Info      *app.Info
	Entry     *resource.TemplateManager
	Resources *app.Resources
}

// Lifecycle is every hook of the host. The instance hooks (mount, unmount,
// eval) are embedded from app.Lifecycle.
type Lifecycle struct {
	*app.Lifecycle

	Initialize        *hooks.SyncHook[*Options]
	BeforeBootstrap   *hooks.SyncHook[*Options]
	Bootstrap         *hooks.SyncHook[*Options]
	BeforeRegisterApp *hooks.SyncHook[[]app.Info]
	RegisterApp       *hooks.SyncHook[map[string]*app.Info]
	// BeforeLoad may return hooks.Stop to cancel a load
	BeforeLoad      *hooks.AsyncHook[*app.Info]
	AfterLoad       *hooks.SyncHook[app.Event]
	ErrorLoadApp    *hooks.SyncHook[app.Event]
	ProcessResource *hooks.SyncHook[ResourceEvent]
}

// NewLifecycle creates empty host hooks
func NewLifecycle() *Lifecycle {
	return &Lifecycle{
		Lifecycle:         app.NewLifecycle(),
		Initialize:        hooks.NewSyncHook[*Options]("initialize"),
		BeforeBootstrap:   hooks.NewSyncHook[*Options]("beforeBootstrap"),
		Bootstrap:         hooks.NewSyncHook[*Options]("bootstrap"),
		BeforeRegisterApp: hooks.NewSyncHook[[]app.Info]("beforeRegisterApp"),
		RegisterApp:       hooks.NewSyncHook[map[string]*app.Info]("registerApp"),
		BeforeLoad:        hooks.NewAsyncHook[*app.Info]("beforeLoad"),
		AfterLoad:         hooks.NewSyncHook[app.Event]("afterLoad"),
		ErrorLoadApp:      hooks.NewSyncHook[app.Event]("errorLoadApp"),
		ProcessResource:   hooks.NewSyncHook[ResourceEvent]("processResource"),
	}
}

// Plugin is a named set of hook callbacks. Nil callbacks are skipped.
// Setup runs once when the plugin is installed.
type Plugin struct {
	Name    string
	Version string
	Setup   func(h *Host)

	Initialize        func(opts *Options)
	BeforeBootstrap   func(opts *Options)
	Bootstrap         func(opts *Options)
	BeforeRegisterApp func(list []app.Info)
	RegisterApp       func(infos map[string]*app.Info)
	BeforeLoad        hooks.AsyncFunc[*app.Info]
	AfterLoad         func(ev app.Event)
	ErrorLoadApp      func(ev app.Event)
	ProcessResource   func(ev ResourceEvent)
	BeforeEval        func(ev *app.EvalEvent)
	AfterEval         func(ev *app.EvalEvent)
	BeforeMount       func(ev app.Event)
	AfterMount        func(ev app.Event)
	ErrorMountApp     func(ev app.Event)
	BeforeUnmount     func(ev app.Event)
	AfterUnmount      func(ev app.Event)
}

func tapIf[T any](hook *hooks.SyncHook[T], plugin string, fn func(T)) {
	if fn != nil {
		hook.Tap(plugin, fn)
	}
}

// use taps every callback p defines
func (l *Lifecycle) use(p *Plugin) {
	name := p.Name
	tapIf(l.Initialize, name, p.Initialize)
	tapIf(l.BeforeBootstrap, name, p.BeforeBootstrap)
	tapIf(l.Bootstrap, name, p.Bootstrap)
	tapIf(l.BeforeRegisterApp, name, p.BeforeRegisterApp)
	tapIf(l.RegisterApp, name, p.RegisterApp)
	if p.BeforeLoad != nil {
		l.BeforeLoad.Tap(name, p.BeforeLoad)
	}
	tapIf(l.AfterLoad, name, p.AfterLoad)
	tapIf(l.ErrorLoadApp, name, p.ErrorLoadApp)
	tapIf(l.ProcessResource, name, p.ProcessResource)
	tapIf(l.BeforeEval, name, p.BeforeEval)
	tapIf(l.AfterEval, name, p.AfterEval)
	tapIf(l.BeforeMount, name, p.BeforeMount)
	tapIf(l.AfterMount, name, p.AfterMount)
	tapIf(l.ErrorMountApp, name, p.ErrorMountApp)
	tapIf(l.BeforeUnmount, name, p.BeforeUnmount)
	tapIf(l.AfterUnmount, name, p.AfterUnmount)
}
