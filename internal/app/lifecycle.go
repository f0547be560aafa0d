package app

import (
	"github.com/GriffinCanCode/AgentOS/apphost/internal/hooks"
	"github.com/GriffinCanCode/AgentOS/apphost/internal/sandbox"
)

// Event is the argument of the instance lifecycle hooks
type Event struct {
	Info *Info
	App  *App
	Err  error
}

// EvalEvent describes one script execution. AfterEval sees Result and Err.
type EvalEvent struct {
	Info   *Info
	App    *App
	Code   string
	URL    string
	Env    map[string]any
	Result *sandbox.Result
	Err    error
}

// Lifecycle holds the hooks an instance fires itself
type Lifecycle struct {
	BeforeEval    *hooks.SyncHook[*EvalEvent]
	AfterEval     *hooks.SyncHook[*EvalEvent]
	BeforeMount   *hooks.SyncHook[Event]
	AfterMount    *hooks.SyncHook[Event]
	ErrorMountApp *hooks.SyncHook[Event]
	BeforeUnmount *hooks.SyncHook[Event]
	AfterUnmount  *hooks.SyncHook[Event]
}

// NewLifecycle creates empty instance hooks
func NewLifecycle() *Lifecycle {
	return &Lifecycle{
		BeforeEval:    hooks.NewSyncHook[*EvalEvent]("beforeEval"),
		AfterEval:     hooks.NewSyncHook[*EvalEvent]("afterEval"),
		BeforeMount:   hooks.NewSyncHook[Event]("beforeMount"),
		AfterMount:    hooks.NewSyncHook[Event]("afterMount"),
		ErrorMountApp: hooks.NewSyncHook[Event]("errorMountApp"),
		BeforeUnmount: hooks.NewSyncHook[Event]("beforeUnmount"),
		AfterUnmount:  hooks.NewSyncHook[Event]("afterUnmount"),
	}
}
