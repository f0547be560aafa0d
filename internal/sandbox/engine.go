package sandbox

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/GriffinCanCode/AgentOS/apphost/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/apphost/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/apphost/internal/sandbox/dom"
	"github.com/dop251/goja"
)

// EngineOptions configures an Engine
type EngineOptions struct {
	// ExecTimeout bounds one script execution; 0 disables the limit
	ExecTimeout  time.Duration
	MaxCallStack int
	// Document is the host page root; nil creates an empty one
	Document *dom.Element
	// Capability overrides the live-isolation probe
	Capability func() bool
	Logger     *logging.Logger
	Metrics    *monitoring.Metrics
}

// DefaultEngineOptions returns the defaults used by the host
func DefaultEngineOptions() EngineOptions {
	return EngineOptions{
		ExecTimeout:  5 * time.Second,
		MaxCallStack: 1024,
	}
}

// Engine owns the shared environment and the runtime all sandboxes use
type Engine struct {
	env      Environment
	opts     EngineOptions
	document *dom.Element
	logger   *logging.Logger
	metrics  *monitoring.Metrics

	// mu is the execution lock: one script, or one bookkeeping step, at a time
	mu       sync.Mutex
	vm       *goja.Runtime
	builtins map[string]bool
	wrap     goja.Callable

	probeOnce sync.Once
	supported bool
}

// NewEngine creates an engine over env
func NewEngine(env Environment, opts EngineOptions) *Engine {
	if env == nil {
		env = NewEnvironment()
	}
	document := opts.Document
	if document == nil {
		document = dom.NewDocument()
	}

	vm := goja.New()
	if opts.MaxCallStack > 0 {
		vm.SetMaxCallStackSize(opts.MaxCallStack)
	}

	return &Engine{
		env:      env,
		opts:     opts,
		document: document,
		logger:   logging.OrNop(opts.Logger).Named("sandbox"),
		metrics:  opts.Metrics,
		vm:       vm,
		builtins: builtinNames(vm),
	}
}

// builtinNames lists the runtime's own globals (Object, JSON, parseInt...).
// Views resolve them through the classification table and fall back to the
// native value.
func builtinNames(vm *goja.Runtime) map[string]bool {
	names := map[string]bool{"undefined": true, "NaN": true, "Infinity": true, "eval": true}
	v, err := vm.RunString("Object.getOwnPropertyNames(globalThis)")
	if err != nil {
		return names
	}
	var list []string
	if err := vm.ExportTo(v, &list); err != nil {
		return names
	}
	for _, name := range list {
		names[name] = true
	}
	return names
}

// Env returns the shared environment
func (e *Engine) Env() Environment { return e.env }

// Document returns the host page root
func (e *Engine) Document() *dom.Element { return e.document }

// Supported reports whether live isolation is available. The probe runs
// once per engine.
func (e *Engine) Supported() bool {
	e.probeOnce.Do(func() {
		if e.opts.Capability != nil {
			e.supported = e.opts.Capability()
		} else {
			e.supported = CanSupport()
		}
	})
	return e.supported
}

// Snapshot returns the environment with script values exported to Go.
func (e *Engine) Snapshot() map[string]any {
	e.mu.Lock()
	defer e.mu.Unlock()

	raw := e.env.Snapshot()
	out := make(map[string]any, len(raw))
	for k, v := range raw {
		out[k] = Export(v)
	}
	return out
}

// Lookup returns one exported environment value
func (e *Engine) Lookup(key string) (any, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	v, ok := e.env.Get(key)
	return Export(v), ok
}

// Update runs fn against the environment while no script is executing
func (e *Engine) Update(fn func(env Environment)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	fn(e.env)
}

// Sync runs fn while no script is executing. Go values shared with scripts
// must be read through it.
func (e *Engine) Sync(fn func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	fn()
}

// locked runs fn while holding the execution lock
func (e *Engine) locked(fn func(vm *goja.Runtime) error) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return fn(e.vm)
}

// wrapper returns the compiled script wrapper. Must be called with mu held.
func (e *Engine) wrapper() (goja.Callable, error) {
	if e.wrap != nil {
		return e.wrap, nil
	}
	v, err := e.vm.RunString(wrapperSource)
	if err != nil {
		return nil, err
	}
	fn, ok := goja.AssertFunction(v)
	if !ok {
		return nil, errors.New("script wrapper is not callable")
	}
	e.wrap = fn
	return fn, nil
}

// native returns the runtime's own value for a builtin name
func (e *Engine) native(key string) goja.Value {
	if !e.builtins[key] {
		return nil
	}
	return e.vm.GlobalObject().Get(key)
}

// run executes fn on the runtime under the execution lock with timeout and
// context interruption. Must be called with mu held.
func (e *Engine) run(ctx context.Context, timeout time.Duration, fn func(vm *goja.Runtime) (goja.Value, error)) (val goja.Value, err error) {
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		var timer <-chan time.Time
		if timeout > 0 {
			t := time.NewTimer(timeout)
			defer t.Stop()
			timer = t.C
		}
		select {
		case <-timer:
			e.vm.Interrupt(ErrTimeout)
		case <-ctx.Done():
			e.vm.Interrupt(ctx.Err())
		case <-done:
		}
	}()

	defer func() {
		close(done)
		wg.Wait()
		e.vm.ClearInterrupt()

		if r := recover(); r != nil {
			val, err = nil, fmt.Errorf("panic during execution: %v", r)
		}
	}()

	return fn(e.vm)
}

// probeObject is a throwaway dynamic object used by CanSupport
type probeObject struct {
	values map[string]goja.Value
}

func (p *probeObject) Get(key string) goja.Value { return p.values[key] }
func (p *probeObject) Set(key string, val goja.Value) bool {
	p.values[key] = val
	return true
}
func (p *probeObject) Has(key string) bool { return key == "probe" }
func (p *probeObject) Delete(key string) bool {
	delete(p.values, key)
	return true
}
func (p *probeObject) Keys() []string {
	keys := make([]string, 0, len(p.values))
	for k := range p.values {
		keys = append(keys, k)
	}
	return keys
}

// CanSupport reports whether global identifier resolution can be routed
// through a dynamic object. It uses a throwaway runtime and has no side
// effects.
func CanSupport() (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()

	vm := goja.New()
	probe := &probeObject{values: make(map[string]goja.Value)}
	obj := vm.NewDynamicObject(probe)

	v, err := vm.RunString("(function(w){ with(w){ probe = 41; return probe + 1; } })")
	if err != nil {
		return false
	}
	fn, isFn := goja.AssertFunction(v)
	if !isFn {
		return false
	}
	res, err := fn(goja.Undefined(), obj)
	if err != nil {
		return false
	}
	stored, written := probe.values["probe"]
	return res.ToInteger() == 42 && written && stored.ToInteger() == 41
}
