package sandbox

import (
	"context"
	"errors"
	"fmt"

	"github.com/GriffinCanCode/AgentOS/apphost/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/apphost/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/apphost/internal/sandbox/dom"
	"github.com/GriffinCanCode/AgentOS/apphost/internal/shared/id"
	"github.com/dop251/goja"
	"go.uber.org/zap"
)

// sourceParam carries the script text into the wrapper. Views never claim
// it, so inside the with block it resolves to the parameter.
const sourceParam = "__sandbox_source__"

// wrapperSource evaluates a script with the view as its global object. The
// direct eval keeps the with scope and yields the completion value.
const wrapperSource = "(function(window, self, globalThis, " + sourceParam + "){with(window){return eval(" + sourceParam + ")}})"

// Sandbox is one application's isolated view of an Engine. All mutable
// fields are guarded by the engine's execution lock.
type Sandbox struct {
	ID     id.SandboxID
	engine *Engine
	cfg    Config
	logger *logging.Logger

	protected map[string]bool
	insulated map[string]bool

	view      *goja.Object
	overlay   map[string]goja.Value
	overrides map[string]goja.Value
	private   map[string]any
	recovers  []func()

	// attach holds the environment at construction for Reset
	attach  map[string]any
	touched map[string]bool
	snap    *snapshotState

	console  []LogEntry
	changes  []DOMChange
	domNodes []*dom.Element
	nodeObjs map[*dom.Element]*goja.Object
	objNodes map[*goja.Object]*dom.Element
	sources  []string

	closed bool
}

// New attaches a sandbox to engine. StrategyLive fails with ErrUnsupported
// when the engine cannot intercept global access.
func New(engine *Engine, cfg Config) (*Sandbox, error) {
	if engine == nil {
		return nil, errors.New("sandbox: nil engine")
	}
	if cfg.Strategy == StrategyLive && !engine.Supported() {
		return nil, ErrUnsupported
	}

	s := &Sandbox{
		ID:        id.NewSandboxID(),
		engine:    engine,
		cfg:       cfg,
		protected: toSet(cfg.ProtectVariable),
		insulated: toSet(cfg.InsulationVariable),
		overrides: make(map[string]goja.Value),
		private:   make(map[string]any),
		touched:   make(map[string]bool),
		nodeObjs:  make(map[*dom.Element]*goja.Object),
		objNodes:  make(map[*goja.Object]*dom.Element),
		sources:   append([]string(nil), cfg.SourceList...),
	}
	s.logger = engine.logger.With(
		zap.String("namespace", cfg.Namespace),
		zap.String("sandbox", s.ID.String()),
		zap.String("strategy", cfg.Strategy.String()))

	modules := append([]Module{consoleModule, timerModule, documentModule}, cfg.Modules...)

	err := engine.locked(func(vm *goja.Runtime) error {
		s.attach = engine.env.Snapshot()
		s.view = vm.NewDynamicObject(&view{s: s})

		for _, module := range modules {
			override := module(s)
			for k, v := range override.Values {
				s.overrides[k] = s.toJS(vm, v)
			}
			if override.Recover != nil {
				s.recovers = append(s.recovers, override.Recover)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	engine.metrics.SandboxAttached(cfg.Strategy.String(), 1)
	s.logger.Debug("sandbox attached")
	return s, nil
}

func toSet(list func() []string) map[string]bool {
	set := make(map[string]bool)
	if list == nil {
		return set
	}
	for _, name := range list() {
		set[name] = true
	}
	return set
}

// Namespace returns the owning application name
func (s *Sandbox) Namespace() string { return s.cfg.Namespace }

// Strategy returns the isolation strategy
func (s *Sandbox) Strategy() Strategy { return s.cfg.Strategy }

// Engine returns the engine the sandbox is attached to
func (s *Sandbox) Engine() *Engine { return s.engine }

// Classify returns the class of key. Per-call bindings are protected
// while a script runs.
func (s *Sandbox) Classify(key string) Class {
	if _, ok := s.overlay[key]; ok {
		return Protected
	}
	if s.protected[key] {
		return Protected
	}
	if s.insulated[key] {
		return Insulated
	}
	return Passthrough
}

// ExecScript evaluates code as if at global scope. env is shallow-merged
// over the sandbox globals for this call only. Runtime failures are
// returned as *ScriptError tagged with url.
func (s *Sandbox) ExecScript(ctx context.Context, code string, env map[string]any, url string, opts ExecOptions) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	timeout := s.cfg.ExecTimeout
	if timeout == 0 {
		timeout = s.engine.opts.ExecTimeout
	}

	s.engine.mu.Lock()
	defer s.engine.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}

	timer := monitoring.NewTimer(s.engine.metrics, s.cfg.Strategy.String())
	s.console = nil
	s.changes = nil
	s.overlay = make(map[string]goja.Value, len(env))
	for k, v := range env {
		s.overlay[k] = s.toJS(s.engine.vm, v)
	}
	if url != "" {
		s.sources = append(s.sources, url)
	}

	if s.cfg.Strategy == StrategySnapshot {
		s.activate()
	}

	val, err := s.engine.run(ctx, timeout, func(vm *goja.Runtime) (goja.Value, error) {
		name := url
		if name == "" {
			name = s.cfg.Namespace + ":inline"
		}
		if _, err := goja.Compile(name, code, false); err != nil {
			return nil, err
		}
		wrapper, err := s.engine.wrapper()
		if err != nil {
			return nil, err
		}
		return wrapper(s.view, s.view, s.view, s.view, vm.ToValue(code))
	})

	if s.cfg.Strategy == StrategySnapshot {
		s.deactivate()
	}
	s.overlay = nil

	result := &Result{
		Console:    s.console,
		DOMChanges: s.changes,
		Strategy:   s.cfg.Strategy,
	}
	result.Duration = timer.Stop(err)

	if err != nil {
		err = &ScriptError{URL: url, Err: normalizeError(err)}
		s.logger.Debug("script failed",
			zap.String("url", url),
			zap.Bool("inline", opts.Inline),
			zap.Error(err))
		return result, err
	}

	result.Value = Export(val)
	return result, nil
}

func normalizeError(err error) error {
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		if cause, ok := interrupted.Value().(error); ok {
			if errors.Is(cause, ErrTimeout) {
				return ErrTimeout
			}
			return fmt.Errorf("%w: %w", ErrTimeout, cause)
		}
		return ErrTimeout
	}
	return err
}

// Reset tears the sandbox down. Calling it again is a no-op.
func (s *Sandbox) Reset() {
	s.engine.mu.Lock()
	defer s.engine.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true

	env := s.engine.env
	for key := range s.touched {
		if v, ok := s.attach[key]; ok {
			env.Set(key, v)
		} else {
			env.Delete(key)
		}
	}

	for _, recoverFn := range s.recovers {
		recoverFn()
	}
	for _, node := range s.domNodes {
		node.Remove()
	}

	s.private = nil
	s.overrides = nil
	s.domNodes = nil
	s.nodeObjs = nil
	s.objNodes = nil
	s.touched = nil
	s.attach = nil

	s.engine.metrics.SandboxAttached(s.cfg.Strategy.String(), -1)
	s.logger.Debug("sandbox reset")
}

// Closed reports whether Reset has run
func (s *Sandbox) Closed() bool {
	s.engine.mu.Lock()
	defer s.engine.mu.Unlock()
	return s.closed
}

// Global returns the environment as seen by this sandbox, exported to Go.
func (s *Sandbox) Global() map[string]any {
	s.engine.mu.Lock()
	defer s.engine.mu.Unlock()

	out := make(map[string]any)
	for k, v := range s.engine.env.Snapshot() {
		if s.cfg.Strategy == StrategyLive && s.insulated[k] {
			continue
		}
		out[k] = Export(v)
	}
	if s.cfg.Strategy != StrategyDirect {
		for k, v := range s.private {
			out[k] = Export(v)
		}
	}
	return out
}

// Sources returns the URLs of every script executed so far
func (s *Sandbox) Sources() []string {
	s.engine.mu.Lock()
	defer s.engine.mu.Unlock()
	return append([]string(nil), s.sources...)
}

// AttachedNodes returns DOM nodes the application appended
func (s *Sandbox) AttachedNodes() []*dom.Element {
	s.engine.mu.Lock()
	defer s.engine.mu.Unlock()
	return append([]*dom.Element(nil), s.domNodes...)
}

func (s *Sandbox) toJS(vm *goja.Runtime, v any) goja.Value {
	if jv, ok := v.(goja.Value); ok {
		return jv
	}
	return vm.ToValue(v)
}

// el returns the application container, falling back to the host document
func (s *Sandbox) el() *dom.Element {
	if s.cfg.El != nil {
		if el := s.cfg.El(); el != nil {
			return el
		}
	}
	return s.engine.document
}
