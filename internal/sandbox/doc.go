/*
Package sandbox is the isolation engine: it lets several applications run
scripts against what looks like a private global environment while they
actually share one Environment.

# Model

An Engine owns the shared Environment and one goja runtime. Every script
execution holds the engine's execution lock, so the environment is mutated
by one script at a time. A Sandbox is one application's handle on the engine.
Scripts run as

	(function(window, self, globalThis){ with(window){ <code> } })

where window is a goja DynamicObject view owned by the sandbox. Every global
identifier the script touches goes through the view, and the view applies the
classification table:

  - protected: reads see the shared value, writes are ignored
  - insulated: reads and writes use a private per-sandbox slot
  - passthrough (default): reads and writes go to the shared environment

Per-call bindings passed to ExecScript shadow everything else and are
protected for the duration of the call.

# Strategies

  - StrategyLive classifies every access through the view.
  - StrategySnapshot lets scripts write the shared environment directly and
    diffs it around every execution, reverting protected keys and moving
    insulated keys into private slots.
  - StrategyDirect performs no isolation.

Runtime builtins such as Promise or JSON are classified like any other
global. A builtin with no shared or private value resolves to the
runtime's own.

Live needs the runtime to route global identifier resolution through a
dynamic object; CanSupport probes for that. New refuses StrategyLive when
the probe fails so callers can fall back to StrategySnapshot.

# Teardown

Reset restores every protected or insulated key the sandbox touched to its
value at attach time, runs module Recover callbacks, removes DOM nodes the
application appended and releases private slots. Reset is idempotent, and
afterwards ExecScript returns ErrClosed.
*/
package sandbox
