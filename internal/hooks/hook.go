package hooks

import (
	"context"
	"sync"
)

// Outcome is the result of an AsyncHook callback
type Outcome int

const (
	// Continue lets the chain proceed to the next callback
	Continue Outcome = iota
	// Stop halts the chain; the caller treats the operation as aborted
	Stop
)

// String returns the outcome name
func (o Outcome) String() string {
	if o == Stop {
		return "stop"
	}
	return "continue"
}

type tap[F any] struct {
	plugin string
	fn     F
}

// taps is the ordered callback list shared by all hook kinds
type taps[F any] struct {
	name string
	mu   sync.RWMutex
	list []tap[F]
}

func (t *taps[F]) add(plugin string, fn F) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.list = append(t.list, tap[F]{plugin: plugin, fn: fn})
}

func (t *taps[F]) remove(plugin string) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	kept := t.list[:0:0]
	for _, tp := range t.list {
		if tp.plugin != plugin {
			kept = append(kept, tp)
		}
	}
	removed := len(t.list) - len(kept)
	t.list = kept
	return removed
}

// snapshot copies the list so callbacks may tap or untap while running
func (t *taps[F]) snapshot() []tap[F] {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]tap[F], len(t.list))
	copy(out, t.list)
	return out
}

// Name returns the hook name
func (t *taps[F]) Name() string { return t.name }

// Len returns the number of registered callbacks
func (t *taps[F]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.list)
}

// Plugins returns the registering plugin names in call order
func (t *taps[F]) Plugins() []string {
	list := t.snapshot()
	names := make([]string, len(list))
	for i, tp := range list {
		names[i] = tp.plugin
	}
	return names
}

// Untap removes every callback registered by plugin and returns how many
func (t *taps[F]) Untap(plugin string) int { return t.remove(plugin) }

// SyncHook calls every callback in registration order
type SyncHook[T any] struct {
	taps[func(T)]
}

// NewSyncHook creates a named sync hook
func NewSyncHook[T any](name string) *SyncHook[T] {
	h := &SyncHook[T]{}
	h.name = name
	return h
}

// Tap registers fn under plugin
func (h *SyncHook[T]) Tap(plugin string, fn func(T)) {
	h.add(plugin, fn)
}

// Call invokes every callback with arg
func (h *SyncHook[T]) Call(arg T) {
	for _, tp := range h.snapshot() {
		tp.fn(arg)
	}
}

// AsyncFunc is an AsyncHook callback
type AsyncFunc[T any] func(ctx context.Context, arg T) (Outcome, error)

// AsyncHook awaits callbacks one at a time and supports halting
type AsyncHook[T any] struct {
	taps[AsyncFunc[T]]
}

// NewAsyncHook creates a named async hook
func NewAsyncHook[T any](name string) *AsyncHook[T] {
	h := &AsyncHook[T]{}
	h.name = name
	return h
}

// Tap registers fn under plugin
func (h *AsyncHook[T]) Tap(plugin string, fn AsyncFunc[T]) {
	h.add(plugin, fn)
}

// Promise runs the chain. The first callback returning Stop or an error
// ends it; remaining callbacks are skipped and that outcome is returned.
func (h *AsyncHook[T]) Promise(ctx context.Context, arg T) (Outcome, error) {
	for _, tp := range h.snapshot() {
		if err := ctx.Err(); err != nil {
			return Stop, err
		}
		outcome, err := tp.fn(ctx, arg)
		if err != nil {
			return Stop, err
		}
		if outcome == Stop {
			return Stop, nil
		}
	}
	return Continue, nil
}

// WaterfallFunc is a WaterfallHook callback
type WaterfallFunc[T any] func(ctx context.Context, value T) (T, error)

// WaterfallHook threads a value through every callback in order
type WaterfallHook[T any] struct {
	taps[WaterfallFunc[T]]
}

// NewWaterfallHook creates a named waterfall hook
func NewWaterfallHook[T any](name string) *WaterfallHook[T] {
	h := &WaterfallHook[T]{}
	h.name = name
	return h
}

// Tap registers fn under plugin
func (h *WaterfallHook[T]) Tap(plugin string, fn WaterfallFunc[T]) {
	h.add(plugin, fn)
}

// Emit passes value through the chain and returns the final value. An
// error stops the chain and is returned with the last good value.
func (h *WaterfallHook[T]) Emit(ctx context.Context, value T) (T, error) {
	for _, tp := range h.snapshot() {
		next, err := tp.fn(ctx, value)
		if err != nil {
			return value, err
		}
		value = next
	}
	return value, nil
}
