package sandbox

import (
	"reflect"
	"sort"
	"sync"

	"github.com/dop251/goja"
)

// Environment is the shared global store every sandbox works against.
// Values written from scripts are goja.Value; values written from Go are
// plain Go values.
type Environment interface {
	Get(key string) (any, bool)
	Set(key string, value any)
	Has(key string) bool
	Delete(key string)
	Keys() []string
	Snapshot() map[string]any
}

// MapEnvironment is the default map-backed Environment
type MapEnvironment struct {
	mu     sync.RWMutex
	values map[string]any
}

// NewEnvironment creates an empty environment
func NewEnvironment() *MapEnvironment {
	return &MapEnvironment{values: make(map[string]any)}
}

func (e *MapEnvironment) Get(key string) (any, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	v, ok := e.values[key]
	return v, ok
}

func (e *MapEnvironment) Set(key string, value any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.values[key] = value
}

func (e *MapEnvironment) Has(key string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.values[key]
	return ok
}

func (e *MapEnvironment) Delete(key string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.values, key)
}

// Keys returns the keys in sorted order
func (e *MapEnvironment) Keys() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	keys := make([]string, 0, len(e.values))
	for k := range e.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Snapshot returns a shallow copy
func (e *MapEnvironment) Snapshot() map[string]any {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make(map[string]any, len(e.values))
	for k, v := range e.values {
		out[k] = v
	}
	return out
}

// Export converts a stored value into a plain Go value.
func Export(v any) any {
	if jv, ok := v.(goja.Value); ok {
		if jv == nil || goja.IsUndefined(jv) || goja.IsNull(jv) {
			return nil
		}
		return jv.Export()
	}
	return v
}

// sameValue compares stored values by identity: goja values with SameAs,
// reference-like Go values by pointer, everything else by equality.
func sameValue(a, b any) (same bool) {
	av, aok := a.(goja.Value)
	bv, bok := b.(goja.Value)
	switch {
	case aok && bok:
		return av.SameAs(bv)
	case aok || bok:
		return false
	}

	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb {
		return false
	}
	if ta == nil {
		return true
	}

	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	switch ta.Kind() {
	case reflect.Map, reflect.Func, reflect.Pointer, reflect.Chan, reflect.UnsafePointer:
		return va.Pointer() == vb.Pointer()
	case reflect.Slice:
		return va.Pointer() == vb.Pointer() && va.Len() == vb.Len()
	}

	if ta.Comparable() {
		defer func() {
			if recover() != nil {
				same = reflect.DeepEqual(a, b)
			}
		}()
		return a == b
	}
	return reflect.DeepEqual(a, b)
}
