package sandbox

import (
	"sort"

	"github.com/dop251/goja"
	"go.uber.org/zap"
)

var selfNames = map[string]bool{
	"window":     true,
	"self":       true,
	"globalThis": true,
	"top":        true,
	"parent":     true,
}

// nativeNames always resolve to the runtime. The first three are read-only
// globals; eval must stay native for the wrapper's direct eval.
var nativeNames = map[string]bool{
	"undefined": true,
	"NaN":       true,
	"Infinity":  true,
	"eval":      true,
	sourceParam: true,
}

// view is the DynamicObject scripts see as window. It runs on the script's
// goroutine with the execution lock held.
type view struct {
	s *Sandbox
}

func (v *view) live() bool { return v.s.cfg.Strategy == StrategyLive }

func (v *view) Get(key string) goja.Value {
	s := v.s
	if selfNames[key] {
		return s.view
	}
	if val, ok := s.overlay[key]; ok {
		return val
	}
	if val, ok := s.overrides[key]; ok {
		return val
	}

	if v.live() && s.Classify(key) == Insulated {
		raw, ok := s.private[key]
		if !ok {
			return s.engine.native(key)
		}
		return s.toJS(s.engine.vm, raw)
	}

	raw, ok := s.engine.env.Get(key)
	if !ok {
		return s.engine.native(key)
	}
	return s.toJS(s.engine.vm, raw)
}

func (v *view) Set(key string, val goja.Value) bool {
	s := v.s
	if selfNames[key] {
		return true
	}
	if _, ok := s.overlay[key]; ok {
		s.logger.Debug("write to per-call binding ignored", zap.String("key", key))
		return true
	}
	if _, ok := s.overrides[key]; ok {
		s.overrides[key] = val
		return true
	}

	if v.live() {
		switch s.Classify(key) {
		case Protected:
			s.logger.Debug("write to protected global ignored", zap.String("key", key))
			return true
		case Insulated:
			s.private[key] = val
			return true
		}
	}

	s.engine.env.Set(key, val)
	return true
}

// Has claims every name but nativeNames, so builtins such as Promise or
// JSON go through classification like any other global.
func (v *view) Has(key string) bool {
	return !nativeNames[key]
}

func (v *view) Delete(key string) bool {
	s := v.s
	if selfNames[key] {
		return true
	}
	if _, ok := s.overlay[key]; ok {
		return true
	}
	if _, ok := s.overrides[key]; ok {
		delete(s.overrides, key)
		return true
	}

	if v.live() {
		switch s.Classify(key) {
		case Protected:
			return true
		case Insulated:
			delete(s.private, key)
			return true
		}
	}

	s.engine.env.Delete(key)
	return true
}

func (v *view) Keys() []string {
	s := v.s
	seen := make(map[string]bool)
	for _, k := range s.engine.env.Keys() {
		if v.live() && s.insulated[k] {
			continue
		}
		seen[k] = true
	}
	if v.live() {
		for k := range s.private {
			seen[k] = true
		}
	}
	for k := range s.overrides {
		seen[k] = true
	}
	for k := range s.overlay {
		seen[k] = true
	}

	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
