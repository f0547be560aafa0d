package sandbox

import (
	"strings"
	"time"

	"github.com/GriffinCanCode/AgentOS/apphost/internal/sandbox/dom"
	"github.com/dop251/goja"
	"go.uber.org/zap"
)

// consoleModule captures console output per execution
func consoleModule(s *Sandbox) Override {
	vm := s.engine.vm
	console := vm.NewObject()
	for _, level := range []string{"log", "info", "warn", "error", "debug"} {
		_ = console.Set(level, s.consoleFunc(level))
	}
	return Override{Values: map[string]any{"console": console}}
}

func (s *Sandbox) consoleFunc(level string) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		parts := make([]string, len(call.Arguments))
		for i, arg := range call.Arguments {
			parts[i] = arg.String()
		}
		msg := strings.Join(parts, " ")

		s.console = append(s.console, LogEntry{Level: level, Message: msg, Time: time.Now()})
		s.logger.Debug("console", zap.String("level", level), zap.String("message", msg))
		return goja.Undefined()
	}
}

// timerModule installs inert timers; scheduled callbacks never run
func timerModule(s *Sandbox) Override {
	var next int64
	schedule := func(goja.FunctionCall) goja.Value {
		next++
		return s.engine.vm.ToValue(next)
	}
	cancel := func(goja.FunctionCall) goja.Value { return goja.Undefined() }

	return Override{Values: map[string]any{
		"setTimeout":            schedule,
		"setInterval":           schedule,
		"requestAnimationFrame": schedule,
		"clearTimeout":          cancel,
		"clearInterval":         cancel,
		"cancelAnimationFrame":  cancel,
	}}
}

// documentModule exposes a document scoped to the application container.
// With strict isolation queries never leave the container.
func documentModule(s *Sandbox) Override {
	vm := s.engine.vm
	document := vm.NewObject()

	query := func(selector string) []*dom.Element {
		found := s.el().Query(selector)
		if len(found) == 0 && !s.cfg.StrictIsolation && s.el() != s.engine.document {
			found = s.engine.document.Query(selector)
		}
		return found
	}
	first := func(selector string) goja.Value {
		found := query(selector)
		if len(found) == 0 {
			return goja.Null()
		}
		return s.nodeObject(found[0])
	}

	_ = document.Set("getElementById", func(id string) goja.Value { return first("#" + id) })
	_ = document.Set("querySelector", func(selector string) goja.Value { return first(selector) })
	_ = document.Set("querySelectorAll", func(selector string) goja.Value {
		found := query(selector)
		objs := make([]any, len(found))
		for i, el := range found {
			objs[i] = s.nodeObject(el)
		}
		return vm.NewArray(objs...)
	})
	_ = document.Set("getElementsByClassName", func(class string) goja.Value {
		found := query("." + class)
		objs := make([]any, len(found))
		for i, el := range found {
			objs[i] = s.nodeObject(el)
		}
		return vm.NewArray(objs...)
	})
	_ = document.Set("createElement", func(tag string) goja.Value {
		return s.nodeObject(dom.NewElement(tag))
	})
	_ = document.Set("baseURI", s.cfg.BaseURL)

	container := func(goja.FunctionCall) goja.Value { return s.nodeObject(s.el()) }
	for _, name := range []string{"body", "head", "documentElement"} {
		_ = document.DefineAccessorProperty(name, vm.ToValue(container), nil, goja.FLAG_FALSE, goja.FLAG_TRUE)
	}

	return Override{Values: map[string]any{"document": document}}
}

// nodeObject returns the stable script object for el. Must hold the
// execution lock.
func (s *Sandbox) nodeObject(el *dom.Element) *goja.Object {
	if obj, ok := s.nodeObjs[el]; ok {
		return obj
	}

	vm := s.engine.vm
	obj := vm.NewObject()
	target := func() string {
		if el.ID != "" {
			return "#" + el.ID
		}
		return el.TagName
	}

	_ = obj.Set("tagName", strings.ToUpper(el.TagName))
	_ = obj.DefineAccessorProperty("id",
		vm.ToValue(func(goja.FunctionCall) goja.Value { return vm.ToValue(el.ID) }),
		vm.ToValue(func(call goja.FunctionCall) goja.Value {
			el.SetAttribute("id", call.Argument(0).String())
			return goja.Undefined()
		}),
		goja.FLAG_FALSE, goja.FLAG_TRUE)
	_ = obj.DefineAccessorProperty("textContent",
		vm.ToValue(func(goja.FunctionCall) goja.Value { return vm.ToValue(el.Text()) }),
		vm.ToValue(func(call goja.FunctionCall) goja.Value {
			text := call.Argument(0).String()
			el.SetText(text)
			s.changes = append(s.changes, DOMChange{Type: "set_text", Target: target(), Value: text})
			return goja.Undefined()
		}),
		goja.FLAG_FALSE, goja.FLAG_TRUE)

	_ = obj.Set("getAttribute", func(name string) goja.Value {
		if v, ok := el.Attr(name); ok {
			return vm.ToValue(v)
		}
		return goja.Null()
	})
	_ = obj.Set("setAttribute", func(name, value string) {
		el.SetAttribute(name, value)
		s.changes = append(s.changes, DOMChange{Type: "set_attribute", Target: target(), Property: name, Value: value})
	})
	_ = obj.Set("appendChild", func(child *goja.Object) goja.Value {
		node, ok := s.objNodes[child]
		if !ok {
			panic(vm.NewTypeError("appendChild: argument is not a node"))
		}
		el.AppendChild(node)
		s.domNodes = append(s.domNodes, node)
		s.changes = append(s.changes, DOMChange{Type: "append", Target: target(), Value: node.TagName})
		return child
	})
	_ = obj.Set("remove", func() {
		el.Remove()
		s.changes = append(s.changes, DOMChange{Type: "remove", Target: target()})
	})
	_ = obj.Set("querySelector", func(selector string) goja.Value {
		if found := el.First(selector); found != nil {
			return s.nodeObject(found)
		}
		return goja.Null()
	})

	s.nodeObjs[el] = obj
	s.objNodes[obj] = el
	return obj
}
