package host

import (
	"sync"

	"github.com/GriffinCanCode/AgentOS/apphost/internal/infrastructure/logging"
	"github.com/Masterminds/semver/v3"
	"go.uber.org/zap"
)

// ContextKey is the reserved registry name of the process host
const ContextKey = "__APPHOST__"

// FlagKey marks a registry whose host has been created
const FlagKey = "__APPHOST_FLAG__"

// Slot is one named binding in a ContextRegistry
type Slot struct {
	Value any
	// Configurable and Writable decide whether Claim may replace Value
	Configurable bool
	Writable     bool
}

// ContextRegistry is the process-wide table of reserved bindings
type ContextRegistry struct {
	mu    sync.Mutex
	slots map[string]Slot
}

// NewContextRegistry creates an empty registry
func NewContextRegistry() *ContextRegistry {
	return &ContextRegistry{slots: make(map[string]Slot)}
}

var (
	defaultRegistry     *ContextRegistry
	defaultRegistryOnce sync.Once
)

// DefaultContextRegistry returns the registry shared by the process
func DefaultContextRegistry() *ContextRegistry {
	defaultRegistryOnce.Do(func() {
		defaultRegistry = NewContextRegistry()
	})
	return defaultRegistry
}

// Define sets a slot unconditionally
func (r *ContextRegistry) Define(name string, slot Slot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.slots[name] = slot
}

// Get returns the value bound to name
func (r *ContextRegistry) Get(name string) (any, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	slot, ok := r.slots[name]
	return slot.Value, ok
}

// Claim binds value to name when name is free, or occupied by a
// configurable or writable slot. It reports whether value was bound.
func (r *ContextRegistry) Claim(name string, value any) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if slot, ok := r.slots[name]; ok && !slot.Configurable && !slot.Writable {
		return false
	}
	r.slots[name] = Slot{Value: value, Configurable: true, Writable: true}
	return true
}

// Reset removes every binding
func (r *ContextRegistry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.slots)
}

// CreateContext returns the host already created in reg, or creates one.
// When the reserved name holds a host of another version a warning is
// logged before it is replaced. A reserved name that cannot be replaced
// leaves the new host unregistered.
func CreateContext(reg *ContextRegistry, opts Options, deps Deps) (*Host, error) {
	if reg == nil {
		reg = DefaultContextRegistry()
	}
	logger := logging.OrNop(deps.Logger)

	if flag, ok := reg.Get(FlagKey); ok && flag != nil {
		if existing, ok := reg.Get(ContextKey); ok {
			if h, ok := existing.(*Host); ok {
				logger.DevWarn("host already exists in this process, reusing it")
				return h, nil
			}
		}
	}

	h, err := New(opts, deps)
	if err != nil {
		return nil, err
	}

	if existing, ok := reg.Get(ContextKey); ok && existing != nil {
		if other, ok := existing.(*Host); ok && !sameVersion(other.Version, h.Version) {
			logger.Warn("another host version is registered in this process",
				zap.String("registered", other.Version),
				zap.String("version", h.Version))
		}
	}

	if !reg.Claim(ContextKey, h) {
		logger.Warn("reserved context name cannot be replaced", zap.String("name", ContextKey))
		return h, nil
	}
	reg.Define(FlagKey, Slot{Value: h.Flag})
	return h, nil
}

// sameVersion compares two version strings semantically, falling back to
// string equality when either does not parse
func sameVersion(a, b string) bool {
	va, errA := semver.NewVersion(a)
	vb, errB := semver.NewVersion(b)
	if errA != nil || errB != nil {
		return a == b
	}
	return va.Equal(vb)
}
