package hooks

import (
	"sync"

	"github.com/GriffinCanCode/AgentOS/apphost/internal/infrastructure/logging"
	"go.uber.org/zap"
)

// Registry keeps installed plugins in installation order.
type Registry[P any] struct {
	mu      sync.RWMutex
	names   []string
	plugins []*P
	logger  *logging.Logger
}

// NewRegistry creates an empty plugin registry
func NewRegistry[P any](logger *logging.Logger) *Registry[P] {
	return &Registry[P]{logger: logging.OrNop(logger).Named("hooks")}
}

// Add installs p. Installing the same pointer again logs a warning and
// returns false; the original position is kept.
func (r *Registry[P]) Add(name string, p *P) bool {
	if p == nil {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for i, existing := range r.plugins {
		if existing == p {
			r.logger.DevWarn("plugin already installed",
				zap.String("plugin", name),
				zap.Int("position", i))
			return false
		}
	}

	r.names = append(r.names, name)
	r.plugins = append(r.plugins, p)
	return true
}

// Has reports whether p is installed
func (r *Registry[P]) Has(p *P) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, existing := range r.plugins {
		if existing == p {
			return true
		}
	}
	return false
}

// Names returns plugin names in installation order
func (r *Registry[P]) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// List returns installed plugins in installation order
func (r *Registry[P]) List() []*P {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*P, len(r.plugins))
	copy(out, r.plugins)
	return out
}

// Len returns the number of installed plugins
func (r *Registry[P]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}
