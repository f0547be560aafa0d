package host

import (
	"github.com/GriffinCanCode/AgentOS/apphost/internal/sandbox"
	"go.uber.org/zap"
)

// GetGlobalObject returns the native, non-isolated environment
func (h *Host) GetGlobalObject() sandbox.Environment {
	return h.engine.Env()
}

// SetGlobalValue sets key on the native environment
func (h *Host) SetGlobalValue(key string, value any) {
	h.engine.Update(func(env sandbox.Environment) {
		env.Set(key, value)
	})
}

// ClearEscapeEffect resets key on the native environment to value, but
// only when key is present there. It reports whether key was reset.
func (h *Host) ClearEscapeEffect(key string, value any) bool {
	cleared := false
	h.engine.Update(func(env sandbox.Environment) {
		if env.Has(key) {
			env.Set(key, value)
			cleared = true
		}
	})
	if cleared {
		h.logger.Debug("escape effect cleared", zap.String("key", key))
	}
	return cleared
}
