package app

import (
	"context"
	"errors"
	"maps"
	"slices"

	"github.com/GriffinCanCode/AgentOS/apphost/internal/sandbox"
	"github.com/GriffinCanCode/AgentOS/apphost/internal/sandbox/dom"
)

var (
	ErrMissingName  = errors.New("app name is required")
	ErrMissingEntry = errors.New("app entry is required")
)

// Info is an application descriptor. Registered descriptors are never
// mutated; loads work on merged copies.
type Info struct {
	Name               string         `json:"name" yaml:"name" toml:"name"`
	Entry              string         `json:"entry" yaml:"entry" toml:"entry"`
	Cache              *bool          `json:"cache,omitempty" yaml:"cache,omitempty" toml:"cache,omitempty"`
	Sandbox            *SandboxConfig `json:"sandbox,omitempty" yaml:"sandbox,omitempty" toml:"sandbox,omitempty"`
	ProtectVariable    []string       `json:"protect_variable,omitempty" yaml:"protect_variable,omitempty" toml:"protect_variable,omitempty"`
	InsulationVariable []string       `json:"insulation_variable,omitempty" yaml:"insulation_variable,omitempty" toml:"insulation_variable,omitempty"`
	Basename           string         `json:"basename,omitempty" yaml:"basename,omitempty" toml:"basename,omitempty"`
	Props              map[string]any `json:"props,omitempty" yaml:"props,omitempty" toml:"props,omitempty"`

	// DOMGetter returns the element the app mounts under
	DOMGetter func() *dom.Element `json:"-" yaml:"-" toml:"-"`
	Callbacks Callbacks           `json:"-" yaml:"-" toml:"-"`
}

// SandboxConfig is the isolation policy of one descriptor
type SandboxConfig struct {
	// Disabled turns isolation off entirely
	Disabled bool `json:"disabled,omitempty" yaml:"disabled,omitempty" toml:"disabled,omitempty"`
	// Open set to false also turns isolation off
	Open            *bool            `json:"open,omitempty" yaml:"open,omitempty" toml:"open,omitempty"`
	Snapshot        bool             `json:"snapshot,omitempty" yaml:"snapshot,omitempty" toml:"snapshot,omitempty"`
	StrictIsolation bool             `json:"strict_isolation,omitempty" yaml:"strict_isolation,omitempty" toml:"strict_isolation,omitempty"`
	Modules         []sandbox.Module `json:"-" yaml:"-" toml:"-"`
}

// Callbacks are per-descriptor lifecycle callbacks. BeforeLoad returning
// false aborts the load.
type Callbacks struct {
	BeforeLoad    func(ctx context.Context, info *Info) bool
	AfterLoad     func(info *Info, app *App)
	ErrorLoadApp  func(info *Info, err error)
	BeforeMount   func(info *Info, app *App)
	AfterMount    func(info *Info, app *App)
	ErrorMountApp func(info *Info, err error)
	BeforeUnmount func(info *Info, app *App)
	AfterUnmount  func(info *Info, app *App)
}

// Validate checks the required fields
func (i *Info) Validate() error {
	if i == nil || i.Name == "" {
		return ErrMissingName
	}
	if i.Entry == "" {
		return ErrMissingEntry
	}
	return nil
}

// Clone returns a deep copy; slices and maps are never shared.
func (i *Info) Clone() *Info {
	if i == nil {
		return nil
	}
	out := *i
	out.ProtectVariable = slices.Clone(i.ProtectVariable)
	out.InsulationVariable = slices.Clone(i.InsulationVariable)
	out.Props = maps.Clone(i.Props)
	if i.Cache != nil {
		v := *i.Cache
		out.Cache = &v
	}
	out.Sandbox = i.Sandbox.Clone()
	return &out
}

// CacheEnabled reports whether a loaded instance may be reused
func (i *Info) CacheEnabled() bool {
	return i.Cache == nil || *i.Cache
}

// IsolationEnabled reports whether any isolation engine should attach
func (i *Info) IsolationEnabled() bool {
	s := i.Sandbox
	if s == nil {
		return true
	}
	return !s.Disabled && (s.Open == nil || *s.Open)
}

// SnapshotMode reports whether the descriptor asks for snapshot isolation
func (i *Info) SnapshotMode() bool {
	return i.Sandbox != nil && i.Sandbox.Snapshot
}

// StrictIsolation reports whether document queries stay in the container
func (i *Info) StrictIsolation() bool {
	return i.Sandbox != nil && i.Sandbox.StrictIsolation
}

// Modules returns the extra sandbox modules
func (i *Info) Modules() []sandbox.Module {
	if i.Sandbox == nil {
		return nil
	}
	return i.Sandbox.Modules
}

// Clone returns a copy of the sandbox policy
func (s *SandboxConfig) Clone() *SandboxConfig {
	if s == nil {
		return nil
	}
	out := *s
	if s.Open != nil {
		v := *s.Open
		out.Open = &v
	}
	out.Modules = slices.Clone(s.Modules)
	return &out
}

// Bool returns a pointer to v, for the optional descriptor fields
func Bool(v bool) *bool { return &v }
