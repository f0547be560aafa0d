package sandbox

import (
	"time"

	"github.com/GriffinCanCode/AgentOS/apphost/internal/sandbox/dom"
)

// Strategy selects how a sandbox isolates globals
type Strategy int

const (
	StrategyLive Strategy = iota
	StrategySnapshot
	StrategyDirect
)

// String returns the strategy name used in logs and metrics
func (s Strategy) String() string {
	switch s {
	case StrategyLive:
		return "live"
	case StrategySnapshot:
		return "snapshot"
	case StrategyDirect:
		return "direct"
	default:
		return "unknown"
	}
}

// Class is the classification of one global identifier
type Class int

const (
	Passthrough Class = iota
	Insulated
	Protected
)

// String returns the class name
func (c Class) String() string {
	switch c {
	case Protected:
		return "protected"
	case Insulated:
		return "insulated"
	default:
		return "passthrough"
	}
}

// ExecOptions describes where a script came from
type ExecOptions struct {
	// Inline marks code embedded in markup
	Inline bool
	// Async marks scripts declared async; they still run synchronously
	Async bool
}

// Result holds one execution result
type Result struct {
	Value      any
	Console    []LogEntry
	DOMChanges []DOMChange
	Duration   time.Duration
	Strategy   Strategy
}

// LogEntry represents console output
type LogEntry struct {
	Level   string    `json:"level"`
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
}

// DOMChange represents a DOM modification made by a script
type DOMChange struct {
	Type     string `json:"type"`
	Target   string `json:"target"`
	Property string `json:"property,omitempty"`
	Value    string `json:"value,omitempty"`
}

// Override is what a Module contributes to a sandbox: extra globals that
// shadow the environment, and a callback run on Reset.
type Override struct {
	Values  map[string]any
	Recover func()
}

// Module builds an Override for one sandbox
type Module func(s *Sandbox) Override

// Config describes one sandbox
type Config struct {
	Namespace       string
	BaseURL         string
	StrictIsolation bool
	Strategy        Strategy
	Modules         []Module
	// SourceList receives the URL of every executed script
	SourceList []string
	// El returns the element the application renders into
	El func() *dom.Element
	// ProtectVariable and InsulationVariable are evaluated once, on New
	ProtectVariable    func() []string
	InsulationVariable func() []string
	// ExecTimeout overrides the engine default when non-zero
	ExecTimeout time.Duration
}
