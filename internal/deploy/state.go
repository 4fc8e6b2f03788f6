package deploy

import "strings"

// ProviderState is the deployment platform's readiness state.
type ProviderState string

const (
	StateQueued       ProviderState = "QUEUED"
	StateInitializing ProviderState = "INITIALIZING"
	StateBuilding     ProviderState = "BUILDING"
	StateReady        ProviderState = "READY"
	StateError        ProviderState = "ERROR"
	StateCanceled     ProviderState = "CANCELED"
)

// ParseProviderState normalizes a raw provider value. Values the platform
// adds later are kept verbatim and treated as pending.
func ParseProviderState(raw string) ProviderState {
	return ProviderState(strings.ToUpper(strings.TrimSpace(raw)))
}

func (s ProviderState) Known() bool {
	switch s {
	case StateQueued, StateInitializing, StateBuilding, StateReady, StateError, StateCanceled:
		return true
	default:
		return false
	}
}

// Status is the installer's own four-value deployment status.
type Status string

const (
	StatusPending  Status = "pending"
	StatusBuilding Status = "building"
	StatusReady    Status = "ready"
	StatusError    Status = "error"
)

// Terminal reports whether polling stops at s.
func (s Status) Terminal() bool {
	return s == StatusReady || s == StatusError
}

// Status maps the provider state. Unknown states map to pending.
func (s ProviderState) Status() Status {
	switch s {
	case StateQueued, StateInitializing:
		return StatusPending
	case StateBuilding:
		return StatusBuilding
	case StateReady:
		return StatusReady
	case StateError, StateCanceled:
		return StatusError
	default:
		return StatusPending
	}
}

// Progress is a display hint only.
func (s ProviderState) Progress() int {
	switch s {
	case StateQueued:
		return 10
	case StateInitializing:
		return 25
	case StateBuilding:
		return 60
	case StateReady:
		return 100
	case StateError, StateCanceled:
		return 0
	default:
		return 0
	}
}
