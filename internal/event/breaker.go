package event

import "TierOracle/internal/state"

// BreakerReason distinguishes automatic trips from manual governance action.
type BreakerReason string

const (
	BreakerReasonManual       BreakerReason = "manual"
	BreakerReasonManipulation BreakerReason = "manipulation_detected"
)

// CircuitBreakerChanged is emitted on every trip or clear.
type CircuitBreakerChanged struct {
	Caller       state.Identity `json:"caller"`
	Active       bool           `json:"active"`
	Reason       BreakerReason  `json:"reason"`
	DispersionBp int64          `json:"dispersion_bp,omitempty"`
	Timestamp    int64          `json:"timestamp"`
}

func (e *CircuitBreakerChanged) EventType() EventType { return EventTypeCircuitBreakerChanged }

// EmergencyHaltChanged is emitted when the emergency admin or an
// EMERGENCY_HALT holder toggles emergency mode.
type EmergencyHaltChanged struct {
	Caller    state.Identity `json:"caller"`
	Active    bool           `json:"active"`
	Timestamp int64          `json:"timestamp"`
}

func (e *EmergencyHaltChanged) EventType() EventType { return EventTypeEmergencyHaltChanged }

// MaintenanceModeChanged is emitted on planned-downtime toggles.
type MaintenanceModeChanged struct {
	Caller    state.Identity `json:"caller"`
	Active    bool           `json:"active"`
	Timestamp int64          `json:"timestamp"`
}

func (e *MaintenanceModeChanged) EventType() EventType { return EventTypeMaintenanceModeChanged }

// UpgradeLockChanged is emitted when the upgrade lock is set or released.
type UpgradeLockChanged struct {
	Caller    state.Identity `json:"caller"`
	Locked    bool           `json:"locked"`
	Timestamp int64          `json:"timestamp"`
}

func (e *UpgradeLockChanged) EventType() EventType { return EventTypeUpgradeLockChanged }
