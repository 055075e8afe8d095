package event

import "TierOracle/internal/state"

// OracleInitialized is emitted once per asset when the full state tree
// (oracle, governance, historical chain) is created. It carries the full
// governance configuration so replay can rebuild the member table.
type OracleInitialized struct {
	AssetID               string                 `json:"asset_id"`
	Authority             state.Identity         `json:"authority"`
	EmergencyAdmin        state.Identity         `json:"emergency_admin"`
	TWAPWindow            uint32                 `json:"twap_window"`
	ConfidenceThreshold   uint16                 `json:"confidence_threshold"`
	ManipulationThreshold uint16                 `json:"manipulation_threshold"`
	CircuitBreakerEnabled bool                   `json:"circuit_breaker_enabled"`
	Governance            state.GovernanceConfig `json:"governance"`
}

func (e *OracleInitialized) EventType() EventType { return EventTypeOracleInitialized }

// PriceUpdated carries the committed aggregation round result.
type PriceUpdated struct {
	Price        int64  `json:"price"`
	Confidence   uint64 `json:"confidence"`
	Timestamp    int64  `json:"timestamp"`
	TWAPWindow   uint32 `json:"twap_window"`
	SourcesUsed  uint16 `json:"sources_used"`
	DispersionBp int64  `json:"dispersion_bp"`
}

func (e *PriceUpdated) EventType() EventType { return EventTypePriceUpdated }

// ConfigModified records a governance parameter change.
type ConfigModified struct {
	Caller                state.Identity `json:"caller"`
	TWAPWindow            uint32         `json:"twap_window"`
	ConfidenceThreshold   uint16         `json:"confidence_threshold"`
	ManipulationThreshold uint16         `json:"manipulation_threshold"`
}

func (e *ConfigModified) EventType() EventType { return EventTypeConfigModified }
