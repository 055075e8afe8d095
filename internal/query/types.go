package query

// PriceResponse is the current aggregated price for an asset.
type PriceResponse struct {
	AssetID      string `json:"asset_id"`
	Price        int64  `json:"price"`
	Confidence   uint16 `json:"confidence"`
	DispersionBp int64  `json:"dispersion_bp"`
	SourcesUsed  int    `json:"sources_used"`
	TWAPWindow   int64  `json:"twap_window"`
	UpdatedAt    int64  `json:"updated_at"`
	AsOfSequence int64  `json:"as_of_sequence"`
}

// TWAPResponse is a time-weighted average computed over the stored
// price history at query time.
type TWAPResponse struct {
	AssetID       string `json:"asset_id"`
	TWAP          int64  `json:"twap"`
	WindowSeconds int64  `json:"window_seconds"`
	SampleCount   int    `json:"sample_count"`
	FromTimestamp int64  `json:"from_timestamp"`
	ToTimestamp   int64  `json:"to_timestamp"`
	AsOfSequence  int64  `json:"as_of_sequence"`
}

// HistoryPoint is one stored price observation.
type HistoryPoint struct {
	Sequence   int64  `json:"sequence"`
	Price      int64  `json:"price"`
	Confidence uint16 `json:"confidence"`
	Timestamp  int64  `json:"timestamp"`
}

// HistoryResponse is a page of price history for an asset.
type HistoryResponse struct {
	AssetID      string         `json:"asset_id"`
	Points       []HistoryPoint `json:"points"`
	AsOfSequence int64          `json:"as_of_sequence"`
}

// StatusResponse is the operational status of one asset's oracle.
type StatusResponse struct {
	AssetID           string `json:"asset_id"`
	BreakerActive     bool   `json:"breaker_active"`
	EmergencyActive   bool   `json:"emergency_active"`
	MaintenanceActive bool   `json:"maintenance_active"`
	UpgradeLocked     bool   `json:"upgrade_locked"`
	ActiveFeeds       int    `json:"active_feeds"`
	TotalWeight       int    `json:"total_weight"`
	AsOfSequence      int64  `json:"as_of_sequence"`
}

// EventResponse is one event-log entry for API queries.
type EventResponse struct {
	Sequence  int64  `json:"sequence"`
	EventID   string `json:"event_id"`
	EventType string `json:"event_type"`
	AssetID   string `json:"asset_id"`
	Payload   []byte `json:"payload"`
	StateHash []byte `json:"state_hash"`
	Timestamp int64  `json:"timestamp"`
}

// IntegrityReport is the result of an integrity verification check.
type IntegrityReport struct {
	IsHealthy       bool    `json:"is_healthy"`
	EventCount      int64   `json:"event_count"`
	HashChainBreaks []int64 `json:"hash_chain_breaks,omitempty"`
}
