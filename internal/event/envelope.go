package event

import (
	"time"

	"github.com/google/uuid"

	"TierOracle/internal/state"
)

// EventType discriminator for event payloads
type EventType int32

const (
	EventTypeUnknown EventType = iota
	EventTypeOracleInitialized
	EventTypeFeedRegistered
	EventTypeFeedRemoved
	EventTypePriceUpdated
	EventTypeCircuitBreakerChanged
	EventTypeEmergencyHaltChanged
	EventTypeMaintenanceModeChanged
	EventTypeUpgradeLockChanged
	EventTypeConfigModified
)

// EventEnvelope wraps every committed event in the log
type EventEnvelope struct {
	// Global monotonic sequence assigned by the engine
	Sequence int64

	// Stable identifier for deduplication and traceability
	EventID uuid.UUID

	// Event type discriminator
	EventType EventType

	// Originating command, recorded for the DB dedup tier
	CommandType    string
	IdempotencyKey string

	// Asset context
	AssetKey state.AssetKey
	AssetID  string

	// Engine clock at commit time
	Timestamp time.Time

	// Typed event payload, JSON-encoded by the persistence layer
	Payload Event

	// SHA-256 of state AFTER applying this event
	StateHash [32]byte

	// Previous event's state hash (chain integrity)
	PrevHash [32]byte
}

// Event is the interface all event payloads implement
type Event interface {
	EventType() EventType
}

func (et EventType) String() string {
	switch et {
	case EventTypeOracleInitialized:
		return "OracleInitialized"
	case EventTypeFeedRegistered:
		return "FeedRegistered"
	case EventTypeFeedRemoved:
		return "FeedRemoved"
	case EventTypePriceUpdated:
		return "PriceUpdated"
	case EventTypeCircuitBreakerChanged:
		return "CircuitBreakerChanged"
	case EventTypeEmergencyHaltChanged:
		return "EmergencyHaltChanged"
	case EventTypeMaintenanceModeChanged:
		return "MaintenanceModeChanged"
	case EventTypeUpgradeLockChanged:
		return "UpgradeLockChanged"
	case EventTypeConfigModified:
		return "ConfigModified"
	default:
		return "Unknown"
	}
}
