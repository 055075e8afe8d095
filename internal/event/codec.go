package event

import (
	"encoding/json"
	"fmt"
)

// UnmarshalPayload decodes a stored payload back into its typed event.
// Used by event-log replay and projection rebuild.
func UnmarshalPayload(eventType string, data []byte) (Event, error) {
	var evt Event
	switch eventType {
	case EventTypeOracleInitialized.String():
		evt = &OracleInitialized{}
	case EventTypeFeedRegistered.String():
		evt = &FeedRegistered{}
	case EventTypeFeedRemoved.String():
		evt = &FeedRemoved{}
	case EventTypePriceUpdated.String():
		evt = &PriceUpdated{}
	case EventTypeCircuitBreakerChanged.String():
		evt = &CircuitBreakerChanged{}
	case EventTypeEmergencyHaltChanged.String():
		evt = &EmergencyHaltChanged{}
	case EventTypeMaintenanceModeChanged.String():
		evt = &MaintenanceModeChanged{}
	case EventTypeUpgradeLockChanged.String():
		evt = &UpgradeLockChanged{}
	case EventTypeConfigModified.String():
		evt = &ConfigModified{}
	default:
		return nil, fmt.Errorf("unknown event type: %q", eventType)
	}

	if err := json.Unmarshal(data, evt); err != nil {
		return nil, fmt.Errorf("unmarshal %s payload: %w", eventType, err)
	}
	return evt, nil
}
