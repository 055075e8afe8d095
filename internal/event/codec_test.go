package event_test

import (
	"testing"

	"TierOracle/internal/event"
	"TierOracle/internal/persistence"
	"TierOracle/internal/state"
)

// ============================================================================
// Test: payload codec dispatch
// ============================================================================

func TestUnmarshalPayload_Dispatch(t *testing.T) {
	var caller state.Identity
	caller[0] = 1

	stored := persistence.MarshalPayload(&event.CircuitBreakerChanged{
		Caller:       caller,
		Active:       true,
		Reason:       event.BreakerReasonManipulation,
		DispersionBp: 3333,
		Timestamp:    1700000000,
	})

	decoded, err := event.UnmarshalPayload("CircuitBreakerChanged", stored)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	cb, ok := decoded.(*event.CircuitBreakerChanged)
	if !ok {
		t.Fatalf("decoded type: got %T", decoded)
	}
	if !cb.Active || cb.Reason != event.BreakerReasonManipulation || cb.DispersionBp != 3333 {
		t.Errorf("decoded payload: %+v", cb)
	}
	if cb.Caller != caller {
		t.Error("identity should survive the hex round trip")
	}
}

func TestUnmarshalPayload_UnknownType(t *testing.T) {
	if _, err := event.UnmarshalPayload("AccountDebited", []byte(`{}`)); err == nil {
		t.Error("unknown event type should be rejected")
	}
}

func TestUnmarshalPayload_MalformedData(t *testing.T) {
	if _, err := event.UnmarshalPayload("PriceUpdated", []byte(`{broken`)); err == nil {
		t.Error("malformed payload should be rejected")
	}
}

func TestEventType_StringNames(t *testing.T) {
	cases := []struct {
		et   event.EventType
		want string
	}{
		{event.EventTypeOracleInitialized, "OracleInitialized"},
		{event.EventTypePriceUpdated, "PriceUpdated"},
		{event.EventTypeCircuitBreakerChanged, "CircuitBreakerChanged"},
		{event.EventType(99), "Unknown"},
	}
	for _, c := range cases {
		if got := c.et.String(); got != c.want {
			t.Errorf("got %q, want %q", got, c.want)
		}
	}
}
