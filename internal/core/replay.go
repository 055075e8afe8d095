package core

import (
	"fmt"

	"TierOracle/internal/event"
	"TierOracle/internal/state"
)

// ApplyReplay folds one stored event back into in-memory state during
// recovery. Events carry everything replay needs; validation already ran
// when the event committed, so the fold applies unconditionally. After the
// last event the hash chain continues from the stored state hash.
//
// Per-feed observation data (last price, staleness flags) is not part of
// the event log and comes back zeroed; the first live aggregation round
// after recovery repopulates it.
func (c *OracleEngine) ApplyReplay(sequence int64, assetKey state.AssetKey, payload event.Event, stateHash [32]byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch e := payload.(type) {
	case *event.OracleInitialized:
		os := &state.OracleState{
			AssetID:               e.AssetID,
			AssetKey:              assetKey,
			Version:               state.CurrentVersion,
			Authority:             e.Authority,
			EmergencyAdmin:        e.EmergencyAdmin,
			TWAPWindow:            e.TWAPWindow,
			ConfidenceThreshold:   e.ConfidenceThreshold,
			ManipulationThreshold: e.ManipulationThreshold,
			BreakerArmed:          e.CircuitBreakerEnabled,
		}
		os.Flags.Set(state.FlagTWAPEnabled)
		c.assets[assetKey] = &AssetInstance{
			Oracle:     os,
			Governance: state.NewGovernanceState(&e.Governance),
			History:    state.NewHistoricalStore(state.NumHistoricalChunks, 0),
		}

	case *event.FeedRegistered:
		inst, ok := c.assets[assetKey]
		if !ok {
			return fmt.Errorf("replay seq %d: feed registered for unknown asset", sequence)
		}
		os := inst.Oracle
		idx := int(os.ActiveFeedCount)
		os.Feeds[idx] = state.NewPriceFeed(&state.FeedConfig{
			SourceAddress:      e.SourceAddress,
			SourceType:         e.SourceType,
			Weight:             e.Weight,
			MinLiquidity:       e.MinLiquidity,
			StalenessThreshold: e.StalenessThreshold,
			AssetKey:           assetKey,
		}, e.Timestamp)
		os.ActiveFeedCount++

	case *event.FeedRemoved:
		inst, ok := c.assets[assetKey]
		if !ok {
			return fmt.Errorf("replay seq %d: feed removed for unknown asset", sequence)
		}
		if _, err := inst.Oracle.RemoveFeed(e.SourceAddress); err != nil {
			return fmt.Errorf("replay seq %d: %w", sequence, err)
		}

	case *event.PriceUpdated:
		inst, ok := c.assets[assetKey]
		if !ok {
			return fmt.Errorf("replay seq %d: price update for unknown asset", sequence)
		}
		os := inst.Oracle
		os.CurrentPrice = state.PriceData{Price: e.Price, Conf: e.Confidence, Timestamp: e.Timestamp}
		os.LastUpdate = e.Timestamp
		inst.History.Append(state.PricePoint{Price: e.Price, Conf: e.Confidence, Timestamp: e.Timestamp})
		os.CurrentChunkIndex = inst.History.ActiveChunkIndex()

	case *event.CircuitBreakerChanged:
		inst, ok := c.assets[assetKey]
		if !ok {
			return fmt.Errorf("replay seq %d: breaker change for unknown asset", sequence)
		}
		inst.Oracle.Flags.SetTo(state.FlagCircuitBreaker, e.Active)

	case *event.EmergencyHaltChanged:
		inst, ok := c.assets[assetKey]
		if !ok {
			return fmt.Errorf("replay seq %d: emergency change for unknown asset", sequence)
		}
		inst.Oracle.Flags.SetTo(state.FlagEmergencyMode, e.Active)

	case *event.MaintenanceModeChanged:
		inst, ok := c.assets[assetKey]
		if !ok {
			return fmt.Errorf("replay seq %d: maintenance change for unknown asset", sequence)
		}
		inst.Oracle.Flags.SetTo(state.FlagMaintenanceMode, e.Active)

	case *event.UpgradeLockChanged:
		inst, ok := c.assets[assetKey]
		if !ok {
			return fmt.Errorf("replay seq %d: upgrade lock change for unknown asset", sequence)
		}
		inst.Oracle.Flags.SetTo(state.FlagUpgradeLocked, e.Locked)

	case *event.ConfigModified:
		inst, ok := c.assets[assetKey]
		if !ok {
			return fmt.Errorf("replay seq %d: config change for unknown asset", sequence)
		}
		inst.Oracle.TWAPWindow = e.TWAPWindow
		inst.Oracle.ConfidenceThreshold = e.ConfidenceThreshold
		inst.Oracle.ManipulationThreshold = e.ManipulationThreshold

	default:
		return fmt.Errorf("replay seq %d: unknown event type %T", sequence, payload)
	}

	c.sequence = sequence + 1
	c.hasher.SetPrevHash(stateHash)

	if c.metrics != nil {
		c.metrics.ReplayEventsTotal.Inc()
	}
	return nil
}
