package event

import "TierOracle/internal/state"

// FeedRegistered is emitted when a new price source joins the registry.
// The full feed configuration travels with the event so replay can rebuild
// the registry entry.
type FeedRegistered struct {
	SourceAddress      state.Identity   `json:"source_address"`
	SourceType         state.SourceType `json:"source_type"`
	Weight             uint16           `json:"weight"`
	MinLiquidity       uint64           `json:"min_liquidity"`
	StalenessThreshold uint32           `json:"staleness_threshold"`
	FeedIndex          int              `json:"feed_index"`
	TotalWeight        uint32           `json:"total_weight"`
	Timestamp          int64            `json:"timestamp"`
}

func (e *FeedRegistered) EventType() EventType { return EventTypeFeedRegistered }

// FeedRemoved is emitted by the governance remove-feed action.
type FeedRemoved struct {
	SourceAddress state.Identity `json:"source_address"`
	Weight        uint16         `json:"weight"`
	TotalWeight   uint32         `json:"total_weight"`
	Timestamp     int64          `json:"timestamp"`
}

func (e *FeedRemoved) EventType() EventType { return EventTypeFeedRemoved }
