package state

// StateFlags is the per-asset operational flag bitset. CircuitBreaker blocks
// feed registration and price updates outright; EmergencyMode is the
// stronger override reserved for the emergency admin path.
type StateFlags uint32

const (
	FlagCircuitBreaker StateFlags = 1 << iota
	FlagEmergencyMode
	FlagUpgradeLocked
	FlagMaintenanceMode
	FlagTWAPEnabled
)

func (f StateFlags) Has(flag StateFlags) bool { return f&flag != 0 }

func (f *StateFlags) Set(flag StateFlags)   { *f |= flag }
func (f *StateFlags) Clear(flag StateFlags) { *f &^= flag }

func (f *StateFlags) SetTo(flag StateFlags, on bool) {
	if on {
		f.Set(flag)
	} else {
		f.Clear(flag)
	}
}

// Version tracks the state schema for upgrade-safe evolution.
type Version struct {
	Major uint8
	Minor uint8
	Patch uint8
}

// CurrentVersion is stamped onto newly initialized oracle state.
var CurrentVersion = Version{Major: 0, Minor: 1, Patch: 0}

// PriceData is the current blended price with its confidence interval.
type PriceData struct {
	Price     int64 // fixed-point, PriceConfig scale
	Conf      uint64
	Timestamp int64 // unix seconds
}

// OracleState is the aggregation state for one asset. One instance exists
// per asset key; the hosting environment serializes mutations against it.
type OracleState struct {
	AssetID  string // canonical form
	AssetKey AssetKey
	Version  Version
	Flags    StateFlags

	Authority      Identity
	EmergencyAdmin Identity

	TWAPWindow            uint32 // seconds
	ConfidenceThreshold   uint16 // basis points
	ManipulationThreshold uint16 // basis points

	// BreakerArmed gates automatic trips on manipulation detection; a manual
	// trip works regardless.
	BreakerArmed bool

	CurrentPrice PriceData
	LastUpdate   int64

	Feeds           [MaxPriceFeeds]PriceFeed
	ActiveFeedCount uint8

	CurrentChunkIndex uint16
}

// ActiveFeeds is the live prefix of the feed table.
func (os *OracleState) ActiveFeeds() []PriceFeed {
	return os.Feeds[:os.ActiveFeedCount]
}

// FindFeed locates a registered feed by source address.
func (os *OracleState) FindFeed(source Identity) (int, bool) {
	for i := 0; i < int(os.ActiveFeedCount); i++ {
		if os.Feeds[i].SourceAddress == source {
			return i, true
		}
	}
	return 0, false
}

// TotalActiveWeight sums the registered weights in basis points.
func (os *OracleState) TotalActiveWeight() uint32 {
	var total uint32
	for i := 0; i < int(os.ActiveFeedCount); i++ {
		total += uint32(os.Feeds[i].Weight)
	}
	return total
}

// AppendFeed validates the registration and appends the entry. Checks run in
// a fixed order so the reported error is stable; on any error the feed table
// is untouched. Callers handle authorization before reaching here.
func (os *OracleState) AppendFeed(fc *FeedConfig, now int64) (int, error) {
	if os.Flags.Has(FlagCircuitBreaker) {
		return 0, ErrCircuitBreakerActive
	}
	if fc.SourceAddress.IsZero() {
		return 0, ErrInvalidSourceAddress
	}
	if _, dup := os.FindFeed(fc.SourceAddress); dup {
		return 0, ErrDuplicateFeedSource
	}
	if fc.Weight == 0 || fc.Weight > MaxFeedWeight {
		return 0, ErrInvalidFeedWeight
	}
	if os.TotalActiveWeight()+uint32(fc.Weight) > WeightPrecision {
		return 0, ErrExcessiveTotalWeight
	}
	if int(os.ActiveFeedCount) >= MaxPriceFeeds {
		return 0, ErrTooManyFeeds
	}
	if fc.MinLiquidity < fc.SourceType.LiquidityFloor() {
		return 0, ErrInsufficientSourceLiquidity
	}

	idx := int(os.ActiveFeedCount)
	os.Feeds[idx] = NewPriceFeed(fc, now)
	os.ActiveFeedCount++
	return idx, nil
}

// RemoveFeed compacts the feed table over the removed entry. Removal only
// decreases total weight, so the weight-sum invariant holds by construction.
func (os *OracleState) RemoveFeed(source Identity) (PriceFeed, error) {
	idx, ok := os.FindFeed(source)
	if !ok {
		return PriceFeed{}, ErrFeedNotFound
	}
	removed := os.Feeds[idx]

	last := int(os.ActiveFeedCount) - 1
	copy(os.Feeds[idx:last], os.Feeds[idx+1:last+1])
	os.Feeds[last] = PriceFeed{}
	os.ActiveFeedCount--
	return removed, nil
}
