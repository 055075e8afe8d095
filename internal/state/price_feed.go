package state

// SourceType discriminates how a feed's readings are produced and which
// liquidity floor applies at registration.
type SourceType uint8

const (
	SourceDEX SourceType = iota
	SourceCEX
	SourceOracle
	SourceAggregator
)

func (st SourceType) String() string {
	switch st {
	case SourceDEX:
		return "DEX"
	case SourceCEX:
		return "CEX"
	case SourceOracle:
		return "Oracle"
	case SourceAggregator:
		return "Aggregator"
	default:
		return "Unknown"
	}
}

// LiquidityFloor returns the minimum acceptable min_liquidity for the type.
// CEX and external-oracle sources have no on-chain backing requirement.
func (st SourceType) LiquidityFloor() uint64 {
	switch st {
	case SourceDEX:
		return MinCLMMLiquidity
	case SourceAggregator:
		return MinAMMLiquidity
	default:
		return 0
	}
}

// FeedFlags is a compact bitset of per-feed health and lifecycle markers.
type FeedFlags uint8

const (
	FeedActive FeedFlags = 1 << iota
	FeedTrusted
	FeedStale
	FeedManipulationDetected
	FeedDeprecated
	FeedCircuitBreaker
)

func (f FeedFlags) Has(flag FeedFlags) bool { return f&flag != 0 }

func (f *FeedFlags) Set(flag FeedFlags)   { *f |= flag }
func (f *FeedFlags) Clear(flag FeedFlags) { *f &^= flag }

func (f *FeedFlags) SetTo(flag FeedFlags, on bool) {
	if on {
		f.Set(flag)
	} else {
		f.Clear(flag)
	}
}

// PriceFeed is one registered price source for an asset. Created by
// registration; last* fields are mutated only by committed price updates.
type PriceFeed struct {
	SourceAddress Identity
	SourceType    SourceType
	Weight        uint16 // basis points, 1..10000, never persisted as zero

	MinLiquidity       uint64
	StalenessThreshold uint32 // seconds

	LastPrice  int64 // fixed-point, PriceConfig scale
	LastConf   uint64
	LastUpdate int64 // unix seconds

	LiquidityDepth    uint64
	LPConcentration   uint16 // basis points
	ManipulationScore uint16 // basis points

	Flags FeedFlags
}

// Eligible reports whether the feed participates in aggregation rounds.
// Deprecated or breaker-tripped feeds stay registered but are skipped.
func (pf *PriceFeed) Eligible() bool {
	return pf.Flags.Has(FeedActive) &&
		!pf.Flags.Has(FeedDeprecated) &&
		!pf.Flags.Has(FeedCircuitBreaker)
}

// FeedConfig carries the caller-supplied registration parameters.
type FeedConfig struct {
	SourceAddress      Identity
	SourceType         SourceType
	Weight             uint16
	MinLiquidity       uint64
	StalenessThreshold uint32
	AssetKey           AssetKey
}

// Validate checks the parameters that depend only on the config itself:
// weight range and the type-specific liquidity floor. Cross-feed invariants
// (duplicates, weight budget, capacity) are checked against OracleState.
func (fc *FeedConfig) Validate() error {
	if fc.SourceAddress.IsZero() {
		return ErrInvalidSourceAddress
	}
	if fc.Weight == 0 || fc.Weight > MaxFeedWeight {
		return ErrInvalidFeedWeight
	}
	if fc.MinLiquidity < fc.SourceType.LiquidityFloor() {
		return ErrInsufficientSourceLiquidity
	}
	return nil
}

// NewPriceFeed builds the persisted feed entry for a validated config.
func NewPriceFeed(fc *FeedConfig, now int64) PriceFeed {
	return PriceFeed{
		SourceAddress:      fc.SourceAddress,
		SourceType:         fc.SourceType,
		Weight:             fc.Weight,
		MinLiquidity:       fc.MinLiquidity,
		StalenessThreshold: fc.StalenessThreshold,
		LastUpdate:         now,
		Flags:              FeedActive,
	}
}
