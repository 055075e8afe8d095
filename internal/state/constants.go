package state

// Capacity limits. Feed and member tables are fixed-size so a single asset's
// state has a known upper bound regardless of registration history.
const (
	MaxPriceFeeds      = 16
	MaxMultisigMembers = 16

	// Historical ring buffer geometry: three pre-linked chunks of 128
	// samples form one logical ring.
	ChunkCapacity       = 128
	NumHistoricalChunks = 3
)

// Parameter bounds, all in basis points unless noted.
const (
	MaxFeedWeight            uint16 = 10_000
	WeightPrecision          uint32 = 10_000
	MaxConfidenceThreshold   uint16 = 10_000
	MaxManipulationThreshold uint16 = 10_000
	MaxQuorumThreshold       uint16 = 10_000
	MaxLPConcentration       uint16 = 3_000 // 30%

	// MaxTwapWindow caps the smoothing window at 96 hours (seconds).
	MaxTwapWindow uint32 = 345_600
)

// Liquidity floors for source types that require on-chain backing, in base
// units. CEX and external-oracle sources carry no such requirement.
const (
	MinCLMMLiquidity uint64 = 100_000
	MinAMMLiquidity  uint64 = 50_000
)

// MaxAssetIDLength bounds the canonical asset identifier.
const MaxAssetIDLength = 64
