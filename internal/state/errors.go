package state

import "errors"

// Initialization / configuration range errors. Each violated bound gets its
// own sentinel so callers can tell exactly which parameter was rejected.
var (
	ErrInvalidAssetID               = errors.New("invalid asset id: must be non-empty and <= 64 characters")
	ErrInvalidAssetKey              = errors.New("asset key does not match canonical asset id hash")
	ErrInvalidTWAPWindow            = errors.New("invalid TWAP window: must be > 0 and <= 345600 seconds")
	ErrInvalidConfidenceThreshold   = errors.New("invalid confidence threshold: must be <= 10000 basis points")
	ErrInvalidManipulationThreshold = errors.New("invalid manipulation threshold: must be > 0 and <= 10000 basis points")
	ErrInvalidQuorumThreshold       = errors.New("invalid quorum threshold: must be > 0 and <= 10000 basis points")
	ErrInvalidProposalThreshold     = errors.New("invalid proposal threshold: must be > 0")
	ErrInvalidMultisigThreshold     = errors.New("invalid multisig threshold: must be > 0 and <= member count")
	ErrInvalidTimingParameters      = errors.New("invalid timing parameters: voting period must be > 0, execution delay >= 0")
	ErrInvalidMemberCount           = errors.New("invalid member count: must be > 0 and <= 16")
	ErrInvalidMemberKey             = errors.New("invalid member key: cannot be the zero identity")
	ErrDuplicateMember              = errors.New("duplicate member in initial member list")
	ErrAuthorityNotAdminMember      = errors.New("authority must be an initial member with admin permissions")
	ErrInvalidEmergencyAdmin        = errors.New("invalid emergency admin: cannot be the zero identity")
	ErrAlreadyInitialized           = errors.New("oracle already initialized for this asset key")
)

// ErrIdentityTooLong rejects hex identity or asset key input longer than the
// fixed 32-byte width. Short input is zero-padded; over-length input is a
// caller bug, never silently truncated.
var ErrIdentityTooLong = errors.New("identity hex exceeds 32 bytes")

// Authorization errors.
var (
	ErrUnauthorizedCaller      = errors.New("caller is not a governance member")
	ErrInsufficientPermissions = errors.New("caller does not hold the required permission")
	ErrCircuitBreakerActive    = errors.New("circuit breaker is currently active")
	ErrTooManyActiveMembers    = errors.New("too many active multisig members")
)

// Feed registration invariant errors.
var (
	ErrInvalidSourceAddress        = errors.New("invalid source address: cannot be the zero identity")
	ErrInvalidFeedWeight           = errors.New("invalid feed weight: must be > 0 and <= 10000 basis points")
	ErrExcessiveTotalWeight        = errors.New("total feed weight would exceed 10000 basis points")
	ErrDuplicateFeedSource         = errors.New("duplicate feed source address")
	ErrInsufficientSourceLiquidity = errors.New("minimum liquidity below the floor for this source type")
	ErrTooManyFeeds                = errors.New("too many price feeds registered")
	ErrFeedNotFound                = errors.New("no feed registered for source address")
)

// Price update data errors.
var (
	ErrNoEligibleSources    = errors.New("no eligible sources survived pre-aggregation filtering")
	ErrNonPositiveElapsed   = errors.New("elapsed time since last update must be > 0")
	ErrManipulationDetected = errors.New("price dispersion exceeds manipulation threshold")
	ErrLowConfidence        = errors.New("aggregate confidence below configured threshold")
	ErrOracleNotFound       = errors.New("no oracle state for asset key")
)
