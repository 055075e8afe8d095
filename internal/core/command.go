package core

import "TierOracle/internal/state"

// Command is one mutating operation against a single asset's state. The
// hosting transport (NATS subjects, tests) produces typed commands; the
// engine applies them one at a time.
type Command interface {
	// CommandType returns the discriminator used for dedup and metrics
	CommandType() string

	// Asset returns the asset key the command targets
	Asset() state.AssetKey

	// Caller returns the authenticated caller identity
	CallerID() state.Identity

	// Key returns the stable idempotency key assigned upstream
	Key() string

	// When returns the versioned operation timestamp (unix seconds)
	When() int64
}

// CommandBase carries the fields shared by every command.
type CommandBase struct {
	Caller         state.Identity
	AssetKey       state.AssetKey
	IdempotencyKey string
	Timestamp      int64
}

func (c CommandBase) Asset() state.AssetKey     { return c.AssetKey }
func (c CommandBase) CallerID() state.Identity  { return c.Caller }
func (c CommandBase) Key() string               { return c.IdempotencyKey }
func (c CommandBase) When() int64               { return c.Timestamp }

// InitializeOracle creates the full state tree for an asset: oracle state,
// governance state, and the pre-linked historical chunk chain. One-shot; a
// second initialize for the same asset key fails.
type InitializeOracle struct {
	CommandBase

	AssetID               string
	TWAPWindow            uint32
	ConfidenceThreshold   uint16
	ManipulationThreshold uint16
	EmergencyAdmin        state.Identity
	CircuitBreakerEnabled bool
	Governance            state.GovernanceConfig
}

func (c *InitializeOracle) CommandType() string { return "InitializeOracle" }

// RegisterFeed adds a price source to the asset's registry.
type RegisterFeed struct {
	CommandBase

	Config state.FeedConfig
}

func (c *RegisterFeed) CommandType() string { return "RegisterFeed" }

// RemoveFeed drops a price source, compacting the registry.
type RemoveFeed struct {
	CommandBase

	SourceAddress state.Identity
}

func (c *RemoveFeed) CommandType() string { return "RemoveFeed" }

// UpdatePrice runs one aggregation round across the registered feeds.
type UpdatePrice struct {
	CommandBase

	WindowSeconds    uint32
	MinSeconds       uint32
	MinLiquidity     uint64
	MaxTickDeviation uint16 // basis points
	AlphaBp          uint16
}

func (c *UpdatePrice) CommandType() string { return "UpdatePrice" }

// SetCircuitBreaker manually trips or clears the breaker flag.
type SetCircuitBreaker struct {
	CommandBase

	Active bool
}

func (c *SetCircuitBreaker) CommandType() string { return "SetCircuitBreaker" }

// SetEmergencyHalt toggles emergency mode. Honored for the designated
// emergency admin identity or a member holding EMERGENCY_HALT.
type SetEmergencyHalt struct {
	CommandBase

	Active bool
}

func (c *SetEmergencyHalt) CommandType() string { return "SetEmergencyHalt" }

// SetMaintenanceMode toggles planned-downtime mode.
type SetMaintenanceMode struct {
	CommandBase

	Active bool
}

func (c *SetMaintenanceMode) CommandType() string { return "SetMaintenanceMode" }

// SetUpgradeLock sets or releases the upgrade lock.
type SetUpgradeLock struct {
	CommandBase

	Locked bool
}

func (c *SetUpgradeLock) CommandType() string { return "SetUpgradeLock" }

// ModifyConfig adjusts the tunable oracle parameters within the same bounds
// initialization enforces.
type ModifyConfig struct {
	CommandBase

	TWAPWindow            uint32
	ConfidenceThreshold   uint16
	ManipulationThreshold uint16
}

func (c *ModifyConfig) CommandType() string { return "ModifyConfig" }
