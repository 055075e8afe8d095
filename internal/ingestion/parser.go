package ingestion

import (
	"encoding/json"
	"fmt"
	"strings"

	"TierOracle/internal/core"
	"TierOracle/internal/state"
)

// ParseRawCommand converts a RawCommand (JSON bytes + command type string)
// into a typed core.Command. The ingestion shell validates and parses before
// anything reaches the engine; the engine only ever sees typed commands.
func ParseRawCommand(raw RawCommand, commandType string) (core.Command, error) {
	switch commandType {
	case "InitializeOracle":
		return parseInitializeOracle(raw.Data)
	case "RegisterFeed":
		return parseRegisterFeed(raw.Data)
	case "RemoveFeed":
		return parseRemoveFeed(raw.Data)
	case "UpdatePrice":
		return parseUpdatePrice(raw.Data)
	case "SetCircuitBreaker":
		return parseSetCircuitBreaker(raw.Data)
	case "SetEmergencyHalt":
		return parseSetEmergencyHalt(raw.Data)
	case "SetMaintenanceMode":
		return parseSetMaintenanceMode(raw.Data)
	case "SetUpgradeLock":
		return parseSetUpgradeLock(raw.Data)
	case "ModifyConfig":
		return parseModifyConfig(raw.Data)
	default:
		return nil, fmt.Errorf("unknown command type: %s", commandType)
	}
}

// --- JSON wire formats ---
// These structs represent the JSON payloads received from NATS.
// Field names use snake_case to match upstream producers; identities and
// asset keys travel as hex strings.

type commandBaseJSON struct {
	Caller         string `json:"caller"`
	AssetKey       string `json:"asset_key"`
	IdempotencyKey string `json:"idempotency_key"`
	Timestamp      int64  `json:"timestamp"`
}

func parseBase(j commandBaseJSON) (core.CommandBase, error) {
	var base core.CommandBase

	if j.IdempotencyKey == "" {
		return base, fmt.Errorf("missing idempotency_key")
	}
	if j.Timestamp <= 0 {
		return base, fmt.Errorf("missing or non-positive timestamp")
	}

	caller, err := state.IdentityFromString(j.Caller)
	if err != nil {
		return base, fmt.Errorf("parse caller: %w", err)
	}
	assetKey, err := state.AssetKeyFromString(j.AssetKey)
	if err != nil {
		return base, fmt.Errorf("parse asset_key: %w", err)
	}

	base.Caller = caller
	base.AssetKey = assetKey
	base.IdempotencyKey = j.IdempotencyKey
	base.Timestamp = j.Timestamp
	return base, nil
}

func parseSourceType(s string) (state.SourceType, error) {
	switch strings.ToLower(s) {
	case "dex":
		return state.SourceDEX, nil
	case "cex":
		return state.SourceCEX, nil
	case "oracle":
		return state.SourceOracle, nil
	case "aggregator":
		return state.SourceAggregator, nil
	default:
		return 0, fmt.Errorf("unknown source_type: %q", s)
	}
}

type governanceMemberJSON struct {
	Key         string `json:"key"`
	Permissions uint64 `json:"permissions"`
}

type governanceConfigJSON struct {
	Members           []governanceMemberJSON `json:"members"`
	MultisigThreshold uint8                  `json:"multisig_threshold"`
	VotingPeriod      int64                  `json:"voting_period"`
	ExecutionDelay    int64                  `json:"execution_delay"`
	QuorumThreshold   uint16                 `json:"quorum_threshold"`
	ProposalThreshold uint64                 `json:"proposal_threshold"`
}

type initializeOracleJSON struct {
	commandBaseJSON
	AssetID               string               `json:"asset_id"`
	TWAPWindow            uint32               `json:"twap_window"`
	ConfidenceThreshold   uint16               `json:"confidence_threshold"`
	ManipulationThreshold uint16               `json:"manipulation_threshold"`
	EmergencyAdmin        string               `json:"emergency_admin"`
	CircuitBreakerEnabled bool                 `json:"circuit_breaker_enabled"`
	Governance            governanceConfigJSON `json:"governance"`
}

func parseInitializeOracle(data []byte) (*core.InitializeOracle, error) {
	var j initializeOracleJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse InitializeOracle: %w", err)
	}
	base, err := parseBase(j.commandBaseJSON)
	if err != nil {
		return nil, err
	}
	emergencyAdmin, err := state.IdentityFromString(j.EmergencyAdmin)
	if err != nil {
		return nil, fmt.Errorf("parse emergency_admin: %w", err)
	}

	members := make([]state.Member, 0, len(j.Governance.Members))
	for i, m := range j.Governance.Members {
		key, err := state.IdentityFromString(m.Key)
		if err != nil {
			return nil, fmt.Errorf("parse member %d key: %w", i, err)
		}
		members = append(members, state.Member{
			Key:         key,
			Permissions: state.Permissions(m.Permissions),
		})
	}

	return &core.InitializeOracle{
		CommandBase:           base,
		AssetID:               j.AssetID,
		TWAPWindow:            j.TWAPWindow,
		ConfidenceThreshold:   j.ConfidenceThreshold,
		ManipulationThreshold: j.ManipulationThreshold,
		EmergencyAdmin:        emergencyAdmin,
		CircuitBreakerEnabled: j.CircuitBreakerEnabled,
		Governance: state.GovernanceConfig{
			Members:           members,
			MultisigThreshold: j.Governance.MultisigThreshold,
			VotingPeriod:      j.Governance.VotingPeriod,
			ExecutionDelay:    j.Governance.ExecutionDelay,
			QuorumThreshold:   j.Governance.QuorumThreshold,
			ProposalThreshold: j.Governance.ProposalThreshold,
		},
	}, nil
}

type registerFeedJSON struct {
	commandBaseJSON
	SourceAddress      string `json:"source_address"`
	SourceType         string `json:"source_type"`
	Weight             uint16 `json:"weight"`
	MinLiquidity       uint64 `json:"min_liquidity"`
	StalenessThreshold uint32 `json:"staleness_threshold"`
}

func parseRegisterFeed(data []byte) (*core.RegisterFeed, error) {
	var j registerFeedJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse RegisterFeed: %w", err)
	}
	base, err := parseBase(j.commandBaseJSON)
	if err != nil {
		return nil, err
	}
	source, err := state.IdentityFromString(j.SourceAddress)
	if err != nil {
		return nil, fmt.Errorf("parse source_address: %w", err)
	}
	sourceType, err := parseSourceType(j.SourceType)
	if err != nil {
		return nil, err
	}

	return &core.RegisterFeed{
		CommandBase: base,
		Config: state.FeedConfig{
			SourceAddress:      source,
			SourceType:         sourceType,
			Weight:             j.Weight,
			MinLiquidity:       j.MinLiquidity,
			StalenessThreshold: j.StalenessThreshold,
			AssetKey:           base.AssetKey,
		},
	}, nil
}

type removeFeedJSON struct {
	commandBaseJSON
	SourceAddress string `json:"source_address"`
}

func parseRemoveFeed(data []byte) (*core.RemoveFeed, error) {
	var j removeFeedJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse RemoveFeed: %w", err)
	}
	base, err := parseBase(j.commandBaseJSON)
	if err != nil {
		return nil, err
	}
	source, err := state.IdentityFromString(j.SourceAddress)
	if err != nil {
		return nil, fmt.Errorf("parse source_address: %w", err)
	}

	return &core.RemoveFeed{
		CommandBase:   base,
		SourceAddress: source,
	}, nil
}

type updatePriceJSON struct {
	commandBaseJSON
	WindowSeconds    uint32 `json:"window_seconds"`
	MinSeconds       uint32 `json:"min_seconds"`
	MinLiquidity     uint64 `json:"min_liquidity"`
	MaxTickDeviation uint16 `json:"max_tick_deviation_bp"`
	AlphaBp          uint16 `json:"alpha_bp"`
}

func parseUpdatePrice(data []byte) (*core.UpdatePrice, error) {
	var j updatePriceJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse UpdatePrice: %w", err)
	}
	base, err := parseBase(j.commandBaseJSON)
	if err != nil {
		return nil, err
	}

	return &core.UpdatePrice{
		CommandBase:      base,
		WindowSeconds:    j.WindowSeconds,
		MinSeconds:       j.MinSeconds,
		MinLiquidity:     j.MinLiquidity,
		MaxTickDeviation: j.MaxTickDeviation,
		AlphaBp:          j.AlphaBp,
	}, nil
}

type toggleJSON struct {
	commandBaseJSON
	Active bool `json:"active"`
}

func parseSetCircuitBreaker(data []byte) (*core.SetCircuitBreaker, error) {
	var j toggleJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse SetCircuitBreaker: %w", err)
	}
	base, err := parseBase(j.commandBaseJSON)
	if err != nil {
		return nil, err
	}
	return &core.SetCircuitBreaker{CommandBase: base, Active: j.Active}, nil
}

func parseSetEmergencyHalt(data []byte) (*core.SetEmergencyHalt, error) {
	var j toggleJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse SetEmergencyHalt: %w", err)
	}
	base, err := parseBase(j.commandBaseJSON)
	if err != nil {
		return nil, err
	}
	return &core.SetEmergencyHalt{CommandBase: base, Active: j.Active}, nil
}

func parseSetMaintenanceMode(data []byte) (*core.SetMaintenanceMode, error) {
	var j toggleJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse SetMaintenanceMode: %w", err)
	}
	base, err := parseBase(j.commandBaseJSON)
	if err != nil {
		return nil, err
	}
	return &core.SetMaintenanceMode{CommandBase: base, Active: j.Active}, nil
}

type upgradeLockJSON struct {
	commandBaseJSON
	Locked bool `json:"locked"`
}

func parseSetUpgradeLock(data []byte) (*core.SetUpgradeLock, error) {
	var j upgradeLockJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse SetUpgradeLock: %w", err)
	}
	base, err := parseBase(j.commandBaseJSON)
	if err != nil {
		return nil, err
	}
	return &core.SetUpgradeLock{CommandBase: base, Locked: j.Locked}, nil
}

type modifyConfigJSON struct {
	commandBaseJSON
	TWAPWindow            uint32 `json:"twap_window"`
	ConfidenceThreshold   uint16 `json:"confidence_threshold"`
	ManipulationThreshold uint16 `json:"manipulation_threshold"`
}

func parseModifyConfig(data []byte) (*core.ModifyConfig, error) {
	var j modifyConfigJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse ModifyConfig: %w", err)
	}
	base, err := parseBase(j.commandBaseJSON)
	if err != nil {
		return nil, err
	}
	return &core.ModifyConfig{
		CommandBase:           base,
		TWAPWindow:            j.TWAPWindow,
		ConfidenceThreshold:   j.ConfidenceThreshold,
		ManipulationThreshold: j.ManipulationThreshold,
	}, nil
}
