package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"TierOracle/internal/event"
	fpmath "TierOracle/internal/math"
	"TierOracle/internal/observability"
	"TierOracle/internal/source"
	"TierOracle/internal/state"
)

// OracleEngine is the single-threaded command processor. All state mutation
// happens here, one command at a time, so no asset's oracle state is ever
// touched concurrently. The hosting goroutine feeds commands in; committed
// events flow out through the persist and projection channels. The mutex
// serializes command processing against the snapshot and read accessors,
// which run on their own goroutines.
type OracleEngine struct {
	mu          sync.Mutex
	sequence    int64
	hasher      *StateHasher
	idempotency *IdempotencyChecker
	metrics     *observability.Metrics

	assets   map[state.AssetKey]*AssetInstance
	adapters map[state.SourceType]source.Adapter

	persistChan    chan<- CoreOutput
	projectionChan chan<- CoreOutput
}

// AssetInstance bundles the full state tree for one initialized asset.
type AssetInstance struct {
	Oracle     *state.OracleState
	Governance *state.GovernanceState
	History    *state.HistoricalStore
}

// CoreOutput is one committed event plus its side data, handed to the
// persistence and projection workers.
type CoreOutput struct {
	Envelope *event.EventEnvelope

	// Point is set on committed price updates
	Point *state.PricePoint
}

func NewOracleEngine(
	startSequence int64,
	persistChan, projectionChan chan<- CoreOutput,
	dbChecker DBIdempotencyChecker,
	metrics *observability.Metrics,
) *OracleEngine {
	return &OracleEngine{
		sequence:       startSequence,
		hasher:         NewStateHasher(),
		idempotency:    NewIdempotencyChecker(1_000_000, dbChecker),
		metrics:        metrics,
		assets:         make(map[state.AssetKey]*AssetInstance),
		adapters:       make(map[state.SourceType]source.Adapter),
		persistChan:    persistChan,
		projectionChan: projectionChan,
	}
}

// RegisterAdapter wires the fetcher used for feeds of the given source type.
// Called during startup, before the command loop begins.
func (c *OracleEngine) RegisterAdapter(st state.SourceType, ad source.Adapter) {
	c.adapters[st] = ad
}

// ProcessCommand is the main processing pipeline: dedup, dispatch,
// validate-then-commit, hash, emit. On any returned error the targeted
// asset's state is unchanged, with one exception: an automatic circuit
// breaker trip commits the tripped flag and its event, then reports
// ErrManipulationDetected to the caller.
func (c *OracleEngine) ProcessCommand(ctx context.Context, cmd Command) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	start := time.Now()
	cmdType := cmd.CommandType()

	if c.idempotency.IsDuplicate(cmdType, cmd.Key()) {
		if c.metrics != nil {
			c.metrics.CommandsRejected.WithLabelValues(cmdType, "duplicate").Inc()
			c.metrics.IdempotencyDuplicates.WithLabelValues(cmdType).Inc()
		}
		return nil
	}

	payload, point, dispatchErr := c.dispatch(ctx, cmd)

	// A nil payload with an error is a pure rejection: nothing committed,
	// nothing emitted. A non-nil payload always commits, even when an error
	// is also reported (the auto-trip path).
	if payload == nil {
		if dispatchErr != nil {
			if c.metrics != nil {
				c.metrics.CommandsRejected.WithLabelValues(cmdType, rejectReason(dispatchErr)).Inc()
			}
			return dispatchErr
		}
		return nil
	}

	inst := c.assets[cmd.Asset()]
	assetID := ""
	if inst != nil {
		assetID = inst.Oracle.AssetID
	}

	stateDigest := c.computeStateDigest(inst)
	prevHash := c.hasher.GetPrevHash()
	stateHash := c.hasher.ComputeHash(c.sequence, stateDigest)

	envelope := &event.EventEnvelope{
		Sequence:       c.sequence,
		EventID:        uuid.New(),
		EventType:      payload.EventType(),
		CommandType:    cmdType,
		IdempotencyKey: cmd.Key(),
		AssetKey:       cmd.Asset(),
		AssetID:        assetID,
		Timestamp:      time.Unix(cmd.When(), 0).UTC(),
		Payload:        payload,
		StateHash:      stateHash,
		PrevHash:       prevHash,
	}
	c.sequence++

	output := CoreOutput{Envelope: envelope, Point: point}

	// Persistence: blocking send, the engine stalls until the persistence
	// worker drains. No committed event is ever lost.
	c.persistChan <- output

	// Projections: non-blocking send, drop on full. Projection workers
	// rebuild from the event log if they fall behind.
	select {
	case c.projectionChan <- output:
	default:
		if c.metrics != nil {
			c.metrics.ProjectionDrops.Inc()
		}
	}

	c.idempotency.MarkProcessed(cmdType, cmd.Key())

	if c.metrics != nil {
		c.metrics.CommandsApplied.WithLabelValues(cmdType).Inc()
		c.metrics.CommandDuration.WithLabelValues(cmdType).Observe(time.Since(start).Seconds())
		c.metrics.EngineSequence.Set(float64(c.sequence))
		c.metrics.DedupLRUSize.Set(float64(c.idempotency.lru.Len()))
	}

	return dispatchErr
}

func (c *OracleEngine) dispatch(ctx context.Context, cmd Command) (event.Event, *state.PricePoint, error) {
	switch cm := cmd.(type) {
	case *InitializeOracle:
		return c.handleInitialize(cm)
	case *RegisterFeed:
		return c.handleRegisterFeed(cm)
	case *RemoveFeed:
		return c.handleRemoveFeed(cm)
	case *UpdatePrice:
		return c.handleUpdatePrice(ctx, cm)
	case *SetCircuitBreaker:
		return c.handleSetCircuitBreaker(cm)
	case *SetEmergencyHalt:
		return c.handleSetEmergencyHalt(cm)
	case *SetMaintenanceMode:
		return c.handleSetMaintenanceMode(cm)
	case *SetUpgradeLock:
		return c.handleSetUpgradeLock(cm)
	case *ModifyConfig:
		return c.handleModifyConfig(cm)
	default:
		return nil, nil, fmt.Errorf("unknown command type: %T", cmd)
	}
}

func (c *OracleEngine) handleInitialize(cmd *InitializeOracle) (event.Event, *state.PricePoint, error) {
	canonical := CanonicalizeAssetID(cmd.AssetID)
	if err := ValidateAssetID(canonical); err != nil {
		return nil, nil, err
	}
	derived := DeriveAssetKey(canonical)
	if cmd.AssetKey != derived {
		return nil, nil, state.ErrInvalidAssetKey
	}
	if _, exists := c.assets[derived]; exists {
		return nil, nil, state.ErrAlreadyInitialized
	}
	if cmd.TWAPWindow == 0 || cmd.TWAPWindow > state.MaxTwapWindow {
		return nil, nil, state.ErrInvalidTWAPWindow
	}
	if cmd.ConfidenceThreshold == 0 || cmd.ConfidenceThreshold > state.MaxConfidenceThreshold {
		return nil, nil, state.ErrInvalidConfidenceThreshold
	}
	if cmd.ManipulationThreshold == 0 || cmd.ManipulationThreshold > state.MaxManipulationThreshold {
		return nil, nil, state.ErrInvalidManipulationThreshold
	}
	if cmd.EmergencyAdmin.IsZero() {
		return nil, nil, state.ErrInvalidEmergencyAdmin
	}
	if err := cmd.Governance.Validate(cmd.Caller); err != nil {
		return nil, nil, err
	}

	// All preconditions hold: build the full state tree. Nothing below can
	// fail, so initialization is all-or-nothing.
	os := &state.OracleState{
		AssetID:               canonical,
		AssetKey:              derived,
		Version:               state.CurrentVersion,
		Authority:             cmd.Caller,
		EmergencyAdmin:        cmd.EmergencyAdmin,
		TWAPWindow:            cmd.TWAPWindow,
		ConfidenceThreshold:   cmd.ConfidenceThreshold,
		ManipulationThreshold: cmd.ManipulationThreshold,
		BreakerArmed:          cmd.CircuitBreakerEnabled,
	}
	os.Flags.Set(state.FlagTWAPEnabled)

	c.assets[derived] = &AssetInstance{
		Oracle:     os,
		Governance: state.NewGovernanceState(&cmd.Governance),
		History:    state.NewHistoricalStore(state.NumHistoricalChunks, cmd.When()),
	}

	return &event.OracleInitialized{
		AssetID:               canonical,
		Authority:             cmd.Caller,
		EmergencyAdmin:        cmd.EmergencyAdmin,
		TWAPWindow:            cmd.TWAPWindow,
		ConfidenceThreshold:   cmd.ConfidenceThreshold,
		ManipulationThreshold: cmd.ManipulationThreshold,
		CircuitBreakerEnabled: cmd.CircuitBreakerEnabled,
		Governance:            cmd.Governance,
	}, nil, nil
}

func (c *OracleEngine) handleRegisterFeed(cmd *RegisterFeed) (event.Event, *state.PricePoint, error) {
	inst, ok := c.assets[cmd.AssetKey]
	if !ok {
		return nil, nil, state.ErrOracleNotFound
	}
	os := inst.Oracle

	if os.Flags.Has(state.FlagCircuitBreaker) || os.Flags.Has(state.FlagEmergencyMode) {
		return nil, nil, state.ErrCircuitBreakerActive
	}
	if err := inst.Governance.CheckMemberPermission(cmd.Caller, state.PermAddFeed); err != nil {
		return nil, nil, err
	}
	if cmd.Config.AssetKey != os.AssetKey {
		return nil, nil, state.ErrInvalidAssetKey
	}

	idx, err := os.AppendFeed(&cmd.Config, cmd.When())
	if err != nil {
		return nil, nil, err
	}

	if c.metrics != nil {
		c.metrics.ActiveFeeds.WithLabelValues(os.AssetID).Set(float64(os.ActiveFeedCount))
	}

	return &event.FeedRegistered{
		SourceAddress:      cmd.Config.SourceAddress,
		SourceType:         cmd.Config.SourceType,
		Weight:             cmd.Config.Weight,
		MinLiquidity:       cmd.Config.MinLiquidity,
		StalenessThreshold: cmd.Config.StalenessThreshold,
		FeedIndex:          idx,
		TotalWeight:        os.TotalActiveWeight(),
		Timestamp:          cmd.When(),
	}, nil, nil
}

func (c *OracleEngine) handleRemoveFeed(cmd *RemoveFeed) (event.Event, *state.PricePoint, error) {
	inst, ok := c.assets[cmd.AssetKey]
	if !ok {
		return nil, nil, state.ErrOracleNotFound
	}

	// Removal stays available under a tripped breaker so governance can
	// excise the misbehaving source.
	if err := inst.Governance.CheckMemberPermission(cmd.Caller, state.PermRemoveFeed); err != nil {
		return nil, nil, err
	}

	removed, err := inst.Oracle.RemoveFeed(cmd.SourceAddress)
	if err != nil {
		return nil, nil, err
	}

	if c.metrics != nil {
		c.metrics.ActiveFeeds.WithLabelValues(inst.Oracle.AssetID).Set(float64(inst.Oracle.ActiveFeedCount))
	}

	return &event.FeedRemoved{
		SourceAddress: removed.SourceAddress,
		Weight:        removed.Weight,
		TotalWeight:   inst.Oracle.TotalActiveWeight(),
		Timestamp:     cmd.When(),
	}, nil, nil
}

// stagedObservation holds one feed's fetched reading until the round commits.
// Feed metadata (last price, staleness flag) is only written back on commit
// so a rejected round leaves every feed untouched.
type stagedObservation struct {
	idx   int
	obs   source.Observation
	stale bool
}

func (c *OracleEngine) handleUpdatePrice(ctx context.Context, cmd *UpdatePrice) (event.Event, *state.PricePoint, error) {
	inst, ok := c.assets[cmd.AssetKey]
	if !ok {
		return nil, nil, state.ErrOracleNotFound
	}
	os := inst.Oracle

	if os.Flags.Has(state.FlagCircuitBreaker) || os.Flags.Has(state.FlagEmergencyMode) {
		return nil, nil, state.ErrCircuitBreakerActive
	}
	if err := inst.Governance.CheckMemberPermission(cmd.Caller, state.PermUpdatePrice); err != nil {
		return nil, nil, err
	}

	minWindow := cmd.MinSeconds
	if minWindow < 1 {
		minWindow = 1
	}
	if cmd.WindowSeconds < minWindow || cmd.WindowSeconds > state.MaxTwapWindow {
		return nil, nil, state.ErrInvalidTWAPWindow
	}

	now := cmd.When()
	if now-os.LastUpdate <= 0 {
		return nil, nil, state.ErrNonPositiveElapsed
	}

	var survivors []stagedObservation
	var staleFeeds []int
	prices := make([]int64, 0, os.ActiveFeedCount)
	weights := make([]uint16, 0, os.ActiveFeedCount)

	for i := 0; i < int(os.ActiveFeedCount); i++ {
		pf := &os.Feeds[i]
		if !pf.Eligible() {
			continue
		}
		ad, ok := c.adapters[pf.SourceType]
		if !ok {
			// No fetcher wired for this source type; the feed sits out
			continue
		}
		obs, err := ad.Fetch(ctx, pf.SourceAddress)
		if err != nil {
			// Identity mismatches mean the registry points at the wrong
			// object. That is a configuration fault, not a market
			// condition, and poisons the whole round.
			if errors.Is(err, source.ErrPoolMismatch) || errors.Is(err, source.ErrInvalidOwner) {
				return nil, nil, fmt.Errorf("feed %s: %w", pf.SourceAddress, err)
			}
			c.countFiltered(os.AssetID, "unreadable")
			continue
		}

		if now-obs.Timestamp > int64(pf.StalenessThreshold) {
			staleFeeds = append(staleFeeds, i)
			c.countFiltered(os.AssetID, "stale")
			continue
		}

		liquidityFloor := pf.MinLiquidity
		if cmd.MinLiquidity > liquidityFloor {
			liquidityFloor = cmd.MinLiquidity
		}
		if obs.Liquidity < liquidityFloor {
			c.countFiltered(os.AssetID, "liquidity")
			continue
		}

		if cmd.MaxTickDeviation > 0 && pf.LastPrice != 0 &&
			fpmath.DeviationBps(obs.Price, pf.LastPrice) > int64(cmd.MaxTickDeviation) {
			c.countFiltered(os.AssetID, "deviation")
			continue
		}

		if obs.LPConcentration > state.MaxLPConcentration {
			c.countFiltered(os.AssetID, "lp_concentration")
			continue
		}

		survivors = append(survivors, stagedObservation{idx: i, obs: obs})
		prices = append(prices, obs.Price)
		weights = append(weights, pf.Weight)
	}

	if len(survivors) == 0 {
		c.countRound(os.AssetID, "no_sources")
		return nil, nil, state.ErrNoEligibleSources
	}

	aggregate, ok := fpmath.WeightedMeanPrice(prices, weights)
	if !ok {
		c.countRound(os.AssetID, "no_sources")
		return nil, nil, state.ErrNoEligibleSources
	}

	dispersion := fpmath.DispersionBps(prices, weights, aggregate)
	confidence := fpmath.ConfidenceFromDispersion(dispersion)

	if dispersion > int64(os.ManipulationThreshold) {
		c.countRound(os.AssetID, "manipulation")
		if !os.BreakerArmed {
			return nil, nil, state.ErrManipulationDetected
		}
		// Automatic trip: the flag flip, the outlier feed markers, and the
		// event commit; the price does not.
		os.Flags.Set(state.FlagCircuitBreaker)
		for _, s := range survivors {
			pf := &os.Feeds[s.idx]
			dev := fpmath.DeviationBps(s.obs.Price, aggregate)
			if dev > int64(os.ManipulationThreshold) {
				pf.ManipulationScore = clampBp(dev)
				pf.Flags.Set(state.FeedManipulationDetected)
				pf.Flags.Clear(state.FeedTrusted)
			}
		}
		if c.metrics != nil {
			c.metrics.CircuitBreakerTrips.WithLabelValues(os.AssetID, string(event.BreakerReasonManipulation)).Inc()
			c.metrics.CircuitBreakerState.WithLabelValues(os.AssetID).Set(1)
		}
		return &event.CircuitBreakerChanged{
			Caller:       cmd.Caller,
			Active:       true,
			Reason:       event.BreakerReasonManipulation,
			DispersionBp: dispersion,
			Timestamp:    now,
		}, nil, state.ErrManipulationDetected
	}

	if confidence < uint64(os.ConfidenceThreshold) {
		c.countRound(os.AssetID, "low_confidence")
		return nil, nil, state.ErrLowConfidence
	}

	// Alpha zero means no smoothing configured: adopt the aggregate.
	alpha := cmd.AlphaBp
	if alpha == 0 {
		alpha = uint16(fpmath.BasisPointScale)
	}
	blended := fpmath.EMABlend(os.CurrentPrice.Price, aggregate, alpha)

	// Commit. Everything from here on must succeed. Each surviving feed's
	// manipulation score is its deviation from the round consensus; a feed
	// within the manipulation threshold earns the trusted marker.
	for _, s := range survivors {
		pf := &os.Feeds[s.idx]
		pf.LastPrice = s.obs.Price
		pf.LastConf = s.obs.Conf
		pf.LastUpdate = s.obs.Timestamp
		pf.LiquidityDepth = s.obs.Liquidity
		pf.LPConcentration = s.obs.LPConcentration
		pf.ManipulationScore = clampBp(fpmath.DeviationBps(s.obs.Price, aggregate))
		pf.Flags.SetTo(state.FeedTrusted, pf.ManipulationScore <= os.ManipulationThreshold)
		pf.Flags.Clear(state.FeedStale)
		pf.Flags.Clear(state.FeedManipulationDetected)
	}
	for _, i := range staleFeeds {
		os.Feeds[i].Flags.Set(state.FeedStale)
	}

	os.CurrentPrice = state.PriceData{Price: blended, Conf: confidence, Timestamp: now}
	os.LastUpdate = now

	point := state.PricePoint{Price: blended, Conf: confidence, Timestamp: now}
	inst.History.Append(point)
	os.CurrentChunkIndex = inst.History.ActiveChunkIndex()

	if c.metrics != nil {
		c.metrics.CurrentPrice.WithLabelValues(os.AssetID).Set(float64(blended))
		c.metrics.PriceConfidence.WithLabelValues(os.AssetID).Set(float64(confidence))
		c.metrics.PriceDispersion.WithLabelValues(os.AssetID).Set(float64(dispersion))
		c.metrics.SourcesUsed.WithLabelValues(os.AssetID).Observe(float64(len(survivors)))
	}
	c.countRound(os.AssetID, "committed")

	return &event.PriceUpdated{
		Price:        blended,
		Confidence:   confidence,
		Timestamp:    now,
		TWAPWindow:   cmd.WindowSeconds,
		SourcesUsed:  uint16(len(survivors)),
		DispersionBp: dispersion,
	}, &point, nil
}

func (c *OracleEngine) handleSetCircuitBreaker(cmd *SetCircuitBreaker) (event.Event, *state.PricePoint, error) {
	inst, ok := c.assets[cmd.AssetKey]
	if !ok {
		return nil, nil, state.ErrOracleNotFound
	}
	os := inst.Oracle

	if cmd.Active {
		if err := inst.Governance.CheckMemberPermission(cmd.Caller, state.PermTriggerCircuitBreaker); err != nil {
			return nil, nil, err
		}
	} else {
		// Clearing brings the oracle back online, so it needs the full
		// admin role, not just the trigger bit.
		_, perms, found := inst.Governance.FindMember(cmd.Caller)
		if !found {
			return nil, nil, state.ErrUnauthorizedCaller
		}
		if !perms.IsAdmin() {
			return nil, nil, state.ErrInsufficientPermissions
		}
	}

	os.Flags.SetTo(state.FlagCircuitBreaker, cmd.Active)

	if c.metrics != nil {
		v := 0.0
		if cmd.Active {
			v = 1
			c.metrics.CircuitBreakerTrips.WithLabelValues(os.AssetID, string(event.BreakerReasonManual)).Inc()
		}
		c.metrics.CircuitBreakerState.WithLabelValues(os.AssetID).Set(v)
	}

	return &event.CircuitBreakerChanged{
		Caller:    cmd.Caller,
		Active:    cmd.Active,
		Reason:    event.BreakerReasonManual,
		Timestamp: cmd.When(),
	}, nil, nil
}

func (c *OracleEngine) handleSetEmergencyHalt(cmd *SetEmergencyHalt) (event.Event, *state.PricePoint, error) {
	inst, ok := c.assets[cmd.AssetKey]
	if !ok {
		return nil, nil, state.ErrOracleNotFound
	}
	os := inst.Oracle

	// The emergency admin bypasses membership entirely. Anyone else must be
	// a member holding the EMERGENCY_HALT bit.
	if cmd.Caller != os.EmergencyAdmin {
		if err := inst.Governance.CheckMemberPermission(cmd.Caller, state.PermEmergencyHalt); err != nil {
			return nil, nil, err
		}
	}

	os.Flags.SetTo(state.FlagEmergencyMode, cmd.Active)

	return &event.EmergencyHaltChanged{
		Caller:    cmd.Caller,
		Active:    cmd.Active,
		Timestamp: cmd.When(),
	}, nil, nil
}

func (c *OracleEngine) handleSetMaintenanceMode(cmd *SetMaintenanceMode) (event.Event, *state.PricePoint, error) {
	inst, ok := c.assets[cmd.AssetKey]
	if !ok {
		return nil, nil, state.ErrOracleNotFound
	}
	if err := inst.Governance.CheckMemberPermission(cmd.Caller, state.PermModifyConfig); err != nil {
		return nil, nil, err
	}

	inst.Oracle.Flags.SetTo(state.FlagMaintenanceMode, cmd.Active)

	return &event.MaintenanceModeChanged{
		Caller:    cmd.Caller,
		Active:    cmd.Active,
		Timestamp: cmd.When(),
	}, nil, nil
}

func (c *OracleEngine) handleSetUpgradeLock(cmd *SetUpgradeLock) (event.Event, *state.PricePoint, error) {
	inst, ok := c.assets[cmd.AssetKey]
	if !ok {
		return nil, nil, state.ErrOracleNotFound
	}

	_, perms, found := inst.Governance.FindMember(cmd.Caller)
	if !found {
		return nil, nil, state.ErrUnauthorizedCaller
	}
	if !perms.IsAdmin() {
		return nil, nil, state.ErrInsufficientPermissions
	}

	inst.Oracle.Flags.SetTo(state.FlagUpgradeLocked, cmd.Locked)

	return &event.UpgradeLockChanged{
		Caller:    cmd.Caller,
		Locked:    cmd.Locked,
		Timestamp: cmd.When(),
	}, nil, nil
}

func (c *OracleEngine) handleModifyConfig(cmd *ModifyConfig) (event.Event, *state.PricePoint, error) {
	inst, ok := c.assets[cmd.AssetKey]
	if !ok {
		return nil, nil, state.ErrOracleNotFound
	}
	os := inst.Oracle

	if err := inst.Governance.CheckMemberPermission(cmd.Caller, state.PermModifyConfig); err != nil {
		return nil, nil, err
	}
	if cmd.TWAPWindow == 0 || cmd.TWAPWindow > state.MaxTwapWindow {
		return nil, nil, state.ErrInvalidTWAPWindow
	}
	if cmd.ConfidenceThreshold == 0 || cmd.ConfidenceThreshold > state.MaxConfidenceThreshold {
		return nil, nil, state.ErrInvalidConfidenceThreshold
	}
	if cmd.ManipulationThreshold == 0 || cmd.ManipulationThreshold > state.MaxManipulationThreshold {
		return nil, nil, state.ErrInvalidManipulationThreshold
	}

	os.TWAPWindow = cmd.TWAPWindow
	os.ConfidenceThreshold = cmd.ConfidenceThreshold
	os.ManipulationThreshold = cmd.ManipulationThreshold

	return &event.ConfigModified{
		Caller:                cmd.Caller,
		TWAPWindow:            cmd.TWAPWindow,
		ConfidenceThreshold:   cmd.ConfidenceThreshold,
		ManipulationThreshold: cmd.ManipulationThreshold,
	}, nil, nil
}

// clampBp narrows a basis-point quantity into the uint16 range feed metadata
// stores; deviations past 100% all read as saturated.
func clampBp(v int64) uint16 {
	if v < 0 {
		return 0
	}
	if v > fpmath.BasisPointScale {
		return uint16(fpmath.BasisPointScale)
	}
	return uint16(v)
}

func (c *OracleEngine) countFiltered(assetID, filter string) {
	if c.metrics != nil {
		c.metrics.SourcesFiltered.WithLabelValues(assetID, filter).Inc()
	}
}

func (c *OracleEngine) countRound(assetID, outcome string) {
	if c.metrics != nil {
		c.metrics.AggregationRounds.WithLabelValues(assetID, outcome).Inc()
	}
}

// computeStateDigest creates canonical bytes for the state hash: the asset's
// key plus the fields a consumer relies on. A nil instance (pre-initialize)
// contributes an empty digest.
func (c *OracleEngine) computeStateDigest(inst *AssetInstance) []byte {
	if inst == nil {
		return nil
	}
	os := inst.Oracle

	digest := make([]byte, 0, 96)
	digest = append(digest, os.AssetKey[:]...)
	digest = appendUint32LE(digest, uint32(os.Flags))
	digest = appendInt64LE(digest, os.CurrentPrice.Price)
	digest = appendInt64LE(digest, int64(os.CurrentPrice.Conf))
	digest = appendInt64LE(digest, os.CurrentPrice.Timestamp)
	digest = appendInt64LE(digest, os.LastUpdate)
	digest = append(digest, os.ActiveFeedCount)
	digest = appendUint32LE(digest, os.TotalActiveWeight())
	digest = appendUint32LE(digest, uint32(os.CurrentChunkIndex))
	digest = append(digest, inst.Governance.ActiveMemberCount)
	return digest
}

func appendInt64LE(buf []byte, v int64) []byte {
	return append(buf,
		byte(v),
		byte(v>>8),
		byte(v>>16),
		byte(v>>24),
		byte(v>>32),
		byte(v>>40),
		byte(v>>48),
		byte(v>>56),
	)
}

func appendUint32LE(buf []byte, v uint32) []byte {
	return append(buf,
		byte(v),
		byte(v>>8),
		byte(v>>16),
		byte(v>>24),
	)
}

// rejectReason maps sentinel errors to a bounded metric label set.
func rejectReason(err error) string {
	switch {
	case errors.Is(err, state.ErrUnauthorizedCaller):
		return "unauthorized"
	case errors.Is(err, state.ErrInsufficientPermissions):
		return "permission"
	case errors.Is(err, state.ErrCircuitBreakerActive):
		return "breaker"
	case errors.Is(err, state.ErrManipulationDetected):
		return "manipulation"
	case errors.Is(err, state.ErrLowConfidence):
		return "low_confidence"
	case errors.Is(err, state.ErrNoEligibleSources):
		return "no_sources"
	case errors.Is(err, state.ErrNonPositiveElapsed):
		return "non_positive_elapsed"
	case errors.Is(err, state.ErrOracleNotFound):
		return "not_found"
	default:
		return "validation"
	}
}

// --- Read accessors & snapshot restore ---

// Asset exposes an initialized asset's state tree. The returned pointer is
// only safe to dereference from the engine goroutine; concurrent readers go
// through projections.
func (c *OracleEngine) Asset(key state.AssetKey) (*AssetInstance, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	inst, ok := c.assets[key]
	return inst, ok
}

// TWAP computes the time-weighted average over the asset's committed history
// within [now-windowSeconds, now].
func (c *OracleEngine) TWAP(key state.AssetKey, windowSeconds uint32, now int64) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	inst, ok := c.assets[key]
	if !ok {
		return 0, state.ErrOracleNotFound
	}
	if windowSeconds == 0 || windowSeconds > state.MaxTwapWindow {
		return 0, state.ErrInvalidTWAPWindow
	}
	points := inst.History.PointsInWindow(now-int64(windowSeconds), now)
	twap, ok := state.TimeWeightedAverage(points, now)
	if !ok {
		return 0, state.ErrNoEligibleSources
	}
	return twap, nil
}

// GetSequence returns the next sequence the engine will assign.
func (c *OracleEngine) GetSequence() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sequence
}

// GetStateHash returns the current state hash chain tip.
func (c *OracleEngine) GetStateHash() [32]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hasher.GetPrevHash()
}

// AssetSnapshot is the serializable state tree for one asset.
type AssetSnapshot struct {
	Oracle           state.OracleState
	Governance       state.GovernanceState
	Chunks           []state.HistoricalChunk
	ActiveChunkIndex uint16
}

// SnapshotState captures the engine's full in-memory state for persistence.
type SnapshotState struct {
	Sequence        int64
	StateHash       [32]byte
	Assets          map[string]*AssetSnapshot
	IdempotencyKeys []string
}

// CreateSnapshotState captures the current in-memory state. Safe to call
// from the snapshot goroutine while the command loop runs. Chunk links are
// not serialized; RestoreFromSnapshot relinks.
func (c *OracleEngine) CreateSnapshotState() *SnapshotState {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := &SnapshotState{
		Sequence:        c.sequence - 1,
		StateHash:       c.hasher.GetPrevHash(),
		Assets:          make(map[string]*AssetSnapshot, len(c.assets)),
		IdempotencyKeys: c.idempotency.lru.GetAllKeys(),
	}
	for _, inst := range c.assets {
		chunks := make([]state.HistoricalChunk, len(inst.History.Chunks()))
		for i, ch := range inst.History.Chunks() {
			chunks[i] = *ch
			chunks[i].Next = nil
		}
		snap.Assets[inst.Oracle.AssetID] = &AssetSnapshot{
			Oracle:           *inst.Oracle,
			Governance:       *inst.Governance,
			Chunks:           chunks,
			ActiveChunkIndex: inst.History.ActiveChunkIndex(),
		}
	}
	return snap
}

// RestoreFromSnapshot rebuilds the in-memory state from a snapshot. On warm
// restart the caller loads the latest snapshot, restores, then replays the
// event log tail.
func (c *OracleEngine) RestoreFromSnapshot(snap *SnapshotState) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.sequence = snap.Sequence + 1
	c.hasher.SetPrevHash(snap.StateHash)

	for _, as := range snap.Assets {
		oracle := as.Oracle
		governance := as.Governance

		history := state.NewHistoricalStore(len(as.Chunks), 0)
		for i := range as.Chunks {
			restored := as.Chunks[i]
			restored.Next = history.Chunks()[i].Next
			*history.Chunks()[i] = restored
		}
		history.SetActiveChunkIndex(as.ActiveChunkIndex)

		c.assets[oracle.AssetKey] = &AssetInstance{
			Oracle:     &oracle,
			Governance: &governance,
			History:    history,
		}
	}
}

// WarmLRU loads recent idempotency keys into the LRU cache, avoiding
// cold-path DB lookups for recently processed commands.
func (c *OracleEngine) WarmLRU(keys []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.idempotency.lru.WarmFromKeys(keys)
}
