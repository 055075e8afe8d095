package query

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"TierOracle/internal/observability"
	"TierOracle/internal/state"
)

// QueryService provides read-only access to the projection tables and the
// event log. All responses include as_of_sequence for freshness semantics;
// callers comparing against the engine sequence can detect projection lag.
type QueryService struct {
	db      *sql.DB
	metrics *observability.Metrics
}

func NewQueryService(db *sql.DB, metrics *observability.Metrics) *QueryService {
	return &QueryService{db: db, metrics: metrics}
}

// GetPrice returns the latest aggregated price for an asset.
func (qs *QueryService) GetPrice(ctx context.Context, assetID string) (*PriceResponse, error) {
	defer qs.observe("get_price", time.Now())

	var resp PriceResponse
	var confidence int64
	err := qs.db.QueryRowContext(ctx, `
		SELECT asset_id, price, confidence, dispersion_bp, sources_used,
		       twap_window, updated_at, sequence
		FROM oracle.current_prices
		WHERE asset_id = $1
	`, assetID).Scan(
		&resp.AssetID, &resp.Price, &confidence, &resp.DispersionBp,
		&resp.SourcesUsed, &resp.TWAPWindow, &resp.UpdatedAt, &resp.AsOfSequence,
	)
	if err == sql.ErrNoRows {
		return nil, ErrAssetNotFound
	}
	if err != nil {
		qs.countError("get_price")
		return nil, fmt.Errorf("query current price: %w", err)
	}
	resp.Confidence = uint16(confidence)
	return &resp, nil
}

// GetTWAP computes a time-weighted average over the stored history for the
// requested window. The computation mirrors the engine's in-memory TWAP:
// samples sorted by timestamp, each weighted by its holding interval.
func (qs *QueryService) GetTWAP(ctx context.Context, assetID string, windowSeconds int64, now int64) (*TWAPResponse, error) {
	defer qs.observe("get_twap", time.Now())

	if windowSeconds <= 0 {
		return nil, fmt.Errorf("window_seconds must be positive")
	}
	if now <= 0 {
		now = time.Now().Unix()
	}
	cutoff := now - windowSeconds

	rows, err := qs.db.QueryContext(ctx, `
		SELECT price, confidence, ts, sequence
		FROM oracle.price_history
		WHERE asset_id = $1 AND ts >= $2 AND ts <= $3
		ORDER BY ts ASC
	`, assetID, cutoff, now)
	if err != nil {
		qs.countError("get_twap")
		return nil, fmt.Errorf("query price history: %w", err)
	}
	defer rows.Close()

	var points []state.PricePoint
	var maxSeq int64
	for rows.Next() {
		var p state.PricePoint
		var conf, seq int64
		if err := rows.Scan(&p.Price, &conf, &p.Timestamp, &seq); err != nil {
			qs.countError("get_twap")
			return nil, err
		}
		p.Conf = uint64(conf)
		if seq > maxSeq {
			maxSeq = seq
		}
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		qs.countError("get_twap")
		return nil, err
	}

	sort.Slice(points, func(i, j int) bool { return points[i].Timestamp < points[j].Timestamp })
	twap, ok := state.TimeWeightedAverage(points, now)
	if !ok {
		return nil, ErrNoHistory
	}

	return &TWAPResponse{
		AssetID:       assetID,
		TWAP:          twap,
		WindowSeconds: windowSeconds,
		SampleCount:   len(points),
		FromTimestamp: cutoff,
		ToTimestamp:   now,
		AsOfSequence:  maxSeq,
	}, nil
}

// GetHistory returns stored price points for an asset within [from, to],
// newest first, cursor-paginated by sequence.
func (qs *QueryService) GetHistory(ctx context.Context, assetID string, from, to int64, limit int, beforeSequence *int64) (*HistoryResponse, error) {
	defer qs.observe("get_history", time.Now())

	if limit <= 0 || limit > 1000 {
		limit = 1000
	}
	if to <= 0 {
		to = time.Now().Unix()
	}

	query := `
		SELECT sequence, price, confidence, ts
		FROM oracle.price_history
		WHERE asset_id = $1 AND ts >= $2 AND ts <= $3
	`
	args := []interface{}{assetID, from, to}
	argIdx := 4

	if beforeSequence != nil {
		query += fmt.Sprintf(" AND sequence < $%d", argIdx)
		args = append(args, *beforeSequence)
		argIdx++
	}

	query += " ORDER BY sequence DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, limit)

	rows, err := qs.db.QueryContext(ctx, query, args...)
	if err != nil {
		qs.countError("get_history")
		return nil, fmt.Errorf("query price history: %w", err)
	}
	defer rows.Close()

	resp := &HistoryResponse{AssetID: assetID}
	for rows.Next() {
		var p HistoryPoint
		var conf int64
		if err := rows.Scan(&p.Sequence, &p.Price, &conf, &p.Timestamp); err != nil {
			qs.countError("get_history")
			return nil, err
		}
		p.Confidence = uint16(conf)
		if p.Sequence > resp.AsOfSequence {
			resp.AsOfSequence = p.Sequence
		}
		resp.Points = append(resp.Points, p)
	}
	return resp, rows.Err()
}

// GetStatus returns the operational status of one asset's oracle.
func (qs *QueryService) GetStatus(ctx context.Context, assetID string) (*StatusResponse, error) {
	defer qs.observe("get_status", time.Now())

	var resp StatusResponse
	err := qs.db.QueryRowContext(ctx, `
		SELECT asset_id, breaker_active, emergency_active, maintenance_active,
		       upgrade_locked, active_feeds, total_weight, sequence
		FROM oracle.oracle_status
		WHERE asset_id = $1
	`, assetID).Scan(
		&resp.AssetID, &resp.BreakerActive, &resp.EmergencyActive,
		&resp.MaintenanceActive, &resp.UpgradeLocked, &resp.ActiveFeeds,
		&resp.TotalWeight, &resp.AsOfSequence,
	)
	if err == sql.ErrNoRows {
		return nil, ErrAssetNotFound
	}
	if err != nil {
		qs.countError("get_status")
		return nil, fmt.Errorf("query oracle status: %w", err)
	}
	return &resp, nil
}

// ListAssets returns the asset IDs with a status row, ordered.
func (qs *QueryService) ListAssets(ctx context.Context) ([]string, error) {
	defer qs.observe("list_assets", time.Now())

	rows, err := qs.db.QueryContext(ctx, `
		SELECT asset_id FROM oracle.oracle_status ORDER BY asset_id
	`)
	if err != nil {
		qs.countError("list_assets")
		return nil, err
	}
	defer rows.Close()

	var assets []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		assets = append(assets, id)
	}
	return assets, rows.Err()
}

// GetEvents returns event-log entries for an asset, newest first, with
// cursor-based pagination.
func (qs *QueryService) GetEvents(ctx context.Context, assetID string, limit int, beforeSequence *int64) ([]EventResponse, error) {
	defer qs.observe("get_events", time.Now())

	if limit <= 0 || limit > 500 {
		limit = 500
	}

	query := `
		SELECT sequence, event_id, event_type, asset_id, payload, state_hash, ts
		FROM oracle.events
		WHERE asset_id = $1
	`
	args := []interface{}{assetID}
	argIdx := 2

	if beforeSequence != nil {
		query += fmt.Sprintf(" AND sequence < $%d", argIdx)
		args = append(args, *beforeSequence)
		argIdx++
	}

	query += " ORDER BY sequence DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, limit)

	rows, err := qs.db.QueryContext(ctx, query, args...)
	if err != nil {
		qs.countError("get_events")
		return nil, err
	}
	defer rows.Close()

	var events []EventResponse
	for rows.Next() {
		var e EventResponse
		if err := rows.Scan(
			&e.Sequence, &e.EventID, &e.EventType, &e.AssetID,
			&e.Payload, &e.StateHash, &e.Timestamp,
		); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// --- Admin APIs ---

// VerifyIntegrity checks hash chain continuity across the event log.
func (qs *QueryService) VerifyIntegrity(ctx context.Context) (*IntegrityReport, error) {
	defer qs.observe("verify_integrity", time.Now())

	report := &IntegrityReport{}

	if err := qs.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM oracle.events
	`).Scan(&report.EventCount); err != nil {
		qs.countError("verify_integrity")
		return nil, err
	}

	rows, err := qs.db.QueryContext(ctx, `
		SELECT e1.sequence
		FROM oracle.events e1
		JOIN oracle.events e2 ON e2.sequence = e1.sequence - 1
		WHERE e1.prev_hash != e2.state_hash
		ORDER BY e1.sequence
		LIMIT 10
	`)
	if err != nil {
		qs.countError("verify_integrity")
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var seq int64
		if err := rows.Scan(&seq); err != nil {
			return nil, err
		}
		report.HashChainBreaks = append(report.HashChainBreaks, seq)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	report.IsHealthy = len(report.HashChainBreaks) == 0
	return report, nil
}

// --- helpers ---

func (qs *QueryService) observe(endpoint string, start time.Time) {
	if qs.metrics == nil {
		return
	}
	qs.metrics.QueryRequests.WithLabelValues(endpoint).Inc()
	qs.metrics.QueryDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
}

func (qs *QueryService) countError(endpoint string) {
	if qs.metrics != nil {
		qs.metrics.QueryErrors.WithLabelValues(endpoint).Inc()
	}
}
