package projection

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"TierOracle/internal/event"
	"TierOracle/internal/observability"
)

// ProjectionOutput mirrors the data projection workers need. The
// orchestrator bridges between core.CoreOutput and this.
type ProjectionOutput struct {
	Sequence int64
	AssetID  string
	AssetKey []byte
	Payload  event.Event
}

// ProjectionWorker folds committed events into the read-side tables. Its
// input channel is non-blocking on the engine side, so a slow worker drops
// updates; the tables are eventually consistent and rebuildable from the
// event log.
type ProjectionWorker struct {
	db        *sql.DB
	inputChan <-chan ProjectionOutput
	metrics   *observability.Metrics
	lastSeq   int64
}

func NewProjectionWorker(db *sql.DB, inputChan <-chan ProjectionOutput, metrics *observability.Metrics) *ProjectionWorker {
	return &ProjectionWorker{
		db:        db,
		inputChan: inputChan,
		metrics:   metrics,
	}
}

// Run starts the projection worker loop.
func (pw *ProjectionWorker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case output, ok := <-pw.inputChan:
			if !ok {
				return nil
			}

			start := time.Now()
			if err := pw.Apply(ctx, output); err != nil {
				log.Printf("WARN: projection update failed at seq=%d: %v", output.Sequence, err)
				if pw.metrics != nil {
					pw.metrics.ProjectionErrors.WithLabelValues("main").Inc()
				}
				// Continue; projections can be rebuilt from the event log
			}
			if pw.metrics != nil {
				pw.metrics.ProjectionUpdateDur.WithLabelValues("main").Observe(time.Since(start).Seconds())
			}

			pw.lastSeq = output.Sequence
		}
	}
}

// Apply folds one event into the projection tables.
func (pw *ProjectionWorker) Apply(ctx context.Context, output ProjectionOutput) error {
	switch e := output.Payload.(type) {
	case *event.OracleInitialized:
		_, err := pw.db.ExecContext(ctx, `
			INSERT INTO oracle.oracle_status (asset_id, sequence)
			VALUES ($1, $2)
			ON CONFLICT (asset_id) DO NOTHING
		`, output.AssetID, output.Sequence)
		return err

	case *event.PriceUpdated:
		_, err := pw.db.ExecContext(ctx, `
			INSERT INTO oracle.current_prices
				(asset_id, asset_key, price, confidence, dispersion_bp, sources_used, twap_window, updated_at, sequence)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (asset_id) DO UPDATE SET
				price = $3, confidence = $4, dispersion_bp = $5,
				sources_used = $6, twap_window = $7, updated_at = $8, sequence = $9
		`, output.AssetID, output.AssetKey, e.Price, int64(e.Confidence),
			e.DispersionBp, int(e.SourcesUsed), int64(e.TWAPWindow), e.Timestamp, output.Sequence)
		return err

	case *event.FeedRegistered:
		return pw.updateFeedCounts(ctx, output, 1, int(e.TotalWeight))

	case *event.FeedRemoved:
		return pw.updateFeedCounts(ctx, output, -1, int(e.TotalWeight))

	case *event.CircuitBreakerChanged:
		return pw.setStatusFlag(ctx, output, "breaker_active", e.Active)

	case *event.EmergencyHaltChanged:
		return pw.setStatusFlag(ctx, output, "emergency_active", e.Active)

	case *event.MaintenanceModeChanged:
		return pw.setStatusFlag(ctx, output, "maintenance_active", e.Active)

	case *event.UpgradeLockChanged:
		return pw.setStatusFlag(ctx, output, "upgrade_locked", e.Locked)

	case *event.ConfigModified:
		// Config parameters live in the engine and the event log; no
		// projection column tracks them
		return nil

	default:
		return nil
	}
}

func (pw *ProjectionWorker) updateFeedCounts(ctx context.Context, output ProjectionOutput, delta, totalWeight int) error {
	_, err := pw.db.ExecContext(ctx, `
		INSERT INTO oracle.oracle_status (asset_id, active_feeds, total_weight, sequence)
		VALUES ($1, GREATEST($2, 0), $3, $4)
		ON CONFLICT (asset_id) DO UPDATE SET
			active_feeds = GREATEST(oracle.oracle_status.active_feeds + $2, 0),
			total_weight = $3,
			sequence = $4
	`, output.AssetID, delta, totalWeight, output.Sequence)
	return err
}

// setStatusFlag flips one boolean status column. The column name comes from
// a fixed switch above, never from input.
func (pw *ProjectionWorker) setStatusFlag(ctx context.Context, output ProjectionOutput, column string, active bool) error {
	query := fmt.Sprintf(`
		INSERT INTO oracle.oracle_status (asset_id, %s, sequence)
		VALUES ($1, $2, $3)
		ON CONFLICT (asset_id) DO UPDATE SET %s = $2, sequence = $3
	`, column, column)
	_, err := pw.db.ExecContext(ctx, query, output.AssetID, active, output.Sequence)
	return err
}

// RebuildProjections truncates the read-side tables and refolds the full
// event log through the same Apply path the live worker uses.
func RebuildProjections(ctx context.Context, db *sql.DB) error {
	truncateStatements := []string{
		`TRUNCATE oracle.current_prices`,
		`TRUNCATE oracle.oracle_status`,
	}
	for _, stmt := range truncateStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("truncate failed: %w", err)
		}
	}

	rows, err := db.QueryContext(ctx, `
		SELECT sequence, event_type, asset_key, asset_id, payload
		FROM oracle.events
		ORDER BY sequence ASC
	`)
	if err != nil {
		return fmt.Errorf("read event log: %w", err)
	}
	defer rows.Close()

	worker := &ProjectionWorker{db: db}
	count := 0
	for rows.Next() {
		var (
			seq       int64
			eventType string
			assetKey  []byte
			assetID   string
			payload   []byte
		)
		if err := rows.Scan(&seq, &eventType, &assetKey, &assetID, &payload); err != nil {
			return err
		}

		evt, err := event.UnmarshalPayload(eventType, payload)
		if err != nil {
			return fmt.Errorf("seq %d: %w", seq, err)
		}

		if err := worker.Apply(ctx, ProjectionOutput{
			Sequence: seq,
			AssetID:  assetID,
			AssetKey: assetKey,
			Payload:  evt,
		}); err != nil {
			return fmt.Errorf("apply seq %d: %w", seq, err)
		}
		worker.lastSeq = seq
		count++
	}
	if err := rows.Err(); err != nil {
		return err
	}

	log.Printf("INFO: projection rebuild complete (%d events)", count)
	return nil
}
