package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SnapshotManager stores and loads engine state snapshots for recovery. The
// engine serializes its own state (core.SnapshotState); this layer treats the
// payload as opaque JSON.
type SnapshotManager struct {
	db *sql.DB
}

// SnapshotRecord wraps one stored snapshot.
type SnapshotRecord struct {
	Sequence  int64           `json:"sequence"`
	StateHash []byte          `json:"state_hash"`
	Data      json.RawMessage `json:"data"`
	CreatedAt time.Time       `json:"created_at"`
}

func NewSnapshotManager(db *sql.DB) *SnapshotManager {
	return &SnapshotManager{db: db}
}

// SaveSnapshot persists one snapshot. Re-snapshotting the same sequence
// overwrites the previous record.
func (sm *SnapshotManager) SaveSnapshot(ctx context.Context, sequence int64, stateHash []byte, data []byte) error {
	snapshotID := uuid.New()
	formatVersion := int32(1) // v1: JSON-encoded core.SnapshotState

	_, err := sm.db.ExecContext(ctx, `
		INSERT INTO oracle.snapshots
			(snapshot_id, sequence, data, state_hash, format_version, size_bytes, verified, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, FALSE, NOW())
		ON CONFLICT (sequence) DO UPDATE SET data = $3, state_hash = $4, size_bytes = $6
	`, snapshotID, sequence, data, stateHash, formatVersion, len(data))

	return err
}

// LoadLatestSnapshot loads the most recent verified snapshot. A nil record
// with no error means cold start.
func (sm *SnapshotManager) LoadLatestSnapshot(ctx context.Context) (*SnapshotRecord, error) {
	row := sm.db.QueryRowContext(ctx, `
		SELECT sequence, state_hash, data, created_at FROM oracle.snapshots
		WHERE verified = TRUE
		ORDER BY sequence DESC
		LIMIT 1
	`)

	var rec SnapshotRecord
	if err := row.Scan(&rec.Sequence, &rec.StateHash, &rec.Data, &rec.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	return &rec, nil
}

// MarkVerified marks a snapshot as verified after a replay integrity check.
func (sm *SnapshotManager) MarkVerified(ctx context.Context, sequence int64) error {
	_, err := sm.db.ExecContext(ctx, `
		UPDATE oracle.snapshots SET verified = TRUE WHERE sequence = $1
	`, sequence)
	return err
}

// LoadEventsFrom loads events from a given sequence for replay. Used for
// warm restart (replay from snapshot) and cold restart (replay all).
func (sm *SnapshotManager) LoadEventsFrom(ctx context.Context, fromSequence int64, limit int) ([]EventRow, error) {
	rows, err := sm.db.QueryContext(ctx, `
		SELECT sequence, event_id, event_type, command_type, idempotency_key,
		       asset_key, asset_id, payload, state_hash, prev_hash, ts
		FROM oracle.events
		WHERE sequence >= $1
		ORDER BY sequence ASC
		LIMIT $2
	`, fromSequence, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []EventRow
	for rows.Next() {
		var e EventRow
		if err := rows.Scan(
			&e.Sequence, &e.EventID, &e.EventType, &e.CommandType, &e.IdempotencyKey,
			&e.AssetKey, &e.AssetID, &e.Payload, &e.StateHash, &e.PrevHash, &e.Timestamp,
		); err != nil {
			return nil, err
		}
		events = append(events, e)
	}

	return events, rows.Err()
}

// GetLatestSequence returns the highest sequence in the event log.
func (sm *SnapshotManager) GetLatestSequence(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	err := sm.db.QueryRowContext(ctx, `
		SELECT MAX(sequence) FROM oracle.events
	`).Scan(&seq)
	if err != nil {
		return 0, err
	}
	if !seq.Valid {
		return 0, nil
	}
	return seq.Int64, nil
}

// RecentIdempotencyKeys returns the newest composite dedup keys for LRU
// warming on restart.
func (sm *SnapshotManager) RecentIdempotencyKeys(ctx context.Context, limit int) ([]string, error) {
	rows, err := sm.db.QueryContext(ctx, `
		SELECT command_type, idempotency_key
		FROM oracle.events
		ORDER BY sequence DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var cmdType, key string
		if err := rows.Scan(&cmdType, &key); err != nil {
			return nil, err
		}
		keys = append(keys, cmdType+":"+key)
	}
	return keys, rows.Err()
}
