package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"
)

// execer is satisfied by both *sql.DB and *sql.Tx so batch writes can run
// inside the worker's flush transaction.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// EventLogWriter writes events and price history to Postgres using multi-row
// INSERT. ON CONFLICT DO NOTHING makes writes idempotent across retries.
type EventLogWriter struct {
	db *sql.DB
}

// EventRow represents a row in oracle.events
type EventRow struct {
	Sequence       int64
	EventID        string
	EventType      string
	CommandType    string
	IdempotencyKey string
	AssetKey       []byte
	AssetID        string
	Payload        []byte // JSON-encoded event payload
	StateHash      []byte
	PrevHash       []byte
	Timestamp      time.Time
}

// PointRow represents a row in oracle.price_history
type PointRow struct {
	AssetID    string
	Sequence   int64
	Price      int64
	Confidence int64
	Timestamp  int64
}

func NewEventLogWriter(db *sql.DB) *EventLogWriter {
	return &EventLogWriter{db: db}
}

// WriteEventBatch writes a batch of events to oracle.events.
func (w *EventLogWriter) WriteEventBatch(ctx context.Context, ex execer, events []EventRow) error {
	if len(events) == 0 {
		return nil
	}

	query := `INSERT INTO oracle.events
		(sequence, event_id, event_type, command_type, idempotency_key, asset_key, asset_id, payload, state_hash, prev_hash, ts)
		VALUES `

	values := make([]string, 0, len(events))
	args := make([]interface{}, 0, len(events)*11)

	for i, e := range events {
		base := i * 11
		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6,
			base+7, base+8, base+9, base+10, base+11,
		))
		args = append(args,
			e.Sequence, e.EventID, e.EventType, e.CommandType, e.IdempotencyKey,
			e.AssetKey, e.AssetID, e.Payload, e.StateHash, e.PrevHash, e.Timestamp,
		)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (sequence) DO NOTHING"

	_, err := ex.ExecContext(ctx, query, args...)
	return err
}

// WritePointBatch writes a batch of committed price points to
// oracle.price_history.
func (w *EventLogWriter) WritePointBatch(ctx context.Context, ex execer, points []PointRow) error {
	if len(points) == 0 {
		return nil
	}

	query := `INSERT INTO oracle.price_history
		(asset_id, sequence, price, confidence, ts)
		VALUES `

	values := make([]string, 0, len(points))
	args := make([]interface{}, 0, len(points)*5)

	for i, p := range points {
		base := i * 5
		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5,
		))
		args = append(args, p.AssetID, p.Sequence, p.Price, p.Confidence, p.Timestamp)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (asset_id, sequence) DO NOTHING"

	_, err := ex.ExecContext(ctx, query, args...)
	return err
}

// MarshalPayload is a convenience wrapper for JSON-encoding event payloads.
func MarshalPayload(v interface{}) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		log.Printf("WARN: failed to marshal payload: %v", err)
		return []byte("{}")
	}
	return data
}
