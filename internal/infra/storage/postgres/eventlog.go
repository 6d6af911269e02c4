package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/gabapcia/mintwatch/internal/eventlog"

	"github.com/jackc/pgx/v5"
)

// EventLog stores records of one mint in the events table.
type EventLog struct {
	pool *Pool
	mint string
}

var _ eventlog.Log = (*EventLog)(nil)

// NewEventLog returns the log of mint. Run Pool.Migrate first.
func NewEventLog(pool *Pool, mint string) *EventLog {
	return &EventLog{pool: pool, mint: mint}
}

const insertEvent = `
	INSERT INTO events (mint, key, type, signature, slot, occurred_at, payload)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	ON CONFLICT (mint, key) DO NOTHING
`

// Append inserts the records in one transaction. Records whose key already
// exists are skipped by the unique constraint.
func (l *EventLog) Append(ctx context.Context, records ...eventlog.Record) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for _, r := range records {
		if err := r.Validate(); err != nil {
			return 0, err
		}

		payload, err := json.Marshal(r)
		if err != nil {
			return 0, err
		}
		batch.Queue(insertEvent, l.mint, r.Key(), string(r.Type), r.Signature, int64(r.Slot), r.Timestamp, payload)
	}

	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	results := tx.SendBatch(ctx, batch)

	appended := 0
	for range records {
		tag, err := results.Exec()
		if err != nil {
			_ = results.Close()
			return 0, fmt.Errorf("insert event: %w", err)
		}
		appended += int(tag.RowsAffected())
	}
	if err := results.Close(); err != nil {
		return 0, fmt.Errorf("close batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}
	return appended, nil
}

// Iterate visits the records of the mint in insertion order.
func (l *EventLog) Iterate(ctx context.Context, fn func(eventlog.Record) error) error {
	rows, err := l.pool.Query(ctx, `SELECT payload FROM events WHERE mint = $1 ORDER BY id`, l.mint)
	if err != nil {
		return fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return fmt.Errorf("scan event: %w", err)
		}

		var r eventlog.Record
		if err := json.Unmarshal(payload, &r); err != nil {
			return fmt.Errorf("decode event: %w", err)
		}
		if err := fn(r); err != nil {
			return err
		}
	}
	return rows.Err()
}
