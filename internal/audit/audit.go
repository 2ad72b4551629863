// Package audit records every emitted status transition for later review.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"noren/internal/events"
)

// Entry is one recorded status transition.
type Entry struct {
	ID         int64
	EventID    string
	StatusType string
	Message    string
	Detail     string
	Manual     bool
	OverrideID string
	OccurredAt time.Time
}

// Recorder persists transitions to sqlite and serves them back for export.
type Recorder struct {
	db     *sql.DB
	logger *zerolog.Logger
}

// NewRecorder creates the audit table if needed.
func NewRecorder(db *sql.DB, logger *zerolog.Logger) (*Recorder, error) {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS status_audit (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			event_id    TEXT NOT NULL,
			status_type TEXT NOT NULL,
			message     TEXT NOT NULL,
			detail      TEXT NOT NULL DEFAULT '',
			manual      INTEGER NOT NULL,
			override_id TEXT NOT NULL DEFAULT '',
			occurred_at TIMESTAMP NOT NULL
		)`)
	if err != nil {
		return nil, fmt.Errorf("create status_audit table: %w", err)
	}
	return &Recorder{db: db, logger: logger}, nil
}

// Attach subscribes the recorder to the event bus. Insert failures are
// logged, never propagated into the resolution path.
func (r *Recorder) Attach(bus *events.Bus) {
	bus.Subscribe(func(ev events.StatusChange) {
		if err := r.Record(context.Background(), ev); err != nil {
			r.logger.Warn().Err(err).Msg("audit record failed")
		}
	})
}

// Record inserts one transition.
func (r *Recorder) Record(ctx context.Context, ev events.StatusChange) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO status_audit (event_id, status_type, message, detail, manual, override_id, occurred_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, string(ev.Status.Type), ev.Status.Message, ev.Status.Detail,
		ev.Manual, ev.Status.OverrideID, ev.Timestamp)
	return err
}

// List returns transitions recorded at or after since, oldest first.
func (r *Recorder) List(ctx context.Context, since time.Time) ([]Entry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, event_id, status_type, message, detail, manual, override_id, occurred_at
		FROM status_audit
		WHERE occurred_at >= ?
		ORDER BY occurred_at ASC`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.EventID, &e.StatusType, &e.Message, &e.Detail,
			&e.Manual, &e.OverrideID, &e.OccurredAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Cleanup deletes entries older than the retention window and returns the
// number removed.
func (r *Recorder) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)
	res, err := r.db.ExecContext(ctx, "DELETE FROM status_audit WHERE occurred_at < ?", cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
