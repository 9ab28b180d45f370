// Package audit persists provider call records, usage rows and exhaustion
// alerts. The SQLite store is the durable backend; the memory store serves
// tests and ephemeral runs.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"ragpipe/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS provider_calls (
	id TEXT PRIMARY KEY,
	provider TEXT NOT NULL,
	model TEXT NOT NULL,
	latency_ms INTEGER NOT NULL,
	cost_estimate REAL NOT NULL,
	user_id TEXT NOT NULL,
	task_type TEXT NOT NULL,
	outcome TEXT NOT NULL,
	error TEXT NOT NULL,
	timestamp INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_provider_calls_ts ON provider_calls(timestamp);

CREATE TABLE IF NOT EXISTS usage (
	user_id TEXT NOT NULL,
	provider TEXT NOT NULL,
	model TEXT NOT NULL,
	input_tokens INTEGER NOT NULL,
	output_tokens INTEGER NOT NULL,
	timestamp INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_usage_user ON usage(user_id, timestamp);

CREATE TABLE IF NOT EXISTS alerts (
	providers TEXT NOT NULL,
	model TEXT NOT NULL,
	user_id TEXT NOT NULL,
	reason TEXT NOT NULL,
	timestamp INTEGER NOT NULL
);
`

// SQLiteLog is an append-only audit log backed by a local SQLite database.
type SQLiteLog struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path and applies the schema.
func OpenSQLite(path string) (*SQLiteLog, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open audit db: %w", err)
	}
	// the sqlite driver is not safe for concurrent writes over one file
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply audit schema: %w", err)
	}
	return &SQLiteLog{db: db}, nil
}

// Close releases the database handle.
func (l *SQLiteLog) Close() error { return l.db.Close() }

// RecordCall appends one terminal provider outcome.
func (l *SQLiteLog) RecordCall(ctx context.Context, rec domain.ProviderCallRecord) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO provider_calls (id, provider, model, latency_ms, cost_estimate, user_id, task_type, outcome, error, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Provider, rec.Model, rec.LatencyMs, rec.CostEstimate,
		rec.UserID, rec.TaskType, string(rec.Outcome), rec.Error, rec.Timestamp.Unix())
	return err
}

// RecordUsage appends one usage accounting row.
func (l *SQLiteLog) RecordUsage(ctx context.Context, rec domain.UsageRecord) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO usage (user_id, provider, model, input_tokens, output_tokens, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rec.UserID, rec.Provider, rec.Model, rec.InputTokens, rec.OutputTokens, rec.Timestamp.Unix())
	return err
}

// RecordAlert appends one fallback-exhaustion alert.
func (l *SQLiteLog) RecordAlert(ctx context.Context, rec domain.AlertRecord) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO alerts (providers, model, user_id, reason, timestamp) VALUES (?, ?, ?, ?, ?)`,
		strings.Join(rec.Providers, ","), rec.Model, rec.UserID, rec.Reason, rec.Timestamp.Unix())
	return err
}

// RecentCalls returns the newest call records, most recent first.
func (l *SQLiteLog) RecentCalls(ctx context.Context, limit int) ([]domain.ProviderCallRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := l.db.QueryContext(ctx,
		`SELECT id, provider, model, latency_ms, cost_estimate, user_id, task_type, outcome, error, timestamp
		 FROM provider_calls ORDER BY timestamp DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.ProviderCallRecord
	for rows.Next() {
		var rec domain.ProviderCallRecord
		var outcome string
		var ts int64
		if err := rows.Scan(&rec.ID, &rec.Provider, &rec.Model, &rec.LatencyMs, &rec.CostEstimate,
			&rec.UserID, &rec.TaskType, &outcome, &rec.Error, &ts); err != nil {
			return nil, err
		}
		rec.Outcome = domain.Outcome(outcome)
		rec.Timestamp = time.Unix(ts, 0)
		out = append(out, rec)
	}
	return out, rows.Err()
}

var _ domain.AuditLog = (*SQLiteLog)(nil)
