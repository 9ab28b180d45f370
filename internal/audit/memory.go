package audit

import (
	"context"
	"sync"

	"ragpipe/internal/domain"
)

// MemoryLog is an in-memory audit log for tests and runs without a database.
type MemoryLog struct {
	mu     sync.Mutex
	calls  []domain.ProviderCallRecord
	usage  []domain.UsageRecord
	alerts []domain.AlertRecord
}

// NewMemoryLog creates an empty in-memory audit log.
func NewMemoryLog() *MemoryLog { return &MemoryLog{} }

// RecordCall appends one terminal provider outcome.
func (l *MemoryLog) RecordCall(_ context.Context, rec domain.ProviderCallRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, rec)
	return nil
}

// RecordUsage appends one usage accounting row.
func (l *MemoryLog) RecordUsage(_ context.Context, rec domain.UsageRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.usage = append(l.usage, rec)
	return nil
}

// RecordAlert appends one fallback-exhaustion alert.
func (l *MemoryLog) RecordAlert(_ context.Context, rec domain.AlertRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.alerts = append(l.alerts, rec)
	return nil
}

// RecentCalls returns the newest call records, most recent first.
func (l *MemoryLog) RecentCalls(_ context.Context, limit int) ([]domain.ProviderCallRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if limit <= 0 || limit > len(l.calls) {
		limit = len(l.calls)
	}
	out := make([]domain.ProviderCallRecord, 0, limit)
	for i := len(l.calls) - 1; i >= len(l.calls)-limit; i-- {
		out = append(out, l.calls[i])
	}
	return out, nil
}

// Calls returns a copy of every call record in insertion order.
func (l *MemoryLog) Calls() []domain.ProviderCallRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]domain.ProviderCallRecord, len(l.calls))
	copy(out, l.calls)
	return out
}

// Usage returns a copy of every usage row in insertion order.
func (l *MemoryLog) Usage() []domain.UsageRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]domain.UsageRecord, len(l.usage))
	copy(out, l.usage)
	return out
}

// Alerts returns a copy of every alert in insertion order.
func (l *MemoryLog) Alerts() []domain.AlertRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]domain.AlertRecord, len(l.alerts))
	copy(out, l.alerts)
	return out
}

var _ domain.AuditLog = (*MemoryLog)(nil)
