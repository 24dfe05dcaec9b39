package shared

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// AuditLog represents one entry of a record's audit timeline.
type AuditLog struct {
	Action   string         `json:"action"`
	Entity   string         `json:"entity"`
	EntityID string         `json:"entityId"`
	Meta     map[string]any `json:"meta,omitempty"`
	At       time.Time      `json:"at"`
}

func validateAudit(log AuditLog) error {
	if log.Action == "" || log.Entity == "" || log.EntityID == "" {
		return errors.New("audit log requires action/entity/entity_id")
	}
	return nil
}

// AuditLogger writes records into the audit_logs table.
type AuditLogger struct {
	pool *pgxpool.Pool
}

// NewAuditLogger returns a new AuditLogger.
func NewAuditLogger(pool *pgxpool.Pool) *AuditLogger {
	return &AuditLogger{pool: pool}
}

// EnsureSchema creates the audit_logs table when missing.
func (l *AuditLogger) EnsureSchema(ctx context.Context) error {
	if l == nil {
		return errors.New("audit logger not initialised")
	}
	_, err := l.pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS audit_logs (
	id BIGSERIAL PRIMARY KEY,
	action TEXT NOT NULL,
	entity TEXT NOT NULL,
	entity_id TEXT NOT NULL,
	meta JSONB,
	occurred_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`)
	return err
}

// Record persists the log entry.
func (l *AuditLogger) Record(ctx context.Context, log AuditLog) error {
	if l == nil {
		return errors.New("audit logger not initialised")
	}
	if err := validateAudit(log); err != nil {
		return err
	}
	metaJSON, err := json.Marshal(log.Meta)
	if err != nil {
		return err
	}
	if log.At.IsZero() {
		log.At = time.Now()
	}
	_, err = l.pool.Exec(ctx, `INSERT INTO audit_logs (action, entity, entity_id, meta, occurred_at) VALUES ($1, $2, $3, $4, $5)`, log.Action, log.Entity, log.EntityID, metaJSON, log.At)
	return err
}

// Clear removes every audit entry.
func (l *AuditLogger) Clear(ctx context.Context) error {
	if l == nil {
		return errors.New("audit logger not initialised")
	}
	_, err := l.pool.Exec(ctx, `TRUNCATE audit_logs`)
	return err
}

// List returns the timeline of an entity, oldest first.
func (l *AuditLogger) List(ctx context.Context, entity, entityID string) ([]AuditLog, error) {
	if l == nil {
		return nil, errors.New("audit logger not initialised")
	}
	rows, err := l.pool.Query(ctx, `SELECT action, entity, entity_id, meta, occurred_at
FROM audit_logs WHERE entity=$1 AND entity_id=$2 ORDER BY occurred_at ASC, id ASC`, entity, entityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var logs []AuditLog
	for rows.Next() {
		var entry AuditLog
		var meta []byte
		if err := rows.Scan(&entry.Action, &entry.Entity, &entry.EntityID, &meta, &entry.At); err != nil {
			return nil, err
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &entry.Meta); err != nil {
				return nil, err
			}
		}
		logs = append(logs, entry)
	}
	return logs, rows.Err()
}

// AuditTrail keeps the most recent audit entries in memory.
type AuditTrail struct {
	mu      sync.RWMutex
	entries []AuditLog
	limit   int
}

// NewAuditTrail keeps at most limit entries; limit <= 0 means 1000.
func NewAuditTrail(limit int) *AuditTrail {
	if limit <= 0 {
		limit = 1000
	}
	return &AuditTrail{limit: limit}
}

// Record appends the entry, evicting the oldest beyond the limit.
func (t *AuditTrail) Record(ctx context.Context, log AuditLog) error {
	if err := validateAudit(log); err != nil {
		return err
	}
	if log.At.IsZero() {
		log.At = time.Now()
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = append(t.entries, log)
	if over := len(t.entries) - t.limit; over > 0 {
		t.entries = append([]AuditLog(nil), t.entries[over:]...)
	}
	return nil
}

// Clear drops every entry.
func (t *AuditTrail) Clear(ctx context.Context) error {
	t.mu.Lock()
	t.entries = nil
	t.mu.Unlock()
	return nil
}

// List returns the entries of one entity, oldest first.
func (t *AuditTrail) List(ctx context.Context, entity, entityID string) ([]AuditLog, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []AuditLog
	for _, entry := range t.entries {
		if entry.Entity == entity && entry.EntityID == entityID {
			out = append(out, entry)
		}
	}
	return out, nil
}
