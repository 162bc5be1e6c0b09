package store

import (
	"context"
	"database/sql"
	"time"
)

// AuditEntry records who changed what. EntityID is the table name for schema
// mutations, the project for propagation runs and the list ID for lists.
type AuditEntry struct {
	ID         int64     `json:"id"`
	EntityType string    `json:"entity_type"`
	EntityID   string    `json:"entity_id"`
	Action     string    `json:"action"`
	OldValue   string    `json:"old_value"`
	NewValue   string    `json:"new_value"`
	Actor      string    `json:"actor"`
	CreatedAt  time.Time `json:"created_at"`
}

func (db *DB) AppendAudit(ctx context.Context, entityType, entityID, action, oldValue, newValue, actor string) error {
	if actor == "" {
		actor = "system"
	}
	_, err := db.ExecContext(ctx, db.Q(`INSERT INTO audit_log (entity_type, entity_id, action, old_value, new_value, actor) VALUES (?, ?, ?, ?, ?, ?)`),
		entityType, entityID, action, oldValue, newValue, actor)
	return Classify("append audit", err)
}

func (db *DB) ListAuditLog(ctx context.Context, limit int) ([]*AuditEntry, error) {
	rows, err := db.QueryContext(ctx, db.Q(`SELECT id, entity_type, entity_id, action, old_value, new_value, actor, created_at FROM audit_log ORDER BY id DESC LIMIT ?`), limit)
	if err != nil {
		return nil, Classify("list audit", err)
	}
	return scanAuditEntries(rows)
}

func (db *DB) ListEntityAudit(ctx context.Context, entityType, entityID string) ([]*AuditEntry, error) {
	rows, err := db.QueryContext(ctx, db.Q(`SELECT id, entity_type, entity_id, action, old_value, new_value, actor, created_at FROM audit_log WHERE entity_type=? AND entity_id=? ORDER BY id DESC`), entityType, entityID)
	if err != nil {
		return nil, Classify("list entity audit", err)
	}
	return scanAuditEntries(rows)
}

func scanAuditEntries(rows *sql.Rows) ([]*AuditEntry, error) {
	defer rows.Close()
	var entries []*AuditEntry
	for rows.Next() {
		var e AuditEntry
		var createdAt any
		if err := rows.Scan(&e.ID, &e.EntityType, &e.EntityID, &e.Action, &e.OldValue, &e.NewValue, &e.Actor, &createdAt); err != nil {
			return nil, Classify("scan audit", err)
		}
		e.CreatedAt = parseTime(createdAt)
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}
