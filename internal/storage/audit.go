package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/regsight/regsight/internal/model"
)

// AppendAuditEntry is the audit log's only write operation. The entry is
// validated before any storage attempt, so a malformed entry is never
// partially persisted. There is deliberately no update or delete method
// for audit_log anywhere in this package; the table's guard trigger
// rejects mutation issued through any other path.
func (db *DB) AppendAuditEntry(ctx context.Context, e model.AuditEntry) (model.AuditEntry, error) {
	if err := e.Validate(); err != nil {
		return model.AuditEntry{}, err
	}
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	if e.Changes == nil {
		e.Changes = map[string]any{}
	}

	changesJSON, err := json.Marshal(e.Changes)
	if err != nil {
		return model.AuditEntry{}, fmt.Errorf("storage: marshal audit changes: %w", err)
	}

	_, err = db.pool.Exec(ctx,
		`INSERT INTO audit_log (id, event_kind, table_name, record_id, actor,
		 created_at, changes, reason, origin_ip)
		 VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb, $8, $9)`,
		e.ID, e.EventKind, e.TableName, e.RecordID, e.Actor,
		e.Timestamp, changesJSON, e.Reason, e.OriginIP,
	)
	if err != nil {
		return model.AuditEntry{}, fmt.Errorf("storage: append audit entry: %w", err)
	}
	return e, nil
}

// AuditTrail returns the ordered sequence of audit entries for one record,
// oldest first.
func (db *DB) AuditTrail(ctx context.Context, tableName, recordID string) ([]model.AuditEntry, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, event_kind, table_name, record_id, actor, created_at,
		 changes, reason, origin_ip
		 FROM audit_log
		 WHERE table_name = $1 AND record_id = $2
		 ORDER BY created_at ASC, id ASC`, tableName, recordID,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: audit trail: %w", err)
	}
	defer rows.Close()

	var entries []model.AuditEntry
	for rows.Next() {
		var (
			e       model.AuditEntry
			changes []byte
		)
		if err := rows.Scan(
			&e.ID, &e.EventKind, &e.TableName, &e.RecordID, &e.Actor,
			&e.Timestamp, &changes, &e.Reason, &e.OriginIP,
		); err != nil {
			return nil, fmt.Errorf("storage: scan audit entry: %w", err)
		}
		if err := json.Unmarshal(changes, &e.Changes); err != nil {
			return nil, fmt.Errorf("storage: unmarshal audit changes: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// RecentAuditEntries returns the newest entries, optionally filtered by
// event kind. Intended for operator inspection, not for reconciliation.
func (db *DB) RecentAuditEntries(ctx context.Context, limit int, kind *model.EventKind) ([]model.AuditEntry, error) {
	query := `SELECT id, event_kind, table_name, record_id, actor, created_at,
	          changes, reason, origin_ip FROM audit_log`
	args := []any{}
	if kind != nil {
		query += ` WHERE event_kind = $1`
		args = append(args, *kind)
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT %d`, limit)

	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("storage: recent audit entries: %w", err)
	}
	defer rows.Close()

	var entries []model.AuditEntry
	for rows.Next() {
		var (
			e       model.AuditEntry
			changes []byte
		)
		if err := rows.Scan(
			&e.ID, &e.EventKind, &e.TableName, &e.RecordID, &e.Actor,
			&e.Timestamp, &changes, &e.Reason, &e.OriginIP,
		); err != nil {
			return nil, fmt.Errorf("storage: scan audit entry: %w", err)
		}
		if err := json.Unmarshal(changes, &e.Changes); err != nil {
			return nil, fmt.Errorf("storage: unmarshal audit changes: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
