package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/regsight/regsight/internal/model"
)

// InsertQualityIssues batch-inserts findings via COPY. Issues are advisory:
// a failed insert is reported but must never block the ingestion that
// produced it (callers log and continue).
func (db *DB) InsertQualityIssues(ctx context.Context, issues []model.QualityIssue) error {
	if len(issues) == 0 {
		return nil
	}

	rows := make([][]any, 0, len(issues))
	for _, is := range issues {
		if is.ID == uuid.Nil {
			is.ID = uuid.New()
		}
		if is.DetectedAt.IsZero() {
			is.DetectedAt = time.Now().UTC()
		}
		if is.Status == "" {
			is.Status = model.IssueOpen
		}
		rows = append(rows, []any{
			is.ID, is.RecordID, is.TableName, is.FieldName, string(is.Kind),
			string(is.Severity), is.Description, is.DetectedAt, string(is.Status),
		})
	}

	_, err := db.pool.CopyFrom(ctx,
		pgx.Identifier{"quality_issues"},
		[]string{"id", "record_id", "table_name", "field_name", "kind",
			"severity", "description", "detected_at", "status"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("storage: copy quality issues: %w", err)
	}
	return nil
}

// OpenIssuesSince returns open issues detected in the window, newest first.
func (db *DB) OpenIssuesSince(ctx context.Context, since time.Time) ([]model.QualityIssue, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, record_id, table_name, field_name, kind, severity,
		 description, detected_at, status, resolved_by, resolved_at, notes
		 FROM quality_issues
		 WHERE status = 'open' AND detected_at >= $1
		 ORDER BY detected_at DESC`, since,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: open issues: %w", err)
	}
	defer rows.Close()

	var issues []model.QualityIssue
	for rows.Next() {
		var is model.QualityIssue
		if err := rows.Scan(
			&is.ID, &is.RecordID, &is.TableName, &is.FieldName, &is.Kind,
			&is.Severity, &is.Description, &is.DetectedAt, &is.Status,
			&is.ResolvedBy, &is.ResolvedAt, &is.Notes,
		); err != nil {
			return nil, fmt.Errorf("storage: scan quality issue: %w", err)
		}
		issues = append(issues, is)
	}
	return issues, rows.Err()
}

// ResolveQualityIssue transitions one open issue to resolved or ignored,
// stamping the resolver.
func (db *DB) ResolveQualityIssue(ctx context.Context, id uuid.UUID, status model.IssueStatus, resolvedBy, notes string) error {
	if status != model.IssueResolved && status != model.IssueIgnored {
		return fmt.Errorf("storage: invalid resolution status %q", status)
	}
	tag, err := db.pool.Exec(ctx,
		`UPDATE quality_issues
		 SET status = $2, resolved_by = $3, resolved_at = $4, notes = $5
		 WHERE id = $1 AND status = 'open'`,
		id, status, resolvedBy, time.Now().UTC(), notes,
	)
	if err != nil {
		return fmt.Errorf("storage: resolve quality issue: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
