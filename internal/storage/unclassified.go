package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/regsight/regsight/internal/model"
)

// InsertUnclassified registers an item for human review. The identifier is
// unique: a second registration surfaces as ErrDuplicateIdentifier.
func (db *DB) InsertUnclassified(ctx context.Context, item model.UnclassifiedItem) (model.UnclassifiedItem, error) {
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}

	_, err := db.pool.Exec(ctx,
		`INSERT INTO unclassified_items (id, identifier, title, excerpt,
		 source_url, created_at, review_by, status, taxonomy_amended)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		item.ID, item.Identifier, item.Title, item.Excerpt,
		item.SourceURL, item.CreatedAt, item.ReviewBy, item.Status, item.TaxonomyAmended,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return model.UnclassifiedItem{}, ErrDuplicateIdentifier
		}
		return model.UnclassifiedItem{}, fmt.Errorf("storage: insert unclassified: %w", err)
	}
	return item, nil
}

// GetUnclassified retrieves one item by identifier.
func (db *DB) GetUnclassified(ctx context.Context, identifier string) (model.UnclassifiedItem, error) {
	var item model.UnclassifiedItem
	err := db.pool.QueryRow(ctx,
		`SELECT id, identifier, title, excerpt, source_url, created_at,
		 review_by, status, assigned_category, taxonomy_amended,
		 resolved_by, resolved_at, notes
		 FROM unclassified_items WHERE identifier = $1`, identifier,
	).Scan(
		&item.ID, &item.Identifier, &item.Title, &item.Excerpt, &item.SourceURL,
		&item.CreatedAt, &item.ReviewBy, &item.Status, &item.AssignedCategory,
		&item.TaxonomyAmended, &item.ResolvedBy, &item.ResolvedAt, &item.Notes,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.UnclassifiedItem{}, ErrNotFound
		}
		return model.UnclassifiedItem{}, fmt.Errorf("storage: get unclassified: %w", err)
	}
	return item, nil
}

// TransitionUnclassified moves an item between lifecycle states. The
// update is conditional on the current status being one of fromStatuses,
// so concurrent reviewers cannot double-resolve an item.
func (db *DB) TransitionUnclassified(
	ctx context.Context,
	identifier string,
	fromStatuses []model.ItemStatus,
	to model.ItemStatus,
	category *string,
	taxonomyAmended bool,
	resolvedBy, notes string,
) error {
	from := make([]string, len(fromStatuses))
	for i, s := range fromStatuses {
		from[i] = string(s)
	}

	tag, err := db.pool.Exec(ctx,
		`UPDATE unclassified_items
		 SET status = $2, assigned_category = $3, taxonomy_amended = $4,
		     resolved_by = $5, resolved_at = $6, notes = $7
		 WHERE identifier = $1 AND status = ANY($8)`,
		identifier, to, category, taxonomyAmended,
		resolvedBy, time.Now().UTC(), notes, from,
	)
	if err != nil {
		return fmt.Errorf("storage: transition unclassified: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// PendingBefore returns still-pending items whose review deadline precedes
// the cutoff. The overdue condition lives entirely in this predicate:
// nothing is stored when a deadline passes.
func (db *DB) PendingBefore(ctx context.Context, cutoff time.Time) ([]model.UnclassifiedItem, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, identifier, title, excerpt, source_url, created_at,
		 review_by, status, assigned_category, taxonomy_amended,
		 resolved_by, resolved_at, notes
		 FROM unclassified_items
		 WHERE status = 'pending_review' AND review_by < $1
		 ORDER BY review_by ASC`, cutoff,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: pending before: %w", err)
	}
	defer rows.Close()

	var items []model.UnclassifiedItem
	for rows.Next() {
		var item model.UnclassifiedItem
		if err := rows.Scan(
			&item.ID, &item.Identifier, &item.Title, &item.Excerpt, &item.SourceURL,
			&item.CreatedAt, &item.ReviewBy, &item.Status, &item.AssignedCategory,
			&item.TaxonomyAmended, &item.ResolvedBy, &item.ResolvedAt, &item.Notes,
		); err != nil {
			return nil, fmt.Errorf("storage: scan unclassified: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}
