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

// InsertRecord creates the materialized current state for a new identifier.
// A concurrent insert for the same identifier surfaces as
// ErrDuplicateIdentifier rather than a second row.
func (db *DB) InsertRecord(ctx context.Context, r model.DecisionRecord) (model.DecisionRecord, error) {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	now := time.Now().UTC()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now

	_, err := db.pool.Exec(ctx,
		`INSERT INTO decision_records (id, identifier, title, body, jurisdiction,
		 source_url, fingerprint, published_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		r.ID, r.Identifier, r.Title, r.Body, r.Jurisdiction,
		r.SourceURL, r.Fingerprint, r.PublishedAt, r.CreatedAt, r.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return model.DecisionRecord{}, ErrDuplicateIdentifier
		}
		return model.DecisionRecord{}, fmt.Errorf("storage: insert record: %w", err)
	}
	return r, nil
}

// UpdateRecord overwrites the materialized current state of an existing
// identifier. Prior content is preserved in decision_versions by the
// ledger, never here.
func (db *DB) UpdateRecord(ctx context.Context, r model.DecisionRecord) error {
	tag, err := db.pool.Exec(ctx,
		`UPDATE decision_records
		 SET title = $2, body = $3, jurisdiction = $4, source_url = $5,
		     fingerprint = $6, published_at = $7, updated_at = $8
		 WHERE identifier = $1`,
		r.Identifier, r.Title, r.Body, r.Jurisdiction, r.SourceURL,
		r.Fingerprint, r.PublishedAt, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("storage: update record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// GetRecord retrieves the current state for one identifier.
func (db *DB) GetRecord(ctx context.Context, identifier string) (model.DecisionRecord, error) {
	var r model.DecisionRecord
	err := db.pool.QueryRow(ctx,
		`SELECT id, identifier, title, body, jurisdiction, source_url,
		 fingerprint, published_at, created_at, updated_at
		 FROM decision_records WHERE identifier = $1`, identifier,
	).Scan(
		&r.ID, &r.Identifier, &r.Title, &r.Body, &r.Jurisdiction, &r.SourceURL,
		&r.Fingerprint, &r.PublishedAt, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.DecisionRecord{}, ErrNotFound
		}
		return model.DecisionRecord{}, fmt.Errorf("storage: get record: %w", err)
	}
	return r, nil
}

// ExistingIdentifiers returns the subset of identifiers that are present in
// decision_records. Used by reconciliation to detect silent write loss.
func (db *DB) ExistingIdentifiers(ctx context.Context, identifiers []string) (map[string]bool, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT identifier FROM decision_records WHERE identifier = ANY($1)`,
		identifiers,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: existing identifiers: %w", err)
	}
	defer rows.Close()

	found := make(map[string]bool, len(identifiers))
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("storage: scan identifier: %w", err)
		}
		found[id] = true
	}
	return found, rows.Err()
}

// RecordTitlesSince returns identifier → normalized title for records
// created in the window. Used by the cross-record duplicate-signal check.
func (db *DB) RecordTitlesSince(ctx context.Context, since time.Time) (map[string]string, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT identifier, title FROM decision_records WHERE created_at >= $1`,
		since,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: record titles: %w", err)
	}
	defer rows.Close()

	titles := make(map[string]string)
	for rows.Next() {
		var id, title string
		if err := rows.Scan(&id, &title); err != nil {
			return nil, fmt.Errorf("storage: scan title: %w", err)
		}
		titles[id] = title
	}
	return titles, rows.Err()
}

// CountRecordsSince counts records created in the window, for quality
// report denominators.
func (db *DB) CountRecordsSince(ctx context.Context, since time.Time) (int, error) {
	var n int
	err := db.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM decision_records WHERE created_at >= $1`, since,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("storage: count records: %w", err)
	}
	return n, nil
}
