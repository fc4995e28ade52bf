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

// LatestVersion returns the most recent version for an identifier, or
// ErrNotFound when the identifier has never been versioned.
func (db *DB) LatestVersion(ctx context.Context, identifier string) (model.Version, error) {
	var v model.Version
	err := db.pool.QueryRow(ctx,
		`SELECT id, identifier, version, fingerprint, changed_at, changed_by,
		 change_reason, previous_version_id
		 FROM decision_versions
		 WHERE identifier = $1
		 ORDER BY version DESC
		 LIMIT 1`, identifier,
	).Scan(
		&v.ID, &v.Identifier, &v.Version, &v.Fingerprint, &v.ChangedAt,
		&v.ChangedBy, &v.ChangeReason, &v.PreviousVersionID,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Version{}, ErrNotFound
		}
		return model.Version{}, fmt.Errorf("storage: latest version: %w", err)
	}
	return v, nil
}

// InsertVersion appends one immutable version row. The unique constraint on
// (identifier, version) is the last line of defense against the
// check-then-act race: a collision surfaces as ErrVersionConflict and is
// never resolved by picking a winner.
func (db *DB) InsertVersion(ctx context.Context, v model.Version) (model.Version, error) {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	if v.ChangedAt.IsZero() {
		v.ChangedAt = time.Now().UTC()
	}

	_, err := db.pool.Exec(ctx,
		`INSERT INTO decision_versions (id, identifier, version, fingerprint,
		 changed_at, changed_by, change_reason, previous_version_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		v.ID, v.Identifier, v.Version, v.Fingerprint,
		v.ChangedAt, v.ChangedBy, v.ChangeReason, v.PreviousVersionID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return model.Version{}, fmt.Errorf("storage: version %d for %q: %w",
				v.Version, v.Identifier, ErrVersionConflict)
		}
		return model.Version{}, fmt.Errorf("storage: insert version: %w", err)
	}
	return v, nil
}

// VersionHistory returns every version for an identifier, oldest first.
func (db *DB) VersionHistory(ctx context.Context, identifier string) ([]model.Version, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, identifier, version, fingerprint, changed_at, changed_by,
		 change_reason, previous_version_id
		 FROM decision_versions
		 WHERE identifier = $1
		 ORDER BY version ASC`, identifier,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: version history: %w", err)
	}
	defer rows.Close()

	var versions []model.Version
	for rows.Next() {
		var v model.Version
		if err := rows.Scan(
			&v.ID, &v.Identifier, &v.Version, &v.Fingerprint, &v.ChangedAt,
			&v.ChangedBy, &v.ChangeReason, &v.PreviousVersionID,
		); err != nil {
			return nil, fmt.Errorf("storage: scan version: %w", err)
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}
