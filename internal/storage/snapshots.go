package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/regsight/regsight/internal/model"
)

// InsertScoreSnapshot persists one computed snapshot for history. Snapshots
// are written once and never updated; reproducing one means re-running the
// engine with the recorded weight version.
func (db *DB) InsertScoreSnapshot(ctx context.Context, s model.ScoreSnapshot) (model.ScoreSnapshot, error) {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	if s.ComputedAt.IsZero() {
		s.ComputedAt = time.Now().UTC()
	}

	subJSON, err := json.Marshal(s.SubScores)
	if err != nil {
		return model.ScoreSnapshot{}, fmt.Errorf("storage: marshal sub-scores: %w", err)
	}

	_, err = db.pool.Exec(ctx,
		`INSERT INTO score_snapshots (id, category, jurisdiction, as_of,
		 weights_version, sub_scores, evi_ratio, evi_ordinal, eii_raw,
		 eii_ordinal, sci_raw, sci_ordinal, likelihood_raw, likelihood, computed_at)
		 VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		s.ID, s.Category, s.Jurisdiction, s.AsOf,
		s.WeightsVersion, subJSON, s.EVIRatio, s.EVIOrdinal, s.EIIRaw,
		s.EIIOrdinal, s.SCIRaw, s.SCIOrdinal, s.LikelihoodRaw, s.Likelihood, s.ComputedAt,
	)
	if err != nil {
		return model.ScoreSnapshot{}, fmt.Errorf("storage: insert score snapshot: %w", err)
	}
	return s, nil
}

// ListScoreSnapshots returns persisted snapshots for a category and
// jurisdiction, newest first.
func (db *DB) ListScoreSnapshots(ctx context.Context, category, jurisdiction string, limit int) ([]model.ScoreSnapshot, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, category, jurisdiction, as_of, weights_version, sub_scores,
		 evi_ratio, evi_ordinal, eii_raw, eii_ordinal, sci_raw, sci_ordinal,
		 likelihood_raw, likelihood, computed_at
		 FROM score_snapshots
		 WHERE category = $1 AND jurisdiction = $2
		 ORDER BY computed_at DESC
		 LIMIT $3`, category, jurisdiction, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list score snapshots: %w", err)
	}
	defer rows.Close()

	var snaps []model.ScoreSnapshot
	for rows.Next() {
		var (
			s   model.ScoreSnapshot
			sub []byte
		)
		if err := rows.Scan(
			&s.ID, &s.Category, &s.Jurisdiction, &s.AsOf, &s.WeightsVersion, &sub,
			&s.EVIRatio, &s.EVIOrdinal, &s.EIIRaw, &s.EIIOrdinal, &s.SCIRaw,
			&s.SCIOrdinal, &s.LikelihoodRaw, &s.Likelihood, &s.ComputedAt,
		); err != nil {
			return nil, fmt.Errorf("storage: scan score snapshot: %w", err)
		}
		if err := json.Unmarshal(sub, &s.SubScores); err != nil {
			return nil, fmt.Errorf("storage: unmarshal sub-scores: %w", err)
		}
		snaps = append(snaps, s)
	}
	return snaps, rows.Err()
}
