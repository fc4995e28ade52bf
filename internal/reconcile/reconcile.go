// Package reconcile verifies after each batch that everything the batch
// claimed to write actually landed. Silent write loss is the failure mode
// this guards against: the fetch layer reported success but the store has
// no row.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/regsight/regsight/internal/model"
)

// Status is the outcome of one reconciliation run.
type Status string

const (
	StatusComplete   Status = "complete"
	StatusIncomplete Status = "incomplete"
)

// Result reports expected versus found identifiers. Missing is sorted so
// runs over the same inputs are comparable.
type Result struct {
	Status    Status    `json:"status"`
	Expected  int       `json:"expected"`
	Found     int       `json:"found"`
	Missing   []string  `json:"missing,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// Store is the lookup surface reconciliation needs. *storage.DB satisfies it.
type Store interface {
	ExistingIdentifiers(ctx context.Context, identifiers []string) (map[string]bool, error)
	AppendAuditEntry(ctx context.Context, e model.AuditEntry) (model.AuditEntry, error)
}

// Engine checks batches against the store.
type Engine struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

// New creates an Engine.
func New(store Store, logger *slog.Logger) *Engine {
	return &Engine{store: store, logger: logger, now: time.Now}
}

// Reconcile looks up every expected identifier and reports the ones the
// store does not hold. An empty expectation reconciles as complete. An
// incomplete run is recorded in the audit log; it never repairs anything
// itself, re-ingestion is the caller's decision.
func (e *Engine) Reconcile(ctx context.Context, expected []string) (Result, error) {
	res := Result{
		Status:    StatusComplete,
		Expected:  len(expected),
		CheckedAt: e.now().UTC(),
	}
	if len(expected) == 0 {
		return res, nil
	}

	found, err := e.store.ExistingIdentifiers(ctx, expected)
	if err != nil {
		return Result{}, fmt.Errorf("reconcile: lookup identifiers: %w", err)
	}

	seen := make(map[string]bool, len(expected))
	for _, id := range expected {
		if seen[id] {
			continue
		}
		seen[id] = true
		if found[id] {
			res.Found++
		} else {
			res.Missing = append(res.Missing, id)
		}
	}
	sort.Strings(res.Missing)

	if len(res.Missing) > 0 {
		res.Status = StatusIncomplete
		e.logger.Warn("reconcile: batch incomplete",
			"expected", res.Expected,
			"found", res.Found,
			"missing", len(res.Missing),
		)
		entry := model.AuditEntry{
			EventKind: model.EventIngest,
			TableName: "decision_records",
			RecordID:  "batch",
			Actor:     "reconciler",
			Timestamp: res.CheckedAt,
			Changes: map[string]any{
				"expected": res.Expected,
				"found":    res.Found,
				"missing":  res.Missing,
			},
			Reason: "reconciliation detected missing identifiers",
		}
		if _, err := e.store.AppendAuditEntry(ctx, entry); err != nil {
			return Result{}, fmt.Errorf("reconcile: audit append: %w", err)
		}
	}
	return res, nil
}
