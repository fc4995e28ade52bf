// Package ingest resolves candidate records against the version ledger and
// materialized store: unseen identifiers insert, changed content updates,
// unchanged content skips. Every resolved action writes exactly one audit
// entry, skips included, so the audit log witnesses the full batch.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/regsight/regsight/internal/fingerprint"
	"github.com/regsight/regsight/internal/ledger"
	"github.com/regsight/regsight/internal/model"
	"github.com/regsight/regsight/internal/storage"
	"github.com/regsight/regsight/internal/telemetry"
)

// recordsTable is the audit table name for decision records.
const recordsTable = "decision_records"

// Action is the outcome of duplicate resolution for one candidate.
type Action string

const (
	ActionInsert Action = "insert"
	ActionUpdate Action = "update"
	ActionSkip   Action = "skip"
)

// ErrInvalidCandidate marks candidates rejected before any storage attempt.
// Validation failures are per-record: the rest of the batch continues.
var ErrInvalidCandidate = errors.New("ingest: invalid candidate")

// Resolution describes how one candidate was applied.
type Resolution struct {
	Identifier  string `json:"identifier"`
	Action      Action `json:"action"`
	Version     int    `json:"version"`
	Fingerprint string `json:"fingerprint"`
}

// Store is the persistence surface the resolver needs beyond the ledger.
type Store interface {
	InsertRecord(ctx context.Context, r model.DecisionRecord) (model.DecisionRecord, error)
	UpdateRecord(ctx context.Context, r model.DecisionRecord) error
	AppendAuditEntry(ctx context.Context, e model.AuditEntry) (model.AuditEntry, error)
}

// Resolver applies candidates to the store with exactly-once semantics per
// content fingerprint.
type Resolver struct {
	store  Store
	ledger *ledger.Ledger
	logger *slog.Logger
	locks  *ledger.KeyMutex

	resolved metric.Int64Counter
}

// NewResolver creates a Resolver.
func NewResolver(store Store, l *ledger.Ledger, logger *slog.Logger) *Resolver {
	meter := telemetry.Meter("regsight/ingest")
	resolved, _ := meter.Int64Counter("regsight.ingest.resolved",
		metric.WithDescription("Candidates resolved, by action"),
	)
	return &Resolver{
		store:    store,
		ledger:   l,
		logger:   logger,
		locks:    ledger.NewKeyMutex(),
		resolved: resolved,
	}
}

func validateCandidate(c model.Candidate) error {
	if c.Identifier == "" {
		return fmt.Errorf("%w: missing identifier", ErrInvalidCandidate)
	}
	if c.Title == "" {
		return fmt.Errorf("%w: %s: missing title", ErrInvalidCandidate, c.Identifier)
	}
	if c.Body == "" {
		return fmt.Errorf("%w: %s: missing body", ErrInvalidCandidate, c.Identifier)
	}
	if c.SourceURL != "" {
		if u, err := url.Parse(c.SourceURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return fmt.Errorf("%w: %s: source URL must be http(s)", ErrInvalidCandidate, c.Identifier)
		}
	}
	return nil
}

// Resolve fingerprints the candidate, appends to the ledger under the
// identifier's serialization point, applies the materialized state change,
// and writes the audit entry. The resolution is not complete until the
// audit entry is durable.
func (r *Resolver) Resolve(ctx context.Context, cand model.Candidate, actor string) (Resolution, error) {
	if err := validateCandidate(cand); err != nil {
		return Resolution{}, err
	}
	if actor == "" {
		actor = "ingest"
	}

	// The whole resolution, ledger append through materialized write and
	// audit entry, holds the identifier's lock. A resolution that stalls
	// mid-materialization must not let a newer append land first, or the
	// current state ends up permanently behind the ledger: a later re-ingest
	// of the newer content hits the skip branch and never re-materializes.
	unlock := r.locks.Lock(cand.Identifier)
	defer unlock()

	fp := fingerprint.Compute(cand.Title, cand.Body)

	version, created, err := r.ledger.Append(ctx, cand.Identifier, fp, actor, "batch ingest")
	if err != nil {
		return Resolution{}, err
	}

	action := ActionSkip
	switch {
	case created && version.Version == 1:
		action = ActionInsert
	case created:
		action = ActionUpdate
	}

	rec := model.DecisionRecord{
		Identifier:   cand.Identifier,
		Title:        cand.Title,
		Body:         cand.Body,
		Jurisdiction: cand.Jurisdiction,
		SourceURL:    cand.SourceURL,
		Fingerprint:  fp,
		PublishedAt:  cand.PublishedAt,
	}

	switch action {
	case ActionInsert:
		if _, err := r.store.InsertRecord(ctx, rec); err != nil {
			// The identifier can already be materialized when versions were
			// rebuilt; fall through to an update so current state converges.
			if !errors.Is(err, storage.ErrDuplicateIdentifier) {
				return Resolution{}, fmt.Errorf("ingest: materialize insert: %w", err)
			}
			if err := r.updateWithRetry(ctx, rec); err != nil {
				return Resolution{}, fmt.Errorf("ingest: converge existing record: %w", err)
			}
		}
	case ActionUpdate:
		if err := r.updateWithRetry(ctx, rec); err != nil {
			return Resolution{}, fmt.Errorf("ingest: materialize update: %w", err)
		}
	case ActionSkip:
		// No content change; the audit entry below still proves the batch
		// saw this record.
	}

	entry := model.AuditEntry{
		EventKind: auditKind(action),
		TableName: recordsTable,
		RecordID:  cand.Identifier,
		Actor:     actor,
		Timestamp: time.Now().UTC(),
		Changes: map[string]any{
			"action":      string(action),
			"fingerprint": fp,
			"version":     version.Version,
		},
		Reason: auditReason(action),
	}
	if _, err := r.store.AppendAuditEntry(ctx, entry); err != nil {
		return Resolution{}, fmt.Errorf("ingest: audit append: %w", err)
	}

	r.resolved.Add(ctx, 1, metric.WithAttributes(attribute.String("action", string(action))))

	return Resolution{
		Identifier:  cand.Identifier,
		Action:      action,
		Version:     version.Version,
		Fingerprint: fp,
	}, nil
}

// updateWithRetry retries the materialized update on transient conflicts.
// Concurrent batches touching the same row can deadlock against each other;
// the row content is version-ledger-derived, so a retry is always safe.
func (r *Resolver) updateWithRetry(ctx context.Context, rec model.DecisionRecord) error {
	return storage.WithRetry(ctx, 3, 25*time.Millisecond, func() error {
		return r.store.UpdateRecord(ctx, rec)
	})
}

func auditKind(a Action) model.EventKind {
	switch a {
	case ActionInsert:
		return model.EventInsert
	case ActionUpdate:
		return model.EventUpdate
	default:
		return model.EventIngest
	}
}

func auditReason(a Action) string {
	switch a {
	case ActionInsert:
		return "new record from batch ingest"
	case ActionUpdate:
		return "content changed since last ingest"
	default:
		return "duplicate content, skipped"
	}
}
