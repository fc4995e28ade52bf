// Package register holds records that failed automatic categorization
// until a human reviews them.
//
// An item's review deadline is fixed at registration: CreatedAt plus the
// review period. Overdue is never stored; it is derived from the clock at
// read time, so no background job has to sweep deadlines.
package register

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/regsight/regsight/internal/model"
)

// excerptLimit bounds how much body text rides along for review context.
const excerptLimit = 500

// itemsTable is the audit table name for unclassified items.
const itemsTable = "unclassified_items"

// ErrInvalidItem marks registrations rejected before any storage attempt.
var ErrInvalidItem = errors.New("register: invalid item")

// Store is the persistence surface the register needs. *storage.DB
// satisfies it.
type Store interface {
	InsertUnclassified(ctx context.Context, item model.UnclassifiedItem) (model.UnclassifiedItem, error)
	GetUnclassified(ctx context.Context, identifier string) (model.UnclassifiedItem, error)
	TransitionUnclassified(ctx context.Context, identifier string, fromStatuses []model.ItemStatus, to model.ItemStatus, category *string, taxonomyAmended bool, resolvedBy, notes string) error
	PendingBefore(ctx context.Context, cutoff time.Time) ([]model.UnclassifiedItem, error)
	AppendAuditEntry(ctx context.Context, e model.AuditEntry) (model.AuditEntry, error)
}

// Register manages the unclassified item lifecycle.
type Register struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

// New creates a Register.
func New(store Store, logger *slog.Logger) *Register {
	return &Register{store: store, logger: logger, now: time.Now}
}

// Add registers a record for human review. The identifier must not already
// be registered; re-registration surfaces storage.ErrDuplicateIdentifier.
func (r *Register) Add(ctx context.Context, cand model.Candidate, reason string) (model.UnclassifiedItem, error) {
	if cand.Identifier == "" {
		return model.UnclassifiedItem{}, fmt.Errorf("%w: missing identifier", ErrInvalidItem)
	}

	now := r.now().UTC()
	excerpt := cand.Body
	if len(excerpt) > excerptLimit {
		// Trim back to a rune boundary so the stored excerpt stays valid
		// UTF-8 when the limit falls inside a multi-byte character.
		cut := excerptLimit
		for cut > 0 && !utf8.RuneStart(excerpt[cut]) {
			cut--
		}
		excerpt = excerpt[:cut]
	}

	item := model.UnclassifiedItem{
		Identifier: cand.Identifier,
		Title:      cand.Title,
		Excerpt:    excerpt,
		SourceURL:  cand.SourceURL,
		CreatedAt:  now,
		ReviewBy:   now.Add(model.ReviewPeriod),
		Status:     model.StatusPendingReview,
	}

	stored, err := r.store.InsertUnclassified(ctx, item)
	if err != nil {
		return model.UnclassifiedItem{}, fmt.Errorf("register: add %q: %w", cand.Identifier, err)
	}

	if err := r.audit(ctx, model.EventCategorization, cand.Identifier, "register", map[string]any{
		"status":    string(model.StatusPendingReview),
		"review_by": stored.ReviewBy,
		"reason":    reason,
	}, "categorization failed, routed to human review"); err != nil {
		return model.UnclassifiedItem{}, err
	}
	return stored, nil
}

// Get retrieves one item by identifier.
func (r *Register) Get(ctx context.Context, identifier string) (model.UnclassifiedItem, error) {
	return r.store.GetUnclassified(ctx, identifier)
}

// Claim moves a pending item to under_review for the given reviewer.
func (r *Register) Claim(ctx context.Context, identifier, reviewer string) error {
	err := r.store.TransitionUnclassified(ctx, identifier,
		[]model.ItemStatus{model.StatusPendingReview},
		model.StatusUnderReview, nil, false, reviewer, "")
	if err != nil {
		return fmt.Errorf("register: claim %q: %w", identifier, err)
	}
	return r.audit(ctx, model.EventManualReview, identifier, reviewer, map[string]any{
		"status": string(model.StatusUnderReview),
	}, "review claimed")
}

// Resolve assigns a category and closes the item. Only pending or
// under-review items can resolve; resolving twice surfaces
// storage.ErrNotFound from the conditional transition.
func (r *Register) Resolve(ctx context.Context, identifier, category, reviewer, notes string) error {
	if category == "" {
		return fmt.Errorf("%w: category is required to resolve", ErrInvalidItem)
	}
	err := r.store.TransitionUnclassified(ctx, identifier,
		[]model.ItemStatus{model.StatusPendingReview, model.StatusUnderReview},
		model.StatusResolved, &category, false, reviewer, notes)
	if err != nil {
		return fmt.Errorf("register: resolve %q: %w", identifier, err)
	}
	return r.audit(ctx, model.EventManualReview, identifier, reviewer, map[string]any{
		"status":   string(model.StatusResolved),
		"category": category,
	}, "manually categorized")
}

// Escalate marks an item as needing a taxonomy change rather than a simple
// category assignment.
func (r *Register) Escalate(ctx context.Context, identifier, reviewer, notes string) error {
	err := r.store.TransitionUnclassified(ctx, identifier,
		[]model.ItemStatus{model.StatusPendingReview, model.StatusUnderReview},
		model.StatusEscalated, nil, true, reviewer, notes)
	if err != nil {
		return fmt.Errorf("register: escalate %q: %w", identifier, err)
	}
	return r.audit(ctx, model.EventManualReview, identifier, reviewer, map[string]any{
		"status":           string(model.StatusEscalated),
		"taxonomy_amended": true,
	}, "escalated for taxonomy amendment")
}

// Overdue returns pending items whose review deadline has passed, oldest
// deadline first. Nothing transitions when a deadline passes; the set is
// recomputed from the clock on every call.
func (r *Register) Overdue(ctx context.Context) ([]model.UnclassifiedItem, error) {
	items, err := r.store.PendingBefore(ctx, r.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("register: overdue: %w", err)
	}
	if len(items) > 0 {
		r.logger.Warn("register: overdue items awaiting review", "count", len(items))
	}
	return items, nil
}

func (r *Register) audit(ctx context.Context, kind model.EventKind, identifier, actor string, changes map[string]any, reason string) error {
	entry := model.AuditEntry{
		EventKind: kind,
		TableName: itemsTable,
		RecordID:  identifier,
		Actor:     actor,
		Timestamp: r.now().UTC(),
		Changes:   changes,
		Reason:    reason,
	}
	if _, err := r.store.AppendAuditEntry(ctx, entry); err != nil {
		return fmt.Errorf("register: audit append: %w", err)
	}
	return nil
}
