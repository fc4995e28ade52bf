package model

import (
	"time"

	"github.com/google/uuid"
)

// ReviewPeriod is the fixed window a human has to act on an unclassified
// item. The deadline is computed once at registration and never recomputed.
const ReviewPeriod = 30 * 24 * time.Hour

// ItemStatus is the lifecycle state of an unclassified item.
// Overdue is deliberately not a status: it is derived from the clock at
// query time so that nothing has to transition when a deadline passes.
type ItemStatus string

const (
	StatusPendingReview ItemStatus = "pending_review"
	StatusUnderReview   ItemStatus = "under_review"
	StatusResolved      ItemStatus = "resolved"
	StatusEscalated     ItemStatus = "escalated"
)

// UnclassifiedItem is a record that failed automatic categorization and
// routed to human review instead of the main store.
type UnclassifiedItem struct {
	ID               uuid.UUID  `json:"id"`
	Identifier       string     `json:"identifier"`
	Title            string     `json:"title"`
	Excerpt          string     `json:"excerpt"`
	SourceURL        string     `json:"source_url"`
	CreatedAt        time.Time  `json:"created_at"`
	ReviewBy         time.Time  `json:"review_by"`
	Status           ItemStatus `json:"status"`
	AssignedCategory *string    `json:"assigned_category,omitempty"`
	TaxonomyAmended  bool       `json:"taxonomy_amended"`
	ResolvedBy       *string    `json:"resolved_by,omitempty"`
	ResolvedAt       *time.Time `json:"resolved_at,omitempty"`
	Notes            *string    `json:"notes,omitempty"`
}

// Overdue reports whether the item is past its review deadline while still
// awaiting review, relative to now.
func (i UnclassifiedItem) Overdue(now time.Time) bool {
	return i.Status == StatusPendingReview && now.After(i.ReviewBy)
}
