package model

import (
	"time"

	"github.com/google/uuid"
)

// DecisionRecord is the materialized current state of one externally sourced
// decision. The source-assigned identifier is the logical identity: at most
// one current record exists per identifier, and every prior state is
// retained in decision_versions.
type DecisionRecord struct {
	ID           uuid.UUID  `json:"id"`
	Identifier   string     `json:"identifier"`
	Title        string     `json:"title"`
	Body         string     `json:"body"`
	Jurisdiction string     `json:"jurisdiction"`
	SourceURL    string     `json:"source_url"`
	Fingerprint  string     `json:"fingerprint"`
	PublishedAt  *time.Time `json:"published_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Version is an immutable snapshot of a record's content at a point in time.
// Version numbers are strictly increasing per identifier with no gaps;
// PreviousVersionID is nil only for version 1.
type Version struct {
	ID                uuid.UUID  `json:"id"`
	Identifier        string     `json:"identifier"`
	Version           int        `json:"version"`
	Fingerprint       string     `json:"fingerprint"`
	ChangedAt         time.Time  `json:"changed_at"`
	ChangedBy         string     `json:"changed_by"`
	ChangeReason      string     `json:"change_reason"`
	PreviousVersionID *uuid.UUID `json:"previous_version_id,omitempty"`
}

// Candidate is what the fetch layer hands to the ingestion pipeline.
// The core never constructs candidates itself.
type Candidate struct {
	Identifier   string     `json:"identifier"`
	Title        string     `json:"title"`
	Body         string     `json:"body"`
	Jurisdiction string     `json:"jurisdiction"`
	SourceURL    string     `json:"source_url"`
	PublishedAt  *time.Time `json:"published_at,omitempty"`
}
