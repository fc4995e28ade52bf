package model

import (
	"time"

	"github.com/google/uuid"
)

// IssueKind classifies a quality finding against a single field.
type IssueKind string

const (
	IssueMissing    IssueKind = "missing"
	IssueInvalid    IssueKind = "invalid"
	IssueMalformed  IssueKind = "malformed"
	IssueSuspicious IssueKind = "suspicious"
	IssueDuplicate  IssueKind = "duplicate"
)

// Severity ranks how urgently a quality issue needs human attention.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

// IssueStatus is the resolution state of a quality issue.
type IssueStatus string

const (
	IssueOpen     IssueStatus = "open"
	IssueResolved IssueStatus = "resolved"
	IssueIgnored  IssueStatus = "ignored"
)

// QualityIssue is a finding against a specific field of a specific record.
// Checks only observe: an issue never blocks ingestion of the record it
// was raised against.
type QualityIssue struct {
	ID          uuid.UUID   `json:"id"`
	RecordID    string      `json:"record_id"`
	TableName   string      `json:"table_name"`
	FieldName   string      `json:"field_name"`
	Kind        IssueKind   `json:"kind"`
	Severity    Severity    `json:"severity"`
	Description string      `json:"description"`
	DetectedAt  time.Time   `json:"detected_at"`
	Status      IssueStatus `json:"status"`
	ResolvedBy  *string     `json:"resolved_by,omitempty"`
	ResolvedAt  *time.Time  `json:"resolved_at,omitempty"`
	Notes       *string     `json:"notes,omitempty"`
}

// QualityReport aggregates open issues over a time window.
type QualityReport struct {
	GeneratedAt     time.Time         `json:"generated_at"`
	WindowStart     time.Time         `json:"window_start"`
	TotalRecords    int               `json:"total_records"`
	IssuesFound     int               `json:"issues_found"`
	CriticalIssues  int               `json:"critical_issues"`
	IssuesByKind    map[IssueKind]int `json:"issues_by_kind"`
	Recommendations []string          `json:"recommendations"`
}
