package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventKind is the closed set of auditable event kinds. Anything outside
// this set is rejected before a storage attempt is made.
type EventKind string

const (
	EventInsert         EventKind = "insert"
	EventUpdate         EventKind = "update"
	EventDelete         EventKind = "delete"
	EventIngest         EventKind = "ingest"
	EventCategorization EventKind = "categorization"
	EventManualReview   EventKind = "manual_review"
	EventAlert          EventKind = "alert"
)

var validEventKinds = map[EventKind]bool{
	EventInsert:         true,
	EventUpdate:         true,
	EventDelete:         true,
	EventIngest:         true,
	EventCategorization: true,
	EventManualReview:   true,
	EventAlert:          true,
}

// Valid reports whether k is a member of the closed event-kind set.
func (k EventKind) Valid() bool { return validEventKinds[k] }

// AuditEntry is an immutable fact about one state-changing operation.
// Entries are append-only: no update or delete path exists anywhere in the
// module, and the audit_log table itself rejects mutation attempts.
type AuditEntry struct {
	ID        uuid.UUID      `json:"id"`
	EventKind EventKind      `json:"event_kind"`
	TableName string         `json:"table_name"`
	RecordID  string         `json:"record_id"`
	Actor     string         `json:"actor"`
	Timestamp time.Time      `json:"timestamp"`
	Changes   map[string]any `json:"changes"`
	Reason    string         `json:"reason"`
	OriginIP  *string        `json:"origin_ip,omitempty"`
}

// Validate checks the entry is well formed before any storage attempt.
func (e AuditEntry) Validate() error {
	if !e.EventKind.Valid() {
		return fmt.Errorf("model: unknown audit event kind %q", e.EventKind)
	}
	if e.TableName == "" {
		return fmt.Errorf("model: audit entry missing table name")
	}
	if e.RecordID == "" {
		return fmt.Errorf("model: audit entry missing record id")
	}
	if e.Actor == "" {
		return fmt.Errorf("model: audit entry missing actor")
	}
	return nil
}
