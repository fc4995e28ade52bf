package storage

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("storage: not found")

	// ErrDuplicateIdentifier is returned when an insert violates an
	// identifier uniqueness constraint (decision records, unclassified items).
	ErrDuplicateIdentifier = errors.New("storage: identifier already exists")

	// ErrVersionConflict is returned when two appends claim the same version
	// number for one identifier. The conflict is surfaced, never resolved by
	// picking a winner.
	ErrVersionConflict = errors.New("storage: version number conflict")

	// ErrImmutableAudit is returned when something attempts to mutate or
	// remove a persisted audit entry. The rejection is unconditional.
	ErrImmutableAudit = errors.New("storage: audit entries are immutable")
)

// auditImmutableErrcode is raised by the audit_log guard trigger.
// 55000 is object_not_in_prerequisite_state.
const auditImmutableErrcode = "55000"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// IsImmutableViolation reports whether err came from the audit_log
// append-only guard.
func IsImmutableViolation(err error) bool {
	if errors.Is(err, ErrImmutableAudit) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == auditImmutableErrcode
}
