// Package ledger owns the append-only version history of decision records.
//
// Version numbers per identifier are gapless and strictly increasing.
// Appends for one identifier run under an identifier-scoped lock so the
// read-latest-then-insert sequence is atomic with respect to concurrent
// appenders; the database's (identifier, version) uniqueness constraint
// backstops the invariant across processes.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/regsight/regsight/internal/model"
	"github.com/regsight/regsight/internal/storage"
)

// Store is the persistence surface the ledger needs. *storage.DB satisfies
// it; tests substitute an in-memory implementation.
type Store interface {
	LatestVersion(ctx context.Context, identifier string) (model.Version, error)
	InsertVersion(ctx context.Context, v model.Version) (model.Version, error)
	VersionHistory(ctx context.Context, identifier string) ([]model.Version, error)
}

// Ledger assigns monotonic version numbers under per-identifier
// serialization.
type Ledger struct {
	store  Store
	logger *slog.Logger
	locks  *KeyMutex
}

// New creates a Ledger over the given store.
func New(store Store, logger *slog.Logger) *Ledger {
	return &Ledger{
		store:  store,
		logger: logger,
		locks:  NewKeyMutex(),
	}
}

// Latest returns the most recent version for an identifier, or
// storage.ErrNotFound when the identifier has never been versioned.
func (l *Ledger) Latest(ctx context.Context, identifier string) (model.Version, error) {
	return l.store.LatestVersion(ctx, identifier)
}

// Append creates version N+1 for the identifier, unless the latest version
// already carries the supplied fingerprint, in which case the existing
// version is returned unchanged and created is false. Retrying a
// successful append with the same fingerprint is therefore a no-op.
func (l *Ledger) Append(ctx context.Context, identifier, fp, actor, reason string) (v model.Version, created bool, err error) {
	if identifier == "" {
		return model.Version{}, false, fmt.Errorf("ledger: empty identifier")
	}
	if fp == "" {
		return model.Version{}, false, fmt.Errorf("ledger: empty fingerprint")
	}

	release := l.locks.Lock(identifier)
	defer release()

	latest, err := l.store.LatestVersion(ctx, identifier)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		next := model.Version{
			Identifier:   identifier,
			Version:      1,
			Fingerprint:  fp,
			ChangedAt:    time.Now().UTC(),
			ChangedBy:    actor,
			ChangeReason: reason,
		}
		inserted, err := l.store.InsertVersion(ctx, next)
		if err != nil {
			return model.Version{}, false, fmt.Errorf("ledger: append initial version: %w", err)
		}
		return inserted, true, nil

	case err != nil:
		return model.Version{}, false, fmt.Errorf("ledger: read latest version: %w", err)
	}

	if latest.Fingerprint == fp {
		return latest, false, nil
	}

	prev := latest.ID
	next := model.Version{
		Identifier:        identifier,
		Version:           latest.Version + 1,
		Fingerprint:       fp,
		ChangedAt:         time.Now().UTC(),
		ChangedBy:         actor,
		ChangeReason:      reason,
		PreviousVersionID: &prev,
	}
	inserted, err := l.store.InsertVersion(ctx, next)
	if err != nil {
		// A version conflict here means another process appended between our
		// read and insert. Surface it; the caller decides whether to retry.
		return model.Version{}, false, fmt.Errorf("ledger: append version %d: %w", next.Version, err)
	}
	return inserted, true, nil
}

// History returns every version for an identifier, oldest first. The
// sequence is finite and restartable: callers may re-invoke at any time.
func (l *Ledger) History(ctx context.Context, identifier string) ([]model.Version, error) {
	versions, err := l.store.VersionHistory(ctx, identifier)
	if err != nil {
		return nil, fmt.Errorf("ledger: history: %w", err)
	}
	return versions, nil
}
