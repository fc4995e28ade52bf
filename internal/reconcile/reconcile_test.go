package reconcile

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/regsight/regsight/internal/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type memStore struct {
	present map[string]bool
	audit   []model.AuditEntry
}

func (m *memStore) ExistingIdentifiers(_ context.Context, identifiers []string) (map[string]bool, error) {
	found := make(map[string]bool)
	for _, id := range identifiers {
		if m.present[id] {
			found[id] = true
		}
	}
	return found, nil
}

func (m *memStore) AppendAuditEntry(_ context.Context, e model.AuditEntry) (model.AuditEntry, error) {
	if err := e.Validate(); err != nil {
		return model.AuditEntry{}, err
	}
	e.ID = uuid.New()
	m.audit = append(m.audit, e)
	return e, nil
}

func TestReconcile_Complete(t *testing.T) {
	store := &memStore{present: map[string]bool{"A": true, "B": true, "C": true}}
	e := New(store, testLogger())

	res, err := e.Reconcile(context.Background(), []string{"A", "B", "C"})
	require.NoError(t, err)
	assert.Equal(t, StatusComplete, res.Status)
	assert.Equal(t, 3, res.Expected)
	assert.Equal(t, 3, res.Found)
	assert.Empty(t, res.Missing)
	assert.Empty(t, store.audit)
}

func TestReconcile_IncompleteReportsSortedMissing(t *testing.T) {
	store := &memStore{present: map[string]bool{"A": true, "C": true}}
	e := New(store, testLogger())

	res, err := e.Reconcile(context.Background(), []string{"C", "B", "A", "D"})
	require.NoError(t, err)
	assert.Equal(t, StatusIncomplete, res.Status)
	assert.Equal(t, 4, res.Expected)
	assert.Equal(t, 2, res.Found)
	assert.Equal(t, []string{"B", "D"}, res.Missing)

	// The incomplete run leaves an audit trace.
	require.Len(t, store.audit, 1)
	assert.Equal(t, model.EventIngest, store.audit[0].EventKind)
}

func TestReconcile_EmptyExpectationIsComplete(t *testing.T) {
	e := New(&memStore{}, testLogger())

	res, err := e.Reconcile(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, StatusComplete, res.Status)
	assert.Zero(t, res.Expected)
}

func TestReconcile_DuplicateExpectationsCountedOnce(t *testing.T) {
	store := &memStore{present: map[string]bool{"A": true}}
	e := New(store, testLogger())

	res, err := e.Reconcile(context.Background(), []string{"A", "A", "B", "B"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Found)
	assert.Equal(t, []string{"B"}, res.Missing)
}
