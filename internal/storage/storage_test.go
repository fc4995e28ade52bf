package storage_test

import (
	"context"
	"os"
	"strings"
	"sync"
	"testing"
	"testing/fstest"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/regsight/regsight/internal/model"
	"github.com/regsight/regsight/internal/storage"
	"github.com/regsight/regsight/internal/testutil"
	"github.com/regsight/regsight/migrations"
)

// testDB holds a shared test database connection for all tests in this package.
var (
	testDB  *storage.DB
	testDSN string
)

func TestMain(m *testing.M) {
	ctx := context.Background()

	tc := testutil.MustStartPostgres()
	testDSN = tc.DSN

	var err error
	testDB, err = tc.NewTestDB(ctx, testutil.TestLogger())
	if err != nil {
		tc.Terminate()
		panic(err)
	}

	code := m.Run()

	testDB.Close()
	tc.Terminate()
	os.Exit(code)
}

func record(identifier string) model.DecisionRecord {
	return model.DecisionRecord{
		Identifier:   identifier,
		Title:        "Smith v Acme Ltd",
		Body:         "The tribunal found the dismissal procedurally unfair.",
		Jurisdiction: "England & Wales",
		SourceURL:    "https://example.org/decisions/" + identifier,
		Fingerprint:  "fp-" + identifier,
	}
}

func TestInsertAndGetRecord(t *testing.T) {
	ctx := context.Background()

	r, err := testDB.InsertRecord(ctx, record("ET-2026-100001"))
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, r.ID)
	assert.False(t, r.CreatedAt.IsZero())

	got, err := testDB.GetRecord(ctx, "ET-2026-100001")
	require.NoError(t, err)
	assert.Equal(t, r.ID, got.ID)
	assert.Equal(t, "Smith v Acme Ltd", got.Title)
	assert.Equal(t, "England & Wales", got.Jurisdiction)
	assert.Equal(t, "fp-ET-2026-100001", got.Fingerprint)
}

func TestInsertRecordDuplicateIdentifier(t *testing.T) {
	ctx := context.Background()

	_, err := testDB.InsertRecord(ctx, record("ET-2026-100002"))
	require.NoError(t, err)

	_, err = testDB.InsertRecord(ctx, record("ET-2026-100002"))
	require.ErrorIs(t, err, storage.ErrDuplicateIdentifier)
}

func TestUpdateRecord(t *testing.T) {
	ctx := context.Background()

	_, err := testDB.InsertRecord(ctx, record("ET-2026-100003"))
	require.NoError(t, err)

	updated := record("ET-2026-100003")
	updated.Body = "Remedy judgment: compensation awarded."
	updated.Fingerprint = "fp-v2"
	require.NoError(t, testDB.UpdateRecord(ctx, updated))

	got, err := testDB.GetRecord(ctx, "ET-2026-100003")
	require.NoError(t, err)
	assert.Equal(t, "Remedy judgment: compensation awarded.", got.Body)
	assert.Equal(t, "fp-v2", got.Fingerprint)
}

func TestUpdateRecordNotFound(t *testing.T) {
	err := testDB.UpdateRecord(context.Background(), record("ET-2026-999999"))
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestGetRecordNotFound(t *testing.T) {
	_, err := testDB.GetRecord(context.Background(), "ET-2026-999998")
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestExistingIdentifiers(t *testing.T) {
	ctx := context.Background()

	_, err := testDB.InsertRecord(ctx, record("ET-2026-100004"))
	require.NoError(t, err)

	found, err := testDB.ExistingIdentifiers(ctx, []string{"ET-2026-100004", "ET-2026-999997"})
	require.NoError(t, err)
	assert.True(t, found["ET-2026-100004"])
	assert.False(t, found["ET-2026-999997"])
}

func TestVersionAppendAndHistory(t *testing.T) {
	ctx := context.Background()
	id := "ET-2026-200001"

	_, err := testDB.LatestVersion(ctx, id)
	require.ErrorIs(t, err, storage.ErrNotFound)

	v1, err := testDB.InsertVersion(ctx, model.Version{
		Identifier:  id,
		Version:     1,
		Fingerprint: "fp-a",
		ChangedBy:   "scraper",
	})
	require.NoError(t, err)

	prev := v1.ID
	_, err = testDB.InsertVersion(ctx, model.Version{
		Identifier:        id,
		Version:           2,
		Fingerprint:       "fp-b",
		ChangedBy:         "scraper",
		ChangeReason:      "content changed",
		PreviousVersionID: &prev,
	})
	require.NoError(t, err)

	latest, err := testDB.LatestVersion(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 2, latest.Version)
	require.NotNil(t, latest.PreviousVersionID)
	assert.Equal(t, v1.ID, *latest.PreviousVersionID)

	history, err := testDB.VersionHistory(ctx, id)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, 1, history[0].Version)
	assert.Equal(t, 2, history[1].Version)
	assert.Nil(t, history[0].PreviousVersionID)
}

func TestVersionConflict(t *testing.T) {
	ctx := context.Background()
	id := "ET-2026-200002"

	_, err := testDB.InsertVersion(ctx, model.Version{
		Identifier: id, Version: 1, Fingerprint: "fp-a", ChangedBy: "scraper",
	})
	require.NoError(t, err)

	// Second row claiming the same (identifier, version) pair must be
	// rejected by the unique constraint, not silently accepted.
	_, err = testDB.InsertVersion(ctx, model.Version{
		Identifier: id, Version: 1, Fingerprint: "fp-b", ChangedBy: "scraper",
	})
	require.ErrorIs(t, err, storage.ErrVersionConflict)
}

func TestAuditAppendAndTrail(t *testing.T) {
	ctx := context.Background()

	e1, err := testDB.AppendAuditEntry(ctx, model.AuditEntry{
		EventKind: model.EventInsert,
		TableName: "decision_records",
		RecordID:  "ET-2026-300001",
		Actor:     "scraper",
		Changes:   map[string]any{"version": float64(1)},
	})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, e1.ID)

	_, err = testDB.AppendAuditEntry(ctx, model.AuditEntry{
		EventKind: model.EventUpdate,
		TableName: "decision_records",
		RecordID:  "ET-2026-300001",
		Actor:     "scraper",
		Reason:    "content changed",
	})
	require.NoError(t, err)

	trail, err := testDB.AuditTrail(ctx, "decision_records", "ET-2026-300001")
	require.NoError(t, err)
	require.Len(t, trail, 2)
	assert.Equal(t, model.EventInsert, trail[0].EventKind)
	assert.Equal(t, model.EventUpdate, trail[1].EventKind)
	assert.Equal(t, map[string]any{"version": float64(1)}, trail[0].Changes)
}

func TestAuditInvalidEntryRejected(t *testing.T) {
	_, err := testDB.AppendAuditEntry(context.Background(), model.AuditEntry{
		EventKind: model.EventKind("bogus"),
		TableName: "decision_records",
		RecordID:  "ET-2026-300002",
		Actor:     "scraper",
	})
	require.Error(t, err)
}

func TestAuditImmutable(t *testing.T) {
	ctx := context.Background()

	e, err := testDB.AppendAuditEntry(ctx, model.AuditEntry{
		EventKind: model.EventInsert,
		TableName: "decision_records",
		RecordID:  "ET-2026-300003",
		Actor:     "scraper",
	})
	require.NoError(t, err)

	// The storage package exposes no mutation path, so go straight at the
	// table. The guard trigger must reject both verbs regardless of role.
	_, err = testDB.Pool().Exec(ctx,
		`UPDATE audit_log SET actor = 'tampered' WHERE id = $1`, e.ID)
	require.Error(t, err)
	assert.True(t, storage.IsImmutableViolation(err))

	_, err = testDB.Pool().Exec(ctx,
		`DELETE FROM audit_log WHERE id = $1`, e.ID)
	require.Error(t, err)
	assert.True(t, storage.IsImmutableViolation(err))

	trail, err := testDB.AuditTrail(ctx, "decision_records", "ET-2026-300003")
	require.NoError(t, err)
	require.Len(t, trail, 1)
	assert.Equal(t, "scraper", trail[0].Actor)
}

func TestRecentAuditEntriesKindFilter(t *testing.T) {
	ctx := context.Background()

	_, err := testDB.AppendAuditEntry(ctx, model.AuditEntry{
		EventKind: model.EventAlert,
		TableName: "decision_records",
		RecordID:  "ET-2026-300004",
		Actor:     "reconciler",
		Reason:    "missing records detected",
	})
	require.NoError(t, err)

	kind := model.EventAlert
	entries, err := testDB.RecentAuditEntries(ctx, 10, &kind)
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	for _, e := range entries {
		assert.Equal(t, model.EventAlert, e.EventKind)
	}
}

func TestQualityIssuesInsertAndResolve(t *testing.T) {
	ctx := context.Background()

	issues := []model.QualityIssue{
		{
			RecordID:    "ET-2026-400001",
			TableName:   "decision_records",
			FieldName:   "body",
			Kind:        model.IssueSuspicious,
			Severity:    model.SeverityWarning,
			Description: "body shorter than expected",
		},
		{
			RecordID:    "ET-2026-400001",
			TableName:   "decision_records",
			FieldName:   "title",
			Kind:        model.IssueMissing,
			Severity:    model.SeverityCritical,
			Description: "title is empty",
		},
	}
	require.NoError(t, testDB.InsertQualityIssues(ctx, issues))

	open, err := testDB.OpenIssuesSince(ctx, time.Now().UTC().Add(-time.Minute))
	require.NoError(t, err)

	var target *model.QualityIssue
	for i := range open {
		if open[i].RecordID == "ET-2026-400001" && open[i].FieldName == "title" {
			target = &open[i]
		}
	}
	require.NotNil(t, target)
	assert.Equal(t, model.IssueOpen, target.Status)

	require.NoError(t, testDB.ResolveQualityIssue(ctx, target.ID, model.IssueResolved, "reviewer", "fixed upstream"))

	// Once out of the open state the issue cannot be resolved again.
	err = testDB.ResolveQualityIssue(ctx, target.ID, model.IssueIgnored, "reviewer", "")
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestResolveQualityIssueInvalidStatus(t *testing.T) {
	err := testDB.ResolveQualityIssue(context.Background(), uuid.New(), model.IssueOpen, "reviewer", "")
	require.Error(t, err)
	require.NotErrorIs(t, err, storage.ErrNotFound)
}

func TestInsertQualityIssuesEmpty(t *testing.T) {
	require.NoError(t, testDB.InsertQualityIssues(context.Background(), nil))
}

func TestUnclassifiedLifecycle(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()

	item, err := testDB.InsertUnclassified(ctx, model.UnclassifiedItem{
		Identifier: "ET-2026-500001",
		Title:      "Novel gig-economy status claim",
		Excerpt:    "The claimant argues a hybrid status not covered by the taxonomy.",
		SourceURL:  "https://example.org/decisions/ET-2026-500001",
		CreatedAt:  now,
		ReviewBy:   now.Add(model.ReviewPeriod),
		Status:     model.StatusPendingReview,
	})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, item.ID)

	_, err = testDB.InsertUnclassified(ctx, model.UnclassifiedItem{
		Identifier: "ET-2026-500001",
		Title:      "duplicate",
		CreatedAt:  now,
		ReviewBy:   now.Add(model.ReviewPeriod),
		Status:     model.StatusPendingReview,
	})
	require.ErrorIs(t, err, storage.ErrDuplicateIdentifier)

	err = testDB.TransitionUnclassified(ctx, "ET-2026-500001",
		[]model.ItemStatus{model.StatusPendingReview}, model.StatusUnderReview,
		nil, false, "reviewer", "")
	require.NoError(t, err)

	// Claiming again from pending must fail: the item already moved on.
	err = testDB.TransitionUnclassified(ctx, "ET-2026-500001",
		[]model.ItemStatus{model.StatusPendingReview}, model.StatusUnderReview,
		nil, false, "reviewer", "")
	require.ErrorIs(t, err, storage.ErrNotFound)

	category := "employment_status"
	err = testDB.TransitionUnclassified(ctx, "ET-2026-500001",
		[]model.ItemStatus{model.StatusPendingReview, model.StatusUnderReview},
		model.StatusResolved, &category, false, "reviewer", "fits existing category")
	require.NoError(t, err)

	got, err := testDB.GetUnclassified(ctx, "ET-2026-500001")
	require.NoError(t, err)
	assert.Equal(t, model.StatusResolved, got.Status)
	require.NotNil(t, got.AssignedCategory)
	assert.Equal(t, "employment_status", *got.AssignedCategory)
	require.NotNil(t, got.ResolvedBy)
	assert.Equal(t, "reviewer", *got.ResolvedBy)
}

func TestPendingBefore(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()

	_, err := testDB.InsertUnclassified(ctx, model.UnclassifiedItem{
		Identifier: "ET-2026-500002",
		Title:      "Stale pending item",
		CreatedAt:  now.Add(-31 * 24 * time.Hour),
		ReviewBy:   now.Add(-24 * time.Hour),
		Status:     model.StatusPendingReview,
	})
	require.NoError(t, err)

	_, err = testDB.InsertUnclassified(ctx, model.UnclassifiedItem{
		Identifier: "ET-2026-500003",
		Title:      "Fresh pending item",
		CreatedAt:  now,
		ReviewBy:   now.Add(model.ReviewPeriod),
		Status:     model.StatusPendingReview,
	})
	require.NoError(t, err)

	overdue, err := testDB.PendingBefore(ctx, now)
	require.NoError(t, err)

	ids := make(map[string]bool, len(overdue))
	for _, it := range overdue {
		ids[it.Identifier] = true
	}
	assert.True(t, ids["ET-2026-500002"])
	assert.False(t, ids["ET-2026-500003"])
}

func TestScoreSnapshotsInsertAndList(t *testing.T) {
	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Hour)

	snap := model.ScoreSnapshot{
		Category:       "dismissal_termination",
		Jurisdiction:   "England & Wales",
		AsOf:           base,
		WeightsVersion: "2026.1",
		SubScores:      model.SubScores{RAS: 20, TAS: 60, GPS: 30, MVS: 10, SCS: 50, CLS: 50, IPS: 50, MPS: 50},
		EVIRatio:       1.4,
		EVIOrdinal:     3,
		EIIRaw:         21,
		EIIOrdinal:     2,
		SCIRaw:         50,
		SCIOrdinal:     3,
		LikelihoodRaw:  2.7,
		Likelihood:     3,
		ComputedAt:     base,
	}
	first, err := testDB.InsertScoreSnapshot(ctx, snap)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, first.ID)

	snap.ComputedAt = base.Add(30 * time.Minute)
	snap.Likelihood = 4
	snap.LikelihoodRaw = 3.6
	_, err = testDB.InsertScoreSnapshot(ctx, snap)
	require.NoError(t, err)

	snaps, err := testDB.ListScoreSnapshots(ctx, "dismissal_termination", "England & Wales", 10)
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	assert.Equal(t, 4, snaps[0].Likelihood)
	assert.Equal(t, 3, snaps[1].Likelihood)
	assert.Equal(t, model.SubScores{RAS: 20, TAS: 60, GPS: 30, MVS: 10, SCS: 50, CLS: 50, IPS: 50, MPS: 50}, snaps[0].SubScores)

	limited, err := testDB.ListScoreSnapshots(ctx, "dismissal_termination", "England & Wales", 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, 4, limited[0].Likelihood)
}

func TestMigrationsIdempotent(t *testing.T) {
	// Re-running the migration set against an up-to-date schema is a no-op.
	require.NoError(t, testDB.RunMigrations(context.Background(), migrations.FS))
}

func TestMigrationsConcurrentInstances(t *testing.T) {
	ctx := context.Background()

	// Two instances migrating the same fresh database at boot, the way a
	// rolling deploy does. Whichever records a migration first must not
	// fail the other on the schema_migrations insert.
	_, err := testDB.Pool().Exec(ctx, `CREATE DATABASE regsight_migrate`)
	require.NoError(t, err)
	dsn := strings.Replace(testDSN, "/regsight?", "/regsight_migrate?", 1)

	dbs := make([]*storage.DB, 2)
	for i := range dbs {
		db, err := storage.New(ctx, dsn, testutil.TestLogger())
		require.NoError(t, err)
		defer db.Close()
		dbs[i] = db
	}

	// Create the tracking table up front so the concurrent runs contend
	// only on recording the migration, not on its DDL.
	require.NoError(t, dbs[0].RunMigrations(ctx, fstest.MapFS{}))
	fsys := fstest.MapFS{
		"001_rollout.sql": &fstest.MapFile{Data: []byte(`SELECT 1`)},
	}

	var wg sync.WaitGroup
	errs := make([]error, len(dbs))
	for i, db := range dbs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = db.RunMigrations(ctx, fsys)
		}()
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])

	var n int
	err = dbs[0].Pool().QueryRow(ctx,
		`SELECT COUNT(*) FROM schema_migrations WHERE version = '001_rollout.sql'`,
	).Scan(&n)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
