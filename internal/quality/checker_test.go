package quality

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/regsight/regsight/internal/fingerprint"
	"github.com/regsight/regsight/internal/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memIssueStore collects inserted issues and serves canned windows.
type memIssueStore struct {
	issues  []model.QualityIssue
	titles  map[string]string
	records int
}

func (m *memIssueStore) InsertQualityIssues(_ context.Context, issues []model.QualityIssue) error {
	m.issues = append(m.issues, issues...)
	return nil
}

func (m *memIssueStore) OpenIssuesSince(_ context.Context, _ time.Time) ([]model.QualityIssue, error) {
	return m.issues, nil
}

func (m *memIssueStore) RecordTitlesSince(_ context.Context, _ time.Time) (map[string]string, error) {
	return m.titles, nil
}

func (m *memIssueStore) CountRecordsSince(_ context.Context, _ time.Time) (int, error) {
	return m.records, nil
}

func newTestChecker() (*Checker, *memIssueStore) {
	store := &memIssueStore{titles: make(map[string]string)}
	return NewChecker(store, testLogger()), store
}

func validRecord() model.DecisionRecord {
	title := "Smith v Acme Ltd"
	body := "The tribunal finds that the claimant was unfairly dismissed. " +
		"Compensation is awarded under section 123 of the Employment Rights Act 1996."
	return model.DecisionRecord{
		Identifier:   "ET-2026-000500",
		Title:        title,
		Body:         body,
		Jurisdiction: "England and Wales",
		SourceURL:    "https://example.org/decisions/ET-2026-000500",
		Fingerprint:  fingerprint.Compute(title, body),
	}
}

func TestCheck_CleanRecordHasNoIssues(t *testing.T) {
	c, _ := newTestChecker()
	assert.Empty(t, c.Check(validRecord()))
}

func TestCheck_MissingRequiredFieldsAreCritical(t *testing.T) {
	c, _ := newTestChecker()

	rec := validRecord()
	rec.Title = ""
	rec.SourceURL = "   "

	issues := c.Check(rec)
	fields := make(map[string]model.QualityIssue)
	for _, is := range issues {
		if is.Kind == model.IssueMissing {
			fields[is.FieldName] = is
		}
	}
	require.Contains(t, fields, "title")
	require.Contains(t, fields, "source_url")
	assert.Equal(t, model.SeverityCritical, fields["title"].Severity)
}

func TestCheck_InvalidURLFormat(t *testing.T) {
	c, _ := newTestChecker()

	rec := validRecord()
	rec.SourceURL = "ftp://example.org/decision"
	rec.Fingerprint = fingerprint.Compute(rec.Title, rec.Body)

	issues := c.Check(rec)
	require.Len(t, issues, 1)
	assert.Equal(t, model.IssueInvalid, issues[0].Kind)
	assert.Equal(t, "source_url", issues[0].FieldName)
}

func TestCheck_MalformedJurisdiction(t *testing.T) {
	c, _ := newTestChecker()

	rec := validRecord()
	rec.Jurisdiction = "EW-2026/04"

	issues := c.Check(rec)
	require.Len(t, issues, 1)
	assert.Equal(t, model.IssueMalformed, issues[0].Kind)
	assert.Equal(t, "jurisdiction", issues[0].FieldName)
}

func TestCheck_SuspiciouslyShortBody(t *testing.T) {
	c, _ := newTestChecker()

	rec := validRecord()
	rec.Body = "Claim dismissed."
	rec.Fingerprint = fingerprint.Compute(rec.Title, rec.Body)

	issues := c.Check(rec)
	require.Len(t, issues, 1)
	assert.Equal(t, model.IssueSuspicious, issues[0].Kind)
	assert.Equal(t, model.SeverityWarning, issues[0].Severity)
}

func TestCheck_FuturePublishedDate(t *testing.T) {
	c, _ := newTestChecker()

	future := time.Now().Add(48 * time.Hour)
	rec := validRecord()
	rec.PublishedAt = &future

	issues := c.Check(rec)
	require.Len(t, issues, 1)
	assert.Equal(t, model.IssueSuspicious, issues[0].Kind)
	assert.Equal(t, "published_at", issues[0].FieldName)
}

func TestCheck_FingerprintMismatchIsCritical(t *testing.T) {
	c, _ := newTestChecker()

	rec := validRecord()
	rec.Fingerprint = "deadbeef"

	issues := c.Check(rec)
	require.Len(t, issues, 1)
	assert.Equal(t, model.IssueInvalid, issues[0].Kind)
	assert.Equal(t, model.SeverityCritical, issues[0].Severity)
	assert.Equal(t, "fingerprint", issues[0].FieldName)
}

func TestScreen_DuplicateTitleSignal(t *testing.T) {
	c, store := newTestChecker()
	store.titles = map[string]string{
		"ET-2026-000400": "Smith  v   ACME Ltd", // same title modulo normalization
	}

	issues := c.Screen(context.Background(), validRecord())
	require.Len(t, issues, 1)
	assert.Equal(t, model.IssueDuplicate, issues[0].Kind)
	assert.Equal(t, model.SeverityInfo, issues[0].Severity)
	assert.Contains(t, issues[0].Description, "ET-2026-000400")

	// Findings were persisted.
	assert.Len(t, store.issues, 1)
}

func TestScreen_OwnIdentifierIsNotADuplicate(t *testing.T) {
	c, store := newTestChecker()
	rec := validRecord()
	store.titles = map[string]string{rec.Identifier: rec.Title}

	assert.Empty(t, c.Screen(context.Background(), rec))
}

func TestDailyReport_CountsAndRecommendations(t *testing.T) {
	c, store := newTestChecker()
	store.records = 20

	now := time.Now().UTC()
	mk := func(kind model.IssueKind, sev model.Severity) model.QualityIssue {
		return model.QualityIssue{
			RecordID: "ET-2026-000600", TableName: recordsTable, FieldName: "body",
			Kind: kind, Severity: sev, DetectedAt: now, Status: model.IssueOpen,
		}
	}
	// 3 missing of 20 records (15% > 10%), 2 suspicious (10% > 5%), 3 critical.
	store.issues = []model.QualityIssue{
		mk(model.IssueMissing, model.SeverityCritical),
		mk(model.IssueMissing, model.SeverityCritical),
		mk(model.IssueMissing, model.SeverityCritical),
		mk(model.IssueSuspicious, model.SeverityWarning),
		mk(model.IssueSuspicious, model.SeverityWarning),
		mk(model.IssueInvalid, model.SeverityWarning),
	}

	report, err := c.DailyReport(context.Background(), 24*time.Hour)
	require.NoError(t, err)

	assert.Equal(t, 20, report.TotalRecords)
	assert.Equal(t, 6, report.IssuesFound)
	assert.Equal(t, 3, report.CriticalIssues)
	assert.Equal(t, 3, report.IssuesByKind[model.IssueMissing])
	assert.Equal(t, 2, report.IssuesByKind[model.IssueSuspicious])
	require.Len(t, report.Recommendations, 3)
	assert.Contains(t, report.Recommendations[0], "3 critical issues")
}

func TestDailyReport_QuietWindowHasNoRecommendations(t *testing.T) {
	c, store := newTestChecker()
	store.records = 50

	report, err := c.DailyReport(context.Background(), 24*time.Hour)
	require.NoError(t, err)
	assert.Zero(t, report.IssuesFound)
	assert.Empty(t, report.Recommendations)
}
