// Package quality screens decision records for structural soundness.
//
// Checks are purely observational: a failing check emits an issue and the
// record under test proceeds through ingestion untouched. Five check kinds
// run: required fields, field format, structured sub-field shape,
// suspicious values, and a cross-record duplicate-title signal that is
// independent of content fingerprinting.
package quality

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/regsight/regsight/internal/fingerprint"
	"github.com/regsight/regsight/internal/model"
)

// minBodyLength is the shortest body that does not look like a truncated
// or failed extraction.
const minBodyLength = 100

// recordsTable is the audit table name findings are raised against.
const recordsTable = "decision_records"

// jurisdictionPattern admits names like "England and Wales" or "Scotland".
// Digits or punctuation in a jurisdiction mean the fetch layer put the
// wrong field here.
var jurisdictionPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z&' -]*$`)

// IssueStore is the persistence surface the checker needs. *storage.DB
// satisfies it.
type IssueStore interface {
	InsertQualityIssues(ctx context.Context, issues []model.QualityIssue) error
	OpenIssuesSince(ctx context.Context, since time.Time) ([]model.QualityIssue, error)
	RecordTitlesSince(ctx context.Context, since time.Time) (map[string]string, error)
	CountRecordsSince(ctx context.Context, since time.Time) (int, error)
}

// Checker runs the quality battery and persists findings.
type Checker struct {
	store  IssueStore
	logger *slog.Logger
	now    func() time.Time
}

// NewChecker creates a Checker.
func NewChecker(store IssueStore, logger *slog.Logger) *Checker {
	return &Checker{store: store, logger: logger, now: time.Now}
}

// Check runs the per-record battery. It never mutates the record and never
// returns an error: a record that fails every check still ingests.
func (c *Checker) Check(rec model.DecisionRecord) []model.QualityIssue {
	now := c.now().UTC()
	var issues []model.QualityIssue

	add := func(field string, kind model.IssueKind, sev model.Severity, desc string) {
		issues = append(issues, model.QualityIssue{
			RecordID:    rec.Identifier,
			TableName:   recordsTable,
			FieldName:   field,
			Kind:        kind,
			Severity:    sev,
			Description: desc,
			DetectedAt:  now,
			Status:      model.IssueOpen,
		})
	}

	required := []struct {
		field, value string
	}{
		{"identifier", rec.Identifier},
		{"title", rec.Title},
		{"body", rec.Body},
		{"source_url", rec.SourceURL},
	}
	for _, f := range required {
		if strings.TrimSpace(f.value) == "" {
			add(f.field, model.IssueMissing, model.SeverityCritical,
				fmt.Sprintf("required field %q is missing or empty", f.field))
		}
	}

	if rec.SourceURL != "" && !strings.HasPrefix(rec.SourceURL, "http://") && !strings.HasPrefix(rec.SourceURL, "https://") {
		add("source_url", model.IssueInvalid, model.SeverityWarning,
			fmt.Sprintf("source URL format invalid: %s", rec.SourceURL))
	}

	if rec.Jurisdiction != "" && !jurisdictionPattern.MatchString(rec.Jurisdiction) {
		add("jurisdiction", model.IssueMalformed, model.SeverityWarning,
			fmt.Sprintf("jurisdiction malformed: %q", rec.Jurisdiction))
	}

	if body := strings.TrimSpace(rec.Body); body != "" && len(body) < minBodyLength {
		add("body", model.IssueSuspicious, model.SeverityWarning,
			fmt.Sprintf("decision text suspiciously short (%d chars)", len(body)))
	}

	if rec.PublishedAt != nil && rec.PublishedAt.After(now) {
		add("published_at", model.IssueSuspicious, model.SeverityWarning,
			fmt.Sprintf("published date in the future: %s", rec.PublishedAt.Format(time.RFC3339)))
	}

	if rec.Fingerprint != "" && rec.Fingerprint != fingerprint.Compute(rec.Title, rec.Body) {
		add("fingerprint", model.IssueInvalid, model.SeverityCritical,
			"content fingerprint does not match content")
	}

	return issues
}

// duplicateWindow bounds how far back the duplicate-title signal looks.
const duplicateWindow = 7 * 24 * time.Hour

// Screen runs the battery plus the cross-record duplicate-title signal and
// persists every finding. Failures to persist are logged, not returned:
// quality screening must never block ingestion.
func (c *Checker) Screen(ctx context.Context, rec model.DecisionRecord) []model.QualityIssue {
	issues := c.Check(rec)

	if dup, err := c.duplicateTitleSignal(ctx, rec); err != nil {
		c.logger.Warn("quality: duplicate-title check skipped", "identifier", rec.Identifier, "error", err)
	} else if dup != nil {
		issues = append(issues, *dup)
	}

	if len(issues) > 0 {
		if err := c.store.InsertQualityIssues(ctx, issues); err != nil {
			c.logger.Error("quality: persist issues failed", "identifier", rec.Identifier, "error", err)
		}
	}
	return issues
}

// duplicateTitleSignal flags a record whose normalized title matches a
// different identifier ingested recently. Distinct identifiers with
// identical titles are legal but worth a human glance.
func (c *Checker) duplicateTitleSignal(ctx context.Context, rec model.DecisionRecord) (*model.QualityIssue, error) {
	if strings.TrimSpace(rec.Title) == "" {
		return nil, nil
	}
	titles, err := c.store.RecordTitlesSince(ctx, c.now().Add(-duplicateWindow))
	if err != nil {
		return nil, err
	}
	norm := fingerprint.Normalize(rec.Title)
	for id, title := range titles {
		if id == rec.Identifier {
			continue
		}
		if fingerprint.Normalize(title) == norm {
			return &model.QualityIssue{
				RecordID:    rec.Identifier,
				TableName:   recordsTable,
				FieldName:   "title",
				Kind:        model.IssueDuplicate,
				Severity:    model.SeverityInfo,
				Description: fmt.Sprintf("title matches existing record %s", id),
				DetectedAt:  c.now().UTC(),
				Status:      model.IssueOpen,
			}, nil
		}
	}
	return nil, nil
}
