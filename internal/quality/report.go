package quality

import (
	"context"
	"fmt"
	"time"

	"github.com/regsight/regsight/internal/model"
)

// Thresholds above which the daily report flags a systemic problem rather
// than isolated bad records.
const (
	missingRateThreshold    = 0.10
	suspiciousRateThreshold = 0.05
)

// DailyReport aggregates open issues over the window and turns rates into
// actionable recommendations. Advisory output only; nothing is mutated.
func (c *Checker) DailyReport(ctx context.Context, window time.Duration) (model.QualityReport, error) {
	since := c.now().Add(-window)

	issues, err := c.store.OpenIssuesSince(ctx, since)
	if err != nil {
		return model.QualityReport{}, fmt.Errorf("quality: load open issues: %w", err)
	}
	total, err := c.store.CountRecordsSince(ctx, since)
	if err != nil {
		return model.QualityReport{}, fmt.Errorf("quality: count records: %w", err)
	}

	report := model.QualityReport{
		GeneratedAt:  c.now().UTC(),
		WindowStart:  since.UTC(),
		TotalRecords: total,
		IssuesFound:  len(issues),
		IssuesByKind: make(map[model.IssueKind]int),
	}
	for _, is := range issues {
		report.IssuesByKind[is.Kind]++
		if is.Severity == model.SeverityCritical {
			report.CriticalIssues++
		}
	}

	if report.CriticalIssues > 0 {
		report.Recommendations = append(report.Recommendations,
			fmt.Sprintf("%d critical issues require immediate attention", report.CriticalIssues))
	}
	if total > 0 {
		if float64(report.IssuesByKind[model.IssueMissing]) > float64(total)*missingRateThreshold {
			report.Recommendations = append(report.Recommendations,
				"high rate of missing required fields, check the fetch layer")
		}
		if float64(report.IssuesByKind[model.IssueSuspicious]) > float64(total)*suspiciousRateThreshold {
			report.Recommendations = append(report.Recommendations,
				"many suspiciously short or implausible records, verify extraction")
		}
	}

	c.logger.Info("quality: daily report",
		"window_start", report.WindowStart,
		"records", total,
		"issues", report.IssuesFound,
		"critical", report.CriticalIssues,
	)
	return report, nil
}
