// Package score computes the likelihood indices for a category and
// jurisdiction from caller-supplied evidence.
//
// Three ordinal indices on a shared 1-5 scale feed the final Likelihood:
// the Event Volume Index (EVI) from decision volume against a category
// baseline, the Enforcement Intensity Index (EII) from regulator activity,
// and the Structural Change Index (SCI) from regime-level shifts. Every
// computation yields a complete snapshot carrying the sub-score breakdown
// and the weight version used, so any historical result can be reproduced.
package score

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/regsight/regsight/internal/model"
)

// MissingInputError reports an evidence stream the caller failed to supply.
// Absent evidence is distinct from empty evidence: an empty slice or zero
// count scores at baseline, a nil field rejects the whole computation.
type MissingInputError struct {
	Field string
}

func (e *MissingInputError) Error() string {
	return fmt.Sprintf("score: missing evidence stream %q", e.Field)
}

// ErrInvalidWeights marks a weighting scheme rejected before computation.
var ErrInvalidWeights = errors.New("score: invalid weights")

// DefaultWeights returns the current published weighting scheme.
func DefaultWeights() model.Weights {
	return model.Weights{
		Version: "2026.1",
		Likelihood: model.LikelihoodWeights{
			EVI: 0.40,
			EII: 0.30,
			SCI: 0.30,
		},
		EII: model.EIIWeights{
			RAS: 0.40,
			TAS: 0.30,
			GPS: 0.20,
			MVS: 0.10,
		},
		SCI: model.SCIWeights{
			SCS: 0.40,
			CLS: 0.30,
			IPS: 0.20,
			MPS: 0.10,
		},
	}
}

// SnapshotStore persists computed snapshots. *storage.DB satisfies it.
type SnapshotStore interface {
	InsertScoreSnapshot(ctx context.Context, s model.ScoreSnapshot) (model.ScoreSnapshot, error)
}

// Engine computes and persists score snapshots. The engine is stateless
// between calls: evidence and weights arrive with each invocation.
type Engine struct {
	store  SnapshotStore
	logger *slog.Logger
	now    func() time.Time
}

// NewEngine creates an Engine. store may be nil for compute-only use.
func NewEngine(store SnapshotStore, logger *slog.Logger) *Engine {
	return &Engine{store: store, logger: logger, now: time.Now}
}

func validateEvidence(ev model.EvidenceAggregate) error {
	if ev.Category == "" {
		return &MissingInputError{Field: "category"}
	}
	if ev.Jurisdiction == "" {
		return &MissingInputError{Field: "jurisdiction"}
	}
	if ev.WeeklyDecisionCount == nil {
		return &MissingInputError{Field: "weekly_decision_count"}
	}
	if ev.Enforcement == nil {
		return &MissingInputError{Field: "enforcement"}
	}
	if ev.Guidance == nil {
		return &MissingInputError{Field: "guidance"}
	}
	if ev.MediaMentions == nil {
		return &MissingInputError{Field: "media_mentions"}
	}
	if ev.Structural == nil {
		return &MissingInputError{Field: "structural"}
	}
	return nil
}

func validateWeights(w model.Weights) error {
	if w.Version == "" {
		return fmt.Errorf("%w: version is required", ErrInvalidWeights)
	}
	sums := map[string]float64{
		"likelihood": w.Likelihood.EVI + w.Likelihood.EII + w.Likelihood.SCI,
		"eii":        w.EII.RAS + w.EII.TAS + w.EII.GPS + w.EII.MVS,
		"sci":        w.SCI.SCS + w.SCI.CLS + w.SCI.IPS + w.SCI.MPS,
	}
	for name, sum := range sums {
		if math.Abs(sum-1.0) > 1e-9 {
			return fmt.Errorf("%w: %s weights sum to %.4f, want 1.0", ErrInvalidWeights, name, sum)
		}
	}
	return nil
}

// Compute derives the full snapshot from evidence and weights and, when a
// store is configured, persists it. The snapshot is immutable once written.
func (e *Engine) Compute(ctx context.Context, ev model.EvidenceAggregate, w model.Weights) (model.ScoreSnapshot, error) {
	if err := validateEvidence(ev); err != nil {
		return model.ScoreSnapshot{}, err
	}
	if err := validateWeights(w); err != nil {
		return model.ScoreSnapshot{}, err
	}

	asOf := ev.AsOf
	if asOf.IsZero() {
		asOf = e.now().UTC()
	}

	ratio, evi := EVI(ev.Category, *ev.WeeklyDecisionCount)

	sub := model.SubScores{
		RAS: RAS(ev.Enforcement),
		TAS: TAS(evi),
		GPS: GPS(ev.Guidance),
		MVS: MVS(*ev.MediaMentions),
		SCS: SCS(ev.Structural.Statutory),
		CLS: CLS(ev.Structural.CaseLaw),
		IPS: IPS(ev.Structural.Policy),
		MPS: MPS(ev.Structural.Market),
	}

	eiiRaw := w.EII.RAS*sub.RAS + w.EII.TAS*sub.TAS + w.EII.GPS*sub.GPS + w.EII.MVS*sub.MVS
	sciRaw := w.SCI.SCS*sub.SCS + w.SCI.CLS*sub.CLS + w.SCI.IPS*sub.IPS + w.SCI.MPS*sub.MPS

	eii := OrdinalMap(eiiRaw)
	sci := OrdinalMap(sciRaw)

	lRaw := w.Likelihood.EVI*float64(evi) + w.Likelihood.EII*float64(eii) + w.Likelihood.SCI*float64(sci)
	l := int(math.Round(lRaw))
	if l < 1 {
		l = 1
	}
	if l > 5 {
		l = 5
	}

	snap := model.ScoreSnapshot{
		Category:       ev.Category,
		Jurisdiction:   ev.Jurisdiction,
		AsOf:           asOf,
		WeightsVersion: w.Version,
		SubScores:      sub,
		EVIRatio:       ratio,
		EVIOrdinal:     evi,
		EIIRaw:         eiiRaw,
		EIIOrdinal:     eii,
		SCIRaw:         sciRaw,
		SCIOrdinal:     sci,
		LikelihoodRaw:  lRaw,
		Likelihood:     l,
		ComputedAt:     e.now().UTC(),
	}

	if e.store != nil {
		stored, err := e.store.InsertScoreSnapshot(ctx, snap)
		if err != nil {
			return model.ScoreSnapshot{}, fmt.Errorf("score: persist snapshot: %w", err)
		}
		snap = stored
	}

	e.logger.Info("score: snapshot computed",
		"category", ev.Category,
		"jurisdiction", ev.Jurisdiction,
		"weights_version", w.Version,
		"likelihood", l,
	)
	return snap, nil
}

// OrdinalMap maps a 0-100 score onto the shared 1-5 ordinal scale in bands
// of 20. Band edges belong to the higher band; exactly 100 maps to 5.
func OrdinalMap(score float64) int {
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	ordinal := 1 + int(score/20)
	if ordinal > 5 {
		ordinal = 5
	}
	return ordinal
}

// EVI returns the volume ratio against the category baseline and its
// ordinal band. A non-positive baseline yields ratio 0, ordinal 1.
func EVI(category string, weeklyCount int) (ratio float64, ordinal int) {
	baseline := BaselineFor(category)
	if baseline <= 0 {
		return 0, 1
	}
	ratio = float64(weeklyCount) / float64(baseline)
	switch {
	case ratio <= 1.10:
		ordinal = 1
	case ratio <= 1.25:
		ordinal = 2
	case ratio <= 1.50:
		ordinal = 3
	case ratio <= 2.00:
		ordinal = 4
	default:
		ordinal = 5
	}
	return ratio, ordinal
}

// RAS scores regulator enforcement activity. Baseline 20 with no events;
// each event adds by type and severity, capped at 100.
func RAS(events []model.EnforcementEvent) float64 {
	score := 20.0
	for _, ev := range events {
		high := ev.Severity == "high"
		switch {
		case strings.Contains(ev.Type, "naming"), strings.Contains(ev.Type, "prosecution"):
			score += pick(high, 15, 10)
		case strings.Contains(ev.Type, "investigation"):
			score += pick(high, 10, 5)
		case strings.Contains(ev.Type, "notice"), strings.Contains(ev.Type, "warning"):
			score += pick(high, 5, 2)
		}
	}
	return min100(score)
}

// TAS rescales the EVI ordinal onto 0-100.
func TAS(evi int) float64 {
	switch evi {
	case 2:
		return 40
	case 3:
		return 60
	case 4:
		return 80
	case 5:
		return 100
	default:
		return 20
	}
}

// GPS scores official guidance activity. Baseline 30 with no updates.
func GPS(updates []model.GuidanceUpdate) float64 {
	score := 30.0
	for _, u := range updates {
		switch u.Scope {
		case "major":
			score += 20
		case "moderate":
			score += 10
		default:
			score += 5
		}
	}
	return min100(score)
}

// MVS scores media coverage on a logarithmic scale. Zero mentions is the
// floor of 10.
func MVS(mentions int) float64 {
	if mentions <= 0 {
		return 10
	}
	return min100(10 + math.Log10(float64(mentions))*30)
}

// SCS scores legislative change, centered at the neutral 50. Only the four
// recognized impact grades move the score; anything else is neutral.
func SCS(changes []model.StatutoryChange) float64 {
	score := 50.0
	for _, c := range changes {
		switch c.Impact {
		case "transformational":
			score += 25
		case "significant":
			score += 15
		case "notable":
			score += 10
		case "incremental":
			score += 5
		}
	}
	return clamp100(score)
}

// CLS scores appellate precedent shifts, centered at 50. Higher courts and
// major impacts move the score further.
func CLS(shifts []model.CaseLawShift) float64 {
	score := 50.0
	for _, s := range shifts {
		major := s.Impact == "major"
		switch s.Court {
		case "supreme_court":
			score += pick(major, 20, 10)
		case "eat":
			score += pick(major, 15, 7)
		default:
			score += 5
		}
	}
	return clamp100(score)
}

// IPS scores government and regulator policy shifts, centered at 50.
func IPS(shifts []model.PolicyShift) float64 {
	score := 50.0
	for _, s := range shifts {
		switch s.Scope {
		case "national":
			score += 15
		case "sector":
			score += 10
		default:
			score += 5
		}
	}
	return clamp100(score)
}

// MPS scores industry practice shifts, centered at 50.
func MPS(shifts []model.MarketShift) float64 {
	score := 50.0
	for _, s := range shifts {
		switch s.Adoption {
		case "widespread":
			score += 10
		case "growing":
			score += 5
		}
	}
	return clamp100(score)
}

func pick(cond bool, a, b float64) float64 {
	if cond {
		return a
	}
	return b
}

func min100(v float64) float64 {
	if v > 100 {
		return 100
	}
	return v
}

func clamp100(v float64) float64 {
	if v < 0 {
		return 0
	}
	return min100(v)
}
