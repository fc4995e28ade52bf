package model

import (
	"time"

	"github.com/google/uuid"
)

// EnforcementEvent is one regulator action (investigation, notice, naming,
// prosecution) feeding the Regulatory Action Score.
type EnforcementEvent struct {
	Type     string `json:"type"`
	Severity string `json:"severity"` // low | high
}

// GuidanceUpdate is one official guidance publication feeding the
// Guidance/Policy Signal.
type GuidanceUpdate struct {
	Scope string `json:"scope"` // minor | moderate | major
}

// StatutoryChange is a legislative amendment feeding the Statutory Change Score.
type StatutoryChange struct {
	Impact string `json:"impact"` // incremental | notable | significant | transformational
}

// CaseLawShift is an appellate precedent feeding the Case Law Shift score.
type CaseLawShift struct {
	Court  string `json:"court"`  // supreme_court | eat | lower
	Impact string `json:"impact"` // minor | major
}

// PolicyShift is a government or regulator policy change feeding the
// Institutional Policy Shift score.
type PolicyShift struct {
	Scope string `json:"scope"` // local | sector | national
}

// MarketShift is an industry-practice change feeding the Market Practice
// Shift score.
type MarketShift struct {
	Adoption string `json:"adoption"` // low | growing | widespread
}

// StructuralEvidence groups the four structural-change evidence streams.
type StructuralEvidence struct {
	Statutory []StatutoryChange `json:"statutory"`
	CaseLaw   []CaseLawShift    `json:"case_law"`
	Policy    []PolicyShift     `json:"policy"`
	Market    []MarketShift     `json:"market"`
}

// EvidenceAggregate is the caller-supplied evidence for one score
// computation. The engine never fetches evidence itself. Each top-level
// field is required: a nil field means the caller failed to supply that
// evidence stream and the whole computation is rejected. Empty slices and
// zero counts are valid evidence (they score at baseline).
type EvidenceAggregate struct {
	Category     string    `json:"category"`
	Jurisdiction string    `json:"jurisdiction"`
	AsOf         time.Time `json:"as_of"`

	WeeklyDecisionCount *int                `json:"weekly_decision_count"`
	Enforcement         []EnforcementEvent  `json:"enforcement"`
	Guidance            []GuidanceUpdate    `json:"guidance"`
	MediaMentions       *int                `json:"media_mentions"`
	Structural          *StructuralEvidence `json:"structural"`
}

// LikelihoodWeights blends the three ordinal indices into L.
type LikelihoodWeights struct {
	EVI float64 `json:"evi"`
	EII float64 `json:"eii"`
	SCI float64 `json:"sci"`
}

// EIIWeights combines the four enforcement-intensity sub-scores.
type EIIWeights struct {
	RAS float64 `json:"ras"`
	TAS float64 `json:"tas"`
	GPS float64 `json:"gps"`
	MVS float64 `json:"mvs"`
}

// SCIWeights combines the four structural-change sub-scores.
type SCIWeights struct {
	SCS float64 `json:"scs"`
	CLS float64 `json:"cls"`
	IPS float64 `json:"ips"`
	MPS float64 `json:"mps"`
}

// Weights is the full, versioned weighting scheme for one score
// computation. It is passed explicitly on every call rather than read from
// ambient state, so a historical snapshot can always be reproduced by
// replaying it with the weight version it recorded.
type Weights struct {
	Version    string            `json:"version"`
	Likelihood LikelihoodWeights `json:"likelihood"`
	EII        EIIWeights        `json:"eii"`
	SCI        SCIWeights        `json:"sci"`
}

// SubScores is the full second-level breakdown retained in every snapshot.
// All values are on the 0-100 scale.
type SubScores struct {
	RAS float64 `json:"ras"`
	TAS float64 `json:"tas"`
	GPS float64 `json:"gps"`
	MVS float64 `json:"mvs"`
	SCS float64 `json:"scs"`
	CLS float64 `json:"cls"`
	IPS float64 `json:"ips"`
	MPS float64 `json:"mps"`
}

// ScoreSnapshot is the complete, auditable result of one score
// computation. Each invocation produces a fresh snapshot; snapshots are
// never mutated after creation.
type ScoreSnapshot struct {
	ID           uuid.UUID `json:"id"`
	Category     string    `json:"category"`
	Jurisdiction string    `json:"jurisdiction"`
	AsOf         time.Time `json:"as_of"`

	WeightsVersion string    `json:"weights_version"`
	SubScores      SubScores `json:"sub_scores"`

	EVIRatio   float64 `json:"evi_ratio"`
	EVIOrdinal int     `json:"evi_ordinal"`
	EIIRaw     float64 `json:"eii_raw"`
	EIIOrdinal int     `json:"eii_ordinal"`
	SCIRaw     float64 `json:"sci_raw"`
	SCIOrdinal int     `json:"sci_ordinal"`

	LikelihoodRaw float64 `json:"likelihood_raw"`
	Likelihood    int     `json:"likelihood"`

	ComputedAt time.Time `json:"computed_at"`
}
