package model

import "fmt"

// Recommendation is the outcome of an evaluation.
type Recommendation string

const (
	RecommendationAccept Recommendation = "accept"
	RecommendationReview Recommendation = "review"
	RecommendationReject Recommendation = "reject"
)

// Valid reports whether r is one of the three known recommendations.
func (r Recommendation) Valid() bool {
	switch r {
	case RecommendationAccept, RecommendationReview, RecommendationReject:
		return true
	}
	return false
}

// rank orders recommendations from most to least restrictive.
func (r Recommendation) rank() int {
	switch r {
	case RecommendationReject:
		return 0
	case RecommendationReview:
		return 1
	default:
		return 2
	}
}

// AtMost caps r at ceiling. It never upgrades r.
func (r Recommendation) AtMost(ceiling Recommendation) Recommendation {
	if r.rank() > ceiling.rank() {
		return ceiling
	}
	return r
}

// ReasonCode is a machine-readable explanation attached to an overall decision.
type ReasonCode string

const (
	ReasonGateMatch          ReasonCode = "gate_match"
	ReasonNeutralScore       ReasonCode = "neutral_score"
	ReasonUrgencyCeiling     ReasonCode = "urgency_ceiling"
	ReasonPriorAuthDowngrade ReasonCode = "prior_auth_downgrade"
)

// GateName identifies a hard gate.
type GateName string

const (
	GateExcludedZipCode  GateName = "excluded_zip_code"
	GateExcludedProvider GateName = "excluded_provider"
	GateExcludedClinical GateName = "excluded_clinical"
	GateCapacityCap      GateName = "capacity_cap"
	GateWeekendHoliday   GateName = "weekend_holiday"
)

// GateResult records the first hard gate that matched.
type GateResult struct {
	Gate GateName `json:"gate"`
	Note string   `json:"note"`
}

// CategoryScore is the common part of every category result.
type CategoryScore struct {
	Score     float64  `json:"score"`
	Evaluated bool     `json:"evaluated"`
	Notes     []string `json:"notes"`
}

// Note appends a formatted note.
func (c *CategoryScore) Note(format string, args ...any) {
	c.Notes = append(c.Notes, fmt.Sprintf(format, args...))
}

// GeographicFactor is the geographic category result.
type GeographicFactor struct {
	CategoryScore
	InServiceArea bool     `json:"inServiceArea"`
	PreferredZip  bool     `json:"preferredZip"`
	DistanceMiles *float64 `json:"distanceMiles,omitempty"`
}

// InsuranceFactor is the insurance category result.
type InsuranceFactor struct {
	CategoryScore
	TypeAccepted      bool `json:"typeAccepted"`
	PriorAuthRequired bool `json:"priorAuthRequired"`
	CopayInRange      bool `json:"copayInRange"`
}

// ClinicalFactor is the clinical category result.
type ClinicalFactor struct {
	CategoryScore
	DiagnosisAccepted bool `json:"diagnosisAccepted"`
	ServicesAccepted  bool `json:"servicesAccepted"`
	EpisodeLengthFit  bool `json:"episodeLengthFit"`
}

// CapacityFactor is the capacity category result.
type CapacityFactor struct {
	CategoryScore
	NurseCapacityAvailable     bool `json:"nurseCapacityAvailable"`
	TherapistCapacityAvailable bool `json:"therapistCapacityAvailable"`
}

// QualityFactor is the quality category result.
type QualityFactor struct {
	CategoryScore
	MeetsMinimumRating   bool `json:"meetsMinimumRating"`
	PreferredSource      bool `json:"preferredSource"`
	ExcludedSource       bool `json:"excludedSource"`
	VerificationComplete bool `json:"verificationComplete"`
}

// OverallDecision is the aggregated outcome.
type OverallDecision struct {
	TotalScore     float64        `json:"totalScore"`
	WeightedScore  float64        `json:"weightedScore"`
	Recommendation Recommendation `json:"recommendation"`
	Confidence     float64        `json:"confidence"`
	Reasons        []ReasonCode   `json:"reasons"`
	Notes          []string       `json:"notes"`
}

// ReferralDecisionFactors is the audit record of one evaluation. It is
// produced once and never mutated; re-evaluation yields a new record.
type ReferralDecisionFactors struct {
	ReferralID           string           `json:"referralId"`
	ConfigurationID      string           `json:"configurationId"`
	ConfigurationVersion int              `json:"configurationVersion"`
	Gate                 *GateResult      `json:"gate,omitempty"`
	Geographic           GeographicFactor `json:"geographic"`
	Insurance            InsuranceFactor  `json:"insurance"`
	Clinical             ClinicalFactor   `json:"clinical"`
	Capacity             CapacityFactor   `json:"capacity"`
	Quality              QualityFactor    `json:"quality"`
	Overall              OverallDecision  `json:"overall"`
}
