package engine

import (
	"fmt"
	"math"

	"github.com/rotisserie/eris"

	"github.com/sells-group/referral-cli/internal/model"
)

// FactorScores holds the five category scores fed to Aggregate.
type FactorScores struct {
	Geographic float64
	Insurance  float64
	Clinical   float64
	Capacity   float64
	Quality    float64
}

// Signals carries the non-score inputs that can cap a recommendation.
type Signals struct {
	Urgency           model.Urgency
	UrgencyHandling   model.UrgencyMatrix
	PriorAuthRequired bool
}

// Aggregate combines factor scores into the overall decision: weighted sum,
// banding, then the urgency and prior-auth ceilings. Ceilings only ever
// lower the recommendation.
func Aggregate(scores FactorScores, scoring *model.ScoringRules, sig Signals) (model.OverallDecision, error) {
	var out model.OverallDecision
	if scoring == nil {
		return out, eris.Wrap(ErrConfigurationInvalid, "engine: scoring section missing")
	}

	weighted := round2(scores.Geographic*scoring.GeographicWeight +
		scores.Insurance*scoring.InsuranceWeight +
		scores.Clinical*scoring.ClinicalWeight +
		scores.Capacity*scoring.CapacityWeight +
		scores.Quality*scoring.QualityWeight)
	if math.IsNaN(weighted) || weighted < 0 || weighted > 100*(1+WeightTolerance) {
		return out, eris.Wrapf(ErrConfigurationInvalid, "engine: weighted score %.2f outside [0,100]", weighted)
	}
	weighted = math.Min(100, weighted)

	out.WeightedScore = weighted
	out.TotalScore = round2((scores.Geographic + scores.Insurance + scores.Clinical +
		scores.Capacity + scores.Quality) / 5)
	out.Reasons = []model.ReasonCode{}
	out.Notes = []string{}

	threshold := scoring.MinimumAcceptanceScore
	rec := Classify(weighted, scoring)
	switch rec {
	case model.RecommendationAccept:
		out.Notes = append(out.Notes, fmt.Sprintf("weighted score %.2f meets acceptance threshold %.2f", weighted, threshold))
	case model.RecommendationReview:
		out.Notes = append(out.Notes, fmt.Sprintf("weighted score %.2f within review band [%.2f, %.2f)",
			weighted, threshold-scoring.Band(), threshold))
	default:
		out.Notes = append(out.Notes, fmt.Sprintf("weighted score %.2f below review band floor %.2f",
			weighted, threshold-scoring.Band()))
	}

	urgency, err := model.ParseUrgency(string(sig.Urgency))
	switch {
	case err != nil:
		urgency = model.UrgencyRoutine
		out.Notes = append(out.Notes, fmt.Sprintf("urgency %q not recognized; treated as routine", sig.Urgency))
	case urgency == "":
		urgency = model.UrgencyRoutine
		out.Notes = append(out.Notes, "urgency not provided; treated as routine")
	}
	if entry := sig.UrgencyHandling.For(urgency); entry != model.RecommendationAccept {
		if capped := rec.AtMost(model.RecommendationReview); capped != rec {
			rec = capped
			out.Reasons = append(out.Reasons, model.ReasonUrgencyCeiling)
			out.Notes = append(out.Notes, fmt.Sprintf("urgency %s handling is %s; decision capped at review", urgency, entry))
		}
	}

	if sig.PriorAuthRequired {
		if capped := rec.AtMost(model.RecommendationReview); capped != rec {
			rec = capped
			out.Reasons = append(out.Reasons, model.ReasonPriorAuthDowngrade)
			out.Notes = append(out.Notes, "prior authorization required; decision capped at review")
		}
	}

	out.Recommendation = rec
	out.Confidence = Confidence(weighted, scoring)
	return out, nil
}

// Classify maps a weighted score to its band. The bands are contiguous:
// [T,100] accept, [T-B,T) review, below T-B reject.
func Classify(weighted float64, scoring *model.ScoringRules) model.Recommendation {
	threshold := scoring.MinimumAcceptanceScore
	switch {
	case weighted >= threshold:
		return model.RecommendationAccept
	case weighted >= threshold-scoring.Band():
		return model.RecommendationReview
	default:
		return model.RecommendationReject
	}
}

// Confidence measures how far the weighted score sits inside its band: 0
// on either edge of the band, 1 at its centre. The bands are [T,100] accept,
// [T-B,T) review and [0,T-B) reject, with the review floor clipped at 0. A
// band with no width has no interior, so a score in it gets 0.
func Confidence(weighted float64, scoring *model.ScoringRules) float64 {
	threshold := scoring.MinimumAcceptanceScore
	floor := math.Max(0, threshold-scoring.Band())

	var lo, hi float64
	switch {
	case weighted >= threshold:
		lo, hi = threshold, 100
	case weighted >= floor:
		lo, hi = floor, threshold
	default:
		lo, hi = 0, floor
	}

	half := (hi - lo) / 2
	if half <= 0 {
		return 0
	}
	d := math.Min(weighted-lo, hi-weighted)
	return round4(math.Max(0, math.Min(1, d/half)))
}
