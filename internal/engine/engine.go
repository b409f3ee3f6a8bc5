// Package engine evaluates referrals against a validated configuration:
// hard gates, five category scorers, then weighted aggregation into an
// auditable decision record. It performs no I/O.
package engine

import (
	"context"

	"github.com/rotisserie/eris"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/referral-cli/internal/model"
)

// DefaultBatchConcurrency bounds parallel evaluations in EvaluateBatch.
const DefaultBatchConcurrency = 8

// Engine evaluates referrals. The zero value is not usable; call New.
type Engine struct {
	batchConcurrency int
}

// Option configures an Engine.
type Option func(*Engine)

// WithBatchConcurrency sets the number of referrals evaluated in parallel
// by EvaluateBatch. Values below 1 are ignored.
func WithBatchConcurrency(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.batchConcurrency = n
		}
	}
}

// New creates an Engine.
func New(opts ...Option) *Engine {
	e := &Engine{batchConcurrency: DefaultBatchConcurrency}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Evaluate produces the decision record for one referral. The referral and
// configuration are only read. An inconsistent configuration fails with
// ErrConfigurationInvalid; missing referral data never fails.
func (e *Engine) Evaluate(ctx context.Context, referral model.ReferralRecord, cfg *model.ReferralConfiguration) (*model.ReferralDecisionFactors, error) {
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "engine: evaluate")
	}
	if err := checkConfiguration(cfg); err != nil {
		return nil, err
	}

	out := &model.ReferralDecisionFactors{
		ReferralID:           referral.ID,
		ConfigurationID:      cfg.ID,
		ConfigurationVersion: cfg.Version,
	}

	if g := EvaluateGates(&referral, cfg); g != nil {
		return gatedDecision(out, g), nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		out.Geographic = ScoreGeographic(&referral, cfg.Geographic)
		return gctx.Err()
	})
	g.Go(func() error {
		out.Insurance = ScoreInsurance(&referral, cfg.Insurance)
		return gctx.Err()
	})
	g.Go(func() error {
		out.Clinical = ScoreClinical(&referral, cfg.Clinical)
		return gctx.Err()
	})
	g.Go(func() error {
		out.Capacity = ScoreCapacity(&referral, cfg.Capacity)
		return gctx.Err()
	})
	g.Go(func() error {
		out.Quality = ScoreQuality(&referral, cfg.Quality)
		return gctx.Err()
	})
	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "engine: score factors")
	}

	overall, err := Aggregate(FactorScores{
		Geographic: out.Geographic.Score,
		Insurance:  out.Insurance.Score,
		Clinical:   out.Clinical.Score,
		Capacity:   out.Capacity.Score,
		Quality:    out.Quality.Score,
	}, cfg.Scoring, Signals{
		Urgency:           referral.Urgency,
		UrgencyHandling:   cfg.Clinical.UrgencyHandling,
		PriorAuthRequired: out.Insurance.PriorAuthRequired,
	})
	if err != nil {
		return nil, err
	}
	if neutralApplied(out) {
		overall.Reasons = append([]model.ReasonCode{model.ReasonNeutralScore}, overall.Reasons...)
	}
	out.Overall = overall
	return out, nil
}

// checkConfiguration re-checks what a corrupted stored configuration could
// break: section presence, the weight sum, travel distance and banding.
func checkConfiguration(cfg *model.ReferralConfiguration) error {
	if cfg == nil {
		return eris.Wrap(ErrConfigurationInvalid, "engine: configuration is nil")
	}
	if cfg.Geographic == nil || cfg.Insurance == nil || cfg.Clinical == nil ||
		cfg.Capacity == nil || cfg.Quality == nil || cfg.Scoring == nil {
		return eris.Wrapf(ErrConfigurationInvalid, "engine: configuration %s is missing a section", cfg.ID)
	}
	if sum := cfg.Scoring.WeightSum(); !weightSumValid(sum) {
		return eris.Wrapf(ErrConfigurationInvalid, "engine: configuration %s weights sum to %.4f", cfg.ID, sum)
	}
	if !finite(cfg.Geographic.MaxTravelDistance) || cfg.Geographic.MaxTravelDistance <= 0 {
		return eris.Wrapf(ErrConfigurationInvalid, "engine: configuration %s has no max travel distance", cfg.ID)
	}
	if outside(cfg.Scoring.MinimumAcceptanceScore, 0, 100) || outside(cfg.Scoring.Band(), 0, 100) {
		return eris.Wrapf(ErrConfigurationInvalid, "engine: configuration %s has an invalid acceptance threshold or review band", cfg.ID)
	}
	return nil
}

func gatedDecision(out *model.ReferralDecisionFactors, g *model.GateResult) *model.ReferralDecisionFactors {
	out.Gate = g
	out.Geographic = model.GeographicFactor{CategoryScore: gated()}
	out.Insurance = model.InsuranceFactor{CategoryScore: gated()}
	out.Clinical = model.ClinicalFactor{CategoryScore: gated()}
	out.Capacity = model.CapacityFactor{CategoryScore: gated()}
	out.Quality = model.QualityFactor{CategoryScore: gated()}
	out.Overall = model.OverallDecision{
		Recommendation: model.RecommendationReject,
		Confidence:     1,
		Reasons:        []model.ReasonCode{model.ReasonGateMatch},
		Notes:          []string{"gate " + string(g.Gate) + ": " + g.Note},
	}
	return out
}

func neutralApplied(d *model.ReferralDecisionFactors) bool {
	for _, c := range []model.CategoryScore{
		d.Geographic.CategoryScore, d.Insurance.CategoryScore, d.Clinical.CategoryScore,
		d.Capacity.CategoryScore, d.Quality.CategoryScore,
	} {
		for _, n := range c.Notes {
			if n == NoteInsufficientData {
				return true
			}
		}
	}
	return false
}
