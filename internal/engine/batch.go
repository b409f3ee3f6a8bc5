package engine

import (
	"context"

	"github.com/rotisserie/eris"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/referral-cli/internal/model"
)

// EvaluateBatch evaluates referrals against one snapshot of cfg taken
// before any work starts, so changes to cfg during the batch are not seen.
// Results keep input order. The first failure cancels the batch.
func (e *Engine) EvaluateBatch(ctx context.Context, referrals []model.ReferralRecord, cfg *model.ReferralConfiguration) ([]*model.ReferralDecisionFactors, error) {
	if err := checkConfiguration(cfg); err != nil {
		return nil, err
	}
	snapshot := cfg.Clone()

	results := make([]*model.ReferralDecisionFactors, len(referrals))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.batchConcurrency)
	for i := range referrals {
		g.Go(func() error {
			d, err := e.Evaluate(gctx, referrals[i], snapshot)
			if err != nil {
				return eris.Wrapf(err, "engine: referral %d (%s)", i, referrals[i].ID)
			}
			results[i] = d
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// EvaluateSnapshot evaluates a referral against a validated snapshot.
func (e *Engine) EvaluateSnapshot(ctx context.Context, referral model.ReferralRecord, s *Snapshot) (*model.ReferralDecisionFactors, error) {
	if s == nil {
		return nil, eris.Wrap(ErrConfigurationInvalid, "engine: snapshot is nil")
	}
	return e.Evaluate(ctx, referral, s.cfg)
}
