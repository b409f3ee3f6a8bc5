// Package intake composes the decision engine with configuration storage,
// the decision audit trail, MSW escalation and metrics.
package intake

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/referral-cli/internal/engine"
	"github.com/sells-group/referral-cli/internal/escalation"
	"github.com/sells-group/referral-cli/internal/metrics"
	"github.com/sells-group/referral-cli/internal/model"
	"github.com/sells-group/referral-cli/internal/store"
)

// ErrNoConfiguration is returned when an evaluation request names neither a
// stored configuration nor an inline one.
var ErrNoConfiguration = eris.New("intake: configId or config is required")

// Service runs evaluations end to end. Persistence and escalation are best
// effort: a failure is logged and counted but the decision is still returned.
type Service struct {
	engine   *engine.Engine
	store    store.Store
	notifier escalation.Notifier
	metrics  *metrics.Metrics
	now      func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithNotifier sets the escalation notifier. Without one, escalations are
// written to the log.
func WithNotifier(n escalation.Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// NewService creates a Service.
func NewService(eng *engine.Engine, st store.Store, opts ...Option) *Service {
	s := &Service{
		engine:   eng,
		store:    st,
		notifier: escalation.LogNotifier{},
		now:      time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// EvaluateRequest selects a configuration and the referral to evaluate.
// Config, when set, is evaluated inline and takes precedence over ConfigID.
type EvaluateRequest struct {
	ConfigID string                       `json:"configId,omitempty"`
	Config   *model.ReferralConfiguration `json:"config,omitempty"`
	Referral model.ReferralRecord         `json:"referral"`
	// DryRun evaluates without persisting the decision or escalating.
	DryRun bool `json:"dryRun,omitempty"`
}

// BatchRequest evaluates many referrals against one configuration.
type BatchRequest struct {
	ConfigID  string                       `json:"configId,omitempty"`
	Config    *model.ReferralConfiguration `json:"config,omitempty"`
	Referrals []model.ReferralRecord       `json:"referrals"`
	DryRun    bool                         `json:"dryRun,omitempty"`
}

// ValidateConfiguration checks cfg without storing it.
func (s *Service) ValidateConfiguration(cfg *model.ReferralConfiguration) error {
	return engine.ValidateConfiguration(cfg)
}

// SaveConfiguration validates cfg and stores it as the next version of its
// ID. Invalid configurations are never stored.
func (s *Service) SaveConfiguration(ctx context.Context, cfg *model.ReferralConfiguration) (*model.ReferralConfiguration, error) {
	if err := engine.ValidateConfiguration(cfg); err != nil {
		return nil, err
	}
	saved, err := s.store.SaveConfiguration(ctx, cfg)
	if err != nil {
		return nil, eris.Wrap(err, "intake: save configuration")
	}
	zap.L().Info("intake: configuration saved",
		zap.String("configuration_id", saved.ID),
		zap.Int("version", saved.Version),
	)
	return saved, nil
}

// GetConfiguration returns the latest version of a stored configuration.
func (s *Service) GetConfiguration(ctx context.Context, id string) (*model.ReferralConfiguration, error) {
	return s.store.GetConfiguration(ctx, id)
}

// ListConfigurations returns the latest version of each stored configuration.
func (s *Service) ListConfigurations(ctx context.Context, filter store.ListFilter) ([]model.ReferralConfiguration, error) {
	return s.store.ListConfigurations(ctx, filter)
}

// ListDecisions returns the audit trail for one referral, newest first.
func (s *Service) ListDecisions(ctx context.Context, referralID string, filter store.ListFilter) ([]store.DecisionRecord, error) {
	return s.store.ListDecisions(ctx, referralID, filter)
}

// Evaluate runs one referral through the engine.
func (s *Service) Evaluate(ctx context.Context, req EvaluateRequest) (*model.ReferralDecisionFactors, error) {
	cfg, err := s.resolve(ctx, req.ConfigID, req.Config)
	if err != nil {
		return nil, err
	}

	start := s.now()
	d, err := s.engine.Evaluate(ctx, req.Referral, cfg)
	if err != nil {
		return nil, eris.Wrapf(err, "intake: evaluate referral %s", req.Referral.ID)
	}
	s.metrics.ObserveEvaluateLatency(s.now().Sub(start))
	s.metrics.ObserveDecision(d)
	logDecision(d, req.DryRun)

	if !req.DryRun {
		s.persist(ctx, []*model.ReferralDecisionFactors{d}, cfg)
	}
	s.escalate(ctx, d, cfg.Notifications, req.DryRun)
	return d, nil
}

// EvaluateBatch runs referrals against one configuration snapshot. Results
// are in input order.
func (s *Service) EvaluateBatch(ctx context.Context, req BatchRequest) ([]*model.ReferralDecisionFactors, error) {
	cfg, err := s.resolve(ctx, req.ConfigID, req.Config)
	if err != nil {
		return nil, err
	}

	start := s.now()
	out, err := s.engine.EvaluateBatch(ctx, req.Referrals, cfg)
	if err != nil {
		return nil, eris.Wrap(err, "intake: evaluate batch")
	}
	elapsed := s.now().Sub(start)
	s.metrics.ObserveBatch(len(out))
	for _, d := range out {
		s.metrics.ObserveDecision(d)
	}
	zap.L().Info("intake: batch evaluated",
		zap.String("configuration_id", cfg.ID),
		zap.Int("referrals", len(out)),
		zap.Duration("elapsed", elapsed),
		zap.Bool("dry_run", req.DryRun),
	)

	if !req.DryRun {
		s.persist(ctx, out, cfg)
	}
	for _, d := range out {
		s.escalate(ctx, d, cfg.Notifications, req.DryRun)
	}
	return out, nil
}

// resolve returns the inline configuration (fully validated) or loads the
// stored one by ID.
func (s *Service) resolve(ctx context.Context, id string, inline *model.ReferralConfiguration) (*model.ReferralConfiguration, error) {
	if inline != nil {
		if err := engine.ValidateConfiguration(inline); err != nil {
			return nil, err
		}
		return inline, nil
	}
	if strings.TrimSpace(id) == "" {
		return nil, ErrNoConfiguration
	}
	cfg, err := s.store.GetConfiguration(ctx, id)
	if err != nil {
		return nil, eris.Wrapf(err, "intake: load configuration %s", id)
	}
	return cfg, nil
}

func (s *Service) persist(ctx context.Context, ds []*model.ReferralDecisionFactors, cfg *model.ReferralConfiguration) {
	if len(ds) == 0 {
		return
	}
	recs := make([]store.DecisionRecord, len(ds))
	for i, d := range ds {
		recs[i] = store.NewDecisionRecord(d, cfg)
	}

	var err error
	if len(recs) == 1 {
		err = s.store.SaveDecision(ctx, recs[0])
	} else {
		err = s.store.SaveDecisions(ctx, recs)
	}
	if err != nil {
		zap.L().Error("intake: persist decisions failed",
			zap.String("configuration_id", cfg.ID),
			zap.Int("decisions", len(recs)),
			zap.Error(err),
		)
	}
}

func (s *Service) escalate(ctx context.Context, d *model.ReferralDecisionFactors, n *model.NotificationRules, dryRun bool) {
	if !engine.ShouldEscalate(d, n) {
		return
	}
	if dryRun {
		s.metrics.IncrementEscalation("skipped")
		return
	}
	if err := s.notifier.Notify(ctx, escalation.NewPayload(d, n, s.now())); err != nil {
		s.metrics.IncrementEscalation("failed")
		zap.L().Warn("intake: escalation failed",
			zap.String("referral_id", d.ReferralID),
			zap.String("recommendation", string(d.Overall.Recommendation)),
			zap.Error(err),
		)
		return
	}
	s.metrics.IncrementEscalation("sent")
}

func logDecision(d *model.ReferralDecisionFactors, dryRun bool) {
	fields := []zap.Field{
		zap.String("referral_id", d.ReferralID),
		zap.String("configuration_id", d.ConfigurationID),
		zap.Int("configuration_version", d.ConfigurationVersion),
		zap.String("recommendation", string(d.Overall.Recommendation)),
		zap.Float64("weighted_score", d.Overall.WeightedScore),
		zap.Float64("confidence", d.Overall.Confidence),
		zap.Bool("dry_run", dryRun),
	}
	if d.Gate != nil {
		fields = append(fields, zap.String("gate", string(d.Gate.Gate)))
	}
	zap.L().Info("intake: referral evaluated", fields...)
}
