// Package escalation delivers MSW escalations for decisions the
// notification rules route to a medical social worker.
package escalation

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/referral-cli/internal/model"
)

// Payload is the body delivered for one escalation.
type Payload struct {
	Decision            *model.ReferralDecisionFactors `json:"decision"`
	Recommendation      model.Recommendation           `json:"recommendation"`
	EscalationTimeHours int                            `json:"escalationTimeHours"`
	FiredAt             time.Time                      `json:"firedAt"`
}

// NewPayload builds the payload for a decision. escalationTimeHours is the
// SLA hint from the configuration's notification rules.
func NewPayload(d *model.ReferralDecisionFactors, n *model.NotificationRules, now time.Time) Payload {
	p := Payload{
		Decision:       d,
		Recommendation: d.Overall.Recommendation,
		FiredAt:        now.UTC(),
	}
	if n != nil {
		p.EscalationTimeHours = n.EscalationTimeHours
	}
	return p
}

// Notifier delivers escalations.
type Notifier interface {
	Notify(ctx context.Context, p Payload) error
}

// LogNotifier writes escalations to the global logger. It is used when no
// webhook is configured.
type LogNotifier struct{}

// Notify implements Notifier.
func (LogNotifier) Notify(_ context.Context, p Payload) error {
	zap.L().Info("escalation: msw notification",
		zap.String("referral_id", p.Decision.ReferralID),
		zap.String("configuration_id", p.Decision.ConfigurationID),
		zap.String("recommendation", string(p.Recommendation)),
		zap.Int("escalation_time_hours", p.EscalationTimeHours),
	)
	return nil
}
