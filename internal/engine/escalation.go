package engine

import "github.com/sells-group/referral-cli/internal/model"

// ShouldEscalate reports whether the notification rules route this
// decision to the medical social worker.
func ShouldEscalate(d *model.ReferralDecisionFactors, n *model.NotificationRules) bool {
	if d == nil || n == nil {
		return false
	}
	switch d.Overall.Recommendation {
	case model.RecommendationReject:
		return n.NotifyMSWOnReject
	case model.RecommendationReview:
		return n.NotifyMSWOnReview
	case model.RecommendationAccept:
		return n.NotifyMSWOnAccept
	}
	return false
}
