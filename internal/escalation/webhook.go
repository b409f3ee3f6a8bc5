package escalation

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/referral-cli/internal/resilience"
)

// WebhookConfig configures a WebhookNotifier.
type WebhookConfig struct {
	URL         string
	Timeout     time.Duration
	MaxAttempts int
	// RatePerSec limits outbound posts. Zero means unlimited.
	RatePerSec float64
}

// WebhookNotifier posts escalation payloads as JSON. Temporary failures are
// retried; repeated failures trip a breaker so a dead endpoint does not
// slow every evaluation.
type WebhookNotifier struct {
	url     string
	client  *http.Client
	limiter *rate.Limiter
	backoff resilience.Backoff
	breaker *resilience.Breaker
}

// NewWebhookNotifier creates a WebhookNotifier.
func NewWebhookNotifier(cfg WebhookConfig) *WebhookNotifier {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	limit := rate.Inf
	if cfg.RatePerSec > 0 {
		limit = rate.Limit(cfg.RatePerSec)
	}
	backoff := resilience.NewBackoff(cfg.MaxAttempts)
	backoff.OnRetry = resilience.LogRetry("escalation webhook")

	return &WebhookNotifier{
		url:     cfg.URL,
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(limit, 1),
		backoff: backoff,
		breaker: resilience.NewBreaker(5, 30*time.Second),
	}
}

// Notify implements Notifier.
func (w *WebhookNotifier) Notify(ctx context.Context, p Payload) error {
	body, err := json.Marshal(p)
	if err != nil {
		return eris.Wrap(err, "escalation: marshal payload")
	}

	err = w.breaker.Do(ctx, func(ctx context.Context) error {
		return resilience.Retry(ctx, w.backoff, func(ctx context.Context) error {
			return w.post(ctx, body)
		})
	})
	if err != nil {
		return eris.Wrapf(err, "escalation: notify referral %s", p.Decision.ReferralID)
	}

	zap.L().Info("escalation: webhook delivered",
		zap.String("referral_id", p.Decision.ReferralID),
		zap.String("recommendation", string(p.Recommendation)),
	)
	return nil
}

func (w *WebhookNotifier) post(ctx context.Context, body []byte) error {
	if err := w.limiter.Wait(ctx); err != nil {
		return eris.Wrap(err, "escalation: rate limit wait")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return eris.Wrap(err, "escalation: create request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "escalation: send request")
	}
	defer resp.Body.Close() //nolint:errcheck
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &resilience.StatusError{Target: "escalation webhook", Code: resp.StatusCode}
	}
	return nil
}
