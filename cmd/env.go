package main

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rotisserie/eris"

	"github.com/sells-group/referral-cli/internal/engine"
	"github.com/sells-group/referral-cli/internal/escalation"
	"github.com/sells-group/referral-cli/internal/intake"
	"github.com/sells-group/referral-cli/internal/metrics"
	"github.com/sells-group/referral-cli/internal/store"
)

// openStore opens and migrates the configured store, wrapped in the
// configuration cache.
func openStore(ctx context.Context) (store.Store, error) {
	var st store.Store
	switch cfg.Store.Driver {
	case "sqlite":
		s, err := store.NewSQLite(cfg.Store.DatabaseURL)
		if err != nil {
			return nil, err
		}
		st = s
	case "postgres":
		s, err := store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
		if err != nil {
			return nil, err
		}
		st = s
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}

	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, err
	}

	cached, err := store.NewCachedStore(st, cfg.Cache.MaxItems, time.Duration(cfg.Cache.ConfigTTLSecs)*time.Second)
	if err != nil {
		st.Close() //nolint:errcheck
		return nil, err
	}
	return cached, nil
}

// newNotifier posts escalations to the configured webhook, or logs them
// when none is set.
func newNotifier() escalation.Notifier {
	if cfg.Escalation.WebhookURL == "" {
		return escalation.LogNotifier{}
	}
	return escalation.NewWebhookNotifier(escalation.WebhookConfig{
		URL:         cfg.Escalation.WebhookURL,
		Timeout:     time.Duration(cfg.Escalation.TimeoutSecs) * time.Second,
		MaxAttempts: cfg.Escalation.MaxAttempts,
		RatePerSec:  cfg.Escalation.RatePerSec,
	})
}

// newService builds the intake service. st may be nil for simulations that
// evaluate an inline configuration without persisting anything.
func newService(st store.Store, reg prometheus.Registerer) *intake.Service {
	eng := engine.New(engine.WithBatchConcurrency(cfg.Batch.MaxConcurrentReferrals))
	opts := []intake.Option{intake.WithNotifier(newNotifier())}
	if reg != nil {
		opts = append(opts, intake.WithMetrics(metrics.New(reg)))
	}
	return intake.NewService(eng, st, opts...)
}
