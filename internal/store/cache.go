package store

import (
	"context"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/rotisserie/eris"

	"github.com/sells-group/referral-cli/internal/model"
)

// CachedStore wraps a Store with an in-process cache of the latest version
// of each configuration. Cached values are cloned on the way in and out so
// callers can never mutate a shared copy.
type CachedStore struct {
	Store
	cache *ristretto.Cache[string, *model.ReferralConfiguration]
	ttl   time.Duration
}

// NewCachedStore wraps next. maxItems bounds the number of cached
// configurations and ttl bounds how stale an entry may become when another
// process saves a newer version.
func NewCachedStore(next Store, maxItems int64, ttl time.Duration) (*CachedStore, error) {
	if maxItems <= 0 {
		maxItems = 1000
	}
	c, err := ristretto.NewCache(&ristretto.Config[string, *model.ReferralConfiguration]{
		NumCounters: maxItems * 10,
		MaxCost:     maxItems,
		BufferItems: 64,
	})
	if err != nil {
		return nil, eris.Wrap(err, "store: create configuration cache")
	}
	return &CachedStore{Store: next, cache: c, ttl: ttl}, nil
}

func (s *CachedStore) GetConfiguration(ctx context.Context, id string) (*model.ReferralConfiguration, error) {
	if cfg, ok := s.cache.Get(id); ok {
		return cfg.Clone(), nil
	}
	cfg, err := s.Store.GetConfiguration(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cache.SetWithTTL(id, cfg.Clone(), 1, s.ttl)
	return cfg, nil
}

func (s *CachedStore) SaveConfiguration(ctx context.Context, cfg *model.ReferralConfiguration) (*model.ReferralConfiguration, error) {
	s.cache.Del(cfg.ID)
	saved, err := s.Store.SaveConfiguration(ctx, cfg)
	if err != nil {
		return nil, err
	}
	s.cache.SetWithTTL(saved.ID, saved.Clone(), 1, s.ttl)
	return saved, nil
}

// Wait blocks until pending cache writes are applied.
func (s *CachedStore) Wait() {
	s.cache.Wait()
}

func (s *CachedStore) Close() error {
	s.cache.Close()
	return s.Store.Close()
}
