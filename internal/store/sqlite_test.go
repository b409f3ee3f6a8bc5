package store

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/referral-cli/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func TestSQLite_MigrateIdempotent(t *testing.T) {
	st := newTestSQLiteStore(t)
	require.NoError(t, st.Migrate(context.Background()))
	require.NoError(t, st.Ping(context.Background()))
}

func TestSQLite_SaveAndGetConfiguration(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	saved, err := st.SaveConfiguration(ctx, testConfig("cfg-tampa"))
	require.NoError(t, err)
	assert.Equal(t, 1, saved.Version)
	assert.False(t, saved.CreatedAt.IsZero())

	got, err := st.GetConfiguration(ctx, "cfg-tampa")
	require.NoError(t, err)
	assert.Equal(t, 1, got.Version)
	assert.Equal(t, "Tampa Bay Home Health", got.Name)
	assert.Equal(t, []string{"33601"}, got.Geographic.ExcludedZipCodes)
	require.NotNil(t, got.Scoring.ReviewBand)
	assert.Equal(t, 10.0, *got.Scoring.ReviewBand)
}

func TestSQLite_SaveConfiguration_BumpsVersion(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	first, err := st.SaveConfiguration(ctx, testConfig("cfg-tampa"))
	require.NoError(t, err)

	update := testConfig("cfg-tampa")
	update.Scoring.MinimumAcceptanceScore = 80
	second, err := st.SaveConfiguration(ctx, update)
	require.NoError(t, err)
	assert.Equal(t, 2, second.Version)
	assert.True(t, first.CreatedAt.Equal(second.CreatedAt))

	latest, err := st.GetConfiguration(ctx, "cfg-tampa")
	require.NoError(t, err)
	assert.Equal(t, 2, latest.Version)
	assert.Equal(t, 80.0, latest.Scoring.MinimumAcceptanceScore)

	v1, err := st.GetConfigurationVersion(ctx, "cfg-tampa", 1)
	require.NoError(t, err)
	assert.Equal(t, 75.0, v1.Scoring.MinimumAcceptanceScore)
}

func TestSQLite_GetConfiguration_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := st.GetConfiguration(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)

	_, err = st.GetConfigurationVersion(ctx, "missing", 1)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSQLite_ListConfigurations_LatestOnly(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	for _, id := range []string{"cfg-b", "cfg-a", "cfg-b"} {
		_, err := st.SaveConfiguration(ctx, testConfig(id))
		require.NoError(t, err)
	}

	list, err := st.ListConfigurations(ctx, ListFilter{})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "cfg-a", list[0].ID)
	assert.Equal(t, 1, list[0].Version)
	assert.Equal(t, "cfg-b", list[1].ID)
	assert.Equal(t, 2, list[1].Version)

	page, err := st.ListConfigurations(ctx, ListFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "cfg-b", page[0].ID)
}

func TestSQLite_Decisions(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	cfg, err := st.SaveConfiguration(ctx, testConfig("cfg-tampa"))
	require.NoError(t, err)

	older := testDecision("ref-1", cfg, model.RecommendationReview, 70)
	older.CreatedAt = time.Now().UTC().Add(-time.Hour)
	require.NoError(t, st.SaveDecision(ctx, older))

	newer := testDecision("ref-1", cfg, model.RecommendationAccept, 88.5)
	other := testDecision("ref-2", cfg, model.RecommendationReject, 10)
	require.NoError(t, st.SaveDecisions(ctx, []DecisionRecord{newer, other}))

	got, err := st.ListDecisions(ctx, "ref-1", ListFilter{})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, newer.ID, got[0].ID)
	assert.Equal(t, model.RecommendationAccept, got[0].Recommendation)
	assert.Equal(t, 88.5, got[0].WeightedScore)
	assert.Equal(t, cfg.Version, got[0].ConfigurationVersion)
	assert.Equal(t, ConfigHash(cfg), got[0].ConfigHash)
	require.NotNil(t, got[0].Decision)
	assert.Equal(t, "ref-1", got[0].Decision.ReferralID)
	assert.Equal(t, older.ID, got[1].ID)

	none, err := st.ListDecisions(ctx, "ref-unknown", ListFilter{})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSQLite_SaveDecisions_Empty(t *testing.T) {
	st := newTestSQLiteStore(t)
	require.NoError(t, st.SaveDecisions(context.Background(), nil))
}

func TestSQLite_ConcurrentDecisionWrites(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	cfg := testConfig("cfg-tampa")
	cfg.Version = 1

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, st.SaveDecision(ctx, testDecision("ref-c", cfg, model.RecommendationAccept, 90)))
		}()
	}
	wg.Wait()

	got, err := st.ListDecisions(ctx, "ref-c", ListFilter{})
	require.NoError(t, err)
	assert.Len(t, got, 10)
}
