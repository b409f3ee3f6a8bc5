package engine

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/referral-cli/internal/model"
)

func TestValidateConfiguration_Valid(t *testing.T) {
	assert.NoError(t, ValidateConfiguration(testConfiguration()))
}

func TestValidateConfiguration_WeightSum(t *testing.T) {
	tests := []struct {
		name    string
		quality float64
		wantErr bool
	}{
		{"exact", 0.1, false},
		{"within tolerance high", 0.109, false},
		{"within tolerance low", 0.091, false},
		{"too high", 0.12, true},
		{"too low", 0.05, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfiguration()
			cfg.Scoring.QualityWeight = tt.quality
			err := ValidateConfiguration(cfg)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			var verr *ValidationErrors
			require.True(t, errors.As(err, &verr))
			assert.True(t, verr.Has(KindWeightSum))
		})
	}
}

func TestValidateConfiguration_Failures(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*model.ReferralConfiguration)
		kind   ValidationKind
		field  string
	}{
		{"missing id", func(c *model.ReferralConfiguration) { c.ID = " " }, KindMissingField, "id"},
		{"missing name", func(c *model.ReferralConfiguration) { c.Name = "" }, KindMissingField, "name"},
		{"missing geographic", func(c *model.ReferralConfiguration) { c.Geographic = nil }, KindMissingField, "geographic"},
		{"missing notifications", func(c *model.ReferralConfiguration) { c.Notifications = nil }, KindMissingField, "notifications"},
		{"missing scoring", func(c *model.ReferralConfiguration) { c.Scoring = nil }, KindMissingField, "scoring"},
		{"threshold above 100", func(c *model.ReferralConfiguration) { c.Scoring.MinimumAcceptanceScore = 120 }, KindRange, "scoring.minimumAcceptanceScore"},
		{"negative threshold", func(c *model.ReferralConfiguration) { c.Scoring.MinimumAcceptanceScore = -1 }, KindRange, "scoring.minimumAcceptanceScore"},
		{"negative weight", func(c *model.ReferralConfiguration) {
			c.Scoring.GeographicWeight = -0.1
			c.Scoring.ClinicalWeight = 0.6
		}, KindRange, "scoring.geographicWeight"},
		{"copay bounds inverted", func(c *model.ReferralConfiguration) {
			c.Insurance.MinimumCopay = 50
			c.Insurance.MaximumCopay = 20
		}, KindRange, "insurance.minimumCopay"},
		{"episode bounds inverted", func(c *model.ReferralConfiguration) { c.Clinical.MinEpisodeLength = 120 }, KindRange, "clinical.minEpisodeLength"},
		{"bad urgency entry", func(c *model.ReferralConfiguration) { c.Clinical.UrgencyHandling.Stat = "escalate" }, KindRange, "clinical.urgencyHandling.stat"},
		{"zero travel distance", func(c *model.ReferralConfiguration) { c.Geographic.MaxTravelDistance = 0 }, KindRange, "geographic.maxTravelDistance"},
		{"daily cap above weekly", func(c *model.ReferralConfiguration) { c.Capacity.MaxDailyReferrals = 50 }, KindRange, "capacity.maxDailyReferrals"},
		{"negative caseload", func(c *model.ReferralConfiguration) { c.Capacity.NurseCaseloadLimit = -1 }, KindRange, "capacity.nurseCaseloadLimit"},
		{"bad holiday", func(c *model.ReferralConfiguration) { c.Capacity.Holidays = []string{"12/25/2026"} }, KindRange, "capacity.holidays[0]"},
		{"rating above scale", func(c *model.ReferralConfiguration) { c.Quality.MinimumHospitalRating = 6 }, KindRange, "quality.minimumHospitalRating"},
		{"negative escalation", func(c *model.ReferralConfiguration) { c.Notifications.EscalationTimeHours = -2 }, KindRange, "notifications.escalationTimeHours"},
		{"review band too wide", func(c *model.ReferralConfiguration) {
			b := 150.0
			c.Scoring.ReviewBand = &b
		}, KindRange, "scoring.reviewBand"},
		{"service area without name", func(c *model.ReferralConfiguration) {
			c.Geographic.ServiceAreas = []model.ServiceArea{{ZipCodes: []string{"33606"}}}
		}, KindMissingField, "geographic.serviceAreas[0].name"},
		{"short boundary", func(c *model.ReferralConfiguration) {
			c.Geographic.ServiceAreas = []model.ServiceArea{{Name: "a", Boundary: [][]float64{{1, 2}, {3, 4}}}}
		}, KindRange, "geographic.serviceAreas[0].boundary"},
		{"NaN threshold", func(c *model.ReferralConfiguration) { c.Scoring.MinimumAcceptanceScore = math.NaN() }, KindRange, "scoring.minimumAcceptanceScore"},
		{"infinite threshold", func(c *model.ReferralConfiguration) { c.Scoring.MinimumAcceptanceScore = math.Inf(1) }, KindRange, "scoring.minimumAcceptanceScore"},
		{"NaN review band", func(c *model.ReferralConfiguration) {
			b := math.NaN()
			c.Scoring.ReviewBand = &b
		}, KindRange, "scoring.reviewBand"},
		{"NaN weight", func(c *model.ReferralConfiguration) { c.Scoring.CapacityWeight = math.NaN() }, KindRange, "scoring.capacityWeight"},
		{"NaN travel distance", func(c *model.ReferralConfiguration) { c.Geographic.MaxTravelDistance = math.NaN() }, KindRange, "geographic.maxTravelDistance"},
		{"infinite travel distance", func(c *model.ReferralConfiguration) { c.Geographic.MaxTravelDistance = math.Inf(1) }, KindRange, "geographic.maxTravelDistance"},
		{"NaN zip bonus", func(c *model.ReferralConfiguration) { c.Geographic.PreferredZipBonus = math.NaN() }, KindRange, "geographic.preferredZipBonus"},
		{"NaN origin", func(c *model.ReferralConfiguration) {
			c.Geographic.Origin = &model.Coordinate{Latitude: math.NaN(), Longitude: -82.45}
		}, KindRange, "geographic.origin"},
		{"NaN boundary point", func(c *model.ReferralConfiguration) {
			c.Geographic.ServiceAreas = []model.ServiceArea{{Name: "a", Boundary: [][]float64{{-82.5, 27.9}, {math.NaN(), 27.9}, {-82.4, 28.0}}}}
		}, KindRange, "geographic.serviceAreas[0].boundary"},
		{"NaN minimum copay", func(c *model.ReferralConfiguration) { c.Insurance.MinimumCopay = math.NaN() }, KindRange, "insurance.minimumCopay"},
		{"infinite maximum copay", func(c *model.ReferralConfiguration) { c.Insurance.MaximumCopay = math.Inf(1) }, KindRange, "insurance.maximumCopay"},
		{"NaN rating", func(c *model.ReferralConfiguration) { c.Quality.MinimumHospitalRating = math.NaN() }, KindRange, "quality.minimumHospitalRating"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfiguration()
			tt.mutate(cfg)

			err := ValidateConfiguration(cfg)
			require.Error(t, err)
			var verr *ValidationErrors
			require.True(t, errors.As(err, &verr))
			assert.True(t, verr.Has(tt.kind), "kinds: %v", verr.Fields)

			var fields []string
			for _, f := range verr.Fields {
				fields = append(fields, f.Field)
			}
			assert.Contains(t, fields, tt.field)
		})
	}
}

func TestValidateConfiguration_CollectsAll(t *testing.T) {
	cfg := testConfiguration()
	cfg.ID = ""
	cfg.Scoring.QualityWeight = 0.9
	cfg.Insurance.MinimumCopay = -5

	err := ValidateConfiguration(cfg)
	var verr *ValidationErrors
	require.True(t, errors.As(err, &verr))
	assert.True(t, verr.Has(KindMissingField))
	assert.True(t, verr.Has(KindWeightSum))
	assert.True(t, verr.Has(KindRange))
	assert.Contains(t, err.Error(), "configuration validation failed")
}

func TestValidateConfiguration_Nil(t *testing.T) {
	err := ValidateConfiguration(nil)
	var verr *ValidationErrors
	require.True(t, errors.As(err, &verr))
	assert.True(t, verr.Has(KindMissingField))
}

func TestNewSnapshot(t *testing.T) {
	cfg := testConfiguration()
	snap, err := NewSnapshot(cfg)
	require.NoError(t, err)
	assert.Equal(t, "cfg-tampa", snap.ID())
	assert.Equal(t, 3, snap.Version())

	got := snap.Config()
	got.Scoring.MinimumAcceptanceScore = 10
	assert.Equal(t, 75.0, snap.Config().Scoring.MinimumAcceptanceScore)

	cfg.Scoring.QualityWeight = 0.9
	_, err = NewSnapshot(cfg)
	require.Error(t, err)
}
