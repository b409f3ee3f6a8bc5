package engine

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/sells-group/referral-cli/internal/model"
)

// WeightTolerance is the allowed deviation of the weight sum from 1.0.
const WeightTolerance = 0.01

// ValidateConfiguration checks that a configuration is internally consistent
// before it is stored or used. It returns *ValidationErrors listing every
// failure, or nil.
func ValidateConfiguration(cfg *model.ReferralConfiguration) error {
	errs := &ValidationErrors{}
	if cfg == nil {
		errs.add(KindMissingField, "configuration", "is required")
		return errs
	}

	if strings.TrimSpace(cfg.ID) == "" {
		errs.add(KindMissingField, "id", "is required")
	}
	if strings.TrimSpace(cfg.Name) == "" {
		errs.add(KindMissingField, "name", "is required")
	}

	sections := []struct {
		name    string
		present bool
	}{
		{"geographic", cfg.Geographic != nil},
		{"insurance", cfg.Insurance != nil},
		{"clinical", cfg.Clinical != nil},
		{"capacity", cfg.Capacity != nil},
		{"quality", cfg.Quality != nil},
		{"notifications", cfg.Notifications != nil},
		{"scoring", cfg.Scoring != nil},
	}
	for _, s := range sections {
		if !s.present {
			errs.add(KindMissingField, s.name, "section is required")
		}
	}

	if cfg.Scoring != nil {
		validateScoring(errs, cfg.Scoring)
	}
	if cfg.Geographic != nil {
		validateGeographic(errs, cfg.Geographic)
	}
	if cfg.Insurance != nil {
		validateInsurance(errs, cfg.Insurance)
	}
	if cfg.Clinical != nil {
		validateClinical(errs, cfg.Clinical)
	}
	if cfg.Capacity != nil {
		validateCapacity(errs, cfg.Capacity)
	}
	if cfg.Quality != nil {
		validateQuality(errs, cfg.Quality)
	}
	if cfg.Notifications != nil && cfg.Notifications.EscalationTimeHours < 0 {
		errs.add(KindRange, "notifications.escalationTimeHours", "must be >= 0")
	}

	return errs.orNil()
}

func validateScoring(errs *ValidationErrors, s *model.ScoringRules) {
	weights := []struct {
		name string
		w    float64
	}{
		{"scoring.geographicWeight", s.GeographicWeight},
		{"scoring.insuranceWeight", s.InsuranceWeight},
		{"scoring.clinicalWeight", s.ClinicalWeight},
		{"scoring.capacityWeight", s.CapacityWeight},
		{"scoring.qualityWeight", s.QualityWeight},
	}
	for _, w := range weights {
		if outside(w.w, 0, 1) {
			errs.add(KindRange, w.name, "must be between 0 and 1")
		}
	}

	if sum := s.WeightSum(); !weightSumValid(sum) {
		errs.add(KindWeightSum, "scoring", "weights must sum to 1.0 (±%.2f), got %.4f", WeightTolerance, sum)
	}

	if outside(s.MinimumAcceptanceScore, 0, 100) {
		errs.add(KindRange, "scoring.minimumAcceptanceScore", "must be between 0 and 100")
	}
	if outside(s.Band(), 0, 100) {
		errs.add(KindRange, "scoring.reviewBand", "must be between 0 and 100")
	}
}

func weightSumValid(sum float64) bool {
	return finite(sum) && math.Abs(sum-1) <= WeightTolerance
}

// finite reports whether v is neither NaN nor infinite. NaN fails every
// ordered comparison, so range checks must test it explicitly.
func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// outside reports whether v is non-finite or not within [lo, hi].
func outside(v, lo, hi float64) bool {
	return !finite(v) || v < lo || v > hi
}

func validateGeographic(errs *ValidationErrors, g *model.GeographicRules) {
	if !finite(g.MaxTravelDistance) || g.MaxTravelDistance <= 0 {
		errs.add(KindRange, "geographic.maxTravelDistance", "must be a finite number > 0")
	}
	if outside(g.PreferredZipBonus, 0, 100) {
		errs.add(KindRange, "geographic.preferredZipBonus", "must be between 0 and 100")
	}
	if g.Origin != nil && !validCoordinate(*g.Origin) {
		errs.add(KindRange, "geographic.origin", "latitude must be within ±90 and longitude within ±180")
	}
	for i, area := range g.ServiceAreas {
		if strings.TrimSpace(area.Name) == "" {
			errs.add(KindMissingField, fieldIndex("geographic.serviceAreas", i, "name"), "is required")
		}
		if len(area.Boundary) == 0 {
			continue
		}
		if len(area.Boundary) < 3 {
			errs.add(KindRange, fieldIndex("geographic.serviceAreas", i, "boundary"), "needs at least 3 points")
		}
		for _, p := range area.Boundary {
			if len(p) != 2 || !validCoordinate(model.Coordinate{Longitude: p[0], Latitude: p[1]}) {
				errs.add(KindRange, fieldIndex("geographic.serviceAreas", i, "boundary"), "points must be [longitude, latitude] pairs within ±180/±90")
				break
			}
		}
	}
}

func validCoordinate(c model.Coordinate) bool {
	return !outside(c.Latitude, -90, 90) && !outside(c.Longitude, -180, 180)
}

func validateInsurance(errs *ValidationErrors, ins *model.InsuranceRules) {
	if !finite(ins.MinimumCopay) || ins.MinimumCopay < 0 {
		errs.add(KindRange, "insurance.minimumCopay", "must be a finite number >= 0")
	}
	if !finite(ins.MaximumCopay) || ins.MaximumCopay < 0 {
		errs.add(KindRange, "insurance.maximumCopay", "must be a finite number >= 0")
	}
	if ins.MaximumCopay > 0 && ins.MinimumCopay > ins.MaximumCopay {
		errs.add(KindRange, "insurance.minimumCopay", "must be <= maximumCopay")
	}
}

func validateClinical(errs *ValidationErrors, c *model.ClinicalRules) {
	if c.MinEpisodeLength < 0 {
		errs.add(KindRange, "clinical.minEpisodeLength", "must be >= 0")
	}
	if c.MaxEpisodeLength < 0 {
		errs.add(KindRange, "clinical.maxEpisodeLength", "must be >= 0")
	}
	if c.MaxEpisodeLength > 0 && c.MinEpisodeLength > c.MaxEpisodeLength {
		errs.add(KindRange, "clinical.minEpisodeLength", "must be <= maxEpisodeLength")
	}

	entries := []struct {
		level string
		r     model.Recommendation
	}{
		{"routine", c.UrgencyHandling.Routine},
		{"urgent", c.UrgencyHandling.Urgent},
		{"stat", c.UrgencyHandling.Stat},
	}
	for _, e := range entries {
		if e.r != "" && !e.r.Valid() {
			errs.add(KindRange, "clinical.urgencyHandling."+e.level, "must be accept, review or reject, got %q", e.r)
		}
	}
}

func validateCapacity(errs *ValidationErrors, c *model.CapacityRules) {
	limits := []struct {
		name string
		v    int
	}{
		{"capacity.maxDailyReferrals", c.MaxDailyReferrals},
		{"capacity.maxWeeklyReferrals", c.MaxWeeklyReferrals},
		{"capacity.nurseCaseloadLimit", c.NurseCaseloadLimit},
		{"capacity.therapistCaseloadLimit", c.TherapistCaseloadLimit},
	}
	for _, l := range limits {
		if l.v < 0 {
			errs.add(KindRange, l.name, "must be >= 0")
		}
	}
	if c.MaxDailyReferrals > 0 && c.MaxWeeklyReferrals > 0 && c.MaxDailyReferrals > c.MaxWeeklyReferrals {
		errs.add(KindRange, "capacity.maxDailyReferrals", "must be <= maxWeeklyReferrals")
	}
	for i, h := range c.Holidays {
		if _, err := time.Parse(time.DateOnly, h); err != nil {
			errs.add(KindRange, fieldIndex("capacity.holidays", i, ""), "must be a YYYY-MM-DD date, got %q", h)
		}
	}
}

func validateQuality(errs *ValidationErrors, q *model.QualityRules) {
	if outside(q.MinimumHospitalRating, 0, maxSourceRating) {
		errs.add(KindRange, "quality.minimumHospitalRating", "must be between 0 and %.0f", maxSourceRating)
	}
}

func fieldIndex(prefix string, i int, suffix string) string {
	if suffix == "" {
		return fmt.Sprintf("%s[%d]", prefix, i)
	}
	return fmt.Sprintf("%s[%d].%s", prefix, i, suffix)
}

// Snapshot is an immutable, validated copy of a configuration. Batches
// capture one snapshot at start so later updates to the source never leak
// into an in-flight batch.
type Snapshot struct {
	cfg *model.ReferralConfiguration
}

// NewSnapshot validates cfg and returns a deep-copied snapshot of it.
func NewSnapshot(cfg *model.ReferralConfiguration) (*Snapshot, error) {
	if err := ValidateConfiguration(cfg); err != nil {
		return nil, err
	}
	return &Snapshot{cfg: cfg.Clone()}, nil
}

// ID returns the configuration ID.
func (s *Snapshot) ID() string { return s.cfg.ID }

// Version returns the configuration version.
func (s *Snapshot) Version() int { return s.cfg.Version }

// Config returns a deep copy of the snapshotted configuration.
func (s *Snapshot) Config() *model.ReferralConfiguration { return s.cfg.Clone() }
