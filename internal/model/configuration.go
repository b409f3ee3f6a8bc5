package model

import (
	"slices"
	"time"
)

// ReferralConfiguration is a named, versioned business-rule set used to
// evaluate incoming referrals. Sub-sections are pointers so an absent
// section can be told apart from a zero-valued one.
type ReferralConfiguration struct {
	ID          string    `json:"id" yaml:"id"`
	Name        string    `json:"name" yaml:"name"`
	Version     int       `json:"version" yaml:"version"`
	Description string    `json:"description,omitempty" yaml:"description,omitempty"`
	CreatedAt   time.Time `json:"createdAt,omitzero" yaml:"createdAt,omitempty"`
	UpdatedAt   time.Time `json:"updatedAt,omitzero" yaml:"updatedAt,omitempty"`

	Geographic    *GeographicRules   `json:"geographic" yaml:"geographic"`
	Insurance     *InsuranceRules    `json:"insurance" yaml:"insurance"`
	Clinical      *ClinicalRules     `json:"clinical" yaml:"clinical"`
	Capacity      *CapacityRules     `json:"capacity" yaml:"capacity"`
	Quality       *QualityRules      `json:"quality" yaml:"quality"`
	Notifications *NotificationRules `json:"notifications" yaml:"notifications"`
	Scoring       *ScoringRules      `json:"scoring" yaml:"scoring"`
}

// GeographicRules controls travel distance and zip code handling.
type GeographicRules struct {
	MaxTravelDistance float64       `json:"maxTravelDistance" yaml:"maxTravelDistance"`
	ExcludedZipCodes  []string      `json:"excludedZipCodes,omitempty" yaml:"excludedZipCodes,omitempty"`
	PreferredZipCodes []string      `json:"preferredZipCodes,omitempty" yaml:"preferredZipCodes,omitempty"`
	PreferredZipBonus float64       `json:"preferredZipBonus,omitempty" yaml:"preferredZipBonus,omitempty"`
	ServiceAreas      []ServiceArea `json:"serviceAreas,omitempty" yaml:"serviceAreas,omitempty"`

	// Origin is the office location used to derive travel distance when a
	// referral carries coordinates but no pre-computed distance.
	Origin *Coordinate `json:"origin,omitempty" yaml:"origin,omitempty"`
}

// ServiceArea is a named area defined by zip codes, a boundary ring, or both.
// Boundary points are [longitude, latitude] pairs.
type ServiceArea struct {
	Name     string      `json:"name" yaml:"name"`
	ZipCodes []string    `json:"zipCodes,omitempty" yaml:"zipCodes,omitempty"`
	Boundary [][]float64 `json:"boundary,omitempty" yaml:"boundary,omitempty"`
}

// Coordinate is a WGS84 point.
type Coordinate struct {
	Latitude  float64 `json:"latitude" yaml:"latitude"`
	Longitude float64 `json:"longitude" yaml:"longitude"`
}

// InsuranceRules controls payer acceptance.
type InsuranceRules struct {
	AcceptMedicare    bool     `json:"acceptMedicare" yaml:"acceptMedicare"`
	AcceptMedicaid    bool     `json:"acceptMedicaid" yaml:"acceptMedicaid"`
	AcceptCommercial  bool     `json:"acceptCommercial" yaml:"acceptCommercial"`
	AcceptManagedCare bool     `json:"acceptManagedCare" yaml:"acceptManagedCare"`
	AcceptPrivatePay  bool     `json:"acceptPrivatePay" yaml:"acceptPrivatePay"`
	ExcludedProviders []string `json:"excludedProviders,omitempty" yaml:"excludedProviders,omitempty"`
	PriorAuthRequired []string `json:"priorAuthRequired,omitempty" yaml:"priorAuthRequired,omitempty"`
	MinimumCopay      float64  `json:"minimumCopay" yaml:"minimumCopay"`
	MaximumCopay      float64  `json:"maximumCopay" yaml:"maximumCopay"`
}

// Accepts reports whether the given insurance type is flagged as accepted.
func (r *InsuranceRules) Accepts(t InsuranceType) bool {
	switch t {
	case InsuranceMedicare:
		return r.AcceptMedicare
	case InsuranceMedicaid:
		return r.AcceptMedicaid
	case InsuranceCommercial:
		return r.AcceptCommercial
	case InsuranceManagedCare:
		return r.AcceptManagedCare
	case InsurancePrivatePay:
		return r.AcceptPrivatePay
	default:
		return false
	}
}

// ClinicalRules controls diagnosis, service and urgency handling.
type ClinicalRules struct {
	AcceptedDiagnoses []string      `json:"acceptedDiagnoses,omitempty" yaml:"acceptedDiagnoses,omitempty"`
	ExcludedDiagnoses []string      `json:"excludedDiagnoses,omitempty" yaml:"excludedDiagnoses,omitempty"`
	AcceptedServices  []string      `json:"acceptedServices,omitempty" yaml:"acceptedServices,omitempty"`
	ExcludedServices  []string      `json:"excludedServices,omitempty" yaml:"excludedServices,omitempty"`
	MinEpisodeLength  int           `json:"minEpisodeLength" yaml:"minEpisodeLength"`
	MaxEpisodeLength  int           `json:"maxEpisodeLength" yaml:"maxEpisodeLength"`
	UrgencyHandling   UrgencyMatrix `json:"urgencyHandling" yaml:"urgencyHandling"`
}

// UrgencyMatrix maps each urgency level to a handling recommendation.
// Empty entries are treated as accept.
type UrgencyMatrix struct {
	Routine Recommendation `json:"routine" yaml:"routine"`
	Urgent  Recommendation `json:"urgent" yaml:"urgent"`
	Stat    Recommendation `json:"stat" yaml:"stat"`
}

// For returns the matrix entry for the given urgency level.
func (m UrgencyMatrix) For(u Urgency) Recommendation {
	var r Recommendation
	switch u {
	case UrgencyRoutine:
		r = m.Routine
	case UrgencyUrgent:
		r = m.Urgent
	case UrgencyStat:
		r = m.Stat
	}
	if r == "" {
		return RecommendationAccept
	}
	return r
}

// CapacityRules controls hard caps and caseload limits. A cap of zero
// means the cap is not enforced.
type CapacityRules struct {
	MaxDailyReferrals      int      `json:"maxDailyReferrals" yaml:"maxDailyReferrals"`
	MaxWeeklyReferrals     int      `json:"maxWeeklyReferrals" yaml:"maxWeeklyReferrals"`
	NurseCaseloadLimit     int      `json:"nurseCaseloadLimit" yaml:"nurseCaseloadLimit"`
	TherapistCaseloadLimit int      `json:"therapistCaseloadLimit" yaml:"therapistCaseloadLimit"`
	AcceptWeekends         bool     `json:"acceptWeekends" yaml:"acceptWeekends"`
	AcceptHolidays         bool     `json:"acceptHolidays" yaml:"acceptHolidays"`
	Holidays               []string `json:"holidays,omitempty" yaml:"holidays,omitempty"` // YYYY-MM-DD
}

// QualityRules controls referral source quality requirements.
type QualityRules struct {
	MinimumHospitalRating    float64  `json:"minimumHospitalRating" yaml:"minimumHospitalRating"`
	PreferredReferralSources []string `json:"preferredReferralSources,omitempty" yaml:"preferredReferralSources,omitempty"`
	ExcludedReferralSources  []string `json:"excludedReferralSources,omitempty" yaml:"excludedReferralSources,omitempty"`
	RequireNPIVerification   bool     `json:"requireNpiVerification" yaml:"requireNpiVerification"`
	RequireFaceToFace        bool     `json:"requireFaceToFace" yaml:"requireFaceToFace"`
}

// NotificationRules controls when the medical social worker is escalated to.
type NotificationRules struct {
	NotifyMSWOnReject   bool `json:"notifyMSWOnReject" yaml:"notifyMSWOnReject"`
	NotifyMSWOnReview   bool `json:"notifyMSWOnReview" yaml:"notifyMSWOnReview"`
	NotifyMSWOnAccept   bool `json:"notifyMSWOnAccept" yaml:"notifyMSWOnAccept"`
	EscalationTimeHours int  `json:"escalationTimeHours" yaml:"escalationTimeHours"`
}

// DefaultReviewBand is the width of the review band below the acceptance
// threshold when a configuration does not set one.
const DefaultReviewBand = 10.0

// ScoringRules holds the category weights and acceptance threshold.
// Weights must sum to 1.0.
type ScoringRules struct {
	GeographicWeight       float64  `json:"geographicWeight" yaml:"geographicWeight"`
	InsuranceWeight        float64  `json:"insuranceWeight" yaml:"insuranceWeight"`
	ClinicalWeight         float64  `json:"clinicalWeight" yaml:"clinicalWeight"`
	CapacityWeight         float64  `json:"capacityWeight" yaml:"capacityWeight"`
	QualityWeight          float64  `json:"qualityWeight" yaml:"qualityWeight"`
	MinimumAcceptanceScore float64  `json:"minimumAcceptanceScore" yaml:"minimumAcceptanceScore"`
	ReviewBand             *float64 `json:"reviewBand,omitempty" yaml:"reviewBand,omitempty"`
}

// WeightSum returns the sum of the five category weights.
func (s *ScoringRules) WeightSum() float64 {
	return s.GeographicWeight + s.InsuranceWeight + s.ClinicalWeight +
		s.CapacityWeight + s.QualityWeight
}

// Band returns the configured review band width or the default.
func (s *ScoringRules) Band() float64 {
	if s.ReviewBand == nil {
		return DefaultReviewBand
	}
	return *s.ReviewBand
}

// Clone returns a deep copy of the configuration.
func (c *ReferralConfiguration) Clone() *ReferralConfiguration {
	if c == nil {
		return nil
	}
	out := *c
	if c.Geographic != nil {
		g := *c.Geographic
		g.ExcludedZipCodes = slices.Clone(g.ExcludedZipCodes)
		g.PreferredZipCodes = slices.Clone(g.PreferredZipCodes)
		if g.Origin != nil {
			o := *g.Origin
			g.Origin = &o
		}
		if g.ServiceAreas != nil {
			areas := make([]ServiceArea, len(g.ServiceAreas))
			for i, a := range g.ServiceAreas {
				areas[i] = ServiceArea{Name: a.Name, ZipCodes: slices.Clone(a.ZipCodes)}
				if a.Boundary != nil {
					areas[i].Boundary = make([][]float64, len(a.Boundary))
					for j, p := range a.Boundary {
						areas[i].Boundary[j] = slices.Clone(p)
					}
				}
			}
			g.ServiceAreas = areas
		}
		out.Geographic = &g
	}
	if c.Insurance != nil {
		ins := *c.Insurance
		ins.ExcludedProviders = slices.Clone(ins.ExcludedProviders)
		ins.PriorAuthRequired = slices.Clone(ins.PriorAuthRequired)
		out.Insurance = &ins
	}
	if c.Clinical != nil {
		cl := *c.Clinical
		cl.AcceptedDiagnoses = slices.Clone(cl.AcceptedDiagnoses)
		cl.ExcludedDiagnoses = slices.Clone(cl.ExcludedDiagnoses)
		cl.AcceptedServices = slices.Clone(cl.AcceptedServices)
		cl.ExcludedServices = slices.Clone(cl.ExcludedServices)
		out.Clinical = &cl
	}
	if c.Capacity != nil {
		cp := *c.Capacity
		cp.Holidays = slices.Clone(cp.Holidays)
		out.Capacity = &cp
	}
	if c.Quality != nil {
		q := *c.Quality
		q.PreferredReferralSources = slices.Clone(q.PreferredReferralSources)
		q.ExcludedReferralSources = slices.Clone(q.ExcludedReferralSources)
		out.Quality = &q
	}
	if c.Notifications != nil {
		n := *c.Notifications
		out.Notifications = &n
	}
	if c.Scoring != nil {
		s := *c.Scoring
		if s.ReviewBand != nil {
			b := *s.ReviewBand
			s.ReviewBand = &b
		}
		out.Scoring = &s
	}
	return &out
}
