package model

import (
	"slices"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// Urgency is the clinical urgency of a referral.
type Urgency string

const (
	UrgencyRoutine Urgency = "routine"
	UrgencyUrgent  Urgency = "urgent"
	UrgencyStat    Urgency = "stat"
)

// ParseUrgency parses an urgency level, case-insensitively.
func ParseUrgency(s string) (Urgency, error) {
	u := Urgency(strings.ToLower(strings.TrimSpace(s)))
	switch u {
	case UrgencyRoutine, UrgencyUrgent, UrgencyStat, "":
		return u, nil
	}
	return "", eris.Errorf("model: unknown urgency %q", s)
}

// InsuranceType is the payer category of a referral.
type InsuranceType string

const (
	InsuranceMedicare    InsuranceType = "medicare"
	InsuranceMedicaid    InsuranceType = "medicaid"
	InsuranceCommercial  InsuranceType = "commercial"
	InsuranceManagedCare InsuranceType = "managed_care"
	InsurancePrivatePay  InsuranceType = "private_pay"
)

// ReferralRecord is the structured input for one referral evaluation.
//
// Required fields per category: Location distance (or coordinates) for
// geographic, Insurance.Type for insurance, Diagnosis and EpisodeLengthDays
// for clinical, TeamLoad for capacity and Source.Rating for quality. A
// missing required field yields a neutral score for that category only.
type ReferralRecord struct {
	ID                string    `json:"id" yaml:"id"`
	PatientID         string    `json:"patientId,omitempty" yaml:"patientId,omitempty"`
	Diagnosis         string    `json:"diagnosis,omitempty" yaml:"diagnosis,omitempty"`
	RequestedServices []string  `json:"requestedServices,omitempty" yaml:"requestedServices,omitempty"`
	EpisodeLengthDays *int      `json:"episodeLengthDays,omitempty" yaml:"episodeLengthDays,omitempty"`
	Urgency           Urgency   `json:"urgency,omitempty" yaml:"urgency,omitempty"`
	Insurance         Insurance `json:"insurance" yaml:"insurance"`
	Source            Source    `json:"source" yaml:"source"`
	Location          Location  `json:"location" yaml:"location"`
	TeamLoad          *TeamLoad `json:"teamLoad,omitempty" yaml:"teamLoad,omitempty"`
	ReceivedAt        time.Time `json:"receivedAt,omitzero" yaml:"receivedAt,omitempty"`
}

// Insurance describes the patient's coverage.
type Insurance struct {
	Provider          string        `json:"provider,omitempty" yaml:"provider,omitempty"`
	Type              InsuranceType `json:"type,omitempty" yaml:"type,omitempty"`
	Copay             *float64      `json:"copay,omitempty" yaml:"copay,omitempty"`
	PriorAuthObtained bool          `json:"priorAuthObtained,omitempty" yaml:"priorAuthObtained,omitempty"`
}

// Source describes who sent the referral.
type Source struct {
	Name                 string   `json:"name,omitempty" yaml:"name,omitempty"`
	Rating               *float64 `json:"rating,omitempty" yaml:"rating,omitempty"`
	NPIVerified          bool     `json:"npiVerified,omitempty" yaml:"npiVerified,omitempty"`
	FaceToFaceDocumented bool     `json:"faceToFaceDocumented,omitempty" yaml:"faceToFaceDocumented,omitempty"`
}

// Location is where care will be delivered. Geocoding happens before
// evaluation; the engine only reads the resolved values.
type Location struct {
	ZipCode       string   `json:"zipCode,omitempty" yaml:"zipCode,omitempty"`
	Address       string   `json:"address,omitempty" yaml:"address,omitempty"`
	Latitude      *float64 `json:"latitude,omitempty" yaml:"latitude,omitempty"`
	Longitude     *float64 `json:"longitude,omitempty" yaml:"longitude,omitempty"`
	DistanceMiles *float64 `json:"distanceMiles,omitempty" yaml:"distanceMiles,omitempty"`
}

// HasCoordinates reports whether both latitude and longitude are set.
func (l Location) HasCoordinates() bool {
	return l.Latitude != nil && l.Longitude != nil
}

// TeamLoad holds the target team's current volume counters.
type TeamLoad struct {
	DailyReferrals    int `json:"dailyReferrals" yaml:"dailyReferrals"`
	WeeklyReferrals   int `json:"weeklyReferrals" yaml:"weeklyReferrals"`
	NurseCaseload     int `json:"nurseCaseload" yaml:"nurseCaseload"`
	TherapistCaseload int `json:"therapistCaseload" yaml:"therapistCaseload"`
}

// Clone returns a deep copy of the referral.
func (r ReferralRecord) Clone() ReferralRecord {
	out := r
	out.RequestedServices = slices.Clone(r.RequestedServices)
	out.EpisodeLengthDays = clonePtr(r.EpisodeLengthDays)
	out.Insurance.Copay = clonePtr(r.Insurance.Copay)
	out.Source.Rating = clonePtr(r.Source.Rating)
	out.Location.Latitude = clonePtr(r.Location.Latitude)
	out.Location.Longitude = clonePtr(r.Location.Longitude)
	out.Location.DistanceMiles = clonePtr(r.Location.DistanceMiles)
	out.TeamLoad = clonePtr(r.TeamLoad)
	return out
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
