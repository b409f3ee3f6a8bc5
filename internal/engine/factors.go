package engine

import (
	"math"

	"github.com/sells-group/referral-cli/internal/geo"
	"github.com/sells-group/referral-cli/internal/model"
)

// Notes attached to category results with no computed score.
const (
	NoteInsufficientData = "insufficient data — neutral score applied"
	NoteGated            = "not evaluated — gated"
)

const (
	neutralScore             = 50.0
	maxSourceRating          = 5.0
	defaultPreferredZipBonus = 10.0
	priorAuthPenalty         = 15.0
	copayPenalty             = 25.0
	verificationPenalty      = 20.0
	preferredSourceBonus     = 10.0
	partialClinicalScore     = 50.0
)

// ScoreGeographic scores travel distance against maxTravelDistance with
// linear decay. Referrals outside every configured service area get half
// credit; preferred zip codes add a bonus.
func ScoreGeographic(r *model.ReferralRecord, g *model.GeographicRules) model.GeographicFactor {
	f := model.GeographicFactor{CategoryScore: evaluated()}

	zip := normalizeZip(r.Location.ZipCode)
	inArea, known := inServiceArea(r, g.ServiceAreas)
	f.InServiceArea = inArea
	f.PreferredZip = zip != "" && zipSet(g.PreferredZipCodes).has(zip)

	dist, ok := travelDistance(r.Location, g.Origin)
	if !ok {
		f.CategoryScore = neutral()
		return f
	}
	f.DistanceMiles = &dist

	score := 100 * (1 - dist/g.MaxTravelDistance)
	f.Note("distance %.1f mi of %.1f mi maximum", dist, g.MaxTravelDistance)
	switch {
	case !known:
		f.Note("service area membership could not be determined")
	case !inArea:
		score /= 2
		f.Note("outside configured service areas; score halved")
	}
	if f.PreferredZip {
		bonus := g.PreferredZipBonus
		if bonus == 0 {
			bonus = defaultPreferredZipBonus
		}
		score += bonus
		f.Note("preferred zip code %s: +%.0f", zip, bonus)
	}
	f.Score = clampScore(score)
	return f
}

// travelDistance returns the referral's pre-computed distance, or derives
// it from coordinates and the configured origin.
func travelDistance(loc model.Location, origin *model.Coordinate) (float64, bool) {
	if loc.DistanceMiles != nil && !math.IsNaN(*loc.DistanceMiles) {
		return math.Max(0, *loc.DistanceMiles), true
	}
	if origin != nil && loc.HasCoordinates() {
		d := geo.HaversineMiles(origin.Latitude, origin.Longitude, *loc.Latitude, *loc.Longitude)
		return round2(d), true
	}
	return 0, false
}

// inServiceArea reports membership and whether it could be determined.
// No configured areas means the whole region is served.
func inServiceArea(r *model.ReferralRecord, areas []model.ServiceArea) (in, known bool) {
	if len(areas) == 0 {
		return true, true
	}
	zip := normalizeZip(r.Location.ZipCode)
	hasCoords := r.Location.HasCoordinates()
	if zip == "" && !hasCoords {
		return false, false
	}
	for _, a := range areas {
		if zip != "" && zipSet(a.ZipCodes).has(zip) {
			return true, true
		}
		if hasCoords && len(a.Boundary) > 0 &&
			geo.InBoundary(a.Boundary, *r.Location.Latitude, *r.Location.Longitude) {
			return true, true
		}
	}
	return false, true
}

// ScoreInsurance scores insurance type acceptance. Prior authorization
// that is required but not on file is flagged for the aggregator.
func ScoreInsurance(r *model.ReferralRecord, ins *model.InsuranceRules) model.InsuranceFactor {
	f := model.InsuranceFactor{CategoryScore: evaluated(), CopayInRange: true}

	provider := normalizeKey(r.Insurance.Provider)
	if provider != "" && codeSet(ins.PriorAuthRequired).has(provider) && !r.Insurance.PriorAuthObtained {
		f.PriorAuthRequired = true
	}
	if c := r.Insurance.Copay; c != nil {
		f.CopayInRange = *c >= ins.MinimumCopay && (ins.MaximumCopay == 0 || *c <= ins.MaximumCopay)
	}

	if r.Insurance.Type == "" {
		f.CategoryScore = neutral()
		if f.PriorAuthRequired {
			f.Note("prior authorization required for %s and not on file", r.Insurance.Provider)
		}
		return f
	}

	var score float64
	f.TypeAccepted = ins.Accepts(r.Insurance.Type)
	if f.TypeAccepted {
		score = 100
		f.Note("insurance type %s accepted", r.Insurance.Type)
	} else {
		f.Note("insurance type %s not accepted", r.Insurance.Type)
	}
	if f.PriorAuthRequired {
		score -= priorAuthPenalty
		f.Note("prior authorization required for %s and not on file: -%.0f", r.Insurance.Provider, priorAuthPenalty)
	}
	if !f.CopayInRange {
		score -= copayPenalty
		f.Note("copay %.2f outside accepted range: -%.0f", *r.Insurance.Copay, copayPenalty)
	}
	f.Score = clampScore(score)
	return f
}

// ScoreClinical scores diagnosis and service fit together with episode
// length fit. Both give full credit, one gives partial credit.
func ScoreClinical(r *model.ReferralRecord, c *model.ClinicalRules) model.ClinicalFactor {
	f := model.ClinicalFactor{CategoryScore: evaluated()}

	f.DiagnosisAccepted = r.Diagnosis != "" &&
		(len(c.AcceptedDiagnoses) == 0 || codeSet(c.AcceptedDiagnoses).has(normalizeKey(r.Diagnosis)))
	f.ServicesAccepted = servicesAccepted(r.RequestedServices, c.AcceptedServices)
	if r.EpisodeLengthDays != nil {
		d := *r.EpisodeLengthDays
		f.EpisodeLengthFit = d >= c.MinEpisodeLength && (c.MaxEpisodeLength == 0 || d <= c.MaxEpisodeLength)
	}

	if r.Diagnosis == "" || r.EpisodeLengthDays == nil {
		f.CategoryScore = neutral()
		return f
	}

	match := f.DiagnosisAccepted && f.ServicesAccepted
	switch {
	case match && f.EpisodeLengthFit:
		f.Score = 100
	case match || f.EpisodeLengthFit:
		f.Score = partialClinicalScore
	default:
		f.Score = 0
	}
	if !f.DiagnosisAccepted {
		f.Note("diagnosis %s not in accepted diagnoses", r.Diagnosis)
	}
	if !f.ServicesAccepted {
		f.Note("requested services not all in accepted services")
	}
	if f.EpisodeLengthFit {
		f.Note("episode length %d days within bounds", *r.EpisodeLengthDays)
	} else {
		f.Note("episode length %d days outside bounds", *r.EpisodeLengthDays)
	}
	return f
}

func servicesAccepted(requested, accepted []string) bool {
	if len(accepted) == 0 {
		return true
	}
	set := codeSet(accepted)
	for _, s := range requested {
		if !set.has(normalizeKey(s)) {
			return false
		}
	}
	return true
}

// ScoreCapacity scores the mean remaining caseload capacity across the
// configured nurse and therapist limits.
func ScoreCapacity(r *model.ReferralRecord, c *model.CapacityRules) model.CapacityFactor {
	f := model.CapacityFactor{CategoryScore: evaluated()}
	if r.TeamLoad == nil {
		f.CategoryScore = neutral()
		return f
	}

	var sum float64
	var n int
	remaining := func(limit, current int, label string) bool {
		if limit <= 0 {
			return true
		}
		frac := math.Min(1, math.Max(0, float64(limit-current)/float64(limit)))
		sum += frac
		n++
		f.Note("%s caseload %d of %d", label, current, limit)
		return current < limit
	}
	f.NurseCapacityAvailable = remaining(c.NurseCaseloadLimit, r.TeamLoad.NurseCaseload, "nurse")
	f.TherapistCapacityAvailable = remaining(c.TherapistCaseloadLimit, r.TeamLoad.TherapistCaseload, "therapist")

	if n == 0 {
		f.Score = 100
		f.Note("no caseload limits configured")
		return f
	}
	f.Score = clampScore(100 * sum / float64(n))
	return f
}

// ScoreQuality scores the referral source rating against the configured
// minimum. Excluded sources score zero.
func ScoreQuality(r *model.ReferralRecord, q *model.QualityRules) model.QualityFactor {
	f := model.QualityFactor{CategoryScore: evaluated()}

	name := normalizeKey(r.Source.Name)
	f.PreferredSource = name != "" && codeSet(q.PreferredReferralSources).has(name)
	f.ExcludedSource = name != "" && codeSet(q.ExcludedReferralSources).has(name)
	f.VerificationComplete = (!q.RequireNPIVerification || r.Source.NPIVerified) &&
		(!q.RequireFaceToFace || r.Source.FaceToFaceDocumented)

	if r.Source.Rating == nil || math.IsNaN(*r.Source.Rating) {
		f.CategoryScore = neutral()
	} else {
		rating := math.Min(maxSourceRating, math.Max(0, *r.Source.Rating))
		f.MeetsMinimumRating = rating >= q.MinimumHospitalRating
		f.Score = ratingScore(rating, q.MinimumHospitalRating)
		f.Note("source rating %.1f against minimum %.1f", rating, q.MinimumHospitalRating)

		if q.RequireNPIVerification && !r.Source.NPIVerified {
			f.Score -= verificationPenalty
			f.Note("NPI verification missing: -%.0f", verificationPenalty)
		}
		if q.RequireFaceToFace && !r.Source.FaceToFaceDocumented {
			f.Score -= verificationPenalty
			f.Note("face-to-face documentation missing: -%.0f", verificationPenalty)
		}
		if f.PreferredSource {
			f.Score += preferredSourceBonus
			f.Note("preferred referral source: +%.0f", preferredSourceBonus)
		}
		f.Score = clampScore(f.Score)
	}

	if f.ExcludedSource {
		f.Score = 0
		f.Note("referral source %q is excluded", r.Source.Name)
	}
	return f
}

func ratingScore(rating, minimum float64) float64 {
	if rating >= minimum {
		if minimum >= maxSourceRating {
			return 100
		}
		return 60 + 40*(rating-minimum)/(maxSourceRating-minimum)
	}
	return 60 * rating / minimum
}

func evaluated() model.CategoryScore {
	return model.CategoryScore{Evaluated: true, Notes: []string{}}
}

func neutral() model.CategoryScore {
	return model.CategoryScore{Score: neutralScore, Evaluated: true, Notes: []string{NoteInsufficientData}}
}

func gated() model.CategoryScore {
	return model.CategoryScore{Notes: []string{NoteGated}}
}

func clampScore(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return round2(math.Min(100, math.Max(0, v)))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
