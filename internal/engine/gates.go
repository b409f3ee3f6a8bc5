package engine

import (
	"fmt"
	"time"

	"github.com/sells-group/referral-cli/internal/model"
)

// gate is one deterministic hard-reject rule. check returns a note
// explaining the match.
type gate struct {
	name  model.GateName
	check func(r *model.ReferralRecord, cfg *model.ReferralConfiguration) (string, bool)
}

// gates run in this order and the first match wins. There is no
// hard-accept gate: every accept passes through scoring.
var gates = []gate{
	{model.GateExcludedZipCode, excludedZipGate},
	{model.GateExcludedProvider, excludedProviderGate},
	{model.GateExcludedClinical, excludedClinicalGate},
	{model.GateCapacityCap, capacityCapGate},
	{model.GateWeekendHoliday, weekendHolidayGate},
}

// EvaluateGates applies the hard gates to a referral. It returns the first
// matching gate, or nil when evaluation should continue to scoring.
func EvaluateGates(r *model.ReferralRecord, cfg *model.ReferralConfiguration) *model.GateResult {
	for _, g := range gates {
		if note, ok := g.check(r, cfg); ok {
			return &model.GateResult{Gate: g.name, Note: note}
		}
	}
	return nil
}

func excludedZipGate(r *model.ReferralRecord, cfg *model.ReferralConfiguration) (string, bool) {
	zip := normalizeZip(r.Location.ZipCode)
	if zip == "" {
		return "", false
	}
	if zipSet(cfg.Geographic.ExcludedZipCodes).has(zip) {
		return fmt.Sprintf("zip code %s is in the excluded zip code list", zip), true
	}
	return "", false
}

func excludedProviderGate(r *model.ReferralRecord, cfg *model.ReferralConfiguration) (string, bool) {
	if r.Insurance.Provider == "" {
		return "", false
	}
	if codeSet(cfg.Insurance.ExcludedProviders).has(normalizeKey(r.Insurance.Provider)) {
		return fmt.Sprintf("insurance provider %q is excluded", r.Insurance.Provider), true
	}
	return "", false
}

func excludedClinicalGate(r *model.ReferralRecord, cfg *model.ReferralConfiguration) (string, bool) {
	if r.Diagnosis != "" && codeSet(cfg.Clinical.ExcludedDiagnoses).has(normalizeKey(r.Diagnosis)) {
		return fmt.Sprintf("diagnosis %s is excluded", r.Diagnosis), true
	}
	if svc, ok := firstMatch(codeSet(cfg.Clinical.ExcludedServices), r.RequestedServices); ok {
		return fmt.Sprintf("requested service %q is excluded", svc), true
	}
	return "", false
}

func capacityCapGate(r *model.ReferralRecord, cfg *model.ReferralConfiguration) (string, bool) {
	if r.TeamLoad == nil {
		return "", false
	}
	c := cfg.Capacity
	if c.MaxDailyReferrals > 0 && r.TeamLoad.DailyReferrals >= c.MaxDailyReferrals {
		return fmt.Sprintf("daily referral count %d has reached the cap of %d",
			r.TeamLoad.DailyReferrals, c.MaxDailyReferrals), true
	}
	if c.MaxWeeklyReferrals > 0 && r.TeamLoad.WeeklyReferrals >= c.MaxWeeklyReferrals {
		return fmt.Sprintf("weekly referral count %d has reached the cap of %d",
			r.TeamLoad.WeeklyReferrals, c.MaxWeeklyReferrals), true
	}
	return "", false
}

func weekendHolidayGate(r *model.ReferralRecord, cfg *model.ReferralConfiguration) (string, bool) {
	if r.ReceivedAt.IsZero() {
		return "", false
	}
	c := cfg.Capacity
	day := r.ReceivedAt.Format(time.DateOnly)
	if !c.AcceptHolidays && isHoliday(day, c.Holidays) {
		return fmt.Sprintf("referral received on holiday %s and holiday referrals are not accepted", day), true
	}
	if !c.AcceptWeekends && isWeekend(r.ReceivedAt) {
		return fmt.Sprintf("referral received on %s %s and weekend referrals are not accepted",
			r.ReceivedAt.Weekday(), day), true
	}
	return "", false
}

func isWeekend(t time.Time) bool {
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

func isHoliday(day string, holidays []string) bool {
	for _, h := range holidays {
		if h == day {
			return true
		}
	}
	return false
}
