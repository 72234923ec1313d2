// Package analytics produces deterministic, advisory risk insights for a
// verified presentation. Scores are illustrative only and never affect the
// verification outcome.
package analytics

import (
	"maps"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"

	"medssi/internal/exchange/domain/alias"
	"medssi/internal/exchange/models"
)

const (
	pathConditionCode = "condition.code.coding[0].code"
	pathRecordedDate  = "condition.recordedDate"
	pathOrganization  = "managing_organization.value"
	pathMedCode       = "medication_dispense[0].medicationCodeableConcept.coding[0].code"
	pathDaysSupply    = "medication_dispense[0].days_supply"
	pathPickupEnd     = "medication_dispense[0].pickup_window_end"

	pickupTrendWindow = 14
)

// Engine evaluates presentations. The zero value is ready to use.
type Engine struct{}

func New() *Engine {
	return &Engine{}
}

// Evaluate scores p at now. Medical record and research presentations share
// the clinical heuristic; medication pickup has its own.
func (e *Engine) Evaluate(p models.Presentation, now time.Time) *models.RiskInsight {
	if p.Scope == models.ScopeMedicationPickup {
		return pickupInsight(p, now)
	}
	return clinicalInsight(p, now)
}

func clinicalInsight(p models.Presentation, now time.Time) *models.RiskInsight {
	indicators := map[string]float64{}

	if code, ok := disclosed(p, pathConditionCode); ok && code != "" {
		if strings.HasPrefix(code, "K29") {
			indicators["icd_flag"] = 0.28
		} else {
			indicators["icd_flag"] = -0.12
		}
	}

	window := 21
	if recorded, ok := disclosed(p, pathRecordedDate); ok && recorded != "" {
		visit := parseDay(recorded, now)
		sinceVisit := max(floorDays(now.Sub(visit)), 0)
		window = max(45-sinceVisit, 7)
	}
	indicators["recency_window"] = float64(window) / 90.0

	if org, ok := disclosed(p, pathOrganization); ok && org != "" {
		indicators["org_signal"] = float64(runeSum(org)%13) / 100
	}

	return &models.RiskInsight{
		Scope:                p.Scope,
		RiskScore:            finalize(0.32 + sum(indicators)),
		TrendWindowDays:      window,
		SupportingIndicators: indicators,
	}
}

func pickupInsight(p models.Presentation, now time.Time) *models.RiskInsight {
	indicators := map[string]float64{}

	if code, ok := disclosed(p, pathMedCode); ok && code != "" {
		indicators["med_code_hash"] = float64(runeSum(code)%11) / 100
	}
	if raw, ok := disclosed(p, pathDaysSupply); ok {
		if days, err := strconv.Atoi(strings.TrimSpace(raw)); err == nil && days != 0 {
			indicators["days_supply"] = math.Min(float64(days)/60.0, 1.0)
		}
	}
	if end, ok := disclosed(p, pathPickupEnd); ok && end != "" {
		daysLeft := floorDays(parseDay(end, now).Sub(now))
		indicators["pickup_urgency"] = clamp(float64(pickupTrendWindow-daysLeft)/pickupTrendWindow, 0, 1)
	}

	return &models.RiskInsight{
		Scope:                p.Scope,
		RiskScore:            finalize(0.5 + sum(indicators) - 0.2),
		TrendWindowDays:      pickupTrendWindow,
		SupportingIndicators: indicators,
	}
}

// disclosed finds a field by canonical path or any of its aliases.
func disclosed(p models.Presentation, path string) (string, bool) {
	return alias.Lookup(p.DisclosedFields, path)
}

// parseDay reads a calendar date or RFC 3339 timestamp, falling back to now.
func parseDay(value string, now time.Time) time.Time {
	value = strings.TrimSpace(value)
	if t, err := time.Parse(models.DateLayout, value); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t
	}
	return now
}

func floorDays(d time.Duration) int {
	return int(math.Floor(d.Hours() / 24))
}

func runeSum(s string) int {
	total := 0
	for _, r := range s {
		total += int(r)
	}
	return total
}

// sum adds in key order so the float result is reproducible.
func sum(m map[string]float64) float64 {
	var total float64
	for _, k := range slices.Sorted(maps.Keys(m)) {
		total += m[k]
	}
	return total
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(v, hi))
}

// finalize clamps to [0, 0.99] and rounds to three decimals.
func finalize(score float64) float64 {
	return math.Round(clamp(score, 0, 0.99)*1000) / 1000
}
