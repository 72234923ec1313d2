// Package alias maps the short field names used by external credential systems
// (cond_code, med_code, ...) onto canonical payload paths.
//
// It is a pure lookup table plus Unicode case folding. It only decides which
// canonical path a presented field refers to; matching semantics live in the
// verification package.
package alias

import (
	"maps"
	"slices"
	"strings"

	"golang.org/x/text/cases"
)

var table = map[string]string{
	"cond_code":    "condition.code.coding[0].code",
	"cond_display": "condition.code.coding[0].display",
	"cond_onset":   "condition.recordedDate",
	"cond_id":      "condition.id",
	"org_id":       "managing_organization.value",
	"med_code":     "medication_dispense[0].medicationCodeableConcept.coding[0].code",
	"med_name":     "medication_dispense[0].medicationCodeableConcept.coding[0].display",
	"dose_text":    "medication_dispense[0].quantity_text",
	"qty_value":    "medication_dispense[0].days_supply",
	"pickup_end":   "medication_dispense[0].pickup_window_end",
	"cons_end":     "consent_expires_on",
}

// Fold returns the case-folded, trimmed form of name used for alias matching.
func Fold(name string) string {
	// cases.Caser is stateful, so each call gets its own.
	return cases.Fold().String(strings.TrimSpace(name))
}

// Canonical returns the payload path an alias stands for. Names that are not
// aliases are returned trimmed but otherwise unchanged.
func Canonical(name string) string {
	if path, ok := table[Fold(name)]; ok {
		return path
	}
	return strings.TrimSpace(name)
}

// IsAlias reports whether name is a known alias.
func IsAlias(name string) bool {
	_, ok := table[Fold(name)]
	return ok
}

// Equivalent reports whether a and b name the same field, either directly or
// through an alias.
func Equivalent(a, b string) bool {
	return Fold(Canonical(a)) == Fold(Canonical(b))
}

// Lookup finds the value of name in fields, whose keys may be aliases or
// canonical paths in any case. An exact key wins; otherwise keys are tried in
// sorted order so the result is deterministic.
func Lookup(fields map[string]string, name string) (string, bool) {
	if len(fields) == 0 {
		return "", false
	}
	if v, ok := fields[name]; ok {
		return v, true
	}
	for _, k := range slices.Sorted(maps.Keys(fields)) {
		if Equivalent(k, name) {
			return fields[k], true
		}
	}
	return "", false
}

// Contains reports whether any entry of set is equivalent to name.
func Contains(set []string, name string) bool {
	for _, s := range set {
		if Equivalent(s, name) {
			return true
		}
	}
	return false
}

// Aliases returns the aliases that resolve to path, sorted.
func Aliases(path string) []string {
	var out []string
	for a, p := range table {
		if p == path {
			out = append(out, a)
		}
	}
	slices.Sort(out)
	return out
}
