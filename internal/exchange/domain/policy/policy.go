// Package policy validates and normalizes the disclosure policies attached to
// a credential offer.
package policy

import (
	"fmt"
	"slices"
	"strings"

	"medssi/internal/exchange/domain/alias"
	"medssi/internal/exchange/domain/fieldpath"
	"medssi/internal/exchange/models"
	dErrors "medssi/pkg/domain-errors"
	pstrings "medssi/pkg/platform/strings"
)

// Defaults returns the built-in policy set, one per supported scope.
func Defaults() []models.DisclosurePolicy {
	return []models.DisclosurePolicy{
		{
			Scope: models.ScopeMedicalRecord,
			Fields: []string{
				"condition.code.coding[0].code",
				"condition.recordedDate",
				"managing_organization.value",
			},
			Description: "Cross-hospital record summary: diagnosis code, recorded date, issuing organization",
		},
		{
			Scope: models.ScopeMedicationPickup,
			Fields: []string{
				"medication_dispense[0].medicationCodeableConcept.coding[0].code",
				"medication_dispense[0].days_supply",
				"medication_dispense[0].pickup_window_end",
			},
			Description: "Medication pickup: drug code, days of supply, pickup deadline",
		},
		{
			Scope: models.ScopeResearchAnalytics,
			Fields: []string{
				"condition.code.coding[0].code",
				"condition.recordedDate",
			},
			Description: "De-identified research: diagnosis code and recorded date",
		},
	}
}

// Validate fails with a policy_invalid error when the list is empty, a scope is
// unknown or repeated, or a policy has no usable fields.
func Validate(policies []models.DisclosurePolicy) error {
	if len(policies) == 0 {
		return dErrors.New(dErrors.CodePolicyInvalid, "disclosure policies cannot be empty")
	}
	seen := make(map[models.Scope]struct{}, len(policies))
	for _, p := range policies {
		if !p.Scope.IsValid() {
			return dErrors.New(dErrors.CodePolicyInvalid, fmt.Sprintf("unsupported scope %q", p.Scope))
		}
		if _, dup := seen[p.Scope]; dup {
			return dErrors.New(dErrors.CodePolicyInvalid, fmt.Sprintf("duplicate policy for scope %s", p.Scope))
		}
		seen[p.Scope] = struct{}{}
		fields := pstrings.DedupeAndTrim(p.Fields)
		if len(fields) == 0 {
			return dErrors.New(dErrors.CodePolicyInvalid, fmt.Sprintf("policy for scope %s has no fields", p.Scope))
		}
		for _, f := range fields {
			if !fieldpath.Valid(f) {
				return dErrors.New(dErrors.CodePolicyInvalid, fmt.Sprintf("policy for scope %s has malformed field %q", p.Scope, f))
			}
		}
	}
	return nil
}

// ResolveEffective returns the policies an offer will carry: the caller's list,
// normalized and validated, or the built-in defaults when none were provided.
func ResolveEffective(provided []models.DisclosurePolicy) ([]models.DisclosurePolicy, error) {
	if len(provided) == 0 {
		defaults := Defaults()
		if err := Validate(defaults); err != nil {
			return nil, err
		}
		return defaults, nil
	}
	normalized := make([]models.DisclosurePolicy, len(provided))
	for i, p := range provided {
		normalized[i] = models.DisclosurePolicy{
			Scope:       p.Scope,
			Fields:      pstrings.DedupeAndTrim(p.Fields),
			Description: p.Description,
		}
	}
	if err := Validate(normalized); err != nil {
		return nil, err
	}
	return normalized, nil
}

// FieldSet returns the union of all policy fields in first-seen order.
func FieldSet(policies []models.DisclosurePolicy) []string {
	var all []string
	for _, p := range policies {
		all = append(all, p.Fields...)
	}
	return pstrings.DedupeAndTrim(all)
}

// ForScope returns the policy for scope.
func ForScope(policies []models.DisclosurePolicy, scope models.Scope) (models.DisclosurePolicy, bool) {
	for _, p := range policies {
		if p.Scope == scope {
			return p, true
		}
	}
	return models.DisclosurePolicy{}, false
}

// Permits reports whether field is covered by the policies, directly or through
// an alias of a policy path.
func Permits(policies []models.DisclosurePolicy, field string) bool {
	return alias.Contains(FieldSet(policies), field)
}

// PathFor returns the policy path field refers to. An exact path wins over an
// alias or case-folded match.
func PathFor(policies []models.DisclosurePolicy, field string) (string, bool) {
	fields := FieldSet(policies)
	field = strings.TrimSpace(field)
	if slices.Contains(fields, field) {
		return field, true
	}
	for _, f := range fields {
		if alias.Equivalent(f, field) {
			return f, true
		}
	}
	return "", false
}

// CheckDisclosures fails with disclosure_invalid naming the first field, in
// sorted order, that no policy permits.
func CheckDisclosures(policies []models.DisclosurePolicy, disclosures map[string]string) error {
	if len(disclosures) == 0 {
		return nil
	}
	fields := FieldSet(policies)
	keys := make([]string, 0, len(disclosures))
	for k := range disclosures {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		if !alias.Contains(fields, k) {
			return dErrors.New(dErrors.CodeDisclosureInvalid, fmt.Sprintf("field %q is not permitted by any disclosure policy", k))
		}
	}
	return nil
}
