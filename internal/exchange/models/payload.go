package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	dErrors "medssi/pkg/domain-errors"
)

// DateLayout is the calendar date layout used on the wire and by the path resolver.
const DateLayout = "2006-01-02"

// DefaultFHIRProfile is the bundle profile stamped on payloads that omit one.
const DefaultFHIRProfile = "https://profiles.iisigroup.com.tw/StructureDefinition/medssi-bundle"

// Date is a calendar date without a time of day.
type Date struct {
	time.Time
}

// NewDate builds a UTC calendar date.
func NewDate(year int, month time.Month, day int) Date {
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(value string) (Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(value))
	if err != nil {
		return Date{}, err
	}
	return Date{Time: t}, nil
}

// ISOFormat renders the date as YYYY-MM-DD.
func (d Date) ISOFormat() string {
	return d.Time.Format(DateLayout)
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.ISOFormat()
}

// MarshalJSON implements json.Marshaler.
func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.ISOFormat())
}

// UnmarshalJSON accepts YYYY-MM-DD and full RFC 3339 timestamps.
func (d *Date) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if parsed, err := ParseDate(raw); err == nil {
		*d = parsed
		return nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return fmt.Errorf("invalid date %q", raw)
	}
	y, m, day := t.Date()
	*d = NewDate(y, m, day)
	return nil
}

// Coding is a FHIR Coding.
type Coding struct {
	System  string `json:"system"`
	Code    string `json:"code"`
	Display string `json:"display,omitempty"`
}

// CodeableConcept is a FHIR CodeableConcept.
type CodeableConcept struct {
	Coding []Coding `json:"coding"`
	Text   string   `json:"text,omitempty"`
}

// Identifier is a FHIR Identifier.
type Identifier struct {
	System   string `json:"system"`
	Value    string `json:"value"`
	Assigner string `json:"assigner,omitempty"`
}

// ConditionSummary summarizes the FHIR Condition behind the visit.
type ConditionSummary struct {
	ResourceType string          `json:"resourceType"`
	ID           string          `json:"id"`
	Code         CodeableConcept `json:"code"`
	RecordedDate Date            `json:"recordedDate"`
	Encounter    Identifier      `json:"encounter"`
	Subject      Identifier      `json:"subject"`
}

// MedicationDispenseSummary summarizes a FHIR MedicationDispense linked to the visit.
type MedicationDispenseSummary struct {
	ResourceType              string          `json:"resourceType"`
	ID                        string          `json:"id"`
	MedicationCodeableConcept CodeableConcept `json:"medicationCodeableConcept"`
	QuantityText              string          `json:"quantity_text"`
	DaysSupply                int             `json:"days_supply"`
	Performer                 *Identifier     `json:"performer,omitempty"`
	PickupWindowEnd           *Date           `json:"pickup_window_end,omitempty"`
}

// Payload is the FHIR-aligned clinical record embedded in a credential.
type Payload struct {
	FHIRProfile          string                      `json:"fhir_profile"`
	Condition            ConditionSummary            `json:"condition"`
	EncounterSummaryHash string                      `json:"encounter_summary_hash"`
	ManagingOrganization Identifier                  `json:"managing_organization"`
	IssuedOn             Date                        `json:"issued_on"`
	ConsentExpiresOn     *Date                       `json:"consent_expires_on,omitempty"`
	MedicationDispense   []MedicationDispenseSummary `json:"medication_dispense,omitempty"`
}

// Normalize fills defaulted resource markers.
func (p *Payload) Normalize() {
	if p == nil {
		return
	}
	if p.FHIRProfile == "" {
		p.FHIRProfile = DefaultFHIRProfile
	}
	if p.Condition.ResourceType == "" {
		p.Condition.ResourceType = "Condition"
	}
	for i := range p.MedicationDispense {
		if p.MedicationDispense[i].ResourceType == "" {
			p.MedicationDispense[i].ResourceType = "MedicationDispense"
		}
	}
}

// Validate enforces the structural requirements of the clinical record.
func (p *Payload) Validate() error {
	if p == nil {
		return dErrors.New(dErrors.CodeValidation, "payload is required")
	}
	if p.Condition.ID == "" {
		return dErrors.New(dErrors.CodeValidation, "condition.id is required")
	}
	if len(p.Condition.Code.Coding) == 0 {
		return dErrors.New(dErrors.CodeValidation, "condition.code.coding must not be empty")
	}
	if p.Condition.RecordedDate.IsZero() {
		return dErrors.New(dErrors.CodeValidation, "condition.recordedDate is required")
	}
	if p.EncounterSummaryHash == "" {
		return dErrors.New(dErrors.CodeValidation, "encounter_summary_hash is required")
	}
	if p.ManagingOrganization.Value == "" {
		return dErrors.New(dErrors.CodeValidation, "managing_organization.value is required")
	}
	for i, md := range p.MedicationDispense {
		if md.DaysSupply < 1 {
			return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("medication_dispense[%d].days_supply must be at least 1", i))
		}
	}
	return nil
}

// Clone returns a deep copy of the payload.
func (p *Payload) Clone() *Payload {
	if p == nil {
		return nil
	}
	out := *p
	out.Condition.Code = p.Condition.Code.clone()
	if p.ConsentExpiresOn != nil {
		d := *p.ConsentExpiresOn
		out.ConsentExpiresOn = &d
	}
	if p.MedicationDispense != nil {
		out.MedicationDispense = make([]MedicationDispenseSummary, len(p.MedicationDispense))
		for i, md := range p.MedicationDispense {
			cp := md
			cp.MedicationCodeableConcept = md.MedicationCodeableConcept.clone()
			if md.Performer != nil {
				perf := *md.Performer
				cp.Performer = &perf
			}
			if md.PickupWindowEnd != nil {
				d := *md.PickupWindowEnd
				cp.PickupWindowEnd = &d
			}
			out.MedicationDispense[i] = cp
		}
	}
	return &out
}

func (c CodeableConcept) clone() CodeableConcept {
	if c.Coding != nil {
		c.Coding = append([]Coding(nil), c.Coding...)
	}
	return c
}
