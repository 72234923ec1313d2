package testutil

import (
	"time"

	"medssi/internal/exchange/models"
)

// TestIDs provides stable identifiers for tests.
var TestIDs = struct {
	IssuerID   string
	VerifierID string
	HolderDID1 string
	HolderDID2 string
}{
	IssuerID:   "hospital-tpe-001",
	VerifierID: "pharmacy-tpe-042",
	HolderDID1: "did:example:holder-1",
	HolderDID2: "did:example:holder-2",
}

// SamplePayload returns a valid clinical record with one dispense entry.
func SamplePayload() *models.Payload {
	pickupEnd := models.NewDate(2026, time.March, 10)
	return &models.Payload{
		Condition: models.ConditionSummary{
			ID: "cond-8841",
			Code: models.CodeableConcept{
				Coding: []models.Coding{{System: "http://hl7.org/fhir/sid/icd-10", Code: "K29.7", Display: "Gastritis, unspecified"}},
				Text:   "Gastritis",
			},
			RecordedDate: models.NewDate(2026, time.February, 20),
			Encounter:    models.Identifier{System: "urn:medssi:encounter", Value: "enc-1001"},
			Subject:      models.Identifier{System: "urn:medssi:patient", Value: "pseudo-7788"},
		},
		EncounterSummaryHash: "urn:sha256:3f1e0a",
		ManagingOrganization: models.Identifier{System: "urn:medssi:org", Value: "org:tw-nhi-001"},
		IssuedOn:             models.NewDate(2026, time.February, 21),
		MedicationDispense: []models.MedicationDispenseSummary{{
			ID: "md-1",
			MedicationCodeableConcept: models.CodeableConcept{
				Coding: []models.Coding{{System: "http://www.whocc.no/atc", Code: "A02BC05", Display: "Esomeprazole"}},
			},
			QuantityText:    "30 tablets",
			DaysSupply:      30,
			PickupWindowEnd: &pickupEnd,
		}},
	}
}

// OfferBuilder provides a fluent interface for building offer requests.
type OfferBuilder struct {
	req models.OfferRequest
}

// NewOfferBuilder starts a WITH_DATA medical record offer at NHI_CARD_PIN.
func NewOfferBuilder() *OfferBuilder {
	return &OfferBuilder{req: models.OfferRequest{
		IssuerID:       TestIDs.IssuerID,
		PrimaryScope:   models.ScopeMedicalRecord,
		AssuranceLevel: models.AssuranceNHICardPIN,
		Mode:           models.ModeWithData,
		Payload:        SamplePayload(),
	}}
}

func (b *OfferBuilder) WithScope(scope models.Scope) *OfferBuilder {
	b.req.PrimaryScope = scope
	return b
}

func (b *OfferBuilder) WithAssurance(level models.AssuranceLevel) *OfferBuilder {
	b.req.AssuranceLevel = level
	return b
}

// WithoutData switches to WITHOUT_DATA and drops the payload.
func (b *OfferBuilder) WithoutData() *OfferBuilder {
	b.req.Mode = models.ModeWithoutData
	b.req.Payload = nil
	return b
}

func (b *OfferBuilder) WithHolder(did string) *OfferBuilder {
	b.req.HolderDID = did
	return b
}

func (b *OfferBuilder) WithPolicies(policies ...models.DisclosurePolicy) *OfferBuilder {
	b.req.DisclosurePolicies = policies
	return b
}

func (b *OfferBuilder) WithExternalFields(fields map[string]string) *OfferBuilder {
	b.req.ExternalFields = fields
	return b
}

func (b *OfferBuilder) ValidFor(d time.Duration) *OfferBuilder {
	b.req.ValidFor = d
	return b
}

func (b *OfferBuilder) Build() models.OfferRequest {
	return b.req
}

// NewSessionRequest builds a medical record session asking for fields.
func NewSessionRequest(level models.AssuranceLevel, fields ...string) models.SessionRequest {
	return models.SessionRequest{
		VerifierID:             TestIDs.VerifierID,
		VerifierName:           "Daan Pharmacy",
		Purpose:                "prescription pickup",
		RequiredAssuranceLevel: level,
		Scope:                  models.ScopeMedicalRecord,
		Fields:                 fields,
	}
}
