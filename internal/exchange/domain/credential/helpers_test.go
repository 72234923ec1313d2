package credential_test

import (
	"time"

	"medssi/internal/exchange/models"
)

func samplePayload() *models.Payload {
	return &models.Payload{
		Condition: models.ConditionSummary{
			ID:           "cond-1",
			Code:         models.CodeableConcept{Coding: []models.Coding{{System: "http://hl7.org/fhir/sid/icd-10", Code: "K29.7"}}},
			RecordedDate: models.NewDate(2025, time.November, 1),
		},
		EncounterSummaryHash: "urn:sha256:abc",
		ManagingOrganization: models.Identifier{System: "urn:medssi:org", Value: "org:tw-nhi-001"},
		IssuedOn:             models.NewDate(2025, time.November, 2),
	}
}
