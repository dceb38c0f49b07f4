// Package testutil provides shared fixtures and helpers for pipeline tests.
package testutil

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"rerfiler/internal/filing/models"
)

// FixtureClosingDate is after the regime start date used in tests and before
// any plausible test clock.
var FixtureClosingDate = time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)

// USAddress returns a well-formed domestic address.
func USAddress() models.Address {
	return models.Address{
		Street:     "12 Harbor Lane",
		City:       "Portland",
		State:      "ME",
		PostalCode: "04101",
		Country:    "US",
	}
}

// IndividualBuyer returns a valid natural-person transferee with a domestic
// tax identifier.
func IndividualBuyer() models.Party {
	return models.Party{
		Role: models.RoleTransferee,
		Kind: models.KindIndividual,
		Individual: &models.Individual{
			FirstName: "Avery",
			LastName:  "Stone",
			BirthDate: time.Date(1984, 6, 2, 0, 0, 0, 0, time.UTC),
			SSN:       "123456789",
			Address:   USAddress(),
			Phone:     "2075550101",
			Email:     "avery.stone@example.com",
		},
	}
}

// IndividualSeller returns a valid natural-person transferor.
func IndividualSeller() models.Party {
	return models.Party{
		Role: models.RoleTransferor,
		Kind: models.KindIndividual,
		Individual: &models.Individual{
			FirstName: "Rowan",
			LastName:  "Vale",
			BirthDate: time.Date(1971, 11, 23, 0, 0, 0, 0, time.UTC),
			SSN:       "987654321",
			Address:   USAddress(),
			Phone:     "2075550102",
		},
	}
}

// EntityBuyer returns a legal-entity transferee with two beneficial owners
// holding 60/40.
func EntityBuyer() models.Party {
	return models.Party{
		Role: models.RoleTransferee,
		Kind: models.KindEntity,
		Entity: &models.Entity{
			LegalName: "Granite Coast Holdings LLC",
			EIN:       "912345678",
			Address:   USAddress(),
			Phone:     "2075550110",
			AssociatedPersons: []models.AssociatedPerson{
				{
					FirstName:        "Mara",
					LastName:         "Quill",
					BirthDate:        time.Date(1979, 3, 9, 0, 0, 0, 0, time.UTC),
					SSN:              "111223333",
					Address:          USAddress(),
					OwnershipPercent: decimal.NewFromInt(60),
					ControlPerson:    true,
					Capacity:         "managing member",
				},
				{
					FirstName:        "Theo",
					LastName:         "Quill",
					BirthDate:        time.Date(1982, 8, 30, 0, 0, 0, 0, time.UTC),
					SSN:              "444556666",
					Address:          USAddress(),
					OwnershipPercent: decimal.NewFromInt(40),
					Capacity:         "member",
				},
			},
		},
	}
}

// TrustBuyer returns a trust transferee with one trustee.
func TrustBuyer() models.Party {
	return models.Party{
		Role: models.RoleTransferee,
		Kind: models.KindTrust,
		Trust: &models.Trust{
			Name:          "Stone Family Revocable Trust",
			ExecutionDate: time.Date(2019, 4, 1, 0, 0, 0, 0, time.UTC),
			Revocable:     true,
			TIN:           "887766554",
			Address:       USAddress(),
			Trustees: []models.AssociatedPerson{
				{
					FirstName: "Avery",
					LastName:  "Stone",
					BirthDate: time.Date(1984, 6, 2, 0, 0, 0, 0, time.UTC),
					SSN:       "123456789",
					Address:   USAddress(),
					Capacity:  "trustee",
				},
			},
		},
	}
}

// WirePayment returns a payment source funded from an institution account.
func WirePayment(amount int64) models.PaymentSource {
	return models.PaymentSource{
		Amount:             decimal.NewFromInt(amount),
		Method:             models.PaymentWire,
		InstitutionName:    "First Coastal Bank",
		InstitutionTIN:     "556677889",
		InstitutionCountry: "US",
		AccountNumber:      "001122334455",
		PayerName:          "Avery Stone",
	}
}

// Report returns a complete, preflight-clean report: one individual buyer,
// one individual seller, one wire payment source. Tests mutate the copy to
// provoke specific failures.
func Report() *models.Report {
	return &models.Report{
		ID:              uuid.New(),
		PropertyAddress: USAddress(),
		ClosingDate:     FixtureClosingDate,
		PurchasePrice:   decimal.NewFromInt(425000),
		ReportingPerson: models.ReportingPerson{
			BusinessName: "Harborline Escrow LLC",
			TIN:          "341234567",
			Address:      USAddress(),
			Phone:        "2075550199",
			Email:        "filings@harborline.example.com",
		},
		Transferees:    []models.Party{IndividualBuyer()},
		Transferors:    []models.Party{IndividualSeller()},
		PaymentSources: []models.PaymentSource{WirePayment(425000)},
	}
}
