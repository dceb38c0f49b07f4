package models

import (
	"time"

	"github.com/shopspring/decimal"

	pkgerrors "rerfiler/pkg/errors"
)

// PartyRole tags which side of the transfer a party sits on.
type PartyRole string

const (
	RoleTransferee PartyRole = "transferee" // buyer
	RoleTransferor PartyRole = "transferor" // seller
)

// PartyKind discriminates the party variants. Exactly one variant field on
// Party must be populated and it must match Kind; the builder switches
// exhaustively on Kind so a new variant fails loudly rather than mapping to
// an empty section.
type PartyKind string

const (
	KindIndividual PartyKind = "individual"
	KindEntity     PartyKind = "entity"
	KindTrust      PartyKind = "trust"
)

// Party is a tagged union over the three party shapes. The Kind tag plus one
// populated variant keeps JSON round-trips trivial and lets preflight reason
// about missing fields per variant instead of optional-everything structs.
type Party struct {
	Role       PartyRole   `json:"role"`
	Kind       PartyKind   `json:"kind"`
	Individual *Individual `json:"individual,omitempty"`
	Entity     *Entity     `json:"entity,omitempty"`
	Trust      *Trust      `json:"trust,omitempty"`
}

// Validate checks the union invariant: Kind set, matching variant populated,
// other variants empty.
func (p *Party) Validate() error {
	var set int
	if p.Individual != nil {
		set++
	}
	if p.Entity != nil {
		set++
	}
	if p.Trust != nil {
		set++
	}
	if set != 1 {
		return pkgerrors.Newf(pkgerrors.CodeValidation, "party must carry exactly one variant, has %d", set)
	}
	switch p.Kind {
	case KindIndividual:
		if p.Individual == nil {
			return pkgerrors.New(pkgerrors.CodeValidation, "party kind is individual but individual variant is empty")
		}
	case KindEntity:
		if p.Entity == nil {
			return pkgerrors.New(pkgerrors.CodeValidation, "party kind is entity but entity variant is empty")
		}
	case KindTrust:
		if p.Trust == nil {
			return pkgerrors.New(pkgerrors.CodeValidation, "party kind is trust but trust variant is empty")
		}
	default:
		return pkgerrors.Newf(pkgerrors.CodeValidation, "unknown party kind %q", p.Kind)
	}
	return nil
}

// ForeignID identifies a party with no domestic tax identifier. A foreign ID
// alone is sufficient identification; preflight must not demand an SSN/EIN
// when one is present.
type ForeignID struct {
	Type    string `json:"type"` // e.g. passport, foreign-tin
	Number  string `json:"number"`
	Country string `json:"country"` // ISO 3166-1 alpha-2
}

// Address is a postal address as collected from the wizard. PostalCode may
// arrive with separators; preflight rejects them rather than silently fixing.
type Address struct {
	Street     string `json:"street"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

// Individual is a natural-person party.
type Individual struct {
	FirstName  string     `json:"first_name"`
	MiddleName string     `json:"middle_name,omitempty"`
	LastName   string     `json:"last_name"`
	Suffix     string     `json:"suffix,omitempty"`
	BirthDate  time.Time  `json:"birth_date"`
	SSN        string     `json:"ssn,omitempty"`
	ForeignID  *ForeignID `json:"foreign_id,omitempty"`
	Address    Address    `json:"address"`
	Phone      string     `json:"phone,omitempty"`
	Email      string     `json:"email,omitempty"`
}

// Entity is a legal-entity party. Buyers of this kind must disclose their
// beneficial owners and signing individuals as associated persons.
type Entity struct {
	LegalName         string             `json:"legal_name"`
	DBAName           string             `json:"dba_name,omitempty"`
	EIN               string             `json:"ein,omitempty"`
	ForeignID         *ForeignID         `json:"foreign_id,omitempty"`
	Address           Address            `json:"address"`
	Phone             string             `json:"phone,omitempty"`
	AssociatedPersons []AssociatedPerson `json:"associated_persons,omitempty"`
}

// Trust is a trust party. Trustees are disclosed as associated persons.
type Trust struct {
	Name          string             `json:"name"`
	ExecutionDate time.Time          `json:"execution_date"`
	Revocable     bool               `json:"revocable"`
	TIN           string             `json:"tin,omitempty"`
	ForeignID     *ForeignID         `json:"foreign_id,omitempty"`
	Address       Address            `json:"address"`
	Trustees      []AssociatedPerson `json:"trustees,omitempty"`
}

// AssociatedPerson is a beneficial owner, signing individual, or trustee
// nested under an entity or trust party.
type AssociatedPerson struct {
	FirstName        string          `json:"first_name"`
	MiddleName       string          `json:"middle_name,omitempty"`
	LastName         string          `json:"last_name"`
	BirthDate        time.Time       `json:"birth_date"`
	SSN              string          `json:"ssn,omitempty"`
	ForeignID        *ForeignID      `json:"foreign_id,omitempty"`
	Address          Address         `json:"address"`
	OwnershipPercent decimal.Decimal `json:"ownership_percent"`
	ControlPerson    bool            `json:"control_person"`
	Capacity         string          `json:"capacity,omitempty"` // e.g. trustee, signer
}
