package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentMethod enumerates how a payment source funded the closing.
type PaymentMethod string

const (
	PaymentWire          PaymentMethod = "wire"
	PaymentCheck         PaymentMethod = "check"
	PaymentCashiersCheck PaymentMethod = "cashiers_check"
	PaymentMoneyOrder    PaymentMethod = "money_order"
	PaymentCurrency      PaymentMethod = "currency"
	PaymentVirtualAsset  PaymentMethod = "virtual_asset"
)

// PaymentSource is one configured source of closing funds. Unless the payer
// explicitly flags the funds as not coming from a financial-institution
// account, the institution fields are required and become an attached
// institution party in the document.
type PaymentSource struct {
	Amount             decimal.Decimal `json:"amount"`
	Method             PaymentMethod   `json:"method"`
	NotFromInstitution bool            `json:"not_from_institution"`
	InstitutionName    string          `json:"institution_name,omitempty"`
	InstitutionTIN     string          `json:"institution_tin,omitempty"`
	InstitutionCountry string          `json:"institution_country,omitempty"`
	AccountNumber      string          `json:"account_number,omitempty"`
	PayerName          string          `json:"payer_name,omitempty"`
}

// ReportingPerson is the escrow-side filer recorded on the report itself,
// distinct from the deployment's transmitting identity.
type ReportingPerson struct {
	BusinessName string  `json:"business_name"`
	TIN          string  `json:"tin"`
	Address      Address `json:"address"`
	Phone        string  `json:"phone,omitempty"`
	Email        string  `json:"email,omitempty"`
}

// Report is the transaction report handed to the pipeline once an external
// determination step has marked it reportable. Read-only to this core except
// for the receipt identifier written back on acceptance.
type Report struct {
	ID               uuid.UUID       `json:"id"`
	PropertyAddress  Address         `json:"property_address"`
	LegalDescription string          `json:"legal_description,omitempty"`
	ClosingDate      time.Time       `json:"closing_date"`
	PurchasePrice    decimal.Decimal `json:"purchase_price"`
	ReportingPerson  ReportingPerson `json:"reporting_person"`
	Transferees      []Party         `json:"transferees"`
	Transferors      []Party         `json:"transferors"`
	PaymentSources   []PaymentSource `json:"payment_sources"`

	// ReceiptID is assigned by the regulator and written back by the
	// lifecycle manager once the filing is accepted.
	ReceiptID string `json:"receipt_id,omitempty"`
}
