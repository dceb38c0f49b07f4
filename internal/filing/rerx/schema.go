package rerx

import (
	"encoding/xml"
	"fmt"
)

// Batch is the document root. Exactly one Activity per report today; the
// count attribute exists so multi-activity batches stay possible.
type Batch struct {
	XMLName       xml.Name   `xml:"RERXBatch"`
	FormTypeCode  string     `xml:"FormTypeCode,attr"`
	ActivityCount int        `xml:"ActivityCount,attr"`
	Activities    []Activity `xml:"Activity"`
}

// Activity is the per-report container. Element order is fixed by the schema
// and mirrored by field order here; encoding/xml emits fields in declaration
// order.
type Activity struct {
	SeqNum         int64               `xml:"SeqNum,attr"`
	FilingDateText string              `xml:"FilingDateText"`
	Association    ActivityAssociation `xml:"ActivityAssociation"`
	Parties        []Party             `xml:"Party"`
	Asset          Asset               `xml:"Asset"`
	ValueTransfer  ValueTransfer       `xml:"ValueTransfer"`
}

// ActivityAssociation flags the report kind. This pipeline only files
// initial reports; corrections are a separate submission created by a human.
type ActivityAssociation struct {
	InitialReportIndicator  string `xml:"InitialReportIndicator,omitempty"`
	CorrectsAmendsIndicator string `xml:"CorrectsAmendsIndicator,omitempty"`
}

// Party is any actor section within an activity. Which fields apply depends
// on TypeCode; the builder owns that mapping, this type just carries the
// superset the schema defines.
type Party struct {
	SeqNum   int64  `xml:"SeqNum,attr"`
	TypeCode string `xml:"ActivityPartyTypeCode"`

	// ParentSeqNum ties an associated person (beneficial owner, signer,
	// trustee) or an attached institution to its parent party section.
	ParentSeqNum int64 `xml:"AssociatedPartySeqNum,omitempty"`

	Name             PartyName             `xml:"PartyName"`
	BirthDateText    string                `xml:"IndividualBirthDateText,omitempty"`
	Identifications  []PartyIdentification `xml:"PartyIdentification"`
	Address          *PartyAddress         `xml:"Address,omitempty"`
	PhoneNumberText  string                `xml:"PhoneNumberText,omitempty"`
	EmailAddressText string                `xml:"EmailAddressText,omitempty"`

	// Trust-only fields.
	TrustExecutionDateText  string `xml:"TrustExecutionDateText,omitempty"`
	TrustRevocableIndicator string `xml:"TrustRevocableIndicator,omitempty"`

	// Associated-person-only fields.
	OwnershipPercentageText string `xml:"OwnershipPercentageText,omitempty"`
	ControlPersonIndicator  string `xml:"ControlPersonIndicator,omitempty"`
	CapacityText            string `xml:"CapacityText,omitempty"`
}

// PartyName carries either the individual name split or the full legal name,
// never both.
type PartyName struct {
	RawIndividualFirstName  string `xml:"RawIndividualFirstName,omitempty"`
	RawIndividualMiddleName string `xml:"RawIndividualMiddleName,omitempty"`
	RawIndividualLastName   string `xml:"RawIndividualLastName,omitempty"`
	RawSuffixText           string `xml:"RawSuffixText,omitempty"`
	RawPartyFullName        string `xml:"RawPartyFullName,omitempty"`
}

// PartyIdentification is one identifier (SSN, EIN, TIN, TCC, passport,
// other foreign ID) attached to a party.
type PartyIdentification struct {
	TypeCode          string `xml:"PartyIdentificationTypeCode"`
	NumberText        string `xml:"PartyIdentificationNumberText"`
	IssuerCountryText string `xml:"OtherIssuerCountryText,omitempty"`
}

// PartyAddress is the schema's address shape.
type PartyAddress struct {
	RawStreetAddress1Text string `xml:"RawStreetAddress1Text,omitempty"`
	RawCityText           string `xml:"RawCityText,omitempty"`
	RawStateCodeText      string `xml:"RawStateCodeText,omitempty"`
	RawZIPCode            string `xml:"RawZIPCode,omitempty"`
	RawCountryCodeText    string `xml:"RawCountryCodeText,omitempty"`
}

// Asset is the property section.
type Asset struct {
	SeqNum               int64        `xml:"SeqNum,attr"`
	Address              PartyAddress `xml:"Address"`
	LegalDescriptionText string       `xml:"LegalDescriptionText,omitempty"`
}

// ValueTransfer is the single payment section; one detail per payment source.
type ValueTransfer struct {
	SeqNum          int64                 `xml:"SeqNum,attr"`
	TotalAmountText string                `xml:"TotalAmountText"`
	Details         []ValueTransferDetail `xml:"ValueTransferDetail"`
}

// ValueTransferDetail is one payment source. Institution is present unless
// the source was flagged as not drawn on a financial-institution account, in
// which case NoInstitutionAccountIndicator is set instead.
type ValueTransferDetail struct {
	SeqNum                        int64  `xml:"SeqNum,attr"`
	AmountText                    string `xml:"AmountText"`
	PaymentMethodCode             string `xml:"PaymentMethodCode"`
	PayerNameText                 string `xml:"PayerNameText,omitempty"`
	AccountNumberText             string `xml:"AccountNumberText,omitempty"`
	NoInstitutionAccountIndicator string `xml:"NoInstitutionAccountIndicator,omitempty"`
	Institution                   *Party `xml:"Party,omitempty"`
}

// Marshal renders the batch with the XML header and indentation the
// regulator's samples use.
func (b *Batch) Marshal() ([]byte, error) {
	body, err := xml.MarshalIndent(b, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal batch: %w", err)
	}
	return append([]byte(xml.Header), body...), nil
}

// Parse decodes a batch document, for the validate tooling and tests.
func Parse(data []byte) (*Batch, error) {
	var b Batch
	if err := xml.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("parse batch: %w", err)
	}
	return &b, nil
}

// PartiesByType returns the activity's parties carrying the given type code,
// preserving document order.
func (a *Activity) PartiesByType(typeCode string) []Party {
	var out []Party
	for _, p := range a.Parties {
		if p.TypeCode == typeCode {
			out = append(out, p)
		}
	}
	return out
}
