// Package builder maps an internal transaction report onto the regulator's
// batch XML document and preflight-validates the result. Build never returns
// a document that has not passed preflight.
package builder

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"rerfiler/internal/filing/models"
	"rerfiler/internal/filing/rerx"
)

// Config is the transmitting identity and filing policy for one deployment.
// It comes from deployment configuration, never from transaction data.
type Config struct {
	TransmitterName    string
	TransmitterTIN     string
	TransmitterTCC     string
	TransmitterAddress models.Address
	TransmitterPhone   string

	ContactName  string
	ContactPhone string
	ContactEmail string

	// MinFilingDate rejects documents dated before the regime took effect.
	MinFilingDate time.Time

	// Sandbox forces the sandbox-only transmission control code so a
	// misconfigured staging deployment can never file with production
	// credentials.
	Sandbox bool
}

// Summary is the operator-facing digest of a built document.
type Summary struct {
	ActivitySeq       int64
	Transferees       int
	Transferors       int
	AssociatedPersons int
	PaymentDetails    int
	Parties           int
}

// Builder builds RERX batch documents.
type Builder struct {
	cfg    Config
	clock  func() time.Time
	logger *slog.Logger
}

// Option configures a Builder.
type Option func(*Builder)

// WithClock sets the time source, for tests.
func WithClock(clock func() time.Time) Option {
	return func(b *Builder) {
		if clock != nil {
			b.clock = clock
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Builder) {
		b.logger = logger
	}
}

// New constructs a Builder. Transmitter identity completeness is checked at
// build time, not here, so one misconfigured field surfaces as a preflight
// reason instead of a startup crash loop.
func New(cfg Config, opts ...Option) *Builder {
	b := &Builder{cfg: cfg, clock: time.Now}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build maps the report into a batch document carrying the submission's
// activity sequence number, then preflights it. On any preflight violation it
// returns a *PreflightError and no document.
func (b *Builder) Build(report *models.Report, sub *models.Submission) (*rerx.Batch, *Summary, error) {
	if report == nil {
		return nil, nil, fmt.Errorf("report is required")
	}
	if sub == nil {
		return nil, nil, fmt.Errorf("submission is required")
	}

	activitySeq := sub.ActivitySeq
	if activitySeq <= 0 {
		activitySeq = 1
	}

	tcc := b.cfg.TransmitterTCC
	if b.cfg.Sandbox {
		tcc = rerx.SandboxTCC
	}

	seq := newSeqCounter(activitySeq)
	filingDate := b.clock().UTC()

	activity := rerx.Activity{
		SeqNum:         activitySeq,
		FilingDateText: filingDate.Format(rerx.DateTextLayout),
		Association:    rerx.ActivityAssociation{InitialReportIndicator: rerx.IndicatorYes},
	}

	summary := &Summary{ActivitySeq: activitySeq}

	activity.Parties = append(activity.Parties, b.mapReportingPerson(seq, report.ReportingPerson))

	for i := range report.Transferees {
		parent, assoc, err := mapTransactionParty(seq, &report.Transferees[i], rerx.PartyTypeTransferee, rerx.PartyTypeTransfereeAssoc)
		if err != nil {
			return nil, nil, err
		}
		activity.Parties = append(activity.Parties, parent)
		activity.Parties = append(activity.Parties, assoc...)
		summary.Transferees++
		summary.AssociatedPersons += len(assoc)
	}

	for i := range report.Transferors {
		parent, assoc, err := mapTransactionParty(seq, &report.Transferors[i], rerx.PartyTypeTransferor, rerx.PartyTypeTransferorAssoc)
		if err != nil {
			return nil, nil, err
		}
		activity.Parties = append(activity.Parties, parent)
		activity.Parties = append(activity.Parties, assoc...)
		summary.Transferors++
		summary.AssociatedPersons += len(assoc)
	}

	activity.Parties = append(activity.Parties, b.mapTransmitter(seq, tcc))
	activity.Parties = append(activity.Parties, b.mapTransmitterContact(seq))

	activity.Asset = rerx.Asset{
		SeqNum:               seq.next(),
		Address:              mapAddress(report.PropertyAddress),
		LegalDescriptionText: report.LegalDescription,
	}

	activity.ValueTransfer = mapValueTransfer(seq, report)
	summary.PaymentDetails = len(activity.ValueTransfer.Details)
	summary.Parties = len(activity.Parties)

	batch := &rerx.Batch{
		FormTypeCode:  rerx.FormTypeCode,
		ActivityCount: 1,
		Activities:    []rerx.Activity{activity},
	}

	if err := Preflight(batch, b.cfg.MinFilingDate, filingDate); err != nil {
		if b.logger != nil {
			b.logger.Warn("preflight failed",
				"report_id", report.ID,
				"reasons", len(err.Reasons),
			)
		}
		return nil, nil, err
	}

	return batch, summary, nil
}

// seqCounter hands out document-unique sequence numbers. The activity takes
// its own number; every other section takes the next one.
type seqCounter struct{ n int64 }

func newSeqCounter(activitySeq int64) *seqCounter { return &seqCounter{n: activitySeq} }

func (c *seqCounter) next() int64 {
	c.n++
	return c.n
}

func (b *Builder) mapReportingPerson(seq *seqCounter, rp models.ReportingPerson) rerx.Party {
	p := rerx.Party{
		SeqNum:           seq.next(),
		TypeCode:         rerx.PartyTypeReportingPerson,
		Name:             rerx.PartyName{RawPartyFullName: rp.BusinessName},
		Address:          addrPtr(mapAddress(rp.Address)),
		PhoneNumberText:  rp.Phone,
		EmailAddressText: rp.Email,
	}
	if rp.TIN != "" {
		p.Identifications = append(p.Identifications, rerx.PartyIdentification{
			TypeCode:   rerx.IDTypeTIN,
			NumberText: rp.TIN,
		})
	}
	return p
}

func (b *Builder) mapTransmitter(seq *seqCounter, tcc string) rerx.Party {
	p := rerx.Party{
		SeqNum:          seq.next(),
		TypeCode:        rerx.PartyTypeTransmitter,
		Name:            rerx.PartyName{RawPartyFullName: b.cfg.TransmitterName},
		Address:         addrPtr(mapAddress(b.cfg.TransmitterAddress)),
		PhoneNumberText: b.cfg.TransmitterPhone,
	}
	if b.cfg.TransmitterTIN != "" {
		p.Identifications = append(p.Identifications, rerx.PartyIdentification{
			TypeCode:   rerx.IDTypeTIN,
			NumberText: b.cfg.TransmitterTIN,
		})
	}
	if tcc != "" {
		p.Identifications = append(p.Identifications, rerx.PartyIdentification{
			TypeCode:   rerx.IDTypeTCC,
			NumberText: tcc,
		})
	}
	return p
}

func (b *Builder) mapTransmitterContact(seq *seqCounter) rerx.Party {
	return rerx.Party{
		SeqNum:           seq.next(),
		TypeCode:         rerx.PartyTypeTransmitterContact,
		Name:             rerx.PartyName{RawPartyFullName: b.cfg.ContactName},
		PhoneNumberText:  b.cfg.ContactPhone,
		EmailAddressText: b.cfg.ContactEmail,
	}
}

// mapTransactionParty maps one buyer or seller plus its associated persons.
// The switch over Kind is exhaustive; an unknown kind is a programming error,
// not a preflight finding.
func mapTransactionParty(seq *seqCounter, party *models.Party, typeCode, assocTypeCode string) (rerx.Party, []rerx.Party, error) {
	if err := party.Validate(); err != nil {
		return rerx.Party{}, nil, err
	}

	switch party.Kind {
	case models.KindIndividual:
		return mapIndividual(seq, party.Individual, typeCode), nil, nil

	case models.KindEntity:
		parent := rerx.Party{
			SeqNum:          seq.next(),
			TypeCode:        typeCode,
			Name:            rerx.PartyName{RawPartyFullName: party.Entity.LegalName},
			Address:         addrPtr(mapAddress(party.Entity.Address)),
			PhoneNumberText: party.Entity.Phone,
		}
		parent.Identifications = entityIdentifications(party.Entity)
		assoc := make([]rerx.Party, 0, len(party.Entity.AssociatedPersons))
		for i := range party.Entity.AssociatedPersons {
			assoc = append(assoc, mapAssociatedPerson(seq, &party.Entity.AssociatedPersons[i], assocTypeCode, parent.SeqNum))
		}
		return parent, assoc, nil

	case models.KindTrust:
		parent := rerx.Party{
			SeqNum:                 seq.next(),
			TypeCode:               typeCode,
			Name:                   rerx.PartyName{RawPartyFullName: party.Trust.Name},
			Address:                addrPtr(mapAddress(party.Trust.Address)),
			TrustExecutionDateText: party.Trust.ExecutionDate.Format(rerx.DateTextLayout),
		}
		if party.Trust.Revocable {
			parent.TrustRevocableIndicator = rerx.IndicatorYes
		}
		parent.Identifications = trustIdentifications(party.Trust)
		assoc := make([]rerx.Party, 0, len(party.Trust.Trustees))
		for i := range party.Trust.Trustees {
			assoc = append(assoc, mapAssociatedPerson(seq, &party.Trust.Trustees[i], assocTypeCode, parent.SeqNum))
		}
		return parent, assoc, nil
	}

	return rerx.Party{}, nil, fmt.Errorf("unmapped party kind %q", party.Kind)
}

func mapIndividual(seq *seqCounter, ind *models.Individual, typeCode string) rerx.Party {
	p := rerx.Party{
		SeqNum:   seq.next(),
		TypeCode: typeCode,
		Name: rerx.PartyName{
			RawIndividualFirstName:  ind.FirstName,
			RawIndividualMiddleName: ind.MiddleName,
			RawIndividualLastName:   ind.LastName,
			RawSuffixText:           ind.Suffix,
		},
		Address:          addrPtr(mapAddress(ind.Address)),
		PhoneNumberText:  ind.Phone,
		EmailAddressText: ind.Email,
	}
	if !ind.BirthDate.IsZero() {
		p.BirthDateText = ind.BirthDate.Format(rerx.DateTextLayout)
	}
	p.Identifications = individualIdentifications(ind.SSN, ind.ForeignID)
	return p
}

func mapAssociatedPerson(seq *seqCounter, ap *models.AssociatedPerson, typeCode string, parentSeq int64) rerx.Party {
	p := rerx.Party{
		SeqNum:       seq.next(),
		TypeCode:     typeCode,
		ParentSeqNum: parentSeq,
		Name: rerx.PartyName{
			RawIndividualFirstName:  ap.FirstName,
			RawIndividualMiddleName: ap.MiddleName,
			RawIndividualLastName:   ap.LastName,
		},
		Address:      addrPtr(mapAddress(ap.Address)),
		CapacityText: ap.Capacity,
	}
	if !ap.BirthDate.IsZero() {
		p.BirthDateText = ap.BirthDate.Format(rerx.DateTextLayout)
	}
	if !ap.OwnershipPercent.IsZero() {
		p.OwnershipPercentageText = ap.OwnershipPercent.String()
	}
	if ap.ControlPerson {
		p.ControlPersonIndicator = rerx.IndicatorYes
	}
	p.Identifications = individualIdentifications(ap.SSN, ap.ForeignID)
	return p
}

// individualIdentifications prefers the domestic identifier; a foreign ID
// alone is sufficient for foreign persons.
func individualIdentifications(ssn string, fid *models.ForeignID) []rerx.PartyIdentification {
	var ids []rerx.PartyIdentification
	if ssn != "" {
		ids = append(ids, rerx.PartyIdentification{TypeCode: rerx.IDTypeSSN, NumberText: ssn})
	}
	if fid != nil {
		ids = append(ids, foreignIdentification(fid))
	}
	return ids
}

func entityIdentifications(e *models.Entity) []rerx.PartyIdentification {
	var ids []rerx.PartyIdentification
	if e.EIN != "" {
		ids = append(ids, rerx.PartyIdentification{TypeCode: rerx.IDTypeEIN, NumberText: e.EIN})
	}
	if e.ForeignID != nil {
		ids = append(ids, foreignIdentification(e.ForeignID))
	}
	return ids
}

func trustIdentifications(t *models.Trust) []rerx.PartyIdentification {
	var ids []rerx.PartyIdentification
	if t.TIN != "" {
		ids = append(ids, rerx.PartyIdentification{TypeCode: rerx.IDTypeTIN, NumberText: t.TIN})
	}
	if t.ForeignID != nil {
		ids = append(ids, foreignIdentification(t.ForeignID))
	}
	return ids
}

func foreignIdentification(fid *models.ForeignID) rerx.PartyIdentification {
	typeCode := rerx.IDTypeForeign
	if fid.Type == "passport" {
		typeCode = rerx.IDTypePassport
	}
	return rerx.PartyIdentification{
		TypeCode:          typeCode,
		NumberText:        fid.Number,
		IssuerCountryText: fid.Country,
	}
}

func mapValueTransfer(seq *seqCounter, report *models.Report) rerx.ValueTransfer {
	vt := rerx.ValueTransfer{
		SeqNum:          seq.next(),
		TotalAmountText: wholeDollars(report.PurchasePrice),
	}
	for i := range report.PaymentSources {
		src := &report.PaymentSources[i]
		detail := rerx.ValueTransferDetail{
			SeqNum:            seq.next(),
			AmountText:        wholeDollars(src.Amount),
			PaymentMethodCode: string(src.Method),
			PayerNameText:     src.PayerName,
			AccountNumberText: src.AccountNumber,
		}
		if src.NotFromInstitution {
			detail.NoInstitutionAccountIndicator = rerx.IndicatorYes
		} else {
			detail.Institution = &rerx.Party{
				SeqNum:   seq.next(),
				TypeCode: rerx.PartyTypeInstitution,
				Name:     rerx.PartyName{RawPartyFullName: src.InstitutionName},
				Address:  &rerx.PartyAddress{RawCountryCodeText: src.InstitutionCountry},
			}
			if src.InstitutionTIN != "" {
				detail.Institution.Identifications = []rerx.PartyIdentification{
					{TypeCode: rerx.IDTypeTIN, NumberText: src.InstitutionTIN},
				}
			}
		}
		vt.Details = append(vt.Details, detail)
	}
	return vt
}

func mapAddress(a models.Address) rerx.PartyAddress {
	return rerx.PartyAddress{
		RawStreetAddress1Text: a.Street,
		RawCityText:           a.City,
		RawStateCodeText:      a.State,
		RawZIPCode:            a.PostalCode,
		RawCountryCodeText:    a.Country,
	}
}

func addrPtr(a rerx.PartyAddress) *rerx.PartyAddress { return &a }

// wholeDollars renders a monetary amount as the whole-dollar text the schema
// requires, rounding half away from zero.
func wholeDollars(d decimal.Decimal) string {
	return d.Round(0).String()
}
