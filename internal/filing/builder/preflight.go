package builder

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"rerfiler/internal/filing/rerx"
	pkgerrors "rerfiler/pkg/errors"
)

// PreflightError reports every structural violation found in a document. The
// caller must not transmit when one is returned; each reason is written for a
// human correcting the data, not for a log grep.
type PreflightError struct {
	Reasons []string
}

func (e *PreflightError) Error() string {
	return fmt.Sprintf("preflight failed: %s", strings.Join(e.Reasons, "; "))
}

// IsPreflight reports whether err is a data problem that blocks transmission,
// as opposed to an infrastructure failure worth retrying.
func IsPreflight(err error) bool {
	var pe *PreflightError
	if errors.As(err, &pe) {
		return true
	}
	return pkgerrors.HasCode(err, pkgerrors.CodeValidation)
}

// FailureReasons extracts the human-readable reason list from a preflight
// failure, falling back to the error message for single-cause failures.
func FailureReasons(err error) []string {
	var pe *PreflightError
	if errors.As(err, &pe) {
		return pe.Reasons
	}
	if err != nil {
		return []string{err.Error()}
	}
	return nil
}

// placeholderValues are junk strings users type to get past required form
// fields. Matching is case-insensitive on the trimmed value.
var placeholderValues = []string{"unknown", "n/a", "none", "not applicable", "see above"}

// Preflight checks the hard pre-transmission rules against a built or parsed
// document. minFilingDate bounds the filing date from below, now from above.
// Returns nil when the document may be transmitted.
func Preflight(batch *rerx.Batch, minFilingDate, now time.Time) *PreflightError {
	var reasons []string
	add := func(format string, args ...any) {
		reasons = append(reasons, fmt.Sprintf(format, args...))
	}

	if batch == nil {
		return &PreflightError{Reasons: []string{"document is empty"}}
	}
	if batch.FormTypeCode != rerx.FormTypeCode {
		add("form type code is %q, want %q", batch.FormTypeCode, rerx.FormTypeCode)
	}
	if len(batch.Activities) != 1 {
		add("document must contain exactly one activity, has %d", len(batch.Activities))
	}
	if batch.ActivityCount != len(batch.Activities) {
		add("activity count attribute %d does not match %d activities", batch.ActivityCount, len(batch.Activities))
	}

	seqs := map[int64]bool{}
	checkSeq := func(seq int64, what string) {
		if seq <= 0 {
			add("%s has non-positive sequence number %d", what, seq)
			return
		}
		if seqs[seq] {
			add("%s reuses sequence number %d", what, seq)
		}
		seqs[seq] = true
	}

	for i := range batch.Activities {
		a := &batch.Activities[i]
		checkSeq(a.SeqNum, "activity")

		checkFilingDate(a.FilingDateText, minFilingDate, now, add)

		if a.Association.InitialReportIndicator != rerx.IndicatorYes {
			add("activity is not marked as an initial report")
		}

		counts := map[string]int{}
		for j := range a.Parties {
			p := &a.Parties[j]
			counts[p.TypeCode]++
			checkSeq(p.SeqNum, partyLabel(p.TypeCode))
			checkParty(p, add)
		}

		checkCount(counts, rerx.PartyTypeReportingPerson, 1, 1, "reporting person", add)
		checkCount(counts, rerx.PartyTypeTransmitter, 1, 1, "transmitter", add)
		checkCount(counts, rerx.PartyTypeTransmitterContact, 1, 1, "transmitter contact", add)
		checkCount(counts, rerx.PartyTypeTransferee, 1, -1, "transferee (buyer)", add)
		checkCount(counts, rerx.PartyTypeTransferor, 1, -1, "transferor (seller)", add)

		checkTransmitterIdentity(a, add)

		checkSeq(a.Asset.SeqNum, "asset")
		checkAddress(&a.Asset.Address, "property address", add)

		checkSeq(a.ValueTransfer.SeqNum, "value transfer")
		if len(a.ValueTransfer.Details) == 0 {
			add("value transfer carries no payment details")
		}
		for k := range a.ValueTransfer.Details {
			d := &a.ValueTransfer.Details[k]
			checkSeq(d.SeqNum, "payment detail")
			if d.NoInstitutionAccountIndicator != rerx.IndicatorYes {
				if d.Institution == nil || d.Institution.Name.RawPartyFullName == "" {
					add("payment detail %d is missing its financial institution", k+1)
				} else {
					checkSeq(d.Institution.SeqNum, "financial institution")
					checkParty(d.Institution, add)
				}
			}
		}
	}

	if len(reasons) == 0 {
		return nil
	}
	return &PreflightError{Reasons: reasons}
}

func checkFilingDate(text string, minFilingDate, now time.Time, add func(string, ...any)) {
	if text == "" {
		add("filing date is missing")
		return
	}
	parsed, err := time.Parse(rerx.DateTextLayout, text)
	if err != nil {
		add("filing date %q is not a valid %s date", text, rerx.DateTextLayout)
		return
	}
	if !minFilingDate.IsZero() && parsed.Before(truncateToDay(minFilingDate)) {
		add("filing date %s is before the minimum valid filing date %s",
			text, minFilingDate.Format(rerx.DateTextLayout))
	}
	if parsed.After(truncateToDay(now)) {
		add("filing date %s is in the future", text)
	}
}

func truncateToDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func checkCount(counts map[string]int, typeCode string, min, max int, label string, add func(string, ...any)) {
	n := counts[typeCode]
	if n < min {
		if min == 1 && max == 1 {
			add("document must contain exactly one %s party, has %d", label, n)
		} else {
			add("document must contain at least %d %s party, has %d", min, label, n)
		}
		return
	}
	if max > 0 && n > max {
		add("document must contain at most %d %s party, has %d", max, label, n)
	}
}

// checkTransmitterIdentity verifies the configured transmitting identity made
// it onto the transmitter party. Missing values here almost always mean
// deployment configuration, not transaction data.
func checkTransmitterIdentity(a *rerx.Activity, add func(string, ...any)) {
	transmitters := a.PartiesByType(rerx.PartyTypeTransmitter)
	if len(transmitters) != 1 {
		return // counted separately
	}
	var hasTIN, hasTCC bool
	for _, id := range transmitters[0].Identifications {
		switch id.TypeCode {
		case rerx.IDTypeTIN:
			hasTIN = id.NumberText != ""
		case rerx.IDTypeTCC:
			hasTCC = id.NumberText != ""
		}
	}
	if !hasTIN {
		add("transmitter TIN not configured")
	}
	if !hasTCC {
		add("transmitter control code not configured")
	}
}

func checkParty(p *rerx.Party, add func(string, ...any)) {
	label := partyLabel(p.TypeCode)

	if !digitsOnly(p.PhoneNumberText) {
		add("%s phone number %q must contain digits only", label, p.PhoneNumberText)
	}

	checkPlaceholder(p.Name.RawPartyFullName, label+" name", add)
	checkPlaceholder(p.Name.RawIndividualFirstName, label+" first name", add)
	checkPlaceholder(p.Name.RawIndividualLastName, label+" last name", add)

	if p.Address != nil {
		checkAddress(p.Address, label+" address", add)
	}

	switch p.TypeCode {
	case rerx.PartyTypeTransferee:
		if len(p.Identifications) == 0 {
			add("missing buyer identification")
		}
	case rerx.PartyTypeTransferor:
		if len(p.Identifications) == 0 {
			add("missing seller identification")
		}
	}

	if hasName := p.Name.RawPartyFullName != "" || p.Name.RawIndividualLastName != ""; !hasName {
		add("%s has no name", label)
	}
}

func checkAddress(a *rerx.PartyAddress, label string, add func(string, ...any)) {
	if !postalCodeClean(a.RawZIPCode) {
		add("%s postal code %q must not contain separators", label, a.RawZIPCode)
	}
	checkPlaceholder(a.RawStreetAddress1Text, label+" street", add)
	checkPlaceholder(a.RawCityText, label+" city", add)
}

func checkPlaceholder(value, label string, add func(string, ...any)) {
	trimmed := strings.ToLower(strings.TrimSpace(value))
	for _, bad := range placeholderValues {
		if trimmed == bad {
			add("%s is the placeholder value %q", label, value)
			return
		}
	}
}

func digitsOnly(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// postalCodeClean allows letters and digits (foreign postal codes carry
// letters) but no separators.
func postalCodeClean(s string) bool {
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		default:
			return false
		}
	}
	return true
}

func partyLabel(typeCode string) string {
	switch typeCode {
	case rerx.PartyTypeReportingPerson:
		return "reporting person"
	case rerx.PartyTypeTransmitter:
		return "transmitter"
	case rerx.PartyTypeTransmitterContact:
		return "transmitter contact"
	case rerx.PartyTypeTransferee:
		return "transferee"
	case rerx.PartyTypeTransfereeAssoc:
		return "transferee associated person"
	case rerx.PartyTypeTransferor:
		return "transferor"
	case rerx.PartyTypeTransferorAssoc:
		return "transferor associated person"
	case rerx.PartyTypeInstitution:
		return "financial institution"
	}
	return fmt.Sprintf("party type %s", typeCode)
}
