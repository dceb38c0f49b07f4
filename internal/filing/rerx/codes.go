// Package rerx holds the wire model for the regulator's batch XML schema:
// element structure, party type codes, filename pieces, and response-file
// suffixes. Everything here is external contract; none of it is renegotiable
// locally. Change only against the regulator's published schema revisions.
package rerx

const (
	// FormTypeCode identifies the real-estate transaction report form.
	FormTypeCode = "RERX"

	// FilenamePrefix starts every outbound filename:
	// <prefix>.<YYYYMMDDhhmmss>.<TCC>.xml
	FilenamePrefix = "RERX"

	// FilenameTimestampLayout is the timestamp segment of outbound filenames.
	FilenameTimestampLayout = "20060102150405"

	// StatusMessageSuffix and AcknowledgmentSuffix are appended to the exact
	// outbound filename to derive the regulator's response filenames. Both are
	// wire-compatibility-critical.
	StatusMessageSuffix  = ".status.xml"
	AcknowledgmentSuffix = ".ack.xml"

	// SandboxTCC is the only transmission control code the sandbox endpoint
	// accepts. Non-production builds force it regardless of configuration.
	SandboxTCC = "TBSATEST"

	// DateTextLayout is the format of all date-valued text elements.
	DateTextLayout = "20060102"
)

// Party type codes: the regulator's addressing scheme for sections within an
// activity. One code per role; associated persons carry their own codes and
// reference the parent party's sequence number.
const (
	PartyTypeReportingPerson    = "30"
	PartyTypeTransmitter        = "35"
	PartyTypeTransmitterContact = "37"
	PartyTypeTransferee         = "63"
	PartyTypeTransfereeAssoc    = "64"
	PartyTypeTransferor         = "65"
	PartyTypeTransferorAssoc    = "66"

	// PartyTypeInstitution tags the financial institution attached to a value
	// transfer detail. The schema documents its country element as if always
	// foreign while real institutions here are domestic; we emit the actual
	// country and await regulator clarification rather than reject domestic
	// values.
	PartyTypeInstitution = "68"
)

// Identification type codes carried by PartyIdentification elements.
const (
	IDTypeSSN      = "SSN"
	IDTypeEIN      = "EIN"
	IDTypeTIN      = "TIN"
	IDTypeTCC      = "TCC"
	IDTypePassport = "PASSPORT"
	IDTypeForeign  = "FOREIGN"
)

// Indicator values for yes-valued indicator elements; the schema omits the
// element entirely for "no".
const IndicatorYes = "Y"
