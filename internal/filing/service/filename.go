package service

import (
	"fmt"
	"time"

	"rerfiler/internal/filing/rerx"
)

// GenerateFilename builds an outbound filename per the fixed convention:
// <FORM-PREFIX>.<YYYYMMDDhhmmss>.<transmitting-identity-segment>.xml
func GenerateFilename(ts time.Time, identitySegment string) string {
	return fmt.Sprintf("%s.%s.%s.xml",
		rerx.FilenamePrefix,
		ts.UTC().Format(rerx.FilenameTimestampLayout),
		identitySegment,
	)
}

// StatusMessageFilename derives the regulator's status-message filename from
// the exact outbound filename.
func StatusMessageFilename(outbound string) string {
	return outbound + rerx.StatusMessageSuffix
}

// AcknowledgmentFilename derives the regulator's acknowledgment filename from
// the exact outbound filename.
func AcknowledgmentFilename(outbound string) string {
	return outbound + rerx.AcknowledgmentSuffix
}
