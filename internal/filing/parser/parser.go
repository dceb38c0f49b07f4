// Package parser decodes regulator response files into normalized results.
// Two file kinds exist: a status message (accept/reject/warn plus an error
// list) and a final acknowledgment carrying receipt identifiers keyed by
// activity sequence number.
//
// Struct tags use unqualified local names, so encoding/xml matches elements
// regardless of the namespace prefix a given response happens to carry.
package parser

import (
	"encoding/xml"
	"fmt"
	"strings"
)

// ResponseStatus is the normalized overall outcome of a status message.
type ResponseStatus string

const (
	StatusAccepted             ResponseStatus = "accepted"
	StatusRejected             ResponseStatus = "rejected"
	StatusAcceptedWithWarnings ResponseStatus = "accepted_with_warnings"
)

// StatusResult is a parsed status message.
type StatusResult struct {
	Status ResponseStatus
	// Errors holds the regulator's error and warning texts, one entry per
	// reported problem, already prefixed with the error code when present.
	Errors []string
}

type statusMessage struct {
	XMLName xml.Name      `xml:"RERXStatus"`
	Status  string        `xml:"Status"`
	Errors  []statusError `xml:"Errors>Error"`
}

type statusError struct {
	Code string `xml:"code,attr"`
	Text string `xml:",chardata"`
}

// ParseStatusMessage decodes a status-message file. Malformed XML or an
// unrecognized status value is an error, never a silent empty result.
func ParseStatusMessage(data []byte) (*StatusResult, error) {
	var msg statusMessage
	if err := xml.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("parse status message: %w", err)
	}

	status, err := normalizeStatus(msg.Status)
	if err != nil {
		return nil, err
	}

	result := &StatusResult{Status: status}
	for _, e := range msg.Errors {
		text := strings.TrimSpace(e.Text)
		if text == "" {
			continue
		}
		if e.Code != "" {
			text = e.Code + ": " + text
		}
		result.Errors = append(result.Errors, text)
	}

	if status == StatusRejected && len(result.Errors) == 0 {
		result.Errors = append(result.Errors, "rejected without detail; consult the regulator's tracking portal")
	}

	return result, nil
}

func normalizeStatus(raw string) (ResponseStatus, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "accepted":
		return StatusAccepted, nil
	case "rejected":
		return StatusRejected, nil
	case "accepted with warnings", "accepted_with_warnings", "acceptedwithwarnings":
		return StatusAcceptedWithWarnings, nil
	case "":
		return "", fmt.Errorf("status message carries no status value")
	}
	return "", fmt.Errorf("status message carries unknown status %q", raw)
}

type acknowledgment struct {
	XMLName    xml.Name        `xml:"RERXAcknowledgment"`
	Activities []ackedActivity `xml:"Activity"`
}

type ackedActivity struct {
	SeqNum    int64  `xml:"SeqNum,attr"`
	ReceiptID string `xml:"ReceiptID"`
	// Some acknowledgment revisions nest the identifier; accept either.
	AltReceiptID string `xml:"Receipt>ID"`
}

// ParseAcknowledgment decodes an acknowledgment file into a map from activity
// sequence number to receipt identifier, so multi-activity batches stay
// addressable.
func ParseAcknowledgment(data []byte) (map[int64]string, error) {
	var ack acknowledgment
	if err := xml.Unmarshal(data, &ack); err != nil {
		return nil, fmt.Errorf("parse acknowledgment: %w", err)
	}
	if len(ack.Activities) == 0 {
		return nil, fmt.Errorf("acknowledgment carries no activities")
	}

	receipts := make(map[int64]string, len(ack.Activities))
	for _, a := range ack.Activities {
		receipt := strings.TrimSpace(a.ReceiptID)
		if receipt == "" {
			receipt = strings.TrimSpace(a.AltReceiptID)
		}
		if receipt == "" {
			return nil, fmt.Errorf("acknowledgment activity %d carries no receipt identifier", a.SeqNum)
		}
		if a.SeqNum <= 0 {
			return nil, fmt.Errorf("acknowledgment activity has invalid sequence number %d", a.SeqNum)
		}
		receipts[a.SeqNum] = receipt
	}
	return receipts, nil
}
