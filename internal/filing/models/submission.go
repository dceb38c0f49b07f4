package models

import (
	"time"

	"github.com/google/uuid"
)

// SubmissionStatus is the durable lifecycle state of a filing.
type SubmissionStatus string

const (
	// StatusQueued: created, nothing delivered yet. Retries re-enter here.
	StatusQueued SubmissionStatus = "queued"
	// StatusSubmitted: document uploaded, awaiting regulator responses.
	StatusSubmitted SubmissionStatus = "submitted"
	// StatusAccepted: acknowledgment carried a receipt identifier. Terminal.
	StatusAccepted SubmissionStatus = "accepted"
	// StatusRejected: hard regulator rejection. Terminal for this submission;
	// a corrected filing is a human decision outside this core.
	StatusRejected SubmissionStatus = "rejected"
	// StatusNeedsReview: preflight failure, regulator warnings, or response
	// timeout. Re-enterable: a human can retry after correction.
	StatusNeedsReview SubmissionStatus = "needs_review"
)

// IsValid reports whether s is a known status value.
func (s SubmissionStatus) IsValid() bool {
	switch s {
	case StatusQueued, StatusSubmitted, StatusAccepted, StatusRejected, StatusNeedsReview:
		return true
	}
	return false
}

// IsTerminal reports whether no further pipeline work applies.
func (s SubmissionStatus) IsTerminal() bool {
	return s == StatusAccepted || s == StatusRejected
}

// CanTransitionTo encodes the allowed state machine:
//
//	queued → submitted | needs_review
//	submitted → accepted | rejected | needs_review
//	needs_review → queued-semantics (retry) → submitted | needs_review
//
// Terminal states accept no transitions.
func (s SubmissionStatus) CanTransitionTo(next SubmissionStatus) bool {
	if s.IsTerminal() {
		return false
	}
	switch s {
	case StatusQueued:
		return next == StatusSubmitted || next == StatusNeedsReview
	case StatusSubmitted:
		return next == StatusAccepted || next == StatusRejected || next == StatusNeedsReview
	case StatusNeedsReview:
		// Retrying re-enters queued semantics on the same row.
		return next == StatusQueued || next == StatusSubmitted || next == StatusNeedsReview
	}
	return false
}

// Submission is the one durable row per report. The uniqueness invariant
// (at most one submission per report) is enforced by the store, not here.
type Submission struct {
	ID       uuid.UUID        `json:"id"`
	ReportID uuid.UUID        `json:"report_id"`
	Status   SubmissionStatus `json:"status"`

	// Attempts counts File invocations that reached the upload step.
	Attempts int `json:"attempts"`

	// Filename is the generated outbound filename; response filenames are
	// derived from it by appending fixed suffixes.
	Filename string `json:"filename,omitempty"`

	// MaybeDelivered is set when an upload outcome was ambiguous (timeout
	// mid-transfer). A later File call must check for response files before
	// re-uploading under a fresh name.
	MaybeDelivered bool `json:"maybe_delivered"`

	// ActivitySeq is the sequence number the builder assigned to this
	// report's activity; acknowledgments key receipts by it.
	ActivitySeq int64 `json:"activity_seq"`

	SubmittedAt  *time.Time `json:"submitted_at,omitempty"`
	NextPollAt   *time.Time `json:"next_poll_at,omitempty"`
	PollAttempts int        `json:"poll_attempts"`

	// ReceiptID is copied from the acknowledgment on acceptance.
	ReceiptID string `json:"receipt_id,omitempty"`

	// Errors holds the normalized regulator error list from the most recent
	// status message, or preflight reasons for needs_review.
	Errors []string `json:"errors,omitempty"`

	// ReviewReason is the operator-facing explanation for needs_review.
	ReviewReason string `json:"review_reason,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ArtifactKind distinguishes stored payload copies.
type ArtifactKind string

const (
	ArtifactOutbound       ArtifactKind = "outbound"
	ArtifactStatusMessage  ArtifactKind = "status_message"
	ArtifactAcknowledgment ArtifactKind = "acknowledgment"
)

// Artifact is a checksummed copy of an outbound document or inbound response
// file, kept for audit and replay. Never deleted by this core.
type Artifact struct {
	SubmissionID uuid.UUID    `json:"submission_id"`
	Kind         ArtifactKind `json:"kind"`
	Filename     string       `json:"filename"`
	SHA256       string       `json:"sha256"`
	Body         []byte       `json:"-"`
	ReceivedAt   time.Time    `json:"received_at"`
}
