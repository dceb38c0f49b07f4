// Package ports defines shared interfaces for the filing pipeline.
// Interfaces live here when consumed by more than one package.
package ports

import (
	"context"
	"time"

	"github.com/google/uuid"

	"rerfiler/internal/filing/audit"
	"rerfiler/internal/filing/models"
)

// SubmissionStore persists the one-submission-per-report lifecycle rows and
// their artifacts. Implementations must enforce the uniqueness invariant and
// provide the per-report lock that serializes File/Poll across processes.
type SubmissionStore interface {
	// Create inserts a submission. A submission already existing for the
	// same report returns sentinel.ErrConflict.
	Create(ctx context.Context, sub *models.Submission) error

	// GetByReport returns the submission for a report, or sentinel.ErrNotFound.
	GetByReport(ctx context.Context, reportID uuid.UUID) (*models.Submission, error)

	// Update persists all mutable fields of an existing submission.
	Update(ctx context.Context, sub *models.Submission) error

	// ListDue returns submissions in submitted state whose next poll time has
	// elapsed as of now.
	ListDue(ctx context.Context, now time.Time) ([]*models.Submission, error)

	// AddArtifact stores a checksummed payload copy. Storing the same
	// (submission, kind) twice returns sentinel.ErrConflict.
	AddArtifact(ctx context.Context, artifact *models.Artifact) error

	// GetArtifact returns a stored artifact, or sentinel.ErrNotFound.
	GetArtifact(ctx context.Context, submissionID uuid.UUID, kind models.ArtifactKind) (*models.Artifact, error)

	// AcquireLock takes the per-report mutual exclusion used to serialize
	// File and Poll for one report across separately scheduled processes.
	// The returned release must be called exactly once.
	AcquireLock(ctx context.Context, reportID uuid.UUID) (release func() error, err error)
}

// ReportStore is the pipeline's narrow view onto the externally owned
// transaction reports: read the report, write back the receipt identifier.
type ReportStore interface {
	Get(ctx context.Context, reportID uuid.UUID) (*models.Report, error)
	SetReceiptID(ctx context.Context, reportID uuid.UUID, receiptID string) error
}

// AuditPublisher emits lifecycle audit events. Implementations must not
// block the pipeline; dropping an event is preferable to stalling a filing.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event)
}
