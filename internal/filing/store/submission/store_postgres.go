package submission

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"rerfiler/internal/filing/models"
	"rerfiler/pkg/sentinel"
)

// PostgresStore persists submissions and artifacts in PostgreSQL. Schema in
// schema.sql. The per-report lock uses session-scoped advisory locks on a
// dedicated connection, so the single-writer guarantee holds across the
// poller process and any operator-driven invocation.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed submission store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const submissionColumns = `
	id, report_id, status, attempts, filename, maybe_delivered, activity_seq,
	submitted_at, next_poll_at, poll_attempts, receipt_id, errors,
	review_reason, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, sub *models.Submission) error {
	query := `
		INSERT INTO submissions (` + submissionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (report_id) DO NOTHING
	`
	res, err := s.db.ExecContext(ctx, query,
		sub.ID, sub.ReportID, string(sub.Status), sub.Attempts, sub.Filename,
		sub.MaybeDelivered, sub.ActivitySeq, nullTime(sub.SubmittedAt),
		nullTime(sub.NextPollAt), sub.PollAttempts, sub.ReceiptID,
		pq.Array(sub.Errors), sub.ReviewReason, sub.CreatedAt, sub.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create submission: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("create submission: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("submission for report %s: %w", sub.ReportID, sentinel.ErrConflict)
	}
	return nil
}

func (s *PostgresStore) GetByReport(ctx context.Context, reportID uuid.UUID) (*models.Submission, error) {
	query := `SELECT ` + submissionColumns + ` FROM submissions WHERE report_id = $1`
	sub, err := scanSubmission(s.db.QueryRowContext(ctx, query, reportID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("submission for report %s: %w", reportID, sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("get submission: %w", err)
	}
	return sub, nil
}

func (s *PostgresStore) Update(ctx context.Context, sub *models.Submission) error {
	query := `
		UPDATE submissions SET
			status = $2, attempts = $3, filename = $4, maybe_delivered = $5,
			activity_seq = $6, submitted_at = $7, next_poll_at = $8,
			poll_attempts = $9, receipt_id = $10, errors = $11,
			review_reason = $12, updated_at = $13
		WHERE id = $1
	`
	res, err := s.db.ExecContext(ctx, query,
		sub.ID, string(sub.Status), sub.Attempts, sub.Filename,
		sub.MaybeDelivered, sub.ActivitySeq, nullTime(sub.SubmittedAt),
		nullTime(sub.NextPollAt), sub.PollAttempts, sub.ReceiptID,
		pq.Array(sub.Errors), sub.ReviewReason, sub.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update submission: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update submission: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("submission %s: %w", sub.ID, sentinel.ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) ListDue(ctx context.Context, now time.Time) ([]*models.Submission, error) {
	query := `
		SELECT ` + submissionColumns + `
		FROM submissions
		WHERE status = $1 AND next_poll_at IS NOT NULL AND next_poll_at <= $2
		ORDER BY next_poll_at
	`
	rows, err := s.db.QueryContext(ctx, query, string(models.StatusSubmitted), now)
	if err != nil {
		return nil, fmt.Errorf("list due submissions: %w", err)
	}
	defer rows.Close()

	var due []*models.Submission
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, fmt.Errorf("list due submissions: %w", err)
		}
		due = append(due, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list due submissions: %w", err)
	}
	return due, nil
}

func (s *PostgresStore) AddArtifact(ctx context.Context, artifact *models.Artifact) error {
	query := `
		INSERT INTO submission_artifacts (submission_id, kind, filename, sha256, body, received_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (submission_id, kind, filename) DO NOTHING
	`
	res, err := s.db.ExecContext(ctx, query,
		artifact.SubmissionID, string(artifact.Kind), artifact.Filename,
		artifact.SHA256, artifact.Body, artifact.ReceivedAt,
	)
	if err != nil {
		return fmt.Errorf("add artifact: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("add artifact: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("artifact %s %s: %w", artifact.Kind, artifact.Filename, sentinel.ErrConflict)
	}
	return nil
}

func (s *PostgresStore) GetArtifact(ctx context.Context, submissionID uuid.UUID, kind models.ArtifactKind) (*models.Artifact, error) {
	query := `
		SELECT submission_id, kind, filename, sha256, body, received_at
		FROM submission_artifacts
		WHERE submission_id = $1 AND kind = $2
		ORDER BY received_at DESC
		LIMIT 1
	`
	var a models.Artifact
	var kindText string
	err := s.db.QueryRowContext(ctx, query, submissionID, string(kind)).Scan(
		&a.SubmissionID, &kindText, &a.Filename, &a.SHA256, &a.Body, &a.ReceivedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("artifact %s for submission %s: %w", kind, submissionID, sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("get artifact: %w", err)
	}
	a.Kind = models.ArtifactKind(kindText)
	return &a, nil
}

// AcquireLock takes a session advisory lock keyed by the report ID. The lock
// rides a dedicated connection so release is tied to this caller and not to
// pool recycling.
func (s *PostgresStore) AcquireLock(ctx context.Context, reportID uuid.UUID) (func() error, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire lock connection: %w", err)
	}
	if _, err := conn.ExecContext(ctx, `SELECT pg_advisory_lock(hashtextextended($1, 0))`, reportID.String()); err != nil {
		conn.Close()
		return nil, fmt.Errorf("acquire submission lock: %w", err)
	}
	release := func() error {
		_, unlockErr := conn.ExecContext(context.Background(), `SELECT pg_advisory_unlock(hashtextextended($1, 0))`, reportID.String())
		closeErr := conn.Close()
		if unlockErr != nil {
			return fmt.Errorf("release submission lock: %w", unlockErr)
		}
		return closeErr
	}
	return release, nil
}

func scanSubmission(row interface{ Scan(...any) error }) (*models.Submission, error) {
	var sub models.Submission
	var status string
	var submittedAt, nextPollAt sql.NullTime
	var errorsArr pq.StringArray
	if err := row.Scan(
		&sub.ID, &sub.ReportID, &status, &sub.Attempts, &sub.Filename,
		&sub.MaybeDelivered, &sub.ActivitySeq, &submittedAt, &nextPollAt,
		&sub.PollAttempts, &sub.ReceiptID, &errorsArr, &sub.ReviewReason,
		&sub.CreatedAt, &sub.UpdatedAt,
	); err != nil {
		return nil, err
	}
	sub.Status = models.SubmissionStatus(status)
	sub.Errors = []string(errorsArr)
	if submittedAt.Valid {
		sub.SubmittedAt = &submittedAt.Time
	}
	if nextPollAt.Valid {
		sub.NextPollAt = &nextPollAt.Time
	}
	return &sub, nil
}

func nullTime(value *time.Time) sql.NullTime {
	if value == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *value, Valid: true}
}
