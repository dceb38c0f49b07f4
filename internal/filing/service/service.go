// Package service owns the durable submission state machine: idempotent
// filing, filename generation, response polling with widening backoff, and
// the orchestration of builder, transport, and parser.
package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"rerfiler/internal/filing/audit"
	"rerfiler/internal/filing/builder"
	"rerfiler/internal/filing/metrics"
	"rerfiler/internal/filing/models"
	"rerfiler/internal/filing/ports"
	"rerfiler/internal/filing/transport"
	pkgerrors "rerfiler/pkg/errors"
	"rerfiler/pkg/sentinel"
)

// Schedule is the poll backoff policy. Delays widen per attempt up to the
// steady interval; past the absolute deadline with no response the submission
// escalates to needs_review.
type Schedule struct {
	FirstPollDelay   time.Duration
	Ladder           []time.Duration
	SteadyInterval   time.Duration
	ResponseDeadline time.Duration
}

// DefaultSchedule keeps worst-case acknowledgment latency visible well inside
// the regulator's response window.
func DefaultSchedule() Schedule {
	return Schedule{
		FirstPollDelay:   15 * time.Minute,
		Ladder:           []time.Duration{15 * time.Minute, time.Hour, 4 * time.Hour, 12 * time.Hour},
		SteadyInterval:   12 * time.Hour,
		ResponseDeadline: 7 * 24 * time.Hour,
	}
}

// delayFor returns the wait before poll attempt n+1 (n counts completed
// polls).
func (s Schedule) delayFor(completed int) time.Duration {
	if completed < len(s.Ladder) {
		return s.Ladder[completed]
	}
	return s.SteadyInterval
}

// Config is the service's static wiring.
type Config struct {
	// FilenameSegment is the transmitting-identity segment of outbound
	// filenames; deployments use the effective transmission control code.
	FilenameSegment string
	Schedule        Schedule
}

// Service is the submission lifecycle manager. All mutations of a given
// submission are serialized through the store's per-report lock, so File and
// Poll may be invoked from the poller and from operator tooling concurrently.
type Service struct {
	cfg       Config
	subs      ports.SubmissionStore
	reports   ports.ReportStore
	transport transport.Client
	builder   *builder.Builder

	auditPub ports.AuditPublisher
	metrics  *metrics.Metrics
	logger   *slog.Logger
	clock    func() time.Time
}

// Option configures a Service.
type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithAuditPublisher(pub ports.AuditPublisher) Option {
	return func(s *Service) { s.auditPub = pub }
}

// WithClock sets the time source, for tests.
func WithClock(clock func() time.Time) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// New constructs the lifecycle manager.
func New(cfg Config, subs ports.SubmissionStore, reports ports.ReportStore, tc transport.Client, docBuilder *builder.Builder, opts ...Option) (*Service, error) {
	if subs == nil {
		return nil, fmt.Errorf("submission store is required")
	}
	if reports == nil {
		return nil, fmt.Errorf("report store is required")
	}
	if tc == nil {
		return nil, fmt.Errorf("transport client is required")
	}
	if docBuilder == nil {
		return nil, fmt.Errorf("document builder is required")
	}
	if cfg.FilenameSegment == "" {
		return nil, fmt.Errorf("filename identity segment is required")
	}
	if cfg.Schedule.FirstPollDelay <= 0 {
		cfg.Schedule = DefaultSchedule()
	}

	svc := &Service{
		cfg:       cfg,
		subs:      subs,
		reports:   reports,
		transport: tc,
		builder:   docBuilder,
		clock:     time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// File is the idempotent entry point: build, upload, mark submitted, schedule
// polling. A submission already in submitted/accepted/rejected returns as-is
// with no transmission. Preflight failures park the row in needs_review.
// Transport failures leave the row queued with the attempt counted, so the
// next invocation retries cleanly.
func (s *Service) File(ctx context.Context, reportID uuid.UUID) (*models.Submission, error) {
	release, err := s.subs.AcquireLock(ctx, reportID)
	if err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.CodeInternal, "failed to lock submission")
	}
	defer func() {
		if releaseErr := release(); releaseErr != nil && s.logger != nil {
			s.logger.Error("failed to release submission lock", "report_id", reportID, "error", releaseErr)
		}
	}()

	sub, err := s.loadOrCreate(ctx, reportID)
	if err != nil {
		return nil, err
	}

	// Idempotence: anything at or past submitted never re-transmits.
	if sub.Status == models.StatusSubmitted || sub.Status.IsTerminal() {
		return sub, nil
	}

	report, err := s.reports.Get(ctx, reportID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, pkgerrors.Wrap(err, pkgerrors.CodeNotFound, "report not found")
		}
		return nil, pkgerrors.Wrap(err, pkgerrors.CodeInternal, "failed to load report")
	}

	// An earlier upload with an ambiguous outcome may have landed. If any
	// response file already exists for the stored filename, the document was
	// delivered; pick up from submitted instead of re-uploading.
	if sub.MaybeDelivered && sub.Filename != "" {
		delivered, checkErr := s.responsesExist(ctx, sub.Filename)
		if checkErr != nil {
			return sub, pkgerrors.Wrap(checkErr, pkgerrors.CodeTransport, "could not verify earlier ambiguous upload")
		}
		if delivered {
			now := s.clock()
			s.transition(sub, models.StatusSubmitted, now)
			sub.MaybeDelivered = false
			sub.SubmittedAt = &now
			sub.PollAttempts = 0
			next := now.Add(s.cfg.Schedule.FirstPollDelay)
			sub.NextPollAt = &next
			if err := s.subs.Update(ctx, sub); err != nil {
				return nil, pkgerrors.Wrap(err, pkgerrors.CodeInternal, "failed to persist submission")
			}
			s.emit(ctx, sub, "ambiguous_upload_confirmed", map[string]string{"filename": sub.Filename})
			return sub, nil
		}
	}

	batch, summary, err := s.builder.Build(report, sub)
	if err != nil {
		if builder.IsPreflight(err) {
			now := s.clock()
			s.transition(sub, models.StatusNeedsReview, now)
			sub.ReviewReason = "preflight validation failed"
			sub.Errors = builder.FailureReasons(err)
			if updateErr := s.subs.Update(ctx, sub); updateErr != nil {
				return nil, pkgerrors.Wrap(updateErr, pkgerrors.CodeInternal, "failed to persist submission")
			}
			s.metrics.IncPreflightFailure()
			s.metrics.IncOutcome(string(models.StatusNeedsReview))
			s.emit(ctx, sub, "preflight_failed", map[string]string{"reasons": fmt.Sprintf("%d", len(sub.Errors))})
			return sub, pkgerrors.Wrap(err, pkgerrors.CodeValidation, "document failed preflight validation")
		}
		return nil, pkgerrors.Wrap(err, pkgerrors.CodeInternal, "failed to build document")
	}

	document, err := batch.Marshal()
	if err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.CodeInternal, "failed to render document")
	}

	now := s.clock()
	// Reuse the stored filename while an earlier upload is unconfirmed:
	// re-sending the same name overwrites rather than double-files.
	if !sub.MaybeDelivered || sub.Filename == "" {
		sub.Filename = GenerateFilename(now, s.cfg.FilenameSegment)
	}

	if err := s.storeArtifact(ctx, sub.ID, models.ArtifactOutbound, sub.Filename, document, now); err != nil {
		return nil, err
	}

	sub.Attempts++
	s.transition(sub, models.StatusQueued, now)
	if err := s.subs.Update(ctx, sub); err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.CodeInternal, "failed to persist submission")
	}

	uploadStart := s.clock()
	uploadErr := s.transport.Upload(ctx, sub.Filename, document)
	s.metrics.ObserveUpload(s.clock().Sub(uploadStart))

	if uploadErr != nil {
		if transport.IsAmbiguous(uploadErr) {
			sub.MaybeDelivered = true
		}
		sub.UpdatedAt = s.clock()
		if err := s.subs.Update(ctx, sub); err != nil {
			return nil, pkgerrors.Wrap(err, pkgerrors.CodeInternal, "failed to persist submission")
		}
		s.metrics.IncUploadFailure()
		s.emit(ctx, sub, "upload_failed", map[string]string{
			"filename":  sub.Filename,
			"ambiguous": fmt.Sprintf("%t", sub.MaybeDelivered),
		})
		return sub, pkgerrors.Wrap(uploadErr, pkgerrors.CodeTransport, "upload failed")
	}

	now = s.clock()
	s.transition(sub, models.StatusSubmitted, now)
	sub.MaybeDelivered = false
	sub.SubmittedAt = &now
	sub.PollAttempts = 0
	next := now.Add(s.cfg.Schedule.FirstPollDelay)
	sub.NextPollAt = &next
	sub.Errors = nil
	sub.ReviewReason = ""
	if err := s.subs.Update(ctx, sub); err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.CodeInternal, "failed to persist submission")
	}

	s.metrics.IncFiled()
	s.emit(ctx, sub, "document_uploaded", map[string]string{
		"filename": sub.Filename,
		"parties":  fmt.Sprintf("%d", summary.Parties),
	})
	if s.logger != nil {
		s.logger.Info("submission filed",
			"report_id", reportID,
			"submission_id", sub.ID,
			"filename", sub.Filename,
			"attempt", sub.Attempts,
		)
	}
	return sub, nil
}

func (s *Service) loadOrCreate(ctx context.Context, reportID uuid.UUID) (*models.Submission, error) {
	sub, err := s.subs.GetByReport(ctx, reportID)
	if err == nil {
		return sub, nil
	}
	if !errors.Is(err, sentinel.ErrNotFound) {
		return nil, pkgerrors.Wrap(err, pkgerrors.CodeInternal, "failed to load submission")
	}

	now := s.clock()
	sub = &models.Submission{
		ID:          uuid.New(),
		ReportID:    reportID,
		Status:      models.StatusQueued,
		ActivitySeq: 1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.subs.Create(ctx, sub); err != nil {
		// Lost a race against another process between Get and Create; the
		// store's uniqueness guarantee makes the existing row authoritative.
		if errors.Is(err, sentinel.ErrConflict) {
			return s.subs.GetByReport(ctx, reportID)
		}
		return nil, pkgerrors.Wrap(err, pkgerrors.CodeInternal, "failed to create submission")
	}
	s.emit(ctx, sub, "submission_created", nil)
	return sub, nil
}

// responsesExist checks whether the regulator produced either response file
// for the given outbound filename.
func (s *Service) responsesExist(ctx context.Context, filename string) (bool, error) {
	for _, name := range []string{StatusMessageFilename(filename), AcknowledgmentFilename(filename)} {
		_, err := s.transport.Download(ctx, name)
		if err == nil {
			return true, nil
		}
		if !errors.Is(err, sentinel.ErrNotFound) {
			return false, err
		}
	}
	return false, nil
}

// transition applies a status change, logging any violation of the state
// machine rather than failing: by the time we are here the decision is made
// and the row must reflect it.
func (s *Service) transition(sub *models.Submission, next models.SubmissionStatus, now time.Time) {
	if sub.Status != next && !sub.Status.CanTransitionTo(next) && s.logger != nil {
		s.logger.Error("unexpected status transition",
			"submission_id", sub.ID,
			"from", sub.Status,
			"to", next,
		)
	}
	sub.Status = next
	sub.UpdatedAt = now
}

func (s *Service) storeArtifact(ctx context.Context, subID uuid.UUID, kind models.ArtifactKind, filename string, body []byte, now time.Time) error {
	artifact := &models.Artifact{
		SubmissionID: subID,
		Kind:         kind,
		Filename:     filename,
		SHA256:       checksum(body),
		Body:         body,
		ReceivedAt:   now,
	}
	if err := s.subs.AddArtifact(ctx, artifact); err != nil {
		// The same payload stored twice (ambiguous-upload retry under the
		// same filename) is fine; everything else must surface.
		if errors.Is(err, sentinel.ErrConflict) {
			return nil
		}
		return pkgerrors.Wrap(err, pkgerrors.CodeInternal, "failed to store artifact")
	}
	return nil
}

func (s *Service) emit(ctx context.Context, sub *models.Submission, action string, detail map[string]string) {
	if s.auditPub == nil {
		return
	}
	s.auditPub.Emit(ctx, audit.Event{
		At:           s.clock(),
		Action:       action,
		SubmissionID: sub.ID,
		ReportID:     sub.ReportID,
		Detail:       detail,
	})
}

func checksum(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}
