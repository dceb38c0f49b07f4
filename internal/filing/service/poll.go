package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"rerfiler/internal/filing/models"
	"rerfiler/internal/filing/parser"
	pkgerrors "rerfiler/pkg/errors"
	"rerfiler/pkg/sentinel"
)

// pollParallelism bounds concurrent polls across distinct reports. Each poll
// dials the remote endpoint, so this is a connection bound, not a CPU one.
const pollParallelism = 4

// Poll checks for the regulator's response files and advances the state
// machine. Not-yet-due and non-submitted rows are no-ops. Terminal outcomes
// stop the poll schedule; otherwise the next poll is scheduled with widening
// backoff until the response deadline escalates the row to needs_review.
func (s *Service) Poll(ctx context.Context, reportID uuid.UUID) (*models.Submission, error) {
	release, err := s.subs.AcquireLock(ctx, reportID)
	if err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.CodeInternal, "failed to lock submission")
	}
	defer func() {
		if releaseErr := release(); releaseErr != nil && s.logger != nil {
			s.logger.Error("failed to release submission lock", "report_id", reportID, "error", releaseErr)
		}
	}()

	sub, err := s.subs.GetByReport(ctx, reportID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, pkgerrors.Wrap(err, pkgerrors.CodeNotFound, "no submission for report")
		}
		return nil, pkgerrors.Wrap(err, pkgerrors.CodeInternal, "failed to load submission")
	}

	if sub.Status != models.StatusSubmitted {
		return sub, nil
	}
	now := s.clock()
	if sub.NextPollAt != nil && now.Before(*sub.NextPollAt) {
		return sub, nil
	}

	s.metrics.IncPollAttempt()

	done, err := s.checkStatusMessage(ctx, sub, now)
	if err != nil {
		return s.reschedule(ctx, sub, now, err)
	}
	if done {
		return sub, nil
	}

	accepted, err := s.checkAcknowledgment(ctx, sub, now)
	if err != nil {
		return s.reschedule(ctx, sub, now, err)
	}
	if accepted {
		return sub, nil
	}

	// No terminal response yet. A status message alone (accepted, no ack)
	// keeps polling; past the deadline the row escalates for manual follow-up.
	if sub.SubmittedAt != nil && now.Sub(*sub.SubmittedAt) > s.cfg.Schedule.ResponseDeadline {
		s.transition(sub, models.StatusNeedsReview, now)
		sub.ReviewReason = fmt.Sprintf("no regulator response within %s of submission", s.cfg.Schedule.ResponseDeadline)
		sub.NextPollAt = nil
		if updateErr := s.subs.Update(ctx, sub); updateErr != nil {
			return nil, pkgerrors.Wrap(updateErr, pkgerrors.CodeInternal, "failed to persist submission")
		}
		s.metrics.IncOutcome(string(models.StatusNeedsReview))
		s.emit(ctx, sub, "poll_timeout", map[string]string{"deadline": s.cfg.Schedule.ResponseDeadline.String()})
		return sub, pkgerrors.New(pkgerrors.CodeTimeout, "no response within deadline")
	}

	return s.reschedule(ctx, sub, now, nil)
}

// checkStatusMessage downloads and applies the status-message file if one
// exists and is not already stored. done reports that the poll reached a
// state that ends this invocation (rejection or warnings).
func (s *Service) checkStatusMessage(ctx context.Context, sub *models.Submission, now time.Time) (bool, error) {
	if _, artErr := s.subs.GetArtifact(ctx, sub.ID, models.ArtifactStatusMessage); artErr == nil {
		// Already stored and applied in an earlier poll.
		return false, nil
	} else if !errors.Is(artErr, sentinel.ErrNotFound) {
		return false, pkgerrors.Wrap(artErr, pkgerrors.CodeInternal, "failed to read stored status message")
	}

	name := StatusMessageFilename(sub.Filename)
	data, err := s.transport.Download(ctx, name)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return false, nil
		}
		return false, pkgerrors.Wrap(err, pkgerrors.CodeTransport, "failed to download status message")
	}

	if err := s.storeArtifact(ctx, sub.ID, models.ArtifactStatusMessage, name, data, now); err != nil {
		return false, err
	}

	result, parseErr := parser.ParseStatusMessage(data)
	if parseErr != nil {
		s.transition(sub, models.StatusNeedsReview, now)
		sub.ReviewReason = "regulator status message could not be parsed"
		sub.NextPollAt = nil
		if updateErr := s.subs.Update(ctx, sub); updateErr != nil {
			return false, pkgerrors.Wrap(updateErr, pkgerrors.CodeInternal, "failed to persist submission")
		}
		s.emit(ctx, sub, "status_unparseable", map[string]string{"filename": name})
		return true, nil
	}

	s.emit(ctx, sub, "status_received", map[string]string{
		"status": string(result.Status),
		"errors": fmt.Sprintf("%d", len(result.Errors)),
	})

	switch result.Status {
	case parser.StatusRejected:
		s.transition(sub, models.StatusRejected, now)
		sub.Errors = result.Errors
		sub.NextPollAt = nil
		if updateErr := s.subs.Update(ctx, sub); updateErr != nil {
			return false, pkgerrors.Wrap(updateErr, pkgerrors.CodeInternal, "failed to persist submission")
		}
		s.metrics.IncOutcome(string(models.StatusRejected))
		if s.logger != nil {
			s.logger.Warn("submission rejected", "submission_id", sub.ID, "errors", len(result.Errors))
		}
		return true, nil

	case parser.StatusAcceptedWithWarnings:
		s.transition(sub, models.StatusNeedsReview, now)
		sub.Errors = result.Errors
		sub.ReviewReason = "regulator accepted with warnings"
		sub.NextPollAt = nil
		if updateErr := s.subs.Update(ctx, sub); updateErr != nil {
			return false, pkgerrors.Wrap(updateErr, pkgerrors.CodeInternal, "failed to persist submission")
		}
		s.metrics.IncOutcome(string(models.StatusNeedsReview))
		return true, nil
	}

	// Accepted: the receipt identifier still has to arrive on the
	// acknowledgment; keep the stored errors list for operator context.
	sub.Errors = result.Errors
	return false, nil
}

// checkAcknowledgment downloads and applies the acknowledgment file if one
// exists, writing the receipt identifier back onto the report.
func (s *Service) checkAcknowledgment(ctx context.Context, sub *models.Submission, now time.Time) (bool, error) {
	name := AcknowledgmentFilename(sub.Filename)
	data, err := s.transport.Download(ctx, name)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return false, nil
		}
		return false, pkgerrors.Wrap(err, pkgerrors.CodeTransport, "failed to download acknowledgment")
	}

	if err := s.storeArtifact(ctx, sub.ID, models.ArtifactAcknowledgment, name, data, now); err != nil {
		return false, err
	}

	receipts, parseErr := parser.ParseAcknowledgment(data)
	if parseErr != nil {
		s.transition(sub, models.StatusNeedsReview, now)
		sub.ReviewReason = "regulator acknowledgment could not be parsed"
		sub.NextPollAt = nil
		if updateErr := s.subs.Update(ctx, sub); updateErr != nil {
			return false, pkgerrors.Wrap(updateErr, pkgerrors.CodeInternal, "failed to persist submission")
		}
		s.emit(ctx, sub, "acknowledgment_unparseable", map[string]string{"filename": name})
		return true, nil
	}

	receipt, ok := receipts[sub.ActivitySeq]
	if !ok {
		s.transition(sub, models.StatusNeedsReview, now)
		sub.ReviewReason = fmt.Sprintf("acknowledgment carries no receipt for activity %d", sub.ActivitySeq)
		sub.NextPollAt = nil
		if updateErr := s.subs.Update(ctx, sub); updateErr != nil {
			return false, pkgerrors.Wrap(updateErr, pkgerrors.CodeInternal, "failed to persist submission")
		}
		return true, nil
	}

	s.transition(sub, models.StatusAccepted, now)
	sub.ReceiptID = receipt
	sub.NextPollAt = nil
	if err := s.subs.Update(ctx, sub); err != nil {
		return false, pkgerrors.Wrap(err, pkgerrors.CodeInternal, "failed to persist submission")
	}
	if err := s.reports.SetReceiptID(ctx, sub.ReportID, receipt); err != nil {
		// The submission row already holds the receipt; the write-back is
		// retried by the owning system, but the failure must be visible.
		if s.logger != nil {
			s.logger.Error("failed to write receipt back to report",
				"report_id", sub.ReportID, "receipt_id", receipt, "error", err)
		}
	}

	s.metrics.IncOutcome(string(models.StatusAccepted))
	s.emit(ctx, sub, "accepted", map[string]string{"receipt_id": receipt})
	if s.logger != nil {
		s.logger.Info("submission accepted", "submission_id", sub.ID, "receipt_id", receipt)
	}
	return true, nil
}

// reschedule advances the poll schedule and persists, propagating cause (a
// transport error from this poll) to the caller.
func (s *Service) reschedule(ctx context.Context, sub *models.Submission, now time.Time, cause error) (*models.Submission, error) {
	sub.PollAttempts++
	next := now.Add(s.cfg.Schedule.delayFor(sub.PollAttempts))
	sub.NextPollAt = &next
	sub.UpdatedAt = now
	if err := s.subs.Update(ctx, sub); err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.CodeInternal, "failed to persist submission")
	}
	return sub, cause
}

// PollDue processes every submission whose next poll time has elapsed.
// Reports are independent: one failing poll never blocks the rest, and
// failures are aggregated for the caller's log.
func (s *Service) PollDue(ctx context.Context) error {
	due, err := s.subs.ListDue(ctx, s.clock())
	if err != nil {
		return pkgerrors.Wrap(err, pkgerrors.CodeInternal, "failed to list due submissions")
	}
	if len(due) == 0 {
		return nil
	}

	var (
		mu       sync.Mutex
		failures []error
	)
	var g errgroup.Group
	g.SetLimit(pollParallelism)
	for _, sub := range due {
		g.Go(func() error {
			if _, pollErr := s.Poll(ctx, sub.ReportID); pollErr != nil {
				if s.logger != nil {
					s.logger.Warn("poll failed", "report_id", sub.ReportID, "error", pollErr)
				}
				mu.Lock()
				failures = append(failures, fmt.Errorf("report %s: %w", sub.ReportID, pollErr))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(failures...)
}
