//go:build integration

package submission_test

import (
	"context"
	_ "embed"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"rerfiler/internal/filing/models"
	"rerfiler/internal/filing/store/submission"
	"rerfiler/pkg/sentinel"
	"rerfiler/pkg/testutil/containers"
)

//go:embed schema.sql
var schemaSQL string

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *submission.PostgresStore
	ctx      context.Context
	now      time.Time
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.ctx = context.Background()
	s.postgres = containers.NewPostgresContainer(s.T())
	s.Require().NoError(s.postgres.ApplySchema(s.ctx, schemaSQL))
	s.store = submission.NewPostgres(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	// Postgres stores timestamps at microsecond precision.
	s.now = time.Now().UTC().Truncate(time.Microsecond)
	s.Require().NoError(s.postgres.TruncateTables(s.ctx, "submission_artifacts", "submissions"))
}

func (s *PostgresStoreSuite) newSubmission() *models.Submission {
	return &models.Submission{
		ID:          uuid.New(),
		ReportID:    uuid.New(),
		Status:      models.StatusQueued,
		ActivitySeq: 1,
		CreatedAt:   s.now,
		UpdatedAt:   s.now,
	}
}

func (s *PostgresStoreSuite) TestCreateAndGet() {
	sub := s.newSubmission()
	sub.Status = models.StatusNeedsReview
	sub.Errors = []string{"missing buyer identification", "transmitter TIN not configured"}
	sub.ReviewReason = "preflight validation failed"
	s.Require().NoError(s.store.Create(s.ctx, sub))

	found, err := s.store.GetByReport(s.ctx, sub.ReportID)
	s.Require().NoError(err)
	s.Equal(sub.ID, found.ID)
	s.Equal(models.StatusNeedsReview, found.Status)
	s.Equal(sub.Errors, found.Errors)
	s.Equal(sub.ReviewReason, found.ReviewReason)
	s.Nil(found.SubmittedAt)
	s.Nil(found.NextPollAt)
	s.True(found.CreatedAt.Equal(sub.CreatedAt))
}

func (s *PostgresStoreSuite) TestCreateConflictsOnSameReport() {
	sub := s.newSubmission()
	s.Require().NoError(s.store.Create(s.ctx, sub))

	dup := s.newSubmission()
	dup.ReportID = sub.ReportID
	s.Require().ErrorIs(s.store.Create(s.ctx, dup), sentinel.ErrConflict)
}

func (s *PostgresStoreSuite) TestGetUnknownReport() {
	_, err := s.store.GetByReport(s.ctx, uuid.New())
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestUpdate() {
	sub := s.newSubmission()
	s.Require().NoError(s.store.Create(s.ctx, sub))

	submitted := s.now.Add(time.Minute)
	next := submitted.Add(15 * time.Minute)
	sub.Status = models.StatusSubmitted
	sub.Attempts = 1
	sub.Filename = "RERX.20260201090000.TBSATEST.xml"
	sub.SubmittedAt = &submitted
	sub.NextPollAt = &next
	sub.UpdatedAt = submitted
	s.Require().NoError(s.store.Update(s.ctx, sub))

	found, err := s.store.GetByReport(s.ctx, sub.ReportID)
	s.Require().NoError(err)
	s.Equal(models.StatusSubmitted, found.Status)
	s.Equal(1, found.Attempts)
	s.Equal(sub.Filename, found.Filename)
	s.Require().NotNil(found.SubmittedAt)
	s.True(found.SubmittedAt.Equal(submitted))
	s.Require().NotNil(found.NextPollAt)
	s.True(found.NextPollAt.Equal(next))
}

func (s *PostgresStoreSuite) TestUpdateUnknownSubmission() {
	s.Require().ErrorIs(s.store.Update(s.ctx, s.newSubmission()), sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestListDue() {
	mkSubmitted := func(next time.Time) *models.Submission {
		sub := s.newSubmission()
		sub.Status = models.StatusSubmitted
		sub.NextPollAt = &next
		s.Require().NoError(s.store.Create(s.ctx, sub))
		return sub
	}

	due := mkSubmitted(s.now.Add(-time.Minute))
	mkSubmitted(s.now.Add(time.Hour))

	queued := s.newSubmission()
	s.Require().NoError(s.store.Create(s.ctx, queued))

	listed, err := s.store.ListDue(s.ctx, s.now)
	s.Require().NoError(err)
	s.Require().Len(listed, 1)
	s.Equal(due.ID, listed[0].ID)
}

func (s *PostgresStoreSuite) TestArtifacts() {
	sub := s.newSubmission()
	s.Require().NoError(s.store.Create(s.ctx, sub))

	first := &models.Artifact{
		SubmissionID: sub.ID,
		Kind:         models.ArtifactOutbound,
		Filename:     "RERX.20260201090000.TBSATEST.xml",
		SHA256:       "abc",
		Body:         []byte("<doc/>"),
		ReceivedAt:   s.now,
	}
	s.Require().NoError(s.store.AddArtifact(s.ctx, first))

	s.Run("duplicate kind and filename conflicts", func() {
		dup := *first
		s.Require().ErrorIs(s.store.AddArtifact(s.ctx, &dup), sentinel.ErrConflict)
	})

	s.Run("latest of a kind wins", func() {
		second := *first
		second.Filename = "RERX.20260201091500.TBSATEST.xml"
		second.ReceivedAt = s.now.Add(15 * time.Minute)
		s.Require().NoError(s.store.AddArtifact(s.ctx, &second))

		latest, err := s.store.GetArtifact(s.ctx, sub.ID, models.ArtifactOutbound)
		s.Require().NoError(err)
		s.Equal(second.Filename, latest.Filename)
		s.Equal([]byte("<doc/>"), latest.Body)
	})

	s.Run("missing kind returns ErrNotFound", func() {
		_, err := s.store.GetArtifact(s.ctx, sub.ID, models.ArtifactStatusMessage)
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *PostgresStoreSuite) TestAdvisoryLockSerializes() {
	reportID := uuid.New()

	release, err := s.store.AcquireLock(s.ctx, reportID)
	s.Require().NoError(err)

	acquired := make(chan struct{})
	go func() {
		second, err := s.store.AcquireLock(s.ctx, reportID)
		if err == nil {
			_ = second()
		}
		close(acquired)
	}()

	select {
	case <-acquired:
		s.Fail("second acquire must block while the lock is held")
	case <-time.After(200 * time.Millisecond):
	}

	s.Require().NoError(release())

	select {
	case <-acquired:
	case <-time.After(5 * time.Second):
		s.Fail("second acquire never proceeded after release")
	}
}
