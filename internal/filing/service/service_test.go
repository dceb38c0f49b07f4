package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"rerfiler/internal/filing/builder"
	"rerfiler/internal/filing/models"
	"rerfiler/internal/filing/rerx"
	"rerfiler/internal/filing/store/report"
	"rerfiler/internal/filing/store/submission"
	"rerfiler/internal/filing/transport"
	pkgerrors "rerfiler/pkg/errors"
	"rerfiler/pkg/sentinel"
	"rerfiler/pkg/testutil"
)

const (
	rejectedStatusXML = `<RERXStatus><Status>Rejected</Status>
<Errors><Error code="E101">Transferee identification is missing</Error></Errors></RERXStatus>`

	acceptedStatusXML = `<RERXStatus><Status>Accepted</Status></RERXStatus>`

	warningStatusXML = `<RERXStatus><Status>Accepted With Warnings</Status>
<Errors><Error code="W301">Ownership percentages do not sum to 100</Error></Errors></RERXStatus>`

	ackXML = `<RERXAcknowledgment><Activity SeqNum="1"><ReceiptID>RER-2026-000123</ReceiptID></Activity></RERXAcknowledgment>`
)

// fakeTransport scripts upload and download outcomes. Response files are
// injected into inbound by name, mirroring how the local transport is seeded
// in demo deployments.
type fakeTransport struct {
	mu            sync.Mutex
	uploads       map[string][]byte
	inbound       map[string][]byte
	uploadErr     error
	downloadErr   error
	uploadCalls   int
	downloadCalls int
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		uploads: make(map[string][]byte),
		inbound: make(map[string][]byte),
	}
}

func (t *fakeTransport) Upload(_ context.Context, filename string, data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.uploadCalls++
	if t.uploadErr != nil {
		return t.uploadErr
	}
	t.uploads[filename] = append([]byte(nil), data...)
	return nil
}

func (t *fakeTransport) List(_ context.Context, _ string) ([]string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	var names []string
	for name := range t.inbound {
		names = append(names, name)
	}
	return names, nil
}

func (t *fakeTransport) Download(_ context.Context, filename string) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.downloadCalls++
	if t.downloadErr != nil {
		return nil, t.downloadErr
	}
	data, ok := t.inbound[filename]
	if !ok {
		return nil, fmt.Errorf("%s: %w", filename, sentinel.ErrNotFound)
	}
	return append([]byte(nil), data...), nil
}

func (t *fakeTransport) respond(filename, body string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.inbound[filename] = []byte(body)
}

type ServiceSuite struct {
	suite.Suite
	ctx     context.Context
	now     time.Time
	subs    *submission.MemoryStore
	reports *report.MemoryStore
	tc      *fakeTransport
	svc     *Service
	report  *models.Report
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.now = time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	s.subs = submission.NewMemory()
	s.reports = report.NewMemory()
	s.tc = newFakeTransport()

	clock := func() time.Time { return s.now }
	docBuilder := builder.New(builder.Config{
		TransmitterName:    "Harborline Filing Service",
		TransmitterTIN:     "123456789",
		TransmitterAddress: testutil.USAddress(),
		TransmitterPhone:   "2075550100",
		ContactName:        "Filing Operations",
		ContactPhone:       "2075550101",
		ContactEmail:       "filings-ops@example.com",
		MinFilingDate:      time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC),
		Sandbox:            true,
	}, builder.WithClock(clock))

	var err error
	s.svc, err = New(
		Config{FilenameSegment: rerx.SandboxTCC},
		s.subs, s.reports, s.tc, docBuilder,
		WithClock(clock),
	)
	s.Require().NoError(err)

	s.report = testutil.Report()
	s.reports.Put(s.report)
}

func (s *ServiceSuite) file() *models.Submission {
	sub, err := s.svc.File(s.ctx, s.report.ID)
	s.Require().NoError(err)
	s.Require().Equal(models.StatusSubmitted, sub.Status)
	return sub
}

// advancePast makes the submission's next poll due.
func (s *ServiceSuite) advancePast(sub *models.Submission) {
	s.Require().NotNil(sub.NextPollAt)
	s.now = sub.NextPollAt.Add(time.Minute)
}

func (s *ServiceSuite) TestNew() {
	s.Run("missing dependencies are rejected", func() {
		_, err := New(Config{FilenameSegment: "X"}, nil, s.reports, s.tc, nil)
		s.Error(err)
	})

	s.Run("missing filename segment is rejected", func() {
		docBuilder := builder.New(builder.Config{})
		_, err := New(Config{}, s.subs, s.reports, s.tc, docBuilder)
		s.Error(err)
		s.Contains(err.Error(), "filename identity segment")
	})
}

func (s *ServiceSuite) TestFile() {
	sub := s.file()

	s.Run("submission state after upload", func() {
		s.Equal(1, sub.Attempts)
		s.Equal("RERX.20260201090000.TBSATEST.xml", sub.Filename)
		s.Require().NotNil(sub.SubmittedAt)
		s.Equal(s.now, *sub.SubmittedAt)
		s.Require().NotNil(sub.NextPollAt)
		s.Equal(s.now.Add(15*time.Minute), *sub.NextPollAt)
		s.False(sub.MaybeDelivered)
	})

	s.Run("document reached the transport", func() {
		s.Equal(1, s.tc.uploadCalls)
		s.Contains(s.tc.uploads, sub.Filename)
	})

	s.Run("outbound artifact is archived with its checksum", func() {
		artifact, err := s.subs.GetArtifact(s.ctx, sub.ID, models.ArtifactOutbound)
		s.Require().NoError(err)
		s.Equal(sub.Filename, artifact.Filename)
		s.Equal(checksum(s.tc.uploads[sub.Filename]), artifact.SHA256)
		s.NotEmpty(artifact.Body)
	})

	s.Run("second invocation is a no-op", func() {
		again, err := s.svc.File(s.ctx, s.report.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusSubmitted, again.Status)
		s.Equal(sub.Filename, again.Filename)
		s.Equal(1, s.tc.uploadCalls, "an already-submitted report must never re-transmit")
	})
}

func (s *ServiceSuite) TestFileUnknownReport() {
	_, err := s.svc.File(s.ctx, testutil.Report().ID)
	s.Require().Error(err)
	s.True(pkgerrors.HasCode(err, pkgerrors.CodeNotFound))
}

func (s *ServiceSuite) TestFilePreflightFailure() {
	s.report.Transferees[0].Individual.SSN = ""
	s.reports.Put(s.report)

	sub, err := s.svc.File(s.ctx, s.report.ID)
	s.Require().Error(err)
	s.True(pkgerrors.HasCode(err, pkgerrors.CodeValidation))

	s.Run("routed to review without transmitting", func() {
		s.Equal(models.StatusNeedsReview, sub.Status)
		s.Equal("preflight validation failed", sub.ReviewReason)
		s.Contains(sub.Errors, "missing buyer identification")
		s.Zero(s.tc.uploadCalls)
		s.Zero(sub.Attempts)
	})

	s.Run("retry after correction files cleanly", func() {
		s.report.Transferees[0].Individual.SSN = "123456789"
		s.reports.Put(s.report)

		fixed, err := s.svc.File(s.ctx, s.report.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusSubmitted, fixed.Status)
		s.Empty(fixed.Errors)
		s.Empty(fixed.ReviewReason)
		s.Equal(1, s.tc.uploadCalls)
	})
}

func (s *ServiceSuite) TestFileTransportFailure() {
	s.tc.uploadErr = &transport.Error{Op: "upload", Err: errors.New("connection reset")}

	sub, err := s.svc.File(s.ctx, s.report.ID)
	s.Require().Error(err)
	s.True(pkgerrors.HasCode(err, pkgerrors.CodeTransport))
	s.Equal(models.StatusQueued, sub.Status)
	s.Equal(1, sub.Attempts)
	s.False(sub.MaybeDelivered, "a clean failure is not ambiguous")

	s.Run("retry uploads under a fresh filename", func() {
		s.tc.uploadErr = nil
		s.now = s.now.Add(time.Minute)

		retried, err := s.svc.File(s.ctx, s.report.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusSubmitted, retried.Status)
		s.Equal(2, retried.Attempts)
		s.NotEqual(sub.Filename, retried.Filename)
	})
}

func (s *ServiceSuite) TestFileAmbiguousUploadConfirmedDelivered() {
	s.tc.uploadErr = &transport.Error{Op: "upload", Ambiguous: true, Err: errors.New("timeout mid-transfer")}

	sub, err := s.svc.File(s.ctx, s.report.ID)
	s.Require().Error(err)
	s.Equal(models.StatusQueued, sub.Status)
	s.True(sub.MaybeDelivered)
	s.NotEmpty(sub.Filename)

	// The regulator produced a status file: the upload did land.
	s.tc.respond(StatusMessageFilename(sub.Filename), acceptedStatusXML)
	s.tc.uploadErr = nil
	uploadsBefore := s.tc.uploadCalls

	confirmed, err := s.svc.File(s.ctx, s.report.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusSubmitted, confirmed.Status)
	s.False(confirmed.MaybeDelivered)
	s.NotNil(confirmed.NextPollAt)
	s.Equal(uploadsBefore, s.tc.uploadCalls, "a delivered document must not be re-uploaded")
}

func (s *ServiceSuite) TestFileAmbiguousUploadReusesFilename() {
	s.tc.uploadErr = &transport.Error{Op: "upload", Ambiguous: true, Err: errors.New("timeout mid-transfer")}

	sub, err := s.svc.File(s.ctx, s.report.ID)
	s.Require().Error(err)
	s.True(sub.MaybeDelivered)

	// No response files exist, so delivery is unconfirmed. The retry must
	// reuse the same filename: a duplicate under a fresh name would file the
	// transaction twice.
	s.tc.uploadErr = nil
	s.now = s.now.Add(time.Hour)

	retried, err := s.svc.File(s.ctx, s.report.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusSubmitted, retried.Status)
	s.Equal(sub.Filename, retried.Filename)
	s.Contains(s.tc.uploads, sub.Filename)
}

func (s *ServiceSuite) TestPollRejection() {
	sub := s.file()
	s.advancePast(sub)
	s.tc.respond(StatusMessageFilename(sub.Filename), rejectedStatusXML)

	polled, err := s.svc.Poll(s.ctx, s.report.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusRejected, polled.Status)
	s.Equal([]string{"E101: Transferee identification is missing"}, polled.Errors)
	s.Nil(polled.NextPollAt)
	s.True(polled.Status.IsTerminal())

	s.Run("terminal submissions are no longer polled", func() {
		downloads := s.tc.downloadCalls
		again, err := s.svc.Poll(s.ctx, s.report.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusRejected, again.Status)
		s.Equal(downloads, s.tc.downloadCalls)
	})
}

func (s *ServiceSuite) TestPollAcceptance() {
	sub := s.file()
	s.advancePast(sub)
	s.tc.respond(StatusMessageFilename(sub.Filename), acceptedStatusXML)
	s.tc.respond(AcknowledgmentFilename(sub.Filename), ackXML)

	polled, err := s.svc.Poll(s.ctx, s.report.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusAccepted, polled.Status)
	s.Equal("RER-2026-000123", polled.ReceiptID)
	s.Nil(polled.NextPollAt)

	s.Run("receipt is written back to the report", func() {
		stored, err := s.reports.Get(s.ctx, s.report.ID)
		s.Require().NoError(err)
		s.Equal("RER-2026-000123", stored.ReceiptID)
	})

	s.Run("response artifacts are archived", func() {
		_, err := s.subs.GetArtifact(s.ctx, sub.ID, models.ArtifactStatusMessage)
		s.NoError(err)
		_, err = s.subs.GetArtifact(s.ctx, sub.ID, models.ArtifactAcknowledgment)
		s.NoError(err)
	})
}

func (s *ServiceSuite) TestPollAcceptedWithWarnings() {
	sub := s.file()
	s.advancePast(sub)
	s.tc.respond(StatusMessageFilename(sub.Filename), warningStatusXML)

	polled, err := s.svc.Poll(s.ctx, s.report.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusNeedsReview, polled.Status)
	s.Equal("regulator accepted with warnings", polled.ReviewReason)
	s.Equal([]string{"W301: Ownership percentages do not sum to 100"}, polled.Errors)
	s.Nil(polled.NextPollAt)
}

func (s *ServiceSuite) TestPollNotDue() {
	s.file()

	downloads := s.tc.downloadCalls
	polled, err := s.svc.Poll(s.ctx, s.report.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusSubmitted, polled.Status)
	s.Equal(downloads, s.tc.downloadCalls, "a poll before its scheduled time must not touch the transport")
}

func (s *ServiceSuite) TestPollBackoffWidens() {
	sub := s.file()

	// 15m ladder start was consumed by the first schedule; each empty poll
	// widens toward the steady interval.
	expected := []time.Duration{time.Hour, 4 * time.Hour, 12 * time.Hour, 12 * time.Hour}
	for i, want := range expected {
		s.advancePast(sub)
		polled, err := s.svc.Poll(s.ctx, s.report.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusSubmitted, polled.Status)
		s.Equal(i+1, polled.PollAttempts)
		s.Require().NotNil(polled.NextPollAt)
		s.Equal(want, polled.NextPollAt.Sub(s.now), "attempt %d", i+1)
		sub = polled
	}
}

func (s *ServiceSuite) TestPollStatusWithoutAckKeepsPolling() {
	sub := s.file()
	s.advancePast(sub)
	s.tc.respond(StatusMessageFilename(sub.Filename), acceptedStatusXML)

	polled, err := s.svc.Poll(s.ctx, s.report.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusSubmitted, polled.Status, "acceptance without a receipt is not terminal")
	s.NotNil(polled.NextPollAt)

	s.Run("stored status message is not downloaded again", func() {
		s.advancePast(polled)
		downloads := s.tc.downloadCalls
		_, err := s.svc.Poll(s.ctx, s.report.ID)
		s.Require().NoError(err)
		// One download for the acknowledgment only.
		s.Equal(downloads+1, s.tc.downloadCalls)
	})
}

func (s *ServiceSuite) TestPollDeadlineEscalates() {
	sub := s.file()
	s.now = sub.SubmittedAt.Add(7*24*time.Hour + time.Minute)

	polled, err := s.svc.Poll(s.ctx, s.report.ID)
	s.Require().Error(err)
	s.True(pkgerrors.HasCode(err, pkgerrors.CodeTimeout))
	s.Equal(models.StatusNeedsReview, polled.Status)
	s.Contains(polled.ReviewReason, "no regulator response within")
	s.Nil(polled.NextPollAt)
}

func (s *ServiceSuite) TestPollAcknowledgmentMissingReceipt() {
	sub := s.file()
	s.advancePast(sub)
	s.tc.respond(AcknowledgmentFilename(sub.Filename),
		`<RERXAcknowledgment><Activity SeqNum="9"><ReceiptID>RER-X</ReceiptID></Activity></RERXAcknowledgment>`)

	polled, err := s.svc.Poll(s.ctx, s.report.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusNeedsReview, polled.Status)
	s.Contains(polled.ReviewReason, "no receipt for activity 1")
}

func (s *ServiceSuite) TestPollDue() {
	other := testutil.Report()
	s.reports.Put(other)

	subA := s.file()
	_, err := s.svc.File(s.ctx, other.ID)
	s.Require().NoError(err)

	s.tc.respond(StatusMessageFilename(subA.Filename), rejectedStatusXML)
	s.now = s.now.Add(16 * time.Minute)

	s.Run("processes every due submission independently", func() {
		s.Require().NoError(s.svc.PollDue(s.ctx))

		a, err := s.subs.GetByReport(s.ctx, s.report.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusRejected, a.Status)

		b, err := s.subs.GetByReport(s.ctx, other.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusSubmitted, b.Status)
		s.Equal(1, b.PollAttempts)
	})

	s.Run("aggregates poll failures without blocking the pass", func() {
		b, err := s.subs.GetByReport(s.ctx, other.ID)
		s.Require().NoError(err)
		s.now = b.NextPollAt.Add(time.Minute)
		s.tc.downloadErr = &transport.Error{Op: "download", Err: errors.New("connection reset")}

		err = s.svc.PollDue(s.ctx)
		s.Require().Error(err)
		s.Contains(err.Error(), other.ID.String())

		// The failed poll still advanced its schedule.
		b, getErr := s.subs.GetByReport(s.ctx, other.ID)
		s.Require().NoError(getErr)
		s.Equal(2, b.PollAttempts)
	})
}
