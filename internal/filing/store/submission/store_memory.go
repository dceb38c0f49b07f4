// Package submission persists the filing lifecycle rows. Two implementations:
// an in-memory store for demo deployments and tests, and a PostgreSQL store
// for production. Both enforce the one-submission-per-report invariant and
// provide the per-report lock the lifecycle manager serializes on.
package submission

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"rerfiler/internal/filing/models"
	"rerfiler/pkg/sentinel"
)

// MemoryStore implements the submission store in process memory.
type MemoryStore struct {
	mu        sync.RWMutex
	byReport  map[uuid.UUID]*models.Submission
	artifacts map[uuid.UUID][]*models.Artifact
	locks     map[uuid.UUID]*sync.Mutex
}

func NewMemory() *MemoryStore {
	return &MemoryStore{
		byReport:  make(map[uuid.UUID]*models.Submission),
		artifacts: make(map[uuid.UUID][]*models.Artifact),
		locks:     make(map[uuid.UUID]*sync.Mutex),
	}
}

func (s *MemoryStore) Create(_ context.Context, sub *models.Submission) error {
	if sub == nil {
		return fmt.Errorf("submission is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byReport[sub.ReportID]; exists {
		return fmt.Errorf("submission for report %s: %w", sub.ReportID, sentinel.ErrConflict)
	}
	s.byReport[sub.ReportID] = cloneSubmission(sub)
	return nil
}

func (s *MemoryStore) GetByReport(_ context.Context, reportID uuid.UUID) (*models.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub, ok := s.byReport[reportID]
	if !ok {
		return nil, fmt.Errorf("submission for report %s: %w", reportID, sentinel.ErrNotFound)
	}
	return cloneSubmission(sub), nil
}

func (s *MemoryStore) Update(_ context.Context, sub *models.Submission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.byReport[sub.ReportID]
	if !ok {
		return fmt.Errorf("submission for report %s: %w", sub.ReportID, sentinel.ErrNotFound)
	}
	if existing.ID != sub.ID {
		return fmt.Errorf("submission id mismatch for report %s: %w", sub.ReportID, sentinel.ErrInvalidState)
	}
	s.byReport[sub.ReportID] = cloneSubmission(sub)
	return nil
}

func (s *MemoryStore) ListDue(_ context.Context, now time.Time) ([]*models.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var due []*models.Submission
	for _, sub := range s.byReport {
		if sub.Status != models.StatusSubmitted {
			continue
		}
		if sub.NextPollAt != nil && !sub.NextPollAt.After(now) {
			due = append(due, cloneSubmission(sub))
		}
	}
	return due, nil
}

// AddArtifact appends a payload copy. The same (kind, filename) pair stored
// twice is a conflict: response files are immutable once received, and each
// outbound attempt carries a distinct filename.
func (s *MemoryStore) AddArtifact(_ context.Context, artifact *models.Artifact) error {
	if artifact == nil {
		return fmt.Errorf("artifact is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.artifacts[artifact.SubmissionID] {
		if a.Kind == artifact.Kind && a.Filename == artifact.Filename {
			return fmt.Errorf("artifact %s %s: %w", artifact.Kind, artifact.Filename, sentinel.ErrConflict)
		}
	}
	copied := *artifact
	copied.Body = append([]byte(nil), artifact.Body...)
	s.artifacts[artifact.SubmissionID] = append(s.artifacts[artifact.SubmissionID], &copied)
	return nil
}

// GetArtifact returns the most recently stored artifact of the given kind.
func (s *MemoryStore) GetArtifact(_ context.Context, submissionID uuid.UUID, kind models.ArtifactKind) (*models.Artifact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stored := s.artifacts[submissionID]
	for i := len(stored) - 1; i >= 0; i-- {
		if stored[i].Kind == kind {
			copied := *stored[i]
			copied.Body = append([]byte(nil), stored[i].Body...)
			return &copied, nil
		}
	}
	return nil, fmt.Errorf("artifact %s for submission %s: %w", kind, submissionID, sentinel.ErrNotFound)
}

// AcquireLock serializes File/Poll per report within this process. The
// PostgreSQL store extends the same guarantee across processes.
func (s *MemoryStore) AcquireLock(_ context.Context, reportID uuid.UUID) (func() error, error) {
	s.mu.Lock()
	lock, ok := s.locks[reportID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[reportID] = lock
	}
	s.mu.Unlock()

	lock.Lock()
	return func() error {
		lock.Unlock()
		return nil
	}, nil
}

func cloneSubmission(sub *models.Submission) *models.Submission {
	copied := *sub
	copied.Errors = append([]string(nil), sub.Errors...)
	if sub.SubmittedAt != nil {
		t := *sub.SubmittedAt
		copied.SubmittedAt = &t
	}
	if sub.NextPollAt != nil {
		t := *sub.NextPollAt
		copied.NextPollAt = &t
	}
	return &copied
}
