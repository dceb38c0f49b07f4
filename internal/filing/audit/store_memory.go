package audit

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore keeps audit events in memory. Suitable for demo deployments
// and tests; durable audit storage can implement Store against Postgres
// without touching the worker.
type MemoryStore struct {
	mu     sync.RWMutex
	events []Event
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Append(_ context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *MemoryStore) ListBySubmission(_ context.Context, submissionID uuid.UUID) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Event
	for _, e := range s.events {
		if e.SubmissionID == submissionID {
			out = append(out, e)
		}
	}
	return out, nil
}
