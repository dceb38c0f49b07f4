// Package report gives the pipeline its narrow view of the externally owned
// transaction reports. The wizard/API system that produces reports owns their
// durable storage; this package only needs Get and the receipt write-back.
// The memory implementation serves demo deployments, tooling, and tests;
// production deployments adapt the owning system's store to ports.ReportStore.
package report

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"rerfiler/internal/filing/models"
	"rerfiler/pkg/sentinel"
)

// MemoryStore holds reports in memory.
type MemoryStore struct {
	mu      sync.RWMutex
	reports map[uuid.UUID]*models.Report
}

func NewMemory() *MemoryStore {
	return &MemoryStore{reports: make(map[uuid.UUID]*models.Report)}
}

// Put registers a report, overwriting any previous version.
func (s *MemoryStore) Put(report *models.Report) {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *report
	s.reports[report.ID] = &copied
}

func (s *MemoryStore) Get(_ context.Context, reportID uuid.UUID) (*models.Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.reports[reportID]
	if !ok {
		return nil, fmt.Errorf("report %s: %w", reportID, sentinel.ErrNotFound)
	}
	copied := *r
	return &copied, nil
}

func (s *MemoryStore) SetReceiptID(_ context.Context, reportID uuid.UUID, receiptID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reports[reportID]
	if !ok {
		return fmt.Errorf("report %s: %w", reportID, sentinel.ErrNotFound)
	}
	r.ReceiptID = receiptID
	return nil
}
