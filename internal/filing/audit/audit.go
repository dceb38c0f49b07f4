// Package audit records submission lifecycle transitions for later review.
// Emission is fire-and-forget from the pipeline's point of view: a full
// buffer drops the event rather than stalling a filing.
package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Event is one lifecycle fact worth keeping: a transition, an upload, a
// parsed response.
type Event struct {
	At           time.Time         `json:"at"`
	Action       string            `json:"action"`
	SubmissionID uuid.UUID         `json:"submission_id"`
	ReportID     uuid.UUID         `json:"report_id"`
	Detail       map[string]string `json:"detail,omitempty"`
}

// Store persists audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListBySubmission(ctx context.Context, submissionID uuid.UUID) ([]Event, error)
}

// ChannelPublisher buffers events toward a Worker. Emit never blocks.
type ChannelPublisher struct {
	inbox  chan Event
	logger *slog.Logger
}

// NewChannelPublisher sizes the buffer; 256 absorbs any realistic poll batch.
func NewChannelPublisher(buffer int, logger *slog.Logger) *ChannelPublisher {
	if buffer <= 0 {
		buffer = 256
	}
	return &ChannelPublisher{inbox: make(chan Event, buffer), logger: logger}
}

// Emit enqueues the event, dropping it (with a log line) when the buffer is
// full.
func (p *ChannelPublisher) Emit(_ context.Context, event Event) {
	select {
	case p.inbox <- event:
	default:
		if p.logger != nil {
			p.logger.Warn("audit buffer full, dropping event",
				"action", event.Action,
				"submission_id", event.SubmissionID,
			)
		}
	}
}

// Inbox exposes the channel for the worker.
func (p *ChannelPublisher) Inbox() <-chan Event { return p.inbox }

// Worker drains a publisher's inbox into a store.
type Worker struct {
	store Store
	inbox <-chan Event
}

func NewWorker(store Store, inbox <-chan Event) *Worker {
	return &Worker{store: store, inbox: inbox}
}

// Run consumes until ctx is cancelled. Store failures stop the worker so the
// supervisor can decide; audit loss must be visible, not silent.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event := <-w.inbox:
			if err := w.store.Append(ctx, event); err != nil {
				return err
			}
		}
	}
}
