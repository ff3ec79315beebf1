package audit

import (
	"context"

	"github.com/tildaslashalef/driftq/internal/loggy"
	"github.com/tildaslashalef/driftq/internal/mutation"
)

// Recorder is the surface the queue and syncer record lifecycle events
// through. A nil *Service is a valid no-op Recorder.
type Recorder interface {
	// RecordMutation records a lifecycle event for one mutation
	RecordMutation(ctx context.Context, m *mutation.Mutation, event Event, detail string)

	// RecordRun records a run-level event
	RecordRun(ctx context.Context, event Event, detail string)
}

// Service persists audit entries, stamped with the client name. Recording
// never fails the caller: a write error is logged and dropped, since an
// unavailable audit trail must not block queue operations.
type Service struct {
	repo       Repository
	clientName string
	logger     *loggy.Logger
}

// NewService creates a new audit service
func NewService(repo Repository, clientName string, logger *loggy.Logger) *Service {
	return &Service{
		repo:       repo,
		clientName: clientName,
		logger:     logger,
	}
}

// SetClientName updates the client name stamped on subsequent entries
func (s *Service) SetClientName(name string) {
	if s == nil {
		return
	}
	s.clientName = name
}

// RecordMutation records a lifecycle event for one mutation
func (s *Service) RecordMutation(ctx context.Context, m *mutation.Mutation, event Event, detail string) {
	if s == nil {
		return
	}

	entry := NewEntry(m, event, detail)
	entry.Client = s.clientName
	s.insert(ctx, entry)
}

// RecordRun records a run-level event
func (s *Service) RecordRun(ctx context.Context, event Event, detail string) {
	if s == nil {
		return
	}

	entry := NewRunEntry(event, detail)
	entry.Client = s.clientName
	s.insert(ctx, entry)
}

// List returns the most recent entries, newest first
func (s *Service) List(ctx context.Context, limit int) ([]*Entry, error) {
	return s.repo.List(ctx, limit)
}

// ListByMutation returns every entry for one mutation, oldest first
func (s *Service) ListByMutation(ctx context.Context, mutationID string) ([]*Entry, error) {
	return s.repo.ListByMutation(ctx, mutationID)
}

func (s *Service) insert(ctx context.Context, entry *Entry) {
	if err := s.repo.Insert(ctx, entry); err != nil {
		s.logger.Warn("Failed to record audit entry",
			"event", string(entry.Event),
			"mutation_id", entry.MutationID,
			"error", err,
		)
	}
}
