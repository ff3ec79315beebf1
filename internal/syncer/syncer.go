// Package syncer drains the mutation queue against the backend: one run at
// a time, one item at a time, strictly in enqueue order.
package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	"github.com/tildaslashalef/driftq/internal/audit"
	"github.com/tildaslashalef/driftq/internal/backend"
	"github.com/tildaslashalef/driftq/internal/cache"
	"github.com/tildaslashalef/driftq/internal/config"
	"github.com/tildaslashalef/driftq/internal/events"
	"github.com/tildaslashalef/driftq/internal/loggy"
	"github.com/tildaslashalef/driftq/internal/queue"
)

var (
	// ErrRunInProgress is returned when a blocking sync is requested while
	// another run is active
	ErrRunInProgress = errors.New("a sync run is already in progress")

	// ErrOffline is returned when a blocking sync is requested without
	// connectivity
	ErrOffline = errors.New("backend is not reachable")
)

// Connectivity is the slice of the monitor the syncer consumes
type Connectivity interface {
	IsOnline() bool
}

// Summary is the outcome of one run, carried on the sync-completed event
type Summary struct {
	Attempted        int           `json:"attempted"`
	Succeeded        int           `json:"succeeded"`
	Failed           int           `json:"failed"`
	TerminallyFailed int           `json:"terminally_failed"`
	Duration         time.Duration `json:"duration"`
}

// Service replays queued mutations against the backend
type Service struct {
	queue    *queue.Service
	cache    *cache.Store
	backend  backend.Backend
	monitor  Connectivity
	bus      *events.Bus
	recorder audit.Recorder
	limiter  *rate.Limiter
	cfg      config.SyncConfig
	logger   *loggy.Logger

	// running is the whole concurrency story: checked and set under mu
	// before any backend call, so two runs can never replay the same item.
	mu      sync.Mutex
	running bool
}

// NewService creates a new sync service
func NewService(q *queue.Service, cacheStore *cache.Store, b backend.Backend, monitor Connectivity, bus *events.Bus, recorder audit.Recorder, cfg config.SyncConfig, logger *loggy.Logger) *Service {
	return &Service{
		queue:    q,
		cache:    cacheStore,
		backend:  b,
		monitor:  monitor,
		bus:      bus,
		recorder: recorder,
		limiter:  rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.BurstLimit),
		cfg:      cfg,
		logger:   logger,
	}
}

// Running reports whether a run is currently active
func (s *Service) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// TriggerSync starts a run in the background unless one is already active
// or the backend is offline. It reports whether a run was started; a false
// return is the coalesced no-op the connectivity monitor relies on.
func (s *Service) TriggerSync(ctx context.Context) bool {
	if !s.begin() {
		s.logger.Debug("Sync trigger coalesced, a run is already active")
		return false
	}

	if !s.monitor.IsOnline() {
		s.end()
		s.logger.Debug("Sync trigger skipped, offline")
		return false
	}

	go func() {
		defer s.end()
		s.run(ctx)
	}()

	return true
}

// SyncNow runs a full drain and blocks until it finishes, returning the
// run summary
func (s *Service) SyncNow(ctx context.Context) (*Summary, error) {
	if !s.begin() {
		return nil, ErrRunInProgress
	}
	defer s.end()

	if !s.monitor.IsOnline() {
		return nil, ErrOffline
	}

	return s.run(ctx), nil
}

// begin claims the single run slot
func (s *Service) begin() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return false
	}
	s.running = true
	return true
}

// end releases the run slot
func (s *Service) end() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}

// run drains the queue snapshot taken at start. Items enqueued while the
// run is active wait for the next invocation. Callers must hold the run
// slot.
func (s *Service) run(ctx context.Context) *Summary {
	summary := &Summary{}
	start := time.Now()

	// Snapshot the eligible IDs; FIFO order comes from the queue
	pending := s.queue.Pending()
	if len(pending) == 0 {
		return summary
	}

	ids := make([]string, 0, len(pending))
	for _, item := range pending {
		ids = append(ids, item.ID)
	}

	s.bus.Publish(events.TopicSyncStarted, len(ids))
	s.logger.Info("Sync run started", "eligible", len(ids))

	for _, id := range ids {
		// Re-read the live item: it may have been cancelled, coalesced
		// away or reset since the snapshot
		item, err := s.queue.Get(id)
		if err != nil || !item.Eligible() {
			continue
		}

		if s.cfg.PaceRetries && !item.NextAttemptAt.IsZero() && item.NextAttemptAt.After(time.Now()) {
			s.logger.Debug("Skipping paced mutation", "id", id, "next_attempt_at", item.NextAttemptAt)
			continue
		}

		// Connectivity lost mid-run: everything not yet attempted stays
		// pending for the next run
		if !s.monitor.IsOnline() {
			s.logger.Info("Connectivity lost mid-run, stopping", "remaining", len(ids))
			break
		}

		if err := s.limiter.Wait(ctx); err != nil {
			s.logger.Warn("Sync run aborted while rate limited", "error", err)
			break
		}

		summary.Attempted++
		s.attempt(ctx, item.ID, summary)
	}

	summary.Duration = time.Since(start)

	s.bus.Publish(events.TopicSyncCompleted, summary)
	s.recordRun(ctx, summary)
	s.logger.Info("Sync run completed",
		"attempted", summary.Attempted,
		"succeeded", summary.Succeeded,
		"failed", summary.Failed,
		"terminally_failed", summary.TerminallyFailed,
		"duration", summary.Duration,
	)

	return summary
}

// attempt replays one mutation and reconciles the outcome
func (s *Service) attempt(ctx context.Context, id string, summary *Summary) {
	if err := s.queue.BeginAttempt(id); err != nil {
		return
	}
	defer s.queue.EndAttempt()

	item, err := s.queue.Get(id)
	if err != nil {
		return
	}

	reqCtx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
	record, err := s.backend.Submit(reqCtx, item)
	cancel()

	if err != nil {
		s.handleFailure(ctx, item.ID, item.RetryCount, err, summary)
		return
	}

	if err := s.queue.MarkSucceeded(ctx, id); err != nil {
		s.logger.Warn("Failed to dequeue replayed mutation", "id", id, "error", err)
	}

	// The server record is authoritative now. When the server assigned a
	// different ID, the optimistic placeholder is stale and gets dropped.
	if record.ID != "" && record.ID != item.EntityKey {
		s.cache.Invalidate(item.Resource, item.EntityKey)
	}
	s.cache.Reconcile(item.Resource, *record)

	summary.Succeeded++
	s.logger.Debug("Replayed mutation", "id", id, "entity", item.EntityKey)
}

// handleFailure classifies the error and books it onto the item. A failed
// item never blocks the run; the loop moves on to the next one.
func (s *Service) handleFailure(ctx context.Context, id string, retryCount int, cause error, summary *Summary) {
	kind := backend.Classify(cause)

	var nextAttempt time.Time
	if s.cfg.PaceRetries && !kind.Terminal() {
		nextAttempt = time.Now().Add(s.retryDelay(retryCount))
	}

	updated, err := s.queue.RecordFailure(ctx, id, kind, cause, nextAttempt)
	if err != nil {
		s.logger.Warn("Failed to record replay failure", "id", id, "error", err)
		return
	}

	if updated.Terminal() {
		summary.TerminallyFailed++
	} else {
		summary.Failed++
	}

	s.logger.Warn("Mutation replay failed",
		"id", id,
		"kind", string(updated.FailureKind),
		"retries", updated.RetryCount,
		"terminal", updated.Terminal(),
		"error", cause,
	)
}

// retryDelay returns the pacing delay after the given number of prior
// failures, following an exponential schedule clamped to the configured
// maximum
func (s *Service) retryDelay(retryCount int) time.Duration {
	sched := backoff.NewExponentialBackOff()
	sched.InitialInterval = s.cfg.InitialBackoff
	sched.MaxInterval = s.cfg.MaxBackoff
	sched.MaxElapsedTime = 0
	sched.RandomizationFactor = 0
	sched.Reset()

	delay := sched.NextBackOff()
	for i := 0; i < retryCount; i++ {
		delay = sched.NextBackOff()
	}
	return delay
}

// recordRun writes the run outcome to the audit trail
func (s *Service) recordRun(ctx context.Context, summary *Summary) {
	detail, err := json.Marshal(summary)
	if err != nil {
		detail = []byte(fmt.Sprintf("attempted=%d succeeded=%d", summary.Attempted, summary.Succeeded))
	}
	s.recorder.RecordRun(ctx, audit.EventRunCompleted, string(detail))
}
