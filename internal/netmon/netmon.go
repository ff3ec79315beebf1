// Package netmon tracks whether the backend is reachable and tells its
// observers about transitions, never about steady state.
package netmon

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/tildaslashalef/driftq/internal/config"
	"github.com/tildaslashalef/driftq/internal/loggy"
)

// Prober checks backend reachability. The backend HTTP client implements
// it via its health endpoint.
type Prober interface {
	Ping(ctx context.Context) error
}

// Monitor holds the current connectivity state. State changes come from
// the probe loop or from a host that has its own connectivity signal and
// feeds it in through SetOnline.
type Monitor struct {
	mu     sync.Mutex
	online bool
	nextID int
	subs   map[int]func(online bool)

	prober Prober
	cfg    config.ConnectivityConfig
	logger *loggy.Logger
}

// NewMonitor creates a monitor in the configured initial state
func NewMonitor(prober Prober, cfg config.ConnectivityConfig, logger *loggy.Logger) *Monitor {
	return &Monitor{
		online: cfg.AssumeOnline,
		subs:   make(map[int]func(bool)),
		prober: prober,
		cfg:    cfg,
		logger: logger,
	}
}

// IsOnline returns the current connectivity state
func (m *Monitor) IsOnline() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// OnChange registers an observer for connectivity transitions and returns
// a function that removes it. Observers run synchronously on the goroutine
// that detected the transition.
func (m *Monitor) OnChange(fn func(online bool)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextID
	m.nextID++
	m.subs[id] = fn

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.subs, id)
	}
}

// SetOnline records a connectivity observation. Observers are notified
// only when the state actually changed, so a repeated observation of the
// same state never re-fires them.
func (m *Monitor) SetOnline(online bool) {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return
	}
	m.online = online

	observers := make([]func(bool), 0, len(m.subs))
	for _, fn := range m.subs {
		observers = append(observers, fn)
	}
	m.mu.Unlock()

	m.logger.Info("Connectivity changed", "online", online)
	for _, fn := range observers {
		fn(online)
	}
}

// Start runs the probe loop until the context is cancelled. Each tick
// probes the backend health endpoint; a few quick retries keep one dropped
// packet from flapping the state.
func (m *Monitor) Start(ctx context.Context) {
	m.logger.Info("Connectivity monitor started",
		"interval", m.cfg.ProbeInterval, "timeout", m.cfg.ProbeTimeout)

	// Establish the real state immediately instead of waiting a tick
	m.SetOnline(m.probe(ctx))

	ticker := time.NewTicker(m.cfg.ProbeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("Connectivity monitor stopped")
			return
		case <-ticker.C:
			m.SetOnline(m.probe(ctx))
		}
	}
}

// probe checks reachability with a small retry budget per observation
func (m *Monitor) probe(ctx context.Context) bool {
	sched := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), m.cfg.ProbeRetries), ctx)

	err := backoff.Retry(func() error {
		attemptCtx, cancel := context.WithTimeout(ctx, m.cfg.ProbeTimeout)
		defer cancel()
		return m.prober.Ping(attemptCtx)
	}, sched)

	if err != nil {
		m.logger.Debug("Backend probe failed", "error", err)
		return false
	}
	return true
}
