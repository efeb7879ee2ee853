// Package probe monitors session liveness by periodically calling the
// authenticate probe and classifying the result for the console status bar.
package probe

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/warpspeed/portal/internal/interfaces"
	"github.com/warpspeed/portal/internal/logging"
)

// Session states
const (
	StateChecking        = "checking"
	StateOnline          = "online"
	StateOffline         = "offline"
	StateUnauthenticated = "unauthenticated"
)

// DefaultInterval between probes
const DefaultInterval = 60 * time.Second

// Prober is the liveness check; auth.Service satisfies it
type Prober interface {
	Authenticate(ctx context.Context) bool
}

// Monitor runs probes and keeps a bounded history of results
type Monitor struct {
	prober         Prober
	store          interfaces.SessionStore
	interval       time.Duration
	maxHistorySize int
	logger         *logging.Logger

	mutex   sync.RWMutex
	status  interfaces.SessionStatus
	history []interfaces.SessionStatus
}

// NewMonitor creates a monitor; a non-positive interval selects DefaultInterval
func NewMonitor(prober Prober, store interfaces.SessionStore, interval time.Duration) (*Monitor, error) {
	if prober == nil {
		return nil, fmt.Errorf("prober cannot be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("session store cannot be nil")
	}
	if interval <= 0 {
		interval = DefaultInterval
	}

	return &Monitor{
		prober:         prober,
		store:          store,
		interval:       interval,
		maxHistorySize: 100,
		logger:         logging.GetProbeLogger(),
		status:         interfaces.SessionStatus{State: StateChecking},
	}, nil
}

// Check runs one probe and records the result. A missing credential is
// reported without contacting the API.
func (m *Monitor) Check(ctx context.Context) interfaces.SessionStatus {
	start := time.Now()
	status := interfaces.SessionStatus{LastChecked: start}

	switch {
	case !m.store.Has():
		status.State = StateUnauthenticated
	case m.prober.Authenticate(ctx):
		status.State = StateOnline
		status.ResponseTime = time.Since(start)
	case !m.store.Has():
		// Recovery failed and dropped the session
		status.State = StateUnauthenticated
	default:
		status.State = StateOffline
		status.ResponseTime = time.Since(start)
	}

	m.record(status)
	return status
}

// Run probes immediately and then on every interval until ctx is done.
// onChange is called whenever the state differs from the previous probe.
func (m *Monitor) Run(ctx context.Context, onChange func(interfaces.SessionStatus)) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	previous := ""
	for {
		status := m.Check(ctx)
		if status.State != previous {
			m.logger.Info("Session state changed", "from", previous, "to", status.State)
			previous = status.State
			if onChange != nil {
				onChange(status)
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Status returns the most recent probe result
func (m *Monitor) Status() interfaces.SessionStatus {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return m.status
}

// History returns up to limit recent results, newest last
func (m *Monitor) History(limit int) []interfaces.SessionStatus {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	if limit <= 0 || limit > len(m.history) {
		limit = len(m.history)
	}
	out := make([]interfaces.SessionStatus, limit)
	copy(out, m.history[len(m.history)-limit:])
	return out
}

// Availability returns the share of probes within window that were online
func (m *Monitor) Availability(window time.Duration) float64 {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	cutoff := time.Now().Add(-window)
	total, online := 0, 0
	for _, s := range m.history {
		if s.LastChecked.Before(cutoff) {
			continue
		}
		total++
		if s.State == StateOnline {
			online++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(online) / float64(total) * 100
}

func (m *Monitor) record(status interfaces.SessionStatus) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.status = status
	m.history = append(m.history, status)
	if len(m.history) > m.maxHistorySize {
		m.history = m.history[len(m.history)-m.maxHistorySize:]
	}
}
