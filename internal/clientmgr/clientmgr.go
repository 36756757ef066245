// Package clientmgr supervises one long-lived session to a back-end engine:
// disabled -> connecting -> connected -> degraded/disconnected, with
// exponential reconnect back-off and an exactly-once onConnect fan-out. The
// state-machine-plus-listener shape mirrors the teacher's Tracker type,
// which holds swarm state behind an explicit lifecycle rather than exposing
// bare goroutines to callers.
package clientmgr

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/dlbridge/dlbridge/internal/bridgeerr"
)

// State is one point in a Manager's lifecycle.
type State int

const (
	StateDisabled State = iota
	StateConnecting
	StateConnected
	StateDegraded
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateDisabled:
		return "disabled"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDegraded:
		return "degraded"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

const (
	initialBackoff = 2 * time.Second
	maxBackoff     = 30 * time.Second
	degradedProbe  = 10 * time.Second
)

// Session is implemented by a back-end-specific adapter; Manager drives it
// through dial/health/close without knowing which engine is behind it.
type Session interface {
	// Dial establishes the connection and performs any handshake.
	Dial(ctx context.Context) error
	// HealthCheck probes liveness of an already-dialed session.
	HealthCheck(ctx context.Context) error
	// Close tears the session down.
	Close() error
}

// Manager supervises a Session's lifecycle for one named back-end.
type Manager struct {
	name    string
	session Session

	mu       sync.RWMutex
	state    State
	backoff  time.Duration
	onConnect []func(context.Context)

	stop   chan struct{}
	stopped sync.Once
}

// New builds a disabled Manager; call Enable to start supervising.
func New(name string, session Session) *Manager {
	return &Manager{
		name:    name,
		session: session,
		state:   StateDisabled,
		backoff: initialBackoff,
		stop:    make(chan struct{}),
	}
}

// OnConnect registers a listener invoked exactly once per transition into
// StateConnected. Registering after the manager is already connected does
// not retroactively fire the listener; callers that need the current state
// should check State() themselves after registering.
func (m *Manager) OnConnect(fn func(ctx context.Context)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onConnect = append(m.onConnect, fn)
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}

// Enable starts the connect/supervise loop in a background goroutine. It is
// idempotent-ish: calling it twice on a never-stopped Manager starts a
// second supervisor loop, so callers should call it exactly once.
func (m *Manager) Enable(ctx context.Context) {
	m.setState(StateConnecting)
	go m.superviseLoop(ctx)
}

// Disable stops the supervisor loop and tears down any live session.
func (m *Manager) Disable() {
	m.stopped.Do(func() { close(m.stop) })
	m.session.Close()
	m.setState(StateDisabled)
}

func (m *Manager) superviseLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stop:
			return
		default:
		}

		if err := m.session.Dial(ctx); err != nil {
			log.WithFields(log.Fields{"client": m.name, "err": err}).Warn("clientmgr: dial failed, backing off")
			m.setState(StateConnecting)
			if !m.sleepBackoff(ctx) {
				return
			}
			continue
		}

		m.backoff = initialBackoff
		m.transitionToConnected(ctx)

		if !m.healthLoop(ctx) {
			return
		}
	}
}

func (m *Manager) transitionToConnected(ctx context.Context) {
	m.setState(StateConnected)
	m.mu.RLock()
	listeners := append([]func(context.Context){}, m.onConnect...)
	m.mu.RUnlock()
	for _, fn := range listeners {
		fn(ctx)
	}
}

// healthLoop probes the session on a timer until it degrades past recovery,
// returning false if the caller should stop entirely (ctx/stop fired).
func (m *Manager) healthLoop(ctx context.Context) bool {
	ticker := time.NewTicker(degradedProbe)
	defer ticker.Stop()

	consecutiveFailures := 0
	for {
		select {
		case <-ctx.Done():
			return false
		case <-m.stop:
			return false
		case <-ticker.C:
			if err := m.session.HealthCheck(ctx); err != nil {
				consecutiveFailures++
				m.setState(StateDegraded)
				log.WithFields(log.Fields{"client": m.name, "failures": consecutiveFailures}).Warn("clientmgr: health probe failed")
				if consecutiveFailures >= 2 {
					m.setState(StateDisconnected)
					m.session.Close()
					return true // loop again: reconnect
				}
				continue
			}
			consecutiveFailures = 0
			if m.State() == StateDegraded {
				m.setState(StateConnected)
			}
		}
	}
}

func (m *Manager) sleepBackoff(ctx context.Context) bool {
	d := m.backoff
	m.backoff *= 2
	if m.backoff > maxBackoff {
		m.backoff = maxBackoff
	}
	select {
	case <-time.After(d):
		return true
	case <-ctx.Done():
		return false
	case <-m.stop:
		return false
	}
}

// Call runs fn only if the manager is currently connected, failing fast
// with NotConnected otherwise rather than blocking on a reconnect.
func (m *Manager) Call(fn func() error) error {
	if s := m.State(); s != StateConnected {
		return bridgeerr.New(bridgeerr.KindNotConnected, "clientmgr.Call", nil)
	}
	if err := fn(); err != nil {
		return err
	}
	return nil
}
