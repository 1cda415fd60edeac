// SPDX-License-Identifier: LGPL-3.0-or-later

package rpcsession

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sage-x-project/agentrpc/crypto"
	"github.com/sage-x-project/agentrpc/internal/logger"
)

// Manager is the server-side session repository: a concurrent map keyed by
// SessionId plus a reaper that closes idle sessions, per spec §4.3 and §5.
// Grounded on the cleanup-ticker pattern the teacher uses for its own
// session manager, generalized from a fixed 30s/1h/10m policy to
// configurable IdleTimeout/ReapInterval.
type Manager struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*Session

	idleTimeout  time.Duration
	reapInterval time.Duration

	onExpire func(*Session)
	log      logger.Logger

	ticker *time.Ticker
	stop   chan struct{}
	once   sync.Once
}

// NewManager creates a Manager and starts its background reaper.
// onExpire, when non-nil, is invoked for each session the reaper closes so
// callers can emit a session_closed wire message before teardown.
func NewManager(idleTimeout, reapInterval time.Duration, onExpire func(*Session)) *Manager {
	if reapInterval <= 0 {
		reapInterval = 30 * time.Second
	}
	m := &Manager{
		sessions:     make(map[uuid.UUID]*Session),
		idleTimeout:  idleTimeout,
		reapInterval: reapInterval,
		onExpire:     onExpire,
		log:          logger.GetDefaultLogger(),
		stop:         make(chan struct{}),
	}
	m.ticker = time.NewTicker(reapInterval)
	go m.runReaper()
	return m
}

// Accept creates a new Session in AWAIT_HS state with a fresh SessionId,
// per spec §4.3's "On transport-accept" step. cipher is nil when the
// connection runs unencrypted.
func (m *Manager) Accept(cipher *crypto.SessionCipher) (*Session, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return nil, err
	}
	s := newSession(id, cipher)

	m.mu.Lock()
	m.sessions[id] = s
	m.mu.Unlock()
	return s, nil
}

// Get returns the session for id, or false if it does not exist or has
// already been closed.
func (m *Manager) Get(id uuid.UUID) (*Session, bool) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok || s.Closed() {
		return nil, false
	}
	return s, true
}

// Remove closes and evicts a session, e.g. on goodbye.
func (m *Manager) Remove(id uuid.UUID) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()
	if ok {
		s.Close()
	}
}

func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Close stops the reaper and closes every live session.
func (m *Manager) Close() {
	m.once.Do(func() { close(m.stop) })
	m.ticker.Stop()

	m.mu.Lock()
	defer m.mu.Unlock()
	for id, s := range m.sessions {
		s.Close()
		delete(m.sessions, id)
	}
}

func (m *Manager) runReaper() {
	for {
		select {
		case <-m.ticker.C:
			m.reapIdle()
		case <-m.stop:
			return
		}
	}
}

func (m *Manager) reapIdle() {
	if m.idleTimeout <= 0 {
		return
	}

	var expired []*Session
	m.mu.Lock()
	for id, s := range m.sessions {
		if s.IdleFor(m.idleTimeout) {
			expired = append(expired, s)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, s := range expired {
		if m.onExpire != nil {
			m.onExpire(s)
		}
		s.Close()
		if m.log != nil {
			m.log.Info("reaped idle session", logger.String("session_id", s.ID().String()))
		}
	}
}
