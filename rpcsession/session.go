// SPDX-License-Identifier: LGPL-3.0-or-later

// Package rpcsession implements the server-side session state machine
// described in spec §4.3: AWAIT_HS -> HANDSHAKED -> AUTHING/READY -> CLOSED.
package rpcsession

import (
	"crypto/rsa"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sage-x-project/agentrpc/crypto"
)

// State is a position in the per-connection server state machine.
type State int

const (
	StateAwaitHandshake State = iota
	StateHandshaked
	StateAuthing
	StateReady
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateAwaitHandshake:
		return "AWAIT_HS"
	case StateHandshaked:
		return "HANDSHAKED"
	case StateAuthing:
		return "AUTHING"
	case StateReady:
		return "READY"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// DelegateInvoker is a server-side proxy pointing back to a client-owned
// delegate or event handler. dispatch implements this; rpcsession only
// needs to hold and invalidate the handles.
type DelegateInvoker interface {
	Invoke(args []byte) ([]byte, error)
}

// Stats exposes session statistics for logging/metrics, mirroring the
// teacher's session.Status/GetMessageCount but scoped to one session.
type Stats struct {
	MessageCount   int
	CreatedAt      time.Time
	LastActivityAt time.Time
}

// Session is the per-connection server state named in spec §3.
type Session struct {
	mu sync.RWMutex

	id    uuid.UUID
	state State

	clientPublicKey *rsa.PublicKey
	cipher          *crypto.SessionCipher

	identity      string
	authenticated bool

	createdAt      time.Time
	lastActivityAt time.Time
	messageCount   int

	delegates map[uuid.UUID]DelegateInvoker

	closed bool
}

// newSession constructs a Session in AWAIT_HS state. id becomes both the
// GUID identifying the connection and, when encryption is on, the AES
// shared secret wrapped by cipher.
func newSession(id uuid.UUID, cipher *crypto.SessionCipher) *Session {
	now := time.Now()
	return &Session{
		id:             id,
		state:          StateAwaitHandshake,
		cipher:         cipher,
		createdAt:      now,
		lastActivityAt: now,
		delegates:      make(map[uuid.UUID]DelegateInvoker),
	}
}

func (s *Session) ID() uuid.UUID { return s.id }

func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Session) SetState(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}

// Cipher returns the AES session cipher, or nil when encryption is off.
func (s *Session) Cipher() *crypto.SessionCipher {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cipher
}

// SetCipher installs the AES session cipher once the key exchange (spec
// §4.2) has produced a shared secret. Called exactly once, right after
// the handshake response is sent.
func (s *Session) SetCipher(c *crypto.SessionCipher) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cipher = c
}

func (s *Session) ClientPublicKey() *rsa.PublicKey {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.clientPublicKey
}

func (s *Session) SetClientPublicKey(pub *rsa.PublicKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clientPublicKey = pub
}

func (s *Session) Identity() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.identity, s.authenticated
}

func (s *Session) SetIdentity(identity string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.identity = identity
	s.authenticated = identity != ""
}

// Touch refreshes LastActivityAt and counts one more message, covering both
// real traffic and keep-alive frames per spec §4.3's empty-frame rule.
func (s *Session) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActivityAt = time.Now()
	s.messageCount++
}

func (s *Session) LastActivityAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastActivityAt
}

// IdleFor reports whether the session has been silent for longer than d.
func (s *Session) IdleFor(d time.Duration) bool {
	if d <= 0 {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return time.Since(s.lastActivityAt) > d
}

func (s *Session) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Stats{
		MessageCount:   s.messageCount,
		CreatedAt:      s.createdAt,
		LastActivityAt: s.lastActivityAt,
	}
}

// RegisterDelegate binds a server-issued HandlerKey to a proxy that calls
// back into the client, per spec §4.4's delegate-argument handling.
func (s *Session) RegisterDelegate(key uuid.UUID, d DelegateInvoker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delegates[key] = d
}

func (s *Session) Delegate(key uuid.UUID) (DelegateInvoker, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.delegates[key]
	return d, ok
}

func (s *Session) RemoveDelegate(key uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.delegates, key)
}

// Close invalidates every outstanding server-to-client delegate and marks
// the session CLOSED, satisfying the invariant in spec §3 that a
// disconnect disposes the session and its delegates together.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.state = StateClosed
	s.delegates = make(map[uuid.UUID]DelegateInvoker)
}

func (s *Session) Closed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}
