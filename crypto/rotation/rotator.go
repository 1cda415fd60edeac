// SPDX-License-Identifier: LGPL-3.0-or-later

// Package rotation provides a manual RSA key rotator for long-lived
// server instance keys, outside the hot path of any single session:
// operators call Rotate on a schedule of their choosing and redistribute
// the new public key blob out of band. Adapted from the teacher's
// keyRotator (Ed25519/Secp256k1-keyed, storage-interface-backed) onto the
// single RSA KeyPair type this module actually signs handshakes with.
package rotation

import (
	"fmt"
	"sync"
	"time"

	"github.com/sage-x-project/agentrpc/crypto/keys"
)

// Event records one completed rotation.
type Event struct {
	Timestamp time.Time
	OldKeyID  string
	NewKeyID  string
	Reason    string
}

// Rotator generates a fresh RSA key pair on demand and keeps a history of
// past rotations per logical key ID (e.g. "server-instance").
type Rotator struct {
	size keys.Size

	mu       sync.RWMutex
	current  map[string]*keys.KeyPair
	history  map[string][]Event
	rotating map[string]bool
}

// NewRotator builds a Rotator that generates keys.Size-sized RSA keys.
func NewRotator(size keys.Size) *Rotator {
	if size == 0 {
		size = keys.Size2048
	}
	return &Rotator{
		size:     size,
		current:  make(map[string]*keys.KeyPair),
		history:  make(map[string][]Event),
		rotating: make(map[string]bool),
	}
}

// Seed registers the key pair a caller is already using for id, so the
// first Rotate call has an OldKeyID to record.
func (r *Rotator) Seed(id string, kp *keys.KeyPair) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.current[id] = kp
}

// Current returns the most recently generated key pair for id, if any.
func (r *Rotator) Current(id string) (*keys.KeyPair, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kp, ok := r.current[id]
	return kp, ok
}

// Rotate generates a new key pair for id, replacing whatever was current,
// and records the transition in history. Concurrent rotations of the same
// id are rejected rather than queued.
func (r *Rotator) Rotate(id, reason string) (*keys.KeyPair, error) {
	r.mu.Lock()
	if r.rotating[id] {
		r.mu.Unlock()
		return nil, fmt.Errorf("rotation: %s is already rotating", id)
	}
	r.rotating[id] = true
	old := r.current[id]
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		delete(r.rotating, id)
		r.mu.Unlock()
	}()

	next, err := keys.Generate(r.size)
	if err != nil {
		return nil, fmt.Errorf("rotation: generate: %w", err)
	}

	event := Event{Timestamp: time.Now(), NewKeyID: next.ID(), Reason: reason}
	if old != nil {
		event.OldKeyID = old.ID()
	}

	r.mu.Lock()
	r.current[id] = next
	r.history[id] = append(r.history[id], event)
	r.mu.Unlock()

	return next, nil
}

// History returns id's rotation events, newest first.
func (r *Rotator) History(id string) []Event {
	r.mu.RLock()
	defer r.mu.RUnlock()

	events := r.history[id]
	out := make([]Event, len(events))
	for i, e := range events {
		out[len(events)-1-i] = e
	}
	return out
}
