// SAGE - Secure Agent Guarantee Engine
// Copyright (C) 2025 SAGE-X-project
//
// This file is part of SAGE.
//
// SAGE is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// SAGE is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with SAGE. If not, see <https://www.gnu.org/licenses/>.

// SPDX-License-Identifier: LGPL-3.0-or-later

// Package memory is an in-process store.IdentityStore, useful for tests
// and single-process deployments that want the audit trail without a
// database dependency.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sage-x-project/agentrpc/store"
)

// Store implements store.IdentityStore with two guarded maps; session
// events are kept as an append-only slice per session ID.
type Store struct {
	mu         sync.RWMutex
	identities map[string]*store.Identity
	events     map[string][]*store.SessionEvent
}

func NewStore() *Store {
	return &Store{
		identities: make(map[string]*store.Identity),
		events:     make(map[string][]*store.SessionEvent),
	}
}

func (s *Store) SaveIdentity(ctx context.Context, identity *store.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	existing, ok := s.identities[identity.ID]
	cp := *identity
	cp.UpdatedAt = now
	if ok {
		cp.CreatedAt = existing.CreatedAt
	} else {
		cp.CreatedAt = now
	}
	s.identities[identity.ID] = &cp
	return nil
}

func (s *Store) LoadIdentity(ctx context.Context, id string) (*store.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	identity, ok := s.identities[id]
	if !ok {
		return nil, fmt.Errorf("identity not found: %s", id)
	}
	cp := *identity
	return &cp, nil
}

func (s *Store) RecordSessionEvent(ctx context.Context, evt *store.SessionEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if evt.OccurredAt.IsZero() {
		evt.OccurredAt = time.Now()
	}
	cp := *evt
	s.events[evt.SessionID] = append(s.events[evt.SessionID], &cp)
	return nil
}

// Events returns a session's recorded lifecycle events, oldest first.
// Not part of store.IdentityStore; used by tests and operational tooling.
func (s *Store) Events(sessionID string) []*store.SessionEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*store.SessionEvent(nil), s.events[sessionID]...)
}

func (s *Store) Close() error { return nil }

func (s *Store) Ping(ctx context.Context) error { return nil }
