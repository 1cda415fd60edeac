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

// Package store defines the optional IdentityStore used by the server
// when a persistent backend is configured. Nothing in the
// protocol state machine requires it: a session runs perfectly well
// without one, and the two implementations (memory, postgres) exist
// purely as an additive audit/lookup layer.
package store

import (
	"context"
	"time"
)

// Identity is a durable record of an authenticated peer, keyed by the
// identity string an auth.Provider returns from Authenticate.
type Identity struct {
	ID            string            `json:"id"`
	PublicKeyBlob []byte            `json:"public_key_blob,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// SessionEvent records one transition in a session's lifecycle for audit
// purposes (handshake completed, authenticated, closed, expired).
type SessionEvent struct {
	SessionID  string    `json:"session_id"`
	Identity   string    `json:"identity,omitempty"`
	Event      string    `json:"event"`
	OccurredAt time.Time `json:"occurred_at"`
	Detail     string    `json:"detail,omitempty"`
}

// IdentityStore is the optional persistence surface named in spec §6.
// The server calls it best-effort: a failing or nil store never
// blocks the protocol state machine.
type IdentityStore interface {
	SaveIdentity(ctx context.Context, identity *Identity) error
	LoadIdentity(ctx context.Context, id string) (*Identity, error)
	RecordSessionEvent(ctx context.Context, evt *SessionEvent) error

	Close() error
	Ping(ctx context.Context) error
}

const (
	EventHandshakeCompleted = "handshake_completed"
	EventAuthenticated      = "authenticated"
	EventClosed             = "closed"
	EventExpired            = "expired"
)
