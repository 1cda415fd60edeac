// SPDX-License-Identifier: LGPL-3.0-or-later

// Package server wires crypto, wire, rpcsession, dispatch and transport
// together into the per-connection Session Manager state machine of
// spec §4.3. Grounded on the accept/dispatch loop shape of the teacher's
// handshake/server.go (SendMessage's phase switch over message type) and
// the cleanup-ticker pattern of session/manager.go, generalized from the
// teacher's A2A-gRPC-specific protobuf plumbing to the transport-agnostic
// wire.WireMessage envelope.
package server

import (
	"time"

	"github.com/sage-x-project/agentrpc/auth"
	"github.com/sage-x-project/agentrpc/crypto/keys"
	"github.com/sage-x-project/agentrpc/store"
)

// Config mirrors the server-side configuration keys named in spec §6.
type Config struct {
	KeySize                  keys.Size
	MessageEncryption        bool
	AuthenticationRequired   bool
	AuthenticationProvider   auth.Provider
	InactivityTimeout        time.Duration
	ReapInterval             time.Duration
	HandshakeTimeout         time.Duration
	AuthenticationTimeout    time.Duration
	UniqueServerInstanceName string
	CallKeyCacheTTL          time.Duration

	// IdentityStore is an optional audit/lookup backend. Nil disables it;
	// every call into it is best-effort and never blocks the protocol
	// state machine (spec §6).
	IdentityStore store.IdentityStore
}

func (c Config) withDefaults() Config {
	if c.KeySize == 0 {
		c.KeySize = keys.Size2048
	}
	if c.ReapInterval <= 0 {
		c.ReapInterval = 30 * time.Second
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 10 * time.Second
	}
	if c.AuthenticationTimeout <= 0 {
		c.AuthenticationTimeout = 10 * time.Second
	}
	if c.CallKeyCacheTTL <= 0 {
		c.CallKeyCacheTTL = 5 * time.Minute
	}
	return c
}
