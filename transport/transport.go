// SPDX-License-Identifier: LGPL-3.0-or-later

// Package transport defines the byte-pipe abstraction the rest of the
// engine is built on: everything above this package deals in
// wire.WireMessage values and never touches a socket directly. Grounded on
// the MessageTransport/WSTransport split in the teacher's
// pkg/agent/transport package, generalized from a single-shot
// Send-waits-for-Response RPC shape to a full-duplex frame pipe so it can
// carry handshake, auth, rpc, and server-initiated invoke frames alike.
package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/sage-x-project/agentrpc/wire"
)

// Transport is the minimal contract a connection must satisfy: frame-level
// send/receive, connection-state query, and the last transport-level error
// observed. The Session Manager and Client Engine are built only against
// this interface, never a concrete socket type.
type Transport interface {
	Connect(ctx context.Context) error
	Disconnect() error
	Send(ctx context.Context, msg *wire.WireMessage) error
	// Receive delivers inbound frames in arrival order. The channel is
	// closed when the transport disconnects.
	Receive() <-chan *wire.WireMessage
	IsConnected() bool
	LastError() error
}

// EncodeFrame/DecodeFrame are shared by every Transport implementation so
// the wire representation (JSON) stays consistent regardless of carrier.
func EncodeFrame(msg *wire.WireMessage) ([]byte, error) {
	b, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("transport: encode frame: %w", err)
	}
	return b, nil
}

func DecodeFrame(b []byte) (*wire.WireMessage, error) {
	var msg wire.WireMessage
	if err := json.Unmarshal(b, &msg); err != nil {
		return nil, fmt.Errorf("transport: decode frame: %w", err)
	}
	return &msg, nil
}

// baseState is embedded by every implementation to share the
// connected-flag/last-error bookkeeping.
type baseState struct {
	mu        sync.RWMutex
	connected bool
	lastErr   error
}

func (b *baseState) setConnected(v bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.connected = v
}

func (b *baseState) IsConnected() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.connected
}

func (b *baseState) setLastError(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastErr = err
}

func (b *baseState) LastError() error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastErr
}
