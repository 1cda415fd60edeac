// SPDX-License-Identifier: LGPL-3.0-or-later

package transport

import (
	"context"
	"fmt"

	"github.com/sage-x-project/agentrpc/wire"
)

// MemTransport is an in-process Transport, used by tests and by the seed
// scenarios in spec §8 that don't want a real socket. A pair of
// MemTransports created by NewMemTransportPair are cross-wired: whatever
// one side Sends arrives on the other side's Receive channel. Disconnect
// only marks this end as disconnected: neither Receive channel is ever
// closed, so the peer's receive loop is not told about it.
type MemTransport struct {
	baseState
	out chan *wire.WireMessage
	in  chan *wire.WireMessage
}

// NewMemTransportPair returns two linked transports, client and server.
func NewMemTransportPair() (client, server *MemTransport) {
	a := make(chan *wire.WireMessage, 64)
	b := make(chan *wire.WireMessage, 64)
	client = &MemTransport{out: a, in: b}
	server = &MemTransport{out: b, in: a}
	return client, server
}

func (t *MemTransport) Connect(ctx context.Context) error {
	t.setConnected(true)
	return nil
}

func (t *MemTransport) Disconnect() error {
	t.setConnected(false)
	return nil
}

func (t *MemTransport) Send(ctx context.Context, msg *wire.WireMessage) error {
	if !t.IsConnected() {
		err := fmt.Errorf("transport: not connected")
		t.setLastError(err)
		return err
	}
	select {
	case t.out <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *MemTransport) Receive() <-chan *wire.WireMessage { return t.in }
