// SPDX-License-Identifier: LGPL-3.0-or-later

package transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sage-x-project/agentrpc/wire"
)

// WSTransport is the reference Transport over a gorilla/websocket
// connection. Grounded on the teacher's pkg/agent/transport/websocket
// client: a dialer with a handshake timeout, a background reader pumping
// inbound frames into a channel, and a write mutex since gorilla's Conn
// forbids concurrent writers.
type WSTransport struct {
	baseState

	url         string
	dialTimeout time.Duration

	writeMu sync.Mutex
	conn    *websocket.Conn
	recv    chan *wire.WireMessage
}

// NewWSTransport creates a client-side transport that dials url on Connect.
func NewWSTransport(url string) *WSTransport {
	return &WSTransport{
		url:         url,
		dialTimeout: 30 * time.Second,
		recv:        make(chan *wire.WireMessage, 64),
	}
}

// NewWSServerConn wraps an already-accepted connection (from an
// http.Handler that called websocket.Upgrader.Upgrade), used on the
// server side of a Session Manager.
func NewWSServerConn(conn *websocket.Conn) *WSTransport {
	t := &WSTransport{conn: conn, recv: make(chan *wire.WireMessage, 64)}
	t.setConnected(true)
	go t.readLoop()
	return t
}

func (t *WSTransport) Connect(ctx context.Context) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if t.conn != nil {
		return nil
	}
	dialer := &websocket.Dialer{HandshakeTimeout: t.dialTimeout}
	conn, resp, err := dialer.DialContext(ctx, t.url, nil)
	if err != nil {
		if resp != nil {
			err = fmt.Errorf("transport: websocket dial failed (HTTP %d): %w", resp.StatusCode, err)
		} else {
			err = fmt.Errorf("transport: websocket dial failed: %w", err)
		}
		t.setLastError(err)
		return err
	}
	t.conn = conn
	t.setConnected(true)
	go t.readLoop()
	return nil
}

func (t *WSTransport) Disconnect() error {
	t.writeMu.Lock()
	conn := t.conn
	t.writeMu.Unlock()
	t.setConnected(false)
	if conn == nil {
		return nil
	}
	return conn.Close()
}

func (t *WSTransport) Send(ctx context.Context, msg *wire.WireMessage) error {
	frame, err := EncodeFrame(msg)
	if err != nil {
		return err
	}
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if t.conn == nil {
		err := fmt.Errorf("transport: not connected")
		t.setLastError(err)
		return err
	}
	if err := t.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		t.setLastError(err)
		return fmt.Errorf("transport: websocket write: %w", err)
	}
	return nil
}

func (t *WSTransport) Receive() <-chan *wire.WireMessage { return t.recv }

func (t *WSTransport) readLoop() {
	defer func() {
		t.setConnected(false)
		close(t.recv)
	}()
	for {
		_, data, err := t.conn.ReadMessage()
		if err != nil {
			t.setLastError(fmt.Errorf("transport: websocket read: %w", err))
			return
		}
		msg, err := DecodeFrame(data)
		if err != nil {
			t.setLastError(err)
			continue
		}
		t.recv <- msg
	}
}
