// SPDX-License-Identifier: LGPL-3.0-or-later

package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sage-x-project/agentrpc/wire"
)

func newEchoWSServer(t *testing.T) (*httptest.Server, chan *WSTransport) {
	t.Helper()
	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	accepted := make(chan *WSTransport, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		accepted <- NewWSServerConn(conn)
	}))
	t.Cleanup(srv.Close)
	return srv, accepted
}

func TestWSTransportRoundTrip(t *testing.T) {
	srv, accepted := newEchoWSServer(t)
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")

	client := NewWSTransport(wsURL)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, client.Connect(ctx))
	defer client.Disconnect()

	var server *WSTransport
	select {
	case server = <-accepted:
	case <-time.After(5 * time.Second):
		t.Fatal("server never accepted the connection")
	}
	assert.True(t, server.IsConnected())
	assert.True(t, client.IsConnected())

	msg := &wire.WireMessage{MessageType: wire.RPC, Data: []byte("hello")}
	require.NoError(t, client.Send(ctx, msg))

	select {
	case got := <-server.Receive():
		assert.Equal(t, msg.MessageType, got.MessageType)
		assert.Equal(t, msg.Data, got.Data)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for frame on server side")
	}

	reply := &wire.WireMessage{MessageType: wire.RPCResult, Data: []byte("world")}
	require.NoError(t, server.Send(ctx, reply))

	select {
	case got := <-client.Receive():
		assert.Equal(t, reply.MessageType, got.MessageType)
		assert.Equal(t, reply.Data, got.Data)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for frame on client side")
	}
}

func TestWSTransportSendWhenDisconnected(t *testing.T) {
	client := NewWSTransport("ws://127.0.0.1:0/does-not-matter")
	err := client.Send(context.Background(), &wire.WireMessage{})
	assert.Error(t, err)
}

func TestWSTransportDisconnectClosesReceiveChannel(t *testing.T) {
	srv, accepted := newEchoWSServer(t)
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")

	client := NewWSTransport(wsURL)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, client.Connect(ctx))

	select {
	case <-accepted:
	case <-time.After(5 * time.Second):
		t.Fatal("server never accepted the connection")
	}

	require.NoError(t, client.Disconnect())

	select {
	case _, ok := <-client.Receive():
		assert.False(t, ok)
	case <-time.After(5 * time.Second):
		t.Fatal("receive channel never closed")
	}
}
