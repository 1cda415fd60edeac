// SPDX-License-Identifier: LGPL-3.0-or-later

// Package rpcclient implements the Client Engine of spec §4.5: Connect
// drives the handshake/auth state machine, Invoke round-trips a method
// call through the in-flight-call map, and a background loop delivers
// rpc_result replies and server-initiated delegate invocations. Grounded
// on the teacher's handshake/client.go connect-then-loop shape and the
// in-flight-map style of session/manager.go, generalized from A2A/gRPC
// framing to the transport-agnostic wire.WireMessage envelope.
package rpcclient

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sage-x-project/agentrpc/crypto"
	"github.com/sage-x-project/agentrpc/crypto/keys"
	"github.com/sage-x-project/agentrpc/delegate"
	"github.com/sage-x-project/agentrpc/internal/logger"
	"github.com/sage-x-project/agentrpc/rpcerr"
	"github.com/sage-x-project/agentrpc/transport"
	"github.com/sage-x-project/agentrpc/wire"
)

// Client is one connected session from the calling peer's side.
type Client struct {
	cfg     Config
	keyPair *keys.KeyPair
	log     logger.Logger

	delegates *delegate.Registry
	inflight  *inflightCalls

	mu              sync.RWMutex
	t               transport.Transport
	sessionID       uuid.UUID
	cipher          *crypto.SessionCipher
	serverPublicKey *rsa.PublicKey
	connected       bool

	authWait   chan *wire.WireMessage
	goodbyeAck chan struct{}
	done       chan struct{}
	closeOnce  sync.Once
}

// New builds an unconnected Client. A fresh RSA key pair is generated
// eagerly so it is available even when MessageEncryption turns out to be
// needed only for authentication signatures.
func New(cfg Config) (*Client, error) {
	cfg = cfg.withDefaults()
	kp, err := keys.Generate(cfg.KeySize)
	if err != nil {
		return nil, rpcerr.New(rpcerr.Configuration, "rpcclient.New", err)
	}
	return &Client{
		cfg:       cfg,
		keyPair:   kp,
		log:       logger.GetDefaultLogger(),
		delegates: delegate.NewRegistry(),
		inflight:  &inflightCalls{},
		done:      make(chan struct{}),
	}, nil
}

// SessionID returns the session identifier established by the last
// successful Connect.
func (c *Client) SessionID() uuid.UUID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessionID
}

// Delegates exposes the client's delegate registry so callers can
// register callbacks before issuing calls that reference them.
func (c *Client) Delegates() *delegate.Registry { return c.delegates }

// Connect drives spec §4.5's Connect step: client-hello, complete_handshake,
// and (if credentials are configured) auth/auth_response, then starts the
// background receive and keep-alive loops.
func (c *Client) Connect(ctx context.Context, t transport.Transport) error {
	if !t.IsConnected() {
		if err := t.Connect(ctx); err != nil {
			return rpcerr.New(rpcerr.Network, "Connect", err)
		}
	}
	c.mu.Lock()
	c.t = t
	c.connected = true
	c.mu.Unlock()

	hsCtx, cancel := context.WithTimeout(ctx, c.cfg.ConnectionTimeout)
	defer cancel()

	if err := c.doHandshake(hsCtx, t); err != nil {
		_ = t.Disconnect()
		return err
	}

	go c.receiveLoop(t)

	if len(c.cfg.Credentials) > 0 {
		if err := c.doAuth(ctx, t); err != nil {
			_ = c.Disconnect(ctx)
			return err
		}
	}

	if c.cfg.KeepSessionAliveInterval > 0 {
		go c.keepAliveLoop(t)
	}
	return nil
}

func (c *Client) doHandshake(ctx context.Context, t transport.Transport) error {
	hello := &wire.WireMessage{MessageType: wire.CompleteHandshake}
	if c.cfg.MessageEncryption {
		blob, err := c.keyPair.PublicKeyBlob()
		if err != nil {
			return rpcerr.New(rpcerr.Security, "doHandshake", err)
		}
		hello.Data = blob
	}
	if err := t.Send(ctx, hello); err != nil {
		return rpcerr.New(rpcerr.Network, "doHandshake", err)
	}

	var reply *wire.WireMessage
	select {
	case reply = <-t.Receive():
		if reply == nil {
			return rpcerr.New(rpcerr.Network, "doHandshake", fmt.Errorf("transport closed during handshake"))
		}
	case <-ctx.Done():
		return rpcerr.New(rpcerr.Network, "doHandshake", ctx.Err())
	}

	if !c.cfg.MessageEncryption {
		sid, err := uuid.FromBytes(reply.Data)
		if err != nil {
			return rpcerr.New(rpcerr.Protocol, "doHandshake", err)
		}
		c.mu.Lock()
		c.sessionID = sid
		c.mu.Unlock()
		return nil
	}

	// The signed payload is a SignedMessageData wrapping a JSON
	// EncryptedSecret, which itself carries the server's public-key blob.
	// The key needed to verify the signature lives inside the payload
	// being verified, so it must be unwrapped once, unverified, before the
	// signature check can run.
	var signed wire.SignedMessageData
	if err := json.Unmarshal(reply.Data, &signed); err != nil {
		return rpcerr.New(rpcerr.Protocol, "doHandshake", fmt.Errorf("not a signed payload: %w", err))
	}
	var sealed wire.EncryptedSecret
	if err := json.Unmarshal(signed.MessageRawData, &sealed); err != nil {
		return rpcerr.New(rpcerr.Protocol, "doHandshake", err)
	}
	serverPub, err := crypto.SenderPublicKey(&sealed)
	if err != nil {
		return rpcerr.New(rpcerr.Security, "doHandshake", err)
	}
	if err := keys.Verify(serverPub, signed.MessageRawData, signed.Signature); err != nil {
		return rpcerr.New(rpcerr.Security, "doHandshake", err)
	}

	secret, err := crypto.OpenSecret(&sealed, c.keyPair.Private())
	if err != nil {
		return rpcerr.New(rpcerr.Security, "doHandshake", err)
	}
	sid, err := uuid.FromBytes(secret)
	if err != nil {
		return rpcerr.New(rpcerr.Protocol, "doHandshake", err)
	}
	cipher, err := crypto.NewSessionCipher(secret)
	if err != nil {
		return rpcerr.New(rpcerr.Security, "doHandshake", err)
	}

	c.mu.Lock()
	c.sessionID = sid
	c.cipher = cipher
	c.serverPublicKey = serverPub
	c.mu.Unlock()
	return nil
}

func (c *Client) doAuth(ctx context.Context, t transport.Transport) error {
	authCtx, cancel := context.WithTimeout(ctx, c.cfg.AuthenticationTimeout)
	defer cancel()

	payload, err := json.Marshal(wire.AuthenticationRequestMessage{Credentials: c.cfg.Credentials})
	if err != nil {
		return rpcerr.New(rpcerr.Protocol, "doAuth", err)
	}
	msg, err := wire.CreateWireMessage(wire.Auth, payload, c.snapshotCipher(), nil, uuid.Nil)
	if err != nil {
		return rpcerr.New(rpcerr.Security, "doAuth", err)
	}
	if err := t.Send(authCtx, msg); err != nil {
		return rpcerr.New(rpcerr.Network, "doAuth", err)
	}

	ch := make(chan *wire.WireMessage, 1)
	c.mu.Lock()
	c.authWait = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.authWait = nil
		c.mu.Unlock()
	}()

	select {
	case reply := <-ch:
		data, err := wire.GetDecryptedMessageData(reply, c.snapshotCipher(), c.serverPublicKey)
		if err != nil {
			return rpcerr.New(rpcerr.Security, "doAuth", err)
		}
		var resp wire.AuthenticationResponseMessage
		if err := json.Unmarshal(data, &resp); err != nil {
			return rpcerr.New(rpcerr.Protocol, "doAuth", err)
		}
		if !resp.IsAuthenticated {
			return rpcerr.New(rpcerr.Security, "doAuth", fmt.Errorf("authentication rejected: %s", resp.FailureReason))
		}
		return nil
	case <-authCtx.Done():
		return rpcerr.New(rpcerr.Security, "doAuth", authCtx.Err())
	}
}

func (c *Client) snapshotCipher() *crypto.SessionCipher {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cipher
}

// Invoke implements spec §4.5's Invoke step. A one-way call returns as
// soon as the frame is sent; a two-way call blocks for InvocationTimeout
// waiting for the matching rpc_result.
func (c *Client) Invoke(ctx context.Context, serviceName, methodName string, params []wire.MethodCallParameter, oneWay bool) (*wire.MethodCallResultMessage, error) {
	c.mu.RLock()
	t := c.t
	connected := c.connected
	c.mu.RUnlock()
	if !connected || t == nil {
		return nil, rpcerr.New(rpcerr.Lifecycle, "Invoke", fmt.Errorf("not connected"))
	}

	key := uuid.New()
	call := wire.MethodCallMessage{ServiceName: serviceName, MethodName: methodName, Parameters: params, OneWay: oneWay}
	payload, err := json.Marshal(call)
	if err != nil {
		return nil, rpcerr.New(rpcerr.Protocol, "Invoke", err)
	}
	// RPC payloads travel unsigned: the server's handleRPC passes a nil
	// sendersPublicKey to GetDecryptedMessageData, so a signed wrapper
	// here would only break decoding on the other end.
	msg, err := wire.CreateWireMessage(wire.RPC, payload, c.snapshotCipher(), nil, key)
	if err != nil {
		return nil, rpcerr.New(rpcerr.Security, "Invoke", err)
	}

	var rc *rpcCall
	if !oneWay {
		rc = newRPCCall(key)
		c.inflight.register(rc)
	}

	if err := t.Send(ctx, msg); err != nil {
		if rc != nil {
			c.inflight.take(key)
		}
		return nil, rpcerr.New(rpcerr.Network, "Invoke", err)
	}
	if oneWay {
		return nil, nil
	}

	timer := time.NewTimer(c.cfg.InvocationTimeout)
	defer timer.Stop()
	select {
	case <-rc.done:
		return rc.result, rc.err
	case <-timer.C:
		c.inflight.take(key)
		return nil, rpcerr.New(rpcerr.Invocation, "Invoke", fmt.Errorf("invocation timed out after %s", c.cfg.InvocationTimeout))
	case <-ctx.Done():
		c.inflight.take(key)
		return nil, rpcerr.New(rpcerr.Invocation, "Invoke", ctx.Err())
	case <-c.done:
		return nil, rpcerr.New(rpcerr.Lifecycle, "Invoke", fmt.Errorf("client disconnected"))
	}
}

// receiveLoop dispatches rpc_result, invoke, goodbye and session_closed
// frames until the transport channel closes.
func (c *Client) receiveLoop(t transport.Transport) {
	var cbMu sync.Mutex
	for msg := range t.Receive() {
		if msg.IsKeepAlive() {
			continue
		}
		switch msg.MessageType {
		case wire.RPCResult:
			c.handleRPCResult(msg)
		case wire.Invoke:
			if c.cfg.SerializeCallbacks {
				cbMu.Lock()
				c.handleInvoke(msg)
				cbMu.Unlock()
			} else {
				go c.handleInvoke(msg)
			}
		case wire.AuthResponse:
			c.mu.RLock()
			ch := c.authWait
			c.mu.RUnlock()
			if ch != nil {
				ch <- msg
			}
		case wire.Goodbye:
			c.mu.RLock()
			ack := c.goodbyeAck
			c.mu.RUnlock()
			if ack != nil {
				select {
				case ack <- struct{}{}:
				default:
				}
			}
		case wire.SessionClosed:
			c.teardown(fmt.Errorf("server closed the session"))
			return
		}
	}
	c.teardown(fmt.Errorf("transport disconnected"))
}

func (c *Client) handleRPCResult(msg *wire.WireMessage) {
	key, err := uuid.FromBytes(msg.UniqueCallKey)
	if err != nil {
		c.log.Warn("rpc_result with malformed call key", logger.Error(err))
		return
	}
	rc, ok := c.inflight.take(key)
	if !ok {
		c.log.Warn("rpc_result with no matching in-flight call", logger.String("call_key", key.String()))
		return
	}

	data, err := wire.GetDecryptedMessageData(msg, c.snapshotCipher(), nil)
	if err != nil {
		rc.complete(nil, rpcerr.New(rpcerr.Security, "handleRPCResult", err))
		return
	}
	if msg.Error {
		var exc wire.RemoteInvocationException
		if err := json.Unmarshal(data, &exc); err != nil {
			rc.complete(nil, rpcerr.New(rpcerr.Protocol, "handleRPCResult", err))
			return
		}
		rc.complete(nil, rpcerr.New(rpcerr.Invocation, "handleRPCResult", &exc))
		return
	}
	var result wire.MethodCallResultMessage
	if err := json.Unmarshal(data, &result); err != nil {
		rc.complete(nil, rpcerr.New(rpcerr.Protocol, "handleRPCResult", err))
		return
	}
	rc.complete(&result, nil)
}

func (c *Client) handleInvoke(msg *wire.WireMessage) {
	data, err := wire.GetDecryptedMessageData(msg, c.snapshotCipher(), c.serverPublicKey)
	if err != nil {
		c.log.Warn("invoke signature/decrypt failure", logger.Error(err))
		return
	}
	var invocation wire.RemoteDelegateInvocationMessage
	if err := json.Unmarshal(data, &invocation); err != nil {
		c.log.Warn("invoke decode failure", logger.Error(err))
		return
	}
	key, err := uuid.FromBytes(invocation.HandlerKey)
	if err != nil {
		c.log.Warn("invoke with malformed handler key", logger.Error(err))
		return
	}

	var args json.RawMessage
	if len(invocation.DelegateArguments) > 0 {
		args = invocation.DelegateArguments[0].Value
	}
	if _, err := c.delegates.Invoke(key, args); err != nil {
		c.log.Warn("delegate callback error", logger.String("handler_key", key.String()), logger.Error(err))
	}
	// A delegate reply (RemoteDelegateResultMessage) is a documented
	// future enhancement (spec §4.5); every invocation here is
	// fire-and-forget, matching the server's delegateSender.
}

func (c *Client) keepAliveLoop(t transport.Transport) {
	ticker := time.NewTicker(c.cfg.KeepSessionAliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			_ = t.Send(context.Background(), &wire.WireMessage{})
		case <-c.done:
			return
		}
	}
}

// Disconnect implements spec §4.5's Disconnect step: goodbye, a bounded
// wait for the server's acknowledgement, cancellation of every in-flight
// call, then transport teardown.
func (c *Client) Disconnect(ctx context.Context) error {
	c.mu.RLock()
	t := c.t
	sid := c.sessionID
	c.mu.RUnlock()
	if t == nil {
		return nil
	}

	ack := make(chan struct{}, 1)
	c.mu.Lock()
	c.goodbyeAck = ack
	c.mu.Unlock()

	payload, _ := json.Marshal(wire.GoodbyeMessage{SessionID: sid[:]})
	msg, err := wire.CreateWireMessage(wire.Goodbye, payload, c.snapshotCipher(), nil, uuid.Nil)
	if err == nil {
		_ = t.Send(ctx, msg)
	}

	select {
	case <-ack:
	case <-time.After(c.cfg.DisconnectGraceTimeout):
	}

	c.teardown(fmt.Errorf("Server Disconnected"))
	return t.Disconnect()
}

// teardown cancels every in-flight call, clears the delegate registry and
// marks the client disconnected. Safe to call more than once.
func (c *Client) teardown(reason error) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.connected = false
		c.mu.Unlock()

		c.inflight.cancelAll(rpcerr.New(rpcerr.Lifecycle, "teardown", reason))
		c.delegates.Clear()
		close(c.done)
	})
}
