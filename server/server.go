// SPDX-License-Identifier: LGPL-3.0-or-later

package server

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/sage-x-project/agentrpc/crypto"
	"github.com/sage-x-project/agentrpc/crypto/keys"
	"github.com/sage-x-project/agentrpc/crypto/rotation"
	"github.com/sage-x-project/agentrpc/dispatch"
	"github.com/sage-x-project/agentrpc/internal/logger"
	"github.com/sage-x-project/agentrpc/internal/metrics"
	"github.com/sage-x-project/agentrpc/rpcerr"
	"github.com/sage-x-project/agentrpc/rpcsession"
	"github.com/sage-x-project/agentrpc/store"
	"github.com/sage-x-project/agentrpc/transport"
	"github.com/sage-x-project/agentrpc/wire"
)

// Server runs the per-connection state machine of spec §4.3 against any
// number of concurrently accepted transports.
type Server struct {
	cfg        Config
	keyPairMu  sync.RWMutex
	keyPair    *keys.KeyPair
	rotator    *rotation.Rotator
	sessions   *rpcsession.Manager
	dispatcher *dispatch.Dispatcher
	log        logger.Logger

	connMu sync.RWMutex
	conns  map[uuid.UUID]transport.Transport

	callKeys *rpcsession.CallKeyCache
}

const serverInstanceKeyID = "server-instance"

// New builds a Server with a freshly generated RSA key pair and the given
// service registry wired into its Invocation Dispatcher.
func New(cfg Config, registry dispatch.ServiceRegistry) (*Server, error) {
	cfg = cfg.withDefaults()
	kp, err := keys.Generate(cfg.KeySize)
	if err != nil {
		return nil, rpcerr.New(rpcerr.Configuration, "server.New", err)
	}

	s := &Server{
		cfg:     cfg,
		keyPair: kp,
		log:     logger.GetDefaultLogger(),
		conns:   make(map[uuid.UUID]transport.Transport),
	}
	s.rotator = rotation.NewRotator(cfg.KeySize)
	s.rotator.Seed(serverInstanceKeyID, kp)
	s.callKeys = rpcsession.NewCallKeyCache(cfg.CallKeyCacheTTL)
	s.dispatcher = dispatch.NewDispatcher(registry, s.onOneWayError)
	s.sessions = rpcsession.NewManager(cfg.InactivityTimeout, cfg.ReapInterval, s.onSessionExpired)
	return s, nil
}

// currentKeyPair returns the key pair currently used to sign outgoing
// frames, reflecting the last successful RotateSigningKey call.
func (s *Server) currentKeyPair() *keys.KeyPair {
	s.keyPairMu.RLock()
	defer s.keyPairMu.RUnlock()
	return s.keyPair
}

// PublicKeyBlob exposes the server's current RSA public key, e.g. for
// embedding in out-of-band client configuration.
func (s *Server) PublicKeyBlob() ([]byte, error) { return s.currentKeyPair().PublicKeyBlob() }

// RotateSigningKey replaces the server's RSA signing key with a freshly
// generated one of the same size. In-flight sessions keep verifying
// against whatever key signed their own handshake; only new handshakes
// and new delegate invocations use the rotated key. The operator is
// responsible for redistributing the new public key blob out of band.
func (s *Server) RotateSigningKey(reason string) (*keys.KeyPair, error) {
	next, err := s.rotator.Rotate(serverInstanceKeyID, reason)
	if err != nil {
		return nil, rpcerr.New(rpcerr.Security, "RotateSigningKey", err)
	}
	s.keyPairMu.Lock()
	s.keyPair = next
	s.keyPairMu.Unlock()
	return next, nil
}

// recordEvent writes an audit row to the configured IdentityStore. It is
// always best-effort: a nil store or a write failure never affects the
// protocol state machine.
func (s *Server) recordEvent(sessionID uuid.UUID, identity, event string) {
	if s.cfg.IdentityStore == nil {
		return
	}
	if err := s.cfg.IdentityStore.RecordSessionEvent(context.Background(), &store.SessionEvent{
		SessionID: sessionID.String(),
		Identity:  identity,
		Event:     event,
	}); err != nil {
		s.log.Warn("identity store event write failed", logger.String("session_id", sessionID.String()), logger.Error(err))
	}
}

// FireEvent raises eventName on sessionID, invoking every client callback
// currently subscribed to it (spec §4.4's server-side event multicast). A
// service method holds no reference to the Dispatcher, so this is the path
// a registered service (or any other server-side code) uses to actually
// notify clients; it is a no-op if the session is unknown or closed.
func (s *Server) FireEvent(sessionID uuid.UUID, eventName string, args []byte) {
	session, ok := s.sessions.Get(sessionID)
	if !ok {
		return
	}
	s.dispatcher.FireEvent(session, eventName, args)
}

func (s *Server) onOneWayError(sessionID uuid.UUID, err error) {
	metrics.DispatchErrors.Inc()
	s.log.Warn("one-way call error", logger.String("session_id", sessionID.String()), logger.Error(err))
}

// onSessionExpired is the reaper callback: best-effort session_closed then
// transport teardown.
func (s *Server) onSessionExpired(sess *rpcsession.Session) {
	metrics.SessionsExpiredTotal.Inc()
	identity, _ := sess.Identity()
	s.recordEvent(sess.ID(), identity, store.EventExpired)

	s.connMu.Lock()
	t, ok := s.conns[sess.ID()]
	delete(s.conns, sess.ID())
	s.connMu.Unlock()

	s.dispatcher.DropSession(sess.ID())
	if !ok {
		return
	}
	closedMsg, err := wire.CreateWireMessage(wire.SessionClosed, nil, sess.Cipher(), nil, uuid.Nil)
	if err == nil {
		_ = t.Send(context.Background(), closedMsg)
	}
	_ = t.Disconnect()
}

// HandleConnection drives one accepted transport through handshake,
// optional authentication, and the rpc/goodbye/keep-alive steady state,
// per the state diagram in spec §4.3. It returns when the connection
// closes, normally or otherwise.
func (s *Server) HandleConnection(ctx context.Context, t transport.Transport) error {
	if !t.IsConnected() {
		if err := t.Connect(ctx); err != nil {
			return rpcerr.New(rpcerr.Network, "HandleConnection", err)
		}
	}

	session, err := s.sessions.Accept(nil)
	if err != nil {
		return rpcerr.New(rpcerr.Lifecycle, "HandleConnection", err)
	}
	metrics.SessionsActive.Inc()
	s.connMu.Lock()
	s.conns[session.ID()] = t
	s.connMu.Unlock()
	defer func() {
		metrics.SessionsActive.Dec()
		s.connMu.Lock()
		delete(s.conns, session.ID())
		s.connMu.Unlock()
		s.dispatcher.DropSession(session.ID())
	}()

	if err := s.doHandshake(ctx, t, session); err != nil {
		s.sessions.Remove(session.ID())
		return err
	}
	metrics.HandshakesTotal.Inc()
	s.recordEvent(session.ID(), "", store.EventHandshakeCompleted)

	if s.cfg.AuthenticationRequired {
		session.SetState(rpcsession.StateAuthing)
	} else {
		session.SetState(rpcsession.StateReady)
	}

	return s.mainLoop(ctx, t, session)
}

// doHandshake implements spec §4.3's transport-accept step: the client's
// first frame carries its RSA public key (encryption on) or is empty
// (encryption off); the server replies with complete_handshake.
func (s *Server) doHandshake(ctx context.Context, t transport.Transport, session *rpcsession.Session) error {
	hsCtx, cancel := context.WithTimeout(ctx, s.cfg.HandshakeTimeout)
	defer cancel()

	var clientHello *wire.WireMessage
	select {
	case clientHello = <-t.Receive():
		if clientHello == nil {
			return rpcerr.New(rpcerr.Network, "doHandshake", fmt.Errorf("transport closed before handshake"))
		}
	case <-hsCtx.Done():
		return rpcerr.New(rpcerr.Network, "doHandshake", hsCtx.Err())
	}

	if !s.cfg.MessageEncryption {
		sid := session.ID()
		reply, err := wire.CreateWireMessage(wire.CompleteHandshake, sid[:], nil, nil, uuid.Nil)
		if err != nil {
			return rpcerr.New(rpcerr.Protocol, "doHandshake", err)
		}
		session.SetState(rpcsession.StateHandshaked)
		session.Touch()
		return t.Send(ctx, reply)
	}

	clientPub, err := keys.DecodePublicKey(clientHello.Data)
	if err != nil {
		return rpcerr.New(rpcerr.Protocol, "doHandshake", err)
	}
	session.SetClientPublicKey(clientPub)

	sid := session.ID()
	secret := sid[:]
	serverPubBlob, err := s.currentKeyPair().PublicKeyBlob()
	if err != nil {
		return rpcerr.New(rpcerr.Security, "doHandshake", err)
	}
	sealed, err := crypto.SealSecret(secret, clientPub, serverPubBlob)
	if err != nil {
		return rpcerr.New(rpcerr.Security, "doHandshake", err)
	}
	payload, err := json.Marshal(sealed)
	if err != nil {
		return rpcerr.New(rpcerr.Protocol, "doHandshake", err)
	}
	reply, err := wire.CreateWireMessage(wire.CompleteHandshake, payload, nil, s.currentKeyPair(), uuid.Nil)
	if err != nil {
		return rpcerr.New(rpcerr.Security, "doHandshake", err)
	}

	cipher, err := crypto.NewSessionCipher(secret)
	if err != nil {
		return rpcerr.New(rpcerr.Security, "doHandshake", err)
	}
	session.SetCipher(cipher)
	session.SetState(rpcsession.StateHandshaked)
	session.Touch()
	return t.Send(ctx, reply)
}

// mainLoop services rpc/auth/goodbye/keep-alive frames until goodbye or
// transport failure.
func (s *Server) mainLoop(ctx context.Context, t transport.Transport, session *rpcsession.Session) error {
	sender := &delegateSender{t: t, session: session, keyPair: s.currentKeyPair()}

	for {
		select {
		case msg, ok := <-t.Receive():
			if !ok {
				return nil
			}
			if msg.IsKeepAlive() {
				session.Touch()
				continue
			}
			if err := s.handleFrame(ctx, t, session, sender, msg); err != nil {
				if rpcerr.Is(err, rpcerr.Lifecycle) {
					return nil
				}
				s.log.Warn("frame handling error", logger.String("session_id", session.ID().String()), logger.Error(err))
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *Server) handleFrame(ctx context.Context, t transport.Transport, session *rpcsession.Session, sender *delegateSender, msg *wire.WireMessage) error {
	session.Touch()

	switch msg.MessageType {
	case wire.Auth:
		return s.handleAuth(ctx, t, session, msg)
	case wire.RPC:
		return s.handleRPC(ctx, t, session, sender, msg)
	case wire.Goodbye:
		return s.handleGoodbye(ctx, t, session)
	default:
		return rpcerr.New(rpcerr.Protocol, "handleFrame", fmt.Errorf("unexpected message type %q", msg.MessageType))
	}
}

func (s *Server) handleAuth(ctx context.Context, t transport.Transport, session *rpcsession.Session, msg *wire.WireMessage) error {
	data, err := wire.GetDecryptedMessageData(msg, session.Cipher(), nil)
	if err != nil {
		return rpcerr.New(rpcerr.Security, "handleAuth", err)
	}
	var req wire.AuthenticationRequestMessage
	if err := json.Unmarshal(data, &req); err != nil {
		return rpcerr.New(rpcerr.Protocol, "handleAuth", err)
	}

	resp := wire.AuthenticationResponseMessage{FailureReason: "no authentication provider configured"}
	if s.cfg.AuthenticationProvider != nil {
		identity, ok, reason := s.cfg.AuthenticationProvider.Authenticate(req.Credentials)
		resp = wire.AuthenticationResponseMessage{IsAuthenticated: ok, AuthenticatedIdentity: identity, FailureReason: reason}
		if ok {
			session.SetIdentity(identity)
			session.SetState(rpcsession.StateReady)
			s.recordEvent(session.ID(), identity, store.EventAuthenticated)
		}
	}

	payload, err := json.Marshal(resp)
	if err != nil {
		return rpcerr.New(rpcerr.Protocol, "handleAuth", err)
	}
	reply, err := wire.CreateWireMessage(wire.AuthResponse, payload, session.Cipher(), s.currentKeyPair(), uuid.Nil)
	if err != nil {
		return rpcerr.New(rpcerr.Security, "handleAuth", err)
	}
	return t.Send(ctx, reply)
}

func (s *Server) handleRPC(ctx context.Context, t transport.Transport, session *rpcsession.Session, sender *delegateSender, msg *wire.WireMessage) error {
	if s.cfg.AuthenticationRequired && session.State() != rpcsession.StateReady {
		return s.replyRPCError(ctx, t, session, msg, &wire.RemoteInvocationException{Message: "authentication required"})
	}

	if len(msg.UniqueCallKey) == 16 {
		dedupKey := session.ID().String() + ":" + string(msg.UniqueCallKey)
		if s.callKeys.Seen(dedupKey) {
			// Already dispatched once, e.g. a retransmit after a slow
			// reply; drop it silently rather than invoking the method twice.
			return nil
		}
	}

	data, err := wire.GetDecryptedMessageData(msg, session.Cipher(), nil)
	if err != nil {
		return rpcerr.New(rpcerr.Security, "handleRPC", err)
	}
	var call wire.MethodCallMessage
	if err := json.Unmarshal(data, &call); err != nil {
		return rpcerr.New(rpcerr.Protocol, "handleRPC", err)
	}

	result, exc := s.dispatcher.Execute(ctx, session, &call, sender)
	metrics.RPCCallsTotal.Inc()
	if call.OneWay {
		return nil
	}
	if exc != nil {
		return s.replyRPCError(ctx, t, session, msg, exc)
	}

	payload, err := json.Marshal(result)
	if err != nil {
		return rpcerr.New(rpcerr.Protocol, "handleRPC", err)
	}
	reply, err := wire.CreateWireMessage(wire.RPCResult, payload, session.Cipher(), nil, uuid.Must(uuid.FromBytes(paddedCallKey(msg.UniqueCallKey))))
	if err != nil {
		return rpcerr.New(rpcerr.Security, "handleRPC", err)
	}
	return t.Send(ctx, reply)
}

func (s *Server) replyRPCError(ctx context.Context, t transport.Transport, session *rpcsession.Session, req *wire.WireMessage, exc *wire.RemoteInvocationException) error {
	payload, err := json.Marshal(exc)
	if err != nil {
		return rpcerr.New(rpcerr.Protocol, "replyRPCError", err)
	}
	reply, err := wire.CreateWireMessage(wire.RPCResult, payload, session.Cipher(), nil, uuid.Must(uuid.FromBytes(paddedCallKey(req.UniqueCallKey))))
	if err != nil {
		return rpcerr.New(rpcerr.Security, "replyRPCError", err)
	}
	reply.Error = true
	return t.Send(ctx, reply)
}

// handleGoodbye: the server always acknowledges with its own goodbye
// before closing, resolving the Open Question noted in spec §9/DESIGN.md.
func (s *Server) handleGoodbye(ctx context.Context, t transport.Transport, session *rpcsession.Session) error {
	reply, err := wire.CreateWireMessage(wire.Goodbye, nil, session.Cipher(), nil, uuid.Nil)
	if err == nil {
		_ = t.Send(ctx, reply)
	}
	identity, _ := session.Identity()
	s.recordEvent(session.ID(), identity, store.EventClosed)
	s.sessions.Remove(session.ID())
	_ = t.Disconnect()
	return rpcerr.New(rpcerr.Lifecycle, "handleGoodbye", fmt.Errorf("session closed"))
}

// Close stops the reaper and tears down every live session/connection.
func (s *Server) Close() {
	s.connMu.Lock()
	for _, t := range s.conns {
		_ = t.Disconnect()
	}
	s.conns = make(map[uuid.UUID]transport.Transport)
	s.connMu.Unlock()
	s.sessions.Close()
	s.callKeys.Close()
}

// paddedCallKey defends against a malformed/empty UniqueCallKey on a
// non-rpc frame by substituting a zero UUID rather than panicking.
func paddedCallKey(b []byte) []byte {
	if len(b) == 16 {
		return b
	}
	var zero [16]byte
	return zero[:]
}
