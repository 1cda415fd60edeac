// SPDX-License-Identifier: LGPL-3.0-or-later

package server

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/sage-x-project/agentrpc/crypto/keys"
	"github.com/sage-x-project/agentrpc/internal/metrics"
	"github.com/sage-x-project/agentrpc/rpcsession"
	"github.com/sage-x-project/agentrpc/transport"
	"github.com/sage-x-project/agentrpc/wire"
)

// delegateSender implements dispatch.DelegateSender by emitting an
// `invoke` wire message back to the client. Per spec §4.5, a two-way
// reply from the client to a server-initiated delegate call is currently
// a future enhancement; every invocation here is fire-and-forget, which
// is why SendInvoke never blocks for a result. The message is signed
// because spec §4.2 requires authenticity for delegate invocations from
// the server.
type delegateSender struct {
	t       transport.Transport
	session *rpcsession.Session
	keyPair *keys.KeyPair
}

func (d *delegateSender) SendInvoke(handlerKey uuid.UUID, args []byte, oneWay bool) ([]byte, error) {
	invocation := wire.RemoteDelegateInvocationMessage{
		HandlerKey:        handlerKey[:],
		DelegateArguments: []wire.MethodCallParameter{{Name: "args", Kind: wire.ParamScalar, Value: args}},
		OneWay:            oneWay,
	}
	payload, err := json.Marshal(invocation)
	if err != nil {
		return nil, err
	}
	msg, err := wire.CreateWireMessage(wire.Invoke, payload, d.session.Cipher(), d.keyPair, uuid.Nil)
	if err != nil {
		return nil, err
	}
	metrics.DelegateInvocationsTotal.Inc()
	return nil, d.t.Send(context.Background(), msg)
}
