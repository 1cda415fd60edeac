// SPDX-License-Identifier: LGPL-3.0-or-later

package dispatch

import (
	"github.com/google/uuid"

	"github.com/sage-x-project/agentrpc/rpcsession"
)

// DelegateSender is the hook the Session Manager wires into the Dispatcher
// so a delegate proxy can actually reach the client: it sends an `invoke`
// wire message carrying handlerKey, args and the oneWay flag, and returns
// whatever reply bytes the implementation has. The server's delegateSender
// returns as soon as the frame is sent, with nil reply bytes, whatever
// oneWay says; it does not wait for a RemoteDelegateResultMessage.
type DelegateSender interface {
	SendInvoke(handlerKey uuid.UUID, args []byte, oneWay bool) ([]byte, error)
}

// delegateProxy is the server-side stand-in for a client-owned delegate or
// event handler, materialized per spec §4.4 whenever a MethodCallParameter
// carries a HandlerKey instead of a value.
type delegateProxy struct {
	key    uuid.UUID
	sender DelegateSender
	oneWay bool
}

var _ rpcsession.DelegateInvoker = (*delegateProxy)(nil)

func newDelegateProxy(key uuid.UUID, sender DelegateSender, oneWay bool) *delegateProxy {
	return &delegateProxy{key: key, sender: sender, oneWay: oneWay}
}

// Invoke hands the call to the DelegateSender and returns its result. With
// the server's delegateSender it does not wait for the client's callback
// to run, for two-way and one-way delegates alike.
func (p *delegateProxy) Invoke(args []byte) ([]byte, error) {
	return p.sender.SendInvoke(p.key, args, p.oneWay)
}
