// SPDX-License-Identifier: LGPL-3.0-or-later

package rpcclient

import (
	"sync"

	"github.com/google/uuid"

	"github.com/sage-x-project/agentrpc/wire"
)

// rpcCall is the ClientRpcContext of spec §4.5: one outstanding two-way
// call, keyed by UniqueCallKey, completed exactly once by either the
// matching rpc_result or a disconnect-time cancellation.
type rpcCall struct {
	key  uuid.UUID
	done chan struct{}

	result *wire.MethodCallResultMessage
	err    error
}

func newRPCCall(key uuid.UUID) *rpcCall {
	return &rpcCall{key: key, done: make(chan struct{})}
}

func (c *rpcCall) complete(result *wire.MethodCallResultMessage, err error) {
	c.result = result
	c.err = err
	close(c.done)
}

// inflightCalls is the client's in-flight-call map, a concurrent map with
// per-key insert/remove per spec §5's "lock-free concurrent map" note
// (sync.Map, rather than a mutex-guarded map, is the idiomatic Go match
// for that requirement).
type inflightCalls struct {
	m sync.Map // uuid.UUID -> *rpcCall
}

func (i *inflightCalls) register(c *rpcCall) { i.m.Store(c.key, c) }

func (i *inflightCalls) take(key uuid.UUID) (*rpcCall, bool) {
	v, ok := i.m.LoadAndDelete(key)
	if !ok {
		return nil, false
	}
	return v.(*rpcCall), true
}

// cancelAll completes every outstanding call with err, used on disconnect.
func (i *inflightCalls) cancelAll(err error) {
	i.m.Range(func(key, value any) bool {
		i.m.Delete(key)
		value.(*rpcCall).complete(nil, err)
		return true
	})
}
