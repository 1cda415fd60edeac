// SPDX-License-Identifier: LGPL-3.0-or-later

package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"runtime"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/sage-x-project/agentrpc/internal/logger"
	"github.com/sage-x-project/agentrpc/rpcsession"
	"github.com/sage-x-project/agentrpc/wire"
)

// ScopeAware lets a ServiceRegistry mark individual services as "scoped",
// forcing the per-session FIFO executor for them even without encryption,
// per spec §4.4's concurrency rule.
type ScopeAware interface {
	IsScoped(serviceName string) bool
}

// ErrorHandler receives exceptions from one-way calls, which never
// produce a wire reply but must still surface somewhere (spec §4.4's
// "server-level error event").
type ErrorHandler func(sessionID uuid.UUID, err error)

// delegateHandlerFunc is the concrete Go shape a service method parameter
// must use to receive a HandlerKey-typed delegate argument: Go has no
// built-in delegate type, so this functional signature is the documented
// convention a method author opts into (two-way; see
// delegateHandlerFuncOneWay for fire-and-forget).
type delegateHandlerFunc func(json.RawMessage) (json.RawMessage, error)
type delegateHandlerFuncOneWay func(json.RawMessage)

var (
	delegateHandlerFuncType        = reflect.TypeOf(delegateHandlerFunc(nil))
	delegateHandlerFuncOneWayType  = reflect.TypeOf(delegateHandlerFuncOneWay(nil))
)

// Dispatcher implements the Invocation Dispatcher of spec §4.4.
type Dispatcher struct {
	registry ServiceRegistry
	log      logger.Logger
	onError  ErrorHandler

	sharedPool *semaphore.Weighted

	mu         sync.Mutex
	perSession map[uuid.UUID]*semaphore.Weighted
	eventStubs map[uuid.UUID]*EventStub
}

func NewDispatcher(registry ServiceRegistry, onError ErrorHandler) *Dispatcher {
	return &Dispatcher{
		registry:   registry,
		log:        logger.GetDefaultLogger(),
		onError:    onError,
		sharedPool: semaphore.NewWeighted(int64(max(1, runtime.GOMAXPROCS(0)))),
		perSession: make(map[uuid.UUID]*semaphore.Weighted),
		eventStubs: make(map[uuid.UUID]*EventStub),
	}
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// DropSession releases a session's FIFO executor and event stub, called on
// session teardown.
func (d *Dispatcher) DropSession(id uuid.UUID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.perSession, id)
	delete(d.eventStubs, id)
}

func (d *Dispatcher) executorFor(id uuid.UUID) *semaphore.Weighted {
	d.mu.Lock()
	defer d.mu.Unlock()
	sem, ok := d.perSession[id]
	if !ok {
		sem = semaphore.NewWeighted(1)
		d.perSession[id] = sem
	}
	return sem
}

func (d *Dispatcher) eventStubFor(id uuid.UUID) *EventStub {
	d.mu.Lock()
	defer d.mu.Unlock()
	stub, ok := d.eventStubs[id]
	if !ok {
		stub = NewEventStub()
		d.eventStubs[id] = stub
	}
	return stub
}

func (d *Dispatcher) isScoped(serviceName string) bool {
	if sa, ok := d.registry.(ScopeAware); ok {
		return sa.IsScoped(serviceName)
	}
	return false
}

// Execute runs a MethodCallMessage against the registered services and
// returns its result (nil for one-way calls) or a wrapped exception.
func (d *Dispatcher) Execute(ctx context.Context, session *rpcsession.Session, call *wire.MethodCallMessage, sender DelegateSender) (*wire.MethodCallResultMessage, *wire.RemoteInvocationException) {
	serialize := session.Cipher() != nil || d.isScoped(call.ServiceName)
	sem := d.sharedPool
	if serialize {
		sem = d.executorFor(session.ID())
	}
	if err := sem.Acquire(ctx, 1); err != nil {
		return nil, wire.NewRemoteInvocationException(err)
	}
	defer sem.Release(1)

	if strings.HasPrefix(call.MethodName, "add_") || strings.HasPrefix(call.MethodName, "remove_") {
		return d.dispatchEventAccessor(session, call, sender)
	}
	return d.invokeMethod(session, call, sender)
}

// dispatchEventAccessor handles the add_<Event>/remove_<Event> pseudo-methods
// (spec §4.4): subscribing registers the per-call delegate proxy under the
// caller's HandlerKey so FireEvent has something to invoke; unsubscribing
// tears that proxy back down.
func (d *Dispatcher) dispatchEventAccessor(session *rpcsession.Session, call *wire.MethodCallMessage, sender DelegateSender) (*wire.MethodCallResultMessage, *wire.RemoteInvocationException) {
	subscribe := strings.HasPrefix(call.MethodName, "add_")
	eventName := strings.TrimPrefix(strings.TrimPrefix(call.MethodName, "add_"), "remove_")
	if len(call.Parameters) != 1 || call.Parameters[0].Kind != wire.ParamHandler {
		return nil, &wire.RemoteInvocationException{Message: fmt.Sprintf("event accessor '%s' requires a single handler parameter", call.MethodName)}
	}

	key, err := uuid.FromBytes(call.Parameters[0].HandlerKey)
	if err != nil {
		return nil, &wire.RemoteInvocationException{Message: "malformed handler key: " + err.Error()}
	}

	stub := d.eventStubFor(session.ID())
	if subscribe {
		stub.Subscribe(eventName, key)
		session.RegisterDelegate(key, newDelegateProxy(key, sender, true))
	} else {
		stub.Unsubscribe(eventName, key)
		session.RemoveDelegate(key)
	}
	return &wire.MethodCallResultMessage{}, nil
}

// FireEvent invokes every subscriber of eventName on session, in
// registration order, via their delegate proxies.
func (d *Dispatcher) FireEvent(session *rpcsession.Session, eventName string, args []byte) {
	stub := d.eventStubFor(session.ID())
	for _, key := range stub.Subscribers(eventName) {
		proxy, ok := session.Delegate(key)
		if !ok {
			continue
		}
		if _, err := proxy.Invoke(args); err != nil && d.onError != nil {
			d.onError(session.ID(), fmt.Errorf("event %s handler %s: %w", eventName, key, err))
		}
	}
}

func (d *Dispatcher) invokeMethod(session *rpcsession.Session, call *wire.MethodCallMessage, sender DelegateSender) (*wire.MethodCallResultMessage, *wire.RemoteInvocationException) {
	svc, ok := d.registry.GetService(call.ServiceName)
	if !ok {
		return nil, &wire.RemoteInvocationException{Message: fmt.Sprintf("Service '%s' is not registered", call.ServiceName)}
	}
	scope := d.registry.CreateScope()
	defer scope.Close()

	method, err := resolveMethod(svc, call.MethodName, len(call.Parameters))
	if err != nil {
		return nil, &wire.RemoteInvocationException{Message: err.Error()}
	}

	args, err := d.decodeArgs(session, method, call.Parameters, sender)
	if err != nil {
		return nil, &wire.RemoteInvocationException{Message: err.Error()}
	}

	if call.OneWay {
		go func() {
			defer func() {
				if r := recover(); r != nil && d.onError != nil {
					d.onError(session.ID(), fmt.Errorf("panic in one-way call %s.%s: %v", call.ServiceName, call.MethodName, r))
				}
			}()
			rets := method.Call(args)
			if err := errorFromReturns(rets); err != nil && d.onError != nil {
				d.onError(session.ID(), err)
			}
		}()
		return nil, nil
	}

	rets, panicErr := safeCall(method, args)
	if panicErr != nil {
		return nil, wire.NewRemoteInvocationException(panicErr)
	}
	if err := errorFromReturns(rets); err != nil {
		return nil, wire.NewRemoteInvocationException(err)
	}
	returnValue, err := encodeReturn(rets)
	if err != nil {
		return nil, wire.NewRemoteInvocationException(err)
	}
	return &wire.MethodCallResultMessage{ReturnValue: returnValue, OutParameters: call.Parameters}, nil
}

// decodeArgs builds the reflect.Value argument list for method, decoding
// scalars directly and materializing delegate proxies for HandlerKey
// parameters.
func (d *Dispatcher) decodeArgs(session *rpcsession.Session, method reflect.Value, params []wire.MethodCallParameter, sender DelegateSender) ([]reflect.Value, error) {
	t := method.Type()
	args := make([]reflect.Value, len(params))
	for i, p := range params {
		var paramType reflect.Type
		if t.IsVariadic() && i >= t.NumIn()-1 {
			paramType = t.In(t.NumIn() - 1).Elem()
		} else {
			paramType = t.In(i)
		}

		if p.Kind == wire.ParamHandler {
			key, err := uuid.FromBytes(p.HandlerKey)
			if err != nil {
				return nil, fmt.Errorf("malformed handler key for parameter %s: %w", p.Name, err)
			}
			oneWay := paramType == delegateHandlerFuncOneWayType
			proxy := newDelegateProxy(key, sender, oneWay)
			session.RegisterDelegate(key, proxy)

			if oneWay {
				fn := delegateHandlerFuncOneWay(func(in json.RawMessage) { _, _ = proxy.Invoke(in) })
				args[i] = reflect.ValueOf(fn)
				continue
			}
			fn := delegateHandlerFunc(func(in json.RawMessage) (json.RawMessage, error) {
				out, err := proxy.Invoke(in)
				return json.RawMessage(out), err
			})
			args[i] = reflect.ValueOf(fn)
			continue
		}

		v, err := decodeScalar(p.Value, paramType)
		if err != nil {
			return nil, fmt.Errorf("parameter %s: %w", p.Name, err)
		}
		args[i] = v
	}
	return args, nil
}
