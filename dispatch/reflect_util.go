// SPDX-License-Identifier: LGPL-3.0-or-later

package dispatch

import (
	"encoding/json"
	"fmt"
	"reflect"
)

// resolveMethod selects a method by name and arity. Go disallows method
// overloading by name, so unlike the source platform's reflection-based
// overload resolution, callers that need multiple "overloads" of a verb
// must expose them under distinct MethodNames;
// arity is still checked here as a safety net against a stale client.
func resolveMethod(svc any, methodName string, arity int) (reflect.Value, error) {
	v := reflect.ValueOf(svc)
	method := v.MethodByName(methodName)
	if !method.IsValid() {
		return reflect.Value{}, fmt.Errorf("Method '%s' not found", methodName)
	}
	t := method.Type()
	if t.IsVariadic() {
		if arity < t.NumIn()-1 {
			return reflect.Value{}, fmt.Errorf("Method '%s' not found", methodName)
		}
	} else if t.NumIn() != arity {
		return reflect.Value{}, fmt.Errorf("Method '%s' not found", methodName)
	}
	return method, nil
}

// decodeScalar unmarshals a JSON-encoded parameter value into a new
// reflect.Value of the target type.
func decodeScalar(raw []byte, target reflect.Type) (reflect.Value, error) {
	ptr := reflect.New(target)
	if len(raw) == 0 {
		return ptr.Elem(), nil
	}
	if err := json.Unmarshal(raw, ptr.Interface()); err != nil {
		return reflect.Value{}, fmt.Errorf("decode parameter of type %s: %w", target, err)
	}
	return ptr.Elem(), nil
}

// errorFromReturns finds the first non-nil error among a method's return
// values, if any of them implements the error interface.
func errorFromReturns(rets []reflect.Value) error {
	for _, r := range rets {
		if r.Type().Implements(errorType) && !r.IsNil() {
			return r.Interface().(error)
		}
	}
	return nil
}

var errorType = reflect.TypeOf((*error)(nil)).Elem()

// encodeReturn serializes a method's non-error return value (there is at
// most one per spec's ReturnValue field) to its wire representation.
func encodeReturn(rets []reflect.Value) ([]byte, error) {
	for _, r := range rets {
		if r.Type().Implements(errorType) {
			continue
		}
		return json.Marshal(r.Interface())
	}
	return nil, nil
}

// safeCall invokes method, converting a panic into an error instead of
// propagating it to the caller's goroutine.
func safeCall(method reflect.Value, args []reflect.Value) (rets []reflect.Value, panicErr error) {
	defer func() {
		if r := recover(); r != nil {
			panicErr = fmt.Errorf("panic: %v", r)
		}
	}()
	rets = method.Call(args)
	return rets, nil
}
