// Package rpcerr defines the typed error taxonomy shared by every
// component of the RPC runtime: transport, handshake, session, dispatch
// and client engine all wrap failures in an *Error with a Kind so callers
// can branch on failure class instead of parsing strings.
package rpcerr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure by where in the protocol it originated.
type Kind int

const (
	// Unknown is the zero value; never returned by this package.
	Unknown Kind = iota
	// Network covers transport errors, handshake timeouts, send failures.
	Network
	// Protocol covers unknown message types, unmatched call keys, malformed frames.
	Protocol
	// Security covers signature mismatches, decryption failures, auth rejection.
	Security
	// Invocation covers remote exceptions and invocation timeouts.
	Invocation
	// Configuration covers missing channels, missing required credentials.
	Configuration
	// Lifecycle covers calls after disconnect, duplicate call keys, calls before connect.
	Lifecycle
)

func (k Kind) String() string {
	switch k {
	case Network:
		return "NetworkFailure"
	case Protocol:
		return "ProtocolFailure"
	case Security:
		return "SecurityFailure"
	case Invocation:
		return "InvocationFailure"
	case Configuration:
		return "ConfigurationFailure"
	case Lifecycle:
		return "LifecycleFailure"
	default:
		return "UnknownFailure"
	}
}

// Error is the concrete error type returned by every package in this module.
type Error struct {
	Kind Kind
	Op   string // the operation that failed, e.g. "Connect", "Invoke"
	Err  error  // wrapped cause, may be nil
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Op)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New wraps err (which may be nil) into an *Error of the given kind.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Is reports whether err is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
