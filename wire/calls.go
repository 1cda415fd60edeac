// SPDX-License-Identifier: LGPL-3.0-or-later

package wire

// ParameterKind tags whether a MethodCallParameter carries a plain value
// or a HandlerKey standing in for a delegate/event-handler argument.
type ParameterKind string

const (
	ParamScalar  ParameterKind = "scalar"
	ParamHandler ParameterKind = "handler"
)

// MethodCallParameter is one argument of a MethodCallMessage. Exactly one
// of Value or HandlerKey is meaningful, selected by Kind.
type MethodCallParameter struct {
	Name         string        `json:"name"`
	TypeName     string        `json:"typeName"`
	Kind         ParameterKind `json:"kind"`
	Value        []byte        `json:"value,omitempty"`
	HandlerKey   []byte        `json:"handlerKey,omitempty"`
	IsOut        bool          `json:"isOut,omitempty"`
	IsRef        bool          `json:"isRef,omitempty"`
}

// MethodCallMessage is the serialized form of a client -> server call.
type MethodCallMessage struct {
	ServiceName string                 `json:"serviceName"`
	MethodName  string                 `json:"methodName"`
	TypeArgs    []string               `json:"typeArgs,omitempty"`
	Parameters  []MethodCallParameter  `json:"parameters"`
	OneWay      bool                   `json:"oneWay,omitempty"`
}

// MethodCallResultMessage is the reply to a MethodCallMessage.
type MethodCallResultMessage struct {
	ReturnValue   []byte                 `json:"returnValue,omitempty"`
	OutParameters []MethodCallParameter  `json:"outParameters,omitempty"`
}

// RemoteDelegateInvocationMessage carries a server -> client callback.
type RemoteDelegateInvocationMessage struct {
	HandlerKey        []byte                 `json:"handlerKey"`
	DelegateArguments []MethodCallParameter  `json:"delegateArguments"`
	OneWay            bool                   `json:"oneWay,omitempty"`
}

// RemoteDelegateResultMessage is the shape of a client's reply to an
// invoked delegate. Nothing in this module sends or reads it: the client
// sends no reply to an invoke frame.
type RemoteDelegateResultMessage struct {
	HandlerKey  []byte `json:"handlerKey"`
	ReturnValue []byte `json:"returnValue,omitempty"`
	Error       bool   `json:"error,omitempty"`
}

// AuthenticationRequestMessage carries client-supplied credentials.
type AuthenticationRequestMessage struct {
	Credentials [][]byte `json:"credentials"`
}

// AuthenticationResponseMessage is the server's verdict on credentials.
type AuthenticationResponseMessage struct {
	IsAuthenticated      bool   `json:"isAuthenticated"`
	AuthenticatedIdentity string `json:"authenticatedIdentity,omitempty"`
	FailureReason        string `json:"failureReason,omitempty"`
}

// GoodbyeMessage announces a clean session teardown.
type GoodbyeMessage struct {
	SessionID []byte `json:"sessionId"`
}

// RemoteInvocationException is the wire-serializable form of a server-side
// exception, preserving message, stack trace and the inner-exception chain.
type RemoteInvocationException struct {
	Message    string                       `json:"message"`
	StackTrace string                       `json:"stackTrace,omitempty"`
	Inner      *RemoteInvocationException   `json:"inner,omitempty"`
}

func (e *RemoteInvocationException) Error() string {
	if e == nil {
		return ""
	}
	if e.Inner != nil {
		return e.Message + ": " + e.Inner.Error()
	}
	return e.Message
}

// NewRemoteInvocationException wraps a Go error chain (via errors.Unwrap)
// into the wire-serializable exception tree.
func NewRemoteInvocationException(err error) *RemoteInvocationException {
	if err == nil {
		return nil
	}
	type unwrapper interface{ Unwrap() error }
	exc := &RemoteInvocationException{Message: err.Error()}
	if u, ok := err.(unwrapper); ok {
		if inner := u.Unwrap(); inner != nil {
			exc.Inner = NewRemoteInvocationException(inner)
		}
	}
	return exc
}
