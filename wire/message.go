// Copyright (C) 2025 sage-x-project
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

// SPDX-License-Identifier: LGPL-3.0-or-later

// Package wire defines the single framing type every transport carries
// (WireMessage) and the payload types it transports between peers.
package wire

// MessageType identifies the purpose of a WireMessage's payload.
type MessageType string

const (
	CompleteHandshake MessageType = "complete_handshake"
	Auth              MessageType = "auth"
	AuthResponse      MessageType = "auth_response"
	RPC               MessageType = "rpc"
	RPCResult         MessageType = "rpc_result"
	Invoke            MessageType = "invoke"
	Goodbye           MessageType = "goodbye"
	SessionClosed     MessageType = "session_closed"
)

// WireMessage is the single framing type every transport carries. A
// MessageType of "" with an empty Data is the keep-alive frame.
type WireMessage struct {
	MessageType   MessageType `json:"messageType"`
	Data          []byte      `json:"data"`
	Iv            []byte      `json:"iv,omitempty"`
	UniqueCallKey []byte      `json:"uniqueCallKey,omitempty"`
	Error         bool        `json:"error,omitempty"`
}

// IsKeepAlive reports whether this frame carries no payload and no type,
// per spec: it only refreshes session liveness.
func (m *WireMessage) IsKeepAlive() bool {
	return m.MessageType == "" && len(m.Data) == 0
}

// EncryptedSecret is the AES-key-blob produced during key exchange,
// encrypted with the receiver's RSA public key, plus the sender's own
// RSA public-key blob so the receiver can verify the accompanying signature.
type EncryptedSecret struct {
	EncryptedKey        []byte `json:"encryptedKey"`
	SenderPublicKeyBlob []byte `json:"senderPublicKeyBlob"`
}

// SignedMessageData wraps a payload with an RSA signature computed over
// MessageRawData, used by CreateWireMessage when a key pair is supplied.
type SignedMessageData struct {
	MessageRawData []byte `json:"messageRawData"`
	Signature      []byte `json:"signature"`
}
