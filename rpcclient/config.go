// SPDX-License-Identifier: LGPL-3.0-or-later

package rpcclient

import (
	"time"

	"github.com/sage-x-project/agentrpc/crypto/keys"
)

// Config mirrors the client-side configuration keys named in spec §6.
type Config struct {
	KeySize           keys.Size
	MessageEncryption bool
	Credentials       [][]byte

	ConnectionTimeout        time.Duration
	AuthenticationTimeout    time.Duration
	InvocationTimeout        time.Duration
	KeepSessionAliveInterval time.Duration
	DisconnectGraceTimeout   time.Duration

	// SerializeCallbacks runs server-initiated delegate invocations one at
	// a time, in arrival order (the teacher's "SafeDynamicInvoker"
	// posture). When false, each invoke runs in its own goroutine
	// ("SimpleDynamicInvoker"); spec §5 explicitly permits either.
	SerializeCallbacks bool
}

func (c Config) withDefaults() Config {
	if c.KeySize == 0 {
		c.KeySize = keys.Size2048
	}
	if c.ConnectionTimeout <= 0 {
		c.ConnectionTimeout = 10 * time.Second
	}
	if c.AuthenticationTimeout <= 0 {
		c.AuthenticationTimeout = 10 * time.Second
	}
	if c.InvocationTimeout <= 0 {
		c.InvocationTimeout = 30 * time.Second
	}
	if c.DisconnectGraceTimeout <= 0 {
		c.DisconnectGraceTimeout = 2 * time.Second
	}
	return c
}
