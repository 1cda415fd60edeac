// SPDX-License-Identifier: LGPL-3.0-or-later

package delegate

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryRegisterAndInvoke(t *testing.T) {
	r := NewRegistry()
	called := false
	cb := func(args json.RawMessage) (json.RawMessage, error) {
		called = true
		return args, nil
	}
	key := r.Register(1, &cb, cb)

	out, err := r.Invoke(key, json.RawMessage(`"hi"`))
	require.NoError(t, err)
	assert.True(t, called)
	assert.Equal(t, json.RawMessage(`"hi"`), out)
}

func TestRegistryDedupByIdentity(t *testing.T) {
	r := NewRegistry()
	cb := func(args json.RawMessage) (json.RawMessage, error) { return args, nil }

	k1 := r.Register(1, &cb, cb)
	k2 := r.Register(1, &cb, cb)
	assert.Equal(t, k1, k2, "same identity should reuse the existing key")
	assert.Equal(t, 1, r.Len())
}

func TestRegistryUnregisterOwnerBulkRemoves(t *testing.T) {
	r := NewRegistry()
	cbA := func(args json.RawMessage) (json.RawMessage, error) { return args, nil }
	cbB := func(args json.RawMessage) (json.RawMessage, error) { return args, nil }

	r.Register(1, &cbA, cbA)
	r.Register(1, &cbB, cbB)
	assert.Equal(t, 2, r.Len())

	r.UnregisterOwner(1)
	assert.Equal(t, 0, r.Len())
}

func TestRegistryClear(t *testing.T) {
	r := NewRegistry()
	cb := func(args json.RawMessage) (json.RawMessage, error) { return args, nil }
	r.Register(1, &cb, cb)
	r.Clear()
	assert.Equal(t, 0, r.Len())
}
