// SPDX-License-Identifier: LGPL-3.0-or-later

package rpcsession

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManagerAcceptAndGet(t *testing.T) {
	m := NewManager(0, time.Hour, nil)
	defer m.Close()

	s, err := m.Accept(nil)
	require.NoError(t, err)
	require.Equal(t, 1, m.Count())

	got, ok := m.Get(s.ID())
	require.True(t, ok)
	assert.Equal(t, s.ID(), got.ID())
}

func TestManagerRemove(t *testing.T) {
	m := NewManager(0, time.Hour, nil)
	defer m.Close()

	s, err := m.Accept(nil)
	require.NoError(t, err)

	m.Remove(s.ID())
	_, ok := m.Get(s.ID())
	assert.False(t, ok)
	assert.True(t, s.Closed())
}

func TestManagerReapsIdleSessions(t *testing.T) {
	var expired []string
	m := NewManager(10*time.Millisecond, 15*time.Millisecond, func(s *Session) {
		expired = append(expired, s.ID().String())
	})
	defer m.Close()

	s, err := m.Accept(nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, ok := m.Get(s.ID())
		return !ok
	}, time.Second, 5*time.Millisecond)

	assert.Contains(t, expired, s.ID().String())
}
