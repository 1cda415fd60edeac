// SPDX-License-Identifier: LGPL-3.0-or-later

package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sage-x-project/agentrpc/store"
)

func TestSaveAndLoadIdentity(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	require.NoError(t, s.SaveIdentity(ctx, &store.Identity{ID: "agent-1", Metadata: map[string]string{"role": "caller"}}))

	got, err := s.LoadIdentity(ctx, "agent-1")
	require.NoError(t, err)
	assert.Equal(t, "agent-1", got.ID)
	assert.Equal(t, "caller", got.Metadata["role"])
	assert.False(t, got.CreatedAt.IsZero())
}

func TestSaveIdentityPreservesCreatedAtOnUpdate(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	require.NoError(t, s.SaveIdentity(ctx, &store.Identity{ID: "agent-1"}))
	first, err := s.LoadIdentity(ctx, "agent-1")
	require.NoError(t, err)

	require.NoError(t, s.SaveIdentity(ctx, &store.Identity{ID: "agent-1", Metadata: map[string]string{"role": "updated"}}))
	second, err := s.LoadIdentity(ctx, "agent-1")
	require.NoError(t, err)

	assert.Equal(t, first.CreatedAt, second.CreatedAt)
	assert.True(t, !second.UpdatedAt.Before(first.UpdatedAt))
}

func TestLoadIdentityMissing(t *testing.T) {
	s := NewStore()
	_, err := s.LoadIdentity(context.Background(), "nobody")
	assert.Error(t, err)
}

func TestRecordSessionEventAppendsInOrder(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	require.NoError(t, s.RecordSessionEvent(ctx, &store.SessionEvent{SessionID: "sess-1", Event: store.EventHandshakeCompleted}))
	require.NoError(t, s.RecordSessionEvent(ctx, &store.SessionEvent{SessionID: "sess-1", Event: store.EventClosed}))

	events := s.Events("sess-1")
	require.Len(t, events, 2)
	assert.Equal(t, store.EventHandshakeCompleted, events[0].Event)
	assert.Equal(t, store.EventClosed, events[1].Event)
}

func TestPingAndClose(t *testing.T) {
	s := NewStore()
	assert.NoError(t, s.Ping(context.Background()))
	assert.NoError(t, s.Close())
}
