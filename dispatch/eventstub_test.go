// SPDX-License-Identifier: LGPL-3.0-or-later

package dispatch

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestEventStubSubscribeOrderAndUnsubscribe(t *testing.T) {
	stub := NewEventStub()
	k1, k2, k3 := uuid.New(), uuid.New(), uuid.New()

	stub.Subscribe("OnTick", k1)
	stub.Subscribe("OnTick", k2)
	stub.Subscribe("OnTick", k3)
	assert.Equal(t, []uuid.UUID{k1, k2, k3}, stub.Subscribers("OnTick"))

	stub.Unsubscribe("OnTick", k2)
	assert.Equal(t, []uuid.UUID{k1, k3}, stub.Subscribers("OnTick"))
}

func TestEventStubUnknownEventIsEmpty(t *testing.T) {
	stub := NewEventStub()
	assert.Empty(t, stub.Subscribers("Nope"))
}
