// SPDX-License-Identifier: LGPL-3.0-or-later

package rpcsession

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCallKeyCacheDetectsReplay(t *testing.T) {
	c := NewCallKeyCache(time.Minute)
	defer c.Close()

	assert.False(t, c.Seen("call-1"))
	assert.True(t, c.Seen("call-1"))
}

func TestCallKeyCacheExpires(t *testing.T) {
	c := NewCallKeyCache(5 * time.Millisecond)
	defer c.Close()

	assert.False(t, c.Seen("call-1"))
	time.Sleep(20 * time.Millisecond)
	assert.False(t, c.Seen("call-1"), "entry should have expired")
}
