// SPDX-License-Identifier: LGPL-3.0-or-later

package rpcsession

import (
	"sync"
	"time"
)

// CallKeyCache guards against a UniqueCallKey being dispatched twice, e.g.
// when a client retransmits an rpc frame after a slow reply. Adapted from
// the teacher's NonceCache (keyid/nonce replay guard); here the map key is
// whatever string the caller passes. The server keeps one cache for all
// sessions and prefixes each call key with the session ID, so dedup is
// scoped per session.
type CallKeyCache struct {
	ttl  time.Duration
	data sync.Map // callKey string -> expiry unix nanoseconds
	tick *time.Ticker
	stop chan struct{}
	once sync.Once
}

// NewCallKeyCache creates a TTL-based dedup cache; entries older than ttl
// are periodically swept.
func NewCallKeyCache(ttl time.Duration) *CallKeyCache {
	c := &CallKeyCache{
		ttl:  ttl,
		stop: make(chan struct{}),
		tick: time.NewTicker(time.Minute),
	}
	go c.gcLoop()
	return c
}

// Seen returns true if callKey was already recorded and still within its
// TTL window (a replay); otherwise it records callKey and returns false.
func (c *CallKeyCache) Seen(callKey string) bool {
	if callKey == "" {
		return false
	}
	now := time.Now().UnixNano()
	if v, ok := c.data.Load(callKey); ok {
		if exp, _ := v.(int64); exp >= now {
			return true
		}
	}
	c.data.Store(callKey, time.Now().Add(c.ttl).UnixNano())
	return false
}

func (c *CallKeyCache) Close() {
	c.once.Do(func() { close(c.stop) })
	c.tick.Stop()
}

func (c *CallKeyCache) gcLoop() {
	for {
		select {
		case <-c.tick.C:
			now := time.Now().UnixNano()
			c.data.Range(func(k, v any) bool {
				if exp, _ := v.(int64); exp < now {
					c.data.Delete(k)
				}
				return true
			})
		case <-c.stop:
			return
		}
	}
}
