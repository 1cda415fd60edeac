// SPDX-License-Identifier: LGPL-3.0-or-later

// Package delegate implements the client-side ClientDelegateRegistry of
// spec §4.6: a concurrent GUID->callback map with identity-based dedup.
// Grounded on the byKeyID/keyIDsBySID double map the teacher's
// session.Manager used for keyid<->session binding, repurposed here for
// callback<->HandlerKey binding.
package delegate

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
)

// Callback is the client-side function invoked when the server sends an
// `invoke` wire message for a registered HandlerKey.
type Callback func(args json.RawMessage) (json.RawMessage, error)

// Owner identifies the proxy object a set of delegate registrations
// belongs to, so they can be bulk-removed together (spec §4.6(ii)).
type Owner = uint64

type entry struct {
	key      uuid.UUID
	callback Callback
	owner    Owner
	identity any // original callback value, for identity-based dedup
}

// Registry is the client's concurrent HandlerKey -> callback map.
type Registry struct {
	mu        sync.RWMutex
	byKey     map[uuid.UUID]*entry
	byOwner   map[Owner]map[uuid.UUID]struct{}
	identities map[any]uuid.UUID
}

func NewRegistry() *Registry {
	return &Registry{
		byKey:      make(map[uuid.UUID]*entry),
		byOwner:    make(map[Owner]map[uuid.UUID]struct{}),
		identities: make(map[any]uuid.UUID),
	}
}

// Register adds cb under owner and returns its HandlerKey. If an
// identical callback (by reference identity of identity) is already
// registered, under any owner, the existing key is returned instead of
// creating a duplicate, per spec §4.6.
func (r *Registry) Register(owner Owner, identity any, cb Callback) uuid.UUID {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.identities[identity]; ok {
		if _, stillAlive := r.byKey[existing]; stillAlive {
			return existing
		}
	}

	key := uuid.New()
	r.byKey[key] = &entry{key: key, callback: cb, owner: owner, identity: identity}
	if r.byOwner[owner] == nil {
		r.byOwner[owner] = make(map[uuid.UUID]struct{})
	}
	r.byOwner[owner][key] = struct{}{}
	r.identities[identity] = key
	return key
}

// Invoke runs the callback registered under key, if any.
func (r *Registry) Invoke(key uuid.UUID, args json.RawMessage) (json.RawMessage, error) {
	r.mu.RLock()
	e, ok := r.byKey[key]
	r.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	return e.callback(args)
}

// Unregister removes a single HandlerKey (explicit unsubscribe).
func (r *Registry) Unregister(key uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.byKey[key]
	if !ok {
		return
	}
	delete(r.byKey, key)
	delete(r.identities, e.identity)
	if set, ok := r.byOwner[e.owner]; ok {
		delete(set, key)
		if len(set) == 0 {
			delete(r.byOwner, e.owner)
		}
	}
}

// UnregisterOwner bulk-removes every delegate registered by owner, used
// when the owning proxy is shut down.
func (r *Registry) UnregisterOwner(owner Owner) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key := range r.byOwner[owner] {
		if e, ok := r.byKey[key]; ok {
			delete(r.identities, e.identity)
		}
		delete(r.byKey, key)
	}
	delete(r.byOwner, owner)
}

// Clear removes every registration, used on client disconnect.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byKey = make(map[uuid.UUID]*entry)
	r.byOwner = make(map[Owner]map[uuid.UUID]struct{})
	r.identities = make(map[any]uuid.UUID)
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byKey)
}
