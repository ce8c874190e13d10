// Package ledger holds the shared primitives that keep balance math and
// entity-level serialization consistent across the core services.
package ledger

import "sync"

// KeyedMutex serializes operations per entity key (tenant pool, order id,
// subject hash). Every read-modify-write sequence in a service runs inside
// Lock(key)/unlock so concurrent conflicting writes cannot interleave.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

// NewKeyedMutex returns an empty keyed mutex.
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*keyLock)}
}

// Lock acquires the lock for key and returns its unlock function. Lock
// entries are reference counted and removed once unused so the map does not
// grow with the keyspace.
func (k *KeyedMutex) Lock(key string) func() {
	k.mu.Lock()
	entry, ok := k.locks[key]
	if !ok {
		entry = &keyLock{}
		k.locks[key] = entry
	}
	entry.refs++
	k.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		k.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
