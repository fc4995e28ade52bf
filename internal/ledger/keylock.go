package ledger

import "sync"

// KeyMutex provides mutual exclusion scoped to a string key. Holders of
// one key serialize; holders of different keys proceed in parallel with no
// shared lock beyond the map itself.
//
// Entries are reference-counted and removed when the last holder releases,
// so the map does not grow with the total key space, only with the number
// of keys in flight.
type KeyMutex struct {
	mu    sync.Mutex
	locks map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// NewKeyMutex creates an empty KeyMutex.
func NewKeyMutex() *KeyMutex {
	return &KeyMutex{locks: make(map[string]*lockEntry)}
}

// Lock blocks until the lock for key is held and returns the release
// function.
func (k *KeyMutex) Lock(key string) (unlock func()) {
	k.mu.Lock()
	e, ok := k.locks[key]
	if !ok {
		e = &lockEntry{}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()

	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
