package limiter

import "sync"

// KeyedMutex provides one mutex per key. Entries are removed once no
// holder or waiter remains, so the map does not grow without bound for
// churny account sets.
type KeyedMutex struct {
	mu      sync.Mutex
	entries map[string]*mutexEntry
}

type mutexEntry struct {
	mu      sync.Mutex
	waiters int // holders + queued waiters, guarded by KeyedMutex.mu
}

// NewKeyedMutex creates an empty KeyedMutex.
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{entries: make(map[string]*mutexEntry)}
}

// Lock acquires the mutex for key, creating it on first use.
func (k *KeyedMutex) Lock(key string) {
	k.mu.Lock()
	e, ok := k.entries[key]
	if !ok {
		e = &mutexEntry{}
		k.entries[key] = e
	}
	e.waiters++
	k.mu.Unlock()

	e.mu.Lock()
}

// Unlock releases the mutex for key and discards the entry when no
// waiters remain.
func (k *KeyedMutex) Unlock(key string) {
	k.mu.Lock()
	e, ok := k.entries[key]
	if !ok {
		k.mu.Unlock()
		panic("limiter: unlock of unlocked key " + key)
	}
	e.waiters--
	if e.waiters == 0 {
		delete(k.entries, key)
	}
	k.mu.Unlock()

	e.mu.Unlock()
}

// Len returns the number of live entries (for tests and metrics).
func (k *KeyedMutex) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.entries)
}
