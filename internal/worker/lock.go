package worker

import "sync"

// KeyedLock grants at most one holder per key. It backs the per-track
// exclusivity check inside a single worker process; cross-process
// exclusivity comes from the active-job query against the database.
type KeyedLock struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewKeyedLock() *KeyedLock {
	return &KeyedLock{held: make(map[string]struct{})}
}

// TryAcquire takes the lock for key, or reports false when already held.
func (l *KeyedLock) TryAcquire(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.held[key]; ok {
		return false
	}
	l.held[key] = struct{}{}
	return true
}

// Release frees the lock for key. Releasing an unheld key is a no-op.
func (l *KeyedLock) Release(key string) {
	l.mu.Lock()
	delete(l.held, key)
	l.mu.Unlock()
}
