package engine

import "sync"

// lockTable serializes turns per session: at most one turn may be in flight
// for a given session id, while turns on different sessions run concurrently.
type lockTable struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newLockTable() *lockTable {
	return &lockTable{locks: make(map[string]*sync.Mutex)}
}

// Acquire blocks until the session's lock is held and returns the release
// function. Lock entries are never evicted; a session's mutex is tiny and the
// set of sessions a process touches is bounded by its lifetime.
func (t *lockTable) Acquire(sessionID string) func() {
	t.mu.Lock()
	lock, ok := t.locks[sessionID]
	if !ok {
		lock = &sync.Mutex{}
		t.locks[sessionID] = lock
	}
	t.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}
