package engine

import "sync"

// PathLocker serializes operations per file path. The engine itself does not
// serialize concurrent applies; hosts that may race applies or restores on
// the same path take this lock around the call. Two applies computed against
// the same original snapshot but written sequentially would silently lose one
// side otherwise.
type PathLocker struct {
	mu    sync.Mutex
	paths map[string]*sync.Mutex
}

// NewPathLocker creates an empty locker.
func NewPathLocker() *PathLocker {
	return &PathLocker{paths: make(map[string]*sync.Mutex)}
}

// Lock acquires the lock for path and returns the matching unlock function.
func (l *PathLocker) Lock(path string) func() {
	l.mu.Lock()
	m, ok := l.paths[path]
	if !ok {
		m = &sync.Mutex{}
		l.paths[path] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
