package namedlocker

import (
	"sync"
)

type entry struct {
	sync.RWMutex
	refs int
}

// NamedLocker implements locks by name with lazy object creation.
// A name's mutex is dropped once nobody holds or waits on it, so
// lockers keyed by claim id do not grow with the number of claims.
type NamedLocker struct {
	mu    sync.Mutex
	locks map[string]*entry
}

// NewNamedLocker creates a new named locker
func NewNamedLocker() *NamedLocker {
	return &NamedLocker{
		locks: make(map[string]*entry),
	}
}

func (nl *NamedLocker) acquire(name string) *entry {
	nl.mu.Lock()
	defer nl.mu.Unlock()
	e, ok := nl.locks[name]
	if !ok {
		e = new(entry)
		nl.locks[name] = e
	}
	e.refs++
	return e
}

func (nl *NamedLocker) release(name string) *entry {
	nl.mu.Lock()
	defer nl.mu.Unlock()
	e, ok := nl.locks[name]
	if !ok {
		panic("namedlocker: unlock of unlocked name " + name)
	}
	e.refs--
	if e.refs == 0 {
		delete(nl.locks, name)
	}
	return e
}

// Lock locks the named lock for write access
func (nl *NamedLocker) Lock(name string) {
	nl.acquire(name).Lock()
}

// Unlock unlocks the named lock for write access, panics on non existence
func (nl *NamedLocker) Unlock(name string) {
	nl.release(name).Unlock()
}

// RLock locks the named lock for read access
func (nl *NamedLocker) RLock(name string) {
	nl.acquire(name).RLock()
}

// RUnlock unlocks the named lock for read access, panics on non existence
func (nl *NamedLocker) RUnlock(name string) {
	nl.release(name).RUnlock()
}

// With runs fn while holding the named write lock.
func (nl *NamedLocker) With(name string, fn func() error) error {
	nl.Lock(name)
	defer nl.Unlock(name)
	return fn()
}

// Len reports how many names currently have a live mutex.
func (nl *NamedLocker) Len() int {
	nl.mu.Lock()
	defer nl.mu.Unlock()
	return len(nl.locks)
}
