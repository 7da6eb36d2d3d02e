package index

import "sync"

// keyedLock hands out one RWMutex per index name. Entries are dropped when
// the last holder releases them.
type keyedLock struct {
	mu    sync.Mutex
	locks map[string]*refLock
}

type refLock struct {
	sync.RWMutex
	refs int
}

func newKeyedLock() *keyedLock {
	return &keyedLock{locks: make(map[string]*refLock)}
}

func (k *keyedLock) get(name string) *refLock {
	k.mu.Lock()
	defer k.mu.Unlock()
	l, ok := k.locks[name]
	if !ok {
		l = &refLock{}
		k.locks[name] = l
	}
	l.refs++
	return l
}

func (k *keyedLock) put(name string, l *refLock) {
	k.mu.Lock()
	defer k.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(k.locks, name)
	}
}

// Lock takes the write side for name and returns its release function
func (k *keyedLock) Lock(name string) func() {
	l := k.get(name)
	l.Lock()
	return func() {
		l.Unlock()
		k.put(name, l)
	}
}

// RLock takes the read side for name and returns its release function
func (k *keyedLock) RLock(name string) func() {
	l := k.get(name)
	l.RLock()
	return func() {
		l.RUnlock()
		k.put(name, l)
	}
}
