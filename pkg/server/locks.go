package server

import "sync"

// lockTable hands out one mutex per repository. Every mutation of a
// repository (pack unpack and ref updates) runs under its lock.
type lockTable struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (t *lockTable) lock(name string) (unlock func()) {
	t.mu.Lock()
	if t.locks == nil {
		t.locks = make(map[string]*sync.Mutex)
	}
	m, ok := t.locks[name]
	if !ok {
		m = new(sync.Mutex)
		t.locks[name] = m
	}
	t.mu.Unlock()

	m.Lock()
	return m.Unlock
}
