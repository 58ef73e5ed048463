package engine

import "sync"

// marketLocks hands out one mutex per market id so operations on the same
// market are serialized while different markets proceed in parallel. Callers
// must confirm the market exists before acquiring, which keeps the map
// bounded by the number of real markets; markets are never deleted, so
// entries live forever.
type marketLocks struct {
	mu sync.Mutex
	m  map[uint64]*sync.Mutex
}

func newMarketLocks() *marketLocks {
	return &marketLocks{m: make(map[uint64]*sync.Mutex)}
}

// acquire blocks until the market's lock is held and returns the release
// function.
func (l *marketLocks) acquire(id uint64) func() {
	l.mu.Lock()
	mu, ok := l.m[id]
	if !ok {
		mu = &sync.Mutex{}
		l.m[id] = mu
	}
	l.mu.Unlock()

	mu.Lock()
	return mu.Unlock
}
