package lifecycle

import "sync"

// tradeLocks serialises writers per business trade id. Entries are dropped
// once nobody holds or waits for them.
type tradeLocks struct {
	mu    sync.Mutex
	locks map[int64]*tradeLock
}

type tradeLock struct {
	mu   sync.Mutex
	refs int
}

func newTradeLocks() *tradeLocks {
	return &tradeLocks{locks: make(map[int64]*tradeLock)}
}

// Lock blocks until tradeID is free and returns the matching unlock.
func (l *tradeLocks) Lock(tradeID int64) func() {
	l.mu.Lock()
	lk, ok := l.locks[tradeID]
	if !ok {
		lk = &tradeLock{}
		l.locks[tradeID] = lk
	}
	lk.refs++
	l.mu.Unlock()

	lk.mu.Lock()
	return func() {
		lk.mu.Unlock()
		l.mu.Lock()
		lk.refs--
		if lk.refs == 0 {
			delete(l.locks, tradeID)
		}
		l.mu.Unlock()
	}
}

// Len is the number of trade ids currently locked or awaited.
func (l *tradeLocks) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
