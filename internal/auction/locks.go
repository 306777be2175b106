package auction

import (
	"slices"
	"strconv"
	"sync"
)

// lockTable hands out one mutex per key. Entries live only while some goroutine holds or waits on
// them, so the table stays as small as the set of contended auctions.
type lockTable struct {
	mu    sync.Mutex
	locks map[string]*refLock
}

type refLock struct {
	mu   sync.Mutex
	refs int
}

func newLockTable() *lockTable {
	return &lockTable{locks: make(map[string]*refLock)}
}

// Lock blocks until key is held and returns the function releasing it.
func (t *lockTable) Lock(key string) (unlock func()) {
	t.mu.Lock()
	l, ok := t.locks[key]
	if !ok {
		l = &refLock{}
		t.locks[key] = l
	}
	l.refs++
	t.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		t.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(t.locks, key)
		}
		t.mu.Unlock()
	}
}

// LockAuctions holds every auction in ids, taking them in ascending order so that two callers
// sharing ids cannot deadlock.
func (t *lockTable) LockAuctions(ids []int64) (unlock func()) {
	ids = slices.Clone(ids)
	slices.Sort(ids)
	ids = slices.Compact(ids)
	unlocks := make([]func(), 0, len(ids))
	for _, id := range ids {
		unlocks = append(unlocks, t.Lock(auctionKey(id)))
	}
	return func() {
		for i := len(unlocks) - 1; i >= 0; i-- {
			unlocks[i]()
		}
	}
}

func (t *lockTable) size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.locks)
}

func auctionKey(id int64) string { return "auction:" + strconv.FormatInt(id, 10) }

func itemKey(id int64) string { return "item:" + strconv.FormatInt(id, 10) }
