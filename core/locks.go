package core

import (
	"bytes"
	"sort"
	"sync"
)

// addressLocks hands out per-address mutexes. Entries are reference counted
// and removed once no caller holds or waits on them.
type addressLocks struct {
	mu    sync.Mutex
	locks map[[20]byte]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newAddressLocks() *addressLocks {
	return &addressLocks{locks: make(map[[20]byte]*lockEntry)}
}

// lock acquires every distinct address in ascending byte order and returns
// the release func.
func (l *addressLocks) lock(addrs ...[20]byte) func() {
	ordered := dedupeSorted(addrs)
	entries := make([]*lockEntry, len(ordered))
	l.mu.Lock()
	for i, addr := range ordered {
		entry, ok := l.locks[addr]
		if !ok {
			entry = &lockEntry{}
			l.locks[addr] = entry
		}
		entry.refs++
		entries[i] = entry
	}
	l.mu.Unlock()

	for _, entry := range entries {
		entry.mu.Lock()
	}
	return func() {
		for i := len(entries) - 1; i >= 0; i-- {
			entries[i].mu.Unlock()
		}
		l.mu.Lock()
		for i, addr := range ordered {
			entries[i].refs--
			if entries[i].refs == 0 {
				delete(l.locks, addr)
			}
		}
		l.mu.Unlock()
	}
}

func (l *addressLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}

func dedupeSorted(addrs [][20]byte) [][20]byte {
	out := make([][20]byte, 0, len(addrs))
	seen := make(map[[20]byte]struct{}, len(addrs))
	for _, addr := range addrs {
		if _, ok := seen[addr]; ok {
			continue
		}
		seen[addr] = struct{}{}
		out = append(out, addr)
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i][:], out[j][:]) < 0
	})
	return out
}
