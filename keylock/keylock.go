// Package keylock serializes work per key (attempt key or result id).
package keylock

import (
	"context"
	"sort"
	"sync"
)

// Locker grants exclusive access to a key. The returned func releases it.
type Locker interface {
	Lock(ctx context.Context, key string) (func(), error)
}

// LockAll locks every distinct key in sorted order so two callers locking
// overlapping sets cannot deadlock. On error nothing stays locked.
func LockAll(ctx context.Context, l Locker, keys []string) (func(), error) {
	uniq := make([]string, 0, len(keys))
	seen := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		uniq = append(uniq, k)
	}
	sort.Strings(uniq)

	unlocks := make([]func(), 0, len(uniq))
	release := func() {
		for i := len(unlocks) - 1; i >= 0; i-- {
			unlocks[i]()
		}
	}
	for _, k := range uniq {
		u, err := l.Lock(ctx, k)
		if err != nil {
			release()
			return nil, err
		}
		unlocks = append(unlocks, u)
	}
	return release, nil
}

// Map is an in-process Locker. Entries are dropped when no one holds or
// waits for them.
type Map struct {
	mu    sync.Mutex
	locks map[string]*entry
}

type entry struct {
	ch   chan struct{}
	refs int
}

var _ Locker = (*Map)(nil)

func NewMap() *Map {
	return &Map{locks: map[string]*entry{}}
}

func (m *Map) Lock(ctx context.Context, key string) (func(), error) {
	m.mu.Lock()
	if m.locks == nil {
		m.locks = map[string]*entry{}
	}
	e, ok := m.locks[key]
	if !ok {
		e = &entry{ch: make(chan struct{}, 1)}
		m.locks[key] = e
	}
	e.refs++
	m.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
	case <-ctx.Done():
		m.release(key, e)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.ch
			m.release(key, e)
		})
	}, nil
}

func (m *Map) release(key string, e *entry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(m.locks, key)
	}
}

// Len reports how many keys are held or awaited.
func (m *Map) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.locks)
}
