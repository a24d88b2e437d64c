package audit

import (
	"context"
	"sort"
	"sync"
)

// Memory is an in-process trail.
type Memory struct {
	mu      sync.RWMutex
	seq     int64
	entries map[string][]Entry
}

var (
	_ Recorder = (*Memory)(nil)
	_ Reader   = (*Memory)(nil)
)

func NewMemory() *Memory {
	return &Memory{entries: map[string][]Entry{}}
}

func (m *Memory) Record(_ context.Context, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.entries == nil {
		m.entries = map[string][]Entry{}
	}
	m.seq++
	e.Seq = m.seq
	m.entries[e.ResultID] = append(m.entries[e.ResultID], e.clone())
	return nil
}

func (m *Memory) ListFor(_ context.Context, resultID string) ([]Entry, error) {
	m.mu.RLock()
	src := m.entries[resultID]
	out := make([]Entry, len(src))
	for i, e := range src {
		out[i] = e.clone()
	}
	m.mu.RUnlock()
	SortNewestFirst(out)
	return out, nil
}

// Len returns the total number of entries across all Results.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, es := range m.entries {
		n += len(es)
	}
	return n
}

// Clone deep-copies the trail.
func (m *Memory) Clone() *Memory {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := &Memory{seq: m.seq, entries: make(map[string][]Entry, len(m.entries))}
	for k, v := range m.entries {
		es := make([]Entry, len(v))
		for i, e := range v {
			es[i] = e.clone()
		}
		out.entries[k] = es
	}
	return out
}

// SortNewestFirst orders entries by timestamp then sequence, both descending.
func SortNewestFirst(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].Timestamp.Equal(entries[j].Timestamp) {
			return entries[i].Timestamp.After(entries[j].Timestamp)
		}
		return entries[i].Seq > entries[j].Seq
	})
}
