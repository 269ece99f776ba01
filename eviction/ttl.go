package eviction

import (
	"container/heap"
	"time"
)

type ttlItem struct {
	key       string
	expiresAt int64 // unix ms, 0 = never
	seq       uint64
	index     int
}

// ttlHeap orders by soonest expiry. Keys without expiry sort last, oldest first.
type ttlHeap []*ttlItem

func (h ttlHeap) Len() int { return len(h) }

func (h ttlHeap) Less(i, j int) bool {
	a, b := h[i], h[j]
	switch {
	case a.expiresAt == 0 && b.expiresAt == 0:
		return a.seq < b.seq
	case a.expiresAt == 0:
		return false
	case b.expiresAt == 0:
		return true
	case a.expiresAt != b.expiresAt:
		return a.expiresAt < b.expiresAt
	}
	return a.seq < b.seq
}

func (h ttlHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *ttlHeap) Push(x any) {
	item := x.(*ttlItem)
	item.index = len(*h)
	*h = append(*h, item)
}

func (h *ttlHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*h = old[:n-1]
	return item
}

type ttlStrategy struct {
	now   func() time.Time
	heap  ttlHeap
	items map[string]*ttlItem
	seq   uint64
	counters
}

func newTTL(now func() time.Time) *ttlStrategy {
	return &ttlStrategy{now: now, items: make(map[string]*ttlItem)}
}

func (s *ttlStrategy) Policy() Policy { return TTL }

func (s *ttlStrategy) RecordAdd(key string, ttl time.Duration) {
	s.adds++
	s.seq++
	var exp int64
	if ttl > 0 {
		exp = s.now().Add(ttl).UnixMilli()
	}
	if item, ok := s.items[key]; ok {
		item.expiresAt = exp
		item.seq = s.seq
		heap.Fix(&s.heap, item.index)
		return
	}
	item := &ttlItem{key: key, expiresAt: exp, seq: s.seq}
	heap.Push(&s.heap, item)
	s.items[key] = item
}

func (s *ttlStrategy) RecordAccess(key string) {
	if _, ok := s.items[key]; ok {
		s.accesses++
	}
}

func (s *ttlStrategy) Remove(key string) {
	item, ok := s.items[key]
	if !ok {
		return
	}
	heap.Remove(&s.heap, item.index)
	delete(s.items, key)
}

func (s *ttlStrategy) EvictionKey() (string, bool) {
	if len(s.heap) == 0 {
		return "", false
	}
	return s.heap[0].key, true
}

func (s *ttlStrategy) Clear() {
	s.heap = nil
	s.items = make(map[string]*ttlItem)
}

func (s *ttlStrategy) Len() int { return len(s.items) }

func (s *ttlStrategy) Stats() Stats { return s.stats(TTL, len(s.items)) }
