package eviction

import (
	"container/list"
	"time"
)

// recency backs both LRU and MRU. The list front is the most recently touched key.
type recency struct {
	policy Policy
	order  *list.List
	items  map[string]*list.Element
	counters
}

func newRecency(p Policy) *recency {
	return &recency{policy: p, order: list.New(), items: make(map[string]*list.Element)}
}

func (r *recency) Policy() Policy { return r.policy }

func (r *recency) RecordAdd(key string, _ time.Duration) {
	r.adds++
	if el, ok := r.items[key]; ok {
		r.order.MoveToFront(el)
		return
	}
	r.items[key] = r.order.PushFront(key)
}

func (r *recency) RecordAccess(key string) {
	if el, ok := r.items[key]; ok {
		r.accesses++
		r.order.MoveToFront(el)
	}
}

func (r *recency) Remove(key string) {
	if el, ok := r.items[key]; ok {
		r.order.Remove(el)
		delete(r.items, key)
	}
}

func (r *recency) EvictionKey() (string, bool) {
	var el *list.Element
	if r.policy == MRU {
		el = r.order.Front()
	} else {
		el = r.order.Back()
	}
	if el == nil {
		return "", false
	}
	return el.Value.(string), true
}

func (r *recency) Clear() {
	r.order.Init()
	r.items = make(map[string]*list.Element)
}

func (r *recency) Len() int { return len(r.items) }

func (r *recency) Stats() Stats { return r.stats(r.policy, len(r.items)) }
