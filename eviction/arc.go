package eviction

import (
	"math/rand/v2"
	"time"
)

const (
	arcWindow     = 100
	arcStep       = 0.1
	arcMinWeight  = 0.2
	arcMaxWeight  = 0.8
	arcHighRate   = 0.8
	arcLowRate    = 0.5
	arcInitWeight = 0.5
)

// arc runs LRU and LFU side by side and delegates victim selection to LFU with
// probability weight. The weight follows the observed hit rate: a hot working
// set pushes it toward LFU, a churning one toward LRU.
type arc struct {
	rng    *rand.Rand
	lru    *recency
	lfu    *lfu
	weight float64

	windowHits  int
	windowTotal int
	counters
}

func newARC(rng *rand.Rand) *arc {
	return &arc{rng: rng, lru: newRecency(LRU), lfu: newLFU(), weight: arcInitWeight}
}

func (a *arc) Policy() Policy { return ARC }

func (a *arc) RecordAdd(key string, ttl time.Duration) {
	a.adds++
	a.lru.RecordAdd(key, ttl)
	a.lfu.RecordAdd(key, ttl)
}

func (a *arc) RecordAccess(key string) {
	if _, ok := a.lru.items[key]; !ok {
		return
	}
	a.accesses++
	a.lru.RecordAccess(key)
	a.lfu.RecordAccess(key)
	a.windowHits++
	a.observe()
}

func (a *arc) RecordMiss(string) {
	a.misses++
	a.observe()
}

func (a *arc) observe() {
	a.windowTotal++
	if a.windowTotal < arcWindow {
		return
	}
	rate := float64(a.windowHits) / float64(a.windowTotal)
	switch {
	case rate > arcHighRate:
		a.weight += arcStep
	case rate < arcLowRate:
		a.weight -= arcStep
	}
	a.weight = min(max(a.weight, arcMinWeight), arcMaxWeight)
	a.windowHits, a.windowTotal = 0, 0
}

func (a *arc) Remove(key string) {
	a.lru.Remove(key)
	a.lfu.Remove(key)
}

func (a *arc) EvictionKey() (string, bool) {
	if a.rng.Float64() < a.weight {
		return a.lfu.EvictionKey()
	}
	return a.lru.EvictionKey()
}

func (a *arc) Clear() {
	a.lru.Clear()
	a.lfu.Clear()
	a.windowHits, a.windowTotal = 0, 0
}

func (a *arc) Len() int { return a.lru.Len() }

// Weight is the current probability of delegating to LFU.
func (a *arc) Weight() float64 { return a.weight }

func (a *arc) Stats() Stats {
	s := a.stats(ARC, a.lru.Len())
	s.Weight = a.weight
	return s
}
