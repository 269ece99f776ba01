package eviction

import (
	"math/rand/v2"
	"time"
)

type random struct {
	rng   *rand.Rand
	keys  []string
	index map[string]int
	counters
}

func newRandom(rng *rand.Rand) *random {
	return &random{rng: rng, index: make(map[string]int)}
}

func (r *random) Policy() Policy { return Random }

func (r *random) RecordAdd(key string, _ time.Duration) {
	r.adds++
	if _, ok := r.index[key]; ok {
		return
	}
	r.index[key] = len(r.keys)
	r.keys = append(r.keys, key)
}

func (r *random) RecordAccess(key string) {
	if _, ok := r.index[key]; ok {
		r.accesses++
	}
}

// Remove swaps the last key into the freed slot.
func (r *random) Remove(key string) {
	i, ok := r.index[key]
	if !ok {
		return
	}
	last := len(r.keys) - 1
	if i != last {
		r.keys[i] = r.keys[last]
		r.index[r.keys[i]] = i
	}
	r.keys = r.keys[:last]
	delete(r.index, key)
}

func (r *random) EvictionKey() (string, bool) {
	if len(r.keys) == 0 {
		return "", false
	}
	return r.keys[r.rng.IntN(len(r.keys))], true
}

func (r *random) Clear() {
	r.keys = nil
	r.index = make(map[string]int)
}

func (r *random) Len() int { return len(r.keys) }

func (r *random) Stats() Stats { return r.stats(Random, len(r.keys)) }
