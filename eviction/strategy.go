// Package eviction provides the victim-selection policies used by bounded
// cache backends. Strategies track bookkeeping only; they never hold values.
//
// Strategies are not safe for concurrent use. The owning backend serialises
// every call.
package eviction

import (
	"fmt"
	"math/rand/v2"
	"sort"
	"strings"
	"time"
)

// Policy names an eviction strategy.
type Policy string

const (
	LRU    Policy = "lru"
	LFU    Policy = "lfu"
	FIFO   Policy = "fifo"
	MRU    Policy = "mru"
	Random Policy = "random"
	TTL    Policy = "ttl"
	ARC    Policy = "arc"
)

// Strategy picks eviction victims for a single backend.
type Strategy interface {
	Policy() Policy
	// RecordAdd registers a new or rewritten key. ttl <= 0 means no expiry.
	RecordAdd(key string, ttl time.Duration)
	// RecordAccess registers a read hit. Unknown keys are ignored.
	RecordAccess(key string)
	Remove(key string)
	// EvictionKey proposes a victim without removing it.
	EvictionKey() (string, bool)
	Clear()
	Len() int
	Stats() Stats
}

// MissRecorder is implemented by strategies that adapt to read misses.
type MissRecorder interface {
	RecordMiss(key string)
}

// Stats is a snapshot of strategy bookkeeping.
type Stats struct {
	Policy   Policy  `json:"policy"`
	Tracked  int     `json:"tracked"`
	Adds     uint64  `json:"adds"`
	Accesses uint64  `json:"accesses"`
	Misses   uint64  `json:"misses"`
	Weight   float64 `json:"weight,omitempty"`
}

type options struct {
	now  func() time.Time
	rand *rand.Rand
}

// Option customises strategy construction.
type Option func(*options)

// WithClock overrides the time source used by time-aware strategies.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithSeed makes randomised strategies deterministic.
func WithSeed(seed uint64) Option {
	return func(o *options) {
		o.rand = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	}
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if o.rand == nil {
		o.rand = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return o
}

type factory func(options) Strategy

var registry = map[Policy]factory{
	LRU:    func(options) Strategy { return newRecency(LRU) },
	MRU:    func(options) Strategy { return newRecency(MRU) },
	LFU:    func(options) Strategy { return newLFU() },
	FIFO:   func(options) Strategy { return newFIFO() },
	Random: func(o options) Strategy { return newRandom(o.rand) },
	TTL:    func(o options) Strategy { return newTTL(o.now) },
	ARC:    func(o options) Strategy { return newARC(o.rand) },
}

// New builds the strategy registered under p.
func New(p Policy, opts ...Option) (Strategy, error) {
	f, ok := registry[p]
	if !ok {
		return nil, fmt.Errorf("eviction: unknown policy %q", p)
	}
	return f(buildOptions(opts)), nil
}

// ParsePolicy resolves a case-insensitive policy name.
func ParsePolicy(s string) (Policy, error) {
	p := Policy(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := registry[p]; !ok {
		return "", fmt.Errorf("eviction: unknown policy %q", s)
	}
	return p, nil
}

// Policies lists every registered policy name, sorted.
func Policies() []Policy {
	out := make([]Policy, 0, len(registry))
	for p := range registry {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

type counters struct {
	adds     uint64
	accesses uint64
	misses   uint64
}

func (c counters) stats(p Policy, tracked int) Stats {
	return Stats{Policy: p, Tracked: tracked, Adds: c.adds, Accesses: c.accesses, Misses: c.misses}
}
