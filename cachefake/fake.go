// Package cachefake provides test doubles for code that uses hybridcache:
// an event Recorder with assertion helpers and a counting Storage wrapper.
package cachefake

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/goforj/hybridcache"
	"github.com/goforj/hybridcache/cachecore"
	"github.com/goforj/hybridcache/driver/memorycache"
)

// Recorder is a hybridcache.Observer that keeps every event it sees.
type Recorder struct {
	mu     sync.Mutex
	events []hybridcache.Event
	notify chan struct{}
}

var _ hybridcache.Observer = (*Recorder)(nil)

// NewRecorder returns an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{notify: make(chan struct{}, 1)}
}

func (r *Recorder) OnCacheEvent(_ context.Context, ev hybridcache.Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
	select {
	case r.notify <- struct{}{}:
	default:
	}
}

// Events returns a copy of the recorded events in arrival order.
func (r *Recorder) Events() []hybridcache.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]hybridcache.Event(nil), r.events...)
}

// Reset drops everything recorded so far.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

// Count returns events of type typ for key.
func (r *Recorder) Count(typ hybridcache.EventType, key string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Type == typ && ev.Key == key {
			n++
		}
	}
	return n
}

// Total returns events of type typ across keys.
func (r *Recorder) Total(typ hybridcache.EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Type == typ {
			n++
		}
	}
	return n
}

// Last returns the most recent event of type typ.
func (r *Recorder) Last(typ hybridcache.EventType) (hybridcache.Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].Type == typ {
			return r.events[i], true
		}
	}
	return hybridcache.Event{}, false
}

// AssertCalled verifies key saw typ the expected number of times.
func (r *Recorder) AssertCalled(t *testing.T, typ hybridcache.EventType, key string, times int) {
	t.Helper()
	if got := r.Count(typ, key); got != times {
		t.Fatalf("expected %s %q %d times, got %d", typ, key, times, got)
	}
}

// AssertNotCalled ensures key never saw typ.
func (r *Recorder) AssertNotCalled(t *testing.T, typ hybridcache.EventType, key string) {
	t.Helper()
	if got := r.Count(typ, key); got != 0 {
		t.Fatalf("expected no %s %q, got %d", typ, key, got)
	}
}

// AssertTotal ensures the total count for typ matches times.
func (r *Recorder) AssertTotal(t *testing.T, typ hybridcache.EventType, times int) {
	t.Helper()
	if got := r.Total(typ); got != times {
		t.Fatalf("expected %s total=%d, got %d", typ, times, got)
	}
}

// WaitFor blocks until key has seen typ at least once, failing the test after timeout.
// Events raised on other goroutines (sync replays, sweepers) are picked up.
func (r *Recorder) WaitFor(t *testing.T, typ hybridcache.EventType, key string, timeout time.Duration) hybridcache.Event {
	t.Helper()
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		r.mu.Lock()
		for _, ev := range r.events {
			if ev.Type == typ && ev.Key == key {
				r.mu.Unlock()
				return ev
			}
		}
		r.mu.Unlock()
		select {
		case <-r.notify:
		case <-time.After(10 * time.Millisecond):
		case <-deadline.C:
			t.Fatalf("timed out waiting for %s %q", typ, key)
			return hybridcache.Event{}
		}
	}
}

// Op identifies a storage call for assertions.
type Op string

const (
	OpRead   Op = "read"
	OpWrite  Op = "write"
	OpDelete Op = "delete"
	OpKeys   Op = "keys"
	OpFlush  Op = "flush"
)

// Storage wraps a cachecore.Storage and counts calls per physical key.
type Storage struct {
	inner  cachecore.Storage
	mu     sync.Mutex
	counts map[Op]map[string]int
}

var _ cachecore.Storage = (*Storage)(nil)

// NewStorage wraps inner, or a fresh memory storage when inner is nil.
func NewStorage(inner cachecore.Storage) *Storage {
	if inner == nil {
		inner = memorycache.New(memorycache.Config{})
	}
	return &Storage{inner: inner, counts: make(map[Op]map[string]int)}
}

func (s *Storage) Kind() cachecore.Kind { return s.inner.Kind() }

func (s *Storage) Read(ctx context.Context, key string) ([]byte, bool, error) {
	s.bump(OpRead, key)
	return s.inner.Read(ctx, key)
}

func (s *Storage) Write(ctx context.Context, key string, raw []byte) error {
	s.bump(OpWrite, key)
	return s.inner.Write(ctx, key, raw)
}

func (s *Storage) Delete(ctx context.Context, key string) error {
	s.bump(OpDelete, key)
	return s.inner.Delete(ctx, key)
}

func (s *Storage) Keys(ctx context.Context) ([]string, error) {
	s.bump(OpKeys, "")
	return s.inner.Keys(ctx)
}

func (s *Storage) Flush(ctx context.Context) error {
	s.bump(OpFlush, "")
	return s.inner.Flush(ctx)
}

func (s *Storage) Close() error { return s.inner.Close() }

// Count returns calls for op+key.
func (s *Storage) Count(op Op, key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[op][key]
}

// Total returns calls for op across keys.
func (s *Storage) Total(op Op) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	var sum int
	for _, v := range s.counts[op] {
		sum += v
	}
	return sum
}

// Reset clears recorded counts.
func (s *Storage) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts = make(map[Op]map[string]int)
}

func (s *Storage) bump(op Op, key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.counts[op] == nil {
		s.counts[op] = make(map[string]int)
	}
	s.counts[op][key]++
}

// Fake bundles a memory-only cache with a Recorder and counting storage.
type Fake struct {
	cache    *hybridcache.Cache
	recorder *Recorder
	storage  *Storage
}

// New builds a single-backend memory cache for tests and closes it when t ends.
func New(t *testing.T, opts ...hybridcache.Option) *Fake {
	t.Helper()
	rec := NewRecorder()
	st := NewStorage(nil)
	all := append([]hybridcache.Option{
		hybridcache.WithStorage(cachecore.KindMemory, st),
		hybridcache.WithObserver(rec),
	}, opts...)
	c, err := hybridcache.New(context.Background(), hybridcache.Config{
		Backends: []hybridcache.BackendConfig{{Kind: cachecore.KindMemory}},
	}, all...)
	if err != nil {
		t.Fatalf("cachefake: new cache: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return &Fake{cache: c, recorder: rec, storage: st}
}

// Cache returns the cache to inject into code under test.
func (f *Fake) Cache() *hybridcache.Cache { return f.cache }

// Recorder returns the attached event recorder.
func (f *Fake) Recorder() *Recorder { return f.recorder }

// Storage returns the counting storage behind the memory backend.
func (f *Fake) Storage() *Storage { return f.storage }
