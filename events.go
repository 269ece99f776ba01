package hybridcache

import (
	"context"
	"sync"
	"time"

	"github.com/goforj/hybridcache/cachecore"
	"github.com/goforj/hybridcache/selector"
)

// EventType names a cache lifecycle event.
type EventType string

const (
	EventSet      EventType = "set"
	EventGet      EventType = "get"
	EventRemove   EventType = "remove"
	EventClear    EventType = "clear"
	EventExpired  EventType = "expired"
	EventError    EventType = "error"
	EventStrategy EventType = "strategy"
)

// Event describes a completed cache operation. Key is the logical key.
// Backend is empty for operations fanned out to every backend.
type Event struct {
	Type      EventType
	Key       string
	Backend   cachecore.Kind
	Op        string
	Hit       bool
	Err       error
	Duration  time.Duration
	Selection *selector.Result
	Record    *cachecore.Record
	// Remote is set when the mutation was replayed from another instance.
	Remote bool
	Time   time.Time
}

// Observer receives cache events. It is called synchronously after each
// operation completes and must not block.
type Observer interface {
	OnCacheEvent(ctx context.Context, ev Event)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(ctx context.Context, ev Event)

// OnCacheEvent implements Observer.
func (f ObserverFunc) OnCacheEvent(ctx context.Context, ev Event) {
	if f == nil {
		return
	}
	f(ctx, ev)
}

type subscription struct {
	id  uint64
	obs Observer
}

type eventBus struct {
	mu   sync.RWMutex
	next uint64
	subs []subscription
}

func (b *eventBus) subscribe(o Observer) func() {
	if o == nil {
		return func() {}
	}
	b.mu.Lock()
	b.next++
	id := b.next
	b.subs = append(b.subs, subscription{id: id, obs: o})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			for i, s := range b.subs {
				if s.id == id {
					b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
					return
				}
			}
		})
	}
}

func (b *eventBus) emit(ctx context.Context, ev Event) {
	b.mu.RLock()
	subs := b.subs
	b.mu.RUnlock()
	for _, s := range subs {
		s.obs.OnCacheEvent(ctx, ev)
	}
}
