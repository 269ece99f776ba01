package transport

import (
	"context"
	"sync"
)

const hubQueueSize = 256

// Hub connects endpoints inside one process. Each endpoint delivers its
// inbound payloads on its own goroutine, in publish order.
type Hub struct {
	mu        sync.RWMutex
	endpoints map[*Endpoint]struct{}
	loopback  bool
}

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithLoopback also delivers payloads back to the publishing endpoint.
func WithLoopback() HubOption {
	return func(h *Hub) { h.loopback = true }
}

// NewHub returns an empty hub.
func NewHub(opts ...HubOption) *Hub {
	h := &Hub{endpoints: make(map[*Endpoint]struct{})}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Endpoint attaches a new transport to the hub.
func (h *Hub) Endpoint() *Endpoint {
	e := &Endpoint{
		hub:   h,
		queue: make(chan []byte, hubQueueSize),
		done:  make(chan struct{}),
	}
	h.mu.Lock()
	h.endpoints[e] = struct{}{}
	h.mu.Unlock()
	e.wg.Add(1)
	go e.loop()
	return e
}

func (h *Hub) broadcast(from *Endpoint, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for e := range h.endpoints {
		if e == from && !h.loopback {
			continue
		}
		msg := make([]byte, len(payload))
		copy(msg, payload)
		e.enqueue(msg)
	}
}

func (h *Hub) detach(e *Endpoint) {
	h.mu.Lock()
	delete(h.endpoints, e)
	h.mu.Unlock()
}

// Endpoint is one hub member. It implements Transport.
type Endpoint struct {
	hub   *Hub
	queue chan []byte
	done  chan struct{}
	wg    sync.WaitGroup

	mu      sync.RWMutex
	handler Handler
	closed  bool
	once    sync.Once
}

var _ Transport = (*Endpoint)(nil)

func (e *Endpoint) Publish(_ context.Context, payload []byte) error {
	e.mu.RLock()
	closed := e.closed
	e.mu.RUnlock()
	if closed {
		return ErrClosed
	}
	e.hub.broadcast(e, payload)
	return nil
}

func (e *Endpoint) Subscribe(h Handler) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	e.handler = h
	return nil
}

// enqueue drops the payload when the endpoint is closed or its queue is full.
func (e *Endpoint) enqueue(payload []byte) {
	select {
	case <-e.done:
	case e.queue <- payload:
	default:
	}
}

func (e *Endpoint) loop() {
	defer e.wg.Done()
	for {
		select {
		case <-e.done:
			return
		case payload := <-e.queue:
			e.mu.RLock()
			h := e.handler
			e.mu.RUnlock()
			if h != nil {
				h(context.Background(), payload)
			}
		}
	}
}

func (e *Endpoint) Close() error {
	e.once.Do(func() {
		e.mu.Lock()
		e.closed = true
		e.mu.Unlock()
		e.hub.detach(e)
		close(e.done)
		e.wg.Wait()
	})
	return nil
}
