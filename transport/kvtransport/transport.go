// Package kvtransport is the storage-event fallback for cache sync. It writes
// each payload to a sentinel key in a NATS JetStream KeyValue bucket and
// deletes it straight away, so peers watching the key see the put and the
// bucket holds no residue.
package kvtransport

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/nats-io/nats.go"

	"github.com/goforj/hybridcache/transport"
)

const defaultKey = "hybridcache-sync"

// KeyValue captures the subset of nats.KeyValue used by the transport.
type KeyValue interface {
	Put(key string, value []byte) (uint64, error)
	Delete(key string, opts ...nats.DeleteOpt) error
	Watch(keys string, opts ...nats.WatchOpt) (nats.KeyWatcher, error)
}

// Config configures a KV transport.
type Config struct {
	KeyValue KeyValue
	// Key is the sentinel key. Defaults to "hybridcache-sync".
	Key string
}

// Transport implements transport.Transport over a KV sentinel key.
type Transport struct {
	kv  KeyValue
	key string

	mu      sync.Mutex
	watcher nats.KeyWatcher
	done    chan struct{}
	wg      sync.WaitGroup
	closed  atomic.Bool
}

var _ transport.Transport = (*Transport)(nil)

// New returns a transport on cfg.KeyValue.
// @group Constructors
//
// Example: sentinel key in a JetStream bucket
//
//	js, _ := nc.JetStream()
//	kv, _ := js.CreateKeyValue(&nats.KeyValueConfig{Bucket: "cache_sync"})
//	tr, err := kvtransport.New(kvtransport.Config{KeyValue: kv})
//	fmt.Println(err == nil) // true
func New(cfg Config) (*Transport, error) {
	if cfg.KeyValue == nil {
		return nil, errors.New("kvtransport: key value bucket is required")
	}
	key := cfg.Key
	if key == "" {
		key = defaultKey
	}
	return &Transport{kv: cfg.KeyValue, key: key}, nil
}

// Publish puts the payload on the sentinel key and removes it again.
func (t *Transport) Publish(_ context.Context, payload []byte) error {
	if t.closed.Load() {
		return transport.ErrClosed
	}
	if _, err := t.kv.Put(t.key, payload); err != nil {
		return err
	}
	return t.kv.Delete(t.key)
}

// Subscribe watches the sentinel key for new puts. Deletes are ignored.
func (t *Transport) Subscribe(h transport.Handler) error {
	if h == nil {
		return errors.New("kvtransport: nil handler")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed.Load() {
		return transport.ErrClosed
	}
	t.stopLocked()

	w, err := t.kv.Watch(t.key, nats.UpdatesOnly())
	if err != nil {
		return err
	}
	t.watcher = w
	t.done = make(chan struct{})
	t.wg.Add(1)
	go t.loop(w, t.done, h)
	return nil
}

func (t *Transport) loop(w nats.KeyWatcher, done <-chan struct{}, h transport.Handler) {
	defer t.wg.Done()
	updates := w.Updates()
	for {
		select {
		case <-done:
			return
		case entry, ok := <-updates:
			if !ok {
				return
			}
			// nil marks the end of initial values.
			if entry == nil || entry.Operation() != nats.KeyValuePut {
				continue
			}
			h(context.Background(), entry.Value())
		}
	}
}

func (t *Transport) stopLocked() {
	if t.watcher == nil {
		return
	}
	close(t.done)
	_ = t.watcher.Stop()
	t.wg.Wait()
	t.watcher = nil
}

func (t *Transport) Close() error {
	if !t.closed.CompareAndSwap(false, true) {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopLocked()
	return nil
}
