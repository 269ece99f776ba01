// Package redistransport carries cache sync messages over Redis pub/sub.
package redistransport

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/redis/go-redis/v9"

	"github.com/goforj/hybridcache/transport"
)

const defaultChannel = "hybridcache:sync"

// Client captures the subset of redis.Client used by the transport.
type Client interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	Subscribe(ctx context.Context, channels ...string) *redis.PubSub
}

// Config configures a Redis transport.
type Config struct {
	Client  Client
	Channel string
}

// subscription is the part of *redis.PubSub the receive loop needs.
type subscription interface {
	Receive(ctx context.Context) (interface{}, error)
	Channel(opts ...redis.ChannelOption) <-chan *redis.Message
	Close() error
}

// Transport implements transport.Transport on one Redis channel.
type Transport struct {
	client    Client
	channel   string
	subscribe func(ctx context.Context, channel string) subscription

	mu     sync.Mutex
	sub    subscription
	wg     sync.WaitGroup
	closed atomic.Bool
}

var _ transport.Transport = (*Transport)(nil)

// New returns a transport publishing on cfg.Channel.
// @group Constructors
//
// Example: redis pub/sub
//
//	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:6379"})
//	tr, err := redistransport.New(redistransport.Config{Client: rdb})
//	fmt.Println(err == nil) // true
func New(cfg Config) (*Transport, error) {
	if cfg.Client == nil {
		return nil, errors.New("redistransport: client is required")
	}
	ch := cfg.Channel
	if ch == "" {
		ch = defaultChannel
	}
	t := &Transport{client: cfg.Client, channel: ch}
	t.subscribe = func(ctx context.Context, channel string) subscription {
		return t.client.Subscribe(ctx, channel)
	}
	return t, nil
}

func (t *Transport) Publish(ctx context.Context, payload []byte) error {
	if t.closed.Load() {
		return transport.ErrClosed
	}
	return t.client.Publish(ctx, t.channel, payload).Err()
}

// Subscribe waits for the subscription to be confirmed, then delivers
// messages on a dedicated goroutine.
func (t *Transport) Subscribe(h transport.Handler) error {
	if h == nil {
		return errors.New("redistransport: nil handler")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed.Load() {
		return transport.ErrClosed
	}
	t.stopLocked()

	ctx := context.Background()
	sub := t.subscribe(ctx, t.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return err
	}
	t.sub = sub
	msgs := sub.Channel()
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		for m := range msgs {
			h(context.Background(), []byte(m.Payload))
		}
	}()
	return nil
}

func (t *Transport) stopLocked() {
	if t.sub == nil {
		return
	}
	_ = t.sub.Close()
	t.wg.Wait()
	t.sub = nil
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
