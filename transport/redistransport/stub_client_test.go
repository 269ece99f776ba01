package redistransport

import (
	"context"
	"errors"
	"sync"

	"github.com/redis/go-redis/v9"
)

// stubBroker fans published messages out to stub subscriptions.
type stubBroker struct {
	mu         sync.Mutex
	subs       map[string][]*stubSub
	publishErr error
	receiveErr error
}

func newStubBroker() *stubBroker {
	return &stubBroker{subs: make(map[string][]*stubSub)}
}

func (b *stubBroker) Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx)
	if b.publishErr != nil {
		cmd.SetErr(b.publishErr)
		return cmd
	}
	var payload string
	switch v := message.(type) {
	case []byte:
		payload = string(v)
	case string:
		payload = v
	}
	b.mu.Lock()
	subs := append([]*stubSub(nil), b.subs[channel]...)
	b.mu.Unlock()
	for _, s := range subs {
		s.deliver(&redis.Message{Channel: channel, Payload: payload})
	}
	cmd.SetVal(int64(len(subs)))
	return cmd
}

// Subscribe is unused by the stub; tests install subscribeStub instead.
func (b *stubBroker) Subscribe(context.Context, ...string) *redis.PubSub {
	return nil
}

func (b *stubBroker) subscribeStub(_ context.Context, channel string) subscription {
	s := &stubSub{broker: b, channel: channel, msgs: make(chan *redis.Message, 16), receiveErr: b.receiveErr}
	if s.receiveErr == nil {
		b.mu.Lock()
		b.subs[channel] = append(b.subs[channel], s)
		b.mu.Unlock()
	}
	return s
}

type stubSub struct {
	broker     *stubBroker
	channel    string
	msgs       chan *redis.Message
	receiveErr error

	mu     sync.Mutex
	closed bool
}

func (s *stubSub) deliver(m *redis.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.msgs <- m
	}
}

func (s *stubSub) Receive(context.Context) (interface{}, error) {
	if s.receiveErr != nil {
		return nil, s.receiveErr
	}
	return &redis.Subscription{Kind: "subscribe", Channel: s.channel, Count: 1}, nil
}

func (s *stubSub) Channel(...redis.ChannelOption) <-chan *redis.Message { return s.msgs }

func (s *stubSub) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("already closed")
	}
	s.closed = true
	close(s.msgs)
	b := s.broker
	b.mu.Lock()
	list := b.subs[s.channel]
	for i, other := range list {
		if other == s {
			b.subs[s.channel] = append(list[:i], list[i+1:]...)
			break
		}
	}
	b.mu.Unlock()
	return nil
}
