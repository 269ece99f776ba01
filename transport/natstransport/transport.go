// Package natstransport carries cache sync messages over NATS core pub/sub.
package natstransport

import (
	"context"
	"errors"
	"sync"

	"github.com/nats-io/nats.go"

	"github.com/goforj/hybridcache/transport"
)

const defaultSubject = "hybridcache.sync"

// Config configures a NATS transport. Conn wins over URL; a connection
// dialled from URL is owned and closed by the transport.
type Config struct {
	Conn    *nats.Conn
	URL     string
	Subject string
	Options []nats.Option
}

// Transport publishes and subscribes on one subject.
type Transport struct {
	conn    *nats.Conn
	owned   bool
	subject string

	mu     sync.Mutex
	sub    *nats.Subscription
	closed bool
}

var _ transport.Transport = (*Transport)(nil)

// New connects (when needed) and returns a transport on cfg.Subject.
// @group Constructors
//
// Example: share a connection
//
//	nc, _ := nats.Connect(nats.DefaultURL)
//	tr, err := natstransport.New(natstransport.Config{Conn: nc})
//	fmt.Println(err == nil) // true
func New(cfg Config) (*Transport, error) {
	subject := cfg.Subject
	if subject == "" {
		subject = defaultSubject
	}
	t := &Transport{conn: cfg.Conn, subject: subject}
	if t.conn == nil {
		url := cfg.URL
		if url == "" {
			url = nats.DefaultURL
		}
		nc, err := nats.Connect(url, cfg.Options...)
		if err != nil {
			return nil, err
		}
		t.conn, t.owned = nc, true
	}
	return t, nil
}

func (t *Transport) Publish(_ context.Context, payload []byte) error {
	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return transport.ErrClosed
	}
	return t.conn.Publish(t.subject, payload)
}

// Subscribe replaces any previous subscription. Messages are delivered on the
// subscription's goroutine, in order.
func (t *Transport) Subscribe(h transport.Handler) error {
	if h == nil {
		return errors.New("natstransport: nil handler")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return transport.ErrClosed
	}
	if t.sub != nil {
		_ = t.sub.Unsubscribe()
	}
	sub, err := t.conn.Subscribe(t.subject, func(m *nats.Msg) {
		h(context.Background(), m.Data)
	})
	if err != nil {
		return err
	}
	t.sub = sub
	return t.conn.Flush()
}

func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	var err error
	if t.sub != nil {
		err = t.sub.Unsubscribe()
	}
	if t.owned {
		t.conn.Close()
	}
	return err
}
