// Package transport defines the broadcast port used by the cache sync channel
// and provides an in-process hub and a no-op implementation. Network
// transports live in subpackages.
package transport

import (
	"context"
	"errors"
)

// Handler receives one published payload.
type Handler func(ctx context.Context, payload []byte)

// Transport delivers opaque payloads to every other subscriber. Delivery is
// best effort; implementations may drop messages but must not reorder
// messages from a single publisher.
type Transport interface {
	Publish(ctx context.Context, payload []byte) error
	// Subscribe installs the handler for incoming payloads. Calling it again
	// replaces the previous handler.
	Subscribe(h Handler) error
	Close() error
}

// ErrClosed is returned by transports used after Close.
var ErrClosed = errors.New("transport: closed")

// Nop drops every payload. It stands in when no transport is configured.
type Nop struct{}

var _ Transport = Nop{}

func (Nop) Publish(context.Context, []byte) error { return nil }
func (Nop) Subscribe(Handler) error               { return nil }
func (Nop) Close() error                          { return nil }
