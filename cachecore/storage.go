package cachecore

import (
	"context"
	"errors"
)

var (
	// ErrValueTooLarge is returned when a single record exceeds a backend's per-value limit.
	ErrValueTooLarge = errors.New("cache: value exceeds max size")
	// ErrCapacityExceeded is returned when eviction could not free enough room for a write.
	ErrCapacityExceeded = errors.New("cache: backend capacity exceeded")
	// ErrClosed is returned by storages used after Close.
	ErrClosed = errors.New("cache: storage closed")
)

// Storage is the physical byte store behind a managed backend.
// Implementations must round-trip the bytes given to Write exactly.
// Expiry, capacity and eviction are owned by the caller.
type Storage interface {
	Kind() Kind
	Read(ctx context.Context, key string) ([]byte, bool, error)
	Write(ctx context.Context, key string, raw []byte) error
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context) ([]string, error)
	Flush(ctx context.Context) error
	Close() error
}

// Prober is implemented by storages that can report whether they are usable.
type Prober interface {
	Probe(ctx context.Context) error
}

// Probe checks s when it implements Prober.
func Probe(ctx context.Context, s Storage) error {
	if p, ok := s.(Prober); ok {
		return p.Probe(ctx)
	}
	return nil
}

// CloneBytes returns an independent copy of b.
func CloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
