// Package memorycache provides the volatile in-process storage on patrickmn/go-cache.
package memorycache

import (
	"context"
	"sort"

	"github.com/goforj/hybridcache/cachecore"
	gocache "github.com/patrickmn/go-cache"
)

// Config configures the in-process storage. It has no options yet; it exists
// so the constructor signature matches the other drivers.
type Config struct{}

type store struct {
	cache *gocache.Cache
}

// New builds a memory storage. Entries never expire natively; record expiry is
// enforced by the managed backend.
func New(Config) cachecore.Storage {
	return &store{cache: gocache.New(gocache.NoExpiration, 0)}
}

func (s *store) Kind() cachecore.Kind { return cachecore.KindMemory }

func (s *store) Read(_ context.Context, key string) ([]byte, bool, error) {
	item, ok := s.cache.Get(key)
	if !ok {
		return nil, false, nil
	}
	body, ok := item.([]byte)
	if !ok {
		return nil, false, nil
	}
	return cachecore.CloneBytes(body), true, nil
}

func (s *store) Write(_ context.Context, key string, raw []byte) error {
	s.cache.Set(key, cachecore.CloneBytes(raw), gocache.NoExpiration)
	return nil
}

func (s *store) Delete(_ context.Context, key string) error {
	s.cache.Delete(key)
	return nil
}

func (s *store) Keys(context.Context) ([]string, error) {
	items := s.cache.Items()
	keys := make([]string, 0, len(items))
	for k := range items {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *store) Flush(context.Context) error {
	s.cache.Flush()
	return nil
}

func (s *store) Close() error {
	s.cache.Flush()
	return nil
}
