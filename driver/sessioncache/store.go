// Package sessioncache provides the session-scoped storage on allegro/bigcache.
// Contents live exactly as long as the storage instance; Close discards them.
package sessioncache

import (
	"context"
	"errors"
	"sort"
	"time"

	bc "github.com/allegro/bigcache/v3"
	"github.com/goforj/hybridcache/cachecore"
)

// sessionLifeWindow keeps bigcache from ever expiring entries on its own.
const sessionLifeWindow = 100 * 365 * 24 * time.Hour

// Config configures the session storage.
type Config struct {
	// Shards must be a power of two. Defaults to 64.
	Shards int
	// MaxEntrySize is a sizing hint in bytes for shard allocation.
	MaxEntrySize int
}

type store struct {
	c *bc.BigCache
}

// New builds a session storage.
func New(cfg Config) (cachecore.Storage, error) {
	conf := bc.DefaultConfig(sessionLifeWindow)
	conf.Shards = 64
	if cfg.Shards > 0 {
		conf.Shards = cfg.Shards
	}
	if cfg.MaxEntrySize > 0 {
		conf.MaxEntrySize = cfg.MaxEntrySize
	}
	conf.CleanWindow = 0
	conf.Verbose = false
	c, err := bc.NewBigCache(conf)
	if err != nil {
		return nil, err
	}
	return &store{c: c}, nil
}

func (s *store) Kind() cachecore.Kind { return cachecore.KindSession }

func (s *store) Read(_ context.Context, key string) ([]byte, bool, error) {
	b, err := s.c.Get(key)
	if errors.Is(err, bc.ErrEntryNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func (s *store) Write(_ context.Context, key string, raw []byte) error {
	return s.c.Set(key, raw)
}

func (s *store) Delete(_ context.Context, key string) error {
	if err := s.c.Delete(key); err != nil && !errors.Is(err, bc.ErrEntryNotFound) {
		return err
	}
	return nil
}

func (s *store) Keys(context.Context) ([]string, error) {
	keys := make([]string, 0, s.c.Len())
	it := s.c.Iterator()
	for it.SetNext() {
		info, err := it.Value()
		if err != nil {
			continue
		}
		keys = append(keys, info.Key())
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *store) Flush(context.Context) error {
	return s.c.Reset()
}

// Close ends the session: contents are discarded.
func (s *store) Close() error {
	_ = s.c.Reset()
	return s.c.Close()
}
