package hybridcache

import (
	"context"

	"github.com/goforj/hybridcache/cachecore"
)

// Stats aggregates orchestrator counters and per-backend snapshots.
type Stats struct {
	Hits        uint64                          `json:"hits"`
	Misses      uint64                          `json:"misses"`
	HitRate     float64                         `json:"hit_rate"`
	Backends    map[cachecore.Kind]BackendStats `json:"backends"`
	Unavailable map[cachecore.Kind]string       `json:"unavailable,omitempty"`
	// SyncDropped counts messages discarded by anti-echo.
	SyncDropped uint64 `json:"sync_dropped"`
}

// Stats reports hit counters for the whole cache and each live backend.
// HitRate is zero before any Get.
func (c *Cache) Stats(context.Context) Stats {
	hits, misses := c.hits.Load(), c.misses.Load()
	out := Stats{
		Hits:     hits,
		Misses:   misses,
		HitRate:  hitRate(hits, misses),
		Backends: make(map[cachecore.Kind]BackendStats),
	}
	for _, b := range c.reg.live() {
		out.Backends[b.Kind()] = b.Stats()
	}
	if len(c.reg.unavailable) > 0 {
		out.Unavailable = make(map[cachecore.Kind]string, len(c.reg.unavailable))
		for k, err := range c.reg.unavailable {
			out.Unavailable[k] = err.Error()
		}
	}
	if c.sync != nil {
		out.SyncDropped = c.sync.Dropped()
	}
	return out
}
