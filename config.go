package hybridcache

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/goforj/hybridcache/cachecore"
	"github.com/goforj/hybridcache/eviction"
	"github.com/goforj/hybridcache/selector"
)

const (
	defaultCleanupInterval = time.Minute
	defaultEviction        = eviction.LRU
	defaultPingInterval    = 30 * time.Second

	kib = 1024
	mib = 1024 * kib
)

// Config controls how a Cache is constructed. Backends are attempted in
// order and that order is the read priority.
type Config struct {
	Backends        []BackendConfig `koanf:"backends" json:"backends" validate:"dive"`
	DefaultBackend  cachecore.Kind  `koanf:"default_backend" json:"default_backend" validate:"omitempty,oneof=memory persistent session cookie database"`
	KeyPrefix       string          `koanf:"key_prefix" json:"key_prefix"`
	DefaultTTL      time.Duration   `koanf:"default_ttl" json:"default_ttl" validate:"gte=0"`
	CleanupInterval time.Duration   `koanf:"cleanup_interval" json:"cleanup_interval" validate:"gte=0"`
	// Serializer is json (default), msgpack or cbor.
	Serializer string `koanf:"serializer" json:"serializer" validate:"omitempty,oneof=json msgpack cbor"`
	// CompressAbove gzips encoded payloads of at least this many bytes. Zero disables compression.
	CompressAbove int            `koanf:"compress_above" json:"compress_above" validate:"gte=0"`
	Strategy      StrategyConfig `koanf:"strategy" json:"strategy"`
	Sync          SyncConfig     `koanf:"sync" json:"sync"`
	Debug         bool           `koanf:"debug" json:"debug"`
}

// BackendConfig describes one backend. Zero limits take per-kind defaults;
// negative limits disable the bound.
type BackendConfig struct {
	Kind            cachecore.Kind  `koanf:"kind" json:"kind" validate:"required,oneof=memory persistent session cookie database"`
	MaxSize         int64           `koanf:"max_size" json:"max_size"`
	MaxItems        int             `koanf:"max_items" json:"max_items"`
	Eviction        eviction.Policy `koanf:"eviction" json:"eviction" validate:"omitempty,oneof=lru lfu fifo mru random ttl arc"`
	CleanupInterval time.Duration   `koanf:"cleanup_interval" json:"cleanup_interval" validate:"gte=0"`

	// persistent
	Dir string `koanf:"dir" json:"dir"`
	// database
	SQLDriver string `koanf:"sql_driver" json:"sql_driver" validate:"omitempty,oneof=sqlite pgx postgres mysql"`
	DSN       string `koanf:"dsn" json:"dsn"`
	Table     string `koanf:"table" json:"table"`
	// session
	Shards int `koanf:"shards" json:"shards" validate:"gte=0"`
	// cookie
	CookiePath   string `koanf:"cookie_path" json:"cookie_path"`
	CookieDomain string `koanf:"cookie_domain" json:"cookie_domain"`
	CookieSecure bool   `koanf:"cookie_secure" json:"cookie_secure"`
}

// StrategyConfig controls automatic backend selection on writes.
type StrategyConfig struct {
	Enabled        bool                    `koanf:"enabled" json:"enabled"`
	EnginePriority []cachecore.Kind        `koanf:"engine_priority" json:"engine_priority" validate:"dive,oneof=memory persistent session cookie database"`
	SizeThresholds selector.SizeThresholds `koanf:"size_thresholds" json:"size_thresholds"`
	TTLThresholds  selector.TTLThresholds  `koanf:"ttl_thresholds" json:"ttl_thresholds"`
}

// ConflictPolicy decides how a replayed remote write meets a local record.
type ConflictPolicy string

const (
	// ConflictArrivalWins applies every remote write in arrival order.
	ConflictArrivalWins ConflictPolicy = "arrival"
	// ConflictTimestampWins skips remote writes older than the local record.
	ConflictTimestampWins ConflictPolicy = "timestamp"
)

// SyncConfig controls cross-instance invalidation.
type SyncConfig struct {
	Enabled bool `koanf:"enabled" json:"enabled"`
	// Backends whose writes are visible to other instances. Defaults to persistent and session.
	Backends []cachecore.Kind `koanf:"backends" json:"backends" validate:"dive,oneof=memory persistent session cookie database"`
	Debounce time.Duration    `koanf:"debounce" json:"debounce" validate:"gte=0"`
	// PingInterval defaults to 30s; a negative value disables pings.
	PingInterval time.Duration  `koanf:"ping_interval" json:"ping_interval"`
	CatchUp      bool           `koanf:"catch_up" json:"catch_up"`
	Conflict     ConflictPolicy `koanf:"conflict" json:"conflict" validate:"omitempty,oneof=arrival timestamp"`
}

// DefaultConfig returns every backend kind in default priority order.
func DefaultConfig() Config {
	kinds := cachecore.Kinds()
	backends := make([]BackendConfig, 0, len(kinds))
	for _, k := range kinds {
		backends = append(backends, BackendConfig{Kind: k})
	}
	return Config{
		Backends:        backends,
		DefaultBackend:  cachecore.KindMemory,
		CleanupInterval: defaultCleanupInterval,
		Strategy:        StrategyConfig{Enabled: true},
	}.withDefaults()
}

func (c Config) withDefaults() Config {
	if len(c.Backends) == 0 {
		c.Backends = []BackendConfig{{Kind: cachecore.KindMemory}}
	}
	backends := make([]BackendConfig, len(c.Backends))
	for i, b := range c.Backends {
		backends[i] = b.withDefaults()
	}
	c.Backends = backends
	if c.Serializer == "" {
		c.Serializer = "json"
	}
	if c.Strategy.SizeThresholds == (selector.SizeThresholds{}) {
		c.Strategy.SizeThresholds = selector.DefaultSizeThresholds()
	}
	if c.Strategy.TTLThresholds == (selector.TTLThresholds{}) {
		c.Strategy.TTLThresholds = selector.DefaultTTLThresholds()
	}
	if len(c.Sync.Backends) == 0 {
		c.Sync.Backends = []cachecore.Kind{cachecore.KindPersistent, cachecore.KindSession}
	}
	if c.Sync.PingInterval == 0 {
		c.Sync.PingInterval = defaultPingInterval
	}
	if c.Sync.Conflict == "" {
		c.Sync.Conflict = ConflictArrivalWins
	}
	return c
}

func (b BackendConfig) withDefaults() BackendConfig {
	if b.Eviction == "" {
		b.Eviction = defaultEviction
	}
	maxSize, maxItems := kindLimits(b.Kind)
	if b.MaxSize == 0 {
		b.MaxSize = maxSize
	}
	if b.MaxItems == 0 {
		b.MaxItems = maxItems
	}
	if b.Kind == cachecore.KindDatabase && b.SQLDriver == "" {
		b.SQLDriver = "sqlite"
	}
	return b
}

// kindLimits returns the default byte and item bounds for a backend kind.
func kindLimits(k cachecore.Kind) (int64, int) {
	switch k {
	case cachecore.KindMemory:
		return 50 * mib, 1000
	case cachecore.KindPersistent:
		return 10 * mib, -1
	case cachecore.KindSession:
		return 5 * mib, -1
	case cachecore.KindCookie:
		return 50 * 4 * kib, 50
	case cachecore.KindDatabase:
		return 500 * mib, -1
	}
	return -1, -1
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks struct tags and cross-field rules.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("cache: invalid config: %w", err)
	}
	seen := make(map[cachecore.Kind]bool, len(c.Backends))
	for _, b := range c.Backends {
		if seen[b.Kind] {
			return fmt.Errorf("cache: invalid config: backend %q configured twice", b.Kind)
		}
		seen[b.Kind] = true
	}
	if c.DefaultBackend != "" && len(c.Backends) > 0 && !seen[c.DefaultBackend] {
		return fmt.Errorf("cache: invalid config: default backend %q is not configured", c.DefaultBackend)
	}
	if t := c.Strategy.SizeThresholds; t.Small > 0 && t.Medium > 0 && t.Small > t.Medium {
		return errors.New("cache: invalid config: size thresholds must be ascending")
	}
	if t := c.Strategy.TTLThresholds; t.Short > 0 && t.Long > 0 && t.Short > t.Long {
		return errors.New("cache: invalid config: ttl thresholds must be ascending")
	}
	return nil
}

func (c Config) priority() []cachecore.Kind {
	if len(c.Strategy.EnginePriority) > 0 {
		return c.Strategy.EnginePriority
	}
	out := make([]cachecore.Kind, 0, len(c.Backends))
	for _, b := range c.Backends {
		out = append(out, b.Kind)
	}
	return out
}

func (c Config) synced(k cachecore.Kind) bool {
	for _, s := range c.Sync.Backends {
		if s == k {
			return true
		}
	}
	return false
}
