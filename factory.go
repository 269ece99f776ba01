package hybridcache

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/goforj/hybridcache/cachecore"
	"github.com/goforj/hybridcache/codec"
	"github.com/goforj/hybridcache/driver/cookiecache"
	"github.com/goforj/hybridcache/driver/filecache"
	"github.com/goforj/hybridcache/driver/memorycache"
	"github.com/goforj/hybridcache/driver/mysqlcache"
	"github.com/goforj/hybridcache/driver/postgrescache"
	"github.com/goforj/hybridcache/driver/sessioncache"
	"github.com/goforj/hybridcache/driver/sqlitecache"
)

func defaultDatabaseDSN() string {
	return filepath.Join(os.TempDir(), "hybridcache.db")
}

// NewStorage builds the physical storage described by cfg.
// Callers own the returned storage and must Close it.
// @group Constructors
//
// Example: sqlite database storage
//
//	storage, err := hybridcache.NewStorage(hybridcache.BackendConfig{
//		Kind: cachecore.KindDatabase,
//		DSN:  "/var/lib/app/cache.db",
//	})
//	fmt.Println(err == nil, storage.Kind()) // true database
func NewStorage(cfg BackendConfig) (cachecore.Storage, error) {
	cfg = cfg.withDefaults()
	switch cfg.Kind {
	case cachecore.KindMemory:
		return memorycache.New(memorycache.Config{}), nil
	case cachecore.KindPersistent:
		return filecache.New(filecache.Config{Dir: cfg.Dir}), nil
	case cachecore.KindSession:
		return sessioncache.New(sessioncache.Config{Shards: cfg.Shards})
	case cachecore.KindCookie:
		return cookiecache.New(cookiecache.Config{
			Path:   cfg.CookiePath,
			Domain: cfg.CookieDomain,
			Secure: cfg.CookieSecure,
		}), nil
	case cachecore.KindDatabase:
		switch cfg.SQLDriver {
		case "pgx", "postgres":
			return postgrescache.New(postgrescache.Config{DSN: cfg.DSN, Table: cfg.Table})
		case "mysql":
			return mysqlcache.New(mysqlcache.Config{DSN: cfg.DSN, Table: cfg.Table})
		default:
			dsn := cfg.DSN
			if dsn == "" {
				dsn = defaultDatabaseDSN()
			}
			return sqlitecache.New(sqlitecache.Config{DSN: dsn, Table: cfg.Table})
		}
	}
	return nil, fmt.Errorf("cache: unknown backend kind %q", cfg.Kind)
}

func newSerializer(cfg Config) (codec.Serializer, error) {
	var s codec.Serializer
	switch cfg.Serializer {
	case "", "json":
		s = codec.JSON{}
	case "msgpack":
		s = codec.Msgpack{}
	case "cbor":
		cb, err := codec.NewCBOR(true)
		if err != nil {
			return nil, err
		}
		s = cb
	default:
		return nil, fmt.Errorf("cache: unknown serializer %q", cfg.Serializer)
	}
	if cfg.CompressAbove > 0 {
		s = codec.Gzip(s, cfg.CompressAbove)
	}
	return s, nil
}
