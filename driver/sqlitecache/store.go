// Package sqlitecache registers the modernc.org/sqlite driver and builds the
// default database storage.
package sqlitecache

import (
	"github.com/goforj/hybridcache/cachecore"
	"github.com/goforj/hybridcache/driver/sqlcore"
	_ "modernc.org/sqlite"
)

// Config configures a sqlite-backed storage.
type Config struct {
	DSN   string
	Table string
}

// New builds a sqlite-backed cachecore.Storage.
func New(cfg Config) (cachecore.Storage, error) {
	return sqlcore.New(sqlcore.Config{
		DriverName: "sqlite",
		DSN:        cfg.DSN,
		Table:      cfg.Table,
	})
}
