package postgrescache

import (
	"github.com/goforj/hybridcache/cachecore"
	"github.com/goforj/hybridcache/driver/sqlcore"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// Config configures a postgres-backed storage.
type Config struct {
	DSN   string
	Table string
}

// New builds a postgres-backed cachecore.Storage using the pgx stdlib driver.
func New(cfg Config) (cachecore.Storage, error) {
	return sqlcore.New(sqlcore.Config{
		DriverName: "pgx",
		DSN:        cfg.DSN,
		Table:      cfg.Table,
	})
}
