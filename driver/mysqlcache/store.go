package mysqlcache

import (
	_ "github.com/go-sql-driver/mysql"
	"github.com/goforj/hybridcache/cachecore"
	"github.com/goforj/hybridcache/driver/sqlcore"
)

// Config configures a mysql-backed storage.
type Config struct {
	DSN   string
	Table string
}

// New builds a mysql-backed cachecore.Storage.
func New(cfg Config) (cachecore.Storage, error) {
	return sqlcore.New(sqlcore.Config{
		DriverName: "mysql",
		DSN:        cfg.DSN,
		Table:      cfg.Table,
	})
}
