package sqlcore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/goforj/hybridcache/cachecore"
)

const defaultTable = "cache_entries"

var sqlIdentPartRE = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Config configures a SQL-backed storage.
type Config struct {
	// DriverName is the database/sql driver: sqlite, pgx, postgres or mysql.
	DriverName string
	DSN        string
	// Table defaults to cache_entries. Dotted schema names are allowed.
	Table string
	// DB reuses an existing pool instead of opening DSN. The storage does not
	// close an injected pool.
	DB *sql.DB
}

type sqlStore struct {
	db         *sql.DB
	ownsDB     bool
	table      string
	driverName string
	getStmt    *sql.Stmt
	upsertStmt *sql.Stmt
	deleteStmt *sql.Stmt
	keysStmt   *sql.Stmt
	flushStmt  *sql.Stmt
}

// New opens (or adopts) a pool, creates the table when missing and prepares
// the statements used by the storage.
func New(cfg Config) (cachecore.Storage, error) {
	if cfg.DriverName == "" {
		return nil, errors.New("sqlcore: driver name is required")
	}
	db := cfg.DB
	owns := false
	if db == nil {
		if cfg.DSN == "" {
			return nil, errors.New("sqlcore: dsn is required")
		}
		var err error
		if db, err = sql.Open(cfg.DriverName, cfg.DSN); err != nil {
			return nil, err
		}
		owns = true
	}
	table := cfg.Table
	if table == "" {
		table = defaultTable
	}
	s := &sqlStore{db: db, ownsDB: owns, table: table, driverName: cfg.DriverName}
	if err := s.init(); err != nil {
		if owns {
			_ = db.Close()
		}
		return nil, err
	}
	return s, nil
}

func (s *sqlStore) init() error {
	if err := validateSQLTableName(s.table); err != nil {
		return err
	}
	if err := s.db.Ping(); err != nil {
		return err
	}
	if err := s.ensureSchema(); err != nil {
		return err
	}
	return s.prepareStatements()
}

func (s *sqlStore) Kind() cachecore.Kind { return cachecore.KindDatabase }

func (s *sqlStore) Probe(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *sqlStore) ensureSchema() error {
	var stmt string
	switch s.driverName {
	case "postgres", "pgx":
		stmt = fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			k TEXT PRIMARY KEY,
			v BYTEA NOT NULL,
			ua BIGINT NOT NULL
		);`, s.table)
	case "mysql":
		stmt = fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			k VARBINARY(767) PRIMARY KEY,
			v LONGBLOB NOT NULL,
			ua BIGINT NOT NULL
		) ENGINE=InnoDB;`, s.table)
	default: // sqlite
		stmt = fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			k TEXT PRIMARY KEY,
			v BLOB NOT NULL,
			ua INTEGER NOT NULL
		);`, s.table)
	}
	_, err := s.db.Exec(stmt)
	return err
}

func (s *sqlStore) Read(ctx context.Context, key string) ([]byte, bool, error) {
	var v []byte
	err := s.getStmt.QueryRowContext(ctx, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return cachecore.CloneBytes(v), true, nil
}

func (s *sqlStore) Write(ctx context.Context, key string, raw []byte) error {
	ua := time.Now().UnixMilli()
	_, err := s.upsertStmt.ExecContext(ctx, key, raw, ua, raw, ua)
	return err
}

func (s *sqlStore) Delete(ctx context.Context, key string) error {
	_, err := s.deleteStmt.ExecContext(ctx, key)
	return err
}

func (s *sqlStore) Keys(ctx context.Context) ([]string, error) {
	rows, err := s.keysStmt.QueryContext(ctx)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func (s *sqlStore) Flush(ctx context.Context) error {
	_, err := s.flushStmt.ExecContext(ctx)
	return err
}

func (s *sqlStore) Close() error {
	var errs []error
	for _, st := range []*sql.Stmt{s.getStmt, s.upsertStmt, s.deleteStmt, s.keysStmt, s.flushStmt} {
		if st != nil {
			errs = append(errs, st.Close())
		}
	}
	if s.ownsDB {
		errs = append(errs, s.db.Close())
	}
	return errors.Join(errs...)
}

func (s *sqlStore) upsertSQL() string {
	// Placeholders must be positional for postgres/pgx.
	p1, p2, p3, p4, p5 := s.ph(1), s.ph(2), s.ph(3), s.ph(4), s.ph(5)
	switch s.driverName {
	case "postgres", "pgx":
		return fmt.Sprintf("INSERT INTO %s (k, v, ua) VALUES (%s, %s, %s) ON CONFLICT (k) DO UPDATE SET v = %s, ua = %s", s.table, p1, p2, p3, p4, p5)
	case "mysql":
		return fmt.Sprintf("INSERT INTO %s (k, v, ua) VALUES (%s, %s, %s) ON DUPLICATE KEY UPDATE v = %s, ua = %s", s.table, p1, p2, p3, p4, p5)
	default: // sqlite
		return fmt.Sprintf("INSERT INTO %s (k, v, ua) VALUES (%s, %s, %s) ON CONFLICT(k) DO UPDATE SET v = %s, ua = %s", s.table, p1, p2, p3, p4, p5)
	}
}

func (s *sqlStore) getSQL() string {
	return fmt.Sprintf("SELECT v FROM %s WHERE k = %s", s.table, s.ph(1))
}

func (s *sqlStore) deleteSQL() string {
	return fmt.Sprintf("DELETE FROM %s WHERE k = %s", s.table, s.ph(1))
}

func (s *sqlStore) keysSQL() string {
	return fmt.Sprintf("SELECT k FROM %s ORDER BY k", s.table)
}

func (s *sqlStore) flushSQL() string {
	return fmt.Sprintf("DELETE FROM %s", s.table)
}

func (s *sqlStore) prepareStatements() error {
	var err error
	if s.getStmt, err = s.db.Prepare(s.getSQL()); err != nil {
		return err
	}
	if s.upsertStmt, err = s.db.Prepare(s.upsertSQL()); err != nil {
		return err
	}
	if s.deleteStmt, err = s.db.Prepare(s.deleteSQL()); err != nil {
		return err
	}
	if s.keysStmt, err = s.db.Prepare(s.keysSQL()); err != nil {
		return err
	}
	if s.flushStmt, err = s.db.Prepare(s.flushSQL()); err != nil {
		return err
	}
	return nil
}

func (s *sqlStore) ph(i int) string {
	if s.driverName == "postgres" || s.driverName == "pgx" {
		return fmt.Sprintf("$%d", i)
	}
	return "?"
}

func validateSQLTableName(name string) error {
	if strings.TrimSpace(name) == "" {
		return errors.New("sqlcore: table name is required")
	}
	for _, part := range strings.Split(name, ".") {
		if !sqlIdentPartRE.MatchString(part) {
			return fmt.Errorf("sqlcore: invalid table name %q", name)
		}
	}
	return nil
}
