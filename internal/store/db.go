package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Config struct {
	Driver          string
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DB wraps the connection pool. Queries are written with ? placeholders and
// rebound for the active driver.
type DB struct {
	conn   *sqlx.DB
	driver string
	now    func() time.Time
}

func Open(ctx context.Context, cfg Config) (*DB, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	dsn := strings.TrimSpace(cfg.URL)
	switch driver {
	case DriverPostgres, "postgresql":
		driver = DriverPostgres
	case DriverSQLite, "sqlite3":
		driver = DriverSQLite
		dsn = sqliteDSN(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
	if dsn == "" {
		return nil, errors.New("database url is required")
	}

	conn, err := sqlx.ConnectContext(ctx, driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if driver == DriverSQLite {
		// SQLite allows a single writer.
		conn.SetMaxOpenConns(1)
	} else {
		if cfg.MaxOpenConns > 0 {
			conn.SetMaxOpenConns(cfg.MaxOpenConns)
		}
		if cfg.MaxIdleConns > 0 {
			conn.SetMaxIdleConns(cfg.MaxIdleConns)
		}
	}
	if cfg.ConnMaxLifetime > 0 {
		conn.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	return &DB{conn: conn, driver: driver, now: time.Now}, nil
}

func sqliteDSN(path string) string {
	path = strings.TrimPrefix(path, "sqlite://")
	path = strings.TrimPrefix(path, "file:")
	if path == "" || strings.Contains(path, "_pragma=") {
		return path
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
}

func (db *DB) Driver() string {
	return db.driver
}

func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// Health pings and runs a trivial query.
func (db *DB) Health(ctx context.Context) error {
	if err := db.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	var one int
	if err := db.conn.GetContext(ctx, &one, "SELECT 1"); err != nil {
		return fmt.Errorf("database query failed: %w", err)
	}
	return nil
}

// SetClock overrides the timestamp source.
func (db *DB) SetClock(now func() time.Time) {
	if now != nil {
		db.now = now
	}
}

func (db *DB) timestamp() int64 {
	return db.now().UTC().Unix()
}

func (db *DB) q(query string) string {
	return db.conn.Rebind(query)
}

func (db *DB) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
