package database

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type Config struct {
	Driver   string
	DSN      string
	MaxConns int
	Timeout  time.Duration
	TimeZone string
}

// ConfigFromEnv reads the credential store DB config from environment variables.
// The default is a private in-memory sqlite database, which lives exactly as
// long as the process.
func ConfigFromEnv() Config {
	driver := os.Getenv("SESSION_STORE_DRIVER")
	if driver == "" {
		driver = DriverSQLite
	}
	dsn := os.Getenv("SESSION_STORE_DSN")
	if dsn == "" && driver == DriverSQLite {
		dsn = "file::memory:?cache=shared"
	}
	max := 1
	if driver == DriverPostgres {
		max = 5
	}
	tz := os.Getenv("SESSION_STORE_TIMEZONE")
	return Config{Driver: driver, DSN: dsn, MaxConns: max, Timeout: 5 * time.Second, TimeZone: tz}
}

// Connect opens a *sqlx.DB and verifies connectivity with a ping
func Connect(cfg Config) (*sqlx.DB, error) {
	switch cfg.Driver {
	case DriverSQLite, DriverPostgres:
	default:
		return nil, fmt.Errorf("unsupported driver %q", cfg.Driver)
	}
	if cfg.DSN == "" {
		return nil, fmt.Errorf("empty dsn for driver %q", cfg.Driver)
	}
	db, err := sqlx.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if cfg.MaxConns > 0 {
		db.SetMaxOpenConns(cfg.MaxConns)
		db.SetMaxIdleConns(cfg.MaxConns)
	}
	db.SetConnMaxLifetime(30 * time.Minute)

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	if cfg.Driver == DriverPostgres && cfg.TimeZone != "" {
		if _, err := db.ExecContext(ctx, "SET TIME ZONE "+quoteLiteral(cfg.TimeZone)); err != nil {
			db.Close()
			return nil, fmt.Errorf("set time zone: %w", err)
		}
	}
	return db, nil
}

// quoteLiteral escapes single quotes and wraps the value in single quotes
// so it can be used safely in SET ... statements which don't accept
// parameter placeholders for the right-hand side.
func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
