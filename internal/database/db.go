package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

type Config struct {
	Dialect         string
	DSN             string
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
}

// Open returns a pool that never keeps idle connections, so every
// operation dials its own connection and closing it releases it to the server.
func Open(ctx context.Context, cfg Config) (*sql.DB, Dialect, error) {
	dialect, err := DialectFor(cfg.Dialect)
	if err != nil {
		return nil, Dialect{}, err
	}
	if cfg.DSN == "" {
		return nil, Dialect{}, fmt.Errorf("database dsn is required")
	}

	db, err := sql.Open(dialect.Driver, cfg.DSN)
	if err != nil {
		return nil, Dialect{}, fmt.Errorf("open %s database: %w", dialect.Name, err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	db.SetMaxIdleConns(0)
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, Dialect{}, fmt.Errorf("ping %s database: %w", dialect.Name, err)
	}
	return db, dialect, nil
}

// Connector is satisfied by *sql.DB.
type Connector interface {
	Conn(ctx context.Context) (*sql.Conn, error)
}

// WithConn acquires a dedicated connection for fn and releases it on every
// exit path.
func WithConn(ctx context.Context, connector Connector, fn func(conn *sql.Conn) error) error {
	conn, err := connector.Conn(ctx)
	if err != nil {
		return &Error{Op: "acquire connection", Err: err}
	}
	defer func() { _ = conn.Close() }()
	return fn(conn)
}
