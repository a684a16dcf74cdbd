// Package store is the local key-value persistence behind a session: the
// conversation log and the media metadata, each under a fixed key.
//
// Backends: an in-process map, SQLite (single machine), Postgres and Redis
// (shared). SQL backends create their table through embedded goose migrations.
package store

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// ErrNotFound is returned by Get when a key has no value.
var ErrNotFound = errors.New("store: key not found")

//go:embed migrations
var migrations embed.FS

// KV is a byte-valued key-value store.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Driver names a backend.
type Driver string

const (
	DriverMemory   Driver = "memory"
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
	DriverRedis    Driver = "redis"
)

// Config selects and configures a backend.
type Config struct {
	Driver        Driver
	SQLitePath    string
	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	// Namespace prefixes Redis keys so several installs can share a server.
	Namespace string
}

// Open connects to the configured backend and applies migrations where needed.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (KV, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var (
		kv  KV
		err error
	)
	switch Driver(strings.ToLower(strings.TrimSpace(string(cfg.Driver)))) {
	case "", DriverMemory:
		kv = NewMemory()
	case DriverSQLite:
		kv, err = OpenSQLite(ctx, cfg.SQLitePath, logger)
	case DriverPostgres:
		kv, err = OpenPostgres(ctx, cfg.DatabaseURL, logger)
	case DriverRedis:
		kv, err = OpenRedis(ctx, RedisOptions{
			Addr:      cfg.RedisAddr,
			Password:  cfg.RedisPassword,
			DB:        cfg.RedisDB,
			Namespace: cfg.Namespace,
		})
	default:
		return nil, fmt.Errorf("store: unknown driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	return kv, nil
}
