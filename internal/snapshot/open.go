package snapshot

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// Supported drivers.
const (
	DriverMemory   = "memory"
	DriverRedis    = "redis"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Options selects and configures a backend. Clients for redis and postgres
// are owned by the caller.
type Options struct {
	Driver     string
	SQLitePath string
	Redis      *redis.Client
	Postgres   *pgxpool.Pool
}

// Open builds the backend named by opts.Driver.
func Open(ctx context.Context, opts Options) (Backend, error) {
	switch opts.Driver {
	case "", DriverMemory:
		return NewMemory(), nil
	case DriverRedis:
		if opts.Redis == nil {
			return nil, errors.New("snapshot: redis driver requires a client")
		}
		return NewRedis(opts.Redis), nil
	case DriverSQLite:
		backend, err := NewSQLite(opts.SQLitePath)
		if err != nil {
			return nil, err
		}
		return backend, nil
	case DriverPostgres:
		backend, err := NewPostgres(ctx, opts.Postgres)
		if err != nil {
			return nil, err
		}
		return backend, nil
	default:
		return nil, fmt.Errorf("snapshot: unknown driver %q", opts.Driver)
	}
}
