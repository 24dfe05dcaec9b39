package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/procura-app/procura/internal/archive"
	"github.com/procura-app/procura/internal/platform/cache"
	"github.com/procura-app/procura/internal/platform/db"
	"github.com/procura-app/procura/internal/procurement"
	"github.com/procura-app/procura/internal/shared"
	"github.com/procura-app/procura/internal/snapshot"
)

// AuditStore records and lists workflow audit entries.
type AuditStore interface {
	procurement.AuditPort
	procurement.AuditReader
}

// Resources holds the connections and stores shared by the API and the worker.
type Resources struct {
	Redis    *redis.Client
	Postgres *pgxpool.Pool
	Backend  snapshot.Backend
	Audit    AuditStore
	Archive  archive.Store
}

// RedisOptions returns the Redis connection settings from cfg.
func RedisOptions(cfg *Config) cache.Options {
	return cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
}

// OpenResources connects only the services the configured drivers need.
// Postgres also backs the audit trail when it is the state driver.
func OpenResources(ctx context.Context, cfg *Config, logger *slog.Logger) (*Resources, error) {
	res := &Resources{}
	fail := func(err error) (*Resources, error) {
		res.Close()
		return nil, err
	}

	switch cfg.StateDriver {
	case snapshot.DriverRedis:
		client, err := cache.New(ctx, RedisOptions(cfg))
		if err != nil {
			return fail(err)
		}
		res.Redis = client
	case snapshot.DriverPostgres:
		pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
		if err != nil {
			return fail(err)
		}
		res.Postgres = pool
	}

	backend, err := snapshot.Open(ctx, snapshot.Options{
		Driver:     cfg.StateDriver,
		SQLitePath: cfg.SQLitePath,
		Redis:      res.Redis,
		Postgres:   res.Postgres,
	})
	if err != nil {
		return fail(fmt.Errorf("open state backend: %w", err))
	}
	res.Backend = backend

	if res.Postgres != nil {
		auditLogger := shared.NewAuditLogger(res.Postgres)
		if err := auditLogger.EnsureSchema(ctx); err != nil {
			return fail(fmt.Errorf("audit schema: %w", err))
		}
		res.Audit = auditLogger
	} else {
		res.Audit = shared.NewAuditTrail(0)
	}

	store, err := archive.Open(ctx, archive.Options{
		Driver:    archive.Driver(cfg.ArchiveDriver),
		Dir:       cfg.ArchiveDir,
		Bucket:    cfg.S3Bucket,
		Region:    cfg.S3Region,
		Endpoint:  cfg.S3Endpoint,
		PathStyle: cfg.S3PathStyle,
	})
	if err != nil {
		return fail(fmt.Errorf("open archive: %w", err))
	}
	res.Archive = store

	logger.Info("resources ready",
		slog.String("state_driver", cfg.StateDriver),
		slog.String("archive_driver", string(store.Driver())))
	return res, nil
}

// Close releases every opened connection.
func (r *Resources) Close() error {
	if r == nil {
		return nil
	}
	var errs []error
	if closer, ok := r.Backend.(io.Closer); ok {
		errs = append(errs, closer.Close())
	}
	if r.Redis != nil {
		errs = append(errs, r.Redis.Close())
	}
	if r.Postgres != nil {
		r.Postgres.Close()
	}
	return errors.Join(errs...)
}
