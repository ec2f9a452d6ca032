package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"digisafe/internal/platform/config"
	"digisafe/internal/platform/httpserver"
	platformredis "digisafe/internal/platform/redis"
	"digisafe/internal/safe/ports"
	"digisafe/internal/safe/store/medium"
)

// backend is an opened medium plus whatever must be released with it.
type backend struct {
	medium ports.Medium
	// db is set for SQL media so the audit trail can share the connection.
	db      *sql.DB
	dialect medium.Dialect
	checks  map[string]httpserver.HealthCheck
	closers []func() error
}

func (b *backend) Close() error {
	var first error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func openBackend(ctx context.Context, cfg config.Config, logger *slog.Logger) (*backend, error) {
	b := &backend{checks: map[string]httpserver.HealthCheck{}}
	size := cfg.Medium.Size

	switch cfg.Medium.Kind {
	case config.MediumMemory:
		m, err := medium.NewMemory(size)
		if err != nil {
			return nil, err
		}
		b.medium = m

	case config.MediumFile:
		m, err := medium.OpenFile(cfg.Medium.Path, size)
		if err != nil {
			return nil, err
		}
		b.medium = m
		b.closers = append(b.closers, m.Close)

	case config.MediumSQLite, config.MediumPostgres:
		driver, dsn, dialect := "sqlite", cfg.Medium.SQLitePath, medium.DialectSQLite
		if cfg.Medium.Kind == config.MediumPostgres {
			driver, dsn, dialect = cfg.Medium.PostgresDriver, cfg.Medium.PostgresDSN, medium.DialectPostgres
		}
		db, err := sql.Open(driver, dsn)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", driver, err)
		}
		b.closers = append(b.closers, db.Close)
		if err := db.PingContext(ctx); err != nil {
			_ = b.Close()
			return nil, fmt.Errorf("ping %s: %w", driver, err)
		}
		m, err := medium.NewSQL(db, dialect, size)
		if err != nil {
			_ = b.Close()
			return nil, err
		}
		if err := m.Migrate(ctx); err != nil {
			_ = b.Close()
			return nil, err
		}
		b.medium, b.db, b.dialect = m, db, dialect
		b.checks[cfg.Medium.Kind] = db.PingContext

	case config.MediumRedis:
		client, err := platformredis.New(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, client.Close)
		m, err := medium.NewRedis(client, cfg.Redis.Key, size)
		if err != nil {
			_ = b.Close()
			return nil, err
		}
		b.medium = m
		b.checks["redis"] = client.Health

	default:
		return nil, fmt.Errorf("unknown medium %q", cfg.Medium.Kind)
	}

	logger.Info("medium opened", "kind", cfg.Medium.Kind, "size", size)
	return b, nil
}
