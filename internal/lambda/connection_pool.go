package lambda

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jtoloui/motorway-takehome-backend/internal/repository"
	"go.uber.org/zap"
)

var (
	poolOnce sync.Once
	pool     *pgxpool.Pool
	poolErr  error
)

// GetConnectionPool returns a singleton database connection pool for Lambda.
// The pool is initialized once and reused across Lambda invocations.
func GetConnectionPool(cfg repository.PostgresConfig, logger *zap.Logger) (*pgxpool.Pool, error) {
	poolOnce.Do(func() {
		config, err := repository.NewPoolConfig(cfg)
		if err != nil {
			poolErr = err
			return
		}

		// Lambda-optimized pool settings: RDS Proxy does the pooling, and
		// containers are reused, so keep a small pool alive indefinitely.
		config.MaxConns = 2
		config.MinConns = 1
		config.MaxConnIdleTime = 0
		config.MaxConnLifetime = 0
		// Zero panics in newer pgx versions.
		config.HealthCheckPeriod = 30 * time.Second

		ctx := context.Background()
		if cfg.ConnectTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, cfg.ConnectTimeout)
			defer cancel()
		}

		pool, poolErr = pgxpool.NewWithConfig(ctx, config)
		if poolErr != nil {
			poolErr = fmt.Errorf("failed to create connection pool: %w", poolErr)
			return
		}

		if err := pool.Ping(ctx); err != nil {
			poolErr = fmt.Errorf("failed to ping database: %w", err)
			pool.Close()
			pool = nil
			return
		}

		if logger != nil {
			logger.Info("Lambda connection pool initialized successfully",
				zap.Int("max_connections", int(config.MaxConns)),
				zap.Int("min_connections", int(config.MinConns)),
			)
		}
	})

	return pool, poolErr
}

// CloseConnectionPool closes the connection pool and allows it to be
// initialized again.
func CloseConnectionPool() {
	if pool != nil {
		pool.Close()
		pool = nil
	}
	poolErr = nil
	poolOnce = sync.Once{}
}
