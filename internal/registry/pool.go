package registry

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/langconnect/mcp-control-plane/internal/config"
)

// Pool wraps a pgx connection pool sized and tuned from DatabaseConfig.
type Pool struct {
	pool *pgxpool.Pool
}

// NewPool builds and connection-tests a pool against cfg.
func NewPool(ctx context.Context, cfg *config.DatabaseConfig) (*Pool, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database configuration is required")
	}

	connString := cfg.URL()
	poolConfig, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}

	poolConfig.MinConns = cfg.MinConnections
	poolConfig.MaxConns = cfg.MaxConnections
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	poolConfig.HealthCheckPeriod = cfg.HealthCheckEvery
	poolConfig.BeforeAcquire = func(ctx context.Context, conn *pgx.Conn) bool {
		return conn.Ping(ctx) == nil
	}

	connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connectCtx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}
	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return &Pool{pool: pool}, nil
}

// Raw exposes the underlying pgxpool.Pool for the repository implementation.
func (p *Pool) Raw() *pgxpool.Pool {
	return p.pool
}

// Close releases all pooled connections.
func (p *Pool) Close() {
	p.pool.Close()
}

// Health pings the pool; used by the /readyz handler.
func (p *Pool) Health(ctx context.Context) error {
	return p.pool.Ping(ctx)
}
