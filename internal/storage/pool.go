package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sungwon/newsletter-dispatch/internal/metrics"
)

// PoolConfig is the database section of the process config.
type PoolConfig struct {
	URL            string        `mapstructure:"url"`
	PoolMin        int32         `mapstructure:"pool_min"`
	PoolMax        int32         `mapstructure:"pool_max"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	// AppName shows up in pg_stat_activity.application_name.
	AppName string `mapstructure:"app_name"`
}

// DB owns the pgx pool shared by every query in a process.
type DB struct {
	Pool *pgxpool.Pool
}

// NewDB opens the pool and pings it within cfg.ConnectTimeout.
func NewDB(ctx context.Context, cfg PoolConfig) (*DB, error) {
	pc, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	pc.MinConns = cfg.PoolMin
	if cfg.PoolMax > 0 {
		pc.MaxConns = cfg.PoolMax
	}
	pc.MaxConnLifetime = time.Hour
	pc.MaxConnIdleTime = 30 * time.Minute
	pc.HealthCheckPeriod = time.Minute
	if cfg.AppName != "" {
		pc.ConnConfig.RuntimeParams["application_name"] = cfg.AppName
	}

	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &DB{Pool: pool}, nil
}

func (db *DB) Close() {
	db.Pool.Close()
}

// Ping backs the "database" readiness check.
func (db *DB) Ping(ctx context.Context) error {
	return db.Pool.Ping(ctx)
}

// ReportPoolStats publishes pool occupancy gauges every interval until ctx
// is cancelled.
func (db *DB) ReportPoolStats(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s := db.Pool.Stat()
			metrics.SetPoolStats(s.AcquiredConns(), s.IdleConns())
		}
	}
}

// Queries returns a Queries bound to the pool.
func (db *DB) Queries() *Queries {
	return New(db.Pool)
}

// InTx runs fn in one transaction, committed only when fn returns nil.
func (db *DB) InTx(ctx context.Context, fn func(Querier) error) error {
	return pgx.BeginTxFunc(ctx, db.Pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		return fn(New(tx))
	})
}
