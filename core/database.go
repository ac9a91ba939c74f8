package core

// Projection store access. One pgx pool per process, shared by every shard
// driver; the pool is the only piece of global mutable state besides the
// logging handles.

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/RyanKung/snaprag/pkg/utils"
)

// PoolConfig carries the tunables the projection store honors.
type PoolConfig struct {
	URL            string
	MaxConnections int
	MinConnections int
	ConnectTimeout time.Duration
}

// Database wraps the shared connection pool.
type Database struct {
	pool   *pgxpool.Pool
	logger *logrus.Logger
}

// NewDatabase opens and pings the pool.
func NewDatabase(ctx context.Context, cfg PoolConfig, lg *logrus.Logger) (*Database, error) {
	if lg == nil {
		lg = logrus.StandardLogger()
	}
	pc, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, utils.Wrap(err, "parse database url")
	}
	if cfg.MaxConnections > 0 {
		pc.MaxConns = int32(cfg.MaxConnections)
	}
	if cfg.MinConnections > 0 {
		pc.MinConns = int32(cfg.MinConnections)
	}
	if cfg.ConnectTimeout > 0 {
		pc.ConnConfig.ConnectTimeout = cfg.ConnectTimeout
	}
	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, utils.Wrap(err, "create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, utils.Wrap(err, "ping database")
	}
	lg.WithFields(logrus.Fields{
		"max_conns": pc.MaxConns,
		"min_conns": pc.MinConns,
	}).Info("database pool ready")
	return &Database{pool: pool, logger: lg}, nil
}

// Pool exposes the underlying pgx pool.
func (d *Database) Pool() *pgxpool.Pool { return d.pool }

// Ping checks connectivity; used by the health endpoint.
func (d *Database) Ping(ctx context.Context) error { return d.pool.Ping(ctx) }

// Close drains the pool.
func (d *Database) Close() { d.pool.Close() }
