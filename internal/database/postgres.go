package database

import (
	"cloudjobs/internal/apperrors"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PoolConfig tunes the PostgreSQL connection pool.
type PoolConfig struct {
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
	ConnectTimeout    time.Duration
}

// DefaultPoolConfig returns pool settings sized for a low write rate:
// one insert per finished workflow.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxConns:          10,
		MinConns:          1,
		MaxConnLifetime:   30 * time.Minute,
		MaxConnIdleTime:   5 * time.Minute,
		HealthCheckPeriod: 30 * time.Second,
		ConnectTimeout:    10 * time.Second,
	}
}

const schema = `
CREATE TABLE IF NOT EXISTS cloud_databases (
	id                     UUID PRIMARY KEY,
	name                   TEXT NOT NULL,
	host                   TEXT NOT NULL,
	port                   INTEGER NOT NULL,
	username               TEXT NOT NULL DEFAULT '',
	password               TEXT NOT NULL DEFAULT '',
	tls                    BOOLEAN NOT NULL DEFAULT FALSE,
	provider               TEXT NOT NULL,
	cloud_subscription_id  INTEGER NOT NULL,
	cloud_database_id      INTEGER NOT NULL,
	cloud_free             BOOLEAN NOT NULL DEFAULT FALSE,
	created_at             TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// PostgresRepository stores handles in PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresPool opens a pool for databaseURL with the given settings.
func NewPostgresPool(ctx context.Context, databaseURL string, cfg PoolConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	poolCfg.HealthCheckPeriod = cfg.HealthCheckPeriod
	poolCfg.ConnConfig.ConnectTimeout = cfg.ConnectTimeout

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return pool, nil
}

// NewPostgresRepository wraps pool and makes sure the table exists.
func NewPostgresRepository(ctx context.Context, pool *pgxpool.Pool) (*PostgresRepository, error) {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("failed to migrate cloud_databases: %w", err)
	}
	return &PostgresRepository{pool: pool}, nil
}

// Create implements Repository.
func (r *PostgresRepository) Create(ctx context.Context, d Descriptor) (*Database, error) {
	if err := d.Validate(); err != nil {
		return nil, apperrors.Validation("descriptor", err.Error())
	}

	db := &Database{ID: uuid.NewString(), Descriptor: d}
	err := r.pool.QueryRow(ctx, `
		INSERT INTO cloud_databases
			(id, name, host, port, username, password, tls, provider,
			 cloud_subscription_id, cloud_database_id, cloud_free)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at`,
		db.ID, d.Name, d.Host, d.Port, d.Username, d.Password, d.TLS, d.Provider,
		d.Cloud.SubscriptionID, d.Cloud.DatabaseID, d.Cloud.Free,
	).Scan(&db.CreatedAt)
	if err != nil {
		return nil, apperrors.Internal("database.create", err)
	}
	return db, nil
}

// Get implements Repository.
func (r *PostgresRepository) Get(ctx context.Context, id string) (*Database, error) {
	db := &Database{}
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, host, port, username, password, tls, provider,
		       cloud_subscription_id, cloud_database_id, cloud_free, created_at
		FROM cloud_databases WHERE id = $1`, id,
	).Scan(&db.ID, &db.Name, &db.Host, &db.Port, &db.Username, &db.Password, &db.TLS, &db.Provider,
		&db.Cloud.SubscriptionID, &db.Cloud.DatabaseID, &db.Cloud.Free, &db.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NotFound("database", id)
	}
	if err != nil {
		return nil, apperrors.Internal("database.get", err)
	}
	return db, nil
}

// Ready implements Repository.
func (r *PostgresRepository) Ready(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Close releases the pool.
func (r *PostgresRepository) Close() {
	r.pool.Close()
}

// Verify PostgresRepository implements Repository
var _ Repository = (*PostgresRepository)(nil)
