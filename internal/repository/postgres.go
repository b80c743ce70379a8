package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jtoloui/motorway-takehome-backend/internal/metrics"
	"github.com/jtoloui/motorway-takehome-backend/internal/models"
	"go.uber.org/zap"
)

const DriverPostgres = "postgres"

// pgQueryCanceled is the SQLSTATE raised when statement_timeout fires.
const pgQueryCanceled = "57014"

// PostgresConfig holds pool sizing and the timeouts that bound every wait on
// the database.
type PostgresConfig struct {
	DatabaseURL       string
	MaxConns          int32
	MinConns          int32
	MaxConnIdleTime   time.Duration
	MaxConnLifetime   time.Duration
	HealthCheckPeriod time.Duration
	ConnectTimeout    time.Duration
	// AcquireTimeout bounds the wait for a pooled connection.
	AcquireTimeout time.Duration
	// QueryTimeout bounds each statement, both client side and as the
	// server's statement_timeout.
	QueryTimeout time.Duration
}

// NewPoolConfig translates cfg into a pgxpool configuration.
func NewPoolConfig(cfg PostgresConfig) (*pgxpool.Config, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolConfig.MinConns = cfg.MinConns
	}
	if cfg.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	if cfg.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	}
	// Zero panics in newer pgx versions, so only override when set.
	if cfg.HealthCheckPeriod > 0 {
		poolConfig.HealthCheckPeriod = cfg.HealthCheckPeriod
	}
	if cfg.ConnectTimeout > 0 {
		poolConfig.ConnConfig.ConnectTimeout = cfg.ConnectTimeout
	}
	if cfg.QueryTimeout > 0 {
		poolConfig.ConnConfig.RuntimeParams["statement_timeout"] = fmt.Sprintf("%d", cfg.QueryTimeout.Milliseconds())
	}

	return poolConfig, nil
}

// PostgresStore reads vehicles and state logs from PostgreSQL.
type PostgresStore struct {
	pool   *pgxpool.Pool
	cfg    PostgresConfig
	logger *zap.Logger
	runner txRunner
}

// NewPostgresStore creates the connection pool and verifies it with a ping.
func NewPostgresStore(ctx context.Context, cfg PostgresConfig, logger *zap.Logger, m *metrics.Metrics) (*PostgresStore, error) {
	poolConfig, err := NewPoolConfig(cfg)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	store := NewPostgresStoreFromPool(pool, cfg, logger, m)
	if err := store.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("Connection pool initialized",
		zap.Int32("max_connections", poolConfig.MaxConns),
		zap.Int32("min_connections", poolConfig.MinConns),
		zap.Duration("max_conn_idle_time", poolConfig.MaxConnIdleTime),
	)
	return store, nil
}

// NewPostgresStoreFromPool wraps an existing pool, e.g. the one shared across
// Lambda invocations.
func NewPostgresStoreFromPool(pool *pgxpool.Pool, cfg PostgresConfig, logger *zap.Logger, m *metrics.Metrics) *PostgresStore {
	logger = logger.Named("VehicleStore")
	return &PostgresStore{
		pool:   pool,
		cfg:    cfg,
		logger: logger,
		runner: txRunner{
			driver:   DriverPostgres,
			logger:   logger,
			metrics:  m,
			classify: classifyPgError,
		},
	}
}

func (s *PostgresStore) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	return s.runner.run(ctx, s.begin, fn)
}

func (s *PostgresStore) begin(ctx context.Context) (txHandle, error) {
	acquireCtx := ctx
	if s.cfg.AcquireTimeout > 0 {
		var cancel context.CancelFunc
		acquireCtx, cancel = context.WithTimeout(ctx, s.cfg.AcquireTimeout)
		defer cancel()
	}

	tx, err := s.pool.BeginTx(acquireCtx, pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadOnly,
	})
	if err != nil {
		return nil, err
	}
	return &pgTx{tx: tx, queryTimeout: s.cfg.QueryTimeout, logger: s.logger}, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return classifyPgError("ping", err)
	}
	return nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Pool exposes the underlying pool for migrations.
func (s *PostgresStore) Pool() *pgxpool.Pool {
	return s.pool
}

func (s *PostgresStore) InsertVehicle(ctx context.Context, v models.Vehicle) error {
	if _, err := s.pool.Exec(ctx, pgInsertVehicleQuery, v.ID, v.Make, v.Model); err != nil {
		return fmt.Errorf("failed to insert vehicle %d: %w", v.ID, err)
	}
	return nil
}

func (s *PostgresStore) AppendState(ctx context.Context, entry models.StateLogEntry) error {
	if _, err := s.pool.Exec(ctx, pgAppendStateQuery, entry.VehicleID, entry.State, entry.Timestamp.UTC()); err != nil {
		return fmt.Errorf("failed to append state for vehicle %d: %w", entry.VehicleID, err)
	}
	return nil
}

type pgTx struct {
	tx           pgx.Tx
	queryTimeout time.Duration
	logger       *zap.Logger
}

func (t *pgTx) queryContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if t.queryTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, t.queryTimeout)
}

func (t *pgTx) GetVehicleByID(ctx context.Context, id int64) (*models.Vehicle, error) {
	t.logger.Info("Get Vehicle By ID", zap.Int64("vehicle_id", id))

	ctx, cancel := t.queryContext(ctx)
	defer cancel()

	var v models.Vehicle
	err := t.tx.QueryRow(ctx, pgGetVehicleByIDQuery, id).Scan(&v.ID, &v.Make, &v.Model)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, NewVehicleNotFoundError(id)
	}
	if err != nil {
		return nil, classifyPgError("get vehicle by id", err)
	}
	return &v, nil
}

func (t *pgTx) GetStateAtTime(ctx context.Context, id int64, at time.Time) (*models.VehicleState, error) {
	t.logger.Info("Get Vehicle State By Time",
		zap.Int64("vehicle_id", id),
		zap.Time("at", at),
	)

	ctx, cancel := t.queryContext(ctx)
	defer cancel()

	var (
		v     models.Vehicle
		entry models.StateLogEntry
	)
	err := t.tx.QueryRow(ctx, pgGetStateAtTimeQuery, id, at.UTC()).
		Scan(&v.ID, &v.Make, &v.Model, &entry.State, &entry.Timestamp)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, NewStateNotFoundError(id)
	}
	if err != nil {
		return nil, classifyPgError("get state at time", err)
	}
	entry.VehicleID = v.ID
	return models.NewVehicleState(v, entry), nil
}

func (t *pgTx) Commit(ctx context.Context) error {
	return t.tx.Commit(ctx)
}

func (t *pgTx) Rollback(ctx context.Context) error {
	err := t.tx.Rollback(ctx)
	if errors.Is(err, pgx.ErrTxClosed) {
		return nil
	}
	return err
}

func classifyPgError(op string, err error) error {
	var nf *NotFoundError
	if errors.As(err, &nf) {
		return err
	}
	timeout := errors.Is(err, context.DeadlineExceeded) || pgconn.Timeout(err)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgQueryCanceled {
		timeout = true
	}
	return &TransientError{Op: op, Timeout: timeout, Err: err}
}
