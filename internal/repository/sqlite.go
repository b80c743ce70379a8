package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jtoloui/motorway-takehome-backend/internal/metrics"
	"github.com/jtoloui/motorway-takehome-backend/internal/models"
	"go.uber.org/zap"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

const DriverSQLite = "sqlite"

// SQLiteConfig configures the embedded store used for local development and
// in-process tests.
type SQLiteConfig struct {
	// Path is a file path or ":memory:".
	Path string
	// AcquireTimeout bounds the wait for a free connection.
	AcquireTimeout time.Duration
	QueryTimeout   time.Duration
	BusyTimeout    time.Duration
}

// SQLiteStore serves the same reads as PostgresStore from a SQLite database.
// Timestamps are stored as unix microseconds so ordering is numeric.
type SQLiteStore struct {
	db     *sql.DB
	cfg    SQLiteConfig
	logger *zap.Logger
	runner txRunner
}

// NewSQLiteStore opens the database and applies the embedded schema.
func NewSQLiteStore(ctx context.Context, cfg SQLiteConfig, logger *zap.Logger, m *metrics.Metrics) (*SQLiteStore, error) {
	if cfg.Path == "" {
		cfg.Path = ":memory:"
	}
	if cfg.BusyTimeout <= 0 {
		cfg.BusyTimeout = 5 * time.Second
	}

	inMemory := cfg.Path == ":memory:" || strings.Contains(cfg.Path, "mode=memory")
	if !inMemory {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create dirs: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)", cfg.Path, cfg.BusyTimeout.Milliseconds())
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// Every connection to ":memory:" is a separate database.
	if inMemory {
		db.SetMaxOpenConns(1)
	}

	logger = logger.Named("VehicleStore")
	store := &SQLiteStore{
		db:     db,
		cfg:    cfg,
		logger: logger,
		runner: txRunner{
			driver:   DriverSQLite,
			logger:   logger,
			metrics:  m,
			classify: classifySQLError,
		},
	}

	if err := MigrateSQLite(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	logger.Info("SQLite store opened", zap.String("path", cfg.Path))
	return store, nil
}

func (s *SQLiteStore) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	return s.runner.run(ctx, s.begin, fn)
}

// begin checks a connection out under the acquire timeout, then starts the
// transaction on the caller's context: database/sql rolls a transaction back
// when the context passed to BeginTx is cancelled.
func (s *SQLiteStore) begin(ctx context.Context) (txHandle, error) {
	acquireCtx := ctx
	if s.cfg.AcquireTimeout > 0 {
		var cancel context.CancelFunc
		acquireCtx, cancel = context.WithTimeout(ctx, s.cfg.AcquireTimeout)
		defer cancel()
	}

	conn, err := s.db.Conn(acquireCtx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return &sqliteTx{tx: tx, conn: conn, queryTimeout: s.cfg.QueryTimeout, logger: s.logger}, nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return classifySQLError("ping", err)
	}
	return nil
}

func (s *SQLiteStore) Close() {
	if err := s.db.Close(); err != nil {
		s.logger.Warn("Failed to close sqlite database", zap.Error(err))
	}
}

// Stats reports connection usage; tests use it to check that connections are
// returned after every transaction.
func (s *SQLiteStore) Stats() sql.DBStats {
	return s.db.Stats()
}

func (s *SQLiteStore) InsertVehicle(ctx context.Context, v models.Vehicle) error {
	if _, err := s.db.ExecContext(ctx, sqliteInsertVehicleQuery, v.ID, v.Make, v.Model); err != nil {
		return fmt.Errorf("failed to insert vehicle %d: %w", v.ID, err)
	}
	return nil
}

func (s *SQLiteStore) AppendState(ctx context.Context, entry models.StateLogEntry) error {
	if _, err := s.db.ExecContext(ctx, sqliteAppendStateQuery, entry.VehicleID, entry.State, entry.Timestamp.UnixMicro()); err != nil {
		return fmt.Errorf("failed to append state for vehicle %d: %w", entry.VehicleID, err)
	}
	return nil
}

type sqliteTx struct {
	tx           *sql.Tx
	conn         *sql.Conn
	queryTimeout time.Duration
	logger       *zap.Logger
}

func (t *sqliteTx) queryContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if t.queryTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, t.queryTimeout)
}

func (t *sqliteTx) GetVehicleByID(ctx context.Context, id int64) (*models.Vehicle, error) {
	t.logger.Info("Get Vehicle By ID", zap.Int64("vehicle_id", id))

	ctx, cancel := t.queryContext(ctx)
	defer cancel()

	var v models.Vehicle
	err := t.tx.QueryRowContext(ctx, sqliteGetVehicleByIDQuery, id).Scan(&v.ID, &v.Make, &v.Model)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, NewVehicleNotFoundError(id)
	}
	if err != nil {
		return nil, classifySQLError("get vehicle by id", err)
	}
	return &v, nil
}

func (t *sqliteTx) GetStateAtTime(ctx context.Context, id int64, at time.Time) (*models.VehicleState, error) {
	t.logger.Info("Get Vehicle State By Time",
		zap.Int64("vehicle_id", id),
		zap.Time("at", at),
	)

	ctx, cancel := t.queryContext(ctx)
	defer cancel()

	var (
		v          models.Vehicle
		entry      models.StateLogEntry
		recordedAt int64
	)
	err := t.tx.QueryRowContext(ctx, sqliteGetStateAtTimeQuery, id, at.UnixMicro()).
		Scan(&v.ID, &v.Make, &v.Model, &entry.State, &recordedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, NewStateNotFoundError(id)
	}
	if err != nil {
		return nil, classifySQLError("get state at time", err)
	}
	entry.VehicleID = v.ID
	entry.Timestamp = time.UnixMicro(recordedAt)
	return models.NewVehicleState(v, entry), nil
}

func (t *sqliteTx) Commit(context.Context) error {
	defer t.release()
	return t.tx.Commit()
}

func (t *sqliteTx) Rollback(context.Context) error {
	defer t.release()
	err := t.tx.Rollback()
	if errors.Is(err, sql.ErrTxDone) {
		return nil
	}
	return err
}

// release returns the connection to the pool. A second call is a no-op.
func (t *sqliteTx) release() {
	_ = t.conn.Close()
}

func classifySQLError(op string, err error) error {
	var nf *NotFoundError
	if errors.As(err, &nf) {
		return err
	}
	return &TransientError{
		Op:      op,
		Timeout: errors.Is(err, context.DeadlineExceeded),
		Err:     err,
	}
}
