package store

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/schema"
)

// Store owns the bun database handle and its query hook.
type Store struct {
	db   *bun.DB
	hook *QueryHook
	cfg  Config
}

// Option customizes Open and OpenDB.
type Option func(*options)

type options struct {
	logger *slog.Logger
}

// WithLogger sets the logger used by the query hook.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// Open validates cfg, opens the driver selected by its URI and pings the
// store. A failed ping is returned as a StoreConnectionError; it is not retried.
func Open(ctx context.Context, cfg Config, opts ...Option) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	driver, err := cfg.Driver()
	if err != nil {
		return nil, err
	}
	dsn, err := cfg.DSN()
	if err != nil {
		return nil, err
	}

	sqldb, err := sql.Open(string(driver), dsn)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "open "+string(driver))
	}
	if cfg.inMemory() {
		// every sqlite connection to :memory: is a separate database
		sqldb.SetMaxOpenConns(1)
	}

	var dialect schema.Dialect
	switch driver {
	case DriverPostgres:
		dialect = pgdialect.New()
	default:
		dialect = sqlitedialect.New()
	}
	return OpenDB(ctx, sqldb, dialect, cfg, opts...)
}

// OpenDB wraps an already opened *sql.DB. The handle is closed when the ping fails.
func OpenDB(ctx context.Context, sqldb *sql.DB, dialect schema.Dialect, cfg Config, opts ...Option) (*Store, error) {
	o := &options{logger: slog.Default()}
	for _, opt := range opts {
		opt(o)
	}

	if cfg.MaxOpenConns > 0 {
		sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqldb.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqldb.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	db := bun.NewDB(sqldb, dialect)
	hook := NewQueryHook(o.logger, cfg.LogQueries)
	db.AddQueryHook(hook)

	if err := db.PingContext(ctx); err != nil {
		sqldb.Close()
		return nil, connectionError("ping store", err)
	}

	o.logger.Debug("store opened", "dialect", dialect.Name().String())
	return &Store{db: db, hook: hook, cfg: cfg}, nil
}

// DB returns the bun handle.
func (s *Store) DB() *bun.DB { return s.db }

// Config returns the configuration the store was opened with.
func (s *Store) Config() Config { return s.cfg }

// Reads returns the number of SELECT statements executed since the last reset.
func (s *Store) Reads() int64 { return s.hook.Reads() }

// Writes returns the number of INSERT, UPDATE and DELETE statements executed
// since the last reset.
func (s *Store) Writes() int64 { return s.hook.Writes() }

// ResetCounters zeroes the read and write counters.
func (s *Store) ResetCounters() { s.hook.Reset() }

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return connectionError("ping store", err)
	}
	return nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// withTimeout bounds ctx by the configured query timeout.
func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.QueryTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.cfg.QueryTimeout)
}

// BeginTx starts a store transaction. Connection failures are reported as
// StoreConnectionError.
func (s *Store) BeginTx(ctx context.Context) (bun.Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return bun.Tx{}, classify("begin transaction", err)
	}
	return tx, nil
}

// CommitTx commits tx.
func (s *Store) CommitTx(tx bun.Tx) error {
	return classify("commit transaction", tx.Commit())
}

// RollbackTx rolls tx back. Rolling back a finished transaction is not an error.
func (s *Store) RollbackTx(tx bun.Tx) error {
	err := tx.Rollback()
	if errors.Is(err, sql.ErrTxDone) {
		return nil
	}
	return classify("rollback transaction", err)
}
