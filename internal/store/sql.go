package store

import (
	"context"
	stdsql "database/sql"
	"fmt"
	"log/slog"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/joseph-ayodele/fieldcapture/internal/common"
)

const kvTable = "kv_store"

// SQLStore is a KV backed by a single SQL table, built with the ent SQL builder.
type SQLStore struct {
	drv     *entsql.Driver
	dialect string
	pool    *pgxpool.Pool
	logger  *slog.Logger
}

// OpenSQLite opens (or creates) a SQLite database and ensures the kv table.
func OpenSQLite(ctx context.Context, dsn string, logger *slog.Logger) (*SQLStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("opening sqlite store", "dsn", dsn)
	db, err := stdsql.Open("sqlite", dsn)
	if err != nil {
		logger.Error("failed to open sqlite store", "error", err)
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// one connection: in-memory databases are per-connection and sqlite has a single writer
	db.SetMaxOpenConns(1)

	s := &SQLStore{drv: entsql.OpenDB(dialect.SQLite, db), dialect: dialect.SQLite, logger: logger}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// OpenPostgres creates a pgx pool, wraps it for the ent driver and ensures the kv table.
func OpenPostgres(ctx context.Context, cfg common.StoreConfig, logger *slog.Logger) (*SQLStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("connecting to database", "driver", "postgres")
	pc, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		logger.Error("failed to parse database dsn", "error", err)
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		pc.MaxConns = cfg.MaxConns
	}
	pc.MinConns = cfg.MinConns
	pc.MaxConnLifetime = cfg.MaxConnLifetime
	pc.MaxConnIdleTime = cfg.MaxConnIdleTime
	pc.ConnConfig.RuntimeParams["application_name"] = "fieldcapture"

	dialCtx, cancel := common.WithTimeout(ctx, cfg.DialTimeout)
	defer cancel()
	pool, err := pgxpool.NewWithConfig(dialCtx, pc)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		return nil, fmt.Errorf("connect: %w", err)
	}

	db := stdlib.OpenDBFromPool(pool)
	s := &SQLStore{drv: entsql.OpenDB(dialect.Postgres, db), dialect: dialect.Postgres, pool: pool, logger: logger}
	if err := s.migrate(ctx); err != nil {
		s.Close()
		return nil, err
	}
	logger.Info("successfully connected to database")
	return s, nil
}

// Open picks the backend named by cfg.Driver.
func Open(ctx context.Context, cfg *common.Config, logger *slog.Logger) (*SQLStore, error) {
	switch cfg.Store.Driver {
	case "postgres":
		return OpenPostgres(ctx, cfg.Store, logger)
	default:
		return OpenSQLite(ctx, cfg.SQLiteDSN(), logger)
	}
}

// kvTableDDL is portable between SQLite and Postgres.
const kvTableDDL = `CREATE TABLE IF NOT EXISTS kv_store (
	key VARCHAR(512) PRIMARY KEY,
	value TEXT NOT NULL,
	updated_at BIGINT NOT NULL
)`

func (s *SQLStore) migrate(ctx context.Context) error {
	if err := s.drv.Exec(ctx, kvTableDDL, []any{}, nil); err != nil {
		s.logger.Error("failed to create kv table", "error", err)
		return common.NewAppError("STORE_ERROR", "create kv table", err)
	}
	return nil
}

func (s *SQLStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	q, args := entsql.Dialect(s.dialect).
		Select("value").
		From(entsql.Table(kvTable)).
		Where(entsql.EQ("key", key)).
		Query()

	var rows entsql.Rows
	if err := s.drv.Query(ctx, q, args, &rows); err != nil {
		s.logger.Error("kv get failed", "key", key, "error", err)
		return nil, false, fmt.Errorf("%w: get %s: %v", common.ErrStore, key, err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, false, fmt.Errorf("%w: get %s: %v", common.ErrStore, key, err)
		}
		return nil, false, nil
	}
	var value string
	if err := rows.Scan(&value); err != nil {
		return nil, false, fmt.Errorf("%w: scan %s: %v", common.ErrStore, key, err)
	}
	return []byte(value), true, nil
}

func (s *SQLStore) Set(ctx context.Context, key string, value []byte) error {
	q, args := entsql.Dialect(s.dialect).
		Insert(kvTable).
		Columns("key", "value", "updated_at").
		Values(key, string(value), time.Now().UnixMilli()).
		OnConflict(
			entsql.ConflictColumns("key"),
			entsql.ResolveWithNewValues(),
		).
		Query()
	if err := s.drv.Exec(ctx, q, args, nil); err != nil {
		s.logger.Error("kv set failed", "key", key, "error", err)
		return fmt.Errorf("%w: set %s: %v", common.ErrStore, key, err)
	}
	return nil
}

func (s *SQLStore) Delete(ctx context.Context, key string) error {
	q, args := entsql.Dialect(s.dialect).
		Delete(kvTable).
		Where(entsql.EQ("key", key)).
		Query()
	if err := s.drv.Exec(ctx, q, args, nil); err != nil {
		s.logger.Error("kv delete failed", "key", key, "error", err)
		return fmt.Errorf("%w: delete %s: %v", common.ErrStore, key, err)
	}
	return nil
}

// HealthCheck pings the underlying database.
func (s *SQLStore) HealthCheck(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := common.WithTimeout(ctx, timeout)
	defer cancel()
	return s.drv.DB().PingContext(ctx)
}

// Close closes the database connections gracefully
func (s *SQLStore) Close() {
	s.logger.Info("closing database connections")
	if err := s.drv.Close(); err != nil {
		s.logger.Error("failed to close sql driver", "error", err)
	}
	if s.pool != nil {
		s.pool.Close()
	}
	s.logger.Info("database connections closed")
}
