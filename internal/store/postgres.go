package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/lib/pq"
)

const (
	postgresTableName = "rankradar_kv"
	postgresOpTimeout = 5 * time.Second
)

// PostgresStore is a remote store backed by a shared Postgres table, for
// setups where "cross-device" means a database every device can reach
// rather than a synced folder. It cannot push change notifications; the
// orchestrator falls back to periodic and explicit syncs.
type PostgresStore struct {
	dsn string

	initOnce sync.Once
	initErr  error
	db       *sql.DB
}

// OpenPostgres creates a Postgres-backed store. The connection is
// established lazily on first use.
func OpenPostgres(dsn string) *PostgresStore {
	return &PostgresStore{dsn: dsn}
}

func (s *PostgresStore) ensureReady() error {
	s.initOnce.Do(func() {
		db, err := sql.Open("postgres", s.dsn)
		if err != nil {
			s.initErr = err
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), postgresOpTimeout)
		defer cancel()

		query := fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				key TEXT PRIMARY KEY,
				value TEXT NOT NULL,
				updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`, pq.QuoteIdentifier(postgresTableName))
		if _, err := db.ExecContext(ctx, query); err != nil {
			db.Close()
			s.initErr = err
			return
		}
		s.db = db
	})
	return s.initErr
}

func (s *PostgresStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	query := fmt.Sprintf("SELECT value FROM %s WHERE key = $1", pq.QuoteIdentifier(postgresTableName))
	var value string
	err := s.db.QueryRowContext(ctx, query, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoData
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	return []byte(value), nil
}

func (s *PostgresStore) Set(ctx context.Context, key string, value []byte) error {
	if err := s.ensureReady(); err != nil {
		return err
	}
	query := fmt.Sprintf(`
		INSERT INTO %s (key, value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (key)
		DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`,
		pq.QuoteIdentifier(postgresTableName))
	if _, err := s.db.ExecContext(ctx, query, key, string(value)); err != nil {
		if isCapacityErr(err) {
			return fmt.Errorf("set %s: %w", key, ErrCapacity)
		}
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// isCapacityErr recognises quota-style failures: disk full, or a
// configuration-limit class error from a managed instance.
func isCapacityErr(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	return pqErr.Code == "53100" || pqErr.Code.Class() == "53"
}

func (s *PostgresStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
