// Package pgstore is the host-simulation kvstore.Store backend: it
// persists the same versioned records as internal/kvstore/filestore but
// into Postgres, so several cmd/coresim processes can share one
// irrigation controller's state during development and CI instead of
// each owning its own flash-file directory. See SPEC_FULL.md DOMAIN
// STACK.
package pgstore

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	"github.com/alexmihai1804/autowatering/internal/apperr"
	"github.com/alexmihai1804/autowatering/internal/kvstore"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // registers the "postgres" driver used for goose migrations
)

const saveTimeout = 500 * time.Millisecond

// Store is a Postgres-backed kvstore.Store.
type Store struct {
	db *sqlx.DB

	mu       sync.Mutex
	defaults bool
}

// Open runs pending migrations against dsn over a plain lib/pq
// connection (goose only understands database/sql), then returns a
// Store whose steady-state queries run over sqlx on top of the pgx
// stdlib driver.
func Open(ctx context.Context, dsn string) (*Store, error) {
	migrationConn, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.Storage, "open migration connection")
	}
	defer migrationConn.Close()
	if err := migrate(migrationConn); err != nil {
		return nil, apperr.Wrap(err, apperr.Storage, "run kv schema migrations")
	}

	sqlDB, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.Storage, "open pgx connection")
	}
	db := sqlx.NewDb(sqlDB, "pgx")

	return newStoreFromDB(ctx, db)
}

// newStoreFromDB wraps an already-open sqlx.DB — split out of Open so
// tests can inject a sqlmock-backed *sqlx.DB without a real Postgres
// connection.
func newStoreFromDB(ctx context.Context, db *sqlx.DB) (*Store, error) {
	s := &Store{db: db, defaults: true}
	count, err := s.recordCount(ctx)
	if err != nil {
		db.Close()
		return nil, err
	}
	s.defaults = count == 0
	return s, nil
}

func (s *Store) recordCount(ctx context.Context) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, "SELECT count(*) FROM kv_records"); err != nil {
		return 0, apperr.Wrap(err, apperr.Storage, "count kv records")
	}
	return n, nil
}

func (s *Store) Save(id kvstore.RecordID, data []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv_records (id, data, updated_at) VALUES ($1, $2, now())
		ON CONFLICT (id) DO UPDATE SET data = EXCLUDED.data, updated_at = now()
	`, int(id), data)
	if err != nil {
		if ctx.Err() != nil {
			return apperr.New(apperr.Timeout, "kv store save timed out")
		}
		return apperr.Wrapf(err, apperr.Storage, "save record %d", int(id))
	}
	s.defaults = false
	return nil
}

func (s *Store) Load(id kvstore.RecordID) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()

	var data []byte
	err := s.db.GetContext(ctx, &data, "SELECT data FROM kv_records WHERE id = $1", int(id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, kvstore.ErrNotFound
		}
		return nil, apperr.Wrapf(err, apperr.Storage, "load record %d", int(id))
	}
	return data, nil
}

func (s *Store) IsDefaults() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.defaults
}

func (s *Store) Close() error {
	return s.db.Close()
}

var _ kvstore.Store = (*Store)(nil)
