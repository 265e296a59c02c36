package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vogiaan1904/ticketbottle-queuesync/internal/repository"
	"github.com/vogiaan1904/ticketbottle-queuesync/pkg/logger"
)

type sqliteStore struct {
	db       *sql.DB
	notifier *repository.Notifier
	l        logger.Logger
}

// NewSQLiteStore returns a durable KeyValueStore backed by a kv_state table, creating
// the table when missing. Change signals are process-local.
func NewSQLiteStore(ctx context.Context, db *sql.DB, l logger.Logger) (repository.KeyValueStore, error) {
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS kv_state (
		key TEXT PRIMARY KEY,
		value BLOB NOT NULL,
		updated_at TEXT NOT NULL
	);`); err != nil {
		return nil, fmt.Errorf("apply migration: %w", err)
	}

	return &sqliteStore{
		db:       db,
		notifier: repository.NewNotifier(),
		l:        l,
	}, nil
}

func (s *sqliteStore) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv_state WHERE key = ?`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		s.l.Errorf(ctx, "repository.sqliteStore.Get: %v", err)
		return nil, err
	}

	return value, nil
}

func (s *sqliteStore) Set(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kv_state (key, value, updated_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET
		   value = excluded.value,
		   updated_at = excluded.updated_at`,
		key,
		value,
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		s.l.Errorf(ctx, "repository.sqliteStore.Set: %v", err)
		return err
	}

	s.notifier.Notify(key)
	return nil
}

func (s *sqliteStore) Delete(ctx context.Context, key string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM kv_state WHERE key = ?`, key)
	if err != nil {
		s.l.Errorf(ctx, "repository.sqliteStore.Delete: %v", err)
		return err
	}

	if n, _ := res.RowsAffected(); n > 0 {
		s.notifier.Notify(key)
	}
	return nil
}

func (s *sqliteStore) Subscribe(ctx context.Context, key string) (<-chan struct{}, func()) {
	return s.notifier.Subscribe(key)
}
