package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/vogiaan1904/ticketbottle-queuesync/pkg/logger"
)

func Connect(ctx context.Context, path string, l logger.Logger) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// One writer at a time; a single shared connection avoids SQLITE_BUSY within the process.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	for _, stmt := range []string{
		`PRAGMA journal_mode=WAL;`,
		`PRAGMA busy_timeout=15000;`,
	} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("configure sqlite pragmas: %w", err)
		}
	}

	l.Infof(ctx, "Connected to SQLite at %s.", path)

	return db, nil
}

func Disconnect(ctx context.Context, db *sql.DB, l logger.Logger) {
	if db == nil {
		return
	}

	if err := db.Close(); err != nil {
		l.Warnf(ctx, "infra.sqlite.Disconnect: %v", err)
		return
	}

	l.Info(ctx, "Connection to SQLite closed.")
}
