package sqlite

import (
	"context"
	"database/sql"

	_ "github.com/mattn/go-sqlite3"

	"github.com/bryanwahyu/trapscan/internal/infra/db/sqlrepo"
)

// Connect opens a SQLite file, or a private in-memory database for
// ":memory:". SQLite serializes writers so one connection is enough.
func Connect(ctx context.Context, path string) (*sql.DB, error) {
	dsn := ":memory:"
	if path != "" && path != ":memory:" {
		dsn = "file:" + path + "?_busy_timeout=5000&_journal_mode=WAL"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func NewHistoryRepository(db *sql.DB) *sqlrepo.HistoryRepository {
	return sqlrepo.NewHistoryRepository(db, sqlrepo.SQLite)
}
