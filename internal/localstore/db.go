package localstore

import (
	"context"
	"database/sql"

	_ "github.com/mattn/go-sqlite3"
)

// Open opens (or creates) the process-durable local database backing the
// roster mirror and the offline queue. WAL mode keeps readers unblocked
// while the single structural writer holds the file.
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA journal_mode=WAL;`); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(`PRAGMA busy_timeout=5000;`); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(`PRAGMA foreign_keys=ON;`); err != nil {
		db.Close()
		return nil, err
	}

	if err := initSchema(context.Background(), db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func initSchema(ctx context.Context, db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS students (
		student_id TEXT PRIMARY KEY,
		first_name TEXT NOT NULL,
		last_name TEXT NOT NULL,
		section TEXT NOT NULL DEFAULT '',
		is_active INTEGER NOT NULL DEFAULT 1,
		payload BLOB NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_students_section ON students(section);
	CREATE INDEX IF NOT EXISTS idx_students_active ON students(is_active);
	CREATE INDEX IF NOT EXISTS idx_students_last_name ON students(last_name);

	CREATE TABLE IF NOT EXISTS cache_meta (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		last_sync_at INTEGER NOT NULL,
		student_count INTEGER NOT NULL,
		expires_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS offline_queue (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		payload BLOB NOT NULL,
		attempts INTEGER NOT NULL DEFAULT 0,
		queued_at INTEGER NOT NULL
	);
	`
	_, err := db.ExecContext(ctx, schema)
	return err
}
