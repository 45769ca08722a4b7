package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS artworks (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	version    INTEGER NOT NULL,
	data       TEXT    NOT NULL,
	created_at INTEGER NOT NULL
)`

// SQLite stores records in an embedded SQLite database.
type SQLite struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLite opens (or creates) the database at path and ensures the schema.
func OpenSQLite(path string) (*SQLite, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLite{db: db, now: time.Now}, nil
}

func (s *SQLite) Create(ctx context.Context, version int32, data string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO artworks (version, data, created_at) VALUES (?, ?, ?)`,
		version, data, s.now().UTC().UnixNano(),
	)
	if err != nil {
		return 0, storageErr("create", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, storageErr("create", err)
	}
	return id, nil
}

func (s *SQLite) Get(ctx context.Context, id int64) (Record, bool, error) {
	var (
		rec       = Record{ID: id}
		createdAt int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT version, data, created_at FROM artworks WHERE id = ?`, id,
	).Scan(&rec.Version, &rec.Data, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, storageErr("get", err)
	}
	rec.CreatedAt = time.Unix(0, createdAt).UTC()
	return rec, true, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}
