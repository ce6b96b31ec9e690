package storycache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const (
	createStoryCacheTable = `
		CREATE TABLE IF NOT EXISTS story_cache (
			user_id   TEXT PRIMARY KEY,
			stories   BLOB NOT NULL,
			synced_at INTEGER
		)`
	loadRecordQuery   = `SELECT stories, synced_at FROM story_cache WHERE user_id = ?`
	upsertRecordQuery = `
		INSERT INTO story_cache (user_id, stories, synced_at)
		VALUES (?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			stories = excluded.stories,
			synced_at = excluded.synced_at`
	deleteRecordQuery = `DELETE FROM story_cache WHERE user_id = ?`
)

// SQLiteBackend хранит по одной строке на пользователя в локальном файле SQLite.
type SQLiteBackend struct {
	db *sql.DB
}

// OpenSQLite открывает (или создает) файл кэша и готовит схему.
// Путь ":memory:" открывает временную базу, удобную для тестов.
func OpenSQLite(path string) (*SQLiteBackend, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite cache path is required")
	}
	dsn := path
	if path != ":memory:" {
		dsn = filepath.Clean(path)
	}
	dsn += "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite cache: %w", err)
	}
	// Один writer на процесс; для :memory: соединение должно быть единственным.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite cache: %w", err)
	}
	if _, err := db.Exec(createStoryCacheTable); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create story_cache table: %w", err)
	}
	return &SQLiteBackend{db: db}, nil
}

func (b *SQLiteBackend) Name() string { return "sqlite" }

func (b *SQLiteBackend) Load(ctx context.Context, userID string) (Record, bool, error) {
	var (
		stories  []byte
		syncedAt sql.NullInt64
	)
	err := b.db.QueryRowContext(ctx, loadRecordQuery, userID).Scan(&stories, &syncedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("load story_cache row: %w", err)
	}
	rec := Record{Stories: stories}
	if syncedAt.Valid {
		rec.SyncedAt = time.UnixMilli(syncedAt.Int64).UTC()
	}
	return rec, true, nil
}

func (b *SQLiteBackend) Save(ctx context.Context, userID string, rec Record) error {
	var syncedAt sql.NullInt64
	if !rec.SyncedAt.IsZero() {
		syncedAt = sql.NullInt64{Int64: rec.SyncedAt.UTC().UnixMilli(), Valid: true}
	}
	if _, err := b.db.ExecContext(ctx, upsertRecordQuery, userID, rec.Stories, syncedAt); err != nil {
		return fmt.Errorf("save story_cache row: %w", err)
	}
	return nil
}

func (b *SQLiteBackend) Delete(ctx context.Context, userID string) error {
	if _, err := b.db.ExecContext(ctx, deleteRecordQuery, userID); err != nil {
		return fmt.Errorf("delete story_cache row: %w", err)
	}
	return nil
}

func (b *SQLiteBackend) Close() error {
	if b == nil || b.db == nil {
		return nil
	}
	return b.db.Close()
}
