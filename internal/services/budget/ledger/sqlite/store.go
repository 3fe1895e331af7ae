// Package sqlite provides a SQLite-backed ledger.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	sqlitemigrate "github.com/openkfw/trubudget/internal/platform/storage/sqlitemigrate"
	"github.com/openkfw/trubudget/internal/services/budget/domain/event"
	"github.com/openkfw/trubudget/internal/services/budget/ledger"
	"github.com/openkfw/trubudget/internal/services/budget/ledger/sqlite/migrations"
	_ "modernc.org/sqlite"
)

// Store provides SQLite-backed persistence for ledger streams.
type Store struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens a ledger SQLite store at the provided path.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_pragma=foreign_keys(ON)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// A single connection serializes appends so seq assignment cannot race.
	sqlDB.SetMaxOpenConns(1)
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	if err := sqlitemigrate.ApplyMigrations(context.Background(), sqlDB, migrations.FS, ""); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the underlying SQLite database.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Store) ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	return nil
}

// GetOrCreateStream creates the stream when missing.
func (s *Store) GetOrCreateStream(ctx context.Context, kind event.StreamKind, name string) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("stream name is required")
	}
	if _, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO streams (name, kind, created_at) VALUES (?, ?, ?) ON CONFLICT(name) DO NOTHING`,
		name, string(kind), toMillis(time.Now()),
	); err != nil {
		return fmt.Errorf("create stream %s: %w", name, err)
	}
	var existing string
	if err := s.sqlDB.QueryRowContext(ctx, `SELECT kind FROM streams WHERE name = ?`, name).Scan(&existing); err != nil {
		return fmt.Errorf("read stream %s: %w", name, err)
	}
	if existing != string(kind) {
		return fmt.Errorf("%w: %s is %s", ledger.ErrStreamKindMismatch, name, existing)
	}
	return nil
}

// AppendEvent appends data under key.
func (s *Store) AppendEvent(ctx context.Context, stream, key string, data ledger.Data) (uint64, error) {
	if err := s.ready(ctx); err != nil {
		return 0, err
	}
	payload, err := json.Marshal(data.JSON)
	if err != nil {
		return 0, fmt.Errorf("marshal event: %w", err)
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin append: %w", err)
	}
	defer tx.Rollback()

	if err := streamExists(ctx, tx, stream); err != nil {
		return 0, err
	}
	var seq uint64
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) + 1 FROM stream_items WHERE stream = ?`, stream).Scan(&seq); err != nil {
		return 0, fmt.Errorf("next seq for %s: %w", stream, err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO stream_items (stream, seq, item_key, event_json) VALUES (?, ?, ?, ?)`,
		stream, seq, key, string(payload),
	); err != nil {
		return 0, fmt.Errorf("insert item: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit append: %w", err)
	}
	return seq, nil
}

// ReadEvents returns the items under key.
func (s *Store) ReadEvents(ctx context.Context, stream, key string) ([]ledger.Item, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	if err := streamExists(ctx, s.sqlDB, stream); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT seq, item_key, event_json FROM stream_items WHERE stream = ? AND item_key = ? ORDER BY seq`,
		stream, key,
	)
	if err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}
	return scanItems(stream, rows)
}

// ReadStream returns the items after seq.
func (s *Store) ReadStream(ctx context.Context, stream string, after uint64) ([]ledger.Item, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	if err := streamExists(ctx, s.sqlDB, stream); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT seq, item_key, event_json FROM stream_items WHERE stream = ? AND seq > ? ORDER BY seq`,
		stream, after,
	)
	if err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}
	return scanItems(stream, rows)
}

// Streams lists streams of kind in creation order.
func (s *Store) Streams(ctx context.Context, kind event.StreamKind) ([]ledger.Stream, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT name, created_at FROM streams WHERE kind = ? ORDER BY rowid`,
		string(kind),
	)
	if err != nil {
		return nil, fmt.Errorf("query streams: %w", err)
	}
	defer rows.Close()

	var out []ledger.Stream
	for rows.Next() {
		var (
			name      string
			createdAt int64
		)
		if err := rows.Scan(&name, &createdAt); err != nil {
			return nil, fmt.Errorf("scan stream: %w", err)
		}
		out = append(out, ledger.Stream{Name: name, Kind: kind, CreatedAt: fromMillis(createdAt)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate streams: %w", err)
	}
	return out, nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func streamExists(ctx context.Context, q queryer, stream string) error {
	var found int
	err := q.QueryRowContext(ctx, `SELECT 1 FROM streams WHERE name = ?`, stream).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", ledger.ErrStreamNotFound, stream)
	}
	if err != nil {
		return fmt.Errorf("check stream %s: %w", stream, err)
	}
	return nil
}

func scanItems(stream string, rows *sql.Rows) ([]ledger.Item, error) {
	defer rows.Close()

	var out []ledger.Item
	for rows.Next() {
		var (
			item    ledger.Item
			payload string
		)
		if err := rows.Scan(&item.Seq, &item.Key, &payload); err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		if err := json.Unmarshal([]byte(payload), &item.Data.JSON); err != nil {
			return nil, fmt.Errorf("unmarshal item %s/%d: %w", stream, item.Seq, err)
		}
		item.Stream = stream
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate items: %w", err)
	}
	return out, nil
}
