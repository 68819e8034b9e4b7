package memory

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS chat_messages (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	id TEXT NOT NULL UNIQUE,
	chat_id TEXT NOT NULL,
	role TEXT NOT NULL,
	content TEXT NOT NULL,
	payload TEXT,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_chat_messages_chat_seq ON chat_messages (chat_id, seq);
`

// SQLiteStore persists conversation history in an embedded SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens path (":memory:" for a private in-memory database).
func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// Single writer; WAL lets readers proceed.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout = 5000"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite %q: %w", pragma, err)
		}
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init sqlite schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Append(ctx context.Context, record Record) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	var payload any
	if len(record.Payload) > 0 {
		payload = string(record.Payload)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chat_messages (id, chat_id, role, content, payload, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		record.ID, record.ChatID, record.Role, record.Content, payload, record.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Recent(ctx context.Context, chatID string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 10
	}
	items, err := s.query(ctx,
		`SELECT id, chat_id, role, content, payload, created_at FROM chat_messages
		 WHERE chat_id = ? ORDER BY seq DESC LIMIT ?`, chatID, limit)
	if err != nil {
		return nil, err
	}
	newestFirstToChronological(items)
	return items, nil
}

func (s *SQLiteStore) All(ctx context.Context, chatID string) ([]Record, error) {
	return s.query(ctx,
		`SELECT id, chat_id, role, content, payload, created_at FROM chat_messages
		 WHERE chat_id = ? ORDER BY seq ASC`, chatID)
}

func (s *SQLiteStore) query(ctx context.Context, q string, args ...any) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var items []Record
	for rows.Next() {
		var (
			r       Record
			payload sql.NullString
			nanos   int64
		)
		if err := rows.Scan(&r.ID, &r.ChatID, &r.Role, &r.Content, &payload, &nanos); err != nil {
			return nil, fmt.Errorf("scan message row: %w", err)
		}
		if payload.Valid && payload.String != "" {
			r.Payload = []byte(payload.String)
		}
		r.CreatedAt = time.Unix(0, nanos).UTC()
		items = append(items, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate message rows: %w", err)
	}
	return items, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, chatID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM chat_messages WHERE chat_id = ?`, chatID); err != nil {
		return fmt.Errorf("delete chat: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *SQLiteStore) Close() error { return s.db.Close() }
