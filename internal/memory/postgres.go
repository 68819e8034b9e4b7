package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists conversation history in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := initPostgresSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

func initPostgresSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS chat_messages (
			seq BIGSERIAL PRIMARY KEY,
			id TEXT NOT NULL UNIQUE,
			chat_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			payload JSONB,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_chat_messages_chat_seq ON chat_messages (chat_id, seq);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) Append(ctx context.Context, record Record) error {
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

	_, err := s.pool.Exec(ctx,
		`INSERT INTO chat_messages (id, chat_id, role, content, payload, created_at)
		 VALUES ($1, $2, $3, $4, $5::jsonb, $6)`,
		record.ID,
		record.ChatID,
		record.Role,
		record.Content,
		payload,
		record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	return nil
}

func (s *PostgresStore) Recent(ctx context.Context, chatID string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, chat_id, role, content, payload, created_at
		 FROM chat_messages WHERE chat_id=$1 ORDER BY seq DESC LIMIT $2`,
		chatID,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query recent messages: %w", err)
	}
	defer rows.Close()

	items := make([]Record, 0, limit)
	for rows.Next() {
		r, err := scanPostgresRecord(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate message rows: %w", err)
	}

	newestFirstToChronological(items)
	return items, nil
}

func (s *PostgresStore) All(ctx context.Context, chatID string) ([]Record, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, chat_id, role, content, payload, created_at
		 FROM chat_messages WHERE chat_id=$1 ORDER BY seq ASC`,
		chatID,
	)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var items []Record
	for rows.Next() {
		r, err := scanPostgresRecord(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, r)
	}
	return items, rows.Err()
}

func scanPostgresRecord(rows pgx.Rows) (Record, error) {
	var (
		r       Record
		payload []byte
	)
	if err := rows.Scan(&r.ID, &r.ChatID, &r.Role, &r.Content, &payload, &r.CreatedAt); err != nil {
		return Record{}, fmt.Errorf("scan message row: %w", err)
	}
	if len(payload) > 0 {
		r.Payload = payload
	}
	return r, nil
}

func (s *PostgresStore) Delete(ctx context.Context, chatID string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM chat_messages WHERE chat_id=$1`, chatID); err != nil {
		return fmt.Errorf("delete chat: %w", err)
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
