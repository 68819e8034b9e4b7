// Package dataaccess executes validated read statements and looks up
// entities for summaries.
package dataaccess

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/ent0n29/horizon/internal/safety"
)

// Rows is a fetched result set. Records preserve column order via Columns.
type Rows struct {
	Columns []string
	Records []map[string]any
}

// Runner executes statements that passed the safety validator. Accepting only
// safety.SafeQuery keeps unvalidated text out of the data source.
type Runner interface {
	RunSelect(ctx context.Context, q safety.SafeQuery) (Rows, error)
}

// SQLRunner runs statements over database/sql.
type SQLRunner struct {
	db          *sql.DB
	readOnlyTx  bool
	placeholder string
}

// Open picks the driver from the DSN: postgres:// for pgx, sqlite: or
// file: for SQLite.
func Open(dsn string) (*SQLRunner, error) {
	dsn = strings.TrimSpace(dsn)
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		db, err := sql.Open("pgx", dsn)
		if err != nil {
			return nil, fmt.Errorf("open data source: %w", err)
		}
		return &SQLRunner{db: db, readOnlyTx: true, placeholder: "$1"}, nil
	case strings.HasPrefix(dsn, "sqlite:"), strings.HasPrefix(dsn, "file:"):
		db, err := sql.Open("sqlite", strings.TrimPrefix(dsn, "sqlite:"))
		if err != nil {
			return nil, fmt.Errorf("open data source: %w", err)
		}
		db.SetMaxOpenConns(1)
		return NewSQLRunner(db), nil
	default:
		return nil, fmt.Errorf("unsupported data source %q", dsn)
	}
}

// NewSQLRunner wraps an open SQLite-style database ("?" placeholders).
func NewSQLRunner(db *sql.DB) *SQLRunner { return &SQLRunner{db: db, placeholder: "?"} }

func (r *SQLRunner) RunSelect(ctx context.Context, q safety.SafeQuery) (Rows, error) {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: r.readOnlyTx})
	if err != nil {
		return Rows{}, fmt.Errorf("begin read: %w", err)
	}
	// Reads never commit.
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, q.SQL)
	if err != nil {
		return Rows{}, fmt.Errorf("run select: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return Rows{}, fmt.Errorf("read columns: %w", err)
	}
	out := Rows{Columns: cols, Records: []map[string]any{}}
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return Rows{}, fmt.Errorf("scan row: %w", err)
		}
		rec := make(map[string]any, len(cols))
		for i, c := range cols {
			if b, ok := vals[i].([]byte); ok {
				rec[c] = string(b)
				continue
			}
			rec[c] = vals[i]
		}
		out.Records = append(out.Records, rec)
		if q.Limit > 0 && len(out.Records) >= q.Limit {
			break
		}
	}
	if err := rows.Err(); err != nil {
		return Rows{}, fmt.Errorf("iterate rows: %w", err)
	}
	return out, nil
}

func (r *SQLRunner) DB() *sql.DB { return r.db }

func (r *SQLRunner) Close() error { return r.db.Close() }

// SeedDemo creates and fills the demo tables described by catalog.Default.
func SeedDemo(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS projects (id INTEGER PRIMARY KEY, name TEXT, status TEXT, owner TEXT, budget REAL)`,
		`CREATE TABLE IF NOT EXISTS work_orders (id INTEGER PRIMARY KEY, project_id INTEGER, title TEXT, state TEXT, hours REAL)`,
		`INSERT OR IGNORE INTO projects VALUES
			(1, 'Apollo', 'active', 'li', 120000),
			(2, 'Borealis', 'active', 'ana', 80000),
			(3, 'Cobalt', 'paused', 'sam', 45000),
			(4, 'Dune', 'closed', 'li', 30000)`,
		`INSERT OR IGNORE INTO work_orders VALUES
			(1, 1, 'Site survey', 'done', 12.5),
			(2, 1, 'Permit filing', 'open', 4),
			(3, 2, 'Vendor onboarding', 'open', 8),
			(4, 3, 'Budget review', 'done', 3)`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("seed demo data: %w", err)
		}
	}
	return nil
}
