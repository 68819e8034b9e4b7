package dataaccess

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrEntityNotFound is returned when the source has no such entity.
var ErrEntityNotFound = errors.New("entity not found")

// EntitySource fetches structured facts about a named entity.
type EntitySource interface {
	Lookup(ctx context.Context, name string) (map[string]any, error)
}

// HTTPEntitySource queries GET {base}/entities/{name}.
type HTTPEntitySource struct {
	baseURL string
	client  *http.Client
}

func NewHTTPEntitySource(baseURL string) *HTTPEntitySource {
	return &HTTPEntitySource{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

func (s *HTTPEntitySource) Lookup(ctx context.Context, name string) (map[string]any, error) {
	u := s.baseURL + "/entities/" + url.PathEscape(strings.TrimSpace(name))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create entity request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	res, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("entity lookup: %w", err)
	}
	defer res.Body.Close()

	switch {
	case res.StatusCode == http.StatusNotFound:
		return nil, ErrEntityNotFound
	case res.StatusCode < 200 || res.StatusCode >= 300:
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return nil, fmt.Errorf("entity lookup status %d: %s", res.StatusCode, string(body))
	}

	var facts map[string]any
	if err := json.NewDecoder(io.LimitReader(res.Body, 1<<20)).Decode(&facts); err != nil {
		return nil, fmt.Errorf("decode entity: %w", err)
	}
	return facts, nil
}

// SQLEntitySource looks entities up by name in one table of a data source.
type SQLEntitySource struct {
	runner *SQLRunner
	table  string
}

func NewSQLEntitySource(runner *SQLRunner, table string) *SQLEntitySource {
	return &SQLEntitySource{runner: runner, table: table}
}

func (s *SQLEntitySource) Lookup(ctx context.Context, name string) (map[string]any, error) {
	rows, err := s.runner.DB().QueryContext(ctx,
		fmt.Sprintf(`SELECT * FROM %s WHERE lower(name) = lower(%s) LIMIT 1`, s.table, s.runner.placeholder), strings.TrimSpace(name))
	if err != nil {
		return nil, fmt.Errorf("entity lookup: %w", err)
	}
	defer rows.Close()
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, ErrEntityNotFound
	}
	vals := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, err
	}
	facts := make(map[string]any, len(cols))
	for i, c := range cols {
		if b, ok := vals[i].([]byte); ok {
			facts[c] = string(b)
			continue
		}
		facts[c] = vals[i]
	}
	return facts, nil
}
