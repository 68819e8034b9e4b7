package brain

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HTTPProvider forwards requests to a generic JSON endpoint. The endpoint may
// answer with a JSON object, SSE, or NDJSON; streamed fragments are joined.
type HTTPProvider struct {
	url    string
	strict bool
	client *http.Client
}

func NewHTTPProvider(url string, strict bool) *HTTPProvider {
	return &HTTPProvider{
		url:    strings.TrimSpace(url),
		strict: strict,
		client: &http.Client{Timeout: 60 * time.Second},
	}
}

func (p *HTTPProvider) Name() string { return "http" }

func (p *HTTPProvider) Respond(ctx context.Context, req Request) (Response, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return Response{}, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(payload))
	if err != nil {
		return Response{}, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	res, err := p.client.Do(httpReq)
	if err != nil {
		return Response{}, fmt.Errorf("send request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return Response{}, &StatusError{Code: res.StatusCode, Body: string(body)}
	}

	var text string
	ct := strings.ToLower(res.Header.Get("Content-Type"))
	switch {
	case strings.Contains(ct, "text/event-stream"):
		text, err = p.consumeLines(res.Body, true)
	case strings.Contains(ct, "application/x-ndjson"):
		text, err = p.consumeLines(res.Body, false)
	default:
		text, err = p.consumeBody(res.Body)
	}
	if err != nil {
		return Response{}, err
	}
	if strings.TrimSpace(text) == "" {
		return Response{}, ErrEmptyResponse
	}
	return Response{Text: text, Provider: p.Name()}, nil
}

// StatusError is a non-2xx reply from the provider endpoint.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("brain http status %d: %s", e.Code, e.Body)
}

func (p *HTTPProvider) consumeBody(body io.Reader) (string, error) {
	raw, err := io.ReadAll(body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return strings.TrimSpace(string(raw)), nil
	}
	return extractText(obj), nil
}

func (p *HTTPProvider) consumeLines(body io.Reader, sse bool) (string, error) {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var out strings.Builder
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}
		if sse {
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			line = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		}
		if line == "[DONE]" {
			break
		}

		var obj map[string]any
		if err := json.Unmarshal([]byte(line), &obj); err != nil {
			if p.strict {
				return "", fmt.Errorf("invalid stream payload %q: %w", line, err)
			}
			out.WriteString(line)
			continue
		}
		out.WriteString(extractText(obj))
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("stream read: %w", err)
	}
	return out.String(), nil
}

func extractText(obj map[string]any) string {
	for _, k := range []string{"text", "delta", "output", "message", "content"} {
		if s, ok := obj[k].(string); ok {
			return s
		}
	}
	return ""
}
