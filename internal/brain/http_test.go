package brain

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHTTPProviderConsumeSSE(t *testing.T) {
	p := NewHTTPProvider("http://example.test", false)
	stream := strings.NewReader(strings.Join([]string{
		": keepalive",
		"",
		"data: {\"delta\":\"Hel\"}",
		"",
		"data: {\"delta\":\"lo\"}",
		"",
		"data: [DONE]",
		"",
	}, "\n"))

	text, err := p.consumeLines(stream, true)
	if err != nil {
		t.Fatalf("consumeLines() error = %v", err)
	}
	if text != "Hello" {
		t.Fatalf("text = %q, want %q", text, "Hello")
	}
}

func TestHTTPProviderConsumeSSEStrictInvalidJSON(t *testing.T) {
	p := NewHTTPProvider("http://example.test", true)
	_, err := p.consumeLines(strings.NewReader("data: {not-json}\n\n"), true)
	if err == nil {
		t.Fatalf("consumeLines() expected error for invalid strict payload")
	}
}

func TestHTTPProviderConsumeNDJSON(t *testing.T) {
	p := NewHTTPProvider("http://example.test", false)
	stream := strings.NewReader(strings.Join([]string{
		"{\"delta\":\"Hi\"}",
		" there",
		"[DONE]",
	}, "\n"))

	text, err := p.consumeLines(stream, false)
	if err != nil {
		t.Fatalf("consumeLines() error = %v", err)
	}
	if text != "Hithere" {
		t.Fatalf("text = %q, want %q", text, "Hithere")
	}
}

func TestHTTPProviderRespondJSONBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if !strings.Contains(string(body), `"task":"plan"`) {
			t.Errorf("request body = %s, want task field", body)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"text":"{\"subtasks\":[]}"}`))
	}))
	defer srv.Close()

	resp, err := NewHTTPProvider(srv.URL, false).Respond(context.Background(), Request{Task: TaskPlan})
	if err != nil {
		t.Fatalf("Respond() error = %v", err)
	}
	if resp.Text != `{"subtasks":[]}` {
		t.Fatalf("resp.Text = %q", resp.Text)
	}
}

func TestHTTPProviderRespondStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewHTTPProvider(srv.URL, false).Respond(context.Background(), Request{Task: TaskPlan})
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("Respond() error = %v, want *StatusError", err)
	}
	if statusErr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want %d", statusErr.Code, http.StatusServiceUnavailable)
	}
}
