package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("BRAIN_MODE", "mock")
	t.Setenv("EXPORT_DIR", t.TempDir())
	t.Setenv("ARTIFACT_DIR", t.TempDir())

	var out, errOut bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestValidateSQLAcceptsBoundedSelect(t *testing.T) {
	out, err := execute(t, "validate-sql", "SELECT name FROM projects LIMIT 5")
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	var res struct {
		OK    bool   `json:"ok"`
		Query string `json:"query"`
	}
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("decode output: %v (%q)", err, out)
	}
	if !res.OK {
		t.Fatalf("ok = false, want true")
	}
	if !strings.Contains(strings.ToLower(res.Query), "limit 5") {
		t.Fatalf("query = %q, want limit preserved", res.Query)
	}
}

func TestValidateSQLRejectsWrite(t *testing.T) {
	out, err := execute(t, "validate-sql", "DELETE FROM projects")
	if !errors.Is(err, errQueryRejected) {
		t.Fatalf("Execute() error = %v, want %v", err, errQueryRejected)
	}
	if !strings.Contains(out, `"ok": false`) || !strings.Contains(out, `"reason"`) {
		t.Fatalf("output = %q, want rejection with reason", out)
	}
}

func TestAskRunsMockTurn(t *testing.T) {
	out, err := execute(t, "ask", "--chat", "cli-test", "what is a work order?")
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	var env struct {
		ChatID string `json:"chat_id"`
		Intent string `json:"intent"`
	}
	if err := json.Unmarshal([]byte(out), &env); err != nil {
		t.Fatalf("decode output: %v (%q)", err, out)
	}
	if env.ChatID != "cli-test" {
		t.Fatalf("chat_id = %q, want %q", env.ChatID, "cli-test")
	}
	if env.Intent == "" {
		t.Fatalf("intent is empty")
	}
}

func TestHistoryOfUnknownChatIsEmpty(t *testing.T) {
	out, err := execute(t, "history", "nobody")
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if strings.TrimSpace(out) != "[]" {
		t.Fatalf("output = %q, want []", out)
	}
}

func TestSetupLoggingJSON(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	var buf bytes.Buffer
	setupLogging(&buf, "warn", "json")
	if zerolog.GlobalLevel() != zerolog.WarnLevel {
		t.Fatalf("level = %s, want warn", zerolog.GlobalLevel())
	}
	logInfoAndWarn()
	if strings.Contains(buf.String(), "info line") {
		t.Fatalf("info line written at warn level: %q", buf.String())
	}
	if !strings.Contains(buf.String(), `"message":"warn line"`) {
		t.Fatalf("output = %q, want json warn line", buf.String())
	}
}

func TestSetupLoggingUnknownLevelFallsBackToInfo(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	setupLogging(&bytes.Buffer{}, "loud", "console")
	if zerolog.GlobalLevel() != zerolog.InfoLevel {
		t.Fatalf("level = %s, want info", zerolog.GlobalLevel())
	}
}

func logInfoAndWarn() {
	log.Info().Msg("info line")
	log.Warn().Msg("warn line")
}
