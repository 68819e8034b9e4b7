// Command perfturns replays synthetic turns over the websocket endpoint and
// reports client-observed latency.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/ent0n29/horizon/internal/protocol"
)

type options struct {
	baseURL        string
	chatID         string
	turns          int
	interTurnDelay time.Duration
	turnTimeout    time.Duration
	texts          []string
	verbose        bool
}

var defaultUtterances = []string{
	"how many projects are there",
	"list active projects and export to csv",
	"what is a work order?",
	"give me a summary of Apollo",
	"draft a work request for a site survey",
}

// turnTiming is what the client saw for one turn.
type turnTiming struct {
	FirstEvent time.Duration
	Done       time.Duration
	KeepAlives int
	Bytes      int
	Intent     string
	Err        string
}

func main() {
	cfg, err := parseFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "perfturns: %v\n", err)
		os.Exit(2)
	}
	if err := run(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "perfturns: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags() (options, error) {
	var cfg options
	var textsRaw string
	var interTurnMS int
	var turnTimeoutMS int

	flag.StringVar(&cfg.baseURL, "base-url", "http://127.0.0.1:8080", "horizon base URL")
	flag.StringVar(&cfg.chatID, "chat-id", "", "chat id for the replay (random when empty)")
	flag.IntVar(&cfg.turns, "turns", 10, "number of turns to replay")
	flag.IntVar(&interTurnMS, "inter-turn-ms", 100, "delay between turns in milliseconds")
	flag.IntVar(&turnTimeoutMS, "turn-timeout-ms", 30000, "timeout waiting for done per turn in milliseconds")
	flag.StringVar(&textsRaw, "texts", "", "utterances separated by '|' (optional)")
	flag.BoolVar(&cfg.verbose, "verbose", true, "print replay progress")
	flag.Parse()

	cfg.baseURL = strings.TrimRight(strings.TrimSpace(cfg.baseURL), "/")
	if cfg.baseURL == "" {
		return options{}, fmt.Errorf("base-url is required")
	}
	if cfg.turns <= 0 {
		return options{}, fmt.Errorf("turns must be > 0")
	}
	if strings.TrimSpace(cfg.chatID) == "" {
		cfg.chatID = "perf-" + uuid.NewString()
	}
	if interTurnMS < 0 {
		interTurnMS = 0
	}
	if turnTimeoutMS < 1000 {
		turnTimeoutMS = 1000
	}
	cfg.interTurnDelay = time.Duration(interTurnMS) * time.Millisecond
	cfg.turnTimeout = time.Duration(turnTimeoutMS) * time.Millisecond
	cfg.texts = splitTexts(textsRaw)
	return cfg, nil
}

func splitTexts(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, "|") {
		if t := strings.TrimSpace(part); t != "" {
			out = append(out, t)
		}
	}
	if len(out) == 0 {
		return append([]string(nil), defaultUtterances...)
	}
	return out
}

func run(cfg options) error {
	ctx, cancel := context.WithTimeout(context.Background(), 8*time.Minute)
	defer cancel()

	wsURL, err := wsURLForChat(cfg.baseURL, cfg.chatID)
	if err != nil {
		return fmt.Errorf("build ws URL: %w", err)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("open websocket: %w", err)
	}
	defer conn.Close()

	if cfg.verbose {
		fmt.Printf("perfturns: chat=%s turns=%d\n", cfg.chatID, cfg.turns)
	}

	timings := make([]turnTiming, 0, cfg.turns)
	for i := 0; i < cfg.turns; i++ {
		text := cfg.texts[i%len(cfg.texts)]
		msg := protocol.UserTurn{Type: protocol.TypeUserTurn, ChatID: cfg.chatID, UserInput: text}
		started := time.Now()
		if err := conn.WriteJSON(msg); err != nil {
			return fmt.Errorf("turn %d send: %w", i+1, err)
		}
		_ = conn.SetReadDeadline(time.Now().Add(cfg.turnTimeout))
		timing, err := collectTurn(func() (protocol.StreamMessage, error) {
			var m protocol.StreamMessage
			err := conn.ReadJSON(&m)
			return m, err
		}, started, time.Now)
		if err != nil {
			return fmt.Errorf("turn %d: %w", i+1, err)
		}
		timings = append(timings, timing)
		if cfg.verbose {
			fmt.Printf("perfturns: turn %d/%d intent=%s first=%s done=%s keep_alives=%d text=%q\n",
				i+1, cfg.turns, timing.Intent, timing.FirstEvent.Round(time.Millisecond), timing.Done.Round(time.Millisecond), timing.KeepAlives, text)
		}
		if cfg.interTurnDelay > 0 && i < cfg.turns-1 {
			time.Sleep(cfg.interTurnDelay)
		}
	}

	report(os.Stdout, timings)
	return printServerLatency(ctx, cfg.baseURL)
}

// collectTurn reads messages until done and reassembles the payload.
func collectTurn(next func() (protocol.StreamMessage, error), started time.Time, now func() time.Time) (turnTiming, error) {
	var (
		t       turnTiming
		payload strings.Builder
		first   = true
	)
	for {
		m, err := next()
		if err != nil {
			return t, err
		}
		if first {
			t.FirstEvent = now().Sub(started)
			first = false
		}
		switch m.Type {
		case protocol.TypeKeepAlive:
			t.KeepAlives++
		case protocol.TypeDelta:
			payload.WriteString(m.Delta)
		case protocol.TypeError:
			t.Err = m.Error
		case protocol.TypeDone:
			t.Done = now().Sub(started)
			t.Bytes = payload.Len()
			if t.Err != "" {
				return t, nil
			}
			var env struct {
				Intent string `json:"intent"`
			}
			if err := json.Unmarshal([]byte(payload.String()), &env); err != nil {
				return t, fmt.Errorf("decode final payload: %w", err)
			}
			t.Intent = env.Intent
			return t, nil
		}
	}
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func report(w *os.File, timings []turnTiming) {
	done := make([]time.Duration, 0, len(timings))
	failed := 0
	for _, t := range timings {
		done = append(done, t.Done)
		if t.Err != "" {
			failed++
		}
	}
	sort.Slice(done, func(i, j int) bool { return done[i] < done[j] })
	fmt.Fprintf(w, "perfturns: turns=%d failed=%d p50=%s p95=%s max=%s\n",
		len(timings), failed,
		percentile(done, 50).Round(time.Millisecond),
		percentile(done, 95).Round(time.Millisecond),
		percentile(done, 100).Round(time.Millisecond))
}

func printServerLatency(ctx context.Context, baseURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/v1/perf/latency", nil)
	if err != nil {
		return err
	}
	res, err := (&http.Client{Timeout: 10 * time.Second}).Do(req)
	if err != nil {
		return fmt.Errorf("fetch server latency: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return errors.New("fetch server latency: " + res.Status)
	}
	var snapshot any
	if err := json.NewDecoder(res.Body).Decode(&snapshot); err != nil {
		return fmt.Errorf("decode server latency: %w", err)
	}
	out, _ := json.MarshalIndent(snapshot, "", "  ")
	fmt.Printf("perfturns: server stage latency\n%s\n", out)
	return nil
}

func wsURLForChat(baseURL, chatID string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported base-url scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/v1/turns/ws"
	q := u.Query()
	q.Set("chat_id", chatID)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
