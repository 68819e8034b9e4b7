package main

import (
	"errors"
	"testing"
	"time"

	"github.com/ent0n29/horizon/internal/protocol"
)

func scripted(msgs ...protocol.StreamMessage) func() (protocol.StreamMessage, error) {
	return func() (protocol.StreamMessage, error) {
		if len(msgs) == 0 {
			return protocol.StreamMessage{}, errors.New("closed")
		}
		m := msgs[0]
		msgs = msgs[1:]
		return m, nil
	}
}

func fakeClock(step time.Duration) (time.Time, func() time.Time) {
	start := time.Unix(0, 0)
	cur := start
	return start, func() time.Time {
		cur = cur.Add(step)
		return cur
	}
}

func TestCollectTurnReassemblesPayload(t *testing.T) {
	start, now := fakeClock(10 * time.Millisecond)
	got, err := collectTurn(scripted(
		protocol.StreamMessage{Type: protocol.TypeKeepAlive},
		protocol.StreamMessage{Type: protocol.TypeDelta, Delta: `{"intent":"da`},
		protocol.StreamMessage{Type: protocol.TypeDelta, Delta: `ta_query"}`},
		protocol.StreamMessage{Type: protocol.TypeDone, Done: true},
	), start, now)
	if err != nil {
		t.Fatalf("collectTurn() error = %v", err)
	}
	if got.Intent != "data_query" {
		t.Fatalf("intent = %q, want %q", got.Intent, "data_query")
	}
	if got.KeepAlives != 1 {
		t.Fatalf("keep-alives = %d, want 1", got.KeepAlives)
	}
	if got.FirstEvent != 10*time.Millisecond || got.Done != 20*time.Millisecond {
		t.Fatalf("timings = %s/%s, want 10ms/20ms", got.FirstEvent, got.Done)
	}
}

func TestCollectTurnKeepsErrorEvent(t *testing.T) {
	start, now := fakeClock(time.Millisecond)
	got, err := collectTurn(scripted(
		protocol.StreamMessage{Type: protocol.TypeError, Error: "boom"},
		protocol.StreamMessage{Type: protocol.TypeDone, Done: true},
	), start, now)
	if err != nil {
		t.Fatalf("collectTurn() error = %v", err)
	}
	if got.Err != "boom" {
		t.Fatalf("err = %q, want %q", got.Err, "boom")
	}
}

func TestCollectTurnStopsOnReadError(t *testing.T) {
	start, now := fakeClock(time.Millisecond)
	if _, err := collectTurn(scripted(), start, now); err == nil {
		t.Fatalf("collectTurn() error = nil, want read error")
	}
}

func TestPercentile(t *testing.T) {
	sorted := []time.Duration{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	if got := percentile(sorted, 50); got != 5 {
		t.Fatalf("p50 = %d, want 5", got)
	}
	if got := percentile(sorted, 95); got != 10 {
		t.Fatalf("p95 = %d, want 10", got)
	}
	if got := percentile(nil, 95); got != 0 {
		t.Fatalf("empty p95 = %d, want 0", got)
	}
}

func TestWSURLForChat(t *testing.T) {
	got, err := wsURLForChat("https://example.com/base/", "chat 1")
	if err != nil {
		t.Fatalf("wsURLForChat() error = %v", err)
	}
	if want := "wss://example.com/base/v1/turns/ws?chat_id=chat+1"; got != want {
		t.Fatalf("url = %q, want %q", got, want)
	}
	if _, err := wsURLForChat("ftp://example.com", "c"); err == nil {
		t.Fatalf("expected scheme error")
	}
}

func TestSplitTextsDefaults(t *testing.T) {
	if got := splitTexts(" | "); len(got) != len(defaultUtterances) {
		t.Fatalf("len = %d, want defaults", len(got))
	}
	if got := splitTexts("a| b |"); len(got) != 2 || got[1] != "b" {
		t.Fatalf("texts = %v", got)
	}
}
