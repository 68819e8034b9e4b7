// Package stream exposes a long-running turn as keep-alive, delta and done
// events.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
)

type Kind string

const (
	KindKeepAlive Kind = "keep_alive"
	KindDelta     Kind = "delta"
	KindDone      Kind = "done"
	KindError     Kind = "error"
)

// Event is one streamed frame.
type Event struct {
	Kind  Kind
	Delta string
	Err   string
}

// JSON is the event body. Keep-alive events have none.
func (e Event) JSON() []byte {
	var v any
	switch e.Kind {
	case KindDelta:
		v = struct {
			Delta string `json:"delta"`
		}{e.Delta}
	case KindDone:
		v = struct {
			Done bool `json:"done"`
		}{true}
	case KindError:
		v = struct {
			Error string `json:"error"`
		}{e.Err}
	default:
		return nil
	}
	raw, _ := json.Marshal(v)
	return raw
}

// SSE renders the event as a server-sent-events frame.
func (e Event) SSE() []byte {
	if e.Kind == KindKeepAlive {
		return []byte(": keep-alive\n\n")
	}
	return []byte("data: " + string(e.JSON()) + "\n\n")
}

const (
	DefaultInterval  = 750 * time.Millisecond
	DefaultChunkSize = 256
)

type Config struct {
	Interval  time.Duration
	ChunkSize int
}

// Work produces the serialized final payload.
type Work func(ctx context.Context) ([]byte, error)

// Emit writes one event. An error means the consumer is gone.
type Emit func(Event) error

var ErrPanicked = errors.New("stream work panicked")

type outcome struct {
	payload []byte
	err     error
}

// Run supervises work, emitting keep-alive events every interval until it
// completes, then the payload as delta events and a terminal done event.
// A work error or panic becomes one error event followed by done. Nothing is
// emitted after done. Run returns the first emit error or ctx.Err().
func Run(ctx context.Context, cfg Config, work Work, emit Emit) error {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}

	results := make(chan outcome, 1)
	go func() {
		var out outcome
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).Msg("stream work panicked")
				out = outcome{err: fmt.Errorf("%w: %v", ErrPanicked, r)}
			}
			results <- out
		}()
		payload, err := work(ctx)
		out = outcome{payload: payload, err: err}
	}()

	ticker := time.NewTicker(cfg.Interval)
	var res outcome
wait:
	for {
		select {
		case res = <-results:
			ticker.Stop()
			break wait
		case <-ticker.C:
			if err := emit(Event{Kind: KindKeepAlive}); err != nil {
				ticker.Stop()
				return err
			}
		case <-ctx.Done():
			ticker.Stop()
			return ctx.Err()
		}
	}

	if res.err != nil {
		if err := emit(Event{Kind: KindError, Err: res.err.Error()}); err != nil {
			return err
		}
		return emit(Event{Kind: KindDone})
	}
	for _, chunk := range Chunks(res.payload, cfg.ChunkSize) {
		if err := emit(Event{Kind: KindDelta, Delta: chunk}); err != nil {
			return err
		}
	}
	return emit(Event{Kind: KindDone})
}

// Chunks splits payload into pieces of at most size bytes without splitting
// a UTF-8 sequence. An empty payload yields one empty chunk.
func Chunks(payload []byte, size int) []string {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if len(payload) == 0 {
		return []string{""}
	}
	var out []string
	for len(payload) > 0 {
		n := size
		if n >= len(payload) {
			n = len(payload)
		} else {
			for n > 0 && !utf8.RuneStart(payload[n]) {
				n--
			}
			if n == 0 {
				_, n = utf8.DecodeRune(payload)
			}
		}
		out = append(out, string(payload[:n]))
		payload = payload[n:]
	}
	return out
}
