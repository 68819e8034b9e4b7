package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/ent0n29/horizon/internal/config"
	"github.com/ent0n29/horizon/internal/memory"
	"github.com/ent0n29/horizon/internal/observability"
	horizonotel "github.com/ent0n29/horizon/internal/otel"
	"github.com/ent0n29/horizon/internal/session"
	"github.com/ent0n29/horizon/internal/stream"
	"github.com/ent0n29/horizon/internal/turn"
)

// Turns runs one turn to completion.
type Turns interface {
	Run(ctx context.Context, chatID, input string) (turn.FinalResponse, error)
}

// History is the conversation store behind the chat endpoints.
type History interface {
	Full(ctx context.Context, chatID string) ([]memory.Record, error)
	Delete(ctx context.Context, chatID string) error
	Ping(ctx context.Context) error
}

type Server struct {
	cfg      config.Config
	turns    Turns
	history  History
	sessions *session.Manager
	metrics  *observability.Metrics
	limiter  *chatLimiter
	stream   stream.Config
	upgrader websocket.Upgrader
}

func New(cfg config.Config, turns Turns, history History, sessions *session.Manager, metrics *observability.Metrics) *Server {
	return &Server{
		cfg:      cfg,
		turns:    turns,
		history:  history,
		sessions: sessions,
		metrics:  metrics,
		limiter:  newChatLimiter(cfg.RateLimitRPM),
		stream:   stream.Config{Interval: cfg.StreamKeepAlive, ChunkSize: cfg.StreamChunkSize},
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(horizonotel.Middleware())

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})
	r.Get("/v1/perf/latency", s.handlePerfLatency)

	r.Post("/v1/turns", s.handleTurn)
	r.Post("/v1/turns/stream", s.handleTurnStream)
	r.Get("/v1/turns/ws", s.handleTurnWS)
	r.Get("/v1/chats/{id}/history", s.handleHistory)
	r.Delete("/v1/chats/{id}", s.handleForget)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":       "ok",
		"active_chats": s.activeChats(),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.history != nil {
		if err := s.history.Ping(r.Context()); err != nil {
			respondError(w, http.StatusServiceUnavailable, "store_unavailable", err.Error())
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

func (s *Server) activeChats() int {
	if s.sessions == nil {
		return 0
	}
	return s.sessions.ActiveCount()
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
