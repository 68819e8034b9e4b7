package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/ent0n29/horizon/internal/orchestrator"
	"github.com/ent0n29/horizon/internal/protocol"
	"github.com/ent0n29/horizon/internal/session"
	"github.com/ent0n29/horizon/internal/stream"
)

type turnRequest struct {
	ChatID    string `json:"chat_id"`
	UserInput string `json:"user_input"`
}

func (s *Server) decodeTurn(w http.ResponseWriter, r *http.Request) (turnRequest, bool) {
	var req turnRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return req, false
	}
	req.ChatID = strings.TrimSpace(req.ChatID)
	if req.ChatID == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "chat_id is required")
		return req, false
	}
	if !s.limiter.Allow(req.ChatID) {
		respondError(w, http.StatusTooManyRequests, "rate_limited", "too many turns for this chat, slow down")
		return req, false
	}
	return req, true
}

func (s *Server) handleTurn(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeTurn(w, r)
	if !ok {
		return
	}
	resp, err := s.turns.Run(r.Context(), req.ChatID, req.UserInput)
	if err != nil {
		status, code := turnErrorStatus(err)
		respondError(w, status, code, err.Error())
		return
	}
	status := http.StatusOK
	if resp.Error != nil {
		status = http.StatusUnprocessableEntity
	}
	respondJSON(w, status, resp)
}

func turnErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, orchestrator.ErrChatIDRequired):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, session.ErrBusy):
		return http.StatusConflict, "chat_busy"
	default:
		return http.StatusInternalServerError, "turn_failed"
	}
}

func (s *Server) turnWork(chatID, input string) stream.Work {
	return func(ctx context.Context) ([]byte, error) {
		resp, err := s.turns.Run(ctx, chatID, input)
		if err != nil {
			return nil, err
		}
		return json.Marshal(resp)
	}
}

func (s *Server) handleTurnStream(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeTurn(w, r)
	if !ok {
		return
	}
	rc := http.NewResponseController(w)
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	_ = rc.Flush()

	emit := func(ev stream.Event) error {
		if _, err := w.Write(ev.SSE()); err != nil {
			return err
		}
		s.metrics.ObserveStreamEvent("sse", string(ev.Kind))
		return rc.Flush()
	}
	if err := stream.Run(r.Context(), s.stream, s.turnWork(req.ChatID, req.UserInput), emit); err != nil {
		log.Debug().Err(err).Str("chat_id", req.ChatID).Msg("sse consumer gone")
	}
}

func (s *Server) handleTurnWS(w http.ResponseWriter, r *http.Request) {
	chatID := strings.TrimSpace(r.URL.Query().Get("chat_id"))
	if chatID == "" {
		respondError(w, http.StatusBadRequest, "missing_chat_id", "query parameter chat_id is required")
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx := r.Context()
	write := func(msg protocol.StreamMessage) error {
		_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := conn.WriteJSON(msg); err != nil {
			return err
		}
		s.metrics.ObserveStreamEvent("ws", string(msg.Type))
		return nil
	}
	fail := func(detail string) error {
		return write(protocol.StreamMessage{Type: protocol.TypeError, ChatID: chatID, Error: detail})
	}

	conn.SetReadLimit(1 << 20)
	for {
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		parsed, err := protocol.ParseClientMessage(data)
		if err != nil {
			if fail(err.Error()) != nil {
				return
			}
			continue
		}

		switch m := parsed.(type) {
		case protocol.Ping:
			if write(protocol.StreamMessage{Type: protocol.TypeKeepAlive, ChatID: chatID}) != nil {
				return
			}
		case protocol.UserTurn:
			if m.ChatID != "" && m.ChatID != chatID {
				if fail("chat_id does not match this connection") != nil {
					return
				}
				continue
			}
			if !s.limiter.Allow(chatID) {
				if fail("too many turns for this chat, slow down") != nil {
					return
				}
				continue
			}
			emit := func(ev stream.Event) error {
				return write(wsMessage(chatID, ev))
			}
			if err := stream.Run(ctx, s.stream, s.turnWork(chatID, m.UserInput), emit); err != nil {
				log.Debug().Err(err).Str("chat_id", chatID).Msg("websocket consumer gone")
				return
			}
		}
	}
}

func wsMessage(chatID string, ev stream.Event) protocol.StreamMessage {
	msg := protocol.StreamMessage{ChatID: chatID}
	switch ev.Kind {
	case stream.KindKeepAlive:
		msg.Type = protocol.TypeKeepAlive
	case stream.KindDelta:
		msg.Type, msg.Delta = protocol.TypeDelta, ev.Delta
	case stream.KindError:
		msg.Type, msg.Error = protocol.TypeError, ev.Err
	case stream.KindDone:
		msg.Type, msg.Done = protocol.TypeDone, true
	}
	return msg
}
