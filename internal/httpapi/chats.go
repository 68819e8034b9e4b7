package httpapi

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ent0n29/horizon/internal/memory"
)

type historyResponse struct {
	ChatID   string          `json:"chat_id"`
	Messages []memory.Record `json:"messages"`
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	chatID := strings.TrimSpace(chi.URLParam(r, "id"))
	if chatID == "" {
		respondError(w, http.StatusBadRequest, "invalid_chat_id", "missing chat id")
		return
	}
	records, err := s.history.Full(r.Context(), chatID)
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, "store_unavailable", err.Error())
		return
	}
	if records == nil {
		records = []memory.Record{}
	}
	respondJSON(w, http.StatusOK, historyResponse{ChatID: chatID, Messages: records})
}

func (s *Server) handleForget(w http.ResponseWriter, r *http.Request) {
	chatID := strings.TrimSpace(chi.URLParam(r, "id"))
	if chatID == "" {
		respondError(w, http.StatusBadRequest, "invalid_chat_id", "missing chat id")
		return
	}
	if err := s.history.Delete(r.Context(), chatID); err != nil {
		respondError(w, http.StatusServiceUnavailable, "store_unavailable", err.Error())
		return
	}
	if s.sessions != nil {
		s.sessions.Forget(chatID)
		s.metrics.SetActiveChats(s.sessions.ActiveCount())
	}
	w.WriteHeader(http.StatusNoContent)
}
