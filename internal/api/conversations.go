package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"ragspace/internal/apperr"
	"ragspace/internal/conversation"
)

type conversationHandler struct {
	conversations conversation.Store
	logger        *zap.Logger
}

type messageResponse struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type conversationResponse struct {
	ConversationID string            `json:"conversation_id"`
	Messages       []messageResponse `json:"messages"`
}

func (h *conversationHandler) create(w http.ResponseWriter, r *http.Request) {
	id, err := h.conversations.Create(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"conversation_id": id})
}

func (h *conversationHandler) history(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, h.logger, apperr.Wrap(apperr.KindValidation, "limit must be an integer", err))
			return
		}
		limit = n
	}
	id := chi.URLParam(r, "conversationID")
	messages, err := h.conversations.Get(r.Context(), id, limit)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	out := conversationResponse{
		ConversationID: id,
		Messages:       make([]messageResponse, 0, len(messages)),
	}
	for _, m := range messages {
		out.Messages = append(out.Messages, messageResponse{Role: string(m.Role), Content: m.Content})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *conversationHandler) clear(w http.ResponseWriter, r *http.Request) {
	if err := h.conversations.Clear(r.Context(), chi.URLParam(r, "conversationID")); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
