package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"ragspace/internal/apperr"
	"ragspace/internal/service"
)

type answerHandler struct {
	answers *service.AnswerService
	logger  *zap.Logger
}

type answerRequest struct {
	Query          string `json:"query"`
	TopK           int    `json:"top_k"`
	UseMMR         *bool  `json:"use_mmr"`
	ConversationID string `json:"conversation_id"`
}

func (h *answerHandler) decode(w http.ResponseWriter, r *http.Request) (service.AnswerRequest, bool) {
	var req answerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, apperr.Wrap(apperr.KindValidation, "invalid request body", err))
		return service.AnswerRequest{}, false
	}
	return service.AnswerRequest{
		WorkspaceID:    chi.URLParam(r, "workspaceID"),
		Query:          req.Query,
		TopK:           req.TopK,
		UseMMR:         req.UseMMR,
		ConversationID: req.ConversationID,
	}, true
}

func (h *answerHandler) answer(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}
	res, err := h.answers.Answer(r.Context(), ActorFromRequest(r), req)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// stream answers over server-sent events. Each event is one JSON
// envelope; the SSE event name mirrors the envelope type.
func (h *answerHandler) stream(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}

	flusher, canFlush := w.(http.Flusher)
	if !canFlush {
		writeError(w, h.logger, apperr.New(apperr.KindServiceUnavailable, "streaming is not supported"))
		return
	}

	events, err := h.answers.AnswerStream(r.Context(), ActorFromRequest(r), req)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for ev := range events {
		payload, err := json.Marshal(ev)
		if err != nil {
			h.logger.Error("failed to encode stream event", zap.Error(err))
			return
		}
		if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, payload); err != nil {
			// Client went away; the producer notices via the request
			// context and persists the partial answer.
			return
		}
		flusher.Flush()
	}
}
