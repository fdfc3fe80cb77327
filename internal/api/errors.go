// Package api exposes the HTTP surface: workspace and document
// management, question answering (sync and SSE), health and metrics.
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"ragspace/internal/apperr"
)

type errorBody struct {
	Code          string `json:"code"`
	Message       string `json:"message"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

func statusForKind(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindForbidden:
		return http.StatusForbidden
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindServiceUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError maps a typed error onto the JSON envelope. Internal kinds
// hide the cause; the correlation id links the response to log lines.
func writeError(w http.ResponseWriter, logger *zap.Logger, err error) {
	var typed *apperr.Error
	if !errors.As(err, &typed) {
		typed = apperr.Wrap(apperr.KindDatabase, "internal error", err)
	}

	status := statusForKind(typed.Kind)
	body := errorBody{
		Code:          string(typed.Kind),
		Message:       typed.Message,
		CorrelationID: typed.ID,
	}
	if status == http.StatusInternalServerError {
		body.Message = "internal error"
		logger.Error("request failed",
			zap.String("kind", string(typed.Kind)),
			zap.String("correlation_id", typed.ID),
			zap.Error(err))
	}

	writeJSON(w, status, errorResponse{Error: body})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
