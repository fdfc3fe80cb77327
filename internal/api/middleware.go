package api

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"ragspace/internal/apperr"
	"ragspace/internal/model"
)

type contextKey string

const actorKey contextKey = "actor"

// Identity headers are set by the authenticating gateway in front of
// this service.
const (
	headerUserID   = "X-User-ID"
	headerUserRole = "X-User-Role"
)

// ActorFromRequest extracts the caller identity placed in the context
// by RequireActor.
func ActorFromRequest(r *http.Request) model.Actor {
	actor, _ := r.Context().Value(actorKey).(model.Actor)
	return actor
}

// RequireActor rejects requests without identity headers and stores the
// actor in the request context.
func RequireActor(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := r.Header.Get(headerUserID)
			role := model.ActorRole(r.Header.Get(headerUserRole))
			if userID == "" || (role != model.ActorRoleAdmin && role != model.ActorRoleEmployee) {
				writeError(w, logger, apperr.New(apperr.KindForbidden, "missing or invalid identity headers"))
				return
			}
			actor := model.Actor{UserID: userID, Role: role}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), actorKey, actor)))
		})
	}
}

// RequestLogger emits one structured line per request.
func RequestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			logger.Info("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", rec.status),
				zap.Duration("duration", time.Since(start)))
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
