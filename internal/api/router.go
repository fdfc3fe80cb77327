package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"ragspace/internal/conversation"
	"ragspace/internal/service"
)

// Pinger reports whether a backing dependency is reachable.
type Pinger func(ctx context.Context) error

// Deps collects everything the router serves.
type Deps struct {
	Workspaces    *service.WorkspaceService
	Uploads       *service.UploadService
	Documents     *service.DocumentService
	Answers       *service.AnswerService
	Conversations conversation.Store

	MaxUploadBytes int64
	Registry       *prometheus.Registry
	ReadyChecks    map[string]Pinger
	Logger         *zap.Logger
}

// NewRouter wires the HTTP surface.
func NewRouter(deps Deps) *chi.Mux {
	ws := &workspaceHandler{workspaces: deps.Workspaces, logger: deps.Logger}
	docs := &documentHandler{
		uploads:   deps.Uploads,
		documents: deps.Documents,
		maxBytes:  deps.MaxUploadBytes,
		logger:    deps.Logger,
	}
	answers := &answerHandler{answers: deps.Answers, logger: deps.Logger}
	convs := &conversationHandler{conversations: deps.Conversations, logger: deps.Logger}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(RequestLogger(deps.Logger))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/readyz", readyHandler(deps.ReadyChecks))
	if deps.Registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(RequireActor(deps.Logger))

		r.Route("/workspaces", func(r chi.Router) {
			r.Post("/", ws.create)
			r.Get("/", ws.list)

			r.Route("/{workspaceID}", func(r chi.Router) {
				r.Get("/", ws.get)
				r.Patch("/", ws.update)
				r.Post("/archive", ws.archive)

				r.Route("/acl", func(r chi.Router) {
					r.Get("/", ws.listACL)
					r.Put("/", ws.replaceACL)
					r.Post("/", ws.grant)
					r.Delete("/{userID}", ws.revoke)
				})

				r.Route("/documents", func(r chi.Router) {
					r.Post("/", docs.upload)
					r.Get("/", docs.list)

					r.Route("/{documentID}", func(r chi.Router) {
						r.Get("/", docs.get)
						r.Delete("/", docs.delete)
						r.Get("/download", docs.download)
						r.Get("/status", docs.status)
						r.Post("/reprocess", docs.reprocess)
						r.Post("/cancel", docs.cancel)
					})
				})

				r.Post("/answers", answers.answer)
				r.Post("/answers/stream", answers.stream)
			})
		})

		r.Route("/conversations", func(r chi.Router) {
			r.Post("/", convs.create)
			r.Get("/{conversationID}", convs.history)
			r.Delete("/{conversationID}", convs.clear)
		})
	})
	return r
}

func readyHandler(checks map[string]Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		results := make(map[string]string, len(checks))
		for name, ping := range checks {
			if err := ping(ctx); err != nil {
				status = http.StatusServiceUnavailable
				results[name] = err.Error()
				continue
			}
			results[name] = "ok"
		}
		writeJSON(w, status, results)
	}
}
