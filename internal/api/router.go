// Package api exposes the conversation store over JSON HTTP.
package api

import (
	"log/slog"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// maxBodyBytes bounds request bodies; image references and audio payloads
// travel inline.
const maxBodyBytes = 4 << 20

// NewRouter creates and configures the HTTP router.
func NewRouter(s ConversationStore, logger *slog.Logger) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(Metrics)
	r.Use(Logging(logger))
	r.Use(chimw.Recoverer)
	r.Use(MaxBodySize(maxBodyBytes))

	h := NewHandler(s, logger)

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/health", h.Health)
	r.Get("/stats", h.Stats)

	r.Route("/conversations", func(r chi.Router) {
		r.Use(RequireUser)

		r.Post("/", h.CreateConversation)
		r.Get("/", h.ListConversations)
		r.Get("/{id}", h.GetConversation)
		r.Patch("/{id}", h.RenameConversation)
		r.Post("/{id}/messages", h.AppendMessage)
	})

	return r
}
