package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)       // Basic request logging
	r.Use(middleware.Recoverer)    // Recover from panics
	r.Use(middleware.StripSlashes) // Ensure consistent path handling

	r.Get("/health", h.Health)

	// All API routes live under /api. Token checks happen in the services so
	// endpoint behavior matches the core contracts exactly.
	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", h.Register)
			r.Post("/login", h.Login)
			r.Post("/logout", h.Logout)
			r.Get("/me", h.Me)
		})

		r.Post("/chat", h.Chat)
		r.Post("/search", h.Search)
		r.Get("/conversations/{sessionID}", h.ConversationHistory)
		r.Get("/knowledge", h.Knowledge)
		r.Get("/statistics", h.Statistics)
	})

	return r
}
