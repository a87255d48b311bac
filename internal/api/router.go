/**
 * @description
 * This file sets up the HTTP router for the bond service using the go-chi/chi
 * router. It applies logging, recovery, timeout and CORS middleware, and guards
 * the bond routes with token authentication.
 */
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new Chi router and registers the bond service routes.
func NewRouter(h *Handler, auth *Authenticator, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/", h.handleHome)
	r.Get("/health", h.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware)

		r.Get("/bonds/", h.handleListBonds)
		r.Post("/bonds/", h.handleCreateBond)
		r.Get("/bonds", h.handleListBonds)
		r.Post("/bonds", h.handleCreateBond)
	})

	return r
}
