package api

import (
	"log/slog"
	"net/http"

	"github.com/example/es-bank-account/internal/api/middleware"
	"github.com/example/es-bank-account/internal/auth"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// RouterConfig wires the HTTP surface. A nil JWT leaves the account routes
// open and skips the token endpoint.
type RouterConfig struct {
	Handlers *Handlers
	Auth     *AuthHandlers
	JWT      *auth.JWTService
	Metrics  http.Handler
	Log      *slog.Logger
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(cfg.Log))
	r.Use(chimw.Recoverer)

	h := cfg.Handlers
	r.Get("/healthz", h.Health)
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics)
	}

	r.Route("/api", func(r chi.Router) {
		if cfg.JWT != nil && cfg.Auth != nil {
			r.Post("/auth/token", cfg.Auth.IssueToken)
		}

		r.Route("/accounts", func(r chi.Router) {
			r.Get("/", h.ListAccounts)
			r.Get("/{id}/balance", h.GetBalance)
			r.Get("/{id}/state", h.GetState)

			r.Group(func(r chi.Router) {
				if cfg.JWT != nil {
					r.Use(middleware.RequireOperator(cfg.JWT))
				}
				r.Post("/", h.CreateAccount)
				r.Post("/{id}/deposit", h.Deposit)
				r.Post("/{id}/withdraw", h.Withdraw)
				r.Post("/{id}/transfer", h.Transfer)
			})
		})
	})

	return r
}
