// Package router sets up all HTTP routes and middleware chains for the
// Graphiste GPT API. Routes are organised into public, authenticated,
// webhook and back-office groups.
package router

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"graphiste/internal/handlers"
	"graphiste/internal/metrics"
	"graphiste/internal/middleware"
	"graphiste/internal/models"
)

// Deps carries everything the routes are built from.
type Deps struct {
	Auth     *middleware.Authenticator
	Limiter  *middleware.RateLimiter // applied to the AI endpoints; may be nil
	API      *handlers.API
	Public   *handlers.Public
	Admin    *handlers.Admin
	Webhooks *handlers.Webhooks

	// AllowedOrigins is the comma separated list of browser origins.
	AllowedOrigins string
	// HSTS enables Strict-Transport-Security (production behind TLS).
	HSTS bool
}

// New creates the configured Chi router.
func New(d Deps) chi.Router {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Logger)
	r.Use(metrics.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   splitOrigins(d.AllowedOrigins),
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Client-Info", "Apikey"},
		ExposedHeaders:   []string{"X-Request-Id", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(middleware.SecureHeaders(d.HSTS))

	r.Get("/health", healthHandler)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	// Gateways sign their deliveries; no bearer token.
	r.Post("/webhooks/{provider}", d.Webhooks.Receive)

	r.Route("/api", func(r chi.Router) {
		r.Use(d.Auth.Authenticate)

		r.Get("/plans", d.API.Plans)
		r.Route("/templates", func(r chi.Router) {
			r.Get("/", d.Public.Templates)
			r.Get("/domains", d.Public.Domains)
			r.Get("/{id}", d.Public.Template)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAuth)

			r.Get("/me", d.API.Me)
			r.Get("/subscription", d.API.Subscription)
			r.Post("/credits/check", d.API.CheckCredits)
			r.Get("/credits/history", d.API.CreditHistory)
			r.Get("/images", d.API.Images)
			r.Delete("/images/{id}", d.API.DeleteImage)
			r.Get("/payments", d.API.Payments)
			r.Post("/payments/{provider}/init", d.API.InitPayment)

			r.Route("/conversation", func(r chi.Router) {
				r.Get("/", d.API.Conversation)
				r.Post("/", d.API.AdvanceConversation)
				r.Delete("/", d.API.ResetConversation)
			})

			// Endpoints that call an AI provider.
			r.Group(func(r chi.Router) {
				if d.Limiter != nil {
					r.Use(d.Limiter.Middleware)
				}
				r.Post("/generate", d.API.Generate)
				r.Post("/chat", d.API.Chat)
				r.Post("/analyze-image", d.API.AnalyzeImage)
				r.Post("/transcribe", d.API.Transcribe)
				r.Post("/uploads", d.API.Upload)
			})
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.RequireStaff)

			r.With(middleware.RequirePermission(models.PermStatsView)).Get("/stats", d.Admin.Stats)

			r.Route("/users", func(r chi.Router) {
				r.Group(func(r chi.Router) {
					r.Use(middleware.RequirePermission(models.PermUsersManage))
					r.Get("/", d.Admin.Users)
					r.Post("/{id}/roles", d.Admin.AddRole)
					r.Delete("/{id}/roles/{role}", d.Admin.RemoveRole)
				})
				r.With(middleware.RequirePermission(models.PermCreditsGrant)).Post("/{id}/credits", d.Admin.GrantCredits)
			})

			r.With(middleware.RequirePermission(models.PermPaymentsView)).Get("/payments", d.Admin.Payments)

			r.Route("/templates", func(r chi.Router) {
				r.Use(middleware.RequirePermission(models.PermTemplatesManage))
				r.Get("/", d.Admin.Templates)
				r.Post("/", d.Admin.CreateTemplate)
				r.Put("/{id}", d.Admin.UpdateTemplate)
				r.Post("/{id}/active", d.Admin.SetTemplateActive)
				r.Delete("/{id}", d.Admin.DeleteTemplate)
			})

			// Switching providers affects every user: admins only.
			r.Route("/ai", func(r chi.Router) {
				r.Use(middleware.RequireRole(models.RoleAdmin))
				r.Get("/", d.Admin.AIStatus)
				r.Post("/provider", d.Admin.AISetProvider)
			})
		})
	})

	return r
}

// Timeouts for the HTTP server. Generation waits on the image provider,
// which can take well over a minute at 4K.
const (
	ReadTimeout  = 15 * time.Second
	WriteTimeout = 180 * time.Second
	IdleTimeout  = 120 * time.Second
)

func splitOrigins(s string) []string {
	var out []string
	for _, o := range strings.Split(s, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

// healthHandler returns a simple JSON health check response.
func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}
