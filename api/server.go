/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. RealIP:     Client address behind proxies
  3. Logger:     zap access log carrying the request ID
  4. Recoverer:  Panic recovery (500 instead of crash)
  5. CORS:       Cross-origin requests for the HR frontend
  6. Auth:       Bearer JWT on every /api route

ROUTE GROUPS:
  /healthz              Liveness, no auth
  /api/profiles/*       Profiles, contracts, balances (hr for writes)
  /api/requests/*       Leave, swap and replace requests, decisions
  /api/inbox            Approver inbox
  /api/holidays/*       Holiday calendar (hr for writes)
  /api/scenarios/*      Demo data (hr)

SEE ALSO:
  - handlers.go: Handler implementations
  - auth.go: Identity and role middleware
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

// RouterOptions configures NewRouter.
type RouterOptions struct {
	AllowedOrigins []string
	Logger         *zap.Logger
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, auth *Authenticator, opts RouterOptions) *chi.Mux {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	})

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Use(auth.Middleware)

		// Profile routes
		r.Route("/profiles/{id}", func(r chi.Router) {
			r.Get("/", h.GetProfile)
			r.With(RequireRole(RoleHR)).Put("/", h.PutProfile)
			r.With(RequireRole(RoleHR)).Post("/contracts/renew", h.RenewContract)
			r.Get("/balances", h.GetBalances)
			r.Post("/balances/refresh", h.RefreshBalances)
			r.Get("/days-off", h.GetDaysOff)
		})

		// Request routes
		r.Route("/requests", func(r chi.Router) {
			r.Post("/leave", h.CreateLeave)
			r.Post("/swap", h.CreateSwap)
			r.Post("/replace", h.CreateReplace)
			r.Get("/mine", h.ListMine)
			r.Post("/bulk-decision", h.BulkDecide)
			r.Get("/{id}", h.GetRequest)
			r.Put("/{id}/leave", h.UpdateLeave)
			r.Post("/{id}/cancel", h.CancelRequest)
			r.Post("/{id}/decision", h.Decide)
		})

		r.Get("/inbox", h.Inbox)

		// Holiday routes
		r.Route("/holidays", func(r chi.Router) {
			r.Get("/", h.ListHolidays)
			r.With(RequireRole(RoleHR)).Post("/", h.CreateHoliday)
			r.With(RequireRole(RoleHR)).Delete("/{id}", h.DeleteHoliday)
		})

		// Scenario routes
		r.Route("/scenarios", func(r chi.Router) {
			r.Use(RequireRole(RoleHR))
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
		})
	})

	return r
}

// requestLogger writes one zap entry per request.
func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				fields := []zap.Field{
					zap.String("request_id", middleware.GetReqID(r.Context())),
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", ww.Status()),
					zap.Int("bytes", ww.BytesWritten()),
					zap.Duration("duration", time.Since(start)),
				}
				if ww.Status() >= http.StatusInternalServerError {
					logger.Error("http request", fields...)
					return
				}
				logger.Info("http request", fields...)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
