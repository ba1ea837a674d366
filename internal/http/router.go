package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gatepass/server/internal/auth"
	"github.com/gatepass/server/internal/http/handlers"
	"github.com/gatepass/server/internal/middleware"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// Handlers groups the endpoint handlers the router mounts
type Handlers struct {
	Health     *handlers.HealthHandler
	Scan       *handlers.ScanHandler
	Credential *handlers.CredentialHandler
}

// NewRouter creates a new HTTP router with all routes configured
func NewRouter(h Handlers, jwtService *auth.JWTService, scanLimiter *middleware.RateLimiter, logger *slog.Logger) *chi.Mux {
	if logger == nil {
		logger = slog.Default()
	}
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(requestLogger(logger))
	r.Use(chimw.Recoverer)

	r.Get("/health", h.Health.ServeHTTP)

	// Protected routes (require valid JWT)
	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthMiddleware(jwtService))

		r.With(
			middleware.RequireRole(auth.RoleStaff, auth.RoleAdmin),
			middleware.RateLimitMiddleware(scanLimiter, middleware.GetActorKey),
		).Post("/scan", h.Scan.HandleScan)

		r.Route("/attendees/{id}", func(r chi.Router) {
			r.With(middleware.RequireRole(auth.RoleStaff, auth.RoleAdmin)).Post("/checkin", h.Scan.HandleCheckIn)

			r.Route("/credential", func(r chi.Router) {
				r.Use(middleware.RequireRole(auth.RoleAdmin))
				r.Get("/", h.Credential.HandleInfo)
				r.Post("/", h.Credential.HandleIssue)
				r.Post("/reissue", h.Credential.HandleReissue)
				r.Get("/image", h.Credential.HandleImage)
			})
		})
	})

	return r
}

// requestLogger logs one line per request with the chi request id
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				logger.Info("request",
					slog.String("request_id", chimw.GetReqID(r.Context())),
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.Int("status", ww.Status()),
					slog.Int("bytes", ww.BytesWritten()),
					slog.Duration("duration", time.Since(start)),
				)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
