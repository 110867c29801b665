package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/neexbeast/tripplanner/internal/metrics"
)

// NewRouter builds and returns the Chi router with all routes configured.
// Health and metrics are unauthenticated; all trip routes require bearer auth.
// Rate limiting is applied globally: 60 requests per minute per IP.
// redisClient may be nil when no Redis is configured.
func NewRouter(handlers *Handlers, token string, corsOrigins []string, db dbPinger, redisClient redisPinger, log *slog.Logger) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(Metrics)
	r.Use(cors.New(cors.Options{
		AllowedOrigins: corsOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	}).Handler)
	r.Use(httprate.LimitByIP(60, time.Minute))

	r.Get("/api/v1/health", HealthHandlerFunc(db, redisClient, log))
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(token))
		r.Post("/api/v1/itineraries", handlers.GenerateItinerary)
		r.Get("/api/v1/trips/{tripID}", handlers.GetTrip)
		r.Post("/api/v1/trips/{tripID}/optimize", handlers.OptimizeTrip)
		r.Post("/api/v1/trips/{tripID}/days/{day}/stops", handlers.InsertStop)
		r.Delete("/api/v1/trips/{tripID}/days/{day}/stops/{placeID}", handlers.RemoveStop)
		r.Put("/api/v1/trips/{tripID}/days/{day}/stops/{placeID}/position", handlers.MoveStop)
	})

	return r
}

// Ensure chi.Mux implements http.Handler.
var _ http.Handler = (*chi.Mux)(nil)
