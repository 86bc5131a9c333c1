package handler

import (
	"net/http"

	"github.com/Shivanand-hulikatti/hotel-booking/internal/telemetry"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// RouterConfig carries everything the router wires together.
type RouterConfig struct {
	Bookings      *BookingHandler
	Auth          *Authenticator
	Log           *zap.Logger
	AllowedOrigin string

	// Idempotency is skipped when nil.
	Idempotency *IdempotencyConfig
}

// NewRouter builds the HTTP API.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Global middleware stack
	r.Use(chimiddleware.Recoverer) // recover from panics, return 500
	r.Use(chimiddleware.RequestID) // attach request IDs
	r.Use(chimiddleware.RealIP)    // trust X-Forwarded-For
	r.Use(telemetry.Middleware)    // server spans
	r.Use(Logger(cfg.Log))         // structured access log
	r.Use(CORS(cfg.AllowedOrigin))

	r.Get("/health", cfg.Bookings.HealthCheck)

	r.Route("/booking", func(r chi.Router) {
		r.Use(cfg.Auth.Middleware)
		if cfg.Idempotency != nil {
			r.Use(Idempotency(*cfg.Idempotency, cfg.Log))
		}
		r.Get("/", cfg.Bookings.GetBooking)
		r.Post("/", cfg.Bookings.CreateBooking)
		r.Put("/{bookingId}", cfg.Bookings.UpdateBooking)
	})

	return r
}
