// Package http provides the HTTP delivery layer for the paid URL shortener.
// It decodes requests and payment claims, calls the use case and maps its
// errors onto status codes.
package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httplog/v2"
	"github.com/go-playground/validator/v10"
	"github.com/vadimbarashkov/paid-url-shortener/internal/payment"
	"github.com/vadimbarashkov/paid-url-shortener/pkg/middleware/ratelimit"
	"github.com/vadimbarashkov/paid-url-shortener/pkg/middleware/recoverer"
	httpSwagger "github.com/swaggo/http-swagger"
)

type RouterConfig struct {
	// BaseURL prefixes short codes in responses. Empty means derive it from the request.
	BaseURL string
	// Payment is advertised to clients whose claim is rejected.
	Payment payment.Policy
	// RateLimiter guards submissions when set.
	RateLimiter ratelimit.Store
	// Metrics is served at /metrics when set.
	Metrics http.Handler
}

// NewRouter initializes and returns a new Chi router configured with middleware and routes for the shortener API.
func NewRouter(logger *httplog.Logger, urlUseCase urlUseCase, cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*"},
		AllowedMethods:   []string{"POST", "GET", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Accept", paymentHeader},
		ExposedHeaders:   []string{"Retry-After"},
		AllowCredentials: false,
		MaxAge:           84600,
	}))
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(httplog.RequestLogger(logger))
	r.Use(recoverer.New(logger.Logger))

	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/docs/swagger.yml"),
	))

	r.Get("/docs/swagger.yml", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, "./docs/swagger.yml")
	})

	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics)
	}

	h := newURLHandler(urlUseCase, validator.New(), cfg.BaseURL, toPaymentRequirements(cfg.Payment))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/ping", handlePing)

		r.Route("/shorten", func(r chi.Router) {
			if cfg.RateLimiter != nil {
				r.With(ratelimit.Middleware(cfg.RateLimiter, logger.Logger)).Post("/", h.shortenURL)
			} else {
				r.Post("/", h.shortenURL)
			}

			r.Route("/{shortCode}", func(r chi.Router) {
				r.Get("/", h.resolveShortCode)
				r.Delete("/", h.deactivateURL)
				r.Get("/stats", h.getURLStats)
			})
		})
	})

	r.Get("/{shortCode}", h.redirect)

	return r
}
