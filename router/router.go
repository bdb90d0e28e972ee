package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/Tarbo/litmus-platform/config"
	"github.com/Tarbo/litmus-platform/experiments"
	"github.com/Tarbo/litmus-platform/handler"
	gwmw "github.com/Tarbo/litmus-platform/middleware"
	"github.com/Tarbo/litmus-platform/observability"
)

// NewRouter returns a configured chi Router with the full middleware
// chain and every experimentation route mounted.
func NewRouter(cfg *config.Config, appLogger zerolog.Logger, coordinator *experiments.Coordinator, metrics *observability.Metrics) http.Handler {
	r := chi.NewRouter()

	// --- Middleware chain (order matters) ---
	r.Use(gwmw.CORSMiddleware([]string{"*"}))
	r.Use(gwmw.SecurityHeadersMiddleware)
	r.Use(gwmw.RequestIDMiddleware)
	r.Use(chimw.Recoverer)
	r.Use(mwRequestLogger(appLogger))
	r.Use(mwMaxBodySize(cfg.MaxBodyBytes))

	// --- Health + metrics endpoints (no auth required) ---
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok","service":"litmus-platform"}`))
	})

	r.Get("/ready", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ready","service":"litmus-platform"}`))
	})

	if metrics != nil {
		r.Get("/metrics", metrics.Handler())
	}

	// --- API routes (rate limiting on all; auth on writes) ---
	h := handler.NewExperimentHandler(coordinator)
	authMW := gwmw.NewAuthMiddleware(appLogger, cfg.AdminTokens, cfg.AuthBypassed())
	rateLimiter := gwmw.NewRateLimiter(appLogger, cfg.RateLimitEnabled, cfg.RateLimitRPM, cfg.RateLimitBurst)
	timeoutMW := gwmw.NewTimeoutMiddleware(appLogger, cfg)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(rateLimiter.Handler)
		r.Use(timeoutMW.Handler)

		// Writes require a valid bearer token; reads stay open behind
		// only the rate limiter and timeout above.
		r.Group(func(r chi.Router) {
			r.Use(authMW.Handler)

			r.Post("/experiments", h.CreateExperiment)
			r.Post("/experiments/{id}/terminate", h.Terminate)
			r.Post("/experiments/{id}/decision", h.Decide)

			r.Post("/assignments", h.Assign)

			r.Post("/events", h.IngestEvent)
			r.Post("/events/exposure", h.IngestExposure)
			r.Post("/events/metric", h.IngestMetric)

			r.Post("/metrics/guardrails", h.RecordGuardrail)
		})

		r.Get("/experiments", h.ListExperiments)
		r.Get("/experiments/{id}", h.GetExperiment)
		r.Get("/experiments/{id}/decision-history", h.DecisionHistory)
		r.Get("/experiments/{id}/report", h.Report)
		r.Get("/experiments/{id}/export", h.Export)
		r.Get("/experiments/{id}/snapshots", h.Snapshots)

		r.Get("/metrics/guardrails/{experiment_id}", h.ListGuardrails)

		r.Get("/results/{id}", h.Results)
	})

	return r
}

// mwMaxBodySize returns middleware that limits the request body size.
func mwMaxBodySize(maxBytes int64) func(http.Handler) http.Handler {
	if maxBytes <= 0 {
		maxBytes = 1 * 1024 * 1024
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > 0 && r.ContentLength > maxBytes {
				http.Error(w, `{"error":{"type":"invalid_argument","message":"request body too large"}}`, http.StatusRequestEntityTooLarge)
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}

func mwRequestLogger(appLogger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(rw, r)
			dur := time.Since(start)
			appLogger.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("req_id", r.Header.Get("X-Request-ID")).
				Int("status", rw.Status()).
				Dur("duration", dur).
				Msg("request completed")
		})
	}
}
