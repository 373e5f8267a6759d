package main

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/rs/cors"

	"github.com/FACorreiaa/nuam-ingest/internal/domain/auth"
)

// Router builds the public HTTP surface.
func (d *Dependencies) Router() http.Handler {
	api := http.NewServeMux()
	d.IngestHandler.Register(api)

	resolvers := []auth.Resolver{auth.BearerResolver{Tokens: d.Tokens}}
	if d.Sessions != nil {
		resolvers = append(resolvers, d.Sessions)
	}
	protected := auth.Middleware(d.Logger, resolvers...)(d.RateLimiter.Middleware(api))

	root := http.NewServeMux()
	root.Handle("/api/", protected)
	root.HandleFunc("GET /healthz", d.healthz)
	if d.Metrics != nil {
		root.Handle("GET /metrics", d.Metrics.Handler())
	}

	c := cors.New(cors.Options{
		AllowedOrigins:   d.Config.Server.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: true,
	})
	return c.Handler(accessLog(d.Logger, root))
}

func (d *Dependencies) healthz(w http.ResponseWriter, r *http.Request) {
	if d.DB != nil {
		if err := d.DB.Health(r.Context()); err != nil {
			d.Logger.Warn("health check failed", slog.Any("error", err))
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func accessLog(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logger.Info("request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", rec.status),
			slog.Duration("took", time.Since(start)),
		)
	})
}
