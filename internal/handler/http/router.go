package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// NewRouter builds the admin API router.
func NewRouter(h *ProcessingHandler, log *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(requestLogger(log))

	r.Route("/api/processing", func(r chi.Router) {
		r.Post("/run", h.RunNow())
		r.Get("/status", h.GetStatus())
		r.Get("/log", h.GetLog())
	})

	return r
}

// requestLogger logs each request's method, path, and duration.
func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			log.Info("request handled",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Duration("duration", time.Since(start)),
			)
		})
	}
}
