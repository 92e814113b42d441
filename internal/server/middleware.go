package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"ican-broker/internal/models"
)

type contextKey string

const requestIDKey contextKey = "request_id"

// statusWriter captures the response status for logging and metrics.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
	})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(sw, r)

		duration := time.Since(start)
		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = r.URL.Path
		}
		if s.obs != nil {
			s.obs.RecordRequest(r.Context(), route, sw.status, duration)
		}
		s.logger.Info("request handled", map[string]interface{}{
			"method":      r.Method,
			"route":       route,
			"status":      sw.status,
			"duration_ms": duration.Milliseconds(),
			"request_id":  r.Context().Value(requestIDKey),
		})
	})
}

func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", map[string]interface{}{
					"panic":      rec,
					"path":       r.URL.Path,
					"request_id": r.Context().Value(requestIDKey),
				})
				s.writeEnvelope(w, http.StatusInternalServerError, models.Fail("internal error"))
			}
		}()
		next.ServeHTTP(w, r)
	})
}
