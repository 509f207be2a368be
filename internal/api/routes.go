package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func (s *Server) setupRoutes(r chi.Router) {
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		requestLogger(s.logger),
		middleware.Recoverer,
	)
	if s.requestTimeout > 0 {
		r.Use(withTimeout(s.requestTimeout))
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "resource not found: "+r.URL.Path)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method "+r.Method+" not allowed on "+r.URL.Path)
	})

	// Public
	r.Get("/healthz", s.handleHealth)
	r.Post("/login", s.handleLogin)
	r.Post("/logout", s.handleLogout)

	// Authenticated
	r.Group(func(r chi.Router) {
		r.Use(s.requireLogin)

		r.Post("/register", s.handleRegister)
		r.Get("/users", s.handleListUsers)
		r.Post("/remove_user/{id}", s.handleRemoveUser)

		r.Get("/count_registrations/{course}", s.handleCountRegistrations)
		r.Get("/count_attendances/{course}/{lesson}", s.handleCountAttendances)
		r.Get("/count_exam_participations/{course}/{day}/{month}/{year}", s.handleCountExamParticipations)

		r.Get("/get_records_by_operation/{op}/{course}/{info}", s.handleRecords)
		r.Get("/get_records_by_operation/{op}/{course}/{day}/{month}/{year}", s.handleRecords)
	})
}

// requestLogger logs one line per request through slog.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Info("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}

// withTimeout bounds the request context. Handlers turn a deadline hit
// into 408.
func withTimeout(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), d)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
