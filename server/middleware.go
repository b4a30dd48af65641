package server

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	apperrors "catalog-hierarchy/errors"
	"catalog-hierarchy/models"
	"catalog-hierarchy/services"
)

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Create a response writer wrapper to capture status code
		wrapper := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapper, r)

		s.logger.Info("HTTP request",
			services.String("method", r.Method),
			services.String("path", r.URL.Path),
			services.String("remote_addr", r.RemoteAddr),
			services.Int("status_code", wrapper.statusCode),
			services.Duration("duration", time.Since(start)),
			services.String("user_agent", r.UserAgent()),
		)
	})
}

var allowedOrigins = []string{
	"http://localhost",
	"https://localhost",
}

// corsMiddleware handles CORS headers
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")

		allowOrigin := "*"
		for _, allowed := range allowedOrigins {
			if origin != "" && strings.HasPrefix(origin, allowed) {
				allowOrigin = origin
				break
			}
		}

		w.Header().Set("Access-Control-Allow-Origin", allowOrigin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS, PATCH")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With, Accept, Origin")
		w.Header().Set("Access-Control-Max-Age", "86400") // 24 hours

		// Handle preflight requests
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// contentTypeMiddleware sets default content type
func (s *Server) contentTypeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") == "" && isMutation(r.Method) {
			r.Header.Set("Content-Type", "application/json")
		}
		next.ServeHTTP(w, r)
	})
}

// rateLimitMiddleware throttles mutating requests with a shared token bucket.
// Reads are never throttled.
func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isMutation(r.Method) && !s.limiter.Allow() {
			appErr := apperrors.NewRateLimitError(apperrors.ErrCodeRateLimited, "Too many mutation requests", nil)
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(appErr.GetHTTPStatusCode())
			_ = json.NewEncoder(w).Encode(models.APIError{
				Type:    string(appErr.Type),
				Code:    appErr.Code,
				Message: appErr.Message,
			})
			s.logger.Warn("Rate limited", services.String("method", r.Method), services.String("path", r.URL.Path))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func isMutation(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
