// Package api provides HTTP middleware components for the Card Battle
// System render service. Includes HMAC authentication, request logging,
// size limiting, rate limiting, and health check functionality.
package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	"card-battle-system/pkg/auth"
	"card-battle-system/pkg/db"
	"card-battle-system/pkg/logger"
	"card-battle-system/pkg/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	MaxRequestSize = 5 * 1024 * 1024 // Maximum allowed request size: 5MB
)

// Middleware provides HTTP middleware functionality with HMAC authentication
// and request logging for the render service.
type Middleware struct {
	hmacAuth *auth.HMACAuth // HMAC authenticator for request verification
	db       *db.RenderDB   // Render database for nonce replay tracking
}

// NewMiddleware creates a new middleware instance with HMAC authentication
// and the render database used for nonce tracking.
func NewMiddleware(hmacAuth *auth.HMACAuth, database *db.RenderDB) *Middleware {
	return &Middleware{
		hmacAuth: hmacAuth,
		db:       database,
	}
}

// RequestLogging middleware logs HTTP request start and completion with timing.
// Automatically generates request IDs and tracks response status codes.
func (m *Middleware) RequestLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Create request ID if not present
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}

		// Add to context for later use
		r.Header.Set("X-Request-ID", requestID)

		// Create response writer wrapper to capture status code
		wrapped := &responseWriter{ResponseWriter: w, statusCode: 200}

		log.Info().
			Str("request_id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote_addr", r.RemoteAddr).
			Msg("Request started")

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start)
		log.Info().
			Str("request_id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", wrapped.statusCode).
			Dur("duration", duration).
			Msg("Request completed")
	})
}

// SizeLimit middleware restricts request body size to prevent resource exhaustion.
// Rejects requests larger than MaxRequestSize (5MB) with appropriate error response.
func (m *Middleware) SizeLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, MaxRequestSize)
		next.ServeHTTP(w, r)
	})
}

// HMACAuth middleware validates HMAC-SHA256 signatures and prevents replay attacks.
// Checks authorization headers, verifies signatures, and tracks nonces.
func (m *Middleware) HMACAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		reqLog := logger.WithRequestID(requestID)

		// Check Authorization header
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			m.writeError(w, http.StatusUnauthorized, "MISSING_AUTH", "Authorization header required", requestID)
			return
		}

		// Parse auth header
		authInfo, err := auth.ParseAuthHeader(authHeader)
		if err != nil {
			reqLog.Error().Err(err).Msg("Failed to parse auth header")
			m.writeError(w, http.StatusUnauthorized, "INVALID_AUTH", "Invalid authorization header", requestID)
			return
		}

		// Read and buffer the body
		body, err := io.ReadAll(r.Body)
		if err != nil {
			reqLog.Error().Err(err).Msg("Failed to read request body")
			m.writeError(w, http.StatusBadRequest, "READ_ERROR", "Failed to read request body", requestID)
			return
		}

		// Restore body for later use
		r.Body = io.NopCloser(bytes.NewReader(body))

		// Check for nonce replay
		seen, err := m.db.HasSeenNonce(authInfo.Nonce)
		if err != nil {
			reqLog.Error().Err(err).Msg("Failed to check nonce")
			m.writeError(w, http.StatusInternalServerError, "NONCE_CHECK_FAILED", "Failed to check nonce", requestID)
			return
		}
		if seen {
			reqLog.Error().Str("nonce", authInfo.Nonce).Msg("Nonce replay detected")
			m.writeError(w, http.StatusUnauthorized, "REPLAY_ATTACK", "Nonce already seen", requestID)
			return
		}

		// Verify signature
		if err := m.hmacAuth.VerifySignature(r.Method, r.URL.EscapedPath(), body, authInfo); err != nil {
			reqLog.Error().Err(err).Str("key_id", authInfo.KeyID).Msg("Signature verification failed")
			m.writeError(w, http.StatusUnauthorized, "INVALID_SIGNATURE", "Signature verification failed", requestID)
			return
		}

		// Save nonce to prevent replay
		if err := m.db.SaveNonce(authInfo.Nonce); err != nil {
			reqLog.Error().Err(err).Msg("Failed to save nonce")
			// Continue anyway - this is not critical
		}

		reqLog.Debug().Str("key_id", authInfo.KeyID).Msg("Authentication successful")
		next.ServeHTTP(w, r)
	})
}

// writeError sends a standardized JSON error response to the client.
// Includes structured error details with request ID for tracing.
func (m *Middleware) writeError(w http.ResponseWriter, statusCode int, code, message, requestID string) {
	WriteError(w, statusCode, code, message, requestID)
}

// WriteError sends a standardized JSON error response to the client.
func WriteError(w http.ResponseWriter, statusCode int, code, message, requestID string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	errorResp := models.ErrorResponse{
		Error: models.ErrorDetails{
			Code:      code,
			Message:   message,
			RequestID: requestID,
		},
	}

	json.NewEncoder(w).Encode(errorResp)
}

// responseWriter wraps http.ResponseWriter to capture the status code.
// Used by request logging middleware to track response status.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

// WriteHeader captures the status code and delegates to the wrapped writer.
func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// HealthCheck provides a simple health status endpoint.
// Returns 200 OK with status message for load balancer health checks.
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// ReadinessCheck provides a readiness probe that verifies database connectivity.
// Returns 503 Service Unavailable if database operations fail.
func ReadinessCheck(database *db.RenderDB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := "ok"
		statusCode := http.StatusOK

		// Try a simple nonce check to verify DB is working
		if _, err := database.HasSeenNonce("readiness-check"); err != nil {
			status = "database connection failed"
			statusCode = http.StatusServiceUnavailable
			log.Error().Err(err).Msg("Database readiness check failed")
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(statusCode)
		json.NewEncoder(w).Encode(map[string]string{"status": status})
	}
}

// RateLimiter enforces a sliding-window limit on actions per key. The bot
// uses it to cap how many commands a single user may issue per minute.
type RateLimiter struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	seen   map[int64][]time.Time
}

// NewRateLimiter creates a limiter allowing limit actions per window per key.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		limit:  limit,
		window: window,
		seen:   make(map[int64][]time.Time),
	}
}

// Allow records an action for the key and reports whether it fits within
// the window. Timestamps older than the window are dropped as a side effect.
func (rl *RateLimiter) Allow(key int64) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-rl.window)

	kept := rl.seen[key][:0]
	for _, ts := range rl.seen[key] {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}

	if len(kept) >= rl.limit {
		rl.seen[key] = kept
		return false
	}

	rl.seen[key] = append(kept, now)
	return true
}
