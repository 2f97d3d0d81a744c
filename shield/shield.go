// Package shield provides reusable HTTP middleware for the domresolve
// API surface: security headers, request body limits, per-request IDs
// with a structured logger, and in-memory rate limiting.
//
// Usage:
//
//	r := chi.NewRouter()
//	r.Use(shield.SecurityHeaders(shield.DefaultHeaders()))
//	r.Use(shield.MaxBody(4 << 20))
//	r.Use(shield.RequestID)
//	r.Use(shield.NewRateLimiter(shield.RateLimitConfig{}).Middleware)
//
// Or apply the default stack in one call:
//
//	for _, mw := range shield.DefaultStack() {
//	    r.Use(mw)
//	}
package shield

import (
	"context"
	"log/slog"
	"net/http"
)

type contextKey string

// LoggerKey is the context key for the per-request structured logger.
const LoggerKey contextKey = "shield_logger"

// GetLogger retrieves the per-request logger from the context.
// Returns slog.Default() if no logger was set.
func GetLogger(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(LoggerKey).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}

// DefaultStack returns the standard middleware stack for the domresolve
// API, ordered: SecurityHeaders, MaxBody, RequestID, RateLimiter.
// The body limit is generous because resolve requests carry raw HTML.
func DefaultStack() []func(http.Handler) http.Handler {
	rl := NewRateLimiter(RateLimitConfig{}, "/healthz")
	return []func(http.Handler) http.Handler{
		SecurityHeaders(DefaultHeaders()),
		MaxBody(8 << 20),
		RequestID,
		rl.Middleware,
	}
}
