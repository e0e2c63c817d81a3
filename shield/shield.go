// Package shield provides reusable HTTP middleware for the API surface:
// security headers, rate limiting, body limits, request tracing, and HEAD
// method handling.
//
// Usage:
//
//	r := chi.NewRouter()
//	r.Use(shield.SecurityHeaders(shield.DefaultHeaders()))
//	r.Use(shield.MaxBody(1 << 20))
//	r.Use(shield.TraceID)
//	r.Use(shield.NewRateLimiter(db).Middleware)
//
// Or apply the default API stack in one call:
//
//	stack, rl := shield.DefaultAPIStack(db)
//	rl.StartReloader(done)
//	for _, mw := range stack {
//	    r.Use(mw)
//	}
package shield

import (
	"database/sql"
	"net/http"
)

type contextKey string

const (
	// LoggerKey is the context key for the per-request structured logger.
	LoggerKey contextKey = "shield_logger"

	// TraceIDKey is the context key for the per-request trace id.
	TraceIDKey contextKey = "shield_trace_id"
)

// DefaultAPIStack returns the standard middleware stack for the JSON API.
// Middleware is ordered: HeadToGet, then SecurityHeaders, MaxBody, TraceID
// and RateLimiter. The returned RateLimiter handle allows callers to start
// the rule reloader. Health checks (/api/health) bypass rate limiting.
func DefaultAPIStack(db *sql.DB) ([]func(http.Handler) http.Handler, *RateLimiter) {
	rl := NewRateLimiter(db, "/api/health")
	return []func(http.Handler) http.Handler{
		HeadToGet,
		SecurityHeaders(DefaultHeaders()),
		MaxBody(1 << 20),
		TraceID,
		rl.Middleware,
	}, rl
}
