// Package middleware provides net/http middleware for the gatekeeper service:
// admission control, request IDs and request logging.
//
// All middleware share the func(http.Handler) http.Handler shape and take a
// config struct whose zero value is usable (RateLimit requires a Checker).
//
//	var h http.Handler = mux
//	h = middleware.RateLimit(middleware.RateLimitConfig{
//		Checker:      orchestrator,
//		Authenticate: sessionPrincipal,
//	})(h)
//	h = middleware.Logging(middleware.LoggingConfig{Logger: log})(h)
//	h = middleware.RequestID(middleware.RequestIDConfig{})(h)
//
// Order matters: RequestID should wrap Logging so log lines carry the id.
package middleware
