package middleware

import (
	"context"
	"net/http"

	"github.com/eduplatform/gatekeeper/core/admission"
	"github.com/eduplatform/gatekeeper/core/handler"
	"github.com/eduplatform/gatekeeper/core/response"
	"github.com/eduplatform/gatekeeper/pkg/clientip"
)

// Checker decides whether a request is admitted. *admission.Orchestrator implements it.
type Checker interface {
	Check(ctx context.Context, r admission.Request) admission.Decision
}

// Principal is the authenticated caller of a request.
type Principal struct {
	UserID  string
	Premium bool
	Staff   bool
}

// RateLimitConfig configures the rate limiting middleware.
type RateLimitConfig struct {
	// Checker makes the admission decision. Required.
	Checker Checker
	// Skip defines a function to skip middleware execution for specific requests.
	Skip func(r *http.Request) bool
	// Authenticate returns the caller, if any. Anonymous when nil or not ok.
	Authenticate func(r *http.Request) (Principal, bool)
	// OnReject replaces the default 429 JSON response built by Rejection.
	OnReject func(ctx handler.Context, d admission.Decision) handler.Response
}

// RateLimit admits or rejects each request with cfg.Checker. Admitted
// responses carry the X-RateLimit-* headers; rejected requests get 429 with
// Retry-After and a JSON body. Panics if no checker is provided.
func RateLimit(cfg RateLimitConfig) func(http.Handler) http.Handler {
	if cfg.Checker == nil {
		panic("ratelimit middleware: checker is required")
	}

	if cfg.OnReject == nil {
		cfg.OnReject = func(_ handler.Context, d admission.Decision) handler.Response {
			return Rejection(d)
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg.Skip != nil && cfg.Skip(r) {
				next.ServeHTTP(w, r)
				return
			}

			d := cfg.Checker.Check(r.Context(), admissionRequest(r, cfg.Authenticate))
			if !d.Allowed {
				ctx := handler.NewContext(w, r)
				if resp := cfg.OnReject(ctx, d); resp != nil {
					if err := resp(w, r); err != nil {
						response.JSONErrorHandler(ctx, err)
					}
				}
				return
			}

			for k, vs := range d.Headers {
				for _, v := range vs {
					w.Header().Add(k, v)
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Rejection renders a rejected decision: 429, the decision headers
// (Retry-After, X-RateLimit-Exceeded) and the RejectionBody as JSON.
func Rejection(d admission.Decision) handler.Response {
	return response.WithHeaders(response.JSONWithStatus(d.Body(), d.StatusCode()), d.Headers)
}

func admissionRequest(r *http.Request, authenticate func(*http.Request) (Principal, bool)) admission.Request {
	req := admission.Request{
		RemoteAddr: r.RemoteAddr,
		Path:       r.URL.Path,
		Method:     r.Method,
	}
	if ip, ok := clientip.FromHeaders(r); ok {
		req.ForwardedFor = ip
	}
	if authenticate != nil {
		if p, ok := authenticate(r); ok {
			req.UserID = p.UserID
			req.Premium = p.Premium
			req.Staff = p.Staff
		}
	}
	return req
}
