package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"strconv"
	"time"

	"github.com/eduplatform/gatekeeper/core/admission"
	"github.com/eduplatform/gatekeeper/core/cache"
	"github.com/eduplatform/gatekeeper/core/handler"
	"github.com/eduplatform/gatekeeper/core/health"
	"github.com/eduplatform/gatekeeper/core/logger"
	"github.com/eduplatform/gatekeeper/core/response"
	"github.com/eduplatform/gatekeeper/middleware"
)

const maxBodyBytes = 64 << 10

type routerDeps struct {
	logger       *slog.Logger
	checker      middleware.Checker
	publisher    admission.Publisher
	readiness    []func(context.Context) error
	sections     []health.Section
	upstream     *httputil.ReverseProxy
	authenticate func(*http.Request) (middleware.Principal, bool)
}

func newRouter(d routerDeps) http.Handler {
	mux := http.NewServeMux()

	mux.Handle("GET /health/live", handler.Handle(health.Liveness, response.ErrorHandler))
	mux.Handle("GET /ping", handler.Handle(health.NoContent, response.ErrorHandler))
	mux.Handle("GET /health/ready", handler.Handle(health.Readiness(d.logger, d.readiness...), response.ErrorHandler))
	mux.Handle("GET /health/status", handler.Handle(health.Report(d.sections...), response.JSONErrorHandler))

	mux.Handle("POST /v1/admission/check", handler.Handle(checkHandler(d.checker), response.JSONErrorHandler))
	mux.Handle("POST /v1/events/session-recorded", handler.Handle(sessionHook(d.publisher, d.logger), response.JSONErrorHandler))

	if d.upstream != nil {
		mux.Handle("/", middleware.RateLimit(middleware.RateLimitConfig{
			Checker:      d.checker,
			Authenticate: d.authenticate,
		})(d.upstream))
	}

	var h http.Handler = mux
	h = middleware.Logging(middleware.LoggingConfig{
		Logger: d.logger,
		Skip:   func(r *http.Request) bool { return r.URL.Path == "/ping" },
	})(h)
	h = middleware.RequestID(middleware.RequestIDConfig{})(h)
	return h
}

// headerPrincipal reads the caller identity set by the authenticating proxy.
func headerPrincipal(r *http.Request) (middleware.Principal, bool) {
	id := r.Header.Get("X-User-ID")
	if id == "" {
		return middleware.Principal{}, false
	}
	premium, _ := strconv.ParseBool(r.Header.Get("X-User-Premium"))
	staff, _ := strconv.ParseBool(r.Header.Get("X-User-Staff"))
	return middleware.Principal{UserID: id, Premium: premium, Staff: staff}, true
}

type checkRequest struct {
	UserID       string `json:"user_id"`
	Premium      bool   `json:"premium"`
	Staff        bool   `json:"staff"`
	ForwardedFor string `json:"forwarded_for"`
	RemoteAddr   string `json:"remote_addr"`
	Path         string `json:"path"`
	Method       string `json:"method"`
}

type checkResponse struct {
	Allowed    bool              `json:"allowed"`
	Bypassed   bool              `json:"bypassed"`
	Client     string            `json:"client"`
	Tier       admission.Tier    `json:"tier"`
	Reason     admission.Reason  `json:"reason,omitempty"`
	Message    string            `json:"message,omitempty"`
	RetryAfter int               `json:"retry_after,omitempty"`
	Headers    map[string]string `json:"headers,omitempty"`
}

// checkHandler lets backends ask for an admission decision without proxying
// the request itself. Rejections use the same 429 body as the proxy path.
func checkHandler(c middleware.Checker) handler.HandlerFunc {
	return func(ctx handler.Context) handler.Response {
		var req checkRequest
		if err := decodeJSON(ctx, &req); err != nil {
			return response.Error(err)
		}
		if req.Path == "" {
			return response.Error(response.ErrBadRequest.WithMessage("path is required"))
		}

		d := c.Check(ctx, admission.Request{
			UserID:       req.UserID,
			Premium:      req.Premium,
			Staff:        req.Staff,
			ForwardedFor: req.ForwardedFor,
			RemoteAddr:   req.RemoteAddr,
			Path:         req.Path,
			Method:       req.Method,
		})
		if !d.Allowed {
			return middleware.Rejection(d)
		}

		resp := checkResponse{
			Allowed:  true,
			Bypassed: d.Bypassed,
			Client:   d.Identity.Key,
			Tier:     d.Identity.Tier,
			Headers:  make(map[string]string, len(d.Headers)),
		}
		for k := range d.Headers {
			resp.Headers[k] = d.Headers.Get(k)
		}
		return response.JSON(resp)
	}
}

// sessionHook accepts study session notifications from the platform and
// publishes them for cache invalidation and rewarming.
func sessionHook(p admission.Publisher, log *slog.Logger) handler.HandlerFunc {
	return func(ctx handler.Context) handler.Response {
		var s cache.SessionRecorded
		if err := decodeJSON(ctx, &s); err != nil {
			return response.Error(err)
		}
		if s.UserID == "" {
			return response.Error(response.ErrBadRequest.WithMessage("user_id is required"))
		}
		if s.At.IsZero() {
			s.At = time.Now().UTC()
		}

		if err := p.Publish(ctx, s); err != nil {
			log.ErrorContext(ctx, "failed to publish session event",
				logger.ID("user_id", s.UserID),
				logger.Error(err))
			return response.Error(response.ErrServiceUnavailable.WithMessage("event bus unavailable"))
		}
		return response.Status(http.StatusAccepted)
	}
}

func decodeJSON(ctx handler.Context, dst any) error {
	r := ctx.Request()
	dec := json.NewDecoder(http.MaxBytesReader(ctx.ResponseWriter(), r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return response.ErrRequestEntityTooLarge
		}
		return response.ErrBadRequest.WithMessage("invalid JSON body")
	}
	return nil
}
