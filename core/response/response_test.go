package response_test

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eduplatform/gatekeeper/core/handler"
	"github.com/eduplatform/gatekeeper/core/response"
)

type customStatusError struct {
	message string
	status  int
}

func (e customStatusError) Error() string   { return e.message }
func (e customStatusError) StatusCode() int { return e.status }

func render(t *testing.T, resp handler.Response) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	response.Render(handler.NewContext(rec, req), resp)
	return rec
}

func TestJSONWithStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		v      any
		status int
		code   int
		body   string
	}{
		{"explicit status", map[string]int{"a": 1}, http.StatusTooManyRequests, http.StatusTooManyRequests, `{"a":1}`},
		{"zero status with data", []int{1}, 0, http.StatusOK, `[1]`},
		{"zero status without data", nil, 0, http.StatusNoContent, ""},
		{"no content drops body", map[string]int{"a": 1}, http.StatusNoContent, http.StatusNoContent, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rec := render(t, response.JSONWithStatus(tt.v, tt.status))
			assert.Equal(t, tt.code, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			if tt.body == "" {
				assert.Empty(t, rec.Body.String())
				return
			}
			assert.JSONEq(t, tt.body, rec.Body.String())
		})
	}
}

func TestString(t *testing.T) {
	t.Parallel()

	rec := render(t, response.String("READY"))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/plain; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, "READY", rec.Body.String())

	rec = render(t, response.NoContent())
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestWithHeaders(t *testing.T) {
	t.Parallel()

	headers := http.Header{}
	headers.Set("Retry-After", "30")
	headers.Add("Vary", "Origin")

	rec := render(t, response.WithHeaders(
		response.WithHeaders(response.Status(http.StatusTooManyRequests), http.Header{"Vary": {"Accept"}}),
		headers,
	))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "30", rec.Header().Get("Retry-After"))
	assert.Equal(t, []string{"Origin", "Accept"}, rec.Header().Values("Vary"))

	assert.Nil(t, response.WithHeaders(nil, headers))
}

func TestWithCache(t *testing.T) {
	t.Parallel()

	rec := render(t, response.WithCache(response.JSON(map[string]string{}), 0))
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))

	rec = render(t, response.WithCache(response.JSON(map[string]string{}), time.Minute))
	assert.Equal(t, "public, max-age=60", rec.Header().Get("Cache-Control"))
}

func TestJSONErrorHandler(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		err    error
		status int
		json   string
	}{
		{
			name:   "plain error is 500 with cause",
			err:    errors.New("internal error"),
			status: http.StatusInternalServerError,
			json:   `{"code":"internal_server_error","message":"Internal Server Error","details":{"cause":"internal error"}}`,
		},
		{
			name:   "http error keeps its shape",
			err:    response.ErrBadRequest.WithMessage("path is required"),
			status: http.StatusBadRequest,
			json:   `{"code":"bad_request","message":"path is required"}`,
		},
		{
			name:   "wrapped http error",
			err:    fmt.Errorf("publish: %w", response.ErrServiceUnavailable.WithMessage("event bus unavailable")),
			status: http.StatusServiceUnavailable,
			json:   `{"code":"service_unavailable","message":"event bus unavailable"}`,
		},
		{
			name:   "status code interface",
			err:    customStatusError{message: "nope", status: http.StatusForbidden},
			status: http.StatusForbidden,
			json:   `{"code":"forbidden","message":"Forbidden","details":{"cause":"nope"}}`,
		},
		{
			name:   "unknown status falls back to 500",
			err:    customStatusError{message: "odd", status: 599},
			status: http.StatusInternalServerError,
			json:   `{"code":"internal_server_error","message":"Internal Server Error","details":{"cause":"odd"}}`,
		},
		{
			name:   "oversized body",
			err:    &http.MaxBytesError{Limit: 10},
			status: http.StatusRequestEntityTooLarge,
			json:   `{"code":"request_entity_too_large","message":"Request Entity Too Large"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rec := httptest.NewRecorder()
			response.JSONErrorHandler(handler.NewContext(rec, httptest.NewRequest(http.MethodGet, "/", nil)), tt.err)

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			assert.JSONEq(t, tt.json, rec.Body.String())
		})
	}
}

func TestErrorHandler(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	response.ErrorHandler(handler.NewContext(rec, httptest.NewRequest(http.MethodGet, "/", nil)),
		response.ErrServiceUnavailable)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "Service Unavailable", strings.TrimSpace(rec.Body.String()))
}

func TestHTTPError_WithErrorDoesNotShareDetails(t *testing.T) {
	t.Parallel()

	base := response.ErrBadRequest.WithDetails(map[string]any{"field": "path"})
	a := base.WithError(errors.New("a"))
	b := base.WithError(errors.New("b"))

	assert.NotContains(t, base.Details, "cause")
	assert.Equal(t, "a", a.Details["cause"])
	assert.Equal(t, "b", b.Details["cause"])

	raw, err := json.Marshal(a)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "status")
}
