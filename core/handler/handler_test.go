package handler_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eduplatform/gatekeeper/core/handler"
)

type ctxKey struct{}

func TestHandle(t *testing.T) {
	t.Parallel()

	t.Run("renders response", func(t *testing.T) {
		t.Parallel()

		h := handler.Handle(func(ctx handler.Context) handler.Response {
			return func(w http.ResponseWriter, _ *http.Request) error {
				w.WriteHeader(http.StatusAccepted)
				return nil
			}
		}, nil)

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
		assert.Equal(t, http.StatusAccepted, rec.Code)
	})

	t.Run("render error goes to error handler", func(t *testing.T) {
		t.Parallel()

		boom := errors.New("boom")
		var got error
		h := handler.Handle(func(handler.Context) handler.Response {
			return func(http.ResponseWriter, *http.Request) error { return boom }
		}, func(ctx handler.Context, err error) {
			got = err
			ctx.ResponseWriter().WriteHeader(http.StatusTeapot)
		})

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.ErrorIs(t, got, boom)
		assert.Equal(t, http.StatusTeapot, rec.Code)
	})

	t.Run("nil error handler writes 500", func(t *testing.T) {
		t.Parallel()

		h := handler.Handle(func(handler.Context) handler.Response {
			return func(http.ResponseWriter, *http.Request) error { return errors.New("boom") }
		}, nil)

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.NotContains(t, rec.Body.String(), "boom")
	})

	t.Run("middleware runs outermost first", func(t *testing.T) {
		t.Parallel()

		var order []string
		tag := func(name string) handler.Middleware {
			return func(next handler.HandlerFunc) handler.HandlerFunc {
				return func(ctx handler.Context) handler.Response {
					order = append(order, name)
					return next(ctx)
				}
			}
		}
		h := handler.Handle(func(handler.Context) handler.Response {
			order = append(order, "handler")
			return nil
		}, nil, tag("outer"), tag("inner"))

		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, []string{"outer", "inner", "handler"}, order)
	})
}

func TestContext(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	var param string
	var fromRequest, fromContext any
	mux.Handle("GET /users/{id}", handler.Handle(func(ctx handler.Context) handler.Response {
		param = ctx.Param("id")
		ctx.SetValue(ctxKey{}, "v")
		fromContext = ctx.Value(ctxKey{})
		fromRequest = ctx.Request().Context().Value(ctxKey{})
		return nil
	}, nil))

	mux.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/users/42", nil))
	require.Equal(t, "42", param)
	assert.Equal(t, "v", fromContext)
	assert.Equal(t, "v", fromRequest)
}
