package handler

import "net/http"

// Response renders an HTTP response. A non-nil error is passed to the
// ErrorHandler of the route instead of being written by the response itself.
type Response func(w http.ResponseWriter, r *http.Request) error

// HandlerFunc produces the response for one request.
type HandlerFunc func(ctx Context) Response

// ErrorHandler writes the response for an error returned by a Response.
type ErrorHandler func(ctx Context, err error)

// Middleware wraps a HandlerFunc.
type Middleware func(next HandlerFunc) HandlerFunc

// Handle adapts fn to an http.Handler. Errors returned while rendering go to
// onErr; when onErr is nil they become a plain 500.
func Handle(fn HandlerFunc, onErr ErrorHandler, mw ...Middleware) http.Handler {
	if fn == nil {
		panic("handler: nil HandlerFunc")
	}
	for i := len(mw) - 1; i >= 0; i-- {
		fn = mw[i](fn)
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := NewContext(w, r)
		resp := fn(ctx)
		if resp == nil {
			return
		}
		if err := resp(ctx.ResponseWriter(), ctx.Request()); err != nil {
			if onErr == nil {
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}
			onErr(ctx, err)
		}
	})
}
