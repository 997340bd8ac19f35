package response

import (
	"net/http"
	"strconv"
	"time"

	"github.com/eduplatform/gatekeeper/core/handler"
)

// WithHeaders adds headers to resp. Values are appended, so repeated keys
// such as Vary survive.
func WithHeaders(resp handler.Response, headers http.Header) handler.Response {
	if resp == nil || len(headers) == 0 {
		return resp
	}
	return func(w http.ResponseWriter, r *http.Request) error {
		for k, vs := range headers {
			for _, v := range vs {
				w.Header().Add(k, v)
			}
		}
		return resp(w, r)
	}
}

// WithCache sets Cache-Control on resp. A non-positive maxAge disables caching.
func WithCache(resp handler.Response, maxAge time.Duration) handler.Response {
	if resp == nil {
		return nil
	}
	value := "no-store"
	if maxAge > 0 {
		value = "public, max-age=" + strconv.Itoa(int(maxAge/time.Second))
	}
	return WithHeaders(resp, http.Header{"Cache-Control": {value}})
}
