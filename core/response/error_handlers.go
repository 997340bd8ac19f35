package response

import (
	"errors"
	"net/http"

	"github.com/eduplatform/gatekeeper/core/handler"
)

type statusCode interface {
	StatusCode() int
}

// toHTTPError maps err onto an HTTPError. Errors carrying a StatusCode use
// the matching predefined error; anything else is a 500 with the cause
// recorded in details.
func toHTTPError(err error) HTTPError {
	var httpErr HTTPError
	if errors.As(err, &httpErr) {
		return httpErr
	}

	var maxBytes *http.MaxBytesError
	if errors.As(err, &maxBytes) {
		return ErrRequestEntityTooLarge
	}

	status := http.StatusInternalServerError
	var sc statusCode
	if errors.As(err, &sc) {
		status = sc.StatusCode()
	}

	base, ok := httpErrorsByStatus[status]
	if !ok {
		base = ErrInternalServerError
	}
	return base.WithError(err)
}

// ErrorHandler writes err as text/plain.
func ErrorHandler(ctx handler.Context, err error) {
	httpErr := toHTTPError(err)
	Render(ctx, StringWithStatus(httpErr.Error(), httpErr.Status))
}

// JSONErrorHandler writes err as a JSON HTTPError.
func JSONErrorHandler(ctx handler.Context, err error) {
	httpErr := toHTTPError(err)
	Render(ctx, JSONWithStatus(httpErr, httpErr.Status))
}
