package response

import (
	"net/http"

	"github.com/eduplatform/gatekeeper/core/handler"
)

// Error defers err to the route's ErrorHandler.
func Error(err error) handler.Response {
	return func(http.ResponseWriter, *http.Request) error {
		return err
	}
}
