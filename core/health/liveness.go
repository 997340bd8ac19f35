package health

import (
	"github.com/eduplatform/gatekeeper/core/handler"
	"github.com/eduplatform/gatekeeper/core/response"
)

// Liveness indicates the process is running. Always "ALIVE" with 200 OK.
func Liveness(handler.Context) handler.Response {
	return response.String("ALIVE")
}

// NoContent returns 204 without a body.
func NoContent(handler.Context) handler.Response {
	return response.NoContent()
}
