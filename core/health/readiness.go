package health

import (
	"context"
	"log/slog"

	"github.com/eduplatform/gatekeeper/core/handler"
	"github.com/eduplatform/gatekeeper/core/logger"
	"github.com/eduplatform/gatekeeper/core/response"
)

// Readiness returns "READY" when every check passes and a 503 error otherwise.
func Readiness(log *slog.Logger, fn ...func(context.Context) error) handler.HandlerFunc {
	if log == nil {
		log = logger.Discard()
	}
	return func(ctx handler.Context) handler.Response {
		for _, f := range fn {
			if err := f(ctx); err != nil {
				log.ErrorContext(ctx, "readiness check failed", logger.Error(err))
				return response.Error(response.ErrServiceUnavailable)
			}
		}
		return response.String("READY")
	}
}
