package admission

import (
	"errors"

	"github.com/eduplatform/gatekeeper/pkg/ratelimiter"
)

var (
	ErrInvalidConfig = ratelimiter.ErrInvalidConfig
	ErrRejected      = errors.New("admission rejected")
)
