package opensearch

import "errors"

var (
	ErrConnectionFailed  = errors.New("opensearch: failed to create client")
	ErrHealthcheckFailed = errors.New("opensearch: healthcheck failed")
	ErrIndexFailed       = errors.New("opensearch: failed to index document")
)
