package opensearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"

	"github.com/eduplatform/gatekeeper/core/admission"
	"github.com/eduplatform/gatekeeper/core/event"
	"github.com/eduplatform/gatekeeper/core/logger"
)

// ViolationSink indexes rate limit violations for analytics.
type ViolationSink struct {
	client     opensearchapi.Transport
	prefix     string
	maxRetries int
	retryDelay time.Duration
	maxDelay   time.Duration
	logger     *slog.Logger
}

// SinkOption configures a ViolationSink.
type SinkOption func(*ViolationSink)

// WithIndexPrefix sets the daily index name prefix (default: rate-limit-violations).
func WithIndexPrefix(prefix string) SinkOption {
	return func(s *ViolationSink) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// WithSinkRetry sets the retry policy used by Handler.
func WithSinkRetry(maxRetries int, initialDelay, maxDelay time.Duration) SinkOption {
	return func(s *ViolationSink) {
		s.maxRetries = max(maxRetries, 0)
		if initialDelay > 0 {
			s.retryDelay = initialDelay
		}
		if maxDelay > 0 {
			s.maxDelay = maxDelay
		}
	}
}

// WithSinkLogger sets the logger.
func WithSinkLogger(l *slog.Logger) SinkOption {
	return func(s *ViolationSink) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewViolationSink creates a sink writing through client.
func NewViolationSink(client opensearchapi.Transport, opts ...SinkOption) *ViolationSink {
	s := &ViolationSink{
		client:     client,
		prefix:     "rate-limit-violations",
		maxRetries: 3,
		retryDelay: 200 * time.Millisecond,
		maxDelay:   5 * time.Second,
		logger:     logger.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IndexName returns the daily index a violation at t belongs to.
func (s *ViolationSink) IndexName(t time.Time) string {
	return s.prefix + "-" + t.UTC().Format("2006.01.02")
}

// Index writes one violation document.
func (s *ViolationSink) Index(ctx context.Context, v admission.Violation) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrIndexFailed, err)
	}

	req := opensearchapi.IndexRequest{
		Index:      s.IndexName(v.Timestamp),
		DocumentID: v.ID,
		Body:       bytes.NewReader(body),
	}
	resp, err := req.Do(ctx, s.client)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrIndexFailed, err)
	}
	defer resp.Body.Close()

	if resp.IsError() {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: %s: %s", ErrIndexFailed, resp.Status(), bytes.TrimSpace(msg))
	}
	_, _ = io.Copy(io.Discard, resp.Body)

	s.logger.DebugContext(ctx, "violation indexed",
		logger.ClientKey(v.Client),
		logger.LimitType(v.LimitType),
		logger.ID("violation_id", v.ID))
	return nil
}

// Handler returns the event handler for admission.Violation events, retried
// with exponential backoff.
func (s *ViolationSink) Handler() event.Handler {
	return event.WithRetry(event.NewHandlerFunc(s.Index), event.RetryPolicy{
		MaxRetries:   s.maxRetries,
		InitialDelay: s.retryDelay,
		MaxDelay:     s.maxDelay,
	})
}
