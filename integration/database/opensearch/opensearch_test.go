package opensearch_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	opensearchgo "github.com/opensearch-project/opensearch-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eduplatform/gatekeeper/core/admission"
	"github.com/eduplatform/gatekeeper/integration/database/opensearch"
)

type fakeCluster struct {
	mu       sync.Mutex
	docs     map[string]json.RawMessage
	failNext atomic.Int32
	status   int
}

func newFakeCluster(t *testing.T) (*fakeCluster, *httptest.Server) {
	t.Helper()
	c := &fakeCluster{docs: map[string]json.RawMessage{}, status: http.StatusOK}
	srv := httptest.NewServer(c)
	t.Cleanup(srv.Close)
	return c, srv
}

func (c *fakeCluster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.URL.Path == "/" {
		w.WriteHeader(c.status)
		_, _ = io.WriteString(w, `{"cluster_name":"test","version":{"distribution":"opensearch","number":"2.11.0"},"tagline":"The OpenSearch Project: https://opensearch.org/"}`)
		return
	}

	if !strings.Contains(r.URL.Path, "/_doc/") {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	if c.failNext.Load() > 0 {
		c.failNext.Add(-1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":"mapper_parsing_exception"}`)
		return
	}

	body, _ := io.ReadAll(r.Body)
	c.mu.Lock()
	c.docs[r.URL.Path] = body
	c.mu.Unlock()

	w.WriteHeader(http.StatusCreated)
	_, _ = io.WriteString(w, `{"result":"created"}`)
}

func (c *fakeCluster) doc(path string) (json.RawMessage, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.docs[path]
	return d, ok
}

func newClient(t *testing.T, addr string) *opensearchgo.Client {
	t.Helper()
	client, err := opensearch.New(context.Background(), opensearch.Config{
		Addresses:    []string{addr},
		DisableRetry: true,
	})
	require.NoError(t, err)
	return client
}

func violation() admission.Violation {
	return admission.Violation{
		ID:         "0b8e6f0e-4a55-4f0c-9d53-0f8f2b1b7a11",
		Client:     "ip:203.0.113.5",
		LimitType:  "minute",
		Reason:     admission.ReasonMinute,
		Path:       "/api/lessons",
		Method:     http.MethodGet,
		Tier:       admission.TierAnonymous,
		RetryAfter: 42,
		Timestamp:  time.Date(2024, 3, 1, 23, 59, 0, 0, time.UTC),
	}
}

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("healthy cluster", func(t *testing.T) {
		t.Parallel()
		_, srv := newFakeCluster(t)
		client := newClient(t, srv.URL)
		assert.NoError(t, opensearch.Healthcheck(client)(context.Background()))
	})

	t.Run("unhealthy cluster", func(t *testing.T) {
		t.Parallel()
		c, srv := newFakeCluster(t)
		c.status = http.StatusServiceUnavailable

		_, err := opensearch.New(context.Background(), opensearch.Config{
			Addresses:    []string{srv.URL},
			DisableRetry: true,
		})
		assert.ErrorIs(t, err, opensearch.ErrHealthcheckFailed)
	})
}

func TestViolationSink_Index(t *testing.T) {
	t.Parallel()

	c, srv := newFakeCluster(t)
	sink := opensearch.NewViolationSink(newClient(t, srv.URL))

	v := violation()
	assert.Equal(t, "rate-limit-violations-2024.03.01", sink.IndexName(v.Timestamp))
	require.NoError(t, sink.Index(context.Background(), v))

	doc, ok := c.doc("/rate-limit-violations-2024.03.01/_doc/" + v.ID)
	require.True(t, ok)

	var got admission.Violation
	require.NoError(t, json.Unmarshal(doc, &got))
	assert.Equal(t, v, got)
}

func TestViolationSink_IndexRejected(t *testing.T) {
	t.Parallel()

	c, srv := newFakeCluster(t)
	c.failNext.Store(1)
	sink := opensearch.NewViolationSink(newClient(t, srv.URL), opensearch.WithIndexPrefix("violations"))

	err := sink.Index(context.Background(), violation())
	require.ErrorIs(t, err, opensearch.ErrIndexFailed)
	assert.Contains(t, err.Error(), "mapper_parsing_exception")
}

func TestViolationSink_HandlerRetries(t *testing.T) {
	t.Parallel()

	c, srv := newFakeCluster(t)
	c.failNext.Store(2)
	sink := opensearch.NewViolationSink(newClient(t, srv.URL),
		opensearch.WithSinkRetry(3, time.Millisecond, 5*time.Millisecond))

	h := sink.Handler()
	assert.Equal(t, "Violation", h.EventName())

	v := violation()
	require.NoError(t, h.Handle(context.Background(), v))
	_, ok := c.doc("/rate-limit-violations-2024.03.01/_doc/" + v.ID)
	assert.True(t, ok)
}
