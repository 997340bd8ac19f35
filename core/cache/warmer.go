package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/eduplatform/gatekeeper/core/event"
	"github.com/eduplatform/gatekeeper/core/logger"
)

// Job precomputes and stores one group of entries.
type Job func(ctx context.Context, m *Manager) error

// UserJob precomputes the entries of one user.
type UserJob func(ctx context.Context, m *Manager, userID string) error

// SessionRecorded is published when a study session is saved.
type SessionRecorded struct {
	UserID    string    `json:"user_id"`
	SessionID string    `json:"session_id"`
	Created   bool      `json:"created"`
	Completed bool      `json:"completed"`
	At        time.Time `json:"at"`
}

type namedJob struct {
	name string
	job  Job
}

// Warmer fills the cache ahead of demand. Registered jobs run on a fixed
// interval; user entries are invalidated and rebuilt after session activity.
type Warmer struct {
	manager *Manager

	mu           sync.Mutex
	jobs         []namedJob
	userJob      UserJob
	userPatterns []string

	interval        time.Duration
	rewarmDelay     time.Duration
	concurrency     int
	shutdownTimeout time.Duration
	logger          *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup

	runs        atomic.Int64
	failures    atomic.Int64
	usersWarmed atomic.Int64
	lastRunAt   atomic.Int64
}

// WarmerStats provides observability metrics for monitoring and debugging.
type WarmerStats struct {
	Runs        int64     `json:"runs"`
	Failures    int64     `json:"failures"`
	UsersWarmed int64     `json:"users_warmed"`
	Jobs        int       `json:"jobs"`
	IsRunning   bool      `json:"is_running"`
	LastRunAt   time.Time `json:"last_run_at"`
}

// WarmerOption configures a Warmer.
type WarmerOption func(*Warmer)

// WithWarmInterval sets how often registered jobs run. Zero disables the loop.
func WithWarmInterval(d time.Duration) WarmerOption {
	return func(w *Warmer) {
		w.interval = d
	}
}

// WithRewarmDelay sets the pause between invalidating a user's entries and
// rebuilding them.
func WithRewarmDelay(d time.Duration) WarmerOption {
	return func(w *Warmer) {
		if d >= 0 {
			w.rewarmDelay = d
		}
	}
}

// WithWarmConcurrency limits how many jobs run at once.
func WithWarmConcurrency(n int) WarmerOption {
	return func(w *Warmer) {
		if n > 0 {
			w.concurrency = n
		}
	}
}

// WithUserJob sets the per-user warm function.
func WithUserJob(job UserJob) WarmerOption {
	return func(w *Warmer) {
		w.userJob = job
	}
}

// WithUserPatterns sets the key segments dropped for a user. "{user}" is
// replaced with the user id and each pattern must match a whole
// ":"-separated part of the key, e.g. "user_id:{user}" for Wrap keys varied
// on "user_id:<id>".
func WithUserPatterns(patterns ...string) WarmerOption {
	return func(w *Warmer) {
		w.userPatterns = patterns
	}
}

// WithWarmerShutdownTimeout sets the graceful shutdown timeout.
func WithWarmerShutdownTimeout(d time.Duration) WarmerOption {
	return func(w *Warmer) {
		if d > 0 {
			w.shutdownTimeout = d
		}
	}
}

// WithWarmerLogger sets the logger.
func WithWarmerLogger(l *slog.Logger) WarmerOption {
	return func(w *Warmer) {
		if l != nil {
			w.logger = l
		}
	}
}

// NewWarmer creates a Warmer over m.
func NewWarmer(m *Manager, opts ...WarmerOption) *Warmer {
	w := &Warmer{
		manager:         m,
		userPatterns:    []string{"user_{user}", "user_id:{user}"},
		interval:        10 * time.Minute,
		rewarmDelay:     5 * time.Second,
		concurrency:     4,
		shutdownTimeout: 30 * time.Second,
		logger:          logger.Discard(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Register adds a job run by WarmAll. Registering a name twice replaces the job.
func (w *Warmer) Register(name string, job Job) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for i := range w.jobs {
		if w.jobs[i].name == name {
			w.jobs[i].job = job
			return
		}
	}
	w.jobs = append(w.jobs, namedJob{name: name, job: job})
}

// WarmAll runs every registered job. A failing job does not stop the others;
// all failures are joined into the returned error.
func (w *Warmer) WarmAll(ctx context.Context) error {
	w.mu.Lock()
	jobs := append([]namedJob(nil), w.jobs...)
	w.mu.Unlock()

	start := time.Now()
	w.runs.Add(1)
	w.lastRunAt.Store(start.UnixNano())

	var (
		mu   sync.Mutex
		errs []error
	)
	g := new(errgroup.Group)
	g.SetLimit(w.concurrency)
	for _, j := range jobs {
		g.Go(func() error {
			if err := w.runJob(ctx, j); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("warm %s: %w", j.name, err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	if len(errs) > 0 {
		w.failures.Add(int64(len(errs)))
		err := errors.Join(errs...)
		w.logger.WarnContext(ctx, "cache warm finished with errors",
			logger.Count("jobs", len(jobs)),
			logger.Elapsed(start),
			logger.Error(err))
		return err
	}

	w.logger.InfoContext(ctx, "cache warmed",
		logger.Count("jobs", len(jobs)),
		logger.Elapsed(start))
	return nil
}

func (w *Warmer) runJob(ctx context.Context, j namedJob) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return j.job(ctx, w.manager)
}

// WarmUsers rebuilds the entries of each user with the configured UserJob.
func (w *Warmer) WarmUsers(ctx context.Context, userIDs ...string) error {
	if w.userJob == nil {
		return nil
	}

	var errs []error
	for _, id := range userIDs {
		if err := w.userJob(ctx, w.manager, id); err != nil {
			errs = append(errs, fmt.Errorf("warm user %s: %w", id, err))
			continue
		}
		w.usersWarmed.Add(1)
	}
	if len(errs) > 0 {
		w.failures.Add(int64(len(errs)))
		return errors.Join(errs...)
	}
	return nil
}

// InvalidateUser drops the entries of userID from every tier and returns how
// many were removed.
func (w *Warmer) InvalidateUser(ctx context.Context, userID string) int {
	removed := 0
	for _, p := range w.userPatterns {
		removed += w.manager.InvalidateSegment(ctx, strings.ReplaceAll(p, "{user}", userID))
	}
	return removed
}

// SessionRecordedHandler returns the event handler that invalidates a
// user's entries on every saved session and, for new or completed sessions,
// rebuilds them after the rewarm delay.
func (w *Warmer) SessionRecordedHandler() event.Handler {
	return event.NewHandlerFunc(w.handleSession)
}

func (w *Warmer) handleSession(ctx context.Context, s SessionRecorded) error {
	if s.UserID == "" {
		return nil
	}

	removed := w.InvalidateUser(ctx, s.UserID)
	w.logger.DebugContext(ctx, "user cache invalidated",
		logger.ID("user_id", s.UserID),
		logger.Count("removed", removed))

	if !s.Created && !s.Completed {
		return nil
	}

	if w.rewarmDelay > 0 {
		t := time.NewTimer(w.rewarmDelay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
	return w.WarmUsers(ctx, s.UserID)
}

// Start runs all jobs immediately and then on every interval. This is a
// blocking operation that runs until the context is cancelled.
func (w *Warmer) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.cancel != nil {
		w.mu.Unlock()
		return fmt.Errorf("cache warmer already started")
	}
	if w.interval <= 0 {
		w.mu.Unlock()
		return fmt.Errorf("warm interval must be > 0, got %v", w.interval)
	}
	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.mu.Unlock()

	w.logger.InfoContext(runCtx, "cache warmer started", logger.Duration(w.interval))

	w.tick(runCtx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-runCtx.Done():
			w.logger.InfoContext(context.Background(), "cache warmer stopping")
			return runCtx.Err()
		case <-ticker.C:
			w.tick(runCtx)
		}
	}
}

func (w *Warmer) tick(ctx context.Context) {
	w.wg.Add(1)
	defer w.wg.Done()
	_ = w.WarmAll(ctx)
}

// Stop cancels the loop and waits for an in-flight run.
func (w *Warmer) Stop() error {
	w.mu.Lock()
	if w.cancel == nil {
		w.mu.Unlock()
		return fmt.Errorf("cache warmer not started")
	}
	cancel := w.cancel
	w.cancel = nil
	w.mu.Unlock()

	cancel()

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.logger.InfoContext(context.Background(), "cache warmer stopped cleanly")
		return nil
	case <-time.After(w.shutdownTimeout):
		return fmt.Errorf("shutdown timeout exceeded after %s", w.shutdownTimeout)
	}
}

// Run provides errgroup compatibility for coordinated lifecycle management.
func (w *Warmer) Run(ctx context.Context) func() error {
	return func() error {
		errCh := make(chan error, 1)
		go func() {
			errCh <- w.Start(ctx)
		}()

		select {
		case <-ctx.Done():
			_ = w.Stop()
			<-errCh
			return nil
		case err := <-errCh:
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		}
	}
}

// Stats returns the current warmer counters.
func (w *Warmer) Stats() WarmerStats {
	w.mu.Lock()
	running := w.cancel != nil
	jobs := len(w.jobs)
	w.mu.Unlock()

	var last time.Time
	if n := w.lastRunAt.Load(); n > 0 {
		last = time.Unix(0, n)
	}
	return WarmerStats{
		Runs:        w.runs.Load(),
		Failures:    w.failures.Load(),
		UsersWarmed: w.usersWarmed.Load(),
		Jobs:        jobs,
		IsRunning:   running,
		LastRunAt:   last,
	}
}

// Healthcheck reports an error when the warm loop is configured but not running.
func (w *Warmer) Healthcheck(ctx context.Context) error {
	if w.interval > 0 && !w.Stats().IsRunning {
		return fmt.Errorf("cache warmer is configured but not running")
	}
	return nil
}
