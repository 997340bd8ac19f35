// Command gatekeeper runs the admission control and caching service.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http/httputil"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/eduplatform/gatekeeper/core/admission"
	"github.com/eduplatform/gatekeeper/core/cache"
	"github.com/eduplatform/gatekeeper/core/event"
	"github.com/eduplatform/gatekeeper/core/health"
	"github.com/eduplatform/gatekeeper/core/logger"
	"github.com/eduplatform/gatekeeper/core/server"
	"github.com/eduplatform/gatekeeper/integration/database/opensearch"
	"github.com/eduplatform/gatekeeper/integration/database/pg"
	"github.com/eduplatform/gatekeeper/integration/database/redis"
	"github.com/eduplatform/gatekeeper/pkg/counterstore"
	"github.com/eduplatform/gatekeeper/pkg/ratelimiter"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		slog.Error("gatekeeper stopped", logger.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := loadConfigs()
	if err != nil {
		return err
	}

	log := logger.New(logger.ForEnv(cfg.app.Env, cfg.app.Service))
	g, ctx := errgroup.WithContext(ctx)

	var (
		store     counterstore.Store
		readiness []func(context.Context) error
	)
	switch cfg.app.Store {
	case "redis":
		client, err := redis.Connect(ctx, cfg.redis)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer client.Close()
		store = counterstore.NewRedisStore(client)
		readiness = append(readiness, redis.Healthcheck(client))
	default:
		mem := counterstore.NewMemoryStore(counterstore.WithMemoryStoreLogger(log))
		g.Go(mem.Run(ctx))
		store = mem
		readiness = append(readiness, mem.Healthcheck)
	}

	manager, err := cache.NewManager(store, cfg.cache, cache.WithLogger(log.With(logger.Component("cache"))))
	if err != nil {
		return err
	}
	readiness = append(readiness, manager.Healthcheck)

	adjusterOpts := []ratelimiter.LoadAdjusterOption{
		ratelimiter.WithAdjusterLogger(log),
		ratelimiter.WithHitRatioSource(func(context.Context) (float64, error) {
			return manager.HitRatio(), nil
		}),
	}
	if cfg.app.PostgresEnabled {
		pool, err := pg.Connect(ctx, cfg.pg)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer pool.Close()
		adjusterOpts = append(adjusterOpts, ratelimiter.WithSaturationSource(pg.ActivitySaturation(pool)))
		readiness = append(readiness, pg.Healthcheck(pool))
	}
	adjuster, err := ratelimiter.NewLoadAdjuster(cfg.admission.Adaptive, adjusterOpts...)
	if err != nil {
		return err
	}

	bus := event.NewChannelBus(
		event.WithBufferSize(cfg.app.EventBufferSize),
		event.WithNonBlocking(),
		event.WithChannelLogger(log),
	)
	publisher := event.NewPublisher(bus, event.WithPublisherLogger(log))

	monitor := admission.NewMonitor(store,
		admission.WithPublisher(publisher),
		admission.WithMonitorLogger(log))

	orchestrator, err := admission.New(store, cfg.admission,
		admission.WithLoadAdjuster(adjuster),
		admission.WithMonitor(monitor),
		admission.WithLogger(log.With(logger.Component("admission"))))
	if err != nil {
		return err
	}

	topViolators := cache.Wrap(manager, "top_violators",
		func(ctx context.Context, days int) ([]admission.Violator, error) {
			return monitor.TopViolators(ctx, days, cfg.app.TopViolatorsLimit)
		},
		cache.WithKeyPrefix("analytics"),
		cache.WithWrapLevel(cache.L2),
		cache.WithVaryOn(func(days int) []string { return []string{"days:" + strconv.Itoa(days)} }),
	)

	warmer := cache.NewWarmer(manager,
		cache.WithWarmInterval(cfg.app.WarmInterval),
		cache.WithRewarmDelay(cfg.app.RewarmDelay),
		cache.WithWarmerLogger(log.With(logger.Component("cache_warmer"))))
	warmer.Register("top_violators", func(ctx context.Context, _ *cache.Manager) error {
		_, err := topViolators(ctx, cfg.app.TopViolatorsDays)
		return err
	})

	handlers := []event.Handler{
		event.WithTimeout(warmer.SessionRecordedHandler(), cfg.app.EventHandlerTimeout),
	}
	if cfg.app.OpenSearchEnabled {
		client, err := opensearch.New(ctx, cfg.opensearch)
		if err != nil {
			return fmt.Errorf("connect opensearch: %w", err)
		}
		sink := opensearch.NewViolationSink(client, opensearch.WithSinkLogger(log))
		handlers = append(handlers, event.WithTimeout(sink.Handler(), cfg.app.EventHandlerTimeout))
		readiness = append(readiness, opensearch.Healthcheck(client))
	}

	processor := event.NewProcessor(
		event.WithEventSource(bus),
		event.WithHandler(handlers...),
		event.WithMaxConcurrentHandlers(cfg.app.EventHandlerLimit),
		event.WithProcessorLogger(log.With(logger.Component("events"))),
	)

	deps := routerDeps{
		logger:       log,
		checker:      orchestrator,
		publisher:    publisher,
		readiness:    readiness,
		authenticate: headerPrincipal,
		sections: []health.Section{
			{Name: "cache", Collect: func(ctx context.Context) any { return manager.Info(ctx) }},
			{Name: "admission", Collect: func(context.Context) any { return orchestrator.Stats() }},
			{Name: "cache_warmer", Collect: func(context.Context) any { return warmer.Stats() }},
			{Name: "events", Collect: func(context.Context) any { return processor.Stats() }},
			{Name: "top_violators", Collect: func(ctx context.Context) any {
				v, err := topViolators(ctx, cfg.app.TopViolatorsDays)
				if err != nil {
					return map[string]string{"error": err.Error()}
				}
				return v
			}},
		},
	}
	if cfg.app.UpstreamURL != "" {
		u, err := url.Parse(cfg.app.UpstreamURL)
		if err != nil {
			return fmt.Errorf("parse UPSTREAM_URL: %w", err)
		}
		deps.upstream = httputil.NewSingleHostReverseProxy(u)
	}

	srv := server.New(cfg.server, server.WithLogger(log))

	g.Go(processor.Run(ctx))
	if cfg.app.WarmInterval > 0 {
		g.Go(warmer.Run(ctx))
	}
	g.Go(srv.Run(ctx, newRouter(deps)))
	g.Go(func() error {
		<-ctx.Done()
		return bus.Close()
	})

	log.InfoContext(ctx, "gatekeeper started",
		logger.Key("store", cfg.app.Store),
		logger.Key("addr", cfg.server.Addr))

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
