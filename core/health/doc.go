// Package health provides handlers for service health monitoring.
//
// Handlers:
//   - Liveness: process is running (no dependency checks)
//   - Readiness: all dependencies are available
//   - NoContent: returns 204 for minimal overhead
//   - Report: JSON document assembled from named sections
//
// Usage:
//
//	mux.Handle("GET /health/live", handler.Handle(health.Liveness, response.ErrorHandler))
//	mux.Handle("GET /health/ready", handler.Handle(health.Readiness(log,
//		redis.Healthcheck(client),
//		pg.Healthcheck(pool),
//	), response.ErrorHandler))
//	mux.Handle("GET /health/status", handler.Handle(health.Report(
//		health.Section{Name: "cache", Collect: func(ctx context.Context) any { return manager.Info(ctx) }},
//	), response.JSONErrorHandler))
//
// Dependency checks must follow func(context.Context) error signature:
//
//	func checkDB(ctx context.Context) error {
//		return db.PingContext(ctx)
//	}
package health
