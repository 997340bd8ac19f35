// Package pg provides PostgreSQL connection pool management and load probes for
// the admission core.
//
// The relational store itself belongs to the business layer; this package only
// opens a pgx pool with retry logic and reports how busy the database server
// is, which the adaptive load adjuster folds into its load score.
//
//	pool, err := pg.Connect(ctx, cfg)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer pool.Close()
//
//	adjuster := ratelimiter.NewLoadAdjuster(
//		ratelimiter.WithSaturationSource(pg.ActivitySaturation(pool)),
//	)
//
// ActivitySaturation asks the server, counting active backends in
// pg_stat_activity against max_connections, so connections held by the
// application workers count, not only this process's pool.
//
// Healthcheck returns a ping-based readiness probe.
package pg
