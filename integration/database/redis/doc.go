// Package redis provides Redis client initialization and health checking for the
// shared counter and cache store.
//
// Connect validates the URL, builds a go-redis client with bounded socket
// timeouts, and pings it with exponential backoff before returning:
//
//	var cfg redis.Config
//	config.MustLoad(&cfg)
//
//	client, err := redis.Connect(ctx, cfg)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer client.Close()
//
// Healthcheck returns a func(context.Context) error suitable for readiness probes:
//
//	ready := health.Handler(log, snapshot, redis.Healthcheck(client))
//
// Errors are stable sentinels (ErrFailedToParseRedisConnString, ErrRedisNotReady,
// ErrEmptyConnectionURL, ErrHealthcheckFailed) that wrap the go-redis cause.
package redis
