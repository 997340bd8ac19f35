// Package ratelimiter provides sliding window and token bucket limiters backed by
// a shared counter store, plus a load adjuster that tightens limits under pressure.
//
// All limiter state lives in a counterstore.Store so every worker in a pool sees the
// same counters. Each check is a single atomic store operation: the store prunes,
// counts and records in one step, so concurrent requests from one client cannot both
// be admitted against the same stale count.
//
// # Sliding Window
//
// SlidingWindow admits at most limit requests in any trailing window:
//  1. Entries older than now-window are dropped
//  2. If limit or more entries remain, the request is rejected
//  3. Otherwise now is recorded and the record TTL is refreshed to window + 60s
//
// A rejected request gets RetryAfter = oldest entry + window - now, rounded up to
// whole seconds with a minimum of one second.
//
//	store := counterstore.NewRedisStore(client)
//	limiter := ratelimiter.NewSlidingWindow(store)
//
//	result, err := limiter.Check(ctx, "ip:203.0.113.7", time.Minute, 20)
//	if err != nil {
//		// store unavailable: decide whether to fail open
//	}
//	if !result.Allowed() {
//		log.Printf("retry in %s", result.RetryAfter())
//	}
//
// Windows are stored under rate_limit:{client}:{window_seconds}, so minute, hour and
// day windows of the same client are independent records.
//
// # Token Bucket
//
// Bucket keeps a float token count refilled continuously at RefillRate tokens per
// second up to Capacity. A request consumes one token; with fewer than one token
// left it is rejected with RetryAfter = ceil((1 - tokens) / RefillRate).
//
//	bucket, err := ratelimiter.NewBucket(store, ratelimiter.Config{
//		Capacity:   10,  // burst size
//		RefillRate: 0.1, // one token every ten seconds
//		TTL:        time.Hour,
//	})
//
//	result, err := bucket.Check(ctx, "user:42")
//
// State is stored under token_bucket:{client}.
//
// # Load Adjustment
//
// LoadAdjuster computes a load score from two probes:
//
//	score = 0.7 * database connection saturation + 0.3 * (1 - cache hit ratio)
//
// Above the threshold every limit is multiplied by
// max(0.1, 1 - (score - threshold) * load factor) and floored at 1. A failing probe
// yields a neutral score of 0.5 instead of blocking the caller.
//
//	adjuster, err := ratelimiter.NewLoadAdjuster(
//		ratelimiter.AdaptiveConfig{Threshold: 0.8, LoadFactor: 0.5},
//		ratelimiter.WithSaturationSource(pg.ActivitySaturation(pool)),
//		ratelimiter.WithHitRatioSource(func(context.Context) (float64, error) {
//			return cacheManager.HitRatio(), nil
//		}),
//	)
//
//	limits := adjuster.Adjust(ctx, ratelimiter.Limits{"minute": 60, "hour": 1000})
//
// # Error Handling
//
//   - ErrInvalidConfig: invalid limiter parameters
//   - ErrStoreUnavailable: the counter store could not be reached
//   - ErrRateLimitExceeded: returned by Result.Err for rejected requests
package ratelimiter
