// Package cache provides a four-tier cache over a counterstore.Store.
//
// Entries live under a tier prefix ("l1".."l4") with a tier specific TTL
// and a ":meta" sidecar describing size, compression and creation time.
// Payloads above the compression threshold are zlib compressed. A miss at
// L1 or L2 falls back to L3 and L4 and promotes the value it finds.
//
// Basic usage:
//
//	m, err := cache.NewManager(store, cache.DefaultConfig(), cache.WithLogger(log))
//	if err != nil {
//	    return err
//	}
//	m.Set(ctx, "popular_subjects", subjects, cache.WithLevel(cache.L3))
//
//	var subjects []Subject
//	if m.Get(ctx, "popular_subjects", &subjects, cache.WithLevel(cache.L3)) {
//	    // hit
//	}
//
// Wrap memoizes a function. The cache key is built from a prefix, a name
// and the vary-on segments, and slow results are kept longer:
//
//	stats := cache.Wrap(m, "stats", loadStats,
//	    cache.WithKeyPrefix("user_data"),
//	    cache.WithVaryOn(func(q StatsQuery) []string { return []string{"user_id:" + q.UserID} }),
//	    cache.WithInvalidateOn("session_saved"),
//	)
//
// Warmer runs registered jobs periodically and rebuilds user entries after
// a SessionRecorded event; see Warmer.SessionRecordedHandler.
//
// The manager never returns store errors. Failures are logged, counted in
// Stats, and surface as misses.
package cache
