// Package admission decides, per inbound request, whether it is admitted or rejected.
//
// A request is first identified: an authenticated user id becomes the client key
// "user:<id>", otherwise the first address of the forwarded-for chain (or the direct
// peer) becomes "ip:<address>". The tier (anonymous, authenticated, premium, admin)
// selects the limit table.
//
// The Orchestrator then runs the checks in a fixed order and stops at the first
// rejection:
//
//  1. Minute, hour and day sliding windows, with limits scaled by the load adjuster
//  2. The token bucket for short bursts
//  3. The endpoint override of the first matching path prefix (minute, then hour)
//
// Health, metrics and static paths and allow-listed addresses bypass all checks
// before any limiter state is touched.
//
//	orch, err := admission.New(store, cfg,
//		admission.WithLoadAdjuster(adjuster),
//		admission.WithMonitor(admission.NewMonitor(store, admission.WithPublisher(publisher))),
//		admission.WithLogger(log),
//	)
//
//	d := orch.Check(ctx, admission.Request{
//		UserID:     userID,
//		RemoteAddr: r.RemoteAddr,
//		Path:       r.URL.Path,
//		Method:     r.Method,
//	})
//	if !d.Allowed {
//		return middleware.Rejection(d) // 429 with Retry-After and a JSON body
//	}
//
// The store is a side channel: if a round trip fails or exceeds Config.StoreTimeout,
// the check is skipped and the request proceeds. Stats exposes the number of such
// degradations along with per-reason rejection counters.
//
// Rejections are recorded by the Monitor, which counts violations per client and
// day under rate_limit_violations:{yyyymmdd}:{client} and publishes a Violation
// event for external sinks.
package admission
