// Package opensearch provides OpenSearch client initialization, health
// checking and the violation sink used for rate limit analytics.
//
// New creates a client and verifies cluster connectivity before returning
// it, so a misconfigured cluster fails at startup rather than on the first
// indexed violation.
//
//	client, err := opensearch.New(ctx, cfg)
//	if err != nil {
//		return err
//	}
//
//	sink := opensearch.NewViolationSink(client, opensearch.WithIndexPrefix("rate-limit-violations"))
//	processor := event.NewProcessor(
//		event.WithEventSource(bus),
//		event.WithHandler(sink.Handler()),
//	)
//
// Violations are indexed into one index per UTC day ("<prefix>-2006.01.02")
// using the violation id as the document id, so redelivered events overwrite
// instead of duplicating.
//
// Errors:
//
//   - ErrConnectionFailed: the client could not be created
//   - ErrHealthcheckFailed: the cluster is unreachable or unhealthy
//   - ErrIndexFailed: the cluster rejected a document
package opensearch
