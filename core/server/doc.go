// Package server wraps http.Server with environment configuration and an
// errgroup-friendly lifecycle.
//
//	srv := server.New(cfg, server.WithLogger(log))
//	g.Go(srv.Run(ctx, handler))
//
// Run starts listening, and on context cancellation shuts down gracefully
// within Config.ShutdownTimeout.
package server
