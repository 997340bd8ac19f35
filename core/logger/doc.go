// Package logger builds slog loggers and the attribute helpers the rest of
// the module logs with.
//
//	log := logger.New(logger.ForEnv("production", "gatekeeper"))
//	log.Warn("counter store unavailable, failing open",
//		logger.Component("admission"),
//		logger.ClientKey(key),
//		logger.Error(err),
//	)
//
// Library packages take a *slog.Logger through an option and default to
// Discard.
package logger
