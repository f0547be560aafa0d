// Package logging provides structured logging using uber/zap.
//
// Two modes are supported:
//   - Production: JSON output, info level, no developer diagnostics
//   - Development: colored console output, debug level, DevWarn enabled
//
// Every host component accepts a *Logger and derives a named child from it
// (host, loader, sandbox, hooks). A nil logger is replaced by a no-op one.
//
// Example Usage:
//
//	logger := logging.NewDevelopment()
//	logger.Named("host").Warn("app already registered", zap.String("app", name))
package logging
