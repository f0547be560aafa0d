// Package main is the entry point for the application host.
//
// The host loads micro-frontend applications from their entry URLs, runs
// their scripts in isolated sandboxes over a shared environment and exposes
// the running host through an admin API.
//
// Configuration:
//   - Environment variables (12-factor)
//   - CLI flags (override env vars)
//   - Defaults for development
//
// Usage:
//
//	# Register every descriptor file under ./apps
//	./apphost -port 8000 -apps 'apps/**/*.{yaml,yml,toml,json}'
//
//	# Development mode (colored logs, debug level)
//	./apphost -dev
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown
package main
