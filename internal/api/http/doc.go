// Package http exposes a running application host over a small admin API.
//
// Endpoints:
//   - Health: / and /health
//   - Apps: /apps, /apps/:name/load, /apps/:name/mount, /apps/:name/unmount
//   - Scripts: /apps/:name/exec
//   - Cache: DELETE /apps/:name/cache
//   - Environment: /globals
//   - Metrics: /metrics (Prometheus) and /metrics/json
//
// Example Usage:
//
//	handlers := http.NewHandlers(h, metrics, tracer, logger)
//	handlers.Register(router)
package http
