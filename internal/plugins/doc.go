// Package plugins holds the host plugins installed by default.
//
// Each sub-package returns a *host.Plugin:
//
//   - vm: live isolation for every app whose descriptor allows it
//   - snapshot: snapshot isolation, on request or as a fallback
//   - lifecycle: forwards host hooks to per-descriptor callbacks
//   - preload: warms the loader cache with registered entries
package plugins
