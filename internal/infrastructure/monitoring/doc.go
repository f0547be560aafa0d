/*
Package monitoring provides Prometheus metrics for the application host.

# Overview

Each Metrics value owns a private registry. Components receive a *Metrics
and may be handed nil, in which case recording is a no-op.

# Metrics

- Application loads by outcome (loaded, cached, joined, aborted, failed)
- Registered, cached and mounted application gauges
- Resource fetches by kind and status, fetch latency, loader cache results
- Script executions by isolation strategy, execution latency
- Attached sandboxes by strategy
- Admin API request count and latency

# Usage

	metrics := monitoring.NewMetrics()
	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	timer := monitoring.NewTimer(metrics, "live")
	err := run()
	timer.Stop(err)
*/
package monitoring
