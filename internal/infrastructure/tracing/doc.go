/*
Package tracing provides lightweight request tracing for the admin API.

# Overview

Each admin request gets a span. Spans that belong to one request share a
trace ID, which callers can propagate with the X-Trace-ID header so a load
triggered from another service shows up under that service's trace.
Finished spans are written to the structured log by a background
collector.

# Usage

	tracer := tracing.New("apphost", logger)
	defer tracer.Close()

	router.Use(tracing.HTTPMiddleware(tracer))

	span, ctx := tracer.StartSpan(ctx, "host.load")
	span.SetTag("app", name)
	defer tracer.End(span)

# Trace Format

- X-Trace-ID: identifier of the whole request flow
- X-Span-ID: identifier of the current operation

Both are prefixed ULIDs (req_...), so they sort by creation time.
*/
package tracing
