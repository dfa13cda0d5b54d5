// Package metrics provides real-time metrics collection for the upstream selector.
//
// It uses a channel-based event pipeline to asynchronously collect:
//   - Request counts and selection frequencies per upstream
//   - Response times with percentile calculations (P50, P95, P99)
//   - HTTP status code distribution
//   - Breaker transitions and the current breaker state
//   - Requests rejected because no upstream was available
//
// The collector runs in a dedicated goroutine. Events are sent with Emit,
// which never blocks the request path. Every processed event is also
// mirrored into an optional Prometheus Exporter.
//
// Example usage:
//
//	exporter := metrics.NewExporter()
//	collector := metrics.NewCollector(1000, clockwork.NewRealClock(), exporter, logger)
//	collector.Start(ctx)
//
//	collector.Emit(metrics.MetricEvent{
//		Type:       metrics.EventResponseCompleted,
//		Upstream:   "http://localhost:8081",
//		Duration:   150 * time.Millisecond,
//		StatusCode: 200,
//	})
//
//	snapshot := collector.Snapshot("round-robin")
//
// On shutdown the collector drains buffered events before stopping.
package metrics
