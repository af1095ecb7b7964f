// Package metrics provides real-time metrics collection for the file server.
//
// It uses a channel-based event pipeline to asynchronously collect metrics about:
//   - Accepted connections
//   - Response status code distribution and bytes sent
//   - Response times with percentile calculations (P50, P95, P99)
//   - Send failures, split into client disconnects and other I/O errors
//
// The collector runs in a dedicated goroutine and processes events without blocking
// the request path. Events are sent with non-blocking semantics; an event that does
// not fit in the buffer is counted as dropped instead of stalling a worker.
//
// Example usage:
//
//	collector := metrics.NewCollector(1000, logger)
//	collector.Start(ctx)
//
//	collector.Emit(metrics.MetricEvent{
//		Type:       metrics.EventResponseCompleted,
//		Duration:   150 * time.Millisecond,
//		StatusCode: 200,
//		Bytes:      4096,
//	})
//
//	snapshot := collector.Snapshot("chunked")
//
// Metrics storage is guarded by a sync.RWMutex and the collector drains pending
// events on shutdown.
package metrics
