// Package metrics provides real-time metrics collection for the balancer.
//
// It uses a channel-based event pipeline to asynchronously collect metrics
// about:
//   - Stream acquisitions (successes and failures), totals and per worker
//   - Heartbeats received per worker, with the last reported utilization
//   - Worker health transitions
//
// The collector runs in a dedicated goroutine and processes events without
// blocking the selection path. Events are sent via a buffered channel with
// non-blocking semantics so a slow consumer can never stall a caller.
package metrics
