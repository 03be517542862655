// Package progress carries cycle lifecycle events from the orchestrator and
// pipeline to pluggable sinks (logs, Prometheus, the cycle repository). The
// Hub batches events on a background goroutine and never blocks emitters.
package progress
