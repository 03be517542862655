// Package sinks implements concrete progress consumers: Prometheus collectors,
// the cycle-history repository, and structured logging. Each sink satisfies
// progress.Sink and tolerates repeated Consume/Close calls.
package sinks
