// Package status exposes the balancer's operational state over HTTP: a
// JSON snapshot of counters and per-worker health, and a liveness endpoint
// that fails when no worker is selectable.
package status
