// Package monitor implements per-worker health monitoring. One monitor owns
// a worker's control channel after the handshake and runs for the life of
// the process: it reads heartbeat frames, keeps the worker's shared health
// flags current, and reconnects with a fixed backoff when the channel drops.
package monitor
