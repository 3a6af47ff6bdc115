// Package balancer implements worker selection for transcription sessions.
//
// At startup it resolves the configured worker specifications, opens one
// monitoring channel per worker and starts the health monitors. Each
// session request then picks a worker round-robin, skipping workers that
// are overloaded or in error, and only degrading to an overload-tolerant
// worker when a full lap finds no healthy one.
package balancer
