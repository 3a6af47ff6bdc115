// Package worker models a single STT backend: its resolved address, the
// capability and overload threshold negotiated during the control-channel
// handshake, and the live health flags shared between the health monitor
// and the selection path.
package worker
