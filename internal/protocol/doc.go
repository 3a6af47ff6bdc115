// Package protocol implements the client side of the STT worker control
// protocol: the handshake that turns a fresh TCP connection into a
// monitoring channel, and the heartbeat frames the worker sends on it.
//
// All multi-byte fields are big-endian. Floating-point fields are 8-byte
// IEEE 754 values.
package protocol
