// Package stream opens per-session data connections to STT workers. The
// transcription payload carried on a stream is defined by the workers; this
// package only establishes the session.
package stream
