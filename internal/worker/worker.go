package worker

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/scalevoice/stt-balancer/internal/protocol"
	"github.com/scalevoice/stt-balancer/internal/stream"
)

// ErrOverloaded is returned by OpenStream when the worker is flagged
// overloaded and does not tolerate overload. No network call is made.
var ErrOverloaded = errors.New("worker is overloaded")

// Worker is one STT backend. Its identity and negotiated parameters are
// fixed at construction; the health flags mutate continuously and are safe
// for unsynchronized concurrent reads.
type Worker struct {
	id             int
	address        string
	canOverload    bool
	maxUtilization float64

	overloaded atomic.Bool
	inError    atomic.Bool

	open stream.Opener
}

// New builds a Worker from already-negotiated handshake parameters. Streams
// are opened through open, which defaults to stream.Open when nil.
func New(id int, address string, params protocol.MonitorParams, open stream.Opener) *Worker {
	if open == nil {
		open = stream.Open
	}
	return &Worker{
		id:             id,
		address:        address,
		canOverload:    params.CanOverload,
		maxUtilization: params.MaxUtilization,
		open:           open,
	}
}

// Connect dials the worker's address, performs the monitoring-channel
// handshake and returns the Worker together with the control connection.
// The caller hands the connection to a health monitor; the Worker itself
// never touches it again.
func Connect(ctx context.Context, id int, address string, dialTimeout time.Duration) (*Worker, net.Conn, error) {
	dialer := net.Dialer{Timeout: dialTimeout}

	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, nil, fmt.Errorf("dialing worker %s: %w", address, err)
	}

	params, err := protocol.MonitorHandshake(conn)
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("handshake with worker %s: %w", address, err)
	}

	return New(id, address, params, nil), conn, nil
}

// ID returns the worker's registry index.
func (w *Worker) ID() int {
	return w.id
}

// Address returns the worker's resolved host:port endpoint.
func (w *Worker) Address() string {
	return w.address
}

// CanOverload reports whether the worker may be selected while overloaded.
func (w *Worker) CanOverload() bool {
	return w.canOverload
}

// MaxUtilization returns the overload threshold the worker declared during
// the handshake.
func (w *Worker) MaxUtilization() float64 {
	return w.maxUtilization
}

// IsOverloaded reports whether the last heartbeat put the worker above its
// utilization threshold. The value may lag behind the worker by one
// heartbeat interval.
func (w *Worker) IsOverloaded() bool {
	return w.overloaded.Load()
}

// SetOverloaded updates the overload flag.
// Returns true if the flag changed, false if it was already in that state.
func (w *Worker) SetOverloaded(overloaded bool) (changed bool) {
	return w.overloaded.Swap(overloaded) != overloaded
}

// IsInError reports whether the control channel is currently disconnected
// or the last data-connection attempt failed.
func (w *Worker) IsInError() bool {
	return w.inError.Load()
}

// SetInError updates the error flag.
// Returns true if the flag changed, false if it was already in that state.
func (w *Worker) SetInError(inError bool) (changed bool) {
	return w.inError.Swap(inError) != inError
}

// OpenStream opens a new data connection for a transcription session. A
// worker that is overloaded and not overload-tolerant is rejected locally
// with ErrOverloaded, without any network call. The error flag is updated
// to reflect the outcome of the attempt.
func (w *Worker) OpenStream(ctx context.Context, language string, verbose bool) (*stream.Stream, error) {
	if !w.canOverload && w.IsOverloaded() {
		return nil, ErrOverloaded
	}

	s, err := w.open(ctx, w.address, language, verbose)
	w.inError.Store(err != nil)
	return s, err
}
