package stream

import (
	"context"
	"fmt"
	"net"

	"github.com/scalevoice/stt-balancer/internal/protocol"
)

// Stream is an established transcription session. It is a plain
// bidirectional byte stream once opened; callers own it and must Close it.
type Stream struct {
	conn     net.Conn
	language string
	verbose  bool
}

// Opener opens a data connection to a worker address. It exists so the
// balancer and tests can substitute the session protocol.
type Opener func(ctx context.Context, address, language string, verbose bool) (*Stream, error)

// Open dials a new data connection and requests a transcription session for
// the given language. The worker must acknowledge the request before any
// payload flows.
func Open(ctx context.Context, address, language string, verbose bool) (*Stream, error) {
	var dialer net.Dialer

	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("dialing worker %s: %w", address, err)
	}

	if err := writeSessionRequest(conn, language, verbose); err != nil {
		conn.Close()
		return nil, fmt.Errorf("requesting session from %s: %w", address, err)
	}

	reply, err := protocol.ReadByte(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("reading session reply from %s: %w", address, err)
	}
	if reply != protocol.TagAccepted {
		conn.Close()
		return nil, protocol.ErrUnexpectedReply{Got: reply}
	}

	return &Stream{conn: conn, language: language, verbose: verbose}, nil
}

func writeSessionRequest(conn net.Conn, language string, verbose bool) error {
	if err := protocol.WriteByte(conn, protocol.TagSessionRequest); err != nil {
		return err
	}
	if err := protocol.WriteString(conn, language); err != nil {
		return err
	}
	var v byte
	if verbose {
		v = 0x01
	}
	return protocol.WriteByte(conn, v)
}

// Language returns the language the session was opened with.
func (s *Stream) Language() string {
	return s.language
}

// Verbose reports whether verbose transcription output was requested.
func (s *Stream) Verbose() bool {
	return s.verbose
}

func (s *Stream) Read(p []byte) (int, error) {
	return s.conn.Read(p)
}

func (s *Stream) Write(p []byte) (int, error) {
	return s.conn.Write(p)
}

func (s *Stream) Close() error {
	return s.conn.Close()
}
