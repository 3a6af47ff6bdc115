package protocol

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// Control-channel tag bytes.
const (
	TagMonitorRequest = 0x04 // client asks for a monitoring channel
	TagAccepted       = 0x06 // worker accepted the channel request
	TagHeartbeat      = 0x07 // utilization report follows
	TagClose          = 0x03 // client is closing the channel
)

// Data-channel tag bytes.
const (
	TagSessionRequest = 0x01 // client asks for a transcription session
)

// ErrUnexpectedReply is returned when the worker answers a channel request
// with anything other than TagAccepted.
type ErrUnexpectedReply struct {
	Got byte
}

func (e ErrUnexpectedReply) Error() string {
	return fmt.Sprintf("unexpected reply from worker: 0x%02x", e.Got)
}

// MonitorParams holds the fields a worker sends back when it accepts a
// monitoring channel.
type MonitorParams struct {
	// MaxUtilization is the threshold above which the worker considers
	// itself overloaded, on a 0.0-1.0 scale.
	MaxUtilization float64
	// CanOverload reports whether the worker may still accept sessions
	// while overloaded.
	CanOverload bool
}

// MonitorHandshake converts rw into a monitoring channel. It sends the
// channel request and reads back the acceptance byte, the overload
// threshold and the overload capability. The caller keeps ownership of rw.
func MonitorHandshake(rw io.ReadWriter) (MonitorParams, error) {
	if err := WriteByte(rw, TagMonitorRequest); err != nil {
		return MonitorParams{}, fmt.Errorf("sending channel request: %w", err)
	}

	reply, err := ReadByte(rw)
	if err != nil {
		return MonitorParams{}, fmt.Errorf("reading channel reply: %w", err)
	}
	if reply != TagAccepted {
		return MonitorParams{}, ErrUnexpectedReply{Got: reply}
	}

	maxUtilization, err := ReadFloat64(rw)
	if err != nil {
		return MonitorParams{}, fmt.Errorf("reading max utilization: %w", err)
	}

	canOverload, err := ReadByte(rw)
	if err != nil {
		return MonitorParams{}, fmt.Errorf("reading overload capability: %w", err)
	}

	return MonitorParams{
		MaxUtilization: maxUtilization,
		CanOverload:    canOverload == 0x01,
	}, nil
}

// ReadByte reads a single byte from r.
func ReadByte(r io.Reader) (byte, error) {
	var buf [1]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return buf[0], nil
}

// WriteByte writes a single byte to w.
func WriteByte(w io.Writer, b byte) error {
	_, err := w.Write([]byte{b})
	return err
}

// ReadFloat64 reads an 8-byte big-endian IEEE 754 value from r.
func ReadFloat64(r io.Reader) (float64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return math.Float64frombits(binary.BigEndian.Uint64(buf[:])), nil
}

// WriteFloat64 writes v to w as an 8-byte big-endian IEEE 754 value.
func WriteFloat64(w io.Writer, v float64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], math.Float64bits(v))
	_, err := w.Write(buf[:])
	return err
}

// WriteString writes s to w as a 2-byte big-endian length followed by the
// raw bytes.
func WriteString(w io.Writer, s string) error {
	if len(s) > math.MaxUint16 {
		return fmt.Errorf("string too long for frame: %d bytes", len(s))
	}
	var n [2]byte
	binary.BigEndian.PutUint16(n[:], uint16(len(s)))
	if _, err := w.Write(n[:]); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

// ReadString reads a string written by WriteString.
func ReadString(r io.Reader) (string, error) {
	var n [2]byte
	if _, err := io.ReadFull(r, n[:]); err != nil {
		return "", err
	}
	buf := make([]byte, binary.BigEndian.Uint16(n[:]))
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}
