package wire

import (
	"errors"
	"fmt"
	"io"
	"strconv"
)

// MaxFrameSize is the default upper bound on a declared payload length.
// Screenshots travel as base64 inside a single frame, so the bound is generous.
const MaxFrameSize = 256 << 20

// ErrFraming matches every *FramingError via errors.Is.
var ErrFraming = errors.New("wire: framing error")

// FramingError reports a malformed or truncated envelope. The stream that
// produced it can no longer be trusted and must be closed.
type FramingError struct {
	Reason string
	Err    error
}

func (e *FramingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("wire: %s: %v", e.Reason, e.Err)
	}
	return "wire: " + e.Reason
}

func (e *FramingError) Unwrap() error { return e.Err }

// Is reports ErrFraming so callers need not know the concrete type.
func (e *FramingError) Is(target error) bool { return target == ErrFraming }

// Encode returns payload prefixed with its decimal length and a colon.
func Encode(payload []byte) []byte {
	out := make([]byte, 0, len(payload)+12)
	out = strconv.AppendInt(out, int64(len(payload)), 10)
	out = append(out, ':')
	return append(out, payload...)
}

// ReadFrame reads one length-prefixed payload from r, bounded by MaxFrameSize.
func ReadFrame(r io.Reader) ([]byte, error) {
	return readFrame(r, MaxFrameSize)
}

// ReadFrameLimit reads one payload, rejecting declared lengths above limit.
// A non-positive limit falls back to MaxFrameSize.
func ReadFrameLimit(r io.Reader, limit int) ([]byte, error) {
	if limit <= 0 {
		limit = MaxFrameSize
	}
	return readFrame(r, limit)
}

// WriteFrame writes payload to w as a single "<len>:<payload>" envelope.
func WriteFrame(w io.Writer, payload []byte) error {
	return writeFrame(w, payload)
}

func readFrame(r io.Reader, limit int) ([]byte, error) {
	next := byteSource(r)
	length := 0
	digits := 0
	for {
		c, err := next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				if digits == 0 {
					return nil, &FramingError{Reason: "stream closed", Err: io.EOF}
				}
				return nil, &FramingError{Reason: "stream closed inside length prefix", Err: io.ErrUnexpectedEOF}
			}
			return nil, &FramingError{Reason: "read length prefix", Err: err}
		}
		if c == ':' {
			break
		}
		if c < '0' || c > '9' {
			return nil, &FramingError{Reason: fmt.Sprintf("unexpected byte %q in length prefix", c)}
		}
		if digits == 1 && length == 0 {
			return nil, &FramingError{Reason: "leading zero in length prefix"}
		}
		d := int(c - '0')
		// length*10+d > limit, checked without overflowing.
		if length > limit/10 || length*10 > limit-d {
			return nil, &FramingError{Reason: fmt.Sprintf("declared length exceeds %d bytes", limit)}
		}
		length = length*10 + d
		digits++
	}
	if digits == 0 {
		return nil, &FramingError{Reason: "empty length prefix"}
	}
	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, &FramingError{Reason: fmt.Sprintf("read %d byte payload", length), Err: err}
	}
	return buf, nil
}

func writeFrame(w io.Writer, payload []byte) error {
	_, err := w.Write(Encode(payload))
	return err
}

// byteSource reads the prefix one byte at a time so nothing past the
// declared payload is consumed from r.
func byteSource(r io.Reader) func() (byte, error) {
	if br, ok := r.(io.ByteReader); ok {
		return br.ReadByte
	}
	var one [1]byte
	return func() (byte, error) {
		if _, err := io.ReadFull(r, one[:]); err != nil {
			return 0, err
		}
		return one[0], nil
	}
}
