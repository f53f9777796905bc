// Package session binds Marionette connections to session ids and
// dispatches commands over them, one round trip at a time per connection.
package session

import (
	"context"
	"errors"
	mathrand "math/rand"
	"net"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/rexliu/geckowire/pkg/marionette"
)

var (
	// ErrUnknownSession is returned for a session id the registry does not hold.
	ErrUnknownSession = errors.New("session: unknown session")
	// ErrIDMismatch means the host answered a request other than the one in flight.
	ErrIDMismatch = errors.New("session: response id mismatch")
	// ErrUnexpectedDirection means the host sent a request where a response was due.
	ErrUnexpectedDirection = errors.New("session: unexpected message direction")
	// ErrUnsupportedProtocol means the host greeting announced a protocol level other than 3.
	ErrUnsupportedProtocol = errors.New("session: unsupported protocol level")
	// ErrClosed is returned by a connection after Close or a fatal failure.
	ErrClosed = errors.New("session: connection closed")
)

// ProtocolLevel is the only Marionette protocol level this package speaks.
const ProtocolLevel = 3

// Outcome is the result of one dispatched command. Exactly one of Result
// and Error is set; a host error is an ordinary outcome, not a Go error.
type Outcome struct {
	SessionID string
	Result    marionette.Result
	Error     *marionette.ErrorRecord
}

// Dialer supplies connected byte streams to a Marionette host.
type Dialer interface {
	Dial(ctx context.Context) (net.Conn, error)
}

// IDSource mints session ids.
type IDSource interface {
	NewID() string
}

// Info describes a live session.
type Info struct {
	ID              string    `json:"id"`
	Addr            string    `json:"addr"`
	ApplicationType string    `json:"applicationType"`
	Created         time.Time `json:"created"`
}

// Journal records session lifecycle transitions. Implementations must be
// safe for concurrent use.
type Journal interface {
	RecordOpened(ctx context.Context, info Info) error
	RecordClosed(ctx context.Context, id, reason string, at time.Time) error
}

// ULIDSource mints lexically sortable ULID session ids.
type ULIDSource struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

// NewULIDSource returns an IDSource seeded from the current time.
func NewULIDSource() *ULIDSource {
	return &ULIDSource{
		entropy: ulid.Monotonic(mathrand.New(mathrand.NewSource(time.Now().UnixNano())), 0),
	}
}

// NewID implements IDSource.
func (s *ULIDSource) NewID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), s.entropy).String()
}
