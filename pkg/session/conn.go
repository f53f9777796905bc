package session

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rexliu/geckowire/pkg/marionette"
	"github.com/rexliu/geckowire/pkg/wire"
)

// Greeting is the frame a host sends when a connection opens.
type Greeting struct {
	ApplicationType string `json:"applicationType"`
	Protocol        int    `json:"marionetteProtocol"`
}

// aLongTimeAgo is a deadline in the past, used to unblock pending I/O.
var aLongTimeAgo = time.Unix(1, 0)

// Conn is one connection to a Marionette host. The protocol is half-duplex:
// a round trip holds the connection exclusively from the write of the
// request until its response is read.
//
// Failures that leave the stream in an unknown state (framing, I/O,
// cancellation, id mismatch, unexpected direction) close the connection;
// every later call returns the same error. A response that is framed
// correctly but fails to decode is returned as a *marionette.DecodeError and
// the connection stays usable.
type Conn struct {
	nc       net.Conn
	r        *bufio.Reader
	maxFrame int

	mu       sync.Mutex
	nextID   uint32
	err      error
	greeting Greeting

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// NewConn wraps nc. maxFrame bounds the declared length of inbound frames;
// zero means wire.MaxFrameSize.
func NewConn(nc net.Conn, maxFrame int) *Conn {
	if maxFrame <= 0 {
		maxFrame = wire.MaxFrameSize
	}
	return &Conn{nc: nc, r: bufio.NewReader(nc), maxFrame: maxFrame}
}

// Handshake reads the host greeting, checks the protocol level and sends
// an identify probe whose reply is discarded. Any failure closes the
// connection.
func (c *Conn) Handshake(ctx context.Context) (Greeting, error) {
	c.mu.Lock()
	err := c.guard(ctx, func() error {
		payload, err := wire.ReadFrameLimit(c.r, c.maxFrame)
		if err != nil {
			return c.fatal(fmt.Errorf("session: read greeting: %w", err))
		}
		var g Greeting
		if err := json.Unmarshal(payload, &g); err != nil {
			return c.fatal(fmt.Errorf("session: decode greeting: %w", err))
		}
		if g.Protocol != ProtocolLevel {
			return c.fatal(fmt.Errorf("%w: %d", ErrUnsupportedProtocol, g.Protocol))
		}
		c.greeting = g
		return nil
	})
	greeting := c.greeting
	c.mu.Unlock()
	if err != nil {
		return Greeting{}, err
	}

	if _, err := c.RoundTrip(ctx, marionette.GetContext{}); err != nil {
		c.Close()
		return Greeting{}, fmt.Errorf("session: identify: %w", err)
	}
	return greeting, nil
}

// RoundTrip sends cmd and waits for the matching response. A host error is
// returned inside the response, not as err.
func (c *Conn) RoundTrip(ctx context.Context, cmd marionette.Command) (*marionette.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return nil, c.err
	}
	if c.closed.Load() {
		return nil, ErrClosed
	}

	id := c.nextID
	data, err := marionette.Encode(marionette.NewRequest(id, cmd))
	if err != nil {
		return nil, err
	}

	var resp *marionette.Response
	err = c.guard(ctx, func() error {
		if err := wire.WriteFrame(c.nc, data); err != nil {
			return c.fatal(fmt.Errorf("session: write request %d: %w", id, err))
		}
		c.nextID++
		payload, err := wire.ReadFrameLimit(c.r, c.maxFrame)
		if err != nil {
			return c.fatal(fmt.Errorf("session: read response %d: %w", id, err))
		}
		msg, err := marionette.Decode(payload)
		if err != nil {
			// A request with an undecodable body is still the wrong direction.
			if dir, rid, herr := marionette.DecodeHeader(payload); herr == nil && dir == marionette.DirectionRequest {
				return c.fatal(fmt.Errorf("%w: request %d while awaiting %d", ErrUnexpectedDirection, rid, id))
			}
			return err
		}
		switch m := msg.(type) {
		case *marionette.Response:
			if m.ID != id {
				return c.fatal(fmt.Errorf("%w: sent %d, received %d", ErrIDMismatch, id, m.ID))
			}
			resp = m
		default:
			return c.fatal(fmt.Errorf("%w: request %d while awaiting %d", ErrUnexpectedDirection, msg.MessageID(), id))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// guard runs fn with ctx bound to the socket: when ctx is done, pending I/O
// is interrupted and the connection is torn down, since the in-flight
// response could otherwise reach the next caller.
func (c *Conn) guard(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return c.fatal(fmt.Errorf("session: round trip abandoned: %w", err))
	}
	stop := context.AfterFunc(ctx, func() {
		c.nc.SetDeadline(aLongTimeAgo)
	})
	err := fn()
	if !stop() {
		return c.fatal(fmt.Errorf("session: round trip abandoned: %w", ctx.Err()))
	}
	return err
}

// fatal records err as the connection's terminal state and closes it.
// c.mu must be held.
func (c *Conn) fatal(err error) error {
	c.err = err
	c.Close()
	return err
}

// Broken reports whether the connection has been closed.
func (c *Conn) Broken() bool { return c.closed.Load() }

// Greeting returns the greeting read by Handshake.
func (c *Conn) Greeting() Greeting {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.greeting
}

// RemoteAddr returns the host address.
func (c *Conn) RemoteAddr() string { return c.nc.RemoteAddr().String() }

// Close releases the connection. It is safe to call more than once and
// from any goroutine; a round trip in progress fails.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.closeErr = c.nc.Close()
	})
	return c.closeErr
}
