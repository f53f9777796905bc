package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rexliu/geckowire/pkg/wire"
)

// Client issues requests to a geckowired socket. Calls on one client are
// serialized.
type Client struct {
	mu   sync.Mutex
	conn net.Conn
	r    *bufio.Reader
	seq  uint64
}

// Dial connects to the daemon socket at path.
func Dial(ctx context.Context, path string) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", path)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", path, err)
	}
	return NewClient(conn), nil
}

// NewClient wraps an established connection.
func NewClient(conn net.Conn) *Client {
	return &Client{conn: conn, r: bufio.NewReader(conn)}
}

// Close closes the connection.
func (c *Client) Close() error { return c.conn.Close() }

func (c *Client) send(method string, params any) (string, error) {
	var raw json.RawMessage
	if params != nil {
		b, err := json.Marshal(params)
		if err != nil {
			return "", err
		}
		raw = b
	}
	c.seq++
	req := Request{
		ID:     fmt.Sprintf("cli-%d-%d", time.Now().UnixNano(), c.seq),
		Type:   method,
		Params: raw,
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return "", err
	}
	return req.ID, wire.WriteFrame(c.conn, payload)
}

func (c *Client) receive() (*Response, error) {
	frame, err := wire.ReadFrameLimit(c.r, MaxRequestBytes)
	if err != nil {
		return nil, err
	}
	var resp Response
	if err := json.Unmarshal(frame, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Call sends method with params and returns the raw result. A daemon
// failure is returned as *Error.
func (c *Client) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if deadline, ok := ctx.Deadline(); ok {
		c.conn.SetDeadline(deadline)
		defer c.conn.SetDeadline(time.Time{})
	}
	id, err := c.send(method, params)
	if err != nil {
		return nil, err
	}
	resp, err := c.receive()
	if err != nil {
		return nil, err
	}
	if resp.ID != id {
		return nil, fmt.Errorf("ipc: response id %q does not match request %q", resp.ID, id)
	}
	if resp.Error != nil {
		return nil, resp.Error
	}
	return resp.Result, nil
}

// Subscribe sends a stream request and calls fn with each event until the
// stream ends, fn returns an error or ctx is done. The client cannot be
// used for calls afterwards.
func (c *Client) Subscribe(ctx context.Context, method string, params any, fn func(json.RawMessage) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := c.send(method, params); err != nil {
		return err
	}
	stop := context.AfterFunc(ctx, func() { c.conn.Close() })
	defer stop()
	for {
		resp, err := c.receive()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		if resp.Error != nil {
			return resp.Error
		}
		if err := fn(resp.Result); err != nil {
			return err
		}
	}
}
