package session

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rexliu/geckowire/pkg/marionette"
	"github.com/rexliu/geckowire/pkg/wire"
)

// pipeHost drives the host end of a net.Pipe by hand.
type pipeHost struct {
	t    *testing.T
	conn net.Conn
	r    *bufio.Reader
}

func newPipe(t *testing.T) (*Conn, *pipeHost) {
	t.Helper()
	client, server := net.Pipe()
	t.Cleanup(func() {
		client.Close()
		server.Close()
	})
	return NewConn(client, 0), &pipeHost{t: t, conn: server, r: bufio.NewReader(server)}
}

func (h *pipeHost) send(payload string) {
	assert.NoError(h.t, wire.WriteFrame(h.conn, []byte(payload)))
}

func (h *pipeHost) expect() *marionette.Request {
	payload, err := wire.ReadFrame(h.r)
	if !assert.NoError(h.t, err) {
		return &marionette.Request{}
	}
	msg, err := marionette.Decode(payload)
	if !assert.NoError(h.t, err) {
		return &marionette.Request{}
	}
	req, ok := msg.(*marionette.Request)
	assert.True(h.t, ok)
	return req
}

func (h *pipeHost) reply(id uint32, errField, result string) {
	h.send(fmt.Sprintf(`[1,%d,%s,%s]`, id, errField, result))
}

func (h *pipeHost) greetAndIdentify() {
	h.send(`{"applicationType":"gecko","marionetteProtocol":3}`)
	req := h.expect()
	assert.Equal(h.t, marionette.GetContext{}, req.Command)
	h.reply(req.ID, "null", `{"value":"content"}`)
}

func TestHandshake(t *testing.T) {
	c, h := newPipe(t)
	go h.greetAndIdentify()

	g, err := c.Handshake(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Greeting{ApplicationType: "gecko", Protocol: 3}, g)
	assert.Equal(t, g, c.Greeting())
	assert.False(t, c.Broken())
}

func TestHandshakeIdentifyMayFail(t *testing.T) {
	c, h := newPipe(t)
	go func() {
		h.send(`{"applicationType":"gecko","marionetteProtocol":3}`)
		req := h.expect()
		h.reply(req.ID, `{"error":"unknown command","message":"","stacktrace":""}`, "null")
	}()

	_, err := c.Handshake(context.Background())
	require.NoError(t, err)
}

func TestHandshakeRejectsProtocol(t *testing.T) {
	for _, greeting := range []string{
		`{"applicationType":"gecko","marionetteProtocol":2}`,
		`{"applicationType":"gecko"}`,
	} {
		c, h := newPipe(t)
		go h.send(greeting)

		_, err := c.Handshake(context.Background())
		require.ErrorIs(t, err, ErrUnsupportedProtocol, greeting)
		assert.True(t, c.Broken())
	}
}

func TestHandshakeBadGreeting(t *testing.T) {
	c, h := newPipe(t)
	go h.send(`not json`)

	_, err := c.Handshake(context.Background())
	require.Error(t, err)
	assert.True(t, c.Broken())
}

func TestRoundTrip(t *testing.T) {
	c, h := newPipe(t)
	go func() {
		h.greetAndIdentify()
		req := h.expect()
		assert.Equal(t, marionette.GetTitle{}, req.Command)
		h.reply(req.ID, "null", `{"value":"Example Domain"}`)

		req = h.expect()
		h.reply(req.ID, `{"error":"no such element","message":"#x","stacktrace":""}`, "null")
	}()
	_, err := c.Handshake(context.Background())
	require.NoError(t, err)

	resp, err := c.RoundTrip(context.Background(), marionette.GetTitle{})
	require.NoError(t, err)
	assert.Equal(t, marionette.StringResult("Example Domain"), resp.Result)

	resp, err = c.RoundTrip(context.Background(), marionette.FindElement{Locator: marionette.Locator{Using: marionette.CSSSelector, Value: "#x"}})
	require.NoError(t, err)
	require.True(t, resp.IsError())
	assert.Equal(t, marionette.NoSuchElement, resp.Error.Kind)
}

func TestRoundTripIDsIncrease(t *testing.T) {
	c, h := newPipe(t)
	seen := make(chan uint32, 3)
	go func() {
		for i := 0; i < 3; i++ {
			req := h.expect()
			seen <- req.ID
			h.reply(req.ID, "null", `{"value":null}`)
		}
	}()
	for i := 0; i < 3; i++ {
		_, err := c.RoundTrip(context.Background(), marionette.Refresh{})
		require.NoError(t, err)
	}
	assert.Equal(t, uint32(0), <-seen)
	assert.Equal(t, uint32(1), <-seen)
	assert.Equal(t, uint32(2), <-seen)
}

func TestRoundTripIDMismatchIsFatal(t *testing.T) {
	c, h := newPipe(t)
	go func() {
		req := h.expect()
		h.reply(req.ID+1, "null", `{"value":null}`)
	}()

	_, err := c.RoundTrip(context.Background(), marionette.GetTitle{})
	require.ErrorIs(t, err, ErrIDMismatch)
	assert.True(t, c.Broken())

	_, err = c.RoundTrip(context.Background(), marionette.GetTitle{})
	assert.ErrorIs(t, err, ErrIDMismatch)
}

func TestRoundTripUnexpectedDirectionIsFatal(t *testing.T) {
	c, h := newPipe(t)
	go func() {
		req := h.expect()
		h.send(fmt.Sprintf(`[0,%d,"WebDriver:GetTitle",{}]`, req.ID))
	}()

	_, err := c.RoundTrip(context.Background(), marionette.GetTitle{})
	require.ErrorIs(t, err, ErrUnexpectedDirection)
	assert.True(t, c.Broken())
}

func TestRoundTripUndecodableRequestIsFatal(t *testing.T) {
	c, h := newPipe(t)
	go func() {
		req := h.expect()
		h.send(fmt.Sprintf(`[0,%d,"hooba",{}]`, req.ID))
	}()

	_, err := c.RoundTrip(context.Background(), marionette.GetTitle{})
	require.ErrorIs(t, err, ErrUnexpectedDirection)
	assert.True(t, c.Broken())

	_, err = c.RoundTrip(context.Background(), marionette.GetTitle{})
	assert.ErrorIs(t, err, ErrUnexpectedDirection)
}

func TestRoundTripDecodeErrorKeepsConnection(t *testing.T) {
	c, h := newPipe(t)
	go func() {
		req := h.expect()
		h.reply(req.ID, "null", `17`)
		req = h.expect()
		h.reply(req.ID, "null", `{"value":true}`)
	}()

	_, err := c.RoundTrip(context.Background(), marionette.IsElementEnabled{ID: "e1"})
	require.ErrorIs(t, err, marionette.ErrUndecodableResult)
	var de *marionette.DecodeError
	assert.True(t, errors.As(err, &de))
	assert.False(t, c.Broken())

	resp, err := c.RoundTrip(context.Background(), marionette.IsElementEnabled{ID: "e1"})
	require.NoError(t, err)
	assert.Equal(t, marionette.BoolResult(true), resp.Result)
}

func TestRoundTripFramingErrorIsFatal(t *testing.T) {
	c, h := newPipe(t)
	go func() {
		h.expect()
		_, _ = h.conn.Write([]byte("x:[]"))
	}()

	_, err := c.RoundTrip(context.Background(), marionette.GetTitle{})
	require.ErrorIs(t, err, wire.ErrFraming)
	assert.True(t, c.Broken())
}

func TestRoundTripCancelTearsDown(t *testing.T) {
	c, h := newPipe(t)
	go h.expect()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := c.RoundTrip(ctx, marionette.GetTitle{})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, c.Broken())
}

func TestRoundTripAfterClose(t *testing.T) {
	c, _ := newPipe(t)
	require.NoError(t, c.Close())
	assert.NoError(t, c.Close())

	_, err := c.RoundTrip(context.Background(), marionette.GetTitle{})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestRoundTripUnregisteredCommand(t *testing.T) {
	type bogus struct{ marionette.GetTitle }
	c, _ := newPipe(t)

	_, err := c.RoundTrip(context.Background(), bogus{})
	require.Error(t, err)
	assert.False(t, c.Broken())
}
