// Package mockhost runs an in-process Marionette host over TCP. It speaks
// the real wire protocol and answers requests through a Handler, which makes
// it usable both from tests and as a stand-in browser during development.
package mockhost

import (
	"bufio"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"

	"github.com/rexliu/geckowire/pkg/marionette"
	"github.com/rexliu/geckowire/pkg/wire"
)

// Greeting is the first frame a host sends on a new connection.
type Greeting struct {
	ApplicationType string `json:"applicationType"`
	Protocol        int    `json:"marionetteProtocol"`
}

// DefaultGreeting is what Firefox sends.
var DefaultGreeting = Greeting{ApplicationType: "gecko", Protocol: 3}

// Handler answers one request. The returned message is written back as is,
// so a handler may misbehave on purpose. Returning nil sends nothing.
type Handler interface {
	Serve(req *marionette.Request) marionette.Message
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(req *marionette.Request) marionette.Message

func (f HandlerFunc) Serve(req *marionette.Request) marionette.Message { return f(req) }

// Option configures a Host.
type Option func(*Host)

// WithGreeting replaces DefaultGreeting.
func WithGreeting(g Greeting) Option {
	return func(h *Host) { h.greeting = g }
}

// WithHandler sets the factory called once per accepted connection.
func WithHandler(factory func() Handler) Option {
	return func(h *Host) { h.newHandler = factory }
}

// WithLogger sets the host's logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *Host) { h.logger = l }
}

// Host accepts Marionette client connections.
type Host struct {
	ln         net.Listener
	greeting   Greeting
	newHandler func() Handler
	logger     *slog.Logger

	mu       sync.Mutex
	conns    map[net.Conn]struct{}
	accepted int
	closed   bool
	wg       sync.WaitGroup
}

// Start listens on addr ("127.0.0.1:0" picks a free port) and serves in
// the background until Close. Without WithHandler every connection gets a
// fresh Browser.
func Start(addr string, opts ...Option) (*Host, error) {
	h := &Host{
		greeting:   DefaultGreeting,
		newHandler: func() Handler { return NewBrowser() },
		conns:      make(map[net.Conn]struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.logger == nil {
		h.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	h.ln = ln
	h.wg.Add(1)
	go h.acceptLoop()
	return h, nil
}

// Addr returns the listening address.
func (h *Host) Addr() string { return h.ln.Addr().String() }

// Accepted returns the number of connections accepted so far.
func (h *Host) Accepted() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.accepted
}

// Close stops accepting, drops open connections and waits for them to finish.
func (h *Host) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	for c := range h.conns {
		c.Close()
	}
	h.mu.Unlock()
	err := h.ln.Close()
	h.wg.Wait()
	return err
}

func (h *Host) acceptLoop() {
	defer h.wg.Done()
	for {
		conn, err := h.ln.Accept()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				h.logger.Warn("accept failed", "err", err)
			}
			return
		}
		h.mu.Lock()
		if h.closed {
			h.mu.Unlock()
			conn.Close()
			return
		}
		h.conns[conn] = struct{}{}
		h.accepted++
		h.wg.Add(1)
		h.mu.Unlock()
		go h.serve(conn)
	}
}

func (h *Host) serve(conn net.Conn) {
	defer h.wg.Done()
	defer func() {
		h.mu.Lock()
		delete(h.conns, conn)
		h.mu.Unlock()
		conn.Close()
	}()

	log := h.logger.With("remote", conn.RemoteAddr().String())
	greeting, err := json.Marshal(h.greeting)
	if err != nil {
		log.Error("encode greeting", "err", err)
		return
	}
	if err := wire.WriteFrame(conn, greeting); err != nil {
		return
	}

	handler := h.newHandler()
	r := bufio.NewReader(conn)
	for {
		payload, err := wire.ReadFrame(r)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				log.Debug("read frame", "err", err)
			}
			return
		}
		msg, err := marionette.Decode(payload)
		if err != nil {
			log.Warn("undecodable request", "err", err)
			return
		}
		req, ok := msg.(*marionette.Request)
		if !ok {
			log.Warn("client sent a response", "id", msg.MessageID())
			return
		}
		name, _ := marionette.CommandName(req.Command)
		log.Debug("request", "id", req.ID, "command", name)
		reply := handler.Serve(req)
		if reply == nil {
			continue
		}
		out, err := marionette.Encode(reply)
		if err != nil {
			log.Error("encode reply", "id", req.ID, "err", err)
			return
		}
		if err := wire.WriteFrame(conn, out); err != nil {
			return
		}
	}
}
