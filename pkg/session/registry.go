package session

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/rexliu/geckowire/pkg/marionette"
)

// Options configures a Registry. Zero values take defaults.
type Options struct {
	IDs     IDSource
	Journal Journal
	Logger  *slog.Logger
	// MaxFrameBytes bounds inbound frames; zero means wire.MaxFrameSize.
	MaxFrameBytes int
	// RoundTripTimeout bounds the handshake and each dispatched round trip;
	// zero means none.
	RoundTripTimeout time.Duration
}

type entry struct {
	conn *Conn
	info Info
}

// Registry maps session ids to connections. Each session moves from
// unbound to bound when Dispatch opens it, and to closed when it is closed
// explicitly, ended by the host or broken by a fatal failure. Different
// sessions make progress concurrently; calls on one session are
// serialized by its connection.
type Registry struct {
	dialer   Dialer
	ids      IDSource
	journal  Journal
	logger   *slog.Logger
	maxFrame int
	timeout  time.Duration
	now      func() time.Time

	mu       sync.Mutex
	sessions map[string]*entry
}

// NewRegistry returns an empty registry that opens connections with dialer.
func NewRegistry(dialer Dialer, opts Options) *Registry {
	ids := opts.IDs
	if ids == nil {
		ids = NewULIDSource()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Registry{
		dialer:   dialer,
		ids:      ids,
		journal:  opts.Journal,
		logger:   logger,
		maxFrame: opts.MaxFrameBytes,
		timeout:  opts.RoundTripTimeout,
		now:      time.Now,
		sessions: make(map[string]*entry),
	}
}

// Dispatch sends cmd on the session named by sessionID. An empty id opens
// a new connection, performs the handshake and registers it under a fresh
// id, which is reported in the Outcome.
//
// A non-nil error is a local failure: an unknown session, a dial or
// handshake failure, a decode failure or a broken connection. Host errors
// are reported in Outcome.Error.
func (r *Registry) Dispatch(ctx context.Context, sessionID string, cmd marionette.Command) (Outcome, error) {
	var (
		e   *entry
		err error
	)
	if sessionID == "" {
		e, err = r.open(ctx)
	} else {
		e, err = r.lookup(sessionID)
	}
	if err != nil {
		return Outcome{}, err
	}
	id := e.info.ID

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	resp, err := e.conn.RoundTrip(ctx, cmd)
	if err != nil {
		if e.conn.Broken() {
			r.remove(id, err.Error())
		}
		return Outcome{SessionID: id}, fmt.Errorf("session %s: %w", id, err)
	}

	if !resp.IsError() && endsSession(cmd) {
		name, _ := marionette.CommandName(cmd)
		r.remove(id, "ended by "+name)
	}
	return Outcome{SessionID: id, Result: resp.Result, Error: resp.Error}, nil
}

func endsSession(cmd marionette.Command) bool {
	switch cmd.(type) {
	case marionette.DeleteSession, marionette.Quit:
		return true
	}
	return false
}

func (r *Registry) lookup(id string) (*entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSession, id)
	}
	return e, nil
}

func (r *Registry) open(ctx context.Context) (*entry, error) {
	nc, err := r.dialer.Dial(ctx)
	if err != nil {
		return nil, fmt.Errorf("session: dial: %w", err)
	}
	conn := NewConn(nc, r.maxFrame)
	hctx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		hctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	greeting, err := conn.Handshake(hctx)
	if err != nil {
		conn.Close()
		return nil, err
	}

	e := &entry{
		conn: conn,
		info: Info{
			ID:              r.ids.NewID(),
			Addr:            conn.RemoteAddr(),
			ApplicationType: greeting.ApplicationType,
			Created:         r.now(),
		},
	}
	r.mu.Lock()
	if _, dup := r.sessions[e.info.ID]; dup {
		r.mu.Unlock()
		conn.Close()
		return nil, fmt.Errorf("session: id source returned duplicate id %s", e.info.ID)
	}
	r.sessions[e.info.ID] = e
	r.mu.Unlock()

	r.logger.Info("session opened", "session", e.info.ID, "addr", e.info.Addr, "application", e.info.ApplicationType)
	if r.journal != nil {
		if err := r.journal.RecordOpened(ctx, e.info); err != nil {
			r.logger.Warn("journal open failed", "session", e.info.ID, "err", err)
		}
	}
	return e, nil
}

// remove unbinds id and closes its connection. It reports whether id was bound.
func (r *Registry) remove(id, reason string) bool {
	r.mu.Lock()
	e, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if !ok {
		return false
	}

	e.conn.Close()
	r.logger.Info("session closed", "session", id, "reason", reason)
	if r.journal != nil {
		// The caller's context may be the reason for closing.
		if err := r.journal.RecordClosed(context.Background(), id, reason, r.now()); err != nil {
			r.logger.Warn("journal close failed", "session", id, "err", err)
		}
	}
	return true
}

// Close closes the session and releases its connection. Closing an
// unknown or already closed session is a no-op.
func (r *Registry) Close(id string) {
	r.remove(id, "closed")
}

// CloseAll closes every session.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	r.mu.Unlock()
	for _, id := range ids {
		r.remove(id, "shutdown")
	}
}

// Sessions lists live sessions, oldest first.
func (r *Registry) Sessions() []Info {
	r.mu.Lock()
	out := make([]Info, 0, len(r.sessions))
	for _, e := range r.sessions {
		out = append(out, e.info)
	}
	r.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Created.Equal(out[j].Created) {
			return out[i].ID < out[j].ID
		}
		return out[i].Created.Before(out[j].Created)
	})
	return out
}
