package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/rexliu/geckowire/pkg/ipc"
	"github.com/rexliu/geckowire/pkg/session"
)

// sessionEvent is broadcast to subscribers on every lifecycle transition.
type sessionEvent struct {
	Type      string    `json:"type"`
	SessionID string    `json:"sessionId"`
	Addr      string    `json:"addr,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	At        time.Time `json:"at"`
}

// eventHub broadcasts session events to connected clients. It is a
// session.Journal so the registry feeds it directly.
type eventHub struct {
	logger  *slog.Logger
	mu      sync.Mutex
	clients map[*eventClient]struct{}
}

type eventClient struct {
	send chan []byte
}

func newEventHub(logger *slog.Logger) *eventHub {
	return &eventHub{
		logger:  logger,
		clients: make(map[*eventClient]struct{}),
	}
}

func (h *eventHub) register() *eventClient {
	h.mu.Lock()
	defer h.mu.Unlock()
	client := &eventClient{send: make(chan []byte, 16)}
	h.clients[client] = struct{}{}
	return client
}

func (h *eventHub) unregister(client *eventClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
}

func (h *eventHub) broadcast(event any) {
	payload, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("event marshal error", "err", err)
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		select {
		case client.send <- payload:
		default:
			h.logger.Warn("dropping event for slow client")
		}
	}
}

func (h *eventHub) RecordOpened(_ context.Context, info session.Info) error {
	h.broadcast(sessionEvent{Type: "session_opened", SessionID: info.ID, Addr: info.Addr, At: info.Created})
	return nil
}

func (h *eventHub) RecordClosed(_ context.Context, id, reason string, at time.Time) error {
	h.broadcast(sessionEvent{Type: "session_closed", SessionID: id, Reason: reason, At: at})
	return nil
}

// serve is the subscribe_events stream handler.
func (h *eventHub) serve(ctx context.Context, _ json.RawMessage, send func(any) error) *ipc.Error {
	client := h.register()
	defer h.unregister(client)
	for {
		select {
		case <-ctx.Done():
			return nil
		case payload, ok := <-client.send:
			if !ok {
				return nil
			}
			if err := send(json.RawMessage(payload)); err != nil {
				return nil
			}
		}
	}
}
