package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rexliu/geckowire/pkg/wire"
)

func startServer(t *testing.T, setup func(*Server)) (*Server, string) {
	t.Helper()
	srv := NewServer(nil)
	setup(srv)
	path := filepath.Join(t.TempDir(), "ipc.sock")
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, srv.Start(ctx, path))
	t.Cleanup(func() {
		cancel()
		srv.Stop()
	})
	return srv, path
}

func dialClient(t *testing.T, path string) *Client {
	t.Helper()
	c, err := Dial(context.Background(), path)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestCallRoundTrip(t *testing.T) {
	_, path := startServer(t, func(s *Server) {
		s.Register("echo", func(_ context.Context, params json.RawMessage) (any, *Error) {
			var p map[string]any
			if err := json.Unmarshal(params, &p); err != nil {
				return nil, Errorf(CodeInvalidRequest, "invalid params", nil)
			}
			return p, nil
		})
	})
	c := dialClient(t, path)

	raw, err := c.Call(context.Background(), "echo", map[string]any{"a": 1})
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, string(raw))

	raw, err = c.Call(context.Background(), "echo", map[string]any{"b": "two"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"b":"two"}`, string(raw))
}

func TestCallHandlerError(t *testing.T) {
	_, path := startServer(t, func(s *Server) {
		s.Register("fail", func(context.Context, json.RawMessage) (any, *Error) {
			return nil, Errorf(CodeUnknownSession, "no such session", map[string]any{"sessionId": "x"})
		})
	})
	c := dialClient(t, path)

	_, err := c.Call(context.Background(), "fail", nil)
	var rpcErr *Error
	require.True(t, errors.As(err, &rpcErr))
	assert.Equal(t, CodeUnknownSession, rpcErr.Code)
	assert.Equal(t, "x", rpcErr.Details["sessionId"])
}

func TestCallUnknownMethod(t *testing.T) {
	_, path := startServer(t, func(*Server) {})
	c := dialClient(t, path)

	_, err := c.Call(context.Background(), "nope", nil)
	var rpcErr *Error
	require.True(t, errors.As(err, &rpcErr))
	assert.Equal(t, CodeInvalidRequest, rpcErr.Code)
	assert.Equal(t, "unknown method", rpcErr.Message)
}

func TestInvalidJSONKeepsConnection(t *testing.T) {
	_, path := startServer(t, func(s *Server) {
		s.Register("ping", func(context.Context, json.RawMessage) (any, *Error) { return "pong", nil })
	})
	conn, err := net.Dial("unix", path)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, wire.WriteFrame(conn, []byte("{nope")))
	c := NewClient(conn)
	resp, err := c.receive()
	require.NoError(t, err)
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeInvalidRequest, resp.Error.Code)

	raw, err := c.Call(context.Background(), "ping", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `"pong"`, string(raw))
}

func TestSubscribeStreamsEvents(t *testing.T) {
	_, path := startServer(t, func(s *Server) {
		s.RegisterStream("count", func(ctx context.Context, _ json.RawMessage, send func(any) error) *Error {
			for i := 1; i <= 3; i++ {
				if err := send(map[string]int{"n": i}); err != nil {
					return nil
				}
			}
			<-ctx.Done()
			return nil
		})
	})
	c := dialClient(t, path)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var got []int
	stopErr := errors.New("enough")
	err := c.Subscribe(ctx, "count", nil, func(raw json.RawMessage) error {
		var ev struct{ N int }
		if err := json.Unmarshal(raw, &ev); err != nil {
			return err
		}
		got = append(got, ev.N)
		if len(got) == 3 {
			return stopErr
		}
		return nil
	})
	require.ErrorIs(t, err, stopErr)
	assert.Equal(t, []int{1, 2, 3}, got)
}

func TestStopEndsStreams(t *testing.T) {
	srv, path := startServer(t, func(s *Server) {
		s.RegisterStream("wait", func(ctx context.Context, _ json.RawMessage, send func(any) error) *Error {
			_ = send("ready")
			<-ctx.Done()
			return nil
		})
	})
	c := dialClient(t, path)

	done := make(chan error, 1)
	ready := make(chan struct{})
	go func() {
		done <- c.Subscribe(context.Background(), "wait", nil, func(json.RawMessage) error {
			close(ready)
			return nil
		})
	}()
	<-ready
	require.NoError(t, srv.Stop())
	select {
	case err := <-done:
		assert.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("subscription did not end after Stop")
	}
	assert.NoError(t, srv.Stop())
}
