package transport

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDialConnects(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		c, err := ln.Accept()
		if err == nil {
			c.Close()
		}
	}()

	d := NewDialer(ln.Addr().String(), Options{ConnectTimeout: time.Second})
	conn, err := d.Dial(context.Background())
	require.NoError(t, err)
	conn.Close()
	assert.Equal(t, gobreaker.StateClosed, d.State())
	assert.Equal(t, ln.Addr().String(), d.Addr())
}

func TestDialPollsUntilAccepted(t *testing.T) {
	var calls atomic.Int32
	d := NewDialer("host:2828", Options{ConnectTimeout: time.Second, PollInterval: time.Millisecond})
	d.dial = func(ctx context.Context, network, addr string) (net.Conn, error) {
		if calls.Add(1) < 3 {
			return nil, errors.New("connection refused")
		}
		client, server := net.Pipe()
		server.Close()
		return client, nil
	}

	conn, err := d.Dial(context.Background())
	require.NoError(t, err)
	conn.Close()
	assert.Equal(t, int32(3), calls.Load())
}

func TestDialTimesOut(t *testing.T) {
	d := NewDialer("host:2828", Options{ConnectTimeout: 30 * time.Millisecond, PollInterval: 5 * time.Millisecond})
	d.dial = func(ctx context.Context, network, addr string) (net.Conn, error) {
		return nil, errors.New("connection refused")
	}

	_, err := d.Dial(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestDialBreakerOpensAfterFailures(t *testing.T) {
	var calls atomic.Int32
	d := NewDialer("host:2828", Options{
		ConnectTimeout: 10 * time.Millisecond,
		PollInterval:   5 * time.Millisecond,
		MaxFailures:    2,
		OpenTimeout:    time.Minute,
		Logger:         slog.Default(),
	})
	d.dial = func(ctx context.Context, network, addr string) (net.Conn, error) {
		calls.Add(1)
		return nil, errors.New("connection refused")
	}

	for i := 0; i < 2; i++ {
		_, err := d.Dial(context.Background())
		require.Error(t, err)
	}
	assert.Equal(t, gobreaker.StateOpen, d.State())

	before := calls.Load()
	_, err := d.Dial(context.Background())
	require.ErrorIs(t, err, ErrHostUnavailable)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, before, calls.Load(), "open breaker must not dial")
}

func TestDialCancelledDoesNotTrip(t *testing.T) {
	d := NewDialer("host:2828", Options{ConnectTimeout: time.Minute, PollInterval: time.Millisecond, MaxFailures: 1})
	d.dial = func(ctx context.Context, network, addr string) (net.Conn, error) {
		return nil, errors.New("connection refused")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := d.Dial(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, gobreaker.StateClosed, d.State())
}
