package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/sony/gobreaker/v2"
)

// Default dial settings.
const (
	defaultConnectTimeout        = 60 * time.Second
	defaultPollInterval          = 100 * time.Millisecond
	defaultMaxFailures    uint32 = 3
	defaultOpenTimeout           = 30 * time.Second
)

// ErrHostUnavailable is returned while the breaker is open.
var ErrHostUnavailable = errors.New("marionette host unavailable")

// Options configures a Dialer. Zero values take defaults.
type Options struct {
	// ConnectTimeout bounds how long Dial keeps polling a port that refuses.
	ConnectTimeout time.Duration
	// PollInterval is the pause between connection attempts.
	PollInterval time.Duration
	// MaxFailures is the number of consecutive failed dials that opens the breaker.
	MaxFailures uint32
	// OpenTimeout is how long the breaker stays open before a probe dial.
	OpenTimeout time.Duration
	Logger      *slog.Logger
}

// Dialer opens TCP connections to a Marionette host. A browser that is
// still starting refuses connections for a while, so Dial polls until the
// port accepts. Repeated failed dials open a circuit breaker and later
// calls fail fast.
type Dialer struct {
	addr           string
	connectTimeout time.Duration
	pollInterval   time.Duration
	breaker        *gobreaker.CircuitBreaker[net.Conn]
	logger         *slog.Logger
	dial           func(ctx context.Context, network, addr string) (net.Conn, error)
}

// NewDialer returns a dialer for addr ("host:port").
func NewDialer(addr string, opts Options) *Dialer {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	connectTimeout := opts.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = defaultConnectTimeout
	}
	pollInterval := opts.PollInterval
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	maxFailures := opts.MaxFailures
	if maxFailures == 0 {
		maxFailures = defaultMaxFailures
	}
	openTimeout := opts.OpenTimeout
	if openTimeout <= 0 {
		openTimeout = defaultOpenTimeout
	}

	cb := gobreaker.NewCircuitBreaker[net.Conn](gobreaker.Settings{
		Name:        "marionette:" + addr,
		MaxRequests: 1,
		Timeout:     openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("dial breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
		IsSuccessful: func(err error) bool {
			// A caller giving up is not the host's fault.
			return err == nil || errors.Is(err, context.Canceled)
		},
	})

	return &Dialer{
		addr:           addr,
		connectTimeout: connectTimeout,
		pollInterval:   pollInterval,
		breaker:        cb,
		logger:         logger,
		dial:           (&net.Dialer{KeepAlive: 30 * time.Second}).DialContext,
	}
}

// Addr returns the host address the dialer connects to.
func (d *Dialer) Addr() string { return d.addr }

// Dial connects to the host, retrying refused connections until the
// connect timeout elapses or ctx is done.
func (d *Dialer) Dial(ctx context.Context) (net.Conn, error) {
	conn, err := d.breaker.Execute(func() (net.Conn, error) {
		return d.poll(ctx)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("transport: %s: %w: %w", d.addr, ErrHostUnavailable, err)
		}
		return nil, err
	}
	return conn, nil
}

func (d *Dialer) poll(ctx context.Context) (net.Conn, error) {
	ctx, cancel := context.WithTimeout(ctx, d.connectTimeout)
	defer cancel()

	attempts := 0
	for {
		attempts++
		conn, err := d.dial(ctx, "tcp", d.addr)
		if err == nil {
			if attempts > 1 {
				d.logger.Debug("connected after retries", "addr", d.addr, "attempts", attempts)
			}
			return conn, nil
		}
		timer := time.NewTimer(d.pollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil, fmt.Errorf("transport: connect %s: %w", d.addr, ctx.Err())
			}
			return nil, fmt.Errorf("transport: connect %s after %d attempts: %w", d.addr, attempts, err)
		case <-timer.C:
		}
	}
}

// State returns the breaker state for diagnostics.
func (d *Dialer) State() gobreaker.State {
	return d.breaker.State()
}
