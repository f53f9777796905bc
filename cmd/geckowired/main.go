package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/rexliu/geckowire/pkg/config"
	"github.com/rexliu/geckowire/pkg/ipc"
	"github.com/rexliu/geckowire/pkg/logging"
	"github.com/rexliu/geckowire/pkg/session"
	"github.com/rexliu/geckowire/pkg/storage/sqlite"
	"github.com/rexliu/geckowire/pkg/transport"
)

func main() {
	flags := pflag.NewFlagSet("geckowired", pflag.ExitOnError)
	profile := flags.StringP("profile", "p", "./_dev_profile", "Path to profile directory")
	socket := flags.String("socket", "", "Override IPC socket path (optional)")
	hostAddr := flags.String("marionette", "", "Override Marionette host:port (optional)")
	logLevel := flags.String("log-level", "", "Override logging level (debug, info, warn, error)")
	_ = flags.Parse(os.Args[1:])

	cfg, err := loadConfig(*profile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "geckowired: %v\n", err)
		os.Exit(1)
	}
	if err := applyOverrides(cfg, *socket, *hostAddr, *logLevel); err != nil {
		fmt.Fprintf(os.Stderr, "geckowired: %v\n", err)
		os.Exit(1)
	}

	logCfg := cfg.Logging
	logCfg.FilePath = config.ResolvePath(*profile, logCfg.FilePath)
	logger, closer, err := logging.New(logCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "geckowired: logging: %v\n", err)
		os.Exit(1)
	}
	defer closer.Close()
	logger = logger.With("component", "geckowired")
	logger.Info("starting daemon", "profile", *profile, "marionette", cfg.Marionette.Addr())

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, *profile, cfg, logger); err != nil {
		logger.Error("fatal error", "err", err)
		closer.Close()
		os.Exit(1)
	}
}

// loadConfig reads the profile config, falling back to defaults when the
// profile has not been initialized.
func loadConfig(profileDir string) (*config.ProfileConfig, error) {
	cfg, err := config.LoadProfile(profileDir)
	if errors.Is(err, os.ErrNotExist) {
		return config.DefaultProfile(filepath.Base(profileDir)), nil
	}
	return cfg, err
}

func applyOverrides(cfg *config.ProfileConfig, socket, hostAddr, level string) error {
	if socket != "" {
		cfg.IPC.SocketPath = socket
	}
	if hostAddr != "" {
		host, port, err := net.SplitHostPort(hostAddr)
		if err != nil {
			return fmt.Errorf("--marionette: %w", err)
		}
		n, err := strconv.Atoi(port)
		if err != nil || n < 1 || n > 65535 {
			return fmt.Errorf("--marionette: invalid port %q", port)
		}
		cfg.Marionette.Host, cfg.Marionette.Port = host, n
	}
	if level != "" {
		cfg.Logging.Level = level
	}
	return nil
}

type daemon struct {
	profileDir string
	cfg        *config.ProfileConfig
	store      *sqlite.Store
	registry   *session.Registry
	dialer     *transport.Dialer
	hub        *eventHub
	logger     *slog.Logger
	started    time.Time
}

func run(ctx context.Context, profileDir string, cfg *config.ProfileConfig, logger *slog.Logger) error {
	if err := os.MkdirAll(profileDir, 0o700); err != nil {
		return err
	}
	dbPath := config.ResolvePath(profileDir, cfg.Storage.DBPath)
	store, err := sqlite.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open sqlite: %w", err)
	}
	defer store.Close()
	if err := store.Init(ctx, sqlite.Options{JournalMode: cfg.Storage.JournalMode, Synchronous: cfg.Storage.Synchronous}); err != nil {
		return fmt.Errorf("init sqlite: %w", err)
	}
	if n, err := store.CloseDangling(ctx, "daemon restart", time.Now()); err != nil {
		logger.Warn("close dangling sessions failed", "err", err)
	} else if n > 0 {
		logger.Info("closed sessions left open by a previous run", "count", n)
	}

	d := &daemon{
		profileDir: profileDir,
		cfg:        cfg,
		store:      store,
		hub:        newEventHub(logger),
		logger:     logger,
		started:    time.Now(),
	}
	d.dialer = transport.NewDialer(cfg.Marionette.Addr(), transport.Options{
		ConnectTimeout: cfg.Marionette.ConnectTimeout(),
		PollInterval:   cfg.Marionette.PollInterval(),
		MaxFailures:    cfg.Breaker.MaxFailures,
		OpenTimeout:    cfg.Breaker.OpenTimeout(),
		Logger:         logger.With("component", "transport"),
	})
	d.registry = session.NewRegistry(d.dialer, session.Options{
		IDs:              session.NewULIDSource(),
		Journal:          journals{store, d.hub, snapshotJournal{d}},
		Logger:           logger.With("component", "session"),
		MaxFrameBytes:    cfg.Marionette.MaxFrameBytes,
		RoundTripTimeout: cfg.Marionette.RoundTripTimeout(),
	})
	defer d.registry.CloseAll()

	socketPath := config.ResolvePath(profileDir, cfg.IPC.SocketPath)
	if err := cleanupSocket(socketPath); err != nil {
		return err
	}

	srv := ipc.NewServer(logger.With("component", "ipc"))
	d.registerHandlers(srv)

	if err := srv.Start(ctx, socketPath); err != nil {
		return fmt.Errorf("start ipc: %w", err)
	}
	defer func() {
		srv.Stop()
		cleanupSocket(socketPath)
	}()

	logger.Info("daemon ready", "socket", socketPath)

	<-ctx.Done()
	logger.Info("shutting down")
	return nil
}

func cleanupSocket(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); err == nil {
		if err := os.Remove(path); err != nil {
			return err
		}
	}
	return nil
}

// journals fans lifecycle records out to several journals.
type journals []session.Journal

func (js journals) RecordOpened(ctx context.Context, info session.Info) error {
	var errs []error
	for _, j := range js {
		if err := j.RecordOpened(ctx, info); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (js journals) RecordClosed(ctx context.Context, id, reason string, at time.Time) error {
	var errs []error
	for _, j := range js {
		if err := j.RecordClosed(ctx, id, reason, at); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
