// Command geckowire-mockhost serves a scripted Marionette endpoint so the
// daemon and CLI can be exercised without a browser.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/rexliu/geckowire/pkg/config"
	"github.com/rexliu/geckowire/pkg/logging"
	"github.com/rexliu/geckowire/pkg/marionette/mockhost"
)

func main() {
	addr := pflag.StringP("addr", "a", "127.0.0.1:2828", "Listen address")
	app := pflag.String("application", mockhost.DefaultGreeting.ApplicationType, "applicationType announced in the greeting")
	protocol := pflag.Int("protocol", mockhost.DefaultGreeting.Protocol, "marionetteProtocol announced in the greeting")
	logLevel := pflag.String("log-level", "info", "Log level (debug, info, warn, error)")
	pflag.Parse()

	logger := logging.NewWithWriter(os.Stderr, config.LoggingConfig{Level: *logLevel})

	host, err := mockhost.Start(*addr,
		mockhost.WithGreeting(mockhost.Greeting{ApplicationType: *app, Protocol: *protocol}),
		mockhost.WithLogger(logger),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "mockhost error: %v\n", err)
		os.Exit(1)
	}
	logger.Info("mock marionette host listening", "addr", host.Addr())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	if err := host.Close(); err != nil {
		logger.Warn("close failed", "err", err)
	}
	logger.Info("mock marionette host stopped", "accepted", host.Accepted())
}
