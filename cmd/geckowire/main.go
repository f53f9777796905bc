package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/rexliu/geckowire/pkg/config"
	"github.com/rexliu/geckowire/pkg/ipc"
	"github.com/rexliu/geckowire/pkg/marionette"
)

const version = "0.1.0"

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}
	var err error
	switch os.Args[1] {
	case "init":
		err = initCommand(os.Args[2:])
	case "version":
		fmt.Printf("geckowire %s\n", version)
	case "diag":
		err = diagCommand(os.Args[2:])
	case "ping":
		err = pingCommand(os.Args[2:])
	case "dispatch":
		err = dispatchCommand(os.Args[2:])
	case "close":
		err = closeCommand(os.Args[2:])
	case "sessions":
		err = sessionsCommand(os.Args[2:])
	case "history":
		err = historyCommand(os.Args[2:])
	case "watch":
		err = watchCommand(os.Args[2:])
	case "commands":
		err = commandsCommand(os.Args[2:])
	case "-h", "--help", "help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "unknown subcommand %q\n", os.Args[1])
		usage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s error: %v\n", os.Args[1], err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Println("Usage: geckowire <command> [options]")
	fmt.Println("Commands:")
	fmt.Println("  init      Initialize a local profile (writes config.toml)")
	fmt.Println("  diag      Print profile configuration and paths")
	fmt.Println("  ping      Call the daemon ping endpoint via IPC")
	fmt.Println("  dispatch  Send a Marionette command, e.g. '\"WebDriver:GetTitle\"'")
	fmt.Println("  close     Close a session")
	fmt.Println("  sessions  List live sessions")
	fmt.Println("  history   List journaled sessions")
	fmt.Println("  watch     Stream session lifecycle events from the daemon")
	fmt.Println("  commands  List every known command name")
	fmt.Println("  version   Print CLI version")
}

// clientFlags are shared by every subcommand that talks to the daemon.
type clientFlags struct {
	profile string
	socket  string
	timeout time.Duration
}

func newFlagSet(name string, cf *clientFlags) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ExitOnError)
	fs.StringVarP(&cf.profile, "profile", "p", "./_dev_profile", "Profile directory")
	if name != "init" && name != "diag" && name != "commands" {
		fs.StringVar(&cf.socket, "socket", "", "Override socket path")
		fs.DurationVar(&cf.timeout, "timeout", 2*time.Minute, "Request timeout")
	}
	return fs
}

func initCommand(args []string) error {
	var cf clientFlags
	fs := newFlagSet("init", &cf)
	name := fs.String("name", "dev", "Profile name")
	force := fs.Bool("force", false, "Overwrite existing config if present")
	_ = fs.Parse(args)

	if err := os.MkdirAll(cf.profile, 0o700); err != nil {
		return err
	}
	configPath := filepath.Join(cf.profile, config.FileName)
	if _, err := os.Stat(configPath); err == nil && !*force {
		return fmt.Errorf("config already exists at %s (use --force to overwrite)", configPath)
	}
	cfg := config.DefaultProfile(*name)
	if err := config.Save(configPath, cfg); err != nil {
		return err
	}
	fmt.Printf("initialized profile %s at %s\n", cfg.ProfileName, cf.profile)
	return nil
}

func diagCommand(args []string) error {
	var cf clientFlags
	fs := newFlagSet("diag", &cf)
	_ = fs.Parse(args)
	cfg, err := config.LoadProfile(cf.profile)
	if err != nil {
		return err
	}
	fmt.Printf("Profile: %s\n", cfg.ProfileName)
	fmt.Printf("Config: %s\n", filepath.Join(cf.profile, config.FileName))
	fmt.Printf("Marionette: %s (connect timeout %s)\n", cfg.Marionette.Addr(), cfg.Marionette.ConnectTimeout())
	fmt.Printf("Breaker: %d failures, open %s\n", cfg.Breaker.MaxFailures, cfg.Breaker.OpenTimeout())
	fmt.Printf("DB Path: %s\n", config.ResolvePath(cf.profile, cfg.Storage.DBPath))
	fmt.Printf("Socket: %s\n", config.ResolvePath(cf.profile, cfg.IPC.SocketPath))
	if strings.EqualFold(cfg.Logging.Output, "file") {
		fmt.Printf("Log File: %s\n", config.ResolvePath(cf.profile, cfg.Logging.FilePath))
	}
	return nil
}

func pingCommand(args []string) error {
	var cf clientFlags
	fs := newFlagSet("ping", &cf)
	_ = fs.Parse(args)

	raw, err := rpcCall(cf, "ping", nil)
	if err != nil {
		return err
	}
	var data struct {
		Now      int64  `json:"now"`
		Breaker  string `json:"breaker"`
		Sessions int    `json:"sessions"`
	}
	if err := json.Unmarshal(raw, &data); err != nil {
		return fmt.Errorf("decode result: %w", err)
	}
	fmt.Printf("daemon responded: now=%d breaker=%s sessions=%d\n", data.Now, data.Breaker, data.Sessions)
	return nil
}

func dispatchCommand(args []string) error {
	var cf clientFlags
	fs := newFlagSet("dispatch", &cf)
	sessionID := fs.StringP("session", "s", "", "Session id (omit to open a new session)")
	file := fs.StringP("file", "f", "", "Read the command from a file ('-' for stdin)")
	_ = fs.Parse(args)

	var input []byte
	switch {
	case *file == "-":
		b, err := io.ReadAll(os.Stdin)
		if err != nil {
			return err
		}
		input = b
	case *file != "":
		b, err := os.ReadFile(*file)
		if err != nil {
			return err
		}
		input = b
	case fs.NArg() == 1:
		input = []byte(fs.Arg(0))
	default:
		return errors.New(`usage: geckowire dispatch [--session ID] '<command>' (e.g. '"WebDriver:GetTitle"' or '{"WebDriver:Navigate":{"url":"https://example.com"}}')`)
	}
	input = bytes.TrimSpace(input)
	// A bare name is accepted without JSON quoting.
	if len(input) > 0 && input[0] != '"' && input[0] != '{' {
		quoted, _ := json.Marshal(string(input))
		input = quoted
	}
	cmd, err := marionette.UnmarshalCommand(input)
	if err != nil {
		return err
	}
	canonical, err := marionette.MarshalCommand(cmd)
	if err != nil {
		return err
	}

	raw, err := rpcCall(cf, "dispatch", map[string]any{
		"sessionId": *sessionID,
		"command":   json.RawMessage(canonical),
	})
	if err != nil {
		return err
	}
	return printJSON(raw)
}

func closeCommand(args []string) error {
	var cf clientFlags
	fs := newFlagSet("close", &cf)
	_ = fs.Parse(args)
	if fs.NArg() != 1 {
		return errors.New("usage: geckowire close <session-id>")
	}
	if _, err := rpcCall(cf, "close_session", map[string]string{"sessionId": fs.Arg(0)}); err != nil {
		return err
	}
	fmt.Printf("closed %s\n", fs.Arg(0))
	return nil
}

func sessionsCommand(args []string) error {
	var cf clientFlags
	fs := newFlagSet("sessions", &cf)
	_ = fs.Parse(args)
	raw, err := rpcCall(cf, "list_sessions", nil)
	if err != nil {
		return err
	}
	return printJSON(raw)
}

func historyCommand(args []string) error {
	var cf clientFlags
	fs := newFlagSet("history", &cf)
	limit := fs.IntP("limit", "n", 20, "Number of sessions to show (0 for all)")
	_ = fs.Parse(args)
	raw, err := rpcCall(cf, "session_history", map[string]int{"limit": *limit})
	if err != nil {
		return err
	}
	return printJSON(raw)
}

func watchCommand(args []string) error {
	var cf clientFlags
	fs := newFlagSet("watch", &cf)
	_ = fs.Parse(args)

	socketPath, err := resolveSocketPath(cf)
	if err != nil {
		return err
	}
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	client, err := ipc.Dial(ctx, socketPath)
	if err != nil {
		return err
	}
	defer client.Close()

	fmt.Println("Subscribed to session events (Ctrl+C to exit)")
	err = client.Subscribe(ctx, "subscribe_events", nil, func(raw json.RawMessage) error {
		fmt.Println(string(raw))
		return nil
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func commandsCommand(args []string) error {
	var cf clientFlags
	fs := newFlagSet("commands", &cf)
	_ = fs.Parse(args)
	seen := map[string]bool{}
	for _, cmd := range marionette.Commands() {
		name, err := marionette.CommandName(cmd)
		if err != nil {
			return err
		}
		if !seen[name] {
			seen[name] = true
			fmt.Println(name)
		}
	}
	return nil
}

func rpcCall(cf clientFlags, method string, params any) (json.RawMessage, error) {
	socketPath, err := resolveSocketPath(cf)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), cf.timeout)
	defer cancel()
	client, err := ipc.Dial(ctx, socketPath)
	if err != nil {
		return nil, err
	}
	defer client.Close()
	raw, err := client.Call(ctx, method, params)
	var rpcErr *ipc.Error
	if errors.As(err, &rpcErr) {
		return nil, fmt.Errorf("daemon error: %w", rpcErr)
	}
	return raw, err
}

func resolveSocketPath(cf clientFlags) (string, error) {
	if cf.socket != "" {
		return cf.socket, nil
	}
	cfg, err := config.LoadProfile(cf.profile)
	if errors.Is(err, os.ErrNotExist) {
		cfg = config.DefaultProfile(filepath.Base(cf.profile))
	} else if err != nil {
		return "", err
	}
	return config.ResolvePath(cf.profile, cfg.IPC.SocketPath), nil
}

func printJSON(raw json.RawMessage) error {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return err
	}
	buf.WriteByte('\n')
	_, err := buf.WriteTo(os.Stdout)
	return err
}
