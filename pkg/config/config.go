package config

import (
	"bytes"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// FileName is the config file inside a profile directory.
const FileName = "config.toml"

// MaxFrameBytesLimit caps marionette.maxFrameBytes.
const MaxFrameBytesLimit = 1 << 30

// MarionetteConfig locates the browser's Marionette server.
type MarionetteConfig struct {
	Host               string `toml:"host"`
	Port               int    `toml:"port"`
	ConnectTimeoutMs   int    `toml:"connectTimeoutMs"`
	PollIntervalMs     int    `toml:"pollIntervalMs"`
	RoundTripTimeoutMs int    `toml:"roundTripTimeoutMs"`
	MaxFrameBytes      int    `toml:"maxFrameBytes"`
}

// Addr returns host:port.
func (m MarionetteConfig) Addr() string {
	return net.JoinHostPort(m.Host, strconv.Itoa(m.Port))
}

func (m MarionetteConfig) ConnectTimeout() time.Duration {
	return time.Duration(m.ConnectTimeoutMs) * time.Millisecond
}

func (m MarionetteConfig) PollInterval() time.Duration {
	return time.Duration(m.PollIntervalMs) * time.Millisecond
}

// RoundTripTimeout is zero when round trips are unbounded.
func (m MarionetteConfig) RoundTripTimeout() time.Duration {
	return time.Duration(m.RoundTripTimeoutMs) * time.Millisecond
}

// BreakerConfig tunes the dial circuit breaker.
type BreakerConfig struct {
	MaxFailures   uint32 `toml:"maxFailures"`
	OpenTimeoutMs int    `toml:"openTimeoutMs"`
}

func (b BreakerConfig) OpenTimeout() time.Duration {
	return time.Duration(b.OpenTimeoutMs) * time.Millisecond
}

// IPCConfig defines the daemon socket.
type IPCConfig struct {
	SocketPath string `toml:"socketPath"`
}

// StorageConfig defines SQLite tuning options.
type StorageConfig struct {
	DBPath      string `toml:"dbPath"`
	JournalMode string `toml:"journalMode"`
	Synchronous string `toml:"synchronous"`
}

// LoggingConfig defines basic logging knobs.
type LoggingConfig struct {
	Level       string `toml:"level"`
	Format      string `toml:"format"`
	Output      string `toml:"output"`
	FilePath    string `toml:"filePath"`
	FileMaxSize int    `toml:"fileMaxSizeMB"`
	FileBackups int    `toml:"fileMaxBackups"`
}

// ProfileConfig aggregates service configuration for a profile.
type ProfileConfig struct {
	ProfileName string           `toml:"profileName"`
	Marionette  MarionetteConfig `toml:"marionette"`
	Breaker     BreakerConfig    `toml:"breaker"`
	IPC         IPCConfig        `toml:"ipc"`
	Storage     StorageConfig    `toml:"storage"`
	Logging     LoggingConfig    `toml:"logging"`
}

// DefaultProfile returns a complete configuration with relative paths,
// resolved against the profile directory at use.
func DefaultProfile(name string) *ProfileConfig {
	return &ProfileConfig{
		ProfileName: name,
		Marionette: MarionetteConfig{
			Host:               "127.0.0.1",
			Port:               2828,
			ConnectTimeoutMs:   60000,
			PollIntervalMs:     100,
			RoundTripTimeoutMs: 0,
			MaxFrameBytes:      256 << 20,
		},
		Breaker: BreakerConfig{
			MaxFailures:   3,
			OpenTimeoutMs: 30000,
		},
		IPC: IPCConfig{SocketPath: "geckowire.sock"},
		Storage: StorageConfig{
			DBPath:      "sessions.db",
			JournalMode: "WAL",
			Synchronous: "NORMAL",
		},
		Logging: LoggingConfig{
			Level:       "info",
			Format:      "text",
			Output:      "stderr",
			FilePath:    "geckowired.log",
			FileMaxSize: 10,
			FileBackups: 3,
		},
	}
}

// Load reads config.toml from the provided path.
func Load(path string) (*ProfileConfig, error) {
	var cfg ProfileConfig
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &cfg, nil
}

// LoadProfile reads the config file of a profile directory.
func LoadProfile(dir string) (*ProfileConfig, error) {
	return Load(filepath.Join(dir, FileName))
}

// Save validates cfg and writes it to path, replacing any existing file.
func Save(path string, cfg *ProfileConfig) error {
	if err := cfg.validate(); err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// ResolvePath anchors a relative path at the profile directory.
func ResolvePath(profileDir, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(profileDir, p)
}

func oneOf(v string, allowed ...string) bool {
	for _, a := range allowed {
		if strings.EqualFold(v, a) {
			return true
		}
	}
	return false
}

func (cfg *ProfileConfig) validate() error {
	if cfg.ProfileName == "" {
		return fmt.Errorf("profileName required")
	}

	m := &cfg.Marionette
	if m.Host == "" {
		m.Host = "127.0.0.1"
	}
	if m.Port == 0 {
		m.Port = 2828
	}
	if m.Port < 1 || m.Port > 65535 {
		return fmt.Errorf("marionette.port %d out of range", m.Port)
	}
	if m.ConnectTimeoutMs < 0 || m.PollIntervalMs < 0 || m.RoundTripTimeoutMs < 0 || m.MaxFrameBytes < 0 {
		return fmt.Errorf("marionette timeouts and limits must not be negative")
	}
	if m.MaxFrameBytes > MaxFrameBytesLimit {
		return fmt.Errorf("marionette.maxFrameBytes %d exceeds %d", m.MaxFrameBytes, MaxFrameBytesLimit)
	}
	if m.ConnectTimeoutMs == 0 {
		m.ConnectTimeoutMs = 60000
	}
	if m.PollIntervalMs == 0 {
		m.PollIntervalMs = 100
	}

	if cfg.Breaker.OpenTimeoutMs < 0 {
		return fmt.Errorf("breaker.openTimeoutMs must not be negative")
	}

	if cfg.IPC.SocketPath == "" {
		return fmt.Errorf("ipc.socketPath required")
	}

	if cfg.Storage.DBPath == "" {
		return fmt.Errorf("storage.dbPath required")
	}
	if cfg.Storage.JournalMode == "" {
		cfg.Storage.JournalMode = "WAL"
	}
	if !oneOf(cfg.Storage.JournalMode, "WAL", "DELETE", "TRUNCATE", "PERSIST", "MEMORY", "OFF") {
		return fmt.Errorf("storage.journalMode %q not supported", cfg.Storage.JournalMode)
	}
	if cfg.Storage.Synchronous == "" {
		cfg.Storage.Synchronous = "NORMAL"
	}
	if !oneOf(cfg.Storage.Synchronous, "OFF", "NORMAL", "FULL", "EXTRA") {
		return fmt.Errorf("storage.synchronous %q not supported", cfg.Storage.Synchronous)
	}

	l := &cfg.Logging
	if l.Level == "" {
		l.Level = "info"
	}
	if !oneOf(l.Level, "debug", "info", "warn", "error") {
		return fmt.Errorf("logging.level %q not supported", l.Level)
	}
	if l.Format == "" {
		l.Format = "text"
	}
	if !oneOf(l.Format, "text", "json") {
		return fmt.Errorf("logging.format %q not supported", l.Format)
	}
	if l.Output == "" {
		l.Output = "stderr"
	}
	if !oneOf(l.Output, "stdout", "stderr", "file") {
		return fmt.Errorf("logging.output %q not supported", l.Output)
	}
	if strings.EqualFold(l.Output, "file") && l.FilePath == "" {
		return fmt.Errorf("logging.filePath required for file output")
	}
	return nil
}
