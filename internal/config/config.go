package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/five82/eaglebridge/internal/settings"
	"github.com/five82/eaglebridge/internal/wire"
)

// Config captures the bridge's tunables for both sides.
type Config struct {
	Host              string
	Port              int
	CandidatePorts    []int
	ServiceName       string
	PollInterval      time.Duration
	BroadcastInterval time.Duration
	StatusInterval    time.Duration
	LogShipInterval   time.Duration
	LogDir            string
	LogLevel          slog.Level
	AutoConnect       bool
}

const (
	defaultConfigPath = "~/.config/eaglebridge/config.toml"
	defaultLogDir     = "~/.local/share/eaglebridge/logs"
	defaultHost       = "127.0.0.1"

	defaultPollInterval      = 500 * time.Millisecond
	defaultBroadcastInterval = 5 * time.Second
	defaultStatusInterval    = 5 * time.Second
	defaultLogShipInterval   = 2 * time.Second
)

// DefaultCandidatePorts is the fixed sweep range used by negotiation.
func DefaultCandidatePorts() []int {
	ports := make([]int, 0, 10)
	for p := 8080; p <= 8089; p++ {
		ports = append(ports, p)
	}
	return ports
}

// Default returns the configuration used when no file exists.
func Default() Config {
	return Config{
		Host:              defaultHost,
		Port:              settings.DefaultPort,
		CandidatePorts:    DefaultCandidatePorts(),
		ServiceName:       wire.ServiceName,
		PollInterval:      defaultPollInterval,
		BroadcastInterval: defaultBroadcastInterval,
		StatusInterval:    defaultStatusInterval,
		LogShipInterval:   defaultLogShipInterval,
		LogDir:            mustExpand(defaultLogDir),
		LogLevel:          slog.LevelInfo,
		AutoConnect:       true,
	}
}

// Load locates and parses the bridge config, falling back to defaults when missing.
func Load(path string) (Config, error) {
	resolved, err := resolvePath(path)
	if err != nil {
		return Config{}, err
	}

	cfg := Default()

	file, err := os.Open(resolved)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	bytes, err := io.ReadAll(file)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	var raw struct {
		Host              string `toml:"host"`
		Port              int    `toml:"port"`
		CandidatePorts    []int  `toml:"candidate_ports"`
		ServiceName       string `toml:"service_name"`
		PollIntervalMS    int    `toml:"poll_interval_ms"`
		BroadcastMS       int    `toml:"broadcast_interval_ms"`
		StatusIntervalMS  int    `toml:"status_interval_ms"`
		LogShipIntervalMS int    `toml:"log_ship_interval_ms"`
		LogDir            string `toml:"log_dir"`
		LogLevel          string `toml:"log_level"`
		AutoConnect       *bool  `toml:"auto_connect"`
	}
	if err := toml.Unmarshal(bytes, &raw); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	if host := strings.TrimSpace(raw.Host); host != "" {
		cfg.Host = host
	}
	if raw.Port != 0 {
		if err := settings.ValidatePort(raw.Port); err != nil {
			return Config{}, fmt.Errorf("config port: %w", err)
		}
		cfg.Port = raw.Port
	}
	if len(raw.CandidatePorts) > 0 {
		for _, p := range raw.CandidatePorts {
			if err := settings.ValidatePort(p); err != nil {
				return Config{}, fmt.Errorf("config candidate_ports: %w", err)
			}
		}
		cfg.CandidatePorts = raw.CandidatePorts
	}
	if name := strings.TrimSpace(raw.ServiceName); name != "" {
		cfg.ServiceName = name
	}
	cfg.PollInterval = millisOr(raw.PollIntervalMS, cfg.PollInterval)
	cfg.BroadcastInterval = millisOr(raw.BroadcastMS, cfg.BroadcastInterval)
	cfg.StatusInterval = millisOr(raw.StatusIntervalMS, cfg.StatusInterval)
	cfg.LogShipInterval = millisOr(raw.LogShipIntervalMS, cfg.LogShipInterval)

	if dir := strings.TrimSpace(raw.LogDir); dir != "" {
		cfg.LogDir = mustExpand(dir)
	}
	if level := strings.TrimSpace(raw.LogLevel); level != "" {
		if err := cfg.LogLevel.UnmarshalText([]byte(level)); err != nil {
			return Config{}, fmt.Errorf("config log_level: %w", err)
		}
	}
	if raw.AutoConnect != nil {
		cfg.AutoConnect = *raw.AutoConnect
	}

	return cfg, nil
}

// LogPath returns the path of the JSON log file for the named side.
func (c Config) LogPath(side string) string {
	dir := c.LogDir
	if strings.TrimSpace(dir) == "" {
		dir = mustExpand(defaultLogDir)
	}
	return filepath.Join(dir, side+".log")
}

func millisOr(ms int, fallback time.Duration) time.Duration {
	if ms <= 0 {
		return fallback
	}
	return time.Duration(ms) * time.Millisecond
}

func resolvePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return expandPath(defaultConfigPath)
	}
	return expandPath(path)
}

func mustExpand(path string) string {
	expanded, err := expandPath(path)
	if err != nil {
		return path
	}
	return expanded
}

// ExpandPath resolves a leading ~ and returns an absolute path.
func ExpandPath(path string) (string, error) {
	return expandPath(path)
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", fmt.Errorf("path is empty")
	}
	if strings.HasPrefix(trimmed, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		trimmed = filepath.Join(home, strings.TrimPrefix(trimmed, "~"))
	}
	return filepath.Abs(trimmed)
}
