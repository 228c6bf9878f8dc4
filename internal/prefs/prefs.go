// Package prefs persists per-side bridge state: the believed-correct port,
// the Initiator's settings snapshot, and the monitor theme.
// Each side keeps its own file under ~/.config/eaglebridge/.
package prefs

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/five82/eaglebridge/internal/settings"
)

// PortConfig is one side's view of the port in use. The two sides' copies
// may disagree until negotiation reconciles them.
type PortConfig struct {
	Port        int   `toml:"port"`
	LastUpdated int64 `toml:"last_updated"`
}

// Prefs holds persisted state for one side.
type Prefs struct {
	Theme    string             `toml:"theme"`
	Port     PortConfig         `toml:"port"`
	Settings *settings.Snapshot `toml:"settings,omitempty"`
}

const (
	defaultPrefsDir = "~/.config/eaglebridge"
	defaultTheme    = "Nightfox"
)

// DefaultPath returns the default preferences file path for side.
func DefaultPath(side string) string {
	return defaultPrefsDir + "/" + side + ".toml"
}

func defaults() Prefs {
	return Prefs{
		Theme: defaultTheme,
		Port:  PortConfig{Port: settings.DefaultPort},
	}
}

// Load reads preferences from the given path, falling back to defaults if
// missing or unreadable.
func Load(path string) (Prefs, error) {
	prefs := defaults()

	resolved, err := expandPath(path)
	if err != nil {
		return prefs, nil
	}

	file, err := os.Open(resolved)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return prefs, nil
		}
		return prefs, nil // Graceful degradation
	}
	defer func() { _ = file.Close() }()

	bytes, err := io.ReadAll(file)
	if err != nil {
		return prefs, nil // Graceful degradation
	}

	if err := toml.Unmarshal(bytes, &prefs); err != nil {
		return defaults(), nil // Graceful degradation
	}

	if strings.TrimSpace(prefs.Theme) == "" {
		prefs.Theme = defaultTheme
	}
	if settings.ValidatePort(prefs.Port.Port) != nil {
		prefs.Port = PortConfig{Port: settings.DefaultPort}
	}
	if prefs.Settings != nil && settings.ValidatePort(prefs.Settings.CommunicationPort) != nil {
		prefs.Settings.CommunicationPort = prefs.Port.Port
	}

	return prefs, nil
}

// Save writes preferences to the given path, creating directories as needed.
func Save(path string, p Prefs) error {
	resolved, err := expandPath(path)
	if err != nil {
		return fmt.Errorf("resolve path: %w", err)
	}

	dir := filepath.Dir(resolved)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create prefs dir: %w", err)
	}

	bytes, err := toml.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal prefs: %w", err)
	}

	if err := os.WriteFile(resolved, bytes, 0o644); err != nil {
		return fmt.Errorf("write prefs: %w", err)
	}

	return nil
}

// WithPort returns p with the port replaced and stamped at now.
func (p Prefs) WithPort(port int, now time.Time) Prefs {
	p.Port = PortConfig{Port: port, LastUpdated: now.UnixMilli()}
	if p.Settings != nil {
		snap := *p.Settings
		snap.CommunicationPort = port
		p.Settings = &snap
	}
	return p
}

// SettingsOrDefault returns the stored snapshot, or defaults bound to the
// stored port.
func (p Prefs) SettingsOrDefault() settings.Snapshot {
	if p.Settings != nil {
		return *p.Settings
	}
	snap := settings.Default()
	snap.CommunicationPort = p.Port.Port
	return snap
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
