// Package logging builds the process logger: colored console output, a
// rotating JSON file, and a mirror into the shippable log store.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/lmittmann/tint"
	slogmulti "github.com/samber/slog-multi"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/five82/eaglebridge/internal/logship"
)

// Options select the outputs of Setup.
type Options struct {
	Level slog.Level
	// Console receives colored text. Nil disables it.
	Console io.Writer
	// NoColor disables ANSI colors on Console.
	NoColor bool
	// FilePath receives JSON records. Empty disables the file.
	FilePath string
	// Mirror receives Info and above as shippable entries. Nil disables it.
	Mirror logship.Sink
	// Attrs are attached to every record.
	Attrs []slog.Attr
}

// Setup returns a logger writing to every configured output and a closer
// for the log file.
func Setup(opts Options) (*slog.Logger, io.Closer, error) {
	var (
		handlers []slog.Handler
		closer   io.Closer = nopCloser{}
	)

	if opts.Console != nil {
		handlers = append(handlers, tint.NewHandler(opts.Console, &tint.Options{
			Level:      opts.Level,
			TimeFormat: time.TimeOnly,
			NoColor:    opts.NoColor,
		}))
	}

	if opts.FilePath != "" {
		if err := os.MkdirAll(filepath.Dir(opts.FilePath), 0o755); err != nil {
			return nil, nil, fmt.Errorf("create log dir: %w", err)
		}
		rotator := &lumberjack.Logger{
			Filename:   opts.FilePath,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     14, // days
		}
		closer = rotator
		handlers = append(handlers, slog.NewJSONHandler(rotator, &slog.HandlerOptions{Level: opts.Level}))
	}

	if opts.Mirror != nil {
		handlers = append(handlers, logship.NewHandler(opts.Mirror, slog.LevelInfo))
	}

	var h slog.Handler
	switch len(handlers) {
	case 0:
		h = slog.NewTextHandler(io.Discard, nil)
	case 1:
		h = handlers[0]
	default:
		h = slogmulti.Fanout(handlers...)
	}
	if len(opts.Attrs) > 0 {
		h = h.WithAttrs(opts.Attrs)
	}
	return slog.New(h), closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// ParseLevel maps a level name to a slog level. "success" is accepted for
// the shippable success level.
func ParseLevel(name string) (slog.Level, error) {
	if name == "success" {
		return logship.LevelSuccess, nil
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return 0, fmt.Errorf("parse log level %q: %w", name, err)
	}
	return level, nil
}
