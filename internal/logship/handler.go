package logship

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/five82/eaglebridge/internal/wire"
)

// LevelSuccess sits between Info and Warn so success lines survive an Info
// threshold and still read as non-problems.
const LevelSuccess = slog.Level(2)

// Handler is a slog.Handler that mirrors records into a Sink so structured
// log lines become shippable entries.
type Handler struct {
	sink   Sink
	min    slog.Leveler
	attrs  []slog.Attr
	groups []string
}

// NewHandler mirrors records at or above min into sink.
func NewHandler(sink Sink, min slog.Leveler) *Handler {
	if min == nil {
		min = slog.LevelInfo
	}
	return &Handler{sink: sink, min: min}
}

func (h *Handler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.min.Level()
}

func (h *Handler) Handle(_ context.Context, r slog.Record) error {
	var b strings.Builder
	b.WriteString(r.Message)
	write := func(a slog.Attr) {
		a.Value = a.Value.Resolve()
		if a.Equal(slog.Attr{}) {
			return
		}
		fmt.Fprintf(&b, " %s=%v", a.Key, a.Value.Any())
	}
	for _, a := range h.attrs {
		write(a)
	}
	r.Attrs(func(a slog.Attr) bool {
		write(h.qualify(a))
		return true
	})
	h.sink.Add(levelOf(r.Level), b.String())
	return nil
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = append([]slog.Attr(nil), h.attrs...)
	for _, a := range attrs {
		next.attrs = append(next.attrs, h.qualify(a))
	}
	return &next
}

func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.groups = append(append([]string(nil), h.groups...), name)
	return &next
}

func (h *Handler) qualify(a slog.Attr) slog.Attr {
	if len(h.groups) > 0 {
		a.Key = strings.Join(h.groups, ".") + "." + a.Key
	}
	return a
}

func levelOf(l slog.Level) wire.LogLevel {
	switch {
	case l >= slog.LevelError:
		return wire.LevelError
	case l >= slog.LevelWarn:
		return wire.LevelWarning
	case l >= LevelSuccess:
		return wire.LevelSuccess
	case l >= slog.LevelInfo:
		return wire.LevelInfo
	default:
		return wire.LevelDebug
	}
}
