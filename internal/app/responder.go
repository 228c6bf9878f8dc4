package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/five82/eaglebridge/internal/config"
	"github.com/five82/eaglebridge/internal/logship"
	"github.com/five82/eaglebridge/internal/prefs"
	"github.com/five82/eaglebridge/internal/sched"
	"github.com/five82/eaglebridge/internal/server"
	"github.com/five82/eaglebridge/internal/wire"
)

const shutdownTimeout = 5 * time.Second

// ResponderOptions configure the listening side.
type ResponderOptions struct {
	Config    config.Config
	PrefsPath string
	Version   string
	Logger    *slog.Logger
	// Buffer holds local log lines for shipping. The logger is usually
	// mirrored into it.
	Buffer        *logship.Buffer
	Inbound       server.InboundHandler
	Collaborators server.Collaborators
}

// Responder runs the HTTP server and ships its logs on a timer.
type Responder struct {
	cfg       config.Config
	logger    *slog.Logger
	prefsPath string
	server    *server.Server

	mu    sync.Mutex
	prefs prefs.Prefs
	group *sched.Group
}

// NewResponder picks the listen port from persisted preferences, falling
// back to the configured port.
func NewResponder(opts ResponderOptions) (*Responder, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.PrefsPath == "" {
		opts.PrefsPath = prefs.DefaultPath("responder")
	}
	p, err := prefs.Load(opts.PrefsPath)
	if err != nil {
		return nil, fmt.Errorf("load prefs: %w", err)
	}
	port := opts.Config.Port
	if p.Port.LastUpdated > 0 {
		port = p.Port.Port
	}

	r := &Responder{
		cfg:       opts.Config,
		logger:    logger.With("component", "responder"),
		prefsPath: opts.PrefsPath,
		prefs:     p,
	}
	r.server = server.New(server.Options{
		Host:          opts.Config.Host,
		Port:          port,
		Service:       opts.Config.ServiceName,
		Version:       opts.Version,
		Buffer:        opts.Buffer,
		Inbound:       opts.Inbound,
		Collaborators: opts.Collaborators,
		OnPortChange:  func(_, newPort int) { r.persistPort(newPort) },
		PortStamp:     r.portStamp,
		Logger:        logger,
	})
	return r, nil
}

// Server exposes the underlying HTTP server.
func (r *Responder) Server() *server.Server {
	return r.server
}

// Port returns the port currently listened on.
func (r *Responder) Port() int {
	return r.server.Port()
}

// Start binds the listener and starts log shipping. A port chosen by the
// conflict walk is persisted so the next run starts there.
func (r *Responder) Start(ctx context.Context) error {
	requested := r.server.Port()
	if err := r.server.Start(ctx); err != nil {
		return fmt.Errorf("start server: %w", err)
	}
	if bound := r.server.Port(); bound != requested {
		r.persistPort(bound)
	}

	group := sched.NewGroup(ctx, r.logger)
	r.mu.Lock()
	r.group = group
	r.mu.Unlock()
	group.Every(taskLogShip, r.cfg.LogShipInterval, func(context.Context) error {
		r.server.ShipLogs()
		return nil
	})

	return r.server.Enqueue(wire.KindStatus, wire.Status{Status: "ready", Detail: fmt.Sprintf("listening on %d", r.server.Port())})
}

// Stop shuts the listener down and waits for background work.
func (r *Responder) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := r.server.Shutdown(ctx)

	r.mu.Lock()
	group := r.group
	r.mu.Unlock()
	if group != nil {
		err = errors.Join(err, group.Stop())
	}
	return err
}

// Notify queues a user-facing notification for the Initiator.
func (r *Responder) Notify(level wire.LogLevel, text string) error {
	return r.server.Enqueue(wire.KindNotification, wire.Notification{Level: level, Text: text})
}

func (r *Responder) portStamp() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.prefs.Port.LastUpdated
}

func (r *Responder) persistPort(port int) {
	r.mu.Lock()
	r.prefs = r.prefs.WithPort(port, time.Now())
	p := r.prefs
	r.mu.Unlock()
	if err := prefs.Save(r.prefsPath, p); err != nil {
		r.logger.Warn("port not persisted", "port", port, "error", err)
		return
	}
	r.logger.Info("port persisted", "port", port)
}
