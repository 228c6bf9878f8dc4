package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/five82/eaglebridge/internal/conn"
	"github.com/five82/eaglebridge/internal/logship"
	"github.com/five82/eaglebridge/internal/queue"
	"github.com/five82/eaglebridge/internal/settings"
	"github.com/five82/eaglebridge/internal/wire"
)

const (
	DefaultBindAttempts   = 10
	DefaultBindRetryDelay = 250 * time.Millisecond
	shutdownTimeout       = 2 * time.Second
	restartCooldown       = time.Second
	restartMaxHold        = 10 * time.Second
)

// ErrRestartInProgress is returned when a port switch is already running.
var ErrRestartInProgress = errors.New("restart already in progress")

// InboundHandler receives envelopes POSTed by the Initiator.
type InboundHandler interface {
	HandleInbound(ctx context.Context, event string, env wire.Envelope, msg wire.Message) error
}

// InboundFunc adapts a function to InboundHandler.
type InboundFunc func(ctx context.Context, event string, env wire.Envelope, msg wire.Message) error

func (f InboundFunc) HandleInbound(ctx context.Context, event string, env wire.Envelope, msg wire.Message) error {
	return f(ctx, event, env, msg)
}

// Collaborators are the asset-manager hooks behind the pass-through
// endpoints. Nil means not supported.
type Collaborators interface {
	ExportFiles(ctx context.Context, payload json.RawMessage) (any, error)
	CopyToClipboard(ctx context.Context, payload json.RawMessage) error
	SelectedFiles() []string
}

// Options configure a Server.
type Options struct {
	Host    string
	Port    int
	Service string
	Version string

	Queue         *queue.Queue
	Buffer        *logship.Buffer
	Mirror        *settings.Mirror
	Inbound       InboundHandler
	Collaborators Collaborators

	// OnPortChange runs after the listener has moved.
	OnPortChange func(oldPort, newPort int)
	// PortStamp returns when the listening port was last chosen, in Unix
	// millis. An advertised port chosen later moves the listener. Nil
	// leaves /ae-port-info informational.
	PortStamp func() int64

	BindAttempts   int
	BindRetryDelay time.Duration
	Logger         *slog.Logger
}

// Server is the Responder's HTTP endpoint.
type Server struct {
	opts     Options
	router   *gin.Engine
	logger   *slog.Logger
	queue    *queue.Queue
	buffer   *logship.Buffer
	mirror   *settings.Mirror
	clients  *registry
	logs     *logBatch
	restarts *conn.Guard
	now      func() time.Time

	mu   sync.Mutex
	srv  *http.Server
	port int
	wg   sync.WaitGroup

	stampMu   sync.Mutex
	lastStamp int64
}

// New builds a Server. Nothing listens until Start.
func New(opts Options) *Server {
	if opts.Service == "" {
		opts.Service = wire.ServiceName
	}
	if opts.Version == "" {
		opts.Version = "dev"
	}
	if opts.Queue == nil {
		opts.Queue = queue.New(queue.DefaultCapacity, queue.DefaultRetain)
	}
	if opts.Buffer == nil {
		opts.Buffer = logship.NewBuffer(wire.SourceResponder, logship.DefaultBufferLimit)
	}
	if opts.Mirror == nil {
		opts.Mirror = settings.NewMirror(opts.Port)
	}
	if opts.BindAttempts <= 0 {
		opts.BindAttempts = DefaultBindAttempts
	}
	if opts.BindRetryDelay <= 0 {
		opts.BindRetryDelay = DefaultBindRetryDelay
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	s := &Server{
		opts:     opts,
		logger:   opts.Logger.With("component", "server"),
		queue:    opts.Queue,
		buffer:   opts.Buffer,
		mirror:   opts.Mirror,
		clients:  newRegistry(),
		logs:     &logBatch{limit: logship.DefaultBufferLimit},
		restarts: conn.NewGuard(restartCooldown, restartMaxHold),
		now:      time.Now,
		port:     opts.Port,
	}
	s.router = s.routes()
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Port returns the port currently listened on.
func (s *Server) Port() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.port
}

// Queue returns the outbound envelope queue.
func (s *Server) Queue() *queue.Queue {
	return s.queue
}

// Enqueue stamps and queues an outbound message. Stamps are strictly
// increasing so a burst within one millisecond keeps distinct identities.
func (s *Server) Enqueue(kind wire.Kind, data any) error {
	env, err := wire.NewEnvelope(kind, data, "", s.now())
	if err != nil {
		return fmt.Errorf("build %s envelope: %w", kind, err)
	}
	s.stampMu.Lock()
	env.Timestamp = max(env.Timestamp, s.lastStamp+1)
	s.lastStamp = env.Timestamp
	s.queue.Push(env)
	s.stampMu.Unlock()
	return nil
}

// ShipLogs moves unsent buffer lines into the batch delivered with the next
// /messages response and returns how many moved.
func (s *Server) ShipLogs() int {
	unsent := s.buffer.Unsent()
	s.logs.add(unsent)
	return len(unsent)
}

// PeerPort returns the port most recently advertised by the Initiator.
func (s *Server) PeerPort() int {
	return s.clients.peer()
}

// Start binds the configured port, walking upward on conflicts, and serves
// in the background.
func (s *Server) Start(ctx context.Context) error {
	ln, port, err := s.bind(ctx, s.Port())
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.port = port
	s.srv = s.serve(ln)
	s.mu.Unlock()
	s.mirror.SetListenPort(port)
	s.logger.Info("listening", "port", port)
	return nil
}

// Restart moves the listener to port. The old listener keeps serving until
// the new bind succeeds, so a failed switch leaves the server reachable.
func (s *Server) Restart(ctx context.Context, port int) error {
	if err := settings.ValidatePort(port); err != nil {
		return err
	}
	if port == s.Port() {
		return nil
	}
	if !s.restarts.TryAcquire() {
		return ErrRestartInProgress
	}
	defer s.restarts.Release()

	ln, bound, err := s.bind(ctx, port)
	if err != nil {
		s.logger.Warn("restart failed; keeping current listener", "port", s.Port(), "error", err)
		return err
	}

	s.mu.Lock()
	oldPort, oldSrv := s.port, s.srv
	s.port = bound
	s.srv = s.serve(ln)
	s.mu.Unlock()
	s.mirror.SetListenPort(bound)

	if oldSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		if err := oldSrv.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("old listener shutdown", "port", oldPort, "error", err)
		}
		cancel()
	}

	if err := s.Enqueue(wire.KindPortChanged, wire.PortChanged{OldPort: oldPort, NewPort: bound}); err != nil {
		s.logger.Warn("port change not announced", "error", err)
	}
	s.logger.Info("listener moved", "old_port", oldPort, "new_port", bound)
	if s.opts.OnPortChange != nil {
		s.opts.OnPortChange(oldPort, bound)
	}
	return nil
}

// Shutdown stops the listener and waits for the serve loop.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.srv
	s.srv = nil
	s.mu.Unlock()

	var err error
	if srv != nil {
		err = srv.Shutdown(ctx)
	}
	s.wg.Wait()
	return err
}

func (s *Server) serve(ln net.Listener) *http.Server {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("serve failed", "error", err)
		}
	}()
	return srv
}

// bind listens on port, moving to the next port after each conflict. It
// gives up after the configured attempts or at 65535.
func (s *Server) bind(ctx context.Context, port int) (net.Listener, int, error) {
	lastErr := wire.ErrPortConflict
	for attempt := 0; attempt < s.opts.BindAttempts && port <= settings.MaxPort; attempt++ {
		ln, err := net.Listen("tcp", net.JoinHostPort(s.opts.Host, strconv.Itoa(port)))
		if err == nil {
			return ln, port, nil
		}
		lastErr = wire.Classify(err)
		if !errors.Is(lastErr, wire.ErrPortConflict) {
			return nil, 0, fmt.Errorf("listen on %d: %w", port, lastErr)
		}
		s.logger.Warn("port in use, trying next", "port", port)

		select {
		case <-ctx.Done():
			return nil, 0, wire.Classify(ctx.Err())
		case <-time.After(s.opts.BindRetryDelay):
		}
		port++
	}
	return nil, 0, fmt.Errorf("no free port after %d attempts: %w", s.opts.BindAttempts, lastErr)
}
