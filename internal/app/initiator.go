package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/five82/eaglebridge/internal/client"
	"github.com/five82/eaglebridge/internal/config"
	"github.com/five82/eaglebridge/internal/conn"
	"github.com/five82/eaglebridge/internal/logship"
	"github.com/five82/eaglebridge/internal/negotiate"
	"github.com/five82/eaglebridge/internal/prefs"
	"github.com/five82/eaglebridge/internal/queue"
	"github.com/five82/eaglebridge/internal/sched"
	"github.com/five82/eaglebridge/internal/settings"
	"github.com/five82/eaglebridge/internal/state"
	"github.com/five82/eaglebridge/internal/wire"
)

const (
	taskPoll        = "poll"
	taskStatus      = "status"
	taskBroadcast   = "broadcast"
	taskLogShip     = "logship"
	taskAutoConnect = "autoconnect"

	autoConnectInterval = 3 * time.Second
)

// MessageHandler receives each newly seen envelope from the Responder.
type MessageHandler func(ctx context.Context, env wire.Envelope, msg wire.Message)

// InitiatorOptions configure the polling side.
type InitiatorOptions struct {
	Config    config.Config
	PrefsPath string
	Version   string
	Logger    *slog.Logger
	// History and Outbox receive local log lines; the logger is usually
	// mirrored into them through logship.Tee.
	History *logship.History
	Outbox  *logship.Buffer
	// OnMessage observes every deduplicated envelope after the built-in
	// handling.
	OnMessage MessageHandler
}

// Initiator owns every component of the polling side. Nothing outside it
// holds connection state.
type Initiator struct {
	cfg       config.Config
	logger    *slog.Logger
	version   string
	prefsPath string
	clientID  string
	onMessage MessageHandler

	seen        *queue.SeenSet
	history     *logship.History
	outbox      *logship.Buffer
	store       *state.Store
	machine     *conn.Machine
	detector    *negotiate.Detector
	broadcaster *negotiate.Broadcaster
	switcher    *negotiate.Switcher

	mu     sync.Mutex
	client *client.Client
	prefs  prefs.Prefs
	group  *sched.Group
}

// NewInitiator loads persisted preferences and wires the components. Call
// Start before Connect.
func NewInitiator(opts InitiatorOptions) (*Initiator, error) {
	cfg := opts.Config
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.PrefsPath == "" {
		opts.PrefsPath = prefs.DefaultPath("initiator")
	}
	if opts.History == nil {
		opts.History = logship.NewHistory(logship.DefaultHistoryLimit, logship.DefaultClearGrace)
	}
	if opts.Outbox == nil {
		opts.Outbox = logship.NewBuffer(wire.SourceInitiator, logship.DefaultBufferLimit)
	}

	p, err := prefs.Load(opts.PrefsPath)
	if err != nil {
		return nil, fmt.Errorf("load prefs: %w", err)
	}
	port := cfg.Port
	if p.Port.LastUpdated > 0 {
		port = p.Port.Port
	}

	c, err := client.NewClient(cfg.Host, port)
	if err != nil {
		return nil, fmt.Errorf("init client: %w", err)
	}

	i := &Initiator{
		cfg:       cfg,
		logger:    logger.With("component", "initiator"),
		version:   opts.Version,
		prefsPath: opts.PrefsPath,
		clientID:  uuid.NewString(),
		onMessage: opts.OnMessage,
		seen:      queue.NewSeenSet(queue.DefaultCapacity, queue.DefaultRetain),
		history:   opts.History,
		outbox:    opts.Outbox,
		store:     &state.Store{},
		client:    c,
		prefs:     p,
	}

	transport := c.Ports()
	i.detector = negotiate.NewDetector(transport, cfg.CandidatePorts, cfg.ServiceName, logger)
	i.broadcaster = negotiate.NewBroadcaster(transport, cfg.CandidatePorts, i.portChoice, logger)
	i.switcher = negotiate.NewSwitcher(transport, cfg.CandidatePorts, logger)
	i.machine = conn.New(conn.Options{
		Probe:        i.probe,
		Rediscover:   i.rediscover,
		OnChange:     i.onTransition,
		OnDisconnect: i.seen.Clear,
		Logger:       logger,
	})

	i.store.SetPort(port)
	i.store.SetClientID(i.clientID)
	return i, nil
}

// Start launches the background tasks. They stop when ctx is cancelled or
// Stop is called.
func (i *Initiator) Start(ctx context.Context) {
	group := sched.NewGroup(ctx, i.logger)
	i.mu.Lock()
	i.group = group
	i.mu.Unlock()

	group.Every(taskBroadcast, i.cfg.BroadcastInterval, func(ctx context.Context) error {
		_, _, err := i.broadcaster.Cycle(ctx)
		if errors.Is(err, negotiate.ErrNotFound) || errors.Is(err, negotiate.ErrBusy) {
			return nil
		}
		return err
	})
	group.Every(taskLogShip, i.cfg.LogShipInterval, i.shipLogs)
	if i.cfg.AutoConnect {
		group.Every(taskAutoConnect, autoConnectInterval, func(ctx context.Context) error {
			if i.machine.State() != conn.Disconnected {
				return nil
			}
			return i.machine.Connect(ctx)
		})
	}
}

// Stop disconnects and waits for every background task.
func (i *Initiator) Stop() error {
	i.machine.Disconnect()
	i.mu.Lock()
	group := i.group
	i.mu.Unlock()
	if group == nil {
		return nil
	}
	return group.Stop()
}

// Connect probes the Responder; see conn.Machine.Connect.
func (i *Initiator) Connect(ctx context.Context) error {
	return i.machine.Connect(ctx)
}

// Disconnect stops polling and forgets seen envelopes.
func (i *Initiator) Disconnect() {
	i.machine.Disconnect()
}

// State returns the connection state.
func (i *Initiator) State() conn.State {
	return i.machine.State()
}

// Port returns the port the Initiator currently targets.
func (i *Initiator) Port() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.client.Port()
}

// ClientID returns the id sent with every poll.
func (i *Initiator) ClientID() string {
	return i.clientID
}

// Store returns the monitor snapshot store.
func (i *Initiator) Store() *state.Store {
	return i.store
}

// History returns the merged log history.
func (i *Initiator) History() *logship.History {
	return i.history
}

// Settings returns the persisted settings snapshot.
func (i *Initiator) Settings() settings.Snapshot {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.prefs.SettingsOrDefault()
}

// portChoice is the targeted port and when it was last chosen. Zero means
// the port came from configuration.
func (i *Initiator) portChoice() (int, int64) {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.client.Port(), i.prefs.Port.LastUpdated
}

func (i *Initiator) currentClient() *client.Client {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.client
}

func (i *Initiator) probe(ctx context.Context) error {
	ping, err := i.currentClient().Ping(ctx)
	if err != nil {
		return err
	}
	if ping.Service != "" && ping.Service != i.cfg.ServiceName {
		return fmt.Errorf("%w: unexpected service %q", wire.ErrMalformedResponse, ping.Service)
	}
	return nil
}

func (i *Initiator) rediscover(ctx context.Context) {
	port, changed, err := i.detector.Detect(ctx, i.Port())
	if err != nil {
		i.logger.Debug("rediscovery found no responder", "error", err)
		return
	}
	if !changed {
		return
	}
	// A Responder found on an older choice is told about ours first; if it
	// is moving over, following it back would undo the user's change.
	if moving, err := i.broadcaster.Announce(ctx, port); err == nil && moving {
		i.logger.Info("responder moving to chosen port", "found_port", port, "port", i.Port())
		return
	}
	i.adoptPort(port)
}

// adoptPort retargets the client and persists port without user action.
func (i *Initiator) adoptPort(port int) {
	i.mu.Lock()
	old := i.client.Port()
	if port == old {
		i.mu.Unlock()
		return
	}
	i.client = i.client.WithPort(port)
	i.prefs = i.prefs.WithPort(port, time.Now())
	p := i.prefs
	i.mu.Unlock()

	i.store.SetPort(port)
	if err := prefs.Save(i.prefsPath, p); err != nil {
		i.logger.Warn("port not persisted", "port", port, "error", err)
	}
	i.logger.Info("adopted responder port", "old_port", old, "new_port", port)
}

func (i *Initiator) onTransition(tr conn.Transition) {
	i.store.SetState(tr.To, tr.Err)
	i.store.SetQuality(i.machine.Quality().Snapshot())

	i.mu.Lock()
	group := i.group
	i.mu.Unlock()
	if group == nil {
		return
	}

	switch {
	case tr.To == conn.Connected:
		group.Every(taskPoll, i.cfg.PollInterval, i.PollOnce)
		group.Every(taskStatus, i.cfg.StatusInterval, i.pushStatus)
	case tr.From == conn.Connected:
		group.Cancel(taskPoll)
		group.Cancel(taskStatus)
	}
}

// SetPort changes the communication port. The new value is pushed to the
// Responder first; whether or not that succeeds the change is applied and
// persisted locally. negotiate.ErrPeerUnreachable means the Responder must
// be restarted by hand.
func (i *Initiator) SetPort(ctx context.Context, port int) error {
	if err := settings.ValidatePort(port); err != nil {
		return err
	}
	old := i.Port()
	snap := i.Settings()

	_, pushErr := i.switcher.Propagate(ctx, old, port, snap)
	if errors.Is(pushErr, negotiate.ErrBusy) {
		return pushErr
	}

	snap.CommunicationPort = port
	i.mu.Lock()
	i.prefs.Settings = &snap
	i.mu.Unlock()
	i.adoptPort(port)
	i.saveSettings()

	if pushErr != nil {
		return fmt.Errorf("port set to %d locally; restart the asset manager side: %w", port, pushErr)
	}
	return nil
}

// PushSettings persists snap and mirrors it to the Responder. A snapshot
// carrying a different port goes through SetPort.
func (i *Initiator) PushSettings(ctx context.Context, snap settings.Snapshot) error {
	if snap.CommunicationPort == 0 {
		snap.CommunicationPort = i.Port()
	}
	update, err := settings.NewUpdate(snap)
	if err != nil {
		return err
	}
	if err := settings.Validate(update.Settings); err != nil {
		return err
	}

	i.mu.Lock()
	i.prefs.Settings = &snap
	i.mu.Unlock()
	if snap.CommunicationPort != i.Port() {
		return i.SetPort(ctx, snap.CommunicationPort)
	}
	i.saveSettings()

	if _, err := i.currentClient().PushSettings(ctx, update); err != nil {
		return fmt.Errorf("push settings: %w", err)
	}
	i.logger.Info("settings pushed", "mode", snap.Mode, "port", snap.CommunicationPort)
	return nil
}

func (i *Initiator) saveSettings() {
	i.mu.Lock()
	p := i.prefs
	i.mu.Unlock()
	if err := prefs.Save(i.prefsPath, p); err != nil {
		i.logger.Warn("settings not persisted", "error", err)
	}
}

// ClearLogs clears one side's history. Clearing the Responder view also
// wipes the Responder's buffer and ignores its late entries for a short
// grace window.
func (i *Initiator) ClearLogs(ctx context.Context, source wire.LogSource) error {
	i.history.MarkCleared(source)
	if source != wire.SourceResponder {
		i.outbox.Clear()
		return nil
	}
	if i.machine.State() != conn.Connected {
		return nil
	}
	return i.currentClient().ClearLogs(ctx)
}

func (i *Initiator) shipLogs(ctx context.Context) error {
	if i.machine.State() != conn.Connected {
		return nil
	}
	unsent := i.outbox.Unsent()
	if len(unsent) == 0 {
		return nil
	}
	_, err := i.currentClient().ShipLogs(ctx, unsent)
	return err
}

func (i *Initiator) pushStatus(ctx context.Context) error {
	c := i.currentClient()
	env, err := wire.NewEnvelope(wire.KindAEStatus, wire.AEStatus{
		Connected: true,
		Port:      c.Port(),
		Version:   i.version,
	}, i.clientID, time.Now())
	if err != nil {
		return err
	}
	if err := c.PostMessage(ctx, "ae", env); err != nil {
		return err
	}
	peer, err := c.FetchStatus(ctx)
	if err != nil {
		return err
	}
	i.store.SetPeer(peer)
	return nil
}
