package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/five82/eaglebridge/internal/client"
	"github.com/five82/eaglebridge/internal/config"
	"github.com/five82/eaglebridge/internal/conn"
	"github.com/five82/eaglebridge/internal/logship"
	"github.com/five82/eaglebridge/internal/negotiate"
	"github.com/five82/eaglebridge/internal/prefs"
	"github.com/five82/eaglebridge/internal/wire"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return port
}

func testConfig(port int, candidates ...int) config.Config {
	cfg := config.Default()
	cfg.Port = port
	cfg.CandidatePorts = append([]int{port}, candidates...)
	cfg.LogDir = ""
	cfg.AutoConnect = false
	return cfg
}

func startResponder(t *testing.T, cfg config.Config, buffer *logship.Buffer) *Responder {
	t.Helper()
	r, err := NewResponder(ResponderOptions{
		Config:    cfg,
		PrefsPath: filepath.Join(t.TempDir(), "responder.toml"),
		Logger:    discard(),
		Buffer:    buffer,
	})
	require.NoError(t, err)
	require.NoError(t, r.Start(context.Background()))
	t.Cleanup(func() { _ = r.Stop() })
	return r
}

func newInitiator(t *testing.T, cfg config.Config) (*Initiator, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "initiator.toml")
	i, err := NewInitiator(InitiatorOptions{
		Config:    cfg,
		PrefsPath: path,
		Logger:    discard(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = i.Stop() })
	return i, path
}

func TestPollOnce_DeliversEachEnvelopeOnce(t *testing.T) {
	port := freePort(t)
	cfg := testConfig(port)
	startResponder(t, cfg, nil)

	var got []wire.Message
	i, _ := newInitiator(t, cfg)
	i.onMessage = func(_ context.Context, _ wire.Envelope, msg wire.Message) {
		got = append(got, msg)
	}

	ctx := context.Background()
	require.NoError(t, i.Connect(ctx))
	require.Equal(t, conn.Connected, i.State())

	require.NoError(t, i.PollOnce(ctx))
	require.NoError(t, i.PollOnce(ctx))

	require.Len(t, got, 1)
	status, ok := got[0].(wire.Status)
	require.True(t, ok, "got %T", got[0])
	assert.Equal(t, "ready", status.Status)

	snap := i.Store().Snapshot()
	assert.Equal(t, 1, snap.Received)
	assert.Equal(t, string(wire.KindStatus), snap.LastMessage)
	assert.Zero(t, snap.ConsecutiveFailures)
}

func TestPollOnce_MergesResponderLogs(t *testing.T) {
	port := freePort(t)
	cfg := testConfig(port)
	buffer := logship.NewBuffer(wire.SourceResponder, logship.DefaultBufferLimit)
	r := startResponder(t, cfg, buffer)

	buffer.Add(wire.LevelWarning, "disk almost full")
	require.Equal(t, 1, r.Server().ShipLogs())

	i, _ := newInitiator(t, cfg)
	ctx := context.Background()
	require.NoError(t, i.Connect(ctx))
	require.NoError(t, i.PollOnce(ctx))

	entries := i.History().Entries(wire.SourceResponder)
	require.Len(t, entries, 1)
	assert.Equal(t, "disk almost full", entries[0].Message)
	assert.Zero(t, i.Store().Snapshot().LogsRevision, "initiator view is selected")

	i.History().SetView(wire.SourceResponder)
	buffer.Add(wire.LevelInfo, "import finished")
	require.Equal(t, 1, r.Server().ShipLogs())
	require.NoError(t, i.PollOnce(ctx))
	assert.EqualValues(t, 1, i.Store().Snapshot().LogsRevision)
}

func TestPollOnce_DeliversBurstQueuedTogether(t *testing.T) {
	port := freePort(t)
	cfg := testConfig(port)
	r := startResponder(t, cfg, nil)

	var notes []string
	i, _ := newInitiator(t, cfg)
	i.onMessage = func(_ context.Context, _ wire.Envelope, msg wire.Message) {
		if n, ok := msg.(wire.Notification); ok {
			notes = append(notes, n.Text)
		}
	}

	for k := 0; k < 20; k++ {
		require.NoError(t, r.Notify(wire.LevelInfo, fmt.Sprintf("note %d", k)))
	}

	ctx := context.Background()
	require.NoError(t, i.Connect(ctx))
	require.NoError(t, i.PollOnce(ctx))

	require.Len(t, notes, 20)
	assert.Equal(t, "note 0", notes[0])
	assert.Equal(t, "note 19", notes[19])
}

func TestPollOnce_DropsUnknownTypes(t *testing.T) {
	port := freePort(t)
	cfg := testConfig(port)
	r := startResponder(t, cfg, nil)

	var kinds []string
	i, _ := newInitiator(t, cfg)
	i.onMessage = func(_ context.Context, env wire.Envelope, _ wire.Message) {
		kinds = append(kinds, env.Type)
	}
	require.NoError(t, r.Server().Enqueue(wire.Kind("mystery"), map[string]int{"n": 1}))

	ctx := context.Background()
	require.NoError(t, i.Connect(ctx))
	require.NoError(t, i.PollOnce(ctx))

	assert.Equal(t, []string{string(wire.KindStatus)}, kinds)
}

func TestPollOnce_RecordsQuality(t *testing.T) {
	port := freePort(t)
	cfg := testConfig(port)
	r := startResponder(t, cfg, nil)
	i, _ := newInitiator(t, cfg)

	ctx := context.Background()
	require.NoError(t, i.Connect(ctx))
	require.NoError(t, i.PollOnce(ctx))

	q := i.Store().Snapshot().Quality
	assert.Equal(t, 2, q.Successes, "connect probe plus one poll")
	assert.Len(t, q.RTTs, 2)

	require.NoError(t, r.Stop())
	err := i.PollOnce(ctx)
	require.Error(t, err)
	assert.True(t, wire.IsTransportFailure(err))
	assert.Equal(t, conn.Error, i.State())

	q = i.Store().Snapshot().Quality
	assert.Equal(t, 1, q.Failures)
	assert.True(t, wire.IsTransportFailure(q.LastError))
}

func TestPollOnce_AdoptsAnnouncedPort(t *testing.T) {
	port := freePort(t)
	cfg := testConfig(port)
	r := startResponder(t, cfg, nil)
	i, path := newInitiator(t, cfg)

	moved := freePort(t)
	require.NoError(t, r.Server().Enqueue(wire.KindPortChanged, wire.PortChanged{OldPort: port, NewPort: moved}))

	ctx := context.Background()
	require.NoError(t, i.Connect(ctx))
	require.NoError(t, i.PollOnce(ctx))

	assert.Equal(t, moved, i.Port())
	assert.Equal(t, moved, i.Store().Snapshot().Port)

	saved, err := prefs.Load(path)
	require.NoError(t, err)
	assert.Equal(t, moved, saved.Port.Port)
	assert.Positive(t, saved.Port.LastUpdated)
}

func TestPollOnce_LostResponderIsRediscovered(t *testing.T) {
	port, other := freePort(t), freePort(t)
	cfg := testConfig(port, other)
	r := startResponder(t, cfg, nil)
	i, _ := newInitiator(t, cfg)

	ctx := context.Background()
	require.NoError(t, i.Connect(ctx))
	require.NoError(t, r.Server().Restart(ctx, other))

	err := i.PollOnce(ctx)
	require.Error(t, err)
	assert.True(t, wire.IsTransportFailure(err))
	assert.Equal(t, conn.Error, i.State())
	assert.Equal(t, other, i.Port(), "rediscovery retargets the client")
	assert.Equal(t, 1, i.Store().Snapshot().ConsecutiveFailures)
}

func TestSetPort_MovesResponder(t *testing.T) {
	port, target := freePort(t), freePort(t)
	cfg := testConfig(port, target)
	r := startResponder(t, cfg, nil)
	i, path := newInitiator(t, cfg)

	ctx := context.Background()
	require.NoError(t, i.SetPort(ctx, target))
	assert.Equal(t, target, i.Port())

	require.Eventually(t, func() bool { return r.Port() == target }, 3*time.Second, 20*time.Millisecond)

	c, err := client.NewClient("127.0.0.1", target)
	require.NoError(t, err)
	_, err = c.Ping(ctx)
	require.NoError(t, err)

	saved, err := prefs.Load(path)
	require.NoError(t, err)
	require.NotNil(t, saved.Settings)
	assert.Equal(t, target, saved.Settings.CommunicationPort)
}

func TestSetPort_AppliesLocallyWhenResponderUnreachable(t *testing.T) {
	port, target := freePort(t), freePort(t)
	i, path := newInitiator(t, testConfig(port))

	err := i.SetPort(context.Background(), target)
	require.Error(t, err)
	assert.True(t, errors.Is(err, negotiate.ErrPeerUnreachable))
	assert.Contains(t, err.Error(), "restart")
	assert.Equal(t, target, i.Port())

	saved, loadErr := prefs.Load(path)
	require.NoError(t, loadErr)
	assert.Equal(t, target, saved.Port.Port)
}

// startResponderAt starts a Responder whose persisted port was chosen at
// stamp.
func startResponderAt(t *testing.T, cfg config.Config, port int, stamp time.Time) *Responder {
	t.Helper()
	path := filepath.Join(t.TempDir(), "responder.toml")
	require.NoError(t, prefs.Save(path, prefs.Prefs{}.WithPort(port, stamp)))
	r, err := NewResponder(ResponderOptions{Config: cfg, PrefsPath: path, Logger: discard()})
	require.NoError(t, err)
	require.NoError(t, r.Start(context.Background()))
	t.Cleanup(func() { _ = r.Stop() })
	require.Equal(t, port, r.Port())
	return r
}

func TestSetPort_ManualRestartConvergesOnNewPort(t *testing.T) {
	port, target := freePort(t), freePort(t)
	cfg := testConfig(port, target)
	i, _ := newInitiator(t, cfg)

	ctx := context.Background()
	require.ErrorIs(t, i.SetPort(ctx, target), negotiate.ErrPeerUnreachable)

	// The asset manager side comes back on the port it had saved earlier.
	r := startResponderAt(t, cfg, port, time.Now().Add(-time.Minute))

	require.Error(t, i.Connect(ctx))
	assert.Equal(t, target, i.Port(), "rediscovery does not follow the responder back")

	require.Eventually(t, func() bool { return r.Port() == target }, 3*time.Second, 20*time.Millisecond)
	require.NoError(t, i.Connect(ctx))
	assert.Equal(t, conn.Connected, i.State())
	assert.Equal(t, target, i.Port())
}

func TestBroadcast_MovesResponderToNewerChoice(t *testing.T) {
	port, target := freePort(t), freePort(t)
	cfg := testConfig(port, target)
	cfg.BroadcastInterval = 20 * time.Millisecond
	i, _ := newInitiator(t, cfg)
	require.Error(t, i.SetPort(context.Background(), target))

	r := startResponderAt(t, cfg, port, time.Now().Add(-time.Minute))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	i.Start(ctx)

	require.Eventually(t, func() bool { return r.Port() == target }, 3*time.Second, 20*time.Millisecond)
	assert.Equal(t, target, r.Server().PeerPort())
	require.NoError(t, i.Connect(ctx))
	assert.Equal(t, target, i.Port())
}

func TestBroadcast_LeavesResponderWithNewerChoice(t *testing.T) {
	port := freePort(t)
	cfg := testConfig(port)
	i, _ := newInitiator(t, cfg)
	r := startResponderAt(t, cfg, port, time.Now())

	_, moving, err := i.broadcaster.Cycle(context.Background())
	require.NoError(t, err)
	assert.False(t, moving)
	assert.Equal(t, port, r.Port())
	assert.Equal(t, port, r.Server().PeerPort())
}

func TestSetPort_RejectsOutOfRange(t *testing.T) {
	port := freePort(t)
	i, _ := newInitiator(t, testConfig(port))
	assert.Error(t, i.SetPort(context.Background(), 80))
	assert.Equal(t, port, i.Port())
}

func TestClearLogs_WipesResponderBuffer(t *testing.T) {
	port := freePort(t)
	cfg := testConfig(port)
	buffer := logship.NewBuffer(wire.SourceResponder, logship.DefaultBufferLimit)
	r := startResponder(t, cfg, buffer)
	buffer.Add(wire.LevelInfo, "before clear")
	r.Server().ShipLogs()

	i, _ := newInitiator(t, cfg)
	ctx := context.Background()
	require.NoError(t, i.Connect(ctx))
	require.NoError(t, i.PollOnce(ctx))
	require.Len(t, i.History().Entries(wire.SourceResponder), 1)

	require.NoError(t, i.ClearLogs(ctx, wire.SourceResponder))
	assert.Empty(t, i.History().Entries(wire.SourceResponder))
	assert.Zero(t, buffer.Len())
}

func TestNewResponder_PrefersPersistedPort(t *testing.T) {
	persisted := freePort(t)
	path := filepath.Join(t.TempDir(), "responder.toml")
	require.NoError(t, prefs.Save(path, prefs.Prefs{}.WithPort(persisted, time.Now())))

	r, err := NewResponder(ResponderOptions{
		Config:    testConfig(freePort(t)),
		PrefsPath: path,
		Logger:    discard(),
	})
	require.NoError(t, err)
	assert.Equal(t, persisted, r.Port())
}

func TestInitiator_StartPollsAfterConnect(t *testing.T) {
	port := freePort(t)
	cfg := testConfig(port)
	cfg.PollInterval = 20 * time.Millisecond
	startResponder(t, cfg, nil)

	i, _ := newInitiator(t, cfg)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	i.Start(ctx)
	require.NoError(t, i.Connect(ctx))

	require.Eventually(t, func() bool {
		return i.Store().Snapshot().Received >= 1
	}, 2*time.Second, 20*time.Millisecond)

	require.Eventually(t, func() bool {
		return i.Store().Snapshot().HasPeer
	}, 2*time.Second, 20*time.Millisecond, "status task fetches the peer view")

	i.Disconnect()
	assert.Equal(t, conn.Disconnected, i.State())
	assert.NoError(t, i.Stop())
}
