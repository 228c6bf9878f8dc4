package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/five82/eaglebridge/internal/settings"
	"github.com/five82/eaglebridge/internal/wire"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestServer(t *testing.T, opts Options) *Server {
	t.Helper()
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.Host == "" {
		opts.Host = "127.0.0.1"
	}
	if opts.Port == 0 {
		opts.Port = 8080
	}
	opts.BindRetryDelay = time.Millisecond
	return New(opts)
}

func do(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return port
}

func TestPing_IdentifiesService(t *testing.T) {
	s := newTestServer(t, Options{Version: "1.0.1"})
	rec := do(t, s, http.MethodGet, "/ping", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	ping := decode[wire.PingResponse](t, rec)
	assert.True(t, ping.Pong)
	assert.Equal(t, wire.ServiceName, ping.Service)
	assert.Equal(t, "1.0.1", ping.Version)
	assert.Equal(t, 8080, ping.Port)
}

func TestMessages_DrainsQueueAndRegistersClient(t *testing.T) {
	s := newTestServer(t, Options{})
	for i := 0; i < 101; i++ {
		s.Queue().Push(wire.Envelope{Type: "status", Timestamp: int64(1000 + i)})
	}

	first := decode[wire.MessagesResponse](t, do(t, s, http.MethodGet, "/messages?clientId=c1", nil))
	require.Len(t, first.Messages, 50)
	assert.EqualValues(t, 1051, first.Messages[0].Timestamp)
	assert.EqualValues(t, 1100, first.Messages[49].Timestamp)
	assert.Equal(t, "c1", first.ClientID)
	assert.False(t, first.WebsocketCompatible)

	second := decode[wire.MessagesResponse](t, do(t, s, http.MethodGet, "/messages?clientId=c1", nil))
	assert.Empty(t, second.Messages)
	assert.NotNil(t, second.Messages)
	assert.NotNil(t, second.Logs)

	anon := decode[wire.MessagesResponse](t, do(t, s, http.MethodGet, "/messages", nil))
	assert.NotEmpty(t, anon.ClientID)

	status := decode[wire.StatusResponse](t, do(t, s, http.MethodGet, "/ae-status", nil))
	assert.Equal(t, 2, status.Clients)
	assert.True(t, status.Connected)
	assert.Positive(t, status.LastPollAt)
}

func TestMessages_CarriesShippedLogsOnce(t *testing.T) {
	s := newTestServer(t, Options{})
	s.buffer.Add(wire.LevelInfo, "imported 3 files")
	s.buffer.Add(wire.LevelError, "export failed")

	assert.Equal(t, 2, s.ShipLogs())
	assert.Equal(t, 0, s.ShipLogs())

	resp := decode[wire.MessagesResponse](t, do(t, s, http.MethodGet, "/messages?clientId=c1", nil))
	require.Len(t, resp.Logs, 2)
	assert.Equal(t, wire.SourceResponder, resp.Logs[0].Source)

	again := decode[wire.MessagesResponse](t, do(t, s, http.MethodGet, "/messages?clientId=c1", nil))
	assert.Empty(t, again.Logs)
}

func TestEvent_DecodesAndDispatches(t *testing.T) {
	var (
		gotEvent string
		gotMsg   wire.Message
	)
	s := newTestServer(t, Options{
		Inbound: InboundFunc(func(_ context.Context, event string, _ wire.Envelope, msg wire.Message) error {
			gotEvent, gotMsg = event, msg
			return nil
		}),
	})

	env, err := wire.NewEnvelope(wire.KindAEStatus, wire.AEStatus{Connected: true, Port: 8080}, "c1", time.UnixMilli(5))
	require.NoError(t, err)

	rec := do(t, s, http.MethodPost, "/ae-message", env)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, decode[wire.Ack](t, rec).Success)
	assert.Equal(t, "ae", gotEvent)
	assert.Equal(t, wire.AEStatus{Connected: true, Port: 8080}, gotMsg)

	status, ok := s.clients.status()
	require.True(t, ok)
	assert.Equal(t, 8080, status.Port)
}

func TestEvent_UnknownTypeIsAcknowledgedAndDropped(t *testing.T) {
	called := false
	s := newTestServer(t, Options{
		Inbound: InboundFunc(func(context.Context, string, wire.Envelope, wire.Message) error {
			called = true
			return nil
		}),
	})

	rec := do(t, s, http.MethodPost, "/eagle-message", wire.Envelope{Type: "hologram", Timestamp: 1})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, called)
}

func TestEvent_RejectsBadRequests(t *testing.T) {
	s := newTestServer(t, Options{})

	tests := []struct {
		name string
		path string
		body any
		code int
	}{
		{"malformed json", "/ae-message", "{not json", http.StatusBadRequest},
		{"missing type", "/ae-message", wire.Envelope{Timestamp: 1}, http.StatusBadRequest},
		{"bad payload", "/ae-message", wire.Envelope{Type: "ae_status", Data: json.RawMessage(`{"port":"x"}`)}, http.StatusBadRequest},
		{"not an event path", "/whatever", wire.Envelope{Type: "status"}, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, s, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.code, rec.Code)
			ack := decode[wire.Ack](t, rec)
			assert.False(t, ack.Success)
			assert.NotEmpty(t, ack.Error)
		})
	}
}

func TestSettings_LastWriteWins(t *testing.T) {
	s := newTestServer(t, Options{})

	first := settings.Default()
	first.Mode = settings.ModeDirect
	second := settings.Default()
	second.Mode = settings.ModeCustomFolder
	second.CustomFolderPath = "/Volumes/assets"

	for _, snap := range []settings.Snapshot{first, second} {
		update, err := settings.NewUpdate(snap)
		require.NoError(t, err)
		rec := do(t, s, http.MethodPost, "/settings-sync", update)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.False(t, decode[wire.Ack](t, rec).PortChanged)
	}

	got, ok := s.mirror.Current()
	require.True(t, ok)
	assert.Equal(t, second, got)

	drained := s.Queue().Drain()
	require.Len(t, drained, 2)
	assert.Equal(t, string(wire.KindSettingsAck), drained[1].Type)
}

func TestSettings_RejectsOutOfRangePort(t *testing.T) {
	s := newTestServer(t, Options{})
	rec := do(t, s, http.MethodPost, "/settings-sync", wire.SettingsUpdate{
		Type:        wire.SettingsUpdateType,
		Preferences: wire.Preferences{CommunicationPort: 99999},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	_, ok := s.mirror.Current()
	assert.False(t, ok)
}

func TestPortInfo_RecordsWithoutRestart(t *testing.T) {
	s := newTestServer(t, Options{})

	rec := do(t, s, http.MethodPost, "/ae-port-info", wire.PortInfo{AEPort: 8083, Source: wire.PortInfoSource})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 8083, s.PeerPort())
	assert.Equal(t, 8080, s.Port())

	rec = do(t, s, http.MethodPost, "/ae-port-info", wire.PortInfo{AEPort: 80})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 8083, s.PeerPort())
}

func TestPortInfo_NewerChoiceMovesListener(t *testing.T) {
	from, to := freePort(t), freePort(t)
	s := newTestServer(t, Options{Port: from, PortStamp: func() int64 { return 100 }})
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(func() { _ = s.Shutdown(context.Background()) })

	rec := do(t, s, http.MethodPost, "/ae-port-info", wire.PortInfo{AEPort: to, Source: wire.PortInfoSource, LastUpdated: 50})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decode[wire.Ack](t, rec).PortChanged, "older choice is only recorded")
	assert.Equal(t, from, s.Port())

	rec = do(t, s, http.MethodPost, "/ae-port-info", wire.PortInfo{AEPort: to, Source: wire.PortInfoSource, LastUpdated: 200})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[wire.Ack](t, rec).PortChanged)

	require.Eventually(t, func() bool { return s.Port() == to }, 2*time.Second, 10*time.Millisecond)
	assert.NoError(t, pingPort(to))
}

func TestEnqueue_StampsStrictlyIncrease(t *testing.T) {
	s := newTestServer(t, Options{})
	fixed := time.UnixMilli(5000)
	s.now = func() time.Time { return fixed }

	for i := 0; i < 5; i++ {
		require.NoError(t, s.Enqueue(wire.KindNotification, wire.Notification{Level: wire.LevelInfo, Text: "burst"}))
	}

	drained := s.Queue().Drain()
	require.Len(t, drained, 5)
	seen := make(map[string]bool)
	for i, env := range drained {
		assert.EqualValues(t, 5000+i, env.Timestamp)
		assert.False(t, seen[env.Identity()], "duplicate identity %s", env.Identity())
		seen[env.Identity()] = true
	}
}

func TestLogs_AcceptAndClear(t *testing.T) {
	s := newTestServer(t, Options{})

	rec := do(t, s, http.MethodPost, "/eagle-logs", wire.LogsPayload{Logs: []wire.LogEntry{
		{ID: "a", Timestamp: "2026-01-01T00:00:00Z", Message: "import done", Level: wire.LevelSuccess},
	}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decode[wire.Ack](t, rec).Received)

	entries := s.buffer.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, wire.SourceInitiator, entries[0].Source)
	assert.Equal(t, 0, s.ShipLogs(), "initiator lines are not shipped back")

	s.buffer.Add(wire.LevelInfo, "pending")
	s.ShipLogs()
	rec = do(t, s, http.MethodPost, "/clear-logs", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, s.buffer.Len())

	resp := decode[wire.MessagesResponse](t, do(t, s, http.MethodGet, "/messages", nil))
	assert.Empty(t, resp.Logs)
}

type fakeCollaborators struct {
	exported json.RawMessage
}

func (f *fakeCollaborators) ExportFiles(_ context.Context, payload json.RawMessage) (any, error) {
	f.exported = payload
	return map[string]int{"count": 2}, nil
}

func (f *fakeCollaborators) CopyToClipboard(context.Context, json.RawMessage) error {
	return errors.New("clipboard unavailable")
}

func (f *fakeCollaborators) SelectedFiles() []string { return []string{"a.png"} }

func TestCollaborators(t *testing.T) {
	plain := newTestServer(t, Options{})
	rec := do(t, plain, http.MethodPost, "/export-files", `{"files":[]}`)
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
	assert.Equal(t, "not supported", decode[wire.Ack](t, rec).Error)

	collab := &fakeCollaborators{}
	s := newTestServer(t, Options{Collaborators: collab})

	rec = do(t, s, http.MethodPost, "/export-files", `{"files":["a.png"]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"files":["a.png"]}`, string(collab.exported))

	rec = do(t, s, http.MethodPost, "/copy-to-clipboard", `{"text":"x"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	status := decode[wire.StatusResponse](t, do(t, s, http.MethodGet, "/ae-status", nil))
	assert.Equal(t, []string{"a.png"}, status.SelectedFiles)
	assert.False(t, status.Connected)
}

func pingPort(port int) error {
	resp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/ping", port))
	if err != nil {
		return err
	}
	_ = resp.Body.Close()
	return nil
}

func TestStart_WalksPastConflicts(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer busy.Close()
	taken := busy.Addr().(*net.TCPAddr).Port

	s := newTestServer(t, Options{Port: taken})
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(func() { _ = s.Shutdown(context.Background()) })

	assert.Greater(t, s.Port(), taken)
	assert.LessOrEqual(t, s.Port(), taken+DefaultBindAttempts)
	assert.NoError(t, pingPort(s.Port()))
	assert.Equal(t, s.Port(), s.mirror.ListenPort())
}

func TestRestart_MovesListenerAndAnnounces(t *testing.T) {
	from, to := freePort(t), freePort(t)
	var moved [2]int
	s := newTestServer(t, Options{Port: from, OnPortChange: func(o, n int) { moved = [2]int{o, n} }})
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(func() { _ = s.Shutdown(context.Background()) })

	require.NoError(t, s.Restart(context.Background(), to))
	assert.Equal(t, to, s.Port())
	assert.Equal(t, [2]int{from, to}, moved)
	assert.NoError(t, pingPort(to))
	assert.Error(t, pingPort(from))

	drained := s.Queue().Drain()
	require.Len(t, drained, 1)
	msg, err := wire.Decode(drained[0])
	require.NoError(t, err)
	assert.Equal(t, wire.PortChanged{OldPort: from, NewPort: to}, msg)
}

func TestRestart_FailedBindKeepsOldListener(t *testing.T) {
	from := freePort(t)
	s := newTestServer(t, Options{Port: from})
	s.opts.BindAttempts = 1
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(func() { _ = s.Shutdown(context.Background()) })

	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer busy.Close()

	err = s.Restart(context.Background(), busy.Addr().(*net.TCPAddr).Port)
	require.ErrorIs(t, err, wire.ErrPortConflict)
	assert.Equal(t, from, s.Port())
	assert.NoError(t, pingPort(from))
}

func TestSettingsPortChangeRestartsListener(t *testing.T) {
	from, to := freePort(t), freePort(t)
	s := newTestServer(t, Options{Port: from})
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(func() { _ = s.Shutdown(context.Background()) })

	snap := settings.Default()
	snap.CommunicationPort = to
	update, err := settings.NewUpdate(snap)
	require.NoError(t, err)
	raw, err := json.Marshal(update)
	require.NoError(t, err)

	resp, err := http.Post(fmt.Sprintf("http://127.0.0.1:%d/settings-sync", from), "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	var ack wire.Ack
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&ack))
	_ = resp.Body.Close()
	assert.True(t, ack.PortChanged)

	require.Eventually(t, func() bool { return s.Port() == to }, 2*time.Second, 10*time.Millisecond)
	assert.NoError(t, pingPort(to))
}
