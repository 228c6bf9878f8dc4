package ui

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/five82/eaglebridge/internal/logship"
	"github.com/five82/eaglebridge/internal/prefs"
	"github.com/five82/eaglebridge/internal/state"
	"github.com/five82/eaglebridge/internal/wire"
)

// Controller is the subset of the Initiator the monitor drives.
type Controller interface {
	Connect(ctx context.Context) error
	Disconnect()
	ClearLogs(ctx context.Context, source wire.LogSource) error
}

// Options configures the UI.
type Options struct {
	Context    context.Context
	Controller Controller
	Store      *state.Store
	History    *logship.History
	PollTick   time.Duration
	ThemeName  string
	PrefsPath  string
	LogPath    string
}

const headerLines = 2

// Model is the root application state for Bubble Tea.
type Model struct {
	ctx       context.Context
	ctrl      Controller
	store     *state.Store
	history   *logship.History
	prefsPath string
	logPath   string
	pollTick  time.Duration

	keys  keyMap
	help  help.Model
	theme Theme

	width    int
	height   int
	ready    bool
	showHelp bool

	snapshot    state.Snapshot
	lastUpdated time.Time

	source      wire.LogSource
	follow      bool
	logViewport viewport.Model
	logCount    int
	logsRev     uint64

	flash    string
	flashErr bool
}

// New creates a new Bubble Tea model.
func New(opts Options) Model {
	ctx := opts.Context
	if ctx == nil {
		ctx = context.Background()
	}
	pollTick := opts.PollTick
	if pollTick <= 0 {
		pollTick = time.Second
	}
	history := opts.History
	if history == nil {
		history = logship.NewHistory(logship.DefaultHistoryLimit, logship.DefaultClearGrace)
	}

	return Model{
		ctx:       ctx,
		ctrl:      opts.Controller,
		store:     opts.Store,
		history:   history,
		prefsPath: opts.PrefsPath,
		logPath:   opts.LogPath,
		pollTick:  pollTick,
		keys:      DefaultKeyMap(),
		help:      help.New(),
		theme:     GetTheme(opts.ThemeName),
		source:    history.View(),
		follow:    true,
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{tickCmd(m.pollTick)}
	if m.store != nil {
		cmds = append(cmds, fetchSnapshotCmd(m.store))
	}
	return tea.Batch(cmds...)
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		if !m.ready {
			m.logViewport = viewport.New(msg.Width, m.logHeight())
			m.ready = true
		} else {
			m.logViewport.Width = msg.Width
			m.logViewport.Height = m.logHeight()
		}
		m.refreshLogs(true)
		return m, nil

	case tickMsg:
		var cmds []tea.Cmd
		if m.store != nil {
			cmds = append(cmds, fetchSnapshotCmd(m.store))
		}
		m.refreshLogs(false)
		cmds = append(cmds, tickCmd(m.pollTick))
		return m, tea.Batch(cmds...)

	case snapshotMsg:
		m.snapshot = state.Snapshot(msg)
		m.lastUpdated = time.Now()
		if m.snapshot.LogsRevision != m.logsRev {
			m.logsRev = m.snapshot.LogsRevision
			m.refreshLogs(true)
		}
		return m, nil

	case actionMsg:
		m.flash = msg.text
		m.flashErr = msg.err != nil
		if msg.err != nil {
			m.flash = msg.text + ": " + msg.err.Error()
		}
		m.refreshLogs(true)
		return m, fetchSnapshotCmd(m.store)
	}

	return m, nil
}

// View implements tea.Model.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	if m.showHelp {
		return m.renderHelp()
	}

	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n")
	b.WriteString(m.logViewport.View())
	b.WriteString("\n")
	b.WriteString(m.renderFooter())
	return b.String()
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.showHelp {
		m.showHelp = false
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Help):
		m.showHelp = true
		return m, nil

	case key.Matches(msg, m.keys.CycleTheme):
		m.theme = GetTheme(NextTheme(m.theme.Name))
		m.saveTheme()
		m.refreshLogs(true)
		return m, nil

	case key.Matches(msg, m.keys.Connect):
		return m, m.connectCmd()

	case key.Matches(msg, m.keys.Disconnect):
		if m.ctrl != nil {
			m.ctrl.Disconnect()
		}
		m.flash, m.flashErr = "disconnected", false
		return m, fetchSnapshotCmd(m.store)

	case key.Matches(msg, m.keys.ToggleSource):
		m.source = otherSource(m.source)
		m.history.SetView(m.source)
		m.refreshLogs(true)
		return m, nil

	case key.Matches(msg, m.keys.ClearLogs):
		return m, m.clearCmd(m.source)

	case key.Matches(msg, m.keys.ToggleFollow):
		m.follow = !m.follow
		if m.follow {
			m.logViewport.GotoBottom()
		}
		return m, nil
	}

	return m.handleLogsKey(msg)
}

func (m Model) handleLogsKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Up):
		m.logViewport.LineUp(1)
	case key.Matches(msg, m.keys.Down):
		m.logViewport.LineDown(1)
	case key.Matches(msg, m.keys.PageUp):
		m.logViewport.HalfViewUp()
	case key.Matches(msg, m.keys.PageDown):
		m.logViewport.HalfViewDown()
	case key.Matches(msg, m.keys.Top):
		m.logViewport.GotoTop()
	case key.Matches(msg, m.keys.Bottom):
		m.logViewport.GotoBottom()
	default:
		return m, nil
	}
	m.follow = m.logViewport.AtBottom()
	return m, nil
}

func (m Model) logHeight() int {
	h := m.height - headerLines - 1
	if h < 1 {
		return 1
	}
	return h
}

func (m Model) saveTheme() {
	if m.prefsPath == "" {
		return
	}
	p, err := prefs.Load(m.prefsPath)
	if err != nil {
		return
	}
	p.Theme = m.theme.Name
	_ = prefs.Save(m.prefsPath, p)
}

func otherSource(s wire.LogSource) wire.LogSource {
	if s == wire.SourceResponder {
		return wire.SourceInitiator
	}
	return wire.SourceResponder
}

// Messages

type tickMsg time.Time

type snapshotMsg state.Snapshot

type actionMsg struct {
	text string
	err  error
}

// Commands

func tickCmd(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func fetchSnapshotCmd(store *state.Store) tea.Cmd {
	if store == nil {
		return nil
	}
	return func() tea.Msg {
		return snapshotMsg(store.Snapshot())
	}
}

func (m Model) connectCmd() tea.Cmd {
	if m.ctrl == nil {
		return nil
	}
	ctx, ctrl := m.ctx, m.ctrl
	return func() tea.Msg {
		return actionMsg{text: "connect", err: ctrl.Connect(ctx)}
	}
}

func (m Model) clearCmd(source wire.LogSource) tea.Cmd {
	ctx, ctrl, history := m.ctx, m.ctrl, m.history
	return func() tea.Msg {
		text := "cleared " + string(source) + " logs"
		if ctrl == nil {
			history.MarkCleared(source)
			return actionMsg{text: text}
		}
		return actionMsg{text: text, err: ctrl.ClearLogs(ctx, source)}
	}
}

// Run starts the Bubble Tea program and blocks until the user quits or ctx
// is cancelled.
func Run(opts Options) error {
	m := New(opts)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(m.ctx))
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && m.ctx.Err() != nil {
		return nil
	}
	return err
}
