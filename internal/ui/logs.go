package ui

import (
	"strings"

	"github.com/five82/eaglebridge/internal/wire"
)

// refreshLogs re-renders the log viewport when the selected source gained
// entries, or always when force is set.
func (m *Model) refreshLogs(force bool) {
	if !m.ready {
		return
	}
	entries := m.history.Entries(m.source)
	if !force && len(entries) == m.logCount {
		return
	}
	m.logCount = len(entries)
	m.logViewport.SetContent(m.renderLogLines(entries))
	if m.follow {
		m.logViewport.GotoBottom()
	}
}

func (m Model) renderLogLines(entries []wire.LogEntry) string {
	styles := m.theme.Styles()
	if len(entries) == 0 {
		return styles.FaintText.Render("no " + string(m.source) + " logs yet")
	}

	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		ts := e.Timestamp
		if t := e.ParsedTime(); !t.IsZero() {
			ts = t.Local().Format("15:04:05")
		}
		level := strings.ToUpper(string(e.Level))
		if len(level) > 4 {
			level = level[:4]
		}
		lines = append(lines, styles.FaintText.Render(ts)+" "+
			styles.LevelStyle(e.Level).Render(padRight(level, 4))+" "+
			styles.Text.Render(e.Message))
	}
	return strings.Join(lines, "\n")
}

func padRight(s string, n int) string {
	if len(s) >= n {
		return s
	}
	return s + strings.Repeat(" ", n-len(s))
}
