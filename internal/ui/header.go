package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/five82/eaglebridge/internal/conn"
)

// renderHeader renders the two status lines: connection on top, peer and
// quality underneath.
func (m Model) renderHeader() string {
	styles := m.theme.Styles()
	snap := m.snapshot
	sep := "  "

	top := []string{
		styles.Logo.Render("eaglebridge"),
		styles.StateStyle(snap.State).Render("● " + strings.ToUpper(snap.State.String())),
		styles.MutedText.Render("port") + " " + styles.Text.Render(fmt.Sprintf("%d", snap.Port)),
	}
	if snap.ClientID != "" {
		top = append(top, styles.FaintText.Render("id "+shortID(snap.ClientID)))
	}
	if snap.IsOffline() {
		top = append(top, styles.DangerText.Render("RESPONDER OFFLINE"))
	} else if snap.LastError != nil && snap.State != conn.Connected {
		top = append(top, styles.WarningText.Render(truncate(snap.LastError.Error(), 60)))
	}

	q := snap.Quality
	bottom := []string{
		styles.MutedText.Render("rtt") + " " + styles.Text.Render(formatRTT(q.Average)),
		styles.MutedText.Render("ok") + " " + styles.Text.Render(fmt.Sprintf("%.0f%%", q.SuccessRate()*100)),
		styles.MutedText.Render("received") + " " + styles.Text.Render(fmt.Sprintf("%d", snap.Received)),
	}
	if snap.LastMessage != "" {
		bottom = append(bottom, styles.MutedText.Render("last")+" "+styles.InfoText.Render(snap.LastMessage))
	}
	if snap.HasPeer {
		bottom = append(bottom,
			styles.MutedText.Render("clients")+" "+styles.Text.Render(fmt.Sprintf("%d", snap.Peer.Clients)),
			styles.MutedText.Render("eagle")+" "+styles.Text.Render(snap.Peer.EagleStatus),
		)
	}
	if !m.lastUpdated.IsZero() {
		bottom = append(bottom, styles.FaintText.Render(m.lastUpdated.Format("15:04:05")))
	}

	return styles.Header.Width(m.width).Render(strings.Join(top, sep)) + "\n" +
		styles.Header.Width(m.width).Render(strings.Join(bottom, sep))
}

// renderFooter shows the last action result, or the short key help.
func (m Model) renderFooter() string {
	styles := m.theme.Styles()
	if m.flash != "" {
		style := styles.SuccessText
		if m.flashErr {
			style = styles.DangerText
		}
		return styles.Footer.Width(m.width).Render(style.Render(m.flash) + "  " + m.help.View(m.keys))
	}
	return styles.Footer.Width(m.width).Render(m.help.View(m.keys))
}

func formatRTT(d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	if d < time.Millisecond {
		return fmt.Sprintf("%dµs", d.Microseconds())
	}
	return fmt.Sprintf("%dms", d.Milliseconds())
}

func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}

func truncate(s string, n int) string {
	if n <= 1 || len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}
