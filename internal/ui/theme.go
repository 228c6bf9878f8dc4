package ui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/five82/eaglebridge/internal/conn"
	"github.com/five82/eaglebridge/internal/wire"
)

// Theme defines colors for the monitor.
type Theme struct {
	Name string

	Background string
	Surface    string
	SurfaceAlt string
	Border     string

	Text    string
	Muted   string
	Faint   string
	Accent  string
	Success string
	Warning string
	Danger  string
	Info    string
}

// Styles contains pre-built Lipgloss styles for the theme.
type Styles struct {
	Text        lipgloss.Style
	MutedText   lipgloss.Style
	FaintText   lipgloss.Style
	AccentText  lipgloss.Style
	SuccessText lipgloss.Style
	WarningText lipgloss.Style
	DangerText  lipgloss.Style
	InfoText    lipgloss.Style

	Header lipgloss.Style
	Footer lipgloss.Style
	Logo   lipgloss.Style
	Panel  lipgloss.Style
}

// Styles returns Lipgloss styles for this theme.
func (t Theme) Styles() Styles {
	fg := func(c string) lipgloss.Style { return lipgloss.NewStyle().Foreground(lipgloss.Color(c)) }
	return Styles{
		Text:        fg(t.Text),
		MutedText:   fg(t.Muted),
		FaintText:   fg(t.Faint),
		AccentText:  fg(t.Accent),
		SuccessText: fg(t.Success).Bold(true),
		WarningText: fg(t.Warning),
		DangerText:  fg(t.Danger).Bold(true),
		InfoText:    fg(t.Info),

		Header: lipgloss.NewStyle().
			Background(lipgloss.Color(t.Surface)).
			Foreground(lipgloss.Color(t.Text)).
			Padding(0, 1),
		Footer: lipgloss.NewStyle().
			Background(lipgloss.Color(t.Surface)).
			Foreground(lipgloss.Color(t.Muted)).
			Padding(0, 1),
		Logo: fg(t.Warning).Bold(true),
		Panel: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color(t.Border)),
	}
}

// StateStyle colors a connection state badge.
func (s Styles) StateStyle(st conn.State) lipgloss.Style {
	switch st {
	case conn.Connected:
		return s.SuccessText
	case conn.Connecting:
		return s.WarningText.Bold(true)
	case conn.Error:
		return s.DangerText
	default:
		return s.MutedText
	}
}

// LevelStyle colors a log level tag.
func (s Styles) LevelStyle(level wire.LogLevel) lipgloss.Style {
	switch level {
	case wire.LevelSuccess:
		return s.SuccessText
	case wire.LevelWarning:
		return s.WarningText
	case wire.LevelError:
		return s.DangerText
	case wire.LevelDebug:
		return s.FaintText
	default:
		return s.InfoText
	}
}

var themes = map[string]Theme{
	"Nightfox": nightfoxTheme(),
	"Kanagawa": kanagawaTheme(),
	"Slate":    slateTheme(),
}

var themeOrder = []string{"Nightfox", "Kanagawa", "Slate"}

// GetTheme returns a theme by name.
func GetTheme(name string) Theme {
	if t, ok := themes[name]; ok {
		return t
	}
	return nightfoxTheme()
}

// NextTheme returns the next theme name in the cycle.
func NextTheme(current string) string {
	for i, name := range themeOrder {
		if name == current {
			return themeOrder[(i+1)%len(themeOrder)]
		}
	}
	return themeOrder[0]
}

// ThemeNames returns available theme names.
func ThemeNames() []string {
	return themeOrder
}

func nightfoxTheme() Theme {
	// https://github.com/EdenEast/nightfox.nvim
	return Theme{
		Name:       "Nightfox",
		Background: "#131a24",
		Surface:    "#192330",
		SurfaceAlt: "#212e3f",
		Border:     "#39506d",
		Text:       "#cdcecf",
		Muted:      "#738091",
		Faint:      "#71839b",
		Accent:     "#719cd6",
		Success:    "#81b29a",
		Warning:    "#dbc074",
		Danger:     "#c94f6d",
		Info:       "#63cdcf",
	}
}

func kanagawaTheme() Theme {
	// https://github.com/rebelot/kanagawa.nvim
	return Theme{
		Name:       "Kanagawa",
		Background: "#16161d",
		Surface:    "#1f1f28",
		SurfaceAlt: "#2a2a37",
		Border:     "#54546d",
		Text:       "#dcd7ba",
		Muted:      "#727169",
		Faint:      "#938aa9",
		Accent:     "#7e9cd8",
		Success:    "#98bb6c",
		Warning:    "#e6c384",
		Danger:     "#e82424",
		Info:       "#7fb4ca",
	}
}

func slateTheme() Theme {
	return Theme{
		Name:       "Slate",
		Background: "#0f172a",
		Surface:    "#1e293b",
		SurfaceAlt: "#334155",
		Border:     "#475569",
		Text:       "#e2e8f0",
		Muted:      "#94a3b8",
		Faint:      "#64748b",
		Accent:     "#38bdf8",
		Success:    "#4ade80",
		Warning:    "#facc15",
		Danger:     "#f87171",
		Info:       "#22d3ee",
	}
}
