package tui

import "github.com/charmbracelet/lipgloss"

// theme bundles every lipgloss style the UI renders with. Two palettes exist,
// dark and light; the active one is chosen by the persisted preference and can
// be flipped at runtime.
type theme struct {
	root        lipgloss.Style
	header      lipgloss.Style
	title       lipgloss.Style
	panel       lipgloss.Style
	composer    lipgloss.Style
	footer      lipgloss.Style
	help        lipgloss.Style
	status      lipgloss.Style
	errorStatus lipgloss.Style

	userLabel      lipgloss.Style
	assistantLabel lipgloss.Style
	selectedMark   lipgloss.Style
	pending        lipgloss.Style
	corrected      lipgloss.Style
	diffChanged    lipgloss.Style

	micActive lipgloss.Style
	speaking  lipgloss.Style
	thinking  lipgloss.Style

	modal      lipgloss.Style
	modalTitle lipgloss.Style
}

func newTheme(dark bool) theme {
	if dark {
		return themeFromPalette(palette{
			accent:  lipgloss.Color("#7aa2f7"),
			user:    lipgloss.Color("#9ece6a"),
			bot:     lipgloss.Color("#bb9af7"),
			warn:    lipgloss.Color("#e0af68"),
			danger:  lipgloss.Color("#f7768e"),
			text:    lipgloss.Color("#c0caf5"),
			muted:   lipgloss.Color("#565f89"),
			panelBg: lipgloss.Color("#1a1b26"),
		})
	}
	return themeFromPalette(palette{
		accent:  lipgloss.Color("#2959aa"),
		user:    lipgloss.Color("#33635c"),
		bot:     lipgloss.Color("#5a3e8e"),
		warn:    lipgloss.Color("#8f5e15"),
		danger:  lipgloss.Color("#8c4351"),
		text:    lipgloss.Color("#343b58"),
		muted:   lipgloss.Color("#9699a3"),
		panelBg: lipgloss.Color("#e1e2e7"),
	})
}

type palette struct {
	accent  lipgloss.Color
	user    lipgloss.Color
	bot     lipgloss.Color
	warn    lipgloss.Color
	danger  lipgloss.Color
	text    lipgloss.Color
	muted   lipgloss.Color
	panelBg lipgloss.Color
}

func themeFromPalette(p palette) theme {
	return theme{
		root: lipgloss.NewStyle().
			Foreground(p.text).
			Padding(0, 1),
		header: lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(p.accent).
			Padding(0, 1),
		title: lipgloss.NewStyle().
			Foreground(p.accent).
			Bold(true),
		panel: lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(p.muted).
			Padding(0, 1),
		composer: lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(p.accent).
			Padding(0, 1),
		footer: lipgloss.NewStyle().
			Foreground(p.muted).
			Padding(0, 1),
		help:        lipgloss.NewStyle().Foreground(p.muted),
		status:      lipgloss.NewStyle().Foreground(p.accent),
		errorStatus: lipgloss.NewStyle().Foreground(p.danger).Bold(true),

		userLabel:      lipgloss.NewStyle().Foreground(p.user).Bold(true),
		assistantLabel: lipgloss.NewStyle().Foreground(p.bot).Bold(true),
		selectedMark:   lipgloss.NewStyle().Foreground(p.accent).Bold(true),
		pending:        lipgloss.NewStyle().Foreground(p.muted),
		corrected:      lipgloss.NewStyle().Foreground(p.muted),
		diffChanged:    lipgloss.NewStyle().Foreground(p.warn).Bold(true).Underline(true),

		micActive: lipgloss.NewStyle().Foreground(p.danger).Bold(true),
		speaking:  lipgloss.NewStyle().Foreground(p.user).Bold(true),
		thinking:  lipgloss.NewStyle().Foreground(p.accent),

		modal: lipgloss.NewStyle().
			BorderStyle(lipgloss.ThickBorder()).
			BorderForeground(p.danger).
			Padding(1, 2),
		modalTitle: lipgloss.NewStyle().Foreground(p.danger).Bold(true),
	}
}
