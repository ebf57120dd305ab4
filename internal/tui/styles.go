package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/solarlink/solarctl/internal/telemetry"
)

// Styles contains all the lipgloss styles for the TUI.
type Styles struct {
	App lipgloss.Style

	Title    lipgloss.Style
	TitleBar lipgloss.Style
	Subtitle lipgloss.Style

	MenuItem         lipgloss.Style
	MenuItemSelected lipgloss.Style
	MenuItemDim      lipgloss.Style

	StatusOnline  lipgloss.Style
	StatusOffline lipgloss.Style

	// Dashboard cards
	Card       lipgloss.Style
	CardTitle  lipgloss.Style
	CardValue  lipgloss.Style
	Unit       lipgloss.Style
	Button     lipgloss.Style
	ButtonLive lipgloss.Style

	Label     lipgloss.Style
	Highlight lipgloss.Style
	Muted     lipgloss.Style
	Error     lipgloss.Style
	Success   lipgloss.Style
	Warning   lipgloss.Style

	Help lipgloss.Style
}

// DefaultStyles returns the default color scheme.
func DefaultStyles() Styles {
	subtle := lipgloss.AdaptiveColor{Light: "#D9DCCF", Dark: "#383838"}
	highlight := lipgloss.AdaptiveColor{Light: "#874BFD", Dark: "#7D56F4"}
	cardBorder := lipgloss.Color("#2563eb")
	cardText := lipgloss.Color("#bfdbfe")
	muted := lipgloss.AdaptiveColor{Light: "#9B9B9B", Dark: "#5C5C5C"}

	return Styles{
		App: lipgloss.NewStyle().
			Padding(1, 2),

		Title: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(highlight).
			Padding(0, 1),

		TitleBar: lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#343433", Dark: "#C1C6B2"}).
			Background(subtle).
			Padding(0, 1).
			MarginBottom(1),

		Subtitle: lipgloss.NewStyle().
			Foreground(muted),

		MenuItem: lipgloss.NewStyle(),

		MenuItemSelected: lipgloss.NewStyle().
			Foreground(highlight).
			Bold(true),

		MenuItemDim: lipgloss.NewStyle().
			Foreground(muted).
			PaddingLeft(4),

		StatusOnline: lipgloss.NewStyle().
			Foreground(lipgloss.Color(telemetry.ColorGreen)).
			Bold(true),

		StatusOffline: lipgloss.NewStyle().
			Foreground(lipgloss.Color(telemetry.ColorRed)).
			Bold(true),

		Card: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(cardBorder).
			Padding(1, 2).
			Width(30).
			Height(7).
			Align(lipgloss.Center),

		CardTitle: lipgloss.NewStyle().
			Foreground(cardText).
			Bold(true).
			MarginBottom(1),

		CardValue: lipgloss.NewStyle().
			Bold(true),

		Unit: lipgloss.NewStyle().
			Foreground(cardText),

		Button: lipgloss.NewStyle().
			Foreground(cardText).
			Border(lipgloss.NormalBorder()).
			BorderForeground(cardBorder).
			Padding(0, 2),

		ButtonLive: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#ffffff")).
			Background(lipgloss.Color(telemetry.ColorGreen)).
			Border(lipgloss.NormalBorder()).
			BorderForeground(lipgloss.Color(telemetry.ColorGreen)).
			Bold(true).
			Padding(0, 2),

		Label: lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#9B9B9B", Dark: "#626262"}).
			Width(16),

		Highlight: lipgloss.NewStyle().
			Foreground(highlight).
			Bold(true),

		Muted: lipgloss.NewStyle().
			Foreground(muted),

		Error: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B")),

		Success: lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#73F59F"}),

		Warning: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFCC00")),

		Help: lipgloss.NewStyle().
			Foreground(muted).
			MarginTop(1),
	}
}

// colored renders s in a hex colour.
func colored(s, hex string) string {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(hex)).Bold(true).Render(s)
}
