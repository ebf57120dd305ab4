package tui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/dustin/go-humanize"

	"github.com/solarlink/solarctl/internal/telemetry"
)

// BatteryBar renders a battery percentage as a bar coloured by charge band.
type BatteryBar struct {
	progress progress.Model
}

// NewBatteryBar creates a bar of the given width.
func NewBatteryBar(width int) BatteryBar {
	p := progress.New(
		progress.WithSolidFill(telemetry.ColorRed),
		progress.WithWidth(width),
		progress.WithoutPercentage(),
	)
	p.EmptyColor = "#1e3a8a"
	return BatteryBar{progress: p}
}

// View renders percent (0..100, clamped).
func (b BatteryBar) View(percent float64) string {
	clamped := telemetry.ClampPercent(percent)
	b.progress.FullColor = telemetry.BatteryLevel(percent).Color()
	return b.progress.ViewAs(clamped / 100)
}

// batteryLabel is the clamped percentage, e.g. "87%".
func batteryLabel(percent float64) string {
	return fmt.Sprintf("%s%%", humanize.Ftoa(telemetry.ClampPercent(percent)))
}
