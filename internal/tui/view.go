package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/solarlink/solarctl/internal/provision"
	"github.com/solarlink/solarctl/internal/telemetry"
)

// View renders the current screen.
func (m Model) View() string {
	var content string

	switch m.view {
	case ViewMain:
		content = m.viewMain()
	case ViewProvision:
		content = m.viewProvision()
	case ViewEcho:
		content = m.viewEcho()
	case ViewDashboard:
		content = m.viewDashboard()
	default:
		content = "Unknown view"
	}

	helpView := m.styles.Help.Render(m.help.View(m.keys))

	return m.styles.App.Render(
		content + "\n" + helpView,
	)
}

func (m Model) viewMain() string {
	var b strings.Builder

	b.WriteString(m.styles.Title.Render("Solar Link"))
	b.WriteString("\n")
	b.WriteString(m.styles.Subtitle.Render("Wi-Fi provisioning and inverter dashboard"))
	b.WriteString("\n\n")

	if m.errorMsg != "" {
		b.WriteString(m.styles.Error.Render(m.errorMsg))
		b.WriteString("\n\n")
	}

	for i, item := range m.menuItems {
		title := item.Title
		if m.unavailable(item.View) != nil {
			title += " (unavailable)"
		}

		if i == m.cursor {
			b.WriteString(m.styles.MenuItemSelected.Render("> " + title))
		} else {
			b.WriteString(m.styles.MenuItem.Render("  " + title))
		}
		b.WriteString("\n")
		b.WriteString(m.styles.MenuItemDim.Render(item.Description))
		b.WriteString("\n\n")
	}

	return b.String()
}

// renderTitleBar renders a title with the Bluetooth connection state.
func (m Model) renderTitleBar(title string) string {
	parts := []string{m.styles.Title.Render(title)}

	switch {
	case m.bleState == provision.Scanning || m.connecting:
		parts = append(parts, m.spinner.View()+" "+m.styles.Warning.Render("Scanning..."))
	case m.bleState == provision.Connected:
		parts = append(parts, m.styles.Success.Render("● Connected"))
	case m.bleState == provision.Disconnected:
		parts = append(parts, m.styles.StatusOffline.Render("○ Disconnected"))
	default:
		parts = append(parts, m.styles.Muted.Render("○ Not connected"))
	}

	return strings.Join(parts, "  ")
}

func (m Model) viewProvision() string {
	var b strings.Builder

	b.WriteString(m.renderTitleBar("Provision Wi-Fi"))
	b.WriteString("\n\n")

	for _, in := range m.inputs {
		b.WriteString(in.View())
		b.WriteString("\n")
	}
	b.WriteString("\n")

	if m.sending {
		b.WriteString(m.spinner.View() + " ")
	}
	b.WriteString(m.renderMessages())

	return b.String()
}

func (m Model) viewEcho() string {
	var b strings.Builder

	b.WriteString(m.renderTitleBar("Echo"))
	b.WriteString("\n\n")

	for _, in := range m.inputs {
		b.WriteString(in.View())
		b.WriteString("\n")
	}
	b.WriteString("\n")

	received := m.styles.Muted.Render("(nothing yet)")
	if m.received != "" {
		received = m.styles.Highlight.Render(quote(m.received))
	}
	b.WriteString(m.styles.Label.Render("Received:") + " " + received + "\n\n")

	b.WriteString(m.renderMessages())

	return b.String()
}

func (m Model) viewDashboard() string {
	var b strings.Builder

	b.WriteString(m.styles.TitleBar.Render("Solar Inverter"))
	b.WriteString("\n")

	t := m.telemetry
	now := time.Now()

	status := t.Status
	if status == "" {
		status = "Unknown"
	}
	statusCard := m.renderCard("Status",
		m.statusStyle(t.Status).Render(status),
		updatedAt(t.StatusAt, now))

	batteryCard := m.renderCard("Battery",
		colored(batteryLabel(t.BatteryPercent), telemetry.BatteryLevel(t.BatteryPercent).Color())+"\n"+
			m.battery.View(t.BatteryPercent),
		updatedAt(t.BatteryAt, now))

	powerCard := m.renderCard("Power",
		m.styles.CardValue.Render(humanize.Ftoa(t.PowerAmps))+" "+m.styles.Unit.Render("Amps"),
		updatedAt(t.PowerAt, now))

	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, statusCard, batteryCard, powerCard))
	b.WriteString("\n\n")

	b.WriteString(m.renderRelay())
	b.WriteString("\n\n")
	b.WriteString(m.renderMessages())

	return b.String()
}

func (m Model) statusStyle(status string) lipgloss.Style {
	if telemetry.IsOnline(status) {
		return m.styles.StatusOnline
	}
	return m.styles.StatusOffline
}

func (m Model) renderCard(title, value, footer string) string {
	body := m.styles.CardTitle.Render(title) + "\n" +
		value + "\n" +
		m.styles.Muted.Render(footer)
	return m.styles.Card.Render(body)
}

func (m Model) renderRelay() string {
	on, off := m.styles.Button, m.styles.Button
	if m.relayOn {
		on = m.styles.ButtonLive
	} else {
		off = m.styles.ButtonLive
	}

	label := "Relay"
	if m.relayPending > 0 {
		label = m.spinner.View() + " Relay"
	}

	return lipgloss.JoinHorizontal(lipgloss.Center,
		m.styles.Label.Render(label),
		on.Render("ON"),
		" ",
		off.Render("OFF"),
	)
}

func (m Model) renderMessages() string {
	var b strings.Builder
	if m.errorMsg != "" {
		b.WriteString(m.styles.Error.Render(m.errorMsg))
		b.WriteString("\n")
	}
	if m.statusMsg != "" {
		b.WriteString(m.styles.Muted.Render(m.statusMsg))
		b.WriteString("\n")
	}
	return b.String()
}

func updatedAt(at, now time.Time) string {
	if at.IsZero() {
		return "waiting for data"
	}
	return fmt.Sprintf("updated %s", humanize.RelTime(at, now, "ago", "from now"))
}
