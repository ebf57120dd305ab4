package commands

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/solarlink/solarctl/internal/telemetry"
)

// Status polls every field once and prints the result. Fields that failed
// keep their initial value and are reported after the table. It fails only
// when nothing could be fetched.
func Status(ctx context.Context, p *telemetry.Poller, out io.Writer) error {
	err := p.PollOnce(ctx)
	snap := p.Snapshot()
	PrintTelemetry(out, snap, time.Now())
	if err == nil {
		return nil
	}
	if snap.StatusAt.IsZero() && snap.BatteryAt.IsZero() && snap.PowerAt.IsZero() {
		return fmt.Errorf("no telemetry fetched: %w", err)
	}
	fmt.Fprintf(out, "\nSome values could not be fetched: %v\n", err)
	return nil
}

// Watch runs the poller and prints one line per update until ctx is done.
func Watch(ctx context.Context, p *telemetry.Poller, interval time.Duration, out io.Writer) error {
	updates := make(chan telemetry.Field, 16)
	p.OnUpdate(func(f telemetry.Field, _ telemetry.Telemetry) {
		select {
		case updates <- f:
		default:
		}
	})

	fmt.Fprintf(out, "Polling every %s, Ctrl+C to stop\n", interval)

	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	for {
		select {
		case f := <-updates:
			fmt.Fprintln(out, FormatUpdate(f, p.Snapshot(), time.Now()))
		case err := <-done:
			return err
		}
	}
}

// Relay switches the inverter relay. action is on, off or toggle.
func Relay(ctx context.Context, r *telemetry.Relay, action string, out io.Writer) error {
	var cmd *telemetry.Command
	switch action {
	case "on":
		cmd = r.Begin(true)
	case "off":
		cmd = r.Begin(false)
	case "toggle":
		cmd = r.BeginToggle()
	default:
		return fmt.Errorf("unknown relay action %q", action)
	}

	if err := r.Commit(ctx, cmd); err != nil {
		fmt.Fprintf(out, "Error: %s\n", cmd.FailureMessage())
		return err
	}
	fmt.Fprintln(out, cmd.SuccessMessage())
	return nil
}

// PrintTelemetry writes a telemetry snapshot as a table.
func PrintTelemetry(out io.Writer, t telemetry.Telemetry, now time.Time) {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Inverter status:\t%s\t%s\n", statusText(t.Status), since(t.StatusAt, now))
	fmt.Fprintf(tw, "Battery level:\t%s%% (%s)\t%s\n",
		humanize.Ftoa(telemetry.ClampPercent(t.BatteryPercent)),
		telemetry.BatteryLevel(t.BatteryPercent),
		since(t.BatteryAt, now))
	fmt.Fprintf(tw, "Power consumption:\t%s Amps\t%s\n", humanize.Ftoa(t.PowerAmps), since(t.PowerAt, now))
	tw.Flush()
}

// FormatUpdate renders one field of t as a log-style line.
func FormatUpdate(f telemetry.Field, t telemetry.Telemetry, now time.Time) string {
	ts := now.Format("15:04:05")
	switch f {
	case telemetry.FieldStatus:
		return fmt.Sprintf("%s  status   %s", ts, statusText(t.Status))
	case telemetry.FieldBattery:
		return fmt.Sprintf("%s  battery  %s%%", ts, humanize.Ftoa(telemetry.ClampPercent(t.BatteryPercent)))
	default:
		return fmt.Sprintf("%s  power    %s Amps", ts, humanize.Ftoa(t.PowerAmps))
	}
}

func statusText(s string) string {
	if s == "" {
		return "Unknown"
	}
	return s
}

func since(at, now time.Time) string {
	if at.IsZero() {
		return "(never updated)"
	}
	return "(" + humanize.RelTime(at, now, "ago", "from now") + ")"
}
