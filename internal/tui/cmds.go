package tui

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/solarlink/solarctl/internal/provision"
	"github.com/solarlink/solarctl/internal/telemetry"
)

// waitForEvent blocks until a listener emits and wraps the result.
func waitForEvent(ch <-chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		return eventMsg{msg: <-ch}
	}
}

// emitter returns a send func that gives up once ctx is done, so listeners
// of a torn-down screen never block.
func emitter(ctx context.Context, ch chan<- tea.Msg) func(tea.Msg) {
	return func(msg tea.Msg) {
		if ctx.Err() != nil {
			return
		}
		select {
		case ch <- msg:
		case <-ctx.Done():
		}
	}
}

func connectCmd(ctx context.Context, timeout time.Duration, s *provision.Session, e *provision.Echo) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		var err error
		if e != nil {
			err = e.Connect(ctx)
		} else {
			err = s.Connect(ctx)
		}
		return connectMsg{session: s, err: err}
	}
}

func disconnectCmd(s *provision.Session, e *provision.Echo) tea.Cmd {
	return func() tea.Msg {
		var err error
		if e != nil {
			err = e.Disconnect()
		} else {
			err = s.Disconnect()
		}
		return disconnectMsg{session: s, err: err}
	}
}

func writeCmd(s *provision.Session, creds provision.Credentials) tea.Cmd {
	return func() tea.Msg {
		return writeMsg{session: s, err: s.WriteBoth(creds).Wait()}
	}
}

func echoSendCmd(e *provision.Echo, value string) tea.Cmd {
	return func() tea.Msg {
		return echoSentMsg{echo: e, value: value, err: e.Send(value)}
	}
}

func relayCmd(ctx context.Context, r *telemetry.Relay, cmd *telemetry.Command) tea.Cmd {
	return func() tea.Msg {
		return relayMsg{relay: r, cmd: cmd, err: r.Commit(ctx, cmd)}
	}
}

// runPollerCmd runs the poller until the screen context ends. Updates
// arrive through the poller's listener, so the command itself yields nothing.
func runPollerCmd(ctx context.Context, p *telemetry.Poller) tea.Cmd {
	return func() tea.Msg {
		_ = p.Run(ctx)
		return nil
	}
}
