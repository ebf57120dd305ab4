package tui

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/pkg/errors"

	"github.com/solarlink/solarctl/internal/provision"
	"github.com/solarlink/solarctl/internal/telemetry"
)

// View represents different screens in the TUI.
type View int

const (
	ViewMain View = iota
	ViewProvision
	ViewEcho
	ViewDashboard
)

// MenuItem represents a menu option.
type MenuItem struct {
	Title       string
	Description string
	View        View
}

// Deps builds the components behind each screen. Every screen visit gets
// fresh components, torn down when the screen is left. A nil factory
// disables its screen; the matching error says why.
type Deps struct {
	NewSession func() *provision.Session
	NewEcho    func() *provision.Echo
	NewPoller  func() *telemetry.Poller
	NewRelay   func() *telemetry.Relay

	ScanTimeout time.Duration

	BLEErr   error
	CloudErr error
}

// Model is the main Bubbletea model for the TUI.
type Model struct {
	// State
	view          View
	cursor        int
	cursorHistory map[View]int
	menuItems     []MenuItem
	width         int
	height        int

	deps   Deps
	events chan tea.Msg

	screenCtx    context.Context
	screenCancel context.CancelFunc

	// BLE screens
	session    *provision.Session
	echo       *provision.Echo
	bleState   provision.State
	connecting bool
	sending    bool
	inputs     []textinput.Model
	focus      int // index into inputs, -1 when no field has focus
	received   string
	errorMsg   string
	statusMsg  string

	// Dashboard
	poller       *telemetry.Poller
	relay        *telemetry.Relay
	telemetry    telemetry.Telemetry
	relayOn      bool
	relayPending int
	battery      BatteryBar

	// Components
	keys    KeyMap
	help    help.Model
	spinner spinner.Model
	styles  Styles
}

// --- Custom messages for async operations ---

// eventMsg wraps a message delivered by a component listener.
type eventMsg struct{ msg tea.Msg }

// stateMsg reports a session state change.
type stateMsg struct {
	session *provision.Session
	state   provision.State
}

// connectMsg signals a connect attempt finished.
type connectMsg struct {
	session *provision.Session
	err     error
}

// writeMsg signals both credential writes returned.
type writeMsg struct {
	session *provision.Session
	err     error
}

// disconnectMsg signals a manual disconnect finished.
type disconnectMsg struct {
	session *provision.Session
	err     error
}

// echoReceivedMsg delivers a decoded notification.
type echoReceivedMsg struct {
	echo  *provision.Echo
	value string
}

// echoSentMsg signals an echo write returned.
type echoSentMsg struct {
	echo  *provision.Echo
	value string
	err   error
}

// telemetryMsg delivers a poller update.
type telemetryMsg struct {
	poller *telemetry.Poller
	field  telemetry.Field
	snap   telemetry.Telemetry
}

// relayMsg signals a relay command finished.
type relayMsg struct {
	relay *telemetry.Relay
	cmd   *telemetry.Command
	err   error
}

// NewModel creates a new TUI model.
func NewModel(deps Deps) Model {
	h := help.New()
	h.ShowAll = false

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#7D56F4"))

	if deps.ScanTimeout <= 0 {
		deps.ScanTimeout = 30 * time.Second
	}

	m := Model{
		view:          ViewMain,
		cursorHistory: make(map[View]int),
		deps:          deps,
		events:        make(chan tea.Msg, 64),
		focus:         -1,
		telemetry:     telemetry.Initial(),
		battery:       NewBatteryBar(24),
		keys:          DefaultKeyMap(),
		help:          h,
		spinner:       s,
		styles:        DefaultStyles(),
	}

	m.menuItems = []MenuItem{
		{
			Title:       "Provision",
			Description: "Send Wi-Fi credentials to a device over Bluetooth",
			View:        ViewProvision,
		},
		{
			Title:       "Echo",
			Description: "Write a value and watch the device echo it back",
			View:        ViewEcho,
		},
		{
			Title:       "Dashboard",
			Description: "Solar inverter status, battery, power and relay",
			View:        ViewDashboard,
		},
	}

	return m
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(waitForEvent(m.events), m.spinner.Tick)
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case eventMsg:
		next, cmd := m.Update(msg.msg)
		return next, tea.Batch(cmd, waitForEvent(m.events))

	case stateMsg:
		if msg.session != m.activeSession() {
			return m, nil
		}
		m.bleState = msg.state
		switch msg.state {
		case provision.Connected:
			m.errorMsg = ""
			m.statusMsg = "Connected"
		case provision.Disconnected:
			m.sending = false
			m.statusMsg = "Disconnected. Press 'c' to reconnect"
		}
		return m, nil

	case connectMsg:
		if msg.session != m.activeSession() {
			return m, nil
		}
		m.connecting = false
		if msg.err != nil {
			m.errorMsg = connectError(msg.err)
			m.statusMsg = ""
			return m, nil
		}
		if m.view == ViewProvision {
			m.statusMsg = "Connected. Enter SSID and passphrase, then press enter"
			m.setFocus(0)
		} else {
			m.statusMsg = "Connected. Type a value and press enter"
			m.setFocus(0)
		}
		return m, textinput.Blink

	case writeMsg:
		if msg.session != m.session {
			return m, nil
		}
		if msg.err != nil {
			m.errorMsg = "Write failed: " + msg.err.Error()
			return m, nil
		}
		m.statusMsg = "Credentials sent. Disconnecting..."
		return m, nil

	case disconnectMsg:
		if msg.session != m.activeSession() {
			return m, nil
		}
		if msg.err != nil {
			m.errorMsg = "Disconnect failed: " + msg.err.Error()
		}
		return m, nil

	case echoReceivedMsg:
		if msg.echo != m.echo {
			return m, nil
		}
		m.received = msg.value
		return m, nil

	case echoSentMsg:
		if msg.echo != m.echo {
			return m, nil
		}
		m.sending = false
		if msg.err != nil {
			m.errorMsg = "Send failed: " + msg.err.Error()
			return m, nil
		}
		m.errorMsg = ""
		m.statusMsg = "Sent " + quote(msg.value)
		return m, nil

	case telemetryMsg:
		if msg.poller != m.poller {
			return m, nil
		}
		m.telemetry = msg.snap
		return m, nil

	case relayMsg:
		if msg.relay != m.relay {
			return m, nil
		}
		m.relayPending--
		m.relayOn = m.relay.IsOn()
		if msg.err != nil {
			m.errorMsg = msg.cmd.FailureMessage()
			m.statusMsg = ""
			return m, nil
		}
		m.errorMsg = ""
		m.statusMsg = msg.cmd.SuccessMessage()
		return m, nil
	}

	return m.updateFocusedInput(msg)
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.focus >= 0 {
		return m.handleInputKey(msg)
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		if m.view == ViewMain || msg.String() == "ctrl+c" {
			m.teardown()
			return m, tea.Quit
		}
		return m.goBack()

	case key.Matches(msg, m.keys.Back):
		return m.goBack()

	case key.Matches(msg, m.keys.Left) && m.view != ViewMain:
		return m.goBack()

	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
		return m, nil
	}

	switch m.view {
	case ViewMain:
		return m.handleMainKey(msg)
	case ViewProvision, ViewEcho:
		return m.handleBLEKey(msg)
	case ViewDashboard:
		return m.handleDashboardKey(msg)
	}
	return m, nil
}

func (m Model) handleMainKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Up):
		m.cursor--
		if m.cursor < 0 {
			m.cursor = len(m.menuItems) - 1
		}
	case key.Matches(msg, m.keys.Down):
		m.cursor++
		if m.cursor >= len(m.menuItems) {
			m.cursor = 0
		}
	case key.Matches(msg, m.keys.Select), key.Matches(msg, m.keys.Right):
		return m.handleSelect()
	}
	return m, nil
}

func (m Model) handleSelect() (tea.Model, tea.Cmd) {
	if m.cursor >= len(m.menuItems) {
		return m, nil
	}
	m.cursorHistory[m.view] = m.cursor
	target := m.menuItems[m.cursor].View

	if err := m.unavailable(target); err != nil {
		m.errorMsg = err.Error()
		return m, nil
	}
	m.errorMsg = ""
	m.statusMsg = ""
	m.view = target
	m.cursor = m.cursorHistory[target]
	cmd := m.enterScreen(target)
	return m, cmd
}

func (m Model) goBack() (tea.Model, tea.Cmd) {
	if m.view == ViewMain {
		m.teardown()
		return m, tea.Quit
	}
	m.cursorHistory[m.view] = m.cursor
	m.teardown()
	m.view = ViewMain
	m.cursor = m.cursorHistory[ViewMain]
	m.errorMsg = ""
	m.statusMsg = ""
	return m, nil
}

func (m Model) handleBLEKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	s := m.activeSession()
	switch {
	case key.Matches(msg, m.keys.Connect):
		if m.connecting || m.bleState == provision.Connected || m.bleState == provision.Scanning {
			return m, nil
		}
		m.connecting = true
		m.errorMsg = ""
		m.statusMsg = "Scanning... (Bluetooth must be enabled)"
		return m, tea.Batch(connectCmd(m.screenCtx, m.deps.ScanTimeout, s, m.echo), m.spinner.Tick)

	case key.Matches(msg, m.keys.Disconnect):
		return m, disconnectCmd(s, m.echo)

	case key.Matches(msg, m.keys.NextInput):
		m.setFocus(0)
		return m, textinput.Blink

	case key.Matches(msg, m.keys.Select):
		return m.submit()
	}
	return m, nil
}

func (m Model) handleInputKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case msg.String() == "ctrl+c":
		m.teardown()
		return m, tea.Quit

	case key.Matches(msg, m.keys.Back):
		m.setFocus(-1)
		return m, nil

	case key.Matches(msg, m.keys.NextInput):
		next := m.focus + 1
		if next >= len(m.inputs) {
			next = -1
		}
		m.setFocus(next)
		return m, textinput.Blink

	case key.Matches(msg, m.keys.Select):
		return m.submit()
	}

	var cmd tea.Cmd
	m.inputs[m.focus], cmd = m.inputs[m.focus].Update(msg)
	return m, cmd
}

func (m Model) updateFocusedInput(msg tea.Msg) (tea.Model, tea.Cmd) {
	if m.focus < 0 || m.focus >= len(m.inputs) {
		return m, nil
	}
	var cmd tea.Cmd
	m.inputs[m.focus], cmd = m.inputs[m.focus].Update(msg)
	return m, cmd
}

func (m Model) submit() (tea.Model, tea.Cmd) {
	if m.bleState != provision.Connected {
		m.errorMsg = "Not connected. Press esc, then 'c' to connect"
		return m, nil
	}

	switch m.view {
	case ViewProvision:
		if m.sending {
			return m, nil
		}
		creds := provision.Credentials{
			SSID:       m.inputs[0].Value(),
			Passphrase: m.inputs[1].Value(),
		}
		if creds.SSID == "" {
			m.errorMsg = "SSID is required"
			return m, nil
		}
		m.sending = true
		m.errorMsg = ""
		m.statusMsg = "Sending credentials..."
		m.setFocus(-1)
		return m, writeCmd(m.session, creds)

	case ViewEcho:
		value := m.inputs[0].Value()
		m.inputs[0].SetValue("")
		m.sending = true
		return m, echoSendCmd(m.echo, value)
	}
	return m, nil
}

func (m Model) handleDashboardKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	var cmd *telemetry.Command
	switch {
	case key.Matches(msg, m.keys.RelayOn):
		cmd = m.relay.Begin(true)
	case key.Matches(msg, m.keys.RelayOff):
		cmd = m.relay.Begin(false)
	case key.Matches(msg, m.keys.Toggle), key.Matches(msg, m.keys.Select):
		cmd = m.relay.BeginToggle()
	default:
		return m, nil
	}
	m.relayOn = m.relay.IsOn()
	m.relayPending++
	return m, relayCmd(m.screenCtx, m.relay, cmd)
}

// enterScreen builds the components for v and wires their listeners.
func (m *Model) enterScreen(v View) tea.Cmd {
	m.screenCtx, m.screenCancel = context.WithCancel(context.Background())
	emit := emitter(m.screenCtx, m.events)

	switch v {
	case ViewProvision:
		m.session = m.deps.NewSession()
		m.watchSession(m.session, emit)
		m.inputs = credentialInputs()
		m.statusMsg = "Press 'c' to connect. Bluetooth must be enabled"

	case ViewEcho:
		m.echo = m.deps.NewEcho()
		m.watchSession(m.echo.Session(), emit)
		e := m.echo
		e.OnReceive(func(value string) {
			emit(echoReceivedMsg{echo: e, value: value})
		})
		m.inputs = echoInputs()
		m.statusMsg = "Press 'c' to connect. Bluetooth must be enabled"

	case ViewDashboard:
		m.poller = m.deps.NewPoller()
		m.relay = m.deps.NewRelay()
		m.telemetry = m.poller.Snapshot()
		m.relayOn = m.relay.IsOn()
		p := m.poller
		p.OnUpdate(func(f telemetry.Field, snap telemetry.Telemetry) {
			emit(telemetryMsg{poller: p, field: f, snap: snap})
		})
		return runPollerCmd(m.screenCtx, p)
	}
	return nil
}

func (m *Model) watchSession(s *provision.Session, emit func(tea.Msg)) {
	m.bleState = s.State()
	s.OnStateChange(func(st provision.State) {
		emit(stateMsg{session: s, state: st})
	})
}

// teardown cancels the screen context and releases its components.
func (m *Model) teardown() {
	if m.screenCancel != nil {
		m.screenCancel()
		m.screenCancel = nil
	}
	if m.session != nil {
		_ = m.session.Close()
	}
	if m.echo != nil {
		_ = m.echo.Close()
	}
	m.session = nil
	m.echo = nil
	m.poller = nil
	m.relay = nil
	m.inputs = nil
	m.focus = -1
	m.bleState = provision.Idle
	m.connecting = false
	m.sending = false
	m.received = ""
	m.relayPending = 0
	m.telemetry = telemetry.Initial()
}

func (m *Model) setFocus(i int) {
	if i >= len(m.inputs) {
		i = -1
	}
	for j := range m.inputs {
		if j == i {
			m.inputs[j].Focus()
		} else {
			m.inputs[j].Blur()
		}
	}
	m.focus = i
}

func (m Model) activeSession() *provision.Session {
	if m.echo != nil {
		return m.echo.Session()
	}
	return m.session
}

func (m Model) unavailable(v View) error {
	switch v {
	case ViewProvision, ViewEcho:
		if m.deps.NewSession == nil || m.deps.NewEcho == nil {
			return orDefault(m.deps.BLEErr, "bluetooth unavailable")
		}
	case ViewDashboard:
		if m.deps.NewPoller == nil || m.deps.NewRelay == nil {
			return orDefault(m.deps.CloudErr, "cloud unavailable")
		}
	}
	return nil
}

func orDefault(err error, msg string) error {
	if err != nil {
		return err
	}
	return errors.New(msg)
}

func credentialInputs() []textinput.Model {
	ssid := textinput.New()
	ssid.Placeholder = "Network name"
	ssid.Prompt = "SSID:       "
	ssid.CharLimit = 32

	pass := textinput.New()
	pass.Placeholder = "Passphrase"
	pass.Prompt = "Passphrase: "
	pass.EchoMode = textinput.EchoPassword
	pass.EchoCharacter = '•'
	pass.CharLimit = 63

	return []textinput.Model{ssid, pass}
}

func echoInputs() []textinput.Model {
	v := textinput.New()
	v.Placeholder = "Value to send"
	v.Prompt = "Send: "
	return []textinput.Model{v}
}

func connectError(err error) string {
	switch {
	case provision.IsKind(err, provision.ScanError):
		return "Scan failed: " + err.Error()
	case provision.IsKind(err, provision.ConnectionError):
		return "Connection failed: " + err.Error()
	case provision.IsKind(err, provision.NotificationError):
		return "Subscribe failed: " + err.Error()
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, provision.ErrNotFound) {
		return "No device found. Is it powered and advertising?"
	}
	return err.Error()
}

func quote(s string) string {
	return "\"" + s + "\""
}
