// Package provision drives a BLE peripheral from discovery to configured:
// scan for the provisioning service, connect, write Wi-Fi credentials, and
// let go of the connection.
package provision

import (
	"context"
	stderrors "errors"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/solarlink/solarctl/internal/ble"
	"github.com/solarlink/solarctl/internal/util"
)

// State is the connection state shown to the user.
type State int

const (
	Idle State = iota
	Scanning
	Connected
	Disconnected
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Scanning:
		return "scanning"
	case Connected:
		return "connected"
	case Disconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Credentials is the Wi-Fi network to hand to the peripheral.
type Credentials struct {
	SSID       string
	Passphrase string
}

// Options configures a Session.
type Options struct {
	ServiceUUID        string
	SSIDCharUUID       string
	PassphraseCharUUID string

	// DisconnectDelay is how long after WriteBoth the connection is dropped.
	DisconnectDelay time.Duration
	// AwaitWrites starts the disconnect delay only once both writes returned.
	AwaitWrites bool
}

// DefaultOptions returns the stock GATT contract with a one second disconnect.
func DefaultOptions() Options {
	return Options{
		ServiceUUID:        ble.ServiceUUID,
		SSIDCharUUID:       ble.SSIDCharUUID,
		PassphraseCharUUID: ble.PassphraseCharUUID,
		DisconnectDelay:    time.Second,
	}
}

// Timer is the part of *time.Timer a Session uses.
type Timer interface {
	Stop() bool
}

// Session is the connect-and-provision state machine for one peripheral.
type Session struct {
	central   ble.Central
	opts      Options
	log       logrus.FieldLogger
	afterFunc func(time.Duration, func()) Timer

	mu         sync.Mutex
	state      State
	connecting bool // single-flight latch for Connect
	closed     bool
	peripheral ble.Peripheral
	timer      Timer
	listeners  []func(State)
	names      map[string]string // characteristic UUID -> log name
}

// NewSession creates an Idle session on top of central.
func NewSession(central ble.Central, opts Options, log logrus.FieldLogger) *Session {
	if opts.DisconnectDelay <= 0 {
		opts.DisconnectDelay = time.Second
	}
	return &Session{
		central: central,
		opts:    opts,
		log:     log.WithField("component", "provision"),
		afterFunc: func(d time.Duration, f func()) Timer {
			return time.AfterFunc(d, f)
		},
	}
}

// Options returns the session's configuration.
func (s *Session) Options() Options { return s.opts }

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// OnStateChange registers fn to be called after every state transition.
// fn runs on whichever goroutine caused the transition.
func (s *Session) OnStateChange(fn func(State)) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

// setLocked changes state with s.mu held. The returned func notifies
// listeners and must be called after s.mu is released.
func (s *Session) setLocked(st State) func() {
	if s.state == st {
		return func() {}
	}
	s.log.WithFields(logrus.Fields{"from": s.state, "to": st}).Debug("State change")
	s.state = st
	listeners := slices.Clone(s.listeners)
	return func() {
		for _, fn := range listeners {
			fn(st)
		}
	}
}

func (s *Session) set(st State) {
	s.mu.Lock()
	notify := s.setLocked(st)
	s.mu.Unlock()
	notify()
}

func (s *Session) current() ble.Peripheral {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peripheral
}

// Connect scans without a filter until an advertisement carries the service
// UUID, then connects and discovers all services and characteristics.
// Only the first match is used. A failed connect leaves the session
// Disconnected; there is no rescan.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	switch {
	case s.closed:
		s.mu.Unlock()
		return ErrClosed
	case s.connecting:
		s.mu.Unlock()
		return ErrBusy
	case s.state == Connected:
		s.mu.Unlock()
		return ErrAlreadyConnected
	}
	s.connecting = true
	notify := s.setLocked(Scanning)
	s.mu.Unlock()
	notify()

	defer func() {
		s.mu.Lock()
		s.connecting = false
		s.mu.Unlock()
	}()

	s.log.Info("Scanning for BLE devices...")

	found := make(chan ble.Advertisement, 1)
	var once sync.Once
	scanErr := s.central.Scan(ctx, func(adv ble.Advertisement) {
		if !adv.HasServiceUUID(s.opts.ServiceUUID) {
			return
		}
		once.Do(func() {
			if err := s.central.StopScan(); err != nil {
				s.log.WithError(err).Warn("Failed to stop scan")
			}
			found <- adv
		})
	})

	var adv ble.Advertisement
	select {
	case adv = <-found:
	default:
	}

	if adv == nil {
		s.set(Idle)
		if err := ctx.Err(); err != nil {
			s.log.WithError(err).Info("Scan cancelled")
			return err
		}
		if scanErr != nil {
			s.log.WithError(scanErr).Error("Scan error")
			return &Error{Kind: ScanError, Err: scanErr}
		}
		s.log.Warn("Scan ended without finding the provisioning service")
		return ErrNotFound
	}
	if scanErr != nil {
		s.log.WithError(scanErr).Debug("Scan returned error after match")
	}

	log := s.log.WithFields(logrus.Fields{"name": adv.LocalName(), "address": adv.Address()})
	log.Info("Found peripheral")

	p, err := s.central.Connect(ctx, adv)
	if err != nil {
		log.WithError(err).Error("Connection error")
		s.set(Disconnected)
		return &Error{Kind: ConnectionError, Err: err}
	}
	log.Info("Connected to device")

	if err := p.DiscoverAll(ctx); err != nil {
		log.WithError(err).Error("Connection error")
		if derr := p.Disconnect(); derr != nil {
			log.WithError(derr).Debug("Disconnect after failed discovery")
		}
		s.set(Disconnected)
		return &Error{Kind: ConnectionError, Err: errors.Wrap(err, "discovery")}
	}
	log.Info("Discovered services and characteristics")

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		log.Info("Session closed during connect, releasing peripheral")
		if err := p.Disconnect(); err != nil {
			log.WithError(err).Debug("Disconnect after close")
		}
		return ErrClosed
	}
	s.peripheral = p
	notify = s.setLocked(Connected)
	s.mu.Unlock()
	notify()
	return nil
}

// Disconnect releases the peripheral. Without one it does nothing.
// It also cancels a pending auto-disconnect.
func (s *Session) Disconnect() error {
	s.mu.Lock()
	s.stopTimerLocked()
	p := s.peripheral
	if p == nil {
		s.mu.Unlock()
		return nil
	}
	s.peripheral = nil
	s.mu.Unlock()

	if err := p.Disconnect(); err != nil {
		s.log.WithError(err).Error("Disconnection error")
		s.mu.Lock()
		if s.peripheral == nil && !s.closed {
			s.peripheral = p
		}
		s.mu.Unlock()
		return &Error{Kind: ConnectionError, Err: err}
	}

	s.set(Disconnected)
	s.log.Info("Disconnected")
	return nil
}

// WriteCredential base64-encodes value and writes it to char without
// waiting for an acknowledgement. Failures are logged and returned, never retried.
func (s *Session) WriteCredential(char, value string) error {
	log := s.log.WithField("char", s.charName(char))

	p := s.current()
	if p == nil {
		err := &Error{Kind: WriteError, Characteristic: char, Err: ErrNotConnected}
		log.WithError(err).Error("Failed to write to characteristic")
		return err
	}

	if err := p.WriteWithoutResponse(s.opts.ServiceUUID, char, ble.EncodeValue(value)); err != nil {
		log.WithError(err).Error("Failed to write to characteristic")
		return &Error{Kind: WriteError, Characteristic: char, Err: err}
	}

	shown := value
	if strings.EqualFold(char, s.opts.PassphraseCharUUID) {
		shown = util.Redact(value)
	}
	log.WithField("value", shown).Info("Successful write to characteristic")
	return nil
}

// WriteBatch tracks the two writes issued by WriteBoth.
type WriteBatch struct {
	done    chan struct{}
	ssidErr error
	passErr error
}

// Wait blocks until both writes have returned and reports their failures.
func (b *WriteBatch) Wait() error {
	<-b.done
	return stderrors.Join(b.ssidErr, b.passErr)
}

// Done is closed once both writes have returned.
func (b *WriteBatch) Done() <-chan struct{} { return b.done }

// WriteBoth issues the SSID and passphrase writes concurrently, in no
// particular order, and schedules a disconnect DisconnectDelay later.
// The disconnect is scheduled whatever the writes' outcome. With
// AwaitWrites the delay starts when both writes have returned; otherwise
// it starts now.
func (s *Session) WriteBoth(creds Credentials) *WriteBatch {
	b := &WriteBatch{done: make(chan struct{})}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		b.ssidErr = s.WriteCredential(s.opts.SSIDCharUUID, creds.SSID)
	}()
	go func() {
		defer wg.Done()
		b.passErr = s.WriteCredential(s.opts.PassphraseCharUUID, creds.Passphrase)
	}()
	go func() {
		wg.Wait()
		close(b.done)
	}()

	if s.opts.AwaitWrites {
		go func() {
			<-b.done
			s.scheduleDisconnect()
		}()
	} else {
		s.scheduleDisconnect()
	}
	return b
}

func (s *Session) scheduleDisconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.stopTimerLocked()
	s.log.WithField("delay", s.opts.DisconnectDelay).Debug("Scheduling disconnect")
	s.timer = s.afterFunc(s.opts.DisconnectDelay, func() {
		// failures are logged by Disconnect
		_ = s.Disconnect()
	})
}

func (s *Session) stopTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// Close tears the session down: the pending disconnect is cancelled, a held
// peripheral is released, and a connect still in flight releases its
// peripheral as soon as it arrives.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.stopTimerLocked()
	s.mu.Unlock()

	return s.Disconnect()
}

// nameCharacteristic sets the name char is logged under. It takes
// precedence over the built-in ssid and passphrase names.
func (s *Session) nameCharacteristic(char, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.names == nil {
		s.names = make(map[string]string)
	}
	s.names[strings.ToLower(char)] = name
}

func (s *Session) charName(char string) string {
	s.mu.Lock()
	name, ok := s.names[strings.ToLower(char)]
	s.mu.Unlock()
	if ok {
		return name
	}

	switch {
	case strings.EqualFold(char, s.opts.SSIDCharUUID):
		return "ssid"
	case strings.EqualFold(char, s.opts.PassphraseCharUUID):
		return "passphrase"
	default:
		return char
	}
}
