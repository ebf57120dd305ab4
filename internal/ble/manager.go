package ble

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"tinygo.org/x/bluetooth"
)

const stopRetryInterval = 50 * time.Millisecond

// Manager owns the host BLE adapter. Create one at program start, pass it to
// whatever needs a Central, and Close it on the way out.
type Manager struct {
	adapter *bluetooth.Adapter
	log     logrus.FieldLogger

	mu       sync.Mutex
	enabled  bool
	scanning bool
}

// NewManager wraps adapter. A nil adapter means bluetooth.DefaultAdapter.
func NewManager(adapter *bluetooth.Adapter, log logrus.FieldLogger) *Manager {
	if adapter == nil {
		adapter = bluetooth.DefaultAdapter
	}
	return &Manager{adapter: adapter, log: log.WithField("component", "ble")}
}

// Enable powers up the adapter. Safe to call more than once.
func (m *Manager) Enable() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.enabled {
		return nil
	}
	if err := m.adapter.Enable(); err != nil {
		return errors.WithMessage(err, "failed to enable bluetooth adapter")
	}
	m.enabled = true
	m.log.Debug("Adapter enabled")
	return nil
}

// Scan implements Central. It runs an unfiltered scan.
func (m *Manager) Scan(ctx context.Context, fn func(Advertisement)) error {
	// A stop issued before the adapter starts scanning is lost.
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := m.Enable(); err != nil {
		return err
	}

	m.mu.Lock()
	if m.scanning {
		m.mu.Unlock()
		return errors.New("scan already in progress")
	}
	m.scanning = true
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.scanning = false
		m.mu.Unlock()
	}()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
		case <-done:
			return
		}
		m.log.Debug("Scan cancelled")

		// ctx may end before adapter.Scan is running, so keep stopping
		// until Scan returns.
		retry := time.NewTicker(stopRetryInterval)
		defer retry.Stop()
		for {
			err := m.adapter.StopScan()
			if err == nil {
				return
			}
			m.log.WithError(err).Debug("StopScan after cancel")
			select {
			case <-done:
				return
			case <-retry.C:
			}
		}
	}()

	m.log.Debug("Scanning for BLE devices...")
	err := m.adapter.Scan(func(_ *bluetooth.Adapter, result bluetooth.ScanResult) {
		adv := advertisement{result: result}
		if name := adv.LocalName(); name != "" {
			m.log.WithFields(logrus.Fields{"name": name, "address": adv.Address(), "rssi": adv.RSSI()}).Debug("Found device")
		}
		fn(adv)
	})
	if err != nil {
		return errors.Wrap(err, "scan")
	}
	return ctx.Err()
}

// StopScan implements Central.
func (m *Manager) StopScan() error {
	if err := m.adapter.StopScan(); err != nil {
		return errors.Wrap(err, "stop scan")
	}
	return nil
}

// Connect implements Central. adv must come from this Manager's Scan.
func (m *Manager) Connect(ctx context.Context, adv Advertisement) (Peripheral, error) {
	a, ok := adv.(advertisement)
	if !ok {
		return nil, errors.Errorf("advertisement %T was not produced by this adapter", adv)
	}

	type result struct {
		device bluetooth.Device
		err    error
	}
	ch := make(chan result, 1)

	m.log.WithField("address", a.Address()).Info("Connecting")
	go func() {
		device, err := m.adapter.Connect(a.result.Address, bluetooth.ConnectionParams{})
		ch <- result{device, err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			return nil, errors.Wrapf(r.err, "connect to %s", a.Address())
		}
		return newPeripheral(r.device, a.Address(), m.log), nil
	case <-ctx.Done():
		// The stack may still complete the connection; release it when it does.
		go func() {
			if r := <-ch; r.err == nil {
				_ = r.device.Disconnect()
			}
		}()
		return nil, ctx.Err()
	}
}

// Close stops any scan in progress.
func (m *Manager) Close() error {
	m.mu.Lock()
	scanning := m.scanning
	m.mu.Unlock()
	if scanning {
		return m.StopScan()
	}
	return nil
}

// advertisement adapts a tinygo scan result.
type advertisement struct {
	result bluetooth.ScanResult
}

func (a advertisement) Address() string   { return a.result.Address.String() }
func (a advertisement) LocalName() string { return a.result.LocalName() }
func (a advertisement) RSSI() int16       { return a.result.RSSI }

func (a advertisement) HasServiceUUID(uuid string) bool {
	u, err := bluetooth.ParseUUID(strings.ToLower(uuid))
	if err != nil {
		return false
	}
	return a.result.HasServiceUUID(u)
}
