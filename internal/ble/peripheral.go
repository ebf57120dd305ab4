package ble

import (
	"context"
	"encoding/base64"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/solarlink/solarctl/internal/config"
	"github.com/solarlink/solarctl/internal/util"

	"tinygo.org/x/bluetooth"
)

// peripheral is a connected tinygo device with its discovered GATT table.
type peripheral struct {
	device  bluetooth.Device
	address string
	log     logrus.FieldLogger

	mu    sync.Mutex
	chars map[string]map[string]*bluetooth.DeviceCharacteristic // service -> char -> handle
}

func newPeripheral(device bluetooth.Device, address string, log logrus.FieldLogger) *peripheral {
	return &peripheral{
		device:  device,
		address: address,
		log:     log.WithField("address", address),
	}
}

func (p *peripheral) Address() string { return p.address }

// DiscoverAll walks every service and characteristic and caches the handles.
func (p *peripheral) DiscoverAll(ctx context.Context) error {
	config.Debugf("Discovering services...")

	services, err := p.device.DiscoverServices(nil)
	if err != nil {
		return errors.Wrap(err, "discover services")
	}

	table := make(map[string]map[string]*bluetooth.DeviceCharacteristic, len(services))
	for i := range services {
		if err := ctx.Err(); err != nil {
			return err
		}
		svc := strings.ToLower(services[i].UUID().String())
		config.Debugf("Found service: %s", svc)

		chars, err := services[i].DiscoverCharacteristics(nil)
		if err != nil {
			return errors.Wrapf(err, "discover characteristics of %s", svc)
		}
		table[svc] = make(map[string]*bluetooth.DeviceCharacteristic, len(chars))
		for j := range chars {
			uuid := strings.ToLower(chars[j].UUID().String())
			config.Debugf("Found characteristic: %s", uuid)
			table[svc][uuid] = &chars[j]
		}
	}

	p.mu.Lock()
	p.chars = table
	p.mu.Unlock()

	p.log.WithField("services", len(table)).Debug("Discovered services and characteristics")
	return nil
}

func (p *peripheral) characteristic(service, char string) (*bluetooth.DeviceCharacteristic, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.chars == nil {
		return nil, errors.New("services not discovered")
	}
	svc, ok := p.chars[strings.ToLower(service)]
	if !ok {
		return nil, errors.Errorf("service %s not found", service)
	}
	c, ok := svc[strings.ToLower(char)]
	if !ok {
		return nil, errors.Errorf("characteristic %s not found", char)
	}
	return c, nil
}

// WriteWithoutResponse decodes the base64 value and writes the raw bytes.
func (p *peripheral) WriteWithoutResponse(service, char, value string) error {
	c, err := p.characteristic(service, char)
	if err != nil {
		return err
	}
	data, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return errors.Wrap(err, "value is not base64")
	}

	config.Debugf("Writing %d bytes to %s", len(data), char)
	if config.Verbose {
		config.Debugf("\n%s", util.HexDump(data))
	}
	if _, err := c.WriteWithoutResponse(data); err != nil {
		return errors.Wrapf(err, "write %s", char)
	}
	return nil
}

// Monitor enables notifications and hands each value to fn as base64.
func (p *peripheral) Monitor(service, char string, fn func(value string, err error)) (Subscription, error) {
	c, err := p.characteristic(service, char)
	if err != nil {
		return nil, err
	}

	err = c.EnableNotifications(func(buf []byte) {
		config.Debugf("Notification received: %d bytes", len(buf))
		if util.IsTextData(buf) {
			config.Debugf("Notification text: %s", string(buf))
		}
		fn(base64.StdEncoding.EncodeToString(buf), nil)
	})
	if err != nil {
		return nil, errors.Wrapf(err, "enable notifications on %s", char)
	}
	return &subscription{char: c, log: p.log}, nil
}

func (p *peripheral) Disconnect() error {
	if err := p.device.Disconnect(); err != nil {
		return errors.Wrap(err, "disconnect")
	}
	p.log.Debug("Disconnected")
	return nil
}

type subscription struct {
	once sync.Once
	char *bluetooth.DeviceCharacteristic
	log  logrus.FieldLogger
}

// Remove disables notifications. Passing a nil callback is how tinygo stops them.
func (s *subscription) Remove() {
	s.once.Do(func() {
		if err := s.char.EnableNotifications(nil); err != nil {
			s.log.WithError(err).Debug("Disable notifications")
		}
	})
}
