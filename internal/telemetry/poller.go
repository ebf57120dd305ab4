// Package telemetry keeps a live view of the inverter by polling its virtual
// pins on the broker, and drives its relay.
package telemetry

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cast"
	"golang.org/x/sync/errgroup"

	"github.com/solarlink/solarctl/internal/config"
)

// PinReader reads a virtual pin's raw text value.
type PinReader interface {
	Get(ctx context.Context, pin string) (string, error)
}

// Field is one polled quantity.
type Field string

const (
	FieldStatus  Field = "status"
	FieldBattery Field = "battery"
	FieldPower   Field = "power"
)

// Fields lists every polled field.
var Fields = []Field{FieldStatus, FieldBattery, FieldPower}

// Telemetry is the last known state of the inverter.
type Telemetry struct {
	Status         string
	BatteryPercent float64
	PowerAmps      float64

	StatusAt  time.Time
	BatteryAt time.Time
	PowerAt   time.Time
}

// Initial is the telemetry shown before the first successful poll.
func Initial() Telemetry {
	return Telemetry{Status: "Offline"}
}

// Poller polls status, battery and power on independent timers.
type Poller struct {
	src      PinReader
	pins     config.PinsConfig
	interval time.Duration
	log      logrus.FieldLogger
	now      func() time.Time

	mu        sync.Mutex
	current   Telemetry
	listeners []func(Field, Telemetry)
}

// NewPoller creates a poller. Each field is fetched every interval.
func NewPoller(src PinReader, pins config.PinsConfig, interval time.Duration, log logrus.FieldLogger) *Poller {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Poller{
		src:      src,
		pins:     pins,
		interval: interval,
		log:      log.WithField("component", "telemetry"),
		now:      time.Now,
		current:  Initial(),
	}
}

// Interval is the time between fetches of one field.
func (p *Poller) Interval() time.Duration { return p.interval }

// Snapshot returns the current telemetry.
func (p *Poller) Snapshot() Telemetry {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// OnUpdate registers fn to be called after a field changes.
func (p *Poller) OnUpdate(fn func(Field, Telemetry)) {
	p.mu.Lock()
	p.listeners = append(p.listeners, fn)
	p.mu.Unlock()
}

// Run starts one ticker per field and blocks until ctx is done. The first
// fetch happens one interval after Run starts. Failed fetches keep the
// previous value and are never retried early.
func (p *Poller) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, f := range Fields {
		g.Go(func() error {
			ticker := time.NewTicker(p.interval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					// failures are logged and the loop carries on
					_ = p.Fetch(ctx, f)
				}
			}
		})
	}
	return g.Wait()
}

// PollOnce fetches every field once, concurrently. It returns the first
// failure, after all fetches have finished.
func (p *Poller) PollOnce(ctx context.Context) error {
	var g errgroup.Group
	for _, f := range Fields {
		g.Go(func() error { return p.Fetch(ctx, f) })
	}
	return g.Wait()
}

// Fetch performs one GET for field and stores the result on success.
func (p *Poller) Fetch(ctx context.Context, field Field) error {
	pin := p.pin(field)
	log := p.log.WithFields(logrus.Fields{"field": field, "pin": pin})

	raw, err := p.src.Get(ctx, pin)
	if err != nil {
		if ctx.Err() == nil {
			log.WithError(err).Warnf("Failed to update %s", field)
		}
		return fmt.Errorf("fetch %s: %w", field, err)
	}

	raw = strings.TrimSpace(raw)
	now := p.now()

	p.mu.Lock()
	switch field {
	case FieldStatus:
		p.current.Status = raw
		p.current.StatusAt = now
	case FieldBattery, FieldPower:
		v, perr := cast.ToFloat64E(raw)
		if perr != nil {
			p.mu.Unlock()
			log.WithError(perr).WithField("value", raw).Warnf("Failed to update %s", field)
			return fmt.Errorf("parse %s %q: %w", field, raw, perr)
		}
		if field == FieldBattery {
			p.current.BatteryPercent = v
			p.current.BatteryAt = now
		} else {
			p.current.PowerAmps = v
			p.current.PowerAt = now
		}
	}
	snap := p.current
	listeners := slices.Clone(p.listeners)
	p.mu.Unlock()

	log.WithField("value", raw).Debug("Updated")
	for _, fn := range listeners {
		fn(field, snap)
	}
	return nil
}

func (p *Poller) pin(f Field) string {
	switch f {
	case FieldStatus:
		return p.pins.Status
	case FieldBattery:
		return p.pins.Battery
	default:
		return p.pins.Power
	}
}
