package telemetry

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
)

// PinWriter sets a virtual pin.
type PinWriter interface {
	Update(ctx context.Context, pin, value string) error
}

// Command is one relay switch request.
type Command struct {
	ID   ulid.ULID
	On   bool
	At   time.Time
	prev bool
}

// SuccessMessage is shown to the user when the broker accepted the command.
func (c *Command) SuccessMessage() string {
	if c.On {
		return "Solar Inverter turn on successfully!"
	}
	return "Solar Inverter turn off successfully!"
}

// FailureMessage is shown to the user when the broker rejected the command.
func (c *Command) FailureMessage() string {
	if c.On {
		return "Failed to turn on the Solar Inverter"
	}
	return "Failed to turn off Solar Inverter"
}

// Relay tracks the inverter's on/off switch. The flag flips as soon as a
// command begins. In reconcile mode a failed command is rolled back unless
// a newer command has been issued since.
type Relay struct {
	w         PinWriter
	pin       string
	reconcile bool
	log       logrus.FieldLogger

	mu        sync.Mutex
	on        bool
	latest    ulid.ULID
	listeners []func(bool)
}

// NewRelay creates a relay that starts off.
func NewRelay(w PinWriter, pin string, reconcile bool, log logrus.FieldLogger) *Relay {
	return &Relay{
		w:         w,
		pin:       pin,
		reconcile: reconcile,
		log:       log.WithFields(logrus.Fields{"component": "relay", "pin": pin}),
	}
}

// IsOn returns the displayed switch position.
func (r *Relay) IsOn() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.on
}

// OnChange registers fn for every change of the flag.
func (r *Relay) OnChange(fn func(bool)) {
	r.mu.Lock()
	r.listeners = append(r.listeners, fn)
	r.mu.Unlock()
}

// Begin sets the flag to on immediately and returns the pending command.
func (r *Relay) Begin(on bool) *Command {
	r.mu.Lock()
	cmd := r.beginLocked(on)
	r.mu.Unlock()
	r.notify(on)
	return cmd
}

func (r *Relay) beginLocked(on bool) *Command {
	cmd := &Command{ID: ulid.Make(), On: on, At: time.Now(), prev: r.on}
	r.on = on
	r.latest = cmd.ID
	return cmd
}

// Commit sends cmd to the broker.
func (r *Relay) Commit(ctx context.Context, cmd *Command) error {
	value := "0"
	if cmd.On {
		value = "1"
	}
	log := r.log.WithFields(logrus.Fields{"command": cmd.ID.String(), "on": cmd.On})

	if err := r.w.Update(ctx, r.pin, value); err != nil {
		log.WithError(err).Error(cmd.FailureMessage())
		if r.reconcile {
			r.rollback(cmd)
		}
		return err
	}
	log.Info(cmd.SuccessMessage())
	return nil
}

func (r *Relay) rollback(cmd *Command) {
	r.mu.Lock()
	if r.latest != cmd.ID || r.on == cmd.prev {
		r.mu.Unlock()
		return
	}
	r.on = cmd.prev
	r.mu.Unlock()
	r.log.WithField("command", cmd.ID.String()).Warn("Relay state rolled back")
	r.notify(cmd.prev)
}

// Set switches the relay on or off.
func (r *Relay) Set(ctx context.Context, on bool) error {
	return r.Commit(ctx, r.Begin(on))
}

// BeginToggle is Begin with the opposite of the displayed position.
func (r *Relay) BeginToggle() *Command {
	r.mu.Lock()
	cmd := r.beginLocked(!r.on)
	r.mu.Unlock()
	r.notify(cmd.On)
	return cmd
}

// Toggle flips the relay from its displayed position.
func (r *Relay) Toggle(ctx context.Context) error {
	return r.Commit(ctx, r.BeginToggle())
}

func (r *Relay) notify(on bool) {
	r.mu.Lock()
	listeners := slices.Clone(r.listeners)
	r.mu.Unlock()
	for _, fn := range listeners {
		fn(on)
	}
}
