package cli

import (
	"context"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/solarlink/solarctl/internal/ble"
	"github.com/solarlink/solarctl/internal/cloud"
	"github.com/solarlink/solarctl/internal/config"
	"github.com/solarlink/solarctl/internal/logging"
	"github.com/solarlink/solarctl/internal/provision"
	"github.com/solarlink/solarctl/internal/telemetry"
)

// runtime carries what every command needs: the loaded config, the logger
// and the lazily opened BLE adapter and broker client.
type runtime struct {
	cfg      *config.File
	log      *logrus.Logger
	closeLog func() error

	manager *ble.Manager
	client  *cloud.Client
}

func setup(globals *CLI) (*runtime, error) {
	config.Verbose = globals.Verbose

	cfg, err := config.Load(globals.Config)
	if err != nil {
		return nil, err
	}

	log, closeLog, err := logging.New(cfg.Logger, globals.Verbose)
	if err != nil {
		return nil, err
	}
	config.Log = log
	config.Debugf("Loaded config from %s", globals.Config)

	return &runtime{cfg: cfg, log: log, closeLog: closeLog}, nil
}

// context is cancelled on SIGINT or SIGTERM.
func (r *runtime) context() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// quiet silences console logging while the TUI owns the terminal.
// File outputs are left alone.
func (r *runtime) quiet() {
	switch strings.ToLower(r.cfg.Logger.Output) {
	case "", "stderr", "stdout":
		r.log.SetOutput(io.Discard)
	}
}

func (r *runtime) central() (*ble.Manager, error) {
	if r.manager != nil {
		return r.manager, nil
	}
	m := ble.NewManager(nil, r.log)
	if err := m.Enable(); err != nil {
		return nil, errors.Wrap(err, "bluetooth unavailable")
	}
	r.manager = m
	return m, nil
}

func (r *runtime) sessionOptions() provision.Options {
	b := r.cfg.BLE
	return provision.Options{
		ServiceUUID:        b.ServiceUUID,
		SSIDCharUUID:       b.SSIDCharUUID,
		PassphraseCharUUID: b.PassphraseCharUUID,
		DisconnectDelay:    b.DisconnectDelay,
		AwaitWrites:        b.AwaitWrites,
	}
}

func (r *runtime) newSession() *provision.Session {
	return provision.NewSession(r.manager, r.sessionOptions(), r.log)
}

func (r *runtime) newEcho() *provision.Echo {
	return provision.NewEcho(r.newSession(), r.cfg.BLE.DataCharUUID, "data", r.log)
}

func (r *runtime) cloud() (*cloud.Client, error) {
	if r.client != nil {
		return r.client, nil
	}
	c, err := cloud.NewClient(r.cfg.Cloud, r.log)
	if err != nil {
		return nil, err
	}
	r.client = c
	return c, nil
}

// newPoller polls every interval, or cloud.poll_interval when interval is zero.
func (r *runtime) newPoller(c *cloud.Client, interval time.Duration) *telemetry.Poller {
	if interval <= 0 {
		interval = r.cfg.Cloud.PollInterval
	}
	return telemetry.NewPoller(c, r.cfg.Cloud.Pins, interval, r.log)
}

func (r *runtime) newRelay(c *cloud.Client) *telemetry.Relay {
	return telemetry.NewRelay(c, r.cfg.Cloud.Pins.Relay, r.cfg.Cloud.ReconcileRelay, r.log)
}

// Close releases the adapter and any log file.
func (r *runtime) Close() {
	if r.manager != nil {
		if err := r.manager.Close(); err != nil {
			r.log.WithError(err).Debug("Failed to close adapter")
		}
	}
	if r.closeLog != nil {
		_ = r.closeLog()
	}
}
