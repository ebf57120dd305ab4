package cli

import (
	"context"
	"os"
	"time"

	"github.com/solarlink/solarctl/internal/commands"
	"github.com/solarlink/solarctl/internal/config"
	"github.com/solarlink/solarctl/internal/provision"
	"github.com/solarlink/solarctl/internal/telemetry"
	"github.com/solarlink/solarctl/internal/tui"
)

// CLI is the root command structure for solarctl.
type CLI struct {
	Verbose bool   `short:"v" help:"Enable verbose debug output"`
	Config  string `short:"c" default:"${config_path}" help:"Path to the YAML config file" type:"path"`

	// Default command - TUI
	Tui TuiCmd `cmd:"" default:"withargs" help:"Launch interactive TUI (default)"`

	Scan      ScanCmd      `cmd:"" help:"List nearby BLE devices"`
	Provision ProvisionCmd `cmd:"" help:"Send Wi-Fi credentials to a device"`
	Echo      EchoCmd      `cmd:"" help:"Echo round-trip over the data characteristic"`
	Status    StatusCmd    `cmd:"" help:"Fetch inverter status, battery and power once"`
	Watch     WatchCmd     `cmd:"" help:"Poll inverter telemetry until interrupted"`
	Relay     RelayCmd     `cmd:"" help:"Switch the inverter relay"`
}

// Vars are the interpolation values used by the CLI tags.
func Vars() map[string]string {
	return map[string]string{
		"config_path": config.DefaultPath,
	}
}

// --- TUI Command ---

type TuiCmd struct{}

func (c *TuiCmd) Run(globals *CLI) error {
	rt, err := setup(globals)
	if err != nil {
		return err
	}
	defer rt.Close()
	rt.quiet()

	deps := tui.Deps{ScanTimeout: rt.cfg.BLE.ScanTimeout}

	if _, err := rt.central(); err != nil {
		deps.BLEErr = err
	} else {
		deps.NewSession = rt.newSession
		deps.NewEcho = rt.newEcho
	}

	if client, err := rt.cloud(); err != nil {
		deps.CloudErr = err
	} else {
		deps.NewPoller = func() *telemetry.Poller { return rt.newPoller(client, 0) }
		deps.NewRelay = func() *telemetry.Relay { return rt.newRelay(client) }
	}

	return tui.Run(deps)
}

// --- BLE Commands ---

type ScanCmd struct {
	Timeout time.Duration `default:"10s" help:"How long to scan"`
}

func (c *ScanCmd) Run(globals *CLI) error {
	rt, err := setup(globals)
	if err != nil {
		return err
	}
	defer rt.Close()

	central, err := rt.central()
	if err != nil {
		return err
	}

	ctx, stop := rt.context()
	defer stop()

	_, err = commands.Scan(ctx, central, rt.cfg.BLE.ServiceUUID, c.Timeout, os.Stdout)
	return err
}

type ProvisionCmd struct {
	SSID       string `required:"" name:"ssid" help:"Wi-Fi network name"`
	Passphrase string `env:"SOLARCTL_PASSPHRASE" help:"Wi-Fi passphrase"`
}

func (c *ProvisionCmd) Run(globals *CLI) error {
	rt, err := setup(globals)
	if err != nil {
		return err
	}
	defer rt.Close()

	if _, err := rt.central(); err != nil {
		return err
	}

	ctx, stop := rt.context()
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, rt.cfg.BLE.ScanTimeout+rt.cfg.BLE.DisconnectDelay+10*time.Second)
	defer cancel()

	s := rt.newSession()
	defer s.Close()

	return commands.Provision(ctx, s, provision.Credentials{
		SSID:       c.SSID,
		Passphrase: c.Passphrase,
	}, os.Stdout)
}

type EchoCmd struct {
	Send EchoSendCmd `cmd:"" help:"Write a value and print what the device sends back"`
}

type EchoSendCmd struct {
	Value string        `arg:"" help:"Value to write"`
	Wait  time.Duration `default:"5s" help:"How long to wait for the echo"`
}

func (c *EchoSendCmd) Run(globals *CLI) error {
	rt, err := setup(globals)
	if err != nil {
		return err
	}
	defer rt.Close()

	if _, err := rt.central(); err != nil {
		return err
	}

	ctx, stop := rt.context()
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, rt.cfg.BLE.ScanTimeout+c.Wait)
	defer cancel()

	e := rt.newEcho()
	defer e.Close()

	return commands.EchoSend(ctx, e, c.Value, c.Wait, os.Stdout)
}

// --- Cloud Commands ---

type StatusCmd struct{}

func (c *StatusCmd) Run(globals *CLI) error {
	rt, err := setup(globals)
	if err != nil {
		return err
	}
	defer rt.Close()

	client, err := rt.cloud()
	if err != nil {
		return err
	}

	ctx, stop := rt.context()
	defer stop()

	return commands.Status(ctx, rt.newPoller(client, 0), os.Stdout)
}

type WatchCmd struct {
	Interval time.Duration `help:"Poll interval (defaults to cloud.poll_interval)"`
}

func (c *WatchCmd) Run(globals *CLI) error {
	rt, err := setup(globals)
	if err != nil {
		return err
	}
	defer rt.Close()

	client, err := rt.cloud()
	if err != nil {
		return err
	}

	p := rt.newPoller(client, c.Interval)

	ctx, stop := rt.context()
	defer stop()

	return commands.Watch(ctx, p, p.Interval(), os.Stdout)
}

type RelayCmd struct {
	Action string `arg:"" enum:"on,off,toggle" help:"on, off or toggle"`
}

func (c *RelayCmd) Run(globals *CLI) error {
	rt, err := setup(globals)
	if err != nil {
		return err
	}
	defer rt.Close()

	client, err := rt.cloud()
	if err != nil {
		return err
	}

	ctx, stop := rt.context()
	defer stop()

	return commands.Relay(ctx, rt.newRelay(client), c.Action, os.Stdout)
}
