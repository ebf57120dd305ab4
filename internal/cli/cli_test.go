package cli

import (
	"testing"
	"time"

	"github.com/alecthomas/kong"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parse(t *testing.T, args ...string) (*CLI, *kong.Context, error) {
	t.Helper()
	var c CLI
	p, err := kong.New(&c, kong.Name("solarctl"), kong.Vars(Vars()), kong.Exit(func(int) {}))
	require.NoError(t, err)
	ctx, err := p.Parse(args)
	return &c, ctx, err
}

func TestDefaultCommandIsTUI(t *testing.T) {
	c, ctx, err := parse(t)
	require.NoError(t, err)
	assert.Equal(t, "tui", ctx.Command())
	assert.False(t, c.Verbose)
	assert.NotEmpty(t, c.Config)
}

func TestProvisionFlags(t *testing.T) {
	t.Setenv("SOLARCTL_PASSPHRASE", "hunter22")

	c, ctx, err := parse(t, "-v", "provision", "--ssid", "home")
	require.NoError(t, err)
	assert.Equal(t, "provision", ctx.Command())
	assert.True(t, c.Verbose)
	assert.Equal(t, "home", c.Provision.SSID)
	assert.Equal(t, "hunter22", c.Provision.Passphrase)
}

func TestProvisionRequiresSSID(t *testing.T) {
	_, _, err := parse(t, "provision")
	assert.Error(t, err)
}

func TestRelayAction(t *testing.T) {
	c, ctx, err := parse(t, "relay", "toggle")
	require.NoError(t, err)
	assert.Equal(t, "relay <action>", ctx.Command())
	assert.Equal(t, "toggle", c.Relay.Action)

	_, _, err = parse(t, "relay", "sideways")
	assert.Error(t, err)
}

func TestEchoSend(t *testing.T) {
	c, ctx, err := parse(t, "echo", "send", "ping", "--wait", "2s")
	require.NoError(t, err)
	assert.Equal(t, "echo send <value>", ctx.Command())
	assert.Equal(t, "ping", c.Echo.Send.Value)
	assert.Equal(t, 2*time.Second, c.Echo.Send.Wait)
}

func TestScanDefaults(t *testing.T) {
	c, _, err := parse(t, "scan")
	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, c.Scan.Timeout)
}
