package provision

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solarlink/solarctl/internal/ble"
)

func newTestEcho(t *testing.T, p *fakePeripheral) (*Echo, *fakeCentral) {
	t.Helper()
	c := &fakeCentral{ads: []ble.Advertisement{provisioningAd("AA")}, peripheral: p}
	s, _, _ := newTestSession(c, DefaultOptions())
	log, _ := nullLogger()
	return NewEcho(s, ble.DataCharUUID, "data", log), c
}

func TestEchoRoundTrip(t *testing.T) {
	p := newFakePeripheral("AA")
	p.echo = true
	e, _ := newTestEcho(t, p)

	var got []string
	e.OnReceive(func(v string) { got = append(got, v) })

	require.NoError(t, e.Connect(context.Background()))
	for _, v := range []string{"hello", "café ☀", ""} {
		require.NoError(t, e.Send(v))
		assert.Equal(t, v, e.Received())
	}
	assert.Equal(t, []string{"hello", "café ☀", ""}, got)
	assert.Equal(t, []string{"aGVsbG8=", ble.EncodeValue("café ☀"), ""}, p.written(ble.DataCharUUID))
}

func TestEchoNotificationErrorKeepsState(t *testing.T) {
	p := newFakePeripheral("AA")
	e, _ := newTestEcho(t, p)
	require.NoError(t, e.Connect(context.Background()))

	p.notify(ble.DataCharUUID, ble.EncodeValue("first"), nil)
	p.notify(ble.DataCharUUID, "", errors.New("notify failed"))
	p.notify(ble.DataCharUUID, "%%%", nil)

	assert.Equal(t, "first", e.Received())
	assert.Equal(t, Connected, e.Session().State())
}

func TestEchoMonitorFailure(t *testing.T) {
	p := newFakePeripheral("AA")
	p.monitorErr = errors.New("cccd write failed")
	e, _ := newTestEcho(t, p)

	err := e.Connect(context.Background())
	assert.True(t, IsKind(err, NotificationError))
	assert.Equal(t, Connected, e.Session().State())
}

func TestEchoUnsubscribesWhenDisconnected(t *testing.T) {
	p := newFakePeripheral("AA")
	e, _ := newTestEcho(t, p)
	require.NoError(t, e.Connect(context.Background()))
	require.Len(t, p.subs, 1)

	require.NoError(t, e.Session().Disconnect())
	assert.True(t, p.subs[0].removed)

	p.notify(ble.DataCharUUID, ble.EncodeValue("late"), nil)
	assert.Empty(t, e.Received())
}

func TestEchoSendWhenNotConnected(t *testing.T) {
	e, _ := newTestEcho(t, newFakePeripheral("AA"))
	err := e.Send("x")
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestEchoWritesLoggedUnderDataName(t *testing.T) {
	p := newFakePeripheral("AA")
	p.echo = true
	c := &fakeCentral{ads: []ble.Advertisement{provisioningAd("AA")}, peripheral: p}
	s, _, hook := newTestSession(c, DefaultOptions())
	log, _ := nullLogger()
	e := NewEcho(s, ble.DataCharUUID, "data", log)

	require.NoError(t, e.Connect(context.Background()))
	require.NoError(t, e.Send("ping"))

	var chars []any
	for _, entry := range hook.AllEntries() {
		if entry.Message == "Successful write to characteristic" {
			chars = append(chars, entry.Data["char"])
			assert.Equal(t, "ping", entry.Data["value"])
		}
	}
	assert.Equal(t, []any{"data"}, chars)
}
