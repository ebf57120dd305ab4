package provision

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solarlink/solarctl/internal/ble"
)

type stateRecorder struct {
	mu     sync.Mutex
	states []State
}

func (r *stateRecorder) record(st State) {
	r.mu.Lock()
	r.states = append(r.states, st)
	r.mu.Unlock()
}

func (r *stateRecorder) all() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]State(nil), r.states...)
}

func connectedSession(t *testing.T, opts Options) (*Session, *fakeCentral, *fakeClock) {
	t.Helper()
	c := &fakeCentral{ads: []ble.Advertisement{provisioningAd("AA")}}
	s, clock, _ := newTestSession(c, opts)
	require.NoError(t, s.Connect(context.Background()))
	require.Equal(t, Connected, s.State())
	return s, c, clock
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", Idle.String())
	assert.Equal(t, "scanning", Scanning.String())
	assert.Equal(t, "connected", Connected.String())
	assert.Equal(t, "disconnected", Disconnected.String())
	assert.Equal(t, "unknown", State(42).String())
}

func TestConnectIgnoresNonMatchingAdvertisements(t *testing.T) {
	c := &fakeCentral{
		ads:       []ble.Advertisement{&fakeAdv{addr: "11", name: "speaker", services: []string{"180d"}}},
		blockScan: true,
		scanning:  make(chan struct{}),
	}
	s, _, _ := newTestSession(c, DefaultOptions())
	rec := &stateRecorder{}
	s.OnStateChange(rec.record)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- s.Connect(ctx) }()

	<-c.scanning
	assert.Equal(t, Scanning, s.State())
	cancel()

	err := <-errc
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, c.connects(), "connect must not be attempted for a non-matching advertisement")
	assert.Equal(t, []State{Scanning, Idle}, rec.all())
}

func TestConnectUsesFirstMatchOnly(t *testing.T) {
	c := &fakeCentral{ads: []ble.Advertisement{
		&fakeAdv{addr: "00", services: nil},
		provisioningAd("AA"),
		provisioningAd("BB"),
	}}
	s, _, _ := newTestSession(c, DefaultOptions())
	rec := &stateRecorder{}
	s.OnStateChange(rec.record)

	require.NoError(t, s.Connect(context.Background()))
	assert.Equal(t, Connected, s.State())
	assert.Equal(t, []string{"AA"}, c.connects())
	assert.Equal(t, 1, c.stopped)
	assert.Equal(t, []State{Scanning, Connected}, rec.all())
}

func TestConnectWhileConnecting(t *testing.T) {
	c := &fakeCentral{
		ads:  []ble.Advertisement{provisioningAd("AA")},
		gate: make(chan struct{}),
	}
	s, _, _ := newTestSession(c, DefaultOptions())

	errc := make(chan error, 1)
	go func() { errc <- s.Connect(context.Background()) }()
	require.Eventually(t, func() bool { return len(c.connects()) == 1 }, time.Second, time.Millisecond)

	assert.ErrorIs(t, s.Connect(context.Background()), ErrBusy)

	close(c.gate)
	require.NoError(t, <-errc)
	assert.Equal(t, Connected, s.State())
	assert.Len(t, c.connects(), 1)
}

func TestConnectWhenConnected(t *testing.T) {
	s, _, _ := connectedSession(t, DefaultOptions())
	assert.ErrorIs(t, s.Connect(context.Background()), ErrAlreadyConnected)
}

func TestConnectErrorLeavesDisconnected(t *testing.T) {
	c := &fakeCentral{
		ads:        []ble.Advertisement{provisioningAd("AA"), provisioningAd("BB")},
		connectErr: errors.New("le-connection-abort-by-local"),
	}
	s, _, hook := newTestSession(c, DefaultOptions())

	err := s.Connect(context.Background())
	require.Error(t, err)
	assert.True(t, IsKind(err, ConnectionError))
	assert.Equal(t, Disconnected, s.State())
	assert.Equal(t, []string{"AA"}, c.connects(), "no rescan or retry")
	assert.True(t, hasMessage(hook, "Connection error"))
}

func TestDiscoveryErrorReleasesPeripheral(t *testing.T) {
	p := newFakePeripheral("AA")
	p.discoverErr = errors.New("gatt timeout")
	c := &fakeCentral{ads: []ble.Advertisement{provisioningAd("AA")}, peripheral: p}
	s, _, _ := newTestSession(c, DefaultOptions())

	err := s.Connect(context.Background())
	assert.True(t, IsKind(err, ConnectionError))
	assert.Equal(t, Disconnected, s.State())
	assert.Equal(t, 1, p.disconnectCount())
}

func TestScanErrorReturnsToIdle(t *testing.T) {
	c := &fakeCentral{scanErr: errors.New("adapter powered off")}
	s, _, _ := newTestSession(c, DefaultOptions())
	rec := &stateRecorder{}
	s.OnStateChange(rec.record)

	err := s.Connect(context.Background())
	assert.True(t, IsKind(err, ScanError))
	assert.Equal(t, Idle, s.State())
	assert.Equal(t, []State{Scanning, Idle}, rec.all())
}

func TestScanWithoutMatch(t *testing.T) {
	c := &fakeCentral{ads: []ble.Advertisement{&fakeAdv{addr: "00"}}}
	s, _, _ := newTestSession(c, DefaultOptions())

	assert.ErrorIs(t, s.Connect(context.Background()), ErrNotFound)
	assert.Equal(t, Idle, s.State())
}

func TestConnectFromDisconnected(t *testing.T) {
	s, c, _ := connectedSession(t, DefaultOptions())
	require.NoError(t, s.Disconnect())
	require.Equal(t, Disconnected, s.State())

	require.NoError(t, s.Connect(context.Background()))
	assert.Equal(t, Connected, s.State())
	assert.Len(t, c.connects(), 2)
}

func TestWriteBothSchedulesDisconnect(t *testing.T) {
	s, c, clock := connectedSession(t, DefaultOptions())

	b := s.WriteBoth(Credentials{SSID: "SSID1", Passphrase: "PASS1"})
	require.NoError(t, b.Wait())

	p := c.peripheral
	assert.Equal(t, []string{"U1NJRDE="}, p.written(ble.SSIDCharUUID))
	assert.Equal(t, []string{"UEFTUzE="}, p.written(ble.PassphraseCharUUID))

	timers := clock.scheduled()
	require.Len(t, timers, 1)
	assert.Equal(t, time.Second, timers[0].delay)
	assert.Equal(t, Connected, s.State(), "still connected until the timer fires")

	timers[0].fn()
	assert.Equal(t, Disconnected, s.State())
	assert.Equal(t, 1, p.disconnectCount())
}

func TestWriteBothSchedulesDisconnectOnFailure(t *testing.T) {
	p := newFakePeripheral("AA")
	p.writeErr[ble.SSIDCharUUID] = errors.New("write failed")
	p.writeErr[ble.PassphraseCharUUID] = errors.New("write failed")
	c := &fakeCentral{ads: []ble.Advertisement{provisioningAd("AA")}, peripheral: p}
	s, clock, _ := newTestSession(c, DefaultOptions())
	require.NoError(t, s.Connect(context.Background()))

	err := s.WriteBoth(Credentials{SSID: "SSID1", Passphrase: "PASS1"}).Wait()
	require.Error(t, err)
	assert.True(t, IsKind(err, WriteError))

	timers := clock.scheduled()
	require.Len(t, timers, 1)
	assert.Equal(t, time.Second, timers[0].delay)
	assert.Empty(t, p.written(ble.SSIDCharUUID))
}

func TestWriteBothAwaitWrites(t *testing.T) {
	opts := DefaultOptions()
	opts.AwaitWrites = true
	opts.DisconnectDelay = 250 * time.Millisecond
	s, _, clock := connectedSession(t, opts)

	b := s.WriteBoth(Credentials{SSID: "SSID1", Passphrase: "PASS1"})
	require.NoError(t, b.Wait())
	require.Eventually(t, func() bool { return len(clock.scheduled()) == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, 250*time.Millisecond, clock.scheduled()[0].delay)
}

func TestWriteWhenNotConnected(t *testing.T) {
	s, _, hook := newTestSession(&fakeCentral{}, DefaultOptions())

	err := s.WriteCredential(ble.SSIDCharUUID, "SSID1")
	assert.True(t, IsKind(err, WriteError))
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.Equal(t, "Failed to write to characteristic", hook.LastEntry().Message)
}

func TestWriteLogsRedactPassphrase(t *testing.T) {
	c := &fakeCentral{ads: []ble.Advertisement{provisioningAd("AA")}}
	s, _, hook := newTestSession(c, DefaultOptions())
	require.NoError(t, s.Connect(context.Background()))

	require.NoError(t, s.WriteCredential(ble.PassphraseCharUUID, "hunter22"))
	entry := hook.LastEntry()
	assert.Equal(t, "Successful write to characteristic", entry.Message)
	assert.Equal(t, "passphrase", entry.Data["char"])
	assert.Equal(t, "<8 chars>", entry.Data["value"])
}

func TestDisconnectWithoutPeripheral(t *testing.T) {
	s, _, _ := newTestSession(&fakeCentral{}, DefaultOptions())
	rec := &stateRecorder{}
	s.OnStateChange(rec.record)

	assert.NoError(t, s.Disconnect())
	assert.Equal(t, Idle, s.State())
	assert.Empty(t, rec.all())
}

func TestDisconnectCancelsPendingTimer(t *testing.T) {
	s, _, clock := connectedSession(t, DefaultOptions())
	require.NoError(t, s.WriteBoth(Credentials{SSID: "a", Passphrase: "b"}).Wait())

	require.NoError(t, s.Disconnect())
	timers := clock.scheduled()
	require.Len(t, timers, 1)
	assert.True(t, timers[0].stopped)
}

func TestDisconnectErrorKeepsPeripheral(t *testing.T) {
	s, c, _ := connectedSession(t, DefaultOptions())
	c.peripheral.disconnectErr = errors.New("busy")

	err := s.Disconnect()
	assert.True(t, IsKind(err, ConnectionError))
	assert.Equal(t, Connected, s.State())

	c.peripheral.mu.Lock()
	c.peripheral.disconnectErr = nil
	c.peripheral.mu.Unlock()
	require.NoError(t, s.Disconnect())
	assert.Equal(t, Disconnected, s.State())
}

func TestCloseDuringConnect(t *testing.T) {
	c := &fakeCentral{
		ads:  []ble.Advertisement{provisioningAd("AA")},
		gate: make(chan struct{}),
	}
	s, _, _ := newTestSession(c, DefaultOptions())

	errc := make(chan error, 1)
	go func() { errc <- s.Connect(context.Background()) }()
	require.Eventually(t, func() bool { return len(c.connects()) == 1 }, time.Second, time.Millisecond)

	require.NoError(t, s.Close())
	close(c.gate)

	assert.ErrorIs(t, <-errc, ErrClosed)
	assert.NotEqual(t, Connected, s.State())
	assert.Equal(t, 1, c.peripheral.disconnectCount())
	assert.ErrorIs(t, s.Connect(context.Background()), ErrClosed)
}

func TestCloseReleasesPeripheral(t *testing.T) {
	s, c, clock := connectedSession(t, DefaultOptions())
	s.WriteBoth(Credentials{SSID: "a", Passphrase: "b"})

	require.NoError(t, s.Close())
	assert.Equal(t, Disconnected, s.State())
	assert.Equal(t, 1, c.peripheral.disconnectCount())
	assert.True(t, clock.scheduled()[0].stopped)
	assert.NoError(t, s.Close())
}

func TestListenerAddedDuringNotifyWaitsForNextChange(t *testing.T) {
	c := &fakeCentral{ads: []ble.Advertisement{provisioningAd("AA")}}
	s, _, _ := newTestSession(c, DefaultOptions())

	var first, late []State
	s.OnStateChange(func(st State) {
		first = append(first, st)
		if st == Scanning {
			s.OnStateChange(func(st State) { late = append(late, st) })
		}
	})

	require.NoError(t, s.Connect(context.Background()))
	assert.Equal(t, []State{Scanning, Connected}, first)
	assert.Equal(t, []State{Connected}, late)
}
