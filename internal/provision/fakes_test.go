package provision

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/solarlink/solarctl/internal/ble"
)

type fakeAdv struct {
	addr     string
	name     string
	services []string
}

func (a *fakeAdv) Address() string   { return a.addr }
func (a *fakeAdv) LocalName() string { return a.name }
func (a *fakeAdv) RSSI() int16       { return -60 }
func (a *fakeAdv) HasServiceUUID(uuid string) bool {
	for _, s := range a.services {
		if strings.EqualFold(s, uuid) {
			return true
		}
	}
	return false
}

// fakeCentral replays ads to the scan callback, stopping early on StopScan.
type fakeCentral struct {
	mu         sync.Mutex
	ads        []ble.Advertisement
	scanErr    error
	connectErr error
	peripheral *fakePeripheral
	// gate, when set, blocks Connect until it is closed.
	gate chan struct{}
	// blockScan keeps Scan running after the ads until ctx is done.
	blockScan bool

	stopped   int
	halted    bool
	connected []string
	scanning  chan struct{}
}

func (c *fakeCentral) Scan(ctx context.Context, fn func(ble.Advertisement)) error {
	c.mu.Lock()
	c.halted = false
	c.mu.Unlock()
	if c.scanning != nil {
		close(c.scanning)
	}
	for _, adv := range c.ads {
		c.mu.Lock()
		halted := c.halted
		c.mu.Unlock()
		if halted {
			return nil
		}
		fn(adv)
	}
	if c.scanErr != nil {
		return c.scanErr
	}
	if c.blockScan {
		<-ctx.Done()
		return ctx.Err()
	}
	return nil
}

func (c *fakeCentral) StopScan() error {
	c.mu.Lock()
	c.stopped++
	c.halted = true
	c.mu.Unlock()
	return nil
}

func (c *fakeCentral) Connect(ctx context.Context, adv ble.Advertisement) (ble.Peripheral, error) {
	c.mu.Lock()
	c.connected = append(c.connected, adv.Address())
	c.mu.Unlock()
	if c.gate != nil {
		<-c.gate
	}
	if c.connectErr != nil {
		return nil, c.connectErr
	}
	if c.peripheral == nil {
		c.peripheral = newFakePeripheral(adv.Address())
	}
	return c.peripheral, nil
}

func (c *fakeCentral) connects() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.connected...)
}

type fakeSub struct {
	p       *fakePeripheral
	char    string
	removed bool
}

func (s *fakeSub) Remove() {
	s.p.mu.Lock()
	defer s.p.mu.Unlock()
	s.removed = true
	delete(s.p.monitors, s.char)
}

// fakePeripheral records writes. With echo set, every write is delivered
// back to a monitor on the same characteristic.
type fakePeripheral struct {
	mu            sync.Mutex
	addr          string
	discoverErr   error
	writeErr      map[string]error
	disconnectErr error
	monitorErr    error
	echo          bool

	writes      map[string][]string
	monitors    map[string]func(string, error)
	subs        []*fakeSub
	disconnects int
}

func newFakePeripheral(addr string) *fakePeripheral {
	return &fakePeripheral{
		addr:     addr,
		writeErr: map[string]error{},
		writes:   map[string][]string{},
		monitors: map[string]func(string, error){},
	}
}

func (p *fakePeripheral) Address() string { return p.addr }

func (p *fakePeripheral) DiscoverAll(ctx context.Context) error { return p.discoverErr }

func (p *fakePeripheral) WriteWithoutResponse(service, char, value string) error {
	p.mu.Lock()
	if err := p.writeErr[char]; err != nil {
		p.mu.Unlock()
		return err
	}
	p.writes[char] = append(p.writes[char], value)
	fn := p.monitors[char]
	p.mu.Unlock()
	if p.echo && fn != nil {
		fn(value, nil)
	}
	return nil
}

func (p *fakePeripheral) Monitor(service, char string, fn func(string, error)) (ble.Subscription, error) {
	if p.monitorErr != nil {
		return nil, p.monitorErr
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.monitors[char] = fn
	sub := &fakeSub{p: p, char: char}
	p.subs = append(p.subs, sub)
	return sub, nil
}

func (p *fakePeripheral) Disconnect() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.disconnectErr != nil {
		return p.disconnectErr
	}
	p.disconnects++
	return nil
}

func (p *fakePeripheral) written(char string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.writes[char]...)
}

func (p *fakePeripheral) disconnectCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.disconnects
}

func (p *fakePeripheral) notify(char, value string, err error) {
	p.mu.Lock()
	fn := p.monitors[char]
	p.mu.Unlock()
	if fn != nil {
		fn(value, err)
	}
}

type fakeTimer struct {
	delay   time.Duration
	fn      func()
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	was := !t.stopped
	t.stopped = true
	return was
}

// fakeClock records scheduled funcs instead of running them.
type fakeClock struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (c *fakeClock) AfterFunc(d time.Duration, fn func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{delay: d, fn: fn}
	c.timers = append(c.timers, t)
	return t
}

func (c *fakeClock) scheduled() []*fakeTimer {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*fakeTimer(nil), c.timers...)
}

func hasMessage(hook *test.Hook, msg string) bool {
	for _, e := range hook.AllEntries() {
		if e.Message == msg {
			return true
		}
	}
	return false
}

func nullLogger() (*logrus.Logger, *test.Hook) {
	log, hook := test.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)
	return log, hook
}

func provisioningAd(addr string) *fakeAdv {
	return &fakeAdv{addr: addr, name: "solar-" + addr, services: []string{ble.ServiceUUID}}
}

func newTestSession(c *fakeCentral, opts Options) (*Session, *fakeClock, *test.Hook) {
	log, hook := nullLogger()
	s := NewSession(c, opts, log)
	clock := &fakeClock{}
	s.afterFunc = clock.AfterFunc
	return s, clock, hook
}
