package provision

import (
	"context"
	"slices"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/solarlink/solarctl/internal/ble"
)

// Echo is the write/notify variant of the provisioning flow. It shares the
// Session's connect and disconnect logic and additionally monitors a data
// characteristic, keeping the last value the peripheral sent back.
type Echo struct {
	session *Session
	char    string
	log     logrus.FieldLogger

	mu        sync.Mutex
	sub       ble.Subscription
	received  string
	listeners []func(string)
}

// NewEcho wraps session. char is both the write and the notify
// characteristic; name is how it appears in logs.
func NewEcho(session *Session, char, name string, log logrus.FieldLogger) *Echo {
	session.nameCharacteristic(char, name)
	e := &Echo{
		session: session,
		char:    char,
		log:     log.WithFields(logrus.Fields{"component": "echo", "char": name}),
	}
	session.OnStateChange(func(st State) {
		if st != Connected {
			e.unsubscribe()
		}
	})
	return e
}

// Session returns the underlying session.
func (e *Echo) Session() *Session { return e.session }

// Connect connects the session and subscribes to the data characteristic.
// A failed subscription is returned as a NotificationError but leaves the
// session connected.
func (e *Echo) Connect(ctx context.Context) error {
	if err := e.session.Connect(ctx); err != nil {
		return err
	}
	return e.listen()
}

func (e *Echo) listen() error {
	p := e.session.current()
	if p == nil {
		return &Error{Kind: NotificationError, Characteristic: e.char, Err: ErrNotConnected}
	}

	sub, err := p.Monitor(e.session.opts.ServiceUUID, e.char, e.onNotify)
	if err != nil {
		e.log.WithError(err).Error("Notification error")
		return &Error{Kind: NotificationError, Characteristic: e.char, Err: errors.Wrap(err, "monitor")}
	}

	e.mu.Lock()
	old := e.sub
	e.sub = sub
	e.mu.Unlock()
	if old != nil {
		old.Remove()
	}
	e.log.Debug("Monitoring characteristic")
	return nil
}

func (e *Echo) onNotify(value string, err error) {
	if err != nil {
		e.log.WithError(&Error{Kind: NotificationError, Characteristic: e.char, Err: err}).Error("Notification error")
		return
	}

	decoded, derr := ble.DecodeValue(value)
	if derr != nil {
		e.log.WithError(derr).Error("Notification error")
		return
	}

	e.mu.Lock()
	e.received = decoded
	listeners := slices.Clone(e.listeners)
	e.mu.Unlock()

	e.log.WithField("value", decoded).Info("Received value")
	for _, fn := range listeners {
		fn(decoded)
	}
}

func (e *Echo) unsubscribe() {
	e.mu.Lock()
	sub := e.sub
	e.sub = nil
	e.mu.Unlock()
	if sub != nil {
		sub.Remove()
		e.log.Debug("Stopped monitoring characteristic")
	}
}

// Send writes value to the data characteristic.
func (e *Echo) Send(value string) error {
	return e.session.WriteCredential(e.char, value)
}

// Received returns the last decoded notification value.
func (e *Echo) Received() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.received
}

// OnReceive registers fn for every decoded notification.
func (e *Echo) OnReceive(fn func(string)) {
	e.mu.Lock()
	e.listeners = append(e.listeners, fn)
	e.mu.Unlock()
}

// Disconnect drops the subscription and the connection.
func (e *Echo) Disconnect() error {
	e.unsubscribe()
	return e.session.Disconnect()
}

// Close tears the echo flow down.
func (e *Echo) Close() error {
	e.unsubscribe()
	return e.session.Close()
}
