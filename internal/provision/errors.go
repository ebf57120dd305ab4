package provision

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrBusy is returned by Connect while another Connect is running.
	ErrBusy = errors.New("connect already in progress")
	// ErrAlreadyConnected is returned by Connect when a peripheral is held.
	ErrAlreadyConnected = errors.New("already connected")
	// ErrNotConnected is returned by writes when no peripheral is held.
	ErrNotConnected = errors.New("not connected")
	// ErrNotFound means the scan ended without seeing the service.
	ErrNotFound = errors.New("no peripheral advertising the service was found")
	// ErrClosed is returned once the session has been torn down.
	ErrClosed = errors.New("session closed")
)

// Kind classifies a BLE failure.
type Kind int

const (
	ScanError Kind = iota
	ConnectionError
	WriteError
	NotificationError
)

func (k Kind) String() string {
	switch k {
	case ScanError:
		return "scan error"
	case ConnectionError:
		return "connection error"
	case WriteError:
		return "write error"
	case NotificationError:
		return "notification error"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Error is a BLE failure with its kind and, for writes and notifications,
// the characteristic involved.
type Error struct {
	Kind           Kind
	Characteristic string
	Err            error
}

func (e *Error) Error() string {
	if e.Characteristic != "" {
		return fmt.Sprintf("%s on %s: %v", e.Kind, e.Characteristic, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IsKind reports whether err is an *Error of kind k.
func IsKind(err error, k Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == k
}
