package commands

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/solarlink/solarctl/internal/ble"
	"github.com/solarlink/solarctl/internal/provision"
	"github.com/solarlink/solarctl/internal/util"
)

// ScanEntry is one advertiser seen during a scan.
type ScanEntry struct {
	Address      string
	Name         string
	RSSI         int16
	Provisioning bool
	Seen         int
}

// Scan lists advertisers until timeout or ctx is done, marking the ones that
// carry serviceUUID. It is a read-only diagnostic: nothing is connected.
func Scan(ctx context.Context, central ble.Central, serviceUUID string, timeout time.Duration, out io.Writer) ([]ScanEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	fmt.Fprintf(out, "Scanning for %s...\n", timeout)

	var mu sync.Mutex
	seen := map[string]*ScanEntry{}
	err := central.Scan(ctx, func(adv ble.Advertisement) {
		mu.Lock()
		defer mu.Unlock()
		e, ok := seen[adv.Address()]
		if !ok {
			e = &ScanEntry{Address: adv.Address()}
			seen[adv.Address()] = e
		}
		e.Seen++
		e.RSSI = adv.RSSI()
		if name := adv.LocalName(); name != "" {
			e.Name = name
		}
		if adv.HasServiceUUID(serviceUUID) {
			e.Provisioning = true
		}
	})
	if err != nil && ctx.Err() == nil {
		return nil, fmt.Errorf("scan failed: %w", err)
	}

	mu.Lock()
	entries := make([]ScanEntry, 0, len(seen))
	for _, e := range seen {
		entries = append(entries, *e)
	}
	mu.Unlock()

	// provisioning peripherals first, then strongest signal
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Provisioning != entries[j].Provisioning {
			return entries[i].Provisioning
		}
		if entries[i].RSSI != entries[j].RSSI {
			return entries[i].RSSI > entries[j].RSSI
		}
		return entries[i].Address < entries[j].Address
	})

	PrintScan(out, entries)
	return entries, nil
}

// PrintScan writes scan results as a table.
func PrintScan(out io.Writer, entries []ScanEntry) {
	if len(entries) == 0 {
		fmt.Fprintln(out, "No devices found.")
		fmt.Fprintln(out, "Make sure Bluetooth is enabled and the device is advertising.")
		return
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ADDRESS\tRSSI\tNAME\tPROVISIONING")
	for _, e := range entries {
		mark := ""
		if e.Provisioning {
			mark = "yes"
		}
		name := e.Name
		if name == "" {
			name = "-"
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", e.Address, e.RSSI, name, mark)
	}
	tw.Flush()
}

// Provision connects, writes creds, and waits for the automatic disconnect.
func Provision(ctx context.Context, s *provision.Session, creds provision.Credentials, out io.Writer) error {
	disconnected := make(chan struct{}, 1)
	s.OnStateChange(func(st provision.State) {
		if st == provision.Disconnected {
			select {
			case disconnected <- struct{}{}:
			default:
			}
		}
	})

	fmt.Fprintln(out, "Scanning for provisioning service (Bluetooth must be enabled)...")
	if err := s.Connect(ctx); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	fmt.Fprintln(out, "Connected.")

	batch := s.WriteBoth(creds)
	writeErr := batch.Wait()
	if writeErr != nil {
		fmt.Fprintf(out, "Write failed: %v\n", writeErr)
	} else {
		fmt.Fprintf(out, "Sent SSID %q and passphrase %s.\n", creds.SSID, util.Redact(creds.Passphrase))
	}

	wait := s.Options().DisconnectDelay + 5*time.Second
	select {
	case <-disconnected:
		fmt.Fprintln(out, "Disconnected.")
	case <-time.After(wait):
		fmt.Fprintln(out, "Timed out waiting for disconnect, releasing device.")
		if err := s.Disconnect(); err != nil {
			return err
		}
	case <-ctx.Done():
		return ctx.Err()
	}
	return writeErr
}

// EchoSend connects, sends value, and optionally waits for the echoed value.
func EchoSend(ctx context.Context, e *provision.Echo, value string, wait time.Duration, out io.Writer) error {
	received := make(chan string, 1)
	e.OnReceive(func(v string) {
		select {
		case received <- v:
		default:
		}
	})

	if err := e.Connect(ctx); err != nil && !provision.IsKind(err, provision.NotificationError) {
		return fmt.Errorf("connect: %w", err)
	} else if err != nil {
		fmt.Fprintf(out, "Warning: %v\n", err)
	}
	defer e.Disconnect()

	if err := e.Send(value); err != nil {
		return err
	}
	fmt.Fprintf(out, "Sent %q\n", value)

	if wait <= 0 {
		return nil
	}
	select {
	case v := <-received:
		fmt.Fprintf(out, "Received %q\n", v)
		if v != value {
			return fmt.Errorf("echo mismatch: sent %q, received %q", value, v)
		}
		return nil
	case <-time.After(wait):
		return fmt.Errorf("no echo within %s", wait)
	case <-ctx.Done():
		return ctx.Err()
	}
}
