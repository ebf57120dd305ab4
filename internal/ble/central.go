package ble

import "context"

// Advertisement is one scan result.
type Advertisement interface {
	Address() string
	LocalName() string
	RSSI() int16
	HasServiceUUID(uuid string) bool
}

// Central is the scanning/connecting side of the BLE stack.
type Central interface {
	// Scan reports every advertisement to fn until StopScan is called,
	// ctx is cancelled or the stack fails. It blocks while scanning.
	Scan(ctx context.Context, fn func(Advertisement)) error
	StopScan() error
	Connect(ctx context.Context, adv Advertisement) (Peripheral, error)
}

// Peripheral is a connected device. Values are base64 strings (see EncodeValue).
type Peripheral interface {
	Address() string
	// DiscoverAll discovers every service and characteristic.
	// It must succeed before any read, write or monitor.
	DiscoverAll(ctx context.Context) error
	WriteWithoutResponse(service, char, value string) error
	Monitor(service, char string, fn func(value string, err error)) (Subscription, error)
	Disconnect() error
}

// Subscription is an active notification handler.
type Subscription interface {
	Remove()
}
