package ble

import (
	"encoding/base64"

	"github.com/pkg/errors"
)

// Characteristic values cross the Peripheral interface as base64 strings.
// The tinygo-backed peripheral converts them to raw bytes on the wire.

// EncodeValue base64-encodes the UTF-8 bytes of s.
func EncodeValue(s string) string {
	return base64.StdEncoding.EncodeToString([]byte(s))
}

// DecodeValue reverses EncodeValue.
func DecodeValue(v string) (string, error) {
	b, err := base64.StdEncoding.DecodeString(v)
	if err != nil {
		return "", errors.Wrap(err, "decode characteristic value")
	}
	return string(b), nil
}
