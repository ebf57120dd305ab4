package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsTextData(t *testing.T) {
	assert.True(t, IsTextData([]byte("HomeWifi\r\n")))
	assert.False(t, IsTextData([]byte{0x00, 0x41}))
	assert.False(t, IsTextData([]byte("caf\xc3\xa9")))
}

func TestHexDump(t *testing.T) {
	got := HexDump([]byte("SSID1"))
	want := "0000  53 53 49 44 31                                    |SSID1|\n"
	assert.Equal(t, want, got)
	assert.Empty(t, HexDump(nil))
}

func TestRedact(t *testing.T) {
	assert.Equal(t, "", Redact(""))
	assert.Equal(t, "<5 chars>", Redact("PASS1"))
	assert.Equal(t, "<4 chars>", Redact("café"))
}
