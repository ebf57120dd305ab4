package ble

const (
	// ServiceUUID is the provisioning service advertised by the peripheral
	ServiceUUID = "853f29b2-f5ed-4b69-b4c6-9cd68a9fc2b0"

	// SSIDCharUUID receives the Wi-Fi network name (write without response)
	SSIDCharUUID = "b72b9432-25f9-4c7f-96cb-fcb8efde84fd"

	// PassphraseCharUUID receives the Wi-Fi passphrase (write without response)
	PassphraseCharUUID = "7c8451c7-7909-47ef-b072-35d24729b8aa"

	// DataCharUUID is the read/write/notify characteristic used by the echo flow.
	// The echo firmware reuses the SSID characteristic for this.
	DataCharUUID = SSIDCharUUID
)
