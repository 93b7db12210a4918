// Package ble provides the jukebox's BLE GATT server: a command service and
// a data service, the write handlers behind them and the connection
// lifecycle that secures links and keeps the device advertising.
package ble

// Permission is a bitmask of characteristic access flags.
type Permission uint8

const (
	PermRead Permission = 1 << iota
	PermWrite
	PermNotify
)

// CharacteristicConfig describes one characteristic to expose.
type CharacteristicConfig struct {
	UUID        string
	Value       []byte // initial value
	Permissions Permission
	// OnWrite is called with each value a peer writes. The slice is only
	// valid for the duration of the call.
	OnWrite func(value []byte)
}

// ServiceConfig describes a primary GATT service.
type ServiceConfig struct {
	UUID            string
	Characteristics []CharacteristicConfig
}

// Peripheral abstracts the BLE adapter in peripheral role for testing.
type Peripheral interface {
	// Enable powers on the adapter.
	Enable() error
	// AddService registers a GATT service. Call after Enable.
	AddService(svc ServiceConfig) error
	// ConfigureAdvertisement sets the local name and advertised services.
	ConfigureAdvertisement(localName string, serviceUUIDs []string) error
	StartAdvertising() error
	StopAdvertising() error
	// SetConnectHandler registers a callback for peer connect and
	// disconnect events. addr is the peer's address.
	SetConnectHandler(cb func(addr string, connected bool))
	// Address returns the adapter's own MAC address.
	Address() (string, error)
}
