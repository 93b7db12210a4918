//go:build !linux

package ble

import (
	"errors"

	"tinygo.org/x/bluetooth"
)

// newAdapter returns the only adapter available off Linux; id is ignored.
func newAdapter(id string) *bluetooth.Adapter {
	return bluetooth.DefaultAdapter
}

// Address is unavailable: CoreBluetooth and WinRT do not expose the
// local adapter's MAC.
func (p *TinyGoPeripheral) Address() (string, error) {
	return "", errors.New("ble: adapter address is only available on Linux")
}
