package ble

import (
	"fmt"
	"strings"

	"tinygo.org/x/bluetooth"
)

// newAdapter selects a BlueZ adapter by id.
func newAdapter(id string) *bluetooth.Adapter {
	if id == "" {
		return bluetooth.DefaultAdapter
	}
	return bluetooth.NewAdapter(id)
}

func (p *TinyGoPeripheral) Address() (string, error) {
	addr, err := p.adapter.Address()
	if err != nil {
		return "", fmt.Errorf("ble: read adapter address: %w", err)
	}
	return strings.ToUpper(addr.MAC.String()), nil
}
