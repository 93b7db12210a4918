package ble

import (
	"fmt"
	"strings"
	"sync"

	"tinygo.org/x/bluetooth"
)

// TinyGoPeripheral wraps tinygo-org/bluetooth in peripheral role.
type TinyGoPeripheral struct {
	adapter *bluetooth.Adapter

	mu  sync.Mutex
	adv *bluetooth.Advertisement
}

// NewTinyGoPeripheral creates a peripheral on the named adapter ("hci0").
func NewTinyGoPeripheral(adapterID string) *TinyGoPeripheral {
	return &TinyGoPeripheral{adapter: newAdapter(adapterID)}
}

func (p *TinyGoPeripheral) Enable() error {
	if err := p.adapter.Enable(); err != nil {
		return fmt.Errorf("ble: enable adapter: %w", err)
	}
	return nil
}

func (p *TinyGoPeripheral) AddService(svc ServiceConfig) error {
	svcUUID, err := bluetooth.ParseUUID(svc.UUID)
	if err != nil {
		return fmt.Errorf("ble: parse service UUID: %w", err)
	}

	chars := make([]bluetooth.CharacteristicConfig, 0, len(svc.Characteristics))
	for _, c := range svc.Characteristics {
		charUUID, err := bluetooth.ParseUUID(c.UUID)
		if err != nil {
			return fmt.Errorf("ble: parse characteristic UUID: %w", err)
		}
		cfg := bluetooth.CharacteristicConfig{
			Handle: &bluetooth.Characteristic{},
			UUID:   charUUID,
			Value:  c.Value,
			Flags:  flags(c.Permissions),
		}
		if c.OnWrite != nil {
			onWrite := c.OnWrite
			cfg.WriteEvent = func(client bluetooth.Connection, offset int, value []byte) {
				onWrite(value)
			}
		}
		chars = append(chars, cfg)
	}

	err = p.adapter.AddService(&bluetooth.Service{
		UUID:            svcUUID,
		Characteristics: chars,
	})
	if err != nil {
		return fmt.Errorf("ble: add service %s: %w", svc.UUID, err)
	}
	return nil
}

func flags(perm Permission) bluetooth.CharacteristicPermissions {
	var f bluetooth.CharacteristicPermissions
	if perm&PermRead != 0 {
		f |= bluetooth.CharacteristicReadPermission
	}
	if perm&PermWrite != 0 {
		f |= bluetooth.CharacteristicWritePermission
	}
	if perm&PermNotify != 0 {
		f |= bluetooth.CharacteristicNotifyPermission
	}
	return f
}

func (p *TinyGoPeripheral) ConfigureAdvertisement(localName string, serviceUUIDs []string) error {
	uuids := make([]bluetooth.UUID, 0, len(serviceUUIDs))
	for _, s := range serviceUUIDs {
		u, err := bluetooth.ParseUUID(s)
		if err != nil {
			return fmt.Errorf("ble: parse service UUID: %w", err)
		}
		uuids = append(uuids, u)
	}

	adv := p.adapter.DefaultAdvertisement()
	err := adv.Configure(bluetooth.AdvertisementOptions{
		LocalName:    localName,
		ServiceUUIDs: uuids,
	})
	if err != nil {
		return fmt.Errorf("ble: configure advertisement: %w", err)
	}

	p.mu.Lock()
	p.adv = adv
	p.mu.Unlock()
	return nil
}

func (p *TinyGoPeripheral) StartAdvertising() error {
	p.mu.Lock()
	adv := p.adv
	p.mu.Unlock()
	if adv == nil {
		return fmt.Errorf("ble: advertisement not configured")
	}
	if err := adv.Start(); err != nil {
		return fmt.Errorf("ble: start advertising: %w", err)
	}
	return nil
}

func (p *TinyGoPeripheral) StopAdvertising() error {
	p.mu.Lock()
	adv := p.adv
	p.mu.Unlock()
	if adv == nil {
		return nil
	}
	if err := adv.Stop(); err != nil {
		return fmt.Errorf("ble: stop advertising: %w", err)
	}
	return nil
}

func (p *TinyGoPeripheral) SetConnectHandler(cb func(addr string, connected bool)) {
	p.adapter.SetConnectHandler(func(device bluetooth.Device, connected bool) {
		cb(strings.ToUpper(device.Address.String()), connected)
	})
}

// Compile-time check that TinyGoPeripheral implements Peripheral.
var _ Peripheral = (*TinyGoPeripheral)(nil)
