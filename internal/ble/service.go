package ble

import (
	"bytes"
	"fmt"
	"log/slog"

	"github.com/chaz8081/jukebox-ble/internal/command"
	"github.com/chaz8081/jukebox-ble/internal/relay"
)

// Submitter accepts data payloads for relaying. It must not block.
type Submitter interface {
	Submit(job relay.Job) error
}

// AddressFunc returns the adapter's own MAC address.
type AddressFunc func() (string, error)

// ServiceOptions configures the GATT layout.
type ServiceOptions struct {
	CommandServiceUUID string
	CommandCharUUID    string
	CommandInitial     string
	DataServiceUUID    string
	DataCharUUID       string
	DataInitial        string
	RelayKey           string // preference key sent with every data payload
}

// DefaultServiceOptions returns the jukebox's GATT layout.
func DefaultServiceOptions() ServiceOptions {
	return ServiceOptions{
		CommandServiceUUID: "7e6a3000-0000-0000-0000-000000000001",
		CommandCharUUID:    "7e6a3001-0000-0000-0000-000000000001",
		CommandInitial:     "P|N|B",
		DataServiceUUID:    "7e6a5000-0000-0000-0000-000000000001",
		DataCharUUID:       "7e6a5001-0000-0000-0000-000000000001",
		DataInitial:        "DATA",
		RelayKey:           "IoT_Jukebox",
	}
}

// Service handles writes to the command and data characteristics.
type Service struct {
	reg     *command.Register
	relay   Submitter
	address AddressFunc
	opts    ServiceOptions
}

// NewService panics if reg, relay or address is nil.
func NewService(reg *command.Register, relay Submitter, address AddressFunc, opts ServiceOptions) *Service {
	if reg == nil {
		panic("ble: NewService called with nil register")
	}
	if relay == nil {
		panic("ble: NewService called with nil submitter")
	}
	if address == nil {
		panic("ble: NewService called with nil address func")
	}
	def := DefaultServiceOptions()
	if opts.RelayKey == "" {
		opts.RelayKey = def.RelayKey
	}
	return &Service{reg: reg, relay: relay, address: address, opts: opts}
}

// HandleCommandWrite stores the first byte of value as the current command.
// Any byte is accepted; an empty write is ignored.
func (s *Service) HandleCommandWrite(value []byte) {
	if len(value) == 0 {
		return
	}
	gen := s.reg.Store(value[0])
	slog.Info("[BLE] command stored", "command", string(rune(value[0])), "gen", gen)
}

// HandleDataWrite lower-cases value and either stores it as a command
// (one byte) or submits it for relaying (more than one byte).
func (s *Service) HandleDataWrite(value []byte) {
	switch len(value) {
	case 0:
		return
	case 1:
		b := bytes.ToLower(value)[0]
		gen := s.reg.Store(b)
		slog.Info("[BLE] command stored", "command", string(rune(b)), "gen", gen, "via", "data")
		return
	}

	payload := string(bytes.ToLower(value))
	slog.Info("[BLE] DATA stored", "value", payload)

	id, err := s.address()
	if err != nil {
		slog.Error("[BLE] reading device address, payload dropped", "error", err)
		return
	}
	job := relay.Job{DeviceID: id, Key: s.opts.RelayKey, Value: payload}
	if err := s.relay.Submit(job); err != nil {
		slog.Error("[BLE] relay submit failed", "error", err)
	}
}

// Register adds the command and data services to p.
func (s *Service) Register(p Peripheral) error {
	err := p.AddService(ServiceConfig{
		UUID: s.opts.CommandServiceUUID,
		Characteristics: []CharacteristicConfig{{
			UUID:        s.opts.CommandCharUUID,
			Value:       []byte(s.opts.CommandInitial),
			Permissions: PermRead | PermWrite,
			OnWrite:     s.HandleCommandWrite,
		}},
	})
	if err != nil {
		return fmt.Errorf("ble: command service: %w", err)
	}

	err = p.AddService(ServiceConfig{
		UUID: s.opts.DataServiceUUID,
		Characteristics: []CharacteristicConfig{{
			UUID:        s.opts.DataCharUUID,
			Value:       []byte(s.opts.DataInitial),
			Permissions: PermWrite | PermNotify,
			OnWrite:     s.HandleDataWrite,
		}},
	})
	if err != nil {
		return fmt.Errorf("ble: data service: %w", err)
	}
	return nil
}

// ServiceUUIDs returns the UUIDs to advertise.
func (s *Service) ServiceUUIDs() []string {
	return []string{s.opts.CommandServiceUUID, s.opts.DataServiceUUID}
}
