package ble

import (
	"fmt"
	"log/slog"
)

// Server wires the GATT service and connection lifecycle onto a peripheral
// and keeps it advertising.
type Server struct {
	p         Peripheral
	svc       *Service
	life      *Lifecycle
	localName string
}

// NewServer panics if any dependency is nil.
func NewServer(p Peripheral, svc *Service, life *Lifecycle, localName string) *Server {
	if p == nil || svc == nil || life == nil {
		panic("ble: NewServer called with nil dependency")
	}
	return &Server{p: p, svc: svc, life: life, localName: localName}
}

// Start registers the services and begins advertising. The peripheral must
// already be enabled.
func (s *Server) Start() error {
	if err := s.svc.Register(s.p); err != nil {
		return err
	}
	s.p.SetConnectHandler(s.life.HandleConnect)
	if err := s.p.ConfigureAdvertisement(s.localName, s.svc.ServiceUUIDs()); err != nil {
		return fmt.Errorf("ble: %w", err)
	}
	if err := s.p.StartAdvertising(); err != nil {
		return fmt.Errorf("ble: %w", err)
	}
	slog.Info("[BLE] advertising", "name", s.localName, "services", s.svc.ServiceUUIDs())
	return nil
}

// Stop stops advertising.
func (s *Server) Stop() error {
	s.life.Stop()
	if err := s.p.StopAdvertising(); err != nil {
		return err
	}
	slog.Info("[BLE] advertising stopped")
	return nil
}
