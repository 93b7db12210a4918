package ble

import (
	"errors"
	"fmt"
	"sync"

	"github.com/chaz8081/jukebox-ble/internal/relay"
)

// mockPeripheral records services and simulates peer writes and connects.
type mockPeripheral struct {
	mu          sync.Mutex
	enabled     bool
	services    []ServiceConfig
	localName   string
	advUUIDs    []string
	advStarts   int
	advStops    int
	advFailures int // StartAdvertising fails this many times before succeeding
	connectCb   func(addr string, connected bool)
	addr        string
}

func newMockPeripheral() *mockPeripheral {
	return &mockPeripheral{addr: "24:0A:C4:12:34:56"}
}

func (p *mockPeripheral) Enable() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.enabled = true
	return nil
}

func (p *mockPeripheral) AddService(svc ServiceConfig) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.services = append(p.services, svc)
	return nil
}

func (p *mockPeripheral) ConfigureAdvertisement(localName string, serviceUUIDs []string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.localName = localName
	p.advUUIDs = serviceUUIDs
	return nil
}

func (p *mockPeripheral) StartAdvertising() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.advStarts++
	if p.advFailures > 0 {
		p.advFailures--
		return errors.New("mock: advertising busy")
	}
	return nil
}

func (p *mockPeripheral) StopAdvertising() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.advStops++
	return nil
}

func (p *mockPeripheral) SetConnectHandler(cb func(addr string, connected bool)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.connectCb = cb
}

func (p *mockPeripheral) Address() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.addr == "" {
		return "", errors.New("mock: no address")
	}
	return p.addr, nil
}

// Write simulates a peer writing value to the characteristic charUUID.
func (p *mockPeripheral) Write(charUUID string, value []byte) error {
	p.mu.Lock()
	var onWrite func([]byte)
	for _, svc := range p.services {
		for _, c := range svc.Characteristics {
			if c.UUID == charUUID {
				onWrite = c.OnWrite
			}
		}
	}
	p.mu.Unlock()
	if onWrite == nil {
		return fmt.Errorf("mock: characteristic %s not writable", charUUID)
	}
	onWrite(value)
	return nil
}

// Connect simulates a peer connecting or disconnecting.
func (p *mockPeripheral) Connect(addr string, connected bool) {
	p.mu.Lock()
	cb := p.connectCb
	p.mu.Unlock()
	if cb != nil {
		cb(addr, connected)
	}
}

func (p *mockPeripheral) AdvStarts() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.advStarts
}

// mockSubmitter records relay jobs.
type mockSubmitter struct {
	mu   sync.Mutex
	jobs []relay.Job
	err  error
}

func (s *mockSubmitter) Submit(job relay.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.jobs = append(s.jobs, job)
	return nil
}

func (s *mockSubmitter) Jobs() []relay.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]relay.Job(nil), s.jobs...)
}

// mockSecurity records link security requests.
type mockSecurity struct {
	mu    sync.Mutex
	addrs []string
	err   error
}

func (s *mockSecurity) RequireEncryption(addr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addrs = append(s.addrs, addr)
	return s.err
}
