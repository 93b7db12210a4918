package ble

import (
	"errors"
	"testing"
	"time"

	"github.com/chaz8081/jukebox-ble/internal/command"
)

func TestBackoffDelay(t *testing.T) {
	delays := []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
		30 * time.Second, // capped
		30 * time.Second, // still capped
	}

	for i, want := range delays {
		got := backoffDelay(i, 30)
		if got != want {
			t.Errorf("backoffDelay(%d, 30) = %v, want %v", i, got, want)
		}
	}
	if got := backoffDelay(100, 30); got != 30*time.Second {
		t.Errorf("backoffDelay(100, 30) = %v, want 30s", got)
	}
}

func TestConnectRequiresEncryption(t *testing.T) {
	p := newMockPeripheral()
	sec := &mockSecurity{}
	l := NewLifecycle(p, sec)

	l.HandleConnect("aa:bb:cc:dd:ee:ff", true)

	if len(sec.addrs) != 1 || sec.addrs[0] != "AA:BB:CC:DD:EE:FF" {
		t.Errorf("RequireEncryption calls = %v, want [AA:BB:CC:DD:EE:FF]", sec.addrs)
	}
	if p.AdvStarts() != 0 {
		t.Errorf("advertising started on connect")
	}
}

func TestConnectSecurityErrorIsLogged(t *testing.T) {
	sec := &mockSecurity{err: errors.New("no such device")}
	l := NewLifecycle(newMockPeripheral(), sec)
	l.HandleConnect("AA:BB:CC:DD:EE:FF", true)
	if len(sec.addrs) != 1 {
		t.Errorf("RequireEncryption calls = %d, want 1", len(sec.addrs))
	}
}

func TestConnectWithoutSecurity(t *testing.T) {
	l := NewLifecycle(newMockPeripheral(), nil)
	l.HandleConnect("AA:BB:CC:DD:EE:FF", true)
}

func TestDisconnectRestartsAdvertising(t *testing.T) {
	p := newMockPeripheral()
	sec := &mockSecurity{}
	l := NewLifecycle(p, sec)

	l.HandleConnect("AA:BB:CC:DD:EE:FF", false)

	if p.AdvStarts() != 1 {
		t.Errorf("StartAdvertising calls = %d, want 1", p.AdvStarts())
	}
	if len(sec.addrs) != 0 {
		t.Errorf("RequireEncryption called on disconnect")
	}
}

func TestDisconnectRetriesAdvertising(t *testing.T) {
	p := newMockPeripheral()
	p.advFailures = 3
	l := NewLifecycle(p, nil)
	var delays []time.Duration
	slept := make(chan time.Duration, 8)
	l.sleep = func(d time.Duration) { slept <- d }

	l.HandleConnect("AA:BB:CC:DD:EE:FF", false)

	timeout := time.After(2 * time.Second)
	for len(delays) < 3 {
		select {
		case d := <-slept:
			delays = append(delays, d)
		case <-timeout:
			t.Fatalf("retries = %d, want 3", len(delays))
		}
	}

	deadline := time.Now().Add(2 * time.Second)
	for p.AdvStarts() < 4 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if p.AdvStarts() != 4 {
		t.Errorf("StartAdvertising calls = %d, want 4", p.AdvStarts())
	}
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}
	for i := range want {
		if delays[i] != want[i] {
			t.Errorf("delay %d = %v, want %v", i, delays[i], want[i])
		}
	}
	l.Stop()
}

func TestServerStart(t *testing.T) {
	p := newMockPeripheral()
	svc := NewService(command.NewRegister(), &mockSubmitter{}, p.Address, DefaultServiceOptions())
	sec := &mockSecurity{}
	s := NewServer(p, svc, NewLifecycle(p, sec), "TTGO_Jukebox")

	if err := s.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if p.localName != "TTGO_Jukebox" {
		t.Errorf("local name = %q", p.localName)
	}
	if len(p.advUUIDs) != 2 {
		t.Errorf("advertised UUIDs = %v, want both services", p.advUUIDs)
	}
	if p.AdvStarts() != 1 {
		t.Errorf("StartAdvertising calls = %d, want 1", p.AdvStarts())
	}

	// The lifecycle is wired as the connect handler.
	p.Connect("AA:BB:CC:DD:EE:FF", true)
	p.Connect("AA:BB:CC:DD:EE:FF", false)
	if len(sec.addrs) != 1 {
		t.Errorf("RequireEncryption calls = %d, want 1", len(sec.addrs))
	}
	if p.AdvStarts() != 2 {
		t.Errorf("StartAdvertising calls = %d, want 2", p.AdvStarts())
	}

	if err := s.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if p.advStops != 1 {
		t.Errorf("StopAdvertising calls = %d, want 1", p.advStops)
	}
}
