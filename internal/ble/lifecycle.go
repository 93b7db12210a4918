package ble

import (
	"log/slog"
	"strings"
	"sync"
	"time"
)

// LinkSecurity upgrades a peer's link to an encrypted, authenticated one.
type LinkSecurity interface {
	RequireEncryption(addr string) error
}

// Lifecycle reacts to peers connecting and disconnecting. It keeps no
// connection table; with several peers the last writer wins.
type Lifecycle struct {
	p            Peripheral
	sec          LinkSecurity // nil: links are left as negotiated
	maxBackoff   int          // seconds
	sleep        func(time.Duration)
	stop         chan struct{}
	stopOnce     sync.Once
	readvertMu   sync.Mutex
	readvertBusy bool
}

// NewLifecycle panics if p is nil. sec may be nil.
func NewLifecycle(p Peripheral, sec LinkSecurity) *Lifecycle {
	if p == nil {
		panic("ble: NewLifecycle called with nil peripheral")
	}
	return &Lifecycle{
		p:          p,
		sec:        sec,
		maxBackoff: 30,
		sleep:      time.Sleep,
		stop:       make(chan struct{}),
	}
}

// HandleConnect is the peripheral's connect handler.
func (l *Lifecycle) HandleConnect(addr string, connected bool) {
	addr = strings.ToUpper(addr)
	if connected {
		l.onConnect(addr)
		return
	}
	l.onDisconnect(addr)
}

func (l *Lifecycle) onConnect(addr string) {
	slog.Info("[BLE] connected", "peer", addr)
	if l.sec == nil {
		return
	}
	if err := l.sec.RequireEncryption(addr); err != nil {
		slog.Error("[BLE] requesting encrypted link", "peer", addr, "error", err)
	}
}

func (l *Lifecycle) onDisconnect(addr string) {
	slog.Info("[BLE] disconnected. Advertising...", "peer", addr)
	if err := l.p.StartAdvertising(); err != nil {
		slog.Warn("[BLE] restarting advertising failed, retrying", "error", err)
		l.readvertise()
	}
}

// readvertise retries StartAdvertising with exponential backoff in the
// background until it succeeds or Stop is called. At most one retry loop
// runs at a time.
func (l *Lifecycle) readvertise() {
	l.readvertMu.Lock()
	if l.readvertBusy {
		l.readvertMu.Unlock()
		return
	}
	l.readvertBusy = true
	l.readvertMu.Unlock()

	go func() {
		defer func() {
			l.readvertMu.Lock()
			l.readvertBusy = false
			l.readvertMu.Unlock()
		}()
		for attempt := 0; ; attempt++ {
			delay := backoffDelay(attempt, l.maxBackoff)
			select {
			case <-l.stop:
				return
			default:
			}
			l.sleep(delay)
			select {
			case <-l.stop:
				return
			default:
			}
			if err := l.p.StartAdvertising(); err != nil {
				slog.Warn("[BLE] advertising retry failed", "attempt", attempt+1, "next_delay", backoffDelay(attempt+1, l.maxBackoff), "error", err)
				continue
			}
			slog.Info("[BLE] advertising restarted", "attempts", attempt+1)
			return
		}
	}()
}

// Stop ends any advertising retry loop.
func (l *Lifecycle) Stop() {
	l.stopOnce.Do(func() { close(l.stop) })
}

// backoffDelay returns the retry delay for attempt n, capped at maxSeconds.
func backoffDelay(attempt int, maxSeconds int) time.Duration {
	if attempt > 30 {
		attempt = 30
	}
	delay := time.Duration(1<<uint(attempt)) * time.Second
	max := time.Duration(maxSeconds) * time.Second
	if delay > max {
		return max
	}
	return delay
}
