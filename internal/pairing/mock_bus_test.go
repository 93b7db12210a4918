package pairing

import (
	"fmt"
	"sync"

	"github.com/godbus/dbus/v5"
)

// busCall records one method call on a BlueZ object.
type busCall struct {
	path   dbus.ObjectPath
	method string
	args   []any
}

// mockBus stands in for the system bus.
type mockBus struct {
	mu       sync.Mutex
	exported map[dbus.ObjectPath]any
	calls    []busCall
	errs     map[string]error // method -> error returned
	signals  []chan<- *dbus.Signal
	matches  int
	closed   bool
}

func newMockBus() *mockBus {
	return &mockBus{
		exported: map[dbus.ObjectPath]any{},
		errs:     map[string]error{},
	}
}

func (b *mockBus) Export(v any, path dbus.ObjectPath, iface string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if iface != agentIface {
		return fmt.Errorf("mock: unexpected interface %q", iface)
	}
	b.exported[path] = v
	return nil
}

func (b *mockBus) AddMatchSignal(options ...dbus.MatchOption) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.matches++
	return nil
}

func (b *mockBus) Signal(ch chan<- *dbus.Signal) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.signals = append(b.signals, ch)
}

func (b *mockBus) RemoveSignal(ch chan<- *dbus.Signal) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, c := range b.signals {
		if c == ch {
			b.signals = append(b.signals[:i], b.signals[i+1:]...)
			return
		}
	}
}

func (b *mockBus) call(path dbus.ObjectPath, method string, args ...any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, busCall{path: path, method: method, args: args})
	return b.errs[method]
}

func (b *mockBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

// Emit delivers sig to every registered signal channel.
func (b *mockBus) Emit(sig *dbus.Signal) {
	b.mu.Lock()
	chans := append([]chan<- *dbus.Signal(nil), b.signals...)
	b.mu.Unlock()
	for _, ch := range chans {
		ch <- sig
	}
}

func (b *mockBus) Calls() []busCall {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]busCall(nil), b.calls...)
}

func (b *mockBus) methods() []string {
	var out []string
	for _, c := range b.Calls() {
		out = append(out, c.method)
	}
	return out
}
