package pairing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/godbus/dbus/v5"
)

// BlueZ D-Bus names.
const (
	bluezService      = "org.bluez"
	agentManagerIface = "org.bluez.AgentManager1"
	agentIface        = "org.bluez.Agent1"
	deviceIface       = "org.bluez.Device1"
	propertiesIface   = "org.freedesktop.DBus.Properties"

	// AgentPath is where the pairing agent is exported on the system bus.
	AgentPath = dbus.ObjectPath("/com/github/chaz8081/jukebox/agent")
)

// bus is the part of the system bus connection the agent uses.
type bus interface {
	Export(v any, path dbus.ObjectPath, iface string) error
	AddMatchSignal(options ...dbus.MatchOption) error
	Signal(ch chan<- *dbus.Signal)
	RemoveSignal(ch chan<- *dbus.Signal)
	call(path dbus.ObjectPath, method string, args ...any) error
	Close() error
}

type systemBus struct {
	*dbus.Conn
}

func (b systemBus) call(path dbus.ObjectPath, method string, args ...any) error {
	return b.Object(bluezService, path).Call(method, 0, args...).Err
}

// Agent exports a Policy to BlueZ as the default pairing agent and secures
// links on request.
type Agent struct {
	bus         bus
	policy      *Policy
	adapterPath dbus.ObjectPath

	mu         sync.Mutex
	registered bool
	cancel     context.CancelFunc
	wg         sync.WaitGroup
}

// NewAgent connects to the system bus. adapter is the BlueZ adapter id,
// e.g. "hci0".
func NewAgent(policy *Policy, adapter string) (*Agent, error) {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, fmt.Errorf("pairing: connecting to system bus: %w", err)
	}
	return newAgent(systemBus{conn}, policy, adapter), nil
}

func newAgent(b bus, policy *Policy, adapter string) *Agent {
	if policy == nil {
		panic("pairing: newAgent called with nil policy")
	}
	if adapter == "" {
		adapter = "hci0"
	}
	return &Agent{
		bus:         b,
		policy:      policy,
		adapterPath: dbus.ObjectPath("/org/bluez/" + adapter),
	}
}

// Register exports the agent, makes it the default and starts watching for
// completed pairings until ctx is done or Close is called.
func (a *Agent) Register(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.registered {
		return nil
	}

	if err := a.bus.Export(&agent1{policy: a.policy}, AgentPath, agentIface); err != nil {
		return fmt.Errorf("pairing: exporting agent: %w", err)
	}
	params := a.policy.Params()
	if err := a.bus.call("/org/bluez", agentManagerIface+".RegisterAgent", AgentPath, params.IOCapability); err != nil {
		return fmt.Errorf("pairing: registering agent: %w", err)
	}
	if err := a.bus.call("/org/bluez", agentManagerIface+".RequestDefaultAgent", AgentPath); err != nil {
		return fmt.Errorf("pairing: requesting default agent: %w", err)
	}

	err := a.bus.AddMatchSignal(
		dbus.WithMatchInterface(propertiesIface),
		dbus.WithMatchMember("PropertiesChanged"),
		dbus.WithMatchArg(0, deviceIface),
	)
	if err != nil {
		return fmt.Errorf("pairing: watching device properties: %w", err)
	}

	watchCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	signals := make(chan *dbus.Signal, 16)
	a.bus.Signal(signals)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer a.bus.RemoveSignal(signals)
		a.watch(watchCtx, signals)
	}()

	a.registered = true
	slog.Info("[PAIR] agent registered",
		"path", AgentPath,
		"auth", params.AuthMode,
		"io_capability", params.IOCapability,
		"key_size", params.KeySize)
	return nil
}

func (a *Agent) watch(ctx context.Context, signals <-chan *dbus.Signal) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig, ok := <-signals:
			if !ok {
				return
			}
			a.handleSignal(sig)
		}
	}
}

// handleSignal reports a completed pairing when a device's Paired
// property turns true.
func (a *Agent) handleSignal(sig *dbus.Signal) {
	if sig == nil || len(sig.Body) < 2 {
		return
	}
	if iface, ok := sig.Body[0].(string); !ok || iface != deviceIface {
		return
	}
	changed, ok := sig.Body[1].(map[string]dbus.Variant)
	if !ok {
		return
	}
	paired, ok := changed["Paired"]
	if !ok {
		return
	}
	if v, ok := paired.Value().(bool); ok && v {
		a.policy.AuthComplete(MACFromPath(sig.Path), true)
	}
}

// RequireEncryption trusts the peer and asks BlueZ to pair with it, which
// makes the link encrypted and authenticated. Pairing runs in the
// background; failures are reported through the policy.
func (a *Agent) RequireEncryption(addr string) error {
	path := DevicePath(a.adapterPath, addr)
	err := a.bus.call(path, propertiesIface+".Set", deviceIface, "Trusted", dbus.MakeVariant(true))
	if err != nil {
		return fmt.Errorf("pairing: trusting %s: %w", addr, err)
	}
	slog.Debug("[PAIR] device trusted", "peer", addr)

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		err := a.bus.call(path, deviceIface+".Pair")
		if err == nil || alreadyPaired(err) {
			return
		}
		slog.Error("[PAIR] pairing failed", "peer", addr, "error", err)
		a.policy.AuthComplete(addr, false)
	}()
	return nil
}

// alreadyPaired reports whether a Pair failure only means the peer is
// already paired or pairing with us.
func alreadyPaired(err error) bool {
	var name string
	var dErr dbus.Error
	var pErr *dbus.Error
	switch {
	case errors.As(err, &dErr):
		name = dErr.Name
	case errors.As(err, &pErr):
		name = pErr.Name
	}
	return name == "org.bluez.Error.AlreadyExists" || name == "org.bluez.Error.InProgress"
}

// Unregister removes the agent from BlueZ and stops watching.
func (a *Agent) Unregister() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.registered {
		return nil
	}
	a.registered = false
	if a.cancel != nil {
		a.cancel()
	}
	if err := a.bus.call("/org/bluez", agentManagerIface+".UnregisterAgent", AgentPath); err != nil {
		return fmt.Errorf("pairing: unregistering agent: %w", err)
	}
	slog.Info("[PAIR] agent unregistered")
	return nil
}

// Close unregisters the agent, waits for background pairing attempts and
// closes the bus connection.
func (a *Agent) Close() error {
	err := a.Unregister()
	a.wg.Wait()
	if cerr := a.bus.Close(); err == nil {
		err = cerr
	}
	return err
}

// DevicePath returns the BlueZ object path of a peer on an adapter.
func DevicePath(adapterPath dbus.ObjectPath, addr string) dbus.ObjectPath {
	return dbus.ObjectPath(string(adapterPath) + "/dev_" + strings.ReplaceAll(strings.ToUpper(addr), ":", "_"))
}

// MACFromPath returns the peer address encoded in a BlueZ device path, or
// "" if path is not a device path.
func MACFromPath(path dbus.ObjectPath) string {
	s := string(path)
	i := strings.LastIndex(s, "/dev_")
	if i < 0 {
		return ""
	}
	return strings.ReplaceAll(s[i+len("/dev_"):], "_", ":")
}

var errRejected = dbus.NewError("org.bluez.Error.Rejected", nil)

// agent1 implements org.bluez.Agent1 on top of a Policy.
type agent1 struct {
	policy *Policy
}

func (g *agent1) Release() *dbus.Error {
	slog.Debug("[PAIR] agent released")
	return nil
}

func (g *agent1) RequestPinCode(device dbus.ObjectPath) (string, *dbus.Error) {
	return FormatPasskey(g.policy.Passkey()), nil
}

func (g *agent1) DisplayPinCode(device dbus.ObjectPath, pincode string) *dbus.Error {
	slog.Info("[PAIR] pin code", "peer", MACFromPath(device), "pin", pincode)
	return nil
}

func (g *agent1) RequestPasskey(device dbus.ObjectPath) (uint32, *dbus.Error) {
	return g.policy.Passkey(), nil
}

func (g *agent1) DisplayPasskey(device dbus.ObjectPath, passkey uint32, entered uint16) *dbus.Error {
	g.policy.DisplayPasskey(passkey)
	return nil
}

func (g *agent1) RequestConfirmation(device dbus.ObjectPath, passkey uint32) *dbus.Error {
	if !g.policy.ConfirmPIN(passkey) {
		return errRejected
	}
	return nil
}

func (g *agent1) RequestAuthorization(device dbus.ObjectPath) *dbus.Error {
	if !g.policy.SecurityRequest() {
		return errRejected
	}
	return nil
}

func (g *agent1) AuthorizeService(device dbus.ObjectPath, uuid string) *dbus.Error {
	if !g.policy.SecurityRequest() {
		return errRejected
	}
	return nil
}

func (g *agent1) Cancel() *dbus.Error {
	slog.Info("[PAIR] pairing cancelled by peer")
	return nil
}
