package pairing

import (
	"context"
	"errors"
	"testing"

	"github.com/godbus/dbus/v5"
)

func testPolicy(t *testing.T) *Policy {
	t.Helper()
	p, err := NewPolicy(Options{Mode: ModeFixed, Passkey: 123456}, "AA:BB:CC:DD:EE:FF")
	if err != nil {
		t.Fatalf("NewPolicy() error = %v", err)
	}
	return p
}

func TestAgentRegister(t *testing.T) {
	b := newMockBus()
	a := newAgent(b, testPolicy(t), "hci0")

	if err := a.Register(context.Background()); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	defer a.Close()

	if _, ok := b.exported[AgentPath].(*agent1); !ok {
		t.Fatalf("agent not exported at %s", AgentPath)
	}
	calls := b.Calls()
	if len(calls) != 2 {
		t.Fatalf("calls = %v, want RegisterAgent and RequestDefaultAgent", b.methods())
	}
	if calls[0].method != "org.bluez.AgentManager1.RegisterAgent" {
		t.Errorf("first call = %s", calls[0].method)
	}
	if calls[0].args[0] != AgentPath || calls[0].args[1] != "DisplayOnly" {
		t.Errorf("RegisterAgent args = %v, want [%s DisplayOnly]", calls[0].args, AgentPath)
	}
	if calls[1].method != "org.bluez.AgentManager1.RequestDefaultAgent" {
		t.Errorf("second call = %s", calls[1].method)
	}
	if b.matches != 1 {
		t.Errorf("match rules = %d, want 1", b.matches)
	}

	// Registering twice is a no-op.
	if err := a.Register(context.Background()); err != nil {
		t.Fatalf("second Register() error = %v", err)
	}
	if len(b.Calls()) != 2 {
		t.Errorf("second Register() made calls: %v", b.methods())
	}
}

func TestAgentRegisterFails(t *testing.T) {
	b := newMockBus()
	b.errs["org.bluez.AgentManager1.RegisterAgent"] = errors.New("access denied")
	a := newAgent(b, testPolicy(t), "hci0")

	if err := a.Register(context.Background()); err == nil {
		t.Fatal("Register() should fail")
	}
}

func TestAgentCloseUnregisters(t *testing.T) {
	b := newMockBus()
	a := newAgent(b, testPolicy(t), "hci0")
	if err := a.Register(context.Background()); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	m := b.methods()
	if m[len(m)-1] != "org.bluez.AgentManager1.UnregisterAgent" {
		t.Errorf("last call = %s, want UnregisterAgent", m[len(m)-1])
	}
	if !b.closed {
		t.Error("bus should be closed")
	}
}

func TestRequireEncryption(t *testing.T) {
	b := newMockBus()
	a := newAgent(b, testPolicy(t), "hci1")

	if err := a.RequireEncryption("aa:bb:cc:dd:ee:ff"); err != nil {
		t.Fatalf("RequireEncryption() error = %v", err)
	}
	a.wg.Wait()

	calls := b.Calls()
	if len(calls) != 2 {
		t.Fatalf("calls = %v, want Set and Pair", b.methods())
	}
	wantPath := dbus.ObjectPath("/org/bluez/hci1/dev_AA_BB_CC_DD_EE_FF")
	if calls[0].path != wantPath || calls[0].method != "org.freedesktop.DBus.Properties.Set" {
		t.Errorf("first call = %s %s", calls[0].path, calls[0].method)
	}
	if calls[0].args[0] != "org.bluez.Device1" || calls[0].args[1] != "Trusted" {
		t.Errorf("Set args = %v", calls[0].args)
	}
	if v, ok := calls[0].args[2].(dbus.Variant); !ok || v.Value() != true {
		t.Errorf("Trusted value = %v, want true", calls[0].args[2])
	}
	if calls[1].path != wantPath || calls[1].method != "org.bluez.Device1.Pair" {
		t.Errorf("second call = %s %s", calls[1].path, calls[1].method)
	}
}

func TestRequireEncryptionTrustFails(t *testing.T) {
	b := newMockBus()
	b.errs["org.freedesktop.DBus.Properties.Set"] = dbus.Error{Name: "org.bluez.Error.DoesNotExist"}
	a := newAgent(b, testPolicy(t), "hci0")

	if err := a.RequireEncryption("AA:BB:CC:DD:EE:FF"); err == nil {
		t.Fatal("RequireEncryption() should fail when the device cannot be trusted")
	}
	a.wg.Wait()
	if len(b.Calls()) != 1 {
		t.Errorf("calls = %v, want only Set", b.methods())
	}
}

func TestAlreadyPaired(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{dbus.Error{Name: "org.bluez.Error.AlreadyExists"}, true},
		{dbus.NewError("org.bluez.Error.InProgress", nil), true},
		{dbus.Error{Name: "org.bluez.Error.AuthenticationFailed"}, false},
		{errors.New("boom"), false},
	}
	for _, tt := range tests {
		if got := alreadyPaired(tt.err); got != tt.want {
			t.Errorf("alreadyPaired(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestHandleSignalIgnoresOtherProperties(t *testing.T) {
	a := newAgent(newMockBus(), testPolicy(t), "hci0")
	// None of these should panic.
	a.handleSignal(nil)
	a.handleSignal(&dbus.Signal{Body: []any{"org.bluez.Adapter1", map[string]dbus.Variant{}}})
	a.handleSignal(&dbus.Signal{Body: []any{deviceIface, map[string]dbus.Variant{"Connected": dbus.MakeVariant(true)}}})
	a.handleSignal(&dbus.Signal{
		Path: "/org/bluez/hci0/dev_AA_BB_CC_DD_EE_FF",
		Body: []any{deviceIface, map[string]dbus.Variant{"Paired": dbus.MakeVariant(true)}, []string{}},
	})
}

func TestDevicePath(t *testing.T) {
	got := DevicePath("/org/bluez/hci0", "24:0a:c4:12:34:56")
	if got != "/org/bluez/hci0/dev_24_0A_C4_12_34_56" {
		t.Errorf("DevicePath() = %s", got)
	}
	if mac := MACFromPath(got); mac != "24:0A:C4:12:34:56" {
		t.Errorf("MACFromPath() = %s", mac)
	}
	if mac := MACFromPath("/org/bluez/hci0"); mac != "" {
		t.Errorf("MACFromPath(adapter) = %q, want empty", mac)
	}
}

func TestAgent1Methods(t *testing.T) {
	g := &agent1{policy: testPolicy(t)}
	dev := dbus.ObjectPath("/org/bluez/hci0/dev_AA_BB_CC_DD_EE_FF")

	pk, dErr := g.RequestPasskey(dev)
	if dErr != nil || pk != 123456 {
		t.Errorf("RequestPasskey() = (%d, %v), want (123456, nil)", pk, dErr)
	}
	pin, dErr := g.RequestPinCode(dev)
	if dErr != nil || pin != "123456" {
		t.Errorf("RequestPinCode() = (%q, %v)", pin, dErr)
	}
	if dErr := g.RequestConfirmation(dev, 654321); dErr != nil {
		t.Errorf("RequestConfirmation() = %v, want nil", dErr)
	}
	if dErr := g.RequestAuthorization(dev); dErr != nil {
		t.Errorf("RequestAuthorization() = %v, want nil", dErr)
	}
	if dErr := g.AuthorizeService(dev, "7e6a3000-0000-0000-0000-000000000001"); dErr != nil {
		t.Errorf("AuthorizeService() = %v, want nil", dErr)
	}
	if dErr := g.DisplayPasskey(dev, 42, 0); dErr != nil {
		t.Errorf("DisplayPasskey() = %v", dErr)
	}
	if dErr := g.Cancel(); dErr != nil {
		t.Errorf("Cancel() = %v", dErr)
	}
}
