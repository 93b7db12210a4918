// Package pairing answers BLE pairing requests for the jukebox. The policy
// is demo grade: one passkey shared with every peer, and every confirmation
// or security request is accepted.
package pairing

import (
	"fmt"
	"log/slog"
)

// Passkey modes.
const (
	ModeFixed   = "fixed"
	ModeDerived = "derived"
)

// Options configures a Policy.
type Options struct {
	Mode         string // ModeFixed or ModeDerived
	Passkey      uint32 // ModeFixed
	Secret       string // ModeDerived
	IOCapability string
	KeySize      int // reported only; BlueZ negotiates the key size itself
}

// SecurityParams describes the link security the jukebox asks for.
type SecurityParams struct {
	AuthMode     string
	IOCapability string
	KeySize      int
}

// Policy decides how pairing callbacks are answered.
type Policy struct {
	passkey uint32
	params  SecurityParams
}

// NewPolicy resolves the passkey for the adapter with the given MAC.
func NewPolicy(opts Options, mac string) (*Policy, error) {
	var passkey uint32
	switch opts.Mode {
	case ModeFixed, "":
		if opts.Passkey > MaxPasskey {
			return nil, fmt.Errorf("pairing: passkey %d has more than 6 digits", opts.Passkey)
		}
		passkey = opts.Passkey
	case ModeDerived:
		p, err := DerivePasskey(opts.Secret, mac)
		if err != nil {
			return nil, err
		}
		passkey = p
	default:
		return nil, fmt.Errorf("pairing: unknown passkey mode %q", opts.Mode)
	}

	params := SecurityParams{
		AuthMode:     "sc-mitm-bond",
		IOCapability: opts.IOCapability,
		KeySize:      opts.KeySize,
	}
	if params.IOCapability == "" {
		params.IOCapability = "DisplayOnly"
	}
	if params.KeySize == 0 {
		params.KeySize = 16
	}
	return &Policy{passkey: passkey, params: params}, nil
}

// Passkey answers a passkey request.
func (p *Policy) Passkey() uint32 {
	slog.Info("[PAIR] passkey requested")
	return p.passkey
}

// PasskeyRequested reports whether BlueZ can ask an agent with the given
// capability for a passkey. It only calls RequestPasskey when the local side
// can type one. With DisplayOnly or DisplayYesNo the kernel picks a random
// passkey and hands it to DisplayPasskey instead.
func PasskeyRequested(ioCapability string) bool {
	switch ioCapability {
	case "KeyboardOnly", "KeyboardDisplay":
		return true
	}
	return false
}

// ConfiguredPasskeyApplies reports whether pairing can use the configured
// passkey at all.
func (p *Policy) ConfiguredPasskeyApplies() bool {
	return PasskeyRequested(p.params.IOCapability)
}

// DisplayPasskey handles a passkey notification and reports whether the
// passkey shown is the configured one.
func (p *Policy) DisplayPasskey(passkey uint32) bool {
	if passkey != p.passkey {
		slog.Warn("[PAIR] stack generated its own passkey, enter this one on the peer",
			"passkey", FormatPasskey(passkey),
			"configured", FormatPasskey(p.passkey))
		return false
	}
	slog.Info("[PAIR] passkey", "passkey", FormatPasskey(passkey))
	return true
}

// ConfirmPIN always accepts.
func (p *Policy) ConfirmPIN(passkey uint32) bool {
	slog.Info("[PAIR] confirming passkey", "passkey", FormatPasskey(passkey))
	return true
}

// SecurityRequest always accepts.
func (p *Policy) SecurityRequest() bool {
	slog.Info("[PAIR] security request accepted")
	return true
}

// AuthComplete logs the pairing outcome. Nothing else happens either way.
func (p *Policy) AuthComplete(addr string, ok bool) {
	if ok {
		slog.Info("[PAIR] Bonded and authenticated", "peer", addr)
		return
	}
	slog.Warn("[PAIR] Authentication failed", "peer", addr)
}

// Params returns the link security the jukebox reports at agent
// registration. Only IOCapability is handed to BlueZ.
func (p *Policy) Params() SecurityParams {
	return p.params
}
