package pairing

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"
)

// MaxPasskey is the largest six-digit BLE passkey.
const MaxPasskey = 999999

// DerivePasskey derives a six-digit passkey from a shared secret and the
// adapter's MAC address, so each board gets its own code without one being
// written into the config.
// HKDF(secret, salt=nil, info="jukebox-passkey:"+MAC) -> 4 bytes -> mod 1e6.
func DerivePasskey(secret, mac string) (uint32, error) {
	if secret == "" {
		return 0, fmt.Errorf("pairing: derive passkey: empty secret")
	}
	info := "jukebox-passkey:" + strings.ToUpper(mac)
	r := hkdf.New(sha256.New, []byte(secret), nil, []byte(info))
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, fmt.Errorf("pairing: HKDF: %w", err)
	}
	return binary.BigEndian.Uint32(buf[:]) % (MaxPasskey + 1), nil
}

// FormatPasskey renders a passkey the way a peer displays it.
func FormatPasskey(p uint32) string {
	return fmt.Sprintf("%06d", p)
}
