// Package saveutil provides the gob encode/decode helpers shared by the
// SaveState/LoadState pairs of the MMU, PPU, timer, joypad and cartridge
// controllers (the APU calls encoding/gob directly), following the pattern the bus
// originally used inline for its own snapshot.
package saveutil

import (
	"bytes"
	"encoding/gob"
)

// Encode gob-encodes v, returning nil on failure (save states are
// best-effort; a failed encode just yields an empty snapshot).
func Encode(v any) []byte {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil
	}
	return buf.Bytes()
}

// Decode gob-decodes data into v, reporting whether it succeeded. A failed
// or empty decode leaves v untouched so callers can keep their current state.
func Decode(data []byte, v any) bool {
	if len(data) == 0 {
		return false
	}
	return gob.NewDecoder(bytes.NewReader(data)).Decode(v) == nil
}
