package emu

import (
	"encoding/binary"
	"testing"
)

// buildROM constructs a minimal, checksum-valid ROM-only cartridge whose
// entry point is a tight infinite loop, so a stepped frame has something
// deterministic to execute.
func buildROM(title string) []byte {
	rom := make([]byte, 32*1024)

	// JP 0x0150 at the entry point, then an infinite JR loop just past the header.
	rom[0x0100] = 0x00 // NOP
	rom[0x0101] = 0xC3 // JP a16
	rom[0x0102] = 0x50
	rom[0x0103] = 0x01
	rom[0x0150] = 0x18 // JR -2 (spin forever)
	rom[0x0151] = 0xFE

	tbytes := []byte(title)
	if len(tbytes) > 16 {
		tbytes = tbytes[:16]
	}
	copy(rom[0x0134:0x0144], tbytes)

	rom[0x0143] = 0x00 // DMG-only
	rom[0x0144], rom[0x0145] = '0', '1'
	rom[0x0147] = 0x00 // ROM only
	rom[0x0148] = 0x00 // 32 KiB
	rom[0x0149] = 0x00 // no RAM
	rom[0x014B] = 0x33

	var hsum byte
	for addr := 0x0134; addr <= 0x014C; addr++ {
		hsum = hsum - rom[addr] - 1
	}
	rom[0x014D] = hsum

	var gsum uint16
	for i, b := range rom {
		if i == 0x014E || i == 0x014F {
			continue
		}
		gsum += uint16(b)
	}
	binary.BigEndian.PutUint16(rom[0x014E:0x0150], gsum)
	return rom
}

func TestMachine_LoadAndStepFrame(t *testing.T) {
	m := New(Config{})
	if err := m.LoadCartridge(buildROM("SPINLOOP"), nil); err != nil {
		t.Fatalf("LoadCartridge: %v", err)
	}
	if got := m.ROMTitle(); got != "SPINLOOP" {
		t.Fatalf("ROMTitle got %q want SPINLOOP", got)
	}

	m.StepFrame()

	fb := m.Framebuffer()
	if len(fb) != 160*144*4 {
		t.Fatalf("Framebuffer length got %d want %d", len(fb), 160*144*4)
	}
	for i := 3; i < len(fb); i += 4 {
		if fb[i] != 0xFF {
			t.Fatalf("alpha channel at pixel %d got %#02x want 0xFF", i/4, fb[i])
		}
	}
}

func TestMachine_SaveAndLoadState(t *testing.T) {
	m := New(Config{})
	if err := m.LoadCartridge(buildROM("SPINLOOP"), nil); err != nil {
		t.Fatalf("LoadCartridge: %v", err)
	}
	m.StepFrame()

	blob := m.SaveState()
	if len(blob) == 0 {
		t.Fatalf("SaveState returned empty blob")
	}

	m2 := New(Config{})
	if err := m2.LoadCartridge(buildROM("SPINLOOP"), nil); err != nil {
		t.Fatalf("LoadCartridge (m2): %v", err)
	}
	if err := m2.LoadState(blob); err != nil {
		t.Fatalf("LoadState: %v", err)
	}
}

func TestMachine_CompatPaletteCycling(t *testing.T) {
	m := New(Config{})
	m.SetUseCGBBG(true)
	if err := m.LoadCartridge(buildROM("UNKNOWNGAME"), nil); err != nil {
		t.Fatalf("LoadCartridge: %v", err)
	}
	if !m.IsCGBCompat() {
		t.Fatalf("expected IsCGBCompat() true for a DMG-only title under WantCGBColors")
	}

	start := m.CurrentCompatPalette()
	m.CycleCompatPalette(1)
	if m.CurrentCompatPalette() == start && len(cgbCompatSets) > 1 {
		t.Fatalf("CycleCompatPalette did not change the active palette")
	}

	name := m.CompatPaletteName(m.CurrentCompatPalette())
	if name == "" {
		t.Fatalf("CompatPaletteName returned empty string")
	}
}
