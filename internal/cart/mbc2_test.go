package cart

import "testing"

func TestMBC2_ROMBankingAndZeroRemap(t *testing.T) {
	rom := make([]byte, 256*1024)
	for bank := 0; bank < 16; bank++ {
		rom[bank*0x4000] = byte(bank)
	}
	m := NewMBC2(rom)

	if got := m.Read(0x4000); got != 0x01 {
		t.Fatalf("default bank1 read got %02X want 01", got)
	}

	// Address bit 8 set selects ROM bank.
	m.Write(0x2100, 0x05)
	if got := m.Read(0x4000); got != 0x05 {
		t.Fatalf("bank5 read got %02X want 05", got)
	}

	m.Write(0x2100, 0x00)
	if got := m.Read(0x4000); got != 0x01 {
		t.Fatalf("bank0->1 remap failed: got %02X", got)
	}
}

func TestMBC2_RAMNibbleMaskAndEnable(t *testing.T) {
	rom := make([]byte, 32*1024)
	m := NewMBC2(rom)

	if got := m.Read(0xA000); got != 0xFF {
		t.Fatalf("RAM disabled should read 0xFF, got %02X", got)
	}

	// Address bit 8 clear enables/disables RAM.
	m.Write(0x0000, 0x0A)
	m.Write(0xA000, 0xF7)
	if got := m.Read(0xA000); got != 0xF7 {
		t.Fatalf("expected low nibble 7 with high nibble forced to F, got %02X", got)
	}
}
