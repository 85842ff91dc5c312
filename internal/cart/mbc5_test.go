package cart

import "testing"

func TestMBC5_ROMBankZeroIsValid(t *testing.T) {
	rom := make([]byte, 1024*1024)
	for bank := 0; bank < 32; bank++ {
		rom[bank*0x4000] = byte(bank)
	}
	m := NewMBC5(rom, 0)

	m.Write(0x2000, 0x05)
	if got := m.Read(0x4000); got != 0x05 {
		t.Fatalf("bank5 read got %02X want 05", got)
	}

	// Unlike MBC1/MBC3, writing bank 0 must select bank 0, not remap to 1.
	m.Write(0x2000, 0x00)
	if got := m.Read(0x4000); got != 0x00 {
		t.Fatalf("bank0 should stay 0 on MBC5, got %02X", got)
	}
}

func TestMBC5_RAMBanking(t *testing.T) {
	rom := make([]byte, 64*1024)
	m := NewMBC5(rom, 4*0x2000)

	m.Write(0x0000, 0x0A)
	m.Write(0x4000, 0x02)
	m.Write(0xA000, 0x42)
	if got := m.Read(0xA000); got != 0x42 {
		t.Fatalf("RAM bank 2 readback got %02X want 42", got)
	}

	m.Write(0x4000, 0x00)
	if got := m.Read(0xA000); got == 0x42 {
		t.Fatalf("RAM bank 0 should not alias bank 2 data")
	}
}
