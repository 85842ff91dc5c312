package cart

import "github.com/palewave/gbcore/internal/saveutil"

// MBC2 supports up to 256 KiB ROM (16 banks) and has 512x4-bit on-chip RAM
// built into the cartridge itself — there is no RAM size in the header for
// MBC2 carts, the 512 nibbles are always present.
type MBC2 struct {
	rom []byte
	ram [512]byte // low nibble significant; upper nibble reads back as 1s

	romBank    byte // 4 bits (0 maps to 1)
	ramEnabled bool
}

func NewMBC2(rom []byte) *MBC2 {
	return &MBC2{rom: rom, romBank: 1}
}

func (m *MBC2) Read(addr uint16) byte {
	switch {
	case addr < 0x4000:
		if int(addr) < len(m.rom) {
			return m.rom[addr]
		}
		return 0xFF
	case addr < 0x8000:
		bank := int(m.romBank & 0x0F)
		if bank == 0 {
			bank = 1
		}
		off := bank*0x4000 + int(addr-0x4000)
		if off >= 0 && off < len(m.rom) {
			return m.rom[off]
		}
		return 0xFF
	case addr >= 0xA000 && addr <= 0xBFFF:
		if !m.ramEnabled {
			return 0xFF
		}
		return 0xF0 | (m.ram[addr%0x200] & 0x0F)
	default:
		return 0xFF
	}
}

func (m *MBC2) Write(addr uint16, value byte) {
	switch {
	case addr < 0x4000:
		// Bit 8 of the address disambiguates RAM-enable from ROM-bank-select.
		if addr&0x0100 == 0 {
			m.ramEnabled = (value & 0x0F) == 0x0A
		} else {
			bank := value & 0x0F
			if bank == 0 {
				bank = 1
			}
			m.romBank = bank
		}
	case addr >= 0xA000 && addr <= 0xBFFF:
		if !m.ramEnabled {
			return
		}
		m.ram[addr%0x200] = value & 0x0F
	}
}

// BatteryBacked implementation
func (m *MBC2) SaveRAM() []byte {
	out := make([]byte, len(m.ram))
	copy(out, m.ram[:])
	return out
}

func (m *MBC2) LoadRAM(data []byte) {
	if len(data) == 0 {
		return
	}
	copy(m.ram[:], data)
}

type mbc2State struct {
	RAM        [512]byte
	RomBank    byte
	RamEnabled bool
}

func (m *MBC2) SaveState() []byte {
	return saveutil.Encode(mbc2State{RAM: m.ram, RomBank: m.romBank, RamEnabled: m.ramEnabled})
}

func (m *MBC2) LoadState(data []byte) {
	var s mbc2State
	if !saveutil.Decode(data, &s) {
		return
	}
	m.ram, m.romBank, m.ramEnabled = s.RAM, s.RomBank, s.RamEnabled
}
