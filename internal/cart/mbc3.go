package cart

import "github.com/palewave/gbcore/internal/saveutil"

// MBC3 implements ROM/RAM banking plus the real-time clock registers.
// Banking behavior:
// - 0000-1FFF: RAM/RTC enable (0x0A in low nibble)
// - 2000-3FFF: ROM bank low 7 bits (0 maps to 1)
// - 4000-5FFF: RAM bank (0-3) or RTC register select (08-0C)
// - 6000-7FFF: latch clock data on a 0-then-1 write
// - A000-BFFF: external RAM, or the latched RTC register selected above
//
// The RTC registers are writable and latchable but do not advance on their
// own: games observe whatever sec/min/hour/day values were last written or
// latched, never real elapsed time.
type MBC3 struct {
	rom []byte
	ram []byte

	ramEnabled bool
	romBank    byte // 7 bits (1..127)
	ramBank    byte // 0..3, or an RTC register select (0x08-0x0C)

	rtcSec, rtcMin, rtcHour byte
	rtcDay                  uint16 // 9-bit day counter
	rtcHalt, rtcCarry       bool

	latchPrev                                                      byte
	latchedSec, latchedMin, latchedHour, latchedDayLow, latchedHi byte
}

func NewMBC3(rom []byte, ramSize int) *MBC3 {
	m := &MBC3{rom: rom}
	if ramSize > 0 {
		m.ram = make([]byte, ramSize)
	}
	m.romBank = 1
	return m
}

func (m *MBC3) latch() {
	m.latchedSec = m.rtcSec
	m.latchedMin = m.rtcMin
	m.latchedHour = m.rtcHour
	m.latchedDayLow = byte(m.rtcDay & 0xFF)
	hi := byte(0)
	if m.rtcDay&0x100 != 0 {
		hi |= 0x01
	}
	if m.rtcHalt {
		hi |= 0x40
	}
	if m.rtcCarry {
		hi |= 0x80
	}
	m.latchedHi = hi
}

func (m *MBC3) Read(addr uint16) byte {
	switch {
	case addr < 0x4000:
		if int(addr) < len(m.rom) {
			return m.rom[addr]
		}
		return 0xFF
	case addr < 0x8000:
		bank := int(m.romBank & 0x7F)
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
		if m.ramBank >= 0x08 && m.ramBank <= 0x0C {
			switch m.ramBank {
			case 0x08:
				return m.latchedSec
			case 0x09:
				return m.latchedMin
			case 0x0A:
				return m.latchedHour
			case 0x0B:
				return m.latchedDayLow
			default:
				return m.latchedHi
			}
		}
		if len(m.ram) == 0 {
			return 0xFF
		}
		rb := int(m.ramBank & 0x03)
		off := rb*0x2000 + int(addr-0xA000)
		if off >= 0 && off < len(m.ram) {
			return m.ram[off]
		}
		return 0xFF
	default:
		return 0xFF
	}
}

func (m *MBC3) Write(addr uint16, value byte) {
	switch {
	case addr < 0x2000:
		m.ramEnabled = (value & 0x0F) == 0x0A
	case addr < 0x4000:
		v := value & 0x7F
		if v == 0 {
			v = 1
		}
		m.romBank = v
	case addr < 0x6000:
		// 0-3 selects a RAM bank; 08-0C selects an RTC register for the next
		// read/write through A000-BFFF.
		if value <= 0x03 || (value >= 0x08 && value <= 0x0C) {
			m.ramBank = value
		}
	case addr < 0x8000:
		if m.latchPrev == 0x00 && value == 0x01 {
			m.latch()
		}
		m.latchPrev = value
	case addr >= 0xA000 && addr <= 0xBFFF:
		if !m.ramEnabled {
			return
		}
		if m.ramBank >= 0x08 && m.ramBank <= 0x0C {
			switch m.ramBank {
			case 0x08:
				m.rtcSec = value
			case 0x09:
				m.rtcMin = value
			case 0x0A:
				m.rtcHour = value
			case 0x0B:
				m.rtcDay = (m.rtcDay & 0x100) | uint16(value)
			default:
				if value&0x01 != 0 {
					m.rtcDay |= 0x100
				} else {
					m.rtcDay &^= 0x100
				}
				m.rtcHalt = value&0x40 != 0
				m.rtcCarry = value&0x80 != 0
			}
			return
		}
		if len(m.ram) == 0 {
			return
		}
		rb := int(m.ramBank & 0x03)
		off := rb*0x2000 + int(addr-0xA000)
		if off >= 0 && off < len(m.ram) {
			m.ram[off] = value
		}
	}
}

// BatteryBacked implementation. Only external RAM is part of the battery
// sidecar file; RTC register values ride along in SaveState instead, since
// the .sav format is expected to hold exactly the cartridge RAM bytes.
func (m *MBC3) SaveRAM() []byte {
	if len(m.ram) == 0 {
		return nil
	}
	out := make([]byte, len(m.ram))
	copy(out, m.ram)
	return out
}

func (m *MBC3) LoadRAM(data []byte) {
	if len(m.ram) == 0 || len(data) == 0 {
		return
	}
	copy(m.ram, data)
}

type mbc3State struct {
	RAM                                                            []byte
	RamEnabled                                                     bool
	RomBank, RamBank                                               byte
	RTCSec, RTCMin, RTCHour                                        byte
	RTCDay                                                         uint16
	RTCHalt, RTCCarry                                              bool
	LatchPrev                                                      byte
	LatchedSec, LatchedMin, LatchedHour, LatchedDayLow, LatchedHi byte
}

func (m *MBC3) SaveState() []byte {
	return saveutil.Encode(mbc3State{
		RAM: m.ram, RamEnabled: m.ramEnabled, RomBank: m.romBank, RamBank: m.ramBank,
		RTCSec: m.rtcSec, RTCMin: m.rtcMin, RTCHour: m.rtcHour, RTCDay: m.rtcDay,
		RTCHalt: m.rtcHalt, RTCCarry: m.rtcCarry,
		LatchPrev: m.latchPrev, LatchedSec: m.latchedSec, LatchedMin: m.latchedMin,
		LatchedHour: m.latchedHour, LatchedDayLow: m.latchedDayLow, LatchedHi: m.latchedHi,
	})
}

func (m *MBC3) LoadState(data []byte) {
	var s mbc3State
	if !saveutil.Decode(data, &s) {
		return
	}
	if len(s.RAM) == len(m.ram) {
		copy(m.ram, s.RAM)
	}
	m.ramEnabled, m.romBank, m.ramBank = s.RamEnabled, s.RomBank, s.RamBank
	m.rtcSec, m.rtcMin, m.rtcHour, m.rtcDay = s.RTCSec, s.RTCMin, s.RTCHour, s.RTCDay
	m.rtcHalt, m.rtcCarry = s.RTCHalt, s.RTCCarry
	m.latchPrev = s.LatchPrev
	m.latchedSec, m.latchedMin, m.latchedHour = s.LatchedSec, s.LatchedMin, s.LatchedHour
	m.latchedDayLow, m.latchedHi = s.LatchedDayLow, s.LatchedHi
}
