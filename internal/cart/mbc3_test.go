package cart

import "testing"

func TestMBC3_RTC_LatchAndRead(t *testing.T) {
	rom := make([]byte, 0x8000)
	m := NewMBC3(rom, 0x2000)

	// Enable RAM/RTC access, set RTC values and latch.
	m.Write(0x0000, 0x0A) // RAM enable
	m.rtcSec, m.rtcMin, m.rtcHour, m.rtcDay = 5, 6, 7, 0x101
	m.rtcHalt, m.rtcCarry = false, false
	m.Write(0x6000, 0x01) // latch (0->1)

	// Select RTC seconds
	m.Write(0x4000, 0x08)
	if got := m.Read(0xA000); got != 5 {
		t.Fatalf("latched sec got %d want 5", got)
	}
	// Change the live register; the latched read must not move, since
	// nothing advances these registers on its own.
	m.rtcSec = 30
	if got := m.Read(0xA000); got != 5 {
		t.Fatalf("latched sec changed unexpectedly: got %d", got)
	}

	// Read day low and day high/carry/halt.
	m.Write(0x4000, 0x0B)
	if got := m.Read(0xA000); got != byte(0x101&0xFF) {
		t.Fatalf("latched day low got %02X want %02X", got, byte(0x01))
	}
	m.Write(0x4000, 0x0C)
	got := m.Read(0xA000)
	if (got & 0x01) == 0 {
		t.Fatalf("latched day high bit not set")
	}
	if (got & 0x40) != 0 {
		t.Fatalf("halt bit set unexpectedly")
	}
}

func TestMBC3_RTC_NeverAdvancesOnItsOwn(t *testing.T) {
	rom := make([]byte, 0x8000)
	m := NewMBC3(rom, 0x2000)
	m.Write(0x0000, 0x0A) // RAM enable
	m.rtcSec, m.rtcMin, m.rtcHour, m.rtcDay = 30, 59, 23, 0x1FF

	// A long run of reads and writes elsewhere on the cartridge must never
	// mutate the RTC registers by itself; only explicit register writes do.
	for i := 0; i < 1000; i++ {
		_ = m.Read(0x0000)
		_ = m.Read(0x4000)
	}
	if m.rtcSec != 30 || m.rtcMin != 59 || m.rtcHour != 23 || m.rtcDay != 0x1FF {
		t.Fatalf("RTC registers advanced on their own: got %02d:%02d:%02d day=%03d",
			m.rtcHour, m.rtcMin, m.rtcSec, m.rtcDay)
	}
}

func TestMBC3_RTC_RegisterWritesAndDayRollover(t *testing.T) {
	rom := make([]byte, 0x8000)
	m := NewMBC3(rom, 0x2000)
	m.Write(0x0000, 0x0A) // RAM enable

	m.Write(0x4000, 0x08) // select seconds
	m.Write(0xA000, 45)
	m.Write(0x4000, 0x09) // select minutes
	m.Write(0xA000, 12)
	m.Write(0x4000, 0x0A) // select hours
	m.Write(0xA000, 6)
	m.Write(0x4000, 0x0B) // select day low
	m.Write(0xA000, 0xFF)
	m.Write(0x4000, 0x0C) // select day-high/halt/carry
	m.Write(0xA000, 0x01) // day bit8 set, halt and carry clear

	if m.rtcSec != 45 || m.rtcMin != 12 || m.rtcHour != 6 || m.rtcDay != 0x1FF {
		t.Fatalf("RTC registers not written as expected: got %02d:%02d:%02d day=%03d",
			m.rtcHour, m.rtcMin, m.rtcSec, m.rtcDay)
	}
	if m.rtcHalt || m.rtcCarry {
		t.Fatalf("halt/carry set unexpectedly: halt=%v carry=%v", m.rtcHalt, m.rtcCarry)
	}
}

func TestMBC3_SaveRAM_IsRawBytesOnly(t *testing.T) {
	rom := make([]byte, 0x8000)
	m := NewMBC3(rom, 0x2000)
	m.Write(0x0000, 0x0A) // RAM enable
	m.Write(0x4000, 0x00) // select RAM bank 0
	m.Write(0xA000, 0x42)
	m.Write(0xA001, 0x43)
	m.rtcSec, m.rtcMin, m.rtcHour, m.rtcDay = 11, 22, 33, 44

	data := m.SaveRAM()
	if len(data) != 0x2000 {
		t.Fatalf("SaveRAM length got %d want %d (raw RAM only)", len(data), 0x2000)
	}
	if data[0] != 0x42 || data[1] != 0x43 {
		t.Fatalf("SaveRAM did not return raw RAM bytes: got %02X %02X", data[0], data[1])
	}

	n := NewMBC3(rom, 0x2000)
	n.LoadRAM(data)
	n.Write(0x0000, 0x0A)
	n.Write(0x4000, 0x00)
	if got := n.Read(0xA000); got != 0x42 {
		t.Fatalf("LoadRAM did not restore RAM byte 0: got %02X", got)
	}
	// RTC registers are not part of the RAM sidecar; a freshly constructed
	// cart with only LoadRAM applied starts with RTC registers at zero.
	if n.rtcSec != 0 || n.rtcMin != 0 || n.rtcHour != 0 || n.rtcDay != 0 {
		t.Fatalf("LoadRAM unexpectedly touched RTC registers")
	}
}

func TestMBC3_SaveState_PersistsRTC(t *testing.T) {
	rom := make([]byte, 0x8000)
	m := NewMBC3(rom, 0x2000)
	m.Write(0x0000, 0x0A)
	m.rtcSec, m.rtcMin, m.rtcHour, m.rtcDay = 5, 6, 7, 0x101

	blob := m.SaveState()
	n := NewMBC3(rom, 0x2000)
	n.LoadState(blob)
	if n.rtcSec != 5 || n.rtcMin != 6 || n.rtcHour != 7 || n.rtcDay != 0x101 {
		t.Fatalf("SaveState/LoadState did not round-trip RTC registers: got %02d:%02d:%02d day=%03d",
			n.rtcHour, n.rtcMin, n.rtcSec, n.rtcDay)
	}
}
