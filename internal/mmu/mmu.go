// Package mmu wires the CPU-visible 16-bit address space to the cartridge,
// PPU, timer, joypad, APU, and internal RAM.
package mmu

import (
	"fmt"
	"io"
	"os"

	"github.com/palewave/gbcore/internal/apu"
	"github.com/palewave/gbcore/internal/cart"
	"github.com/palewave/gbcore/internal/joypad"
	"github.com/palewave/gbcore/internal/ppu"
	"github.com/palewave/gbcore/internal/saveutil"
	"github.com/palewave/gbcore/internal/timer"
)

// MMU owns every memory-mapped subsystem and performs 16-bit address decode.
type MMU struct {
	cart cart.Cartridge

	// Work RAM: DMG has a flat 8 KiB bank; CGB banks 1000-DFFF across 8 banks
	// of 4 KiB each (bank 0 fixed, bank 1-7 switchable via FF70).
	wram     [8][0x1000]byte
	wramBank int // 1..7, selected via FF70 (bank 0 treated as 1 like hardware)

	hram [0x7F]byte

	ppu    *ppu.PPU
	timer  *timer.Timer
	joypad *joypad.Joypad
	apu    *apu.APU

	ie    byte
	ifReg byte

	sb byte
	sc byte
	sw io.Writer

	dma       byte
	dmaActive bool
	dmaSrc    uint16
	dmaIndex  int

	// CGB general-purpose HDMA (FF51-FF55)
	hdmaSrc, hdmaDst uint16
	hdmaLen          int  // bytes remaining, -1 means idle
	cgb              bool // color-mode features enabled

	// CGB double-speed switch (FF4D)
	speedSwitchArmed bool
	doubleSpeed      bool

	bootROM     []byte
	bootEnabled bool

	debugTimer bool
}

// New constructs an MMU with a ROM-only cartridge for convenience.
func New(rom []byte) *MMU {
	return NewWithCartridge(cart.NewCartridge(rom))
}

// NewWithCartridge wires a provided cartridge implementation.
func NewWithCartridge(c cart.Cartridge) *MMU {
	m := &MMU{cart: c, wramBank: 1, hdmaLen: -1}
	m.ppu = ppu.New(func(bit int) { m.ifReg |= 1 << bit })
	m.timer = timer.New()
	m.joypad = joypad.New()
	m.apu = apu.New(48000)
	if os.Getenv("GB_DEBUG_TIMER") != "" {
		m.debugTimer = true
	}
	return m
}

// SetCGB enables CGB-only register behavior (WRAM banking, HDMA, KEY1, CGB palettes).
func (m *MMU) SetCGB(on bool) {
	m.cgb = on
	m.ppu.SetCGB(on)
}

func (m *MMU) PPU() *ppu.PPU       { return m.ppu }
func (m *MMU) APU() *apu.APU       { return m.apu }
func (m *MMU) Cart() cart.Cartridge { return m.cart }

func (m *MMU) Read(addr uint16) byte {
	switch {
	case addr < 0x8000:
		if m.bootEnabled && addr < 0x0100 && len(m.bootROM) >= 0x100 {
			return m.bootROM[addr]
		}
		return m.cart.Read(addr)
	case addr >= 0x8000 && addr <= 0x9FFF:
		return m.ppu.CPURead(addr)
	case addr >= 0xA000 && addr <= 0xBFFF:
		return m.cart.Read(addr)
	case addr >= 0xC000 && addr <= 0xCFFF:
		return m.wram[0][addr-0xC000]
	case addr >= 0xD000 && addr <= 0xDFFF:
		return m.wram[m.wramBank][addr-0xD000]
	case addr >= 0xE000 && addr <= 0xFDFF:
		mirror := addr - 0x2000
		if mirror <= 0xCFFF {
			return m.wram[0][mirror-0xC000]
		}
		return m.wram[m.wramBank][mirror-0xD000]
	case addr >= 0xFF80 && addr <= 0xFFFE:
		return m.hram[addr-0xFF80]
	case addr >= 0xFE00 && addr <= 0xFE9F:
		if m.dmaActive {
			return 0xFF
		}
		return m.ppu.CPURead(addr)
	case addr == 0xFF00:
		return m.joypad.Read()
	case addr == 0xFF04:
		return m.timer.DIV()
	case addr == 0xFF05:
		return m.timer.TIMA()
	case addr == 0xFF06:
		return m.timer.TMA()
	case addr == 0xFF07:
		return m.timer.TAC()
	case addr == 0xFF01:
		return m.sb
	case addr == 0xFF02:
		return 0x7E | (m.sc & 0x81)
	case addr >= 0xFF10 && addr <= 0xFF3F:
		return m.apu.CPURead(addr)
	case addr == 0xFF40, addr == 0xFF41, addr == 0xFF42, addr == 0xFF43,
		addr == 0xFF44, addr == 0xFF45,
		addr == 0xFF47, addr == 0xFF48, addr == 0xFF49,
		addr == 0xFF4A, addr == 0xFF4B, addr == 0xFF4F,
		addr == 0xFF68, addr == 0xFF69, addr == 0xFF6A, addr == 0xFF6B:
		return m.ppu.CPURead(addr)
	case addr == 0xFF46:
		return m.dma
	case addr == 0xFF4D:
		res := byte(0x7E)
		if m.doubleSpeed {
			res |= 0x80
		}
		if m.speedSwitchArmed {
			res |= 0x01
		}
		return res
	case addr == 0xFF51, addr == 0xFF52, addr == 0xFF53, addr == 0xFF54:
		return 0xFF // write-only on real hardware
	case addr == 0xFF55:
		if m.hdmaLen < 0 {
			return 0xFF
		}
		return byte((m.hdmaLen/0x10 - 1) & 0x7F)
	case addr == 0xFF70:
		return 0xF8 | byte(m.wramBank)
	case addr == 0xFF50:
		return 0xFF
	case addr == 0xFF0F:
		return 0xE0 | (m.ifReg & 0x1F)
	case addr == 0xFFFF:
		return m.ie
	}
	return 0xFF
}

func (m *MMU) Write(addr uint16, value byte) {
	switch {
	case addr < 0x8000:
		m.cart.Write(addr, value)
		return
	case addr >= 0x8000 && addr <= 0x9FFF:
		m.ppu.CPUWrite(addr, value)
		return
	case addr >= 0xA000 && addr <= 0xBFFF:
		m.cart.Write(addr, value)
		return
	case addr >= 0xC000 && addr <= 0xCFFF:
		m.wram[0][addr-0xC000] = value
		return
	case addr >= 0xD000 && addr <= 0xDFFF:
		m.wram[m.wramBank][addr-0xD000] = value
		return
	case addr >= 0xE000 && addr <= 0xFDFF:
		mirror := addr - 0x2000
		if mirror <= 0xCFFF {
			m.wram[0][mirror-0xC000] = value
		} else {
			m.wram[m.wramBank][mirror-0xD000] = value
		}
		return
	case addr >= 0xFF80 && addr <= 0xFFFE:
		m.hram[addr-0xFF80] = value
		return
	case addr >= 0xFE00 && addr <= 0xFE9F:
		if m.dmaActive {
			return
		}
		m.ppu.CPUWrite(addr, value)
		return
	case addr == 0xFF00:
		if m.joypad.Select(value) {
			m.ifReg |= 1 << 4
		}
		return
	case addr == 0xFF04:
		if m.timer.WriteDIV() {
			m.ifReg |= 1 << 2
		}
		if m.debugTimer {
			fmt.Printf("[TMR] DIV write -> reset\n")
		}
		return
	case addr == 0xFF05:
		m.timer.WriteTIMA(value)
		return
	case addr == 0xFF06:
		m.timer.WriteTMA(value)
		return
	case addr == 0xFF07:
		if m.timer.WriteTAC(value) {
			m.ifReg |= 1 << 2
		}
		return
	case addr == 0xFF01:
		m.sb = value
		return
	case addr == 0xFF02:
		m.sc = value & 0x81
		if (m.sc & 0x80) != 0 {
			if m.sw != nil {
				_, _ = m.sw.Write([]byte{m.sb})
			}
			m.ifReg |= 1 << 3
			m.sc &^= 0x80
		}
		return
	case addr >= 0xFF10 && addr <= 0xFF3F:
		m.apu.CPUWrite(addr, value)
		return
	case addr == 0xFF40, addr == 0xFF41, addr == 0xFF42, addr == 0xFF43,
		addr == 0xFF44, addr == 0xFF45,
		addr == 0xFF47, addr == 0xFF48, addr == 0xFF49,
		addr == 0xFF4A, addr == 0xFF4B, addr == 0xFF4F,
		addr == 0xFF68, addr == 0xFF69, addr == 0xFF6A, addr == 0xFF6B:
		m.ppu.CPUWrite(addr, value)
		return
	case addr == 0xFF46:
		m.dma = value
		m.dmaActive = true
		m.dmaSrc = uint16(value) << 8
		m.dmaIndex = 0
		return
	case addr == 0xFF4D:
		if m.cgb {
			m.speedSwitchArmed = value&0x01 != 0
		}
		return
	case addr == 0xFF51:
		m.hdmaSrc = (m.hdmaSrc & 0x00FF) | uint16(value)<<8
		return
	case addr == 0xFF52:
		m.hdmaSrc = (m.hdmaSrc & 0xFF00) | uint16(value&0xF0)
		return
	case addr == 0xFF53:
		m.hdmaDst = (m.hdmaDst & 0x00FF) | uint16(value&0x1F)<<8
		return
	case addr == 0xFF54:
		m.hdmaDst = (m.hdmaDst & 0xFF00) | uint16(value&0xF0)
		return
	case addr == 0xFF55:
		if !m.cgb {
			return
		}
		// Only general-purpose (immediate) transfers are implemented; an
		// HBlank-mode request (bit 7 set) is treated as immediate too.
		length := (int(value&0x7F) + 1) * 0x10
		src := m.hdmaSrc &^ 0x000F
		dst := 0x8000 + (m.hdmaDst &^ 0x000F &^ 0xE000)
		for i := 0; i < length; i++ {
			m.ppu.CPUWrite(dst+uint16(i), m.Read(src+uint16(i)))
		}
		m.hdmaLen = -1
		return
	case addr == 0xFF70:
		if !m.cgb {
			return
		}
		bank := int(value & 0x07)
		if bank == 0 {
			bank = 1
		}
		m.wramBank = bank
		return
	case addr == 0xFF50:
		if value != 0x00 {
			m.bootEnabled = false
		}
		return
	case addr == 0xFF0F:
		m.ifReg = value & 0x1F
		return
	case addr == 0xFFFF:
		m.ie = value
		return
	}
}

// SetJoypadState sets which buttons are currently pressed (joypad.* mask).
func (m *MMU) SetJoypadState(mask byte) {
	if m.joypad.SetState(mask) {
		m.ifReg |= 1 << 4
	}
}

func (m *MMU) SetSerialWriter(w io.Writer) { m.sw = w }

// SetBootROM loads a boot ROM overlay for 0x0000-0x00FF; opt-in, disabled by
// a write to FF50. The core otherwise starts directly at post-boot state.
func (m *MMU) SetBootROM(data []byte) {
	m.bootROM = nil
	m.bootEnabled = false
	if len(data) >= 0x100 {
		m.bootROM = make([]byte, 0x100)
		copy(m.bootROM, data[:0x100])
		m.bootEnabled = true
	}
}

// ToggleSpeedIfArmed performs the CGB double-speed switch requested via a
// STOP instruction with KEY1 bit 0 set; read the result via SpeedMultiplier.
func (m *MMU) ToggleSpeedIfArmed() {
	if !m.cgb || !m.speedSwitchArmed {
		return
	}
	m.doubleSpeed = !m.doubleSpeed
	m.speedSwitchArmed = false
}

// SpeedMultiplier is 2 in CGB double-speed mode, else 1; PPU/APU see CPU
// cycles divided by this to keep dot-rate constant in real time, while the
// timer counts every CPU cycle.
func (m *MMU) SpeedMultiplier() int {
	if m.doubleSpeed {
		return 2
	}
	return 1
}

// Tick advances every cycle-driven subsystem by the given number of CPU
// T-cycles, applying the active speed multiplier to PPU/APU.
func (m *MMU) Tick(cycles int) {
	if cycles <= 0 {
		return
	}
	// PPU/APU run at the fixed dot rate regardless of CPU speed; under double
	// speed each CPU T-cycle is half a dot-cycle. The timer follows the CPU
	// clock, so it counts every T-cycle in either speed.
	for i := 0; i < cycles; i++ {
		if m.timer.Tick(1) {
			m.ifReg |= 1 << 2
		}
		if !m.doubleSpeed || i%2 == 0 {
			m.ppu.Tick(1)
			m.apu.Tick(1)
		}

		if m.dmaActive {
			if m.dmaIndex < 0xA0 {
				v := m.Read(m.dmaSrc + uint16(m.dmaIndex))
				m.ppu.CPUWrite(0xFE00+uint16(m.dmaIndex), v)
				m.dmaIndex++
			}
			if m.dmaIndex >= 0xA0 {
				m.dmaActive = false
			}
		}
	}
}

type state struct {
	WRAM      [8][0x1000]byte
	WRAMBank  int
	HRAM      [0x7F]byte
	IE, IF    byte
	SB, SC    byte
	DMA       byte
	DMAActive bool
	DMASrc    uint16
	DMAIdx    int
	HdmaSrc   uint16
	HdmaDst   uint16
	HdmaLen   int
	CGB       bool
	SpeedArm  bool
	DoubleSpd bool
	BootEn    bool
}

func (m *MMU) SaveState() []byte {
	s := state{
		WRAM: m.wram, WRAMBank: m.wramBank, HRAM: m.hram,
		IE: m.ie, IF: m.ifReg,
		SB: m.sb, SC: m.sc,
		DMA: m.dma, DMAActive: m.dmaActive, DMASrc: m.dmaSrc, DMAIdx: m.dmaIndex,
		HdmaSrc: m.hdmaSrc, HdmaDst: m.hdmaDst, HdmaLen: m.hdmaLen,
		CGB: m.cgb, SpeedArm: m.speedSwitchArmed, DoubleSpd: m.doubleSpeed,
		BootEn: m.bootEnabled,
	}
	out := saveutil.Encode(s)
	subs := saveutil.Encode(subStates{
		PPU:    m.ppu.SaveState(),
		Timer:  m.timer.SaveState(),
		Joypad: m.joypad.SaveState(),
		Cart:   cartSaveState(m.cart),
	})
	return saveutil.Encode(blob{Main: out, Sub: subs})
}

func (m *MMU) LoadState(data []byte) {
	var b blob
	if !saveutil.Decode(data, &b) {
		return
	}
	var s state
	if saveutil.Decode(b.Main, &s) {
		m.wram, m.wramBank, m.hram = s.WRAM, s.WRAMBank, s.HRAM
		m.ie, m.ifReg = s.IE, s.IF
		m.sb, m.sc = s.SB, s.SC
		m.dma, m.dmaActive, m.dmaSrc, m.dmaIndex = s.DMA, s.DMAActive, s.DMASrc, s.DMAIdx
		m.hdmaSrc, m.hdmaDst, m.hdmaLen = s.HdmaSrc, s.HdmaDst, s.HdmaLen
		m.cgb, m.speedSwitchArmed, m.doubleSpeed = s.CGB, s.SpeedArm, s.DoubleSpd
		m.bootEnabled = s.BootEn
	}
	var subs subStates
	if saveutil.Decode(b.Sub, &subs) {
		m.ppu.LoadState(subs.PPU)
		m.timer.LoadState(subs.Timer)
		m.joypad.LoadState(subs.Joypad)
		cartLoadState(m.cart, subs.Cart)
	}
}

type subStates struct {
	PPU, Timer, Joypad, Cart []byte
}

type blob struct {
	Main, Sub []byte
}

func cartSaveState(c cart.Cartridge) []byte {
	if bb, ok := c.(interface{ SaveState() []byte }); ok {
		return bb.SaveState()
	}
	return nil
}

func cartLoadState(c cart.Cartridge, data []byte) {
	if bb, ok := c.(interface{ LoadState([]byte) }); ok {
		bb.LoadState(data)
	}
}
