package ppu

import "github.com/palewave/gbcore/internal/saveutil"

// InterruptRequester is a callback signature to request IF bits (0:VBlank, 1:STAT, etc.).
type InterruptRequester func(bit int)

// LineRegs captures the register values visible to the renderer at the
// moment mode 3 begins for a given line, mirroring how real hardware latches
// scroll/window state mid-frame instead of reading it back at VBlank.
type LineRegs struct {
	SCX, SCY, WY, WX         byte
	LCDC, BGP, OBP0, OBP1    byte
	BGMapBase, WinMapBase    uint16
	BGTileData8000           bool
	WinLine                  byte
	WindowVisible            bool
}

// PPU models VRAM/OAM, LCDC/STAT regs, LY/LYC, CGB palette RAM, and drives
// scanline composition into an RGB framebuffer.
type PPU struct {
	// memory: bank 0 always; bank 1 only meaningful in CGB mode
	vram  [2][0x2000]byte
	vbk   byte // FF4F, bit0 selects active bank for CPU access
	oam   [0xA0]byte

	cgb bool

	// CGB palette RAM: 8 palettes x 4 colors x 2 bytes (RGB555), BG and OBJ.
	bcpram   [64]byte
	ocpram   [64]byte
	bcpIndex byte // FF68 bits 0-5 index, bit7 auto-increment
	ocpIndex byte // FF6A

	// regs
	lcdc byte // FF40
	stat byte // FF41
	scy  byte
	scx  byte
	ly   byte
	lyc  byte
	bgp  byte
	obp0 byte
	obp1 byte
	wy   byte
	wx   byte

	dot int

	windowLine int
	lineRegs   [144]LineRegs

	fb [160 * 144 * 3]byte // RGB888, row-major

	req InterruptRequester
}

func New(req InterruptRequester) *PPU { return &PPU{req: req} }

// SetCGB toggles CGB-only register behavior (second VRAM bank, palette RAM).
func (p *PPU) SetCGB(on bool) { p.cgb = on }

// Framebuffer returns the most recently composed 160x144 RGB888 frame.
func (p *PPU) Framebuffer() []byte { return p.fb[:] }

func (p *PPU) activeBank() int {
	if p.cgb && p.vbk&1 != 0 {
		return 1
	}
	return 0
}

// Read implements VRAMReader/VRAMBankReader for the scanline helpers.
func (p *PPU) Read(addr uint16) byte { return p.ReadBank(0, addr) }

func (p *PPU) ReadBank(bank int, addr uint16) byte {
	if addr < 0x8000 || addr > 0x9FFF {
		return 0xFF
	}
	return p.vram[bank&1][addr-0x8000]
}

// CPURead returns bytes for VRAM, OAM, and PPU IO registers. Returns 0xFF for others.
func (p *PPU) CPURead(addr uint16) byte {
	switch {
	case addr >= 0x8000 && addr <= 0x9FFF:
		if (p.stat & 0x03) == 3 {
			return 0xFF
		}
		return p.vram[p.activeBank()][addr-0x8000]
	case addr >= 0xFE00 && addr <= 0xFE9F:
		m := p.stat & 0x03
		if m == 2 || m == 3 {
			return 0xFF
		}
		return p.oam[addr-0xFE00]
	case addr == 0xFF40:
		return p.lcdc
	case addr == 0xFF41:
		return 0x80 | (p.stat & 0x7F)
	case addr == 0xFF42:
		return p.scy
	case addr == 0xFF43:
		return p.scx
	case addr == 0xFF44:
		return p.ly
	case addr == 0xFF45:
		return p.lyc
	case addr == 0xFF47:
		return p.bgp
	case addr == 0xFF48:
		return p.obp0
	case addr == 0xFF49:
		return p.obp1
	case addr == 0xFF4A:
		return p.wy
	case addr == 0xFF4B:
		return p.wx
	case addr == 0xFF4F:
		return 0xFE | (p.vbk & 1)
	case addr == 0xFF68:
		return p.bcpIndex
	case addr == 0xFF69:
		return p.bcpram[p.bcpIndex&0x3F]
	case addr == 0xFF6A:
		return p.ocpIndex
	case addr == 0xFF6B:
		return p.ocpram[p.ocpIndex&0x3F]
	default:
		return 0xFF
	}
}

// CPUWrite handles writes to VRAM, OAM, and PPU IO regs. Others are ignored here.
func (p *PPU) CPUWrite(addr uint16, value byte) {
	switch {
	case addr >= 0x8000 && addr <= 0x9FFF:
		if (p.stat & 0x03) == 3 {
			return
		}
		p.vram[p.activeBank()][addr-0x8000] = value
	case addr >= 0xFE00 && addr <= 0xFE9F:
		m := p.stat & 0x03
		if m == 2 || m == 3 {
			return
		}
		p.oam[addr-0xFE00] = value
	case addr == 0xFF40:
		prev := p.lcdc
		p.lcdc = value
		if (p.lcdc&0x80) == 0 && (prev&0x80) != 0 {
			p.ly = 0
			p.dot = 0
			p.windowLine = 0
			p.setMode(0)
			p.updateLYC()
		} else if (p.lcdc&0x80) != 0 && (prev&0x80) == 0 {
			p.ly = 0
			p.dot = 0
			p.windowLine = 0
			p.setMode(2)
			p.updateLYC()
		}
	case addr == 0xFF41:
		p.stat = (p.stat & 0x07) | (value & 0x78)
	case addr == 0xFF42:
		p.scy = value
	case addr == 0xFF43:
		p.scx = value
	case addr == 0xFF44:
		p.ly = 0
		p.dot = 0
		p.updateLYC()
		if (p.lcdc & 0x80) != 0 {
			p.setMode(2)
		}
	case addr == 0xFF45:
		p.lyc = value
		p.updateLYC()
	case addr == 0xFF47:
		p.bgp = value
	case addr == 0xFF48:
		p.obp0 = value
	case addr == 0xFF49:
		p.obp1 = value
	case addr == 0xFF4A:
		p.wy = value
	case addr == 0xFF4B:
		p.wx = value
	case addr == 0xFF4F:
		if p.cgb {
			p.vbk = value & 1
		}
	case addr == 0xFF68:
		p.bcpIndex = value & 0xBF
	case addr == 0xFF69:
		if p.cgb {
			p.bcpram[p.bcpIndex&0x3F] = value
			if p.bcpIndex&0x80 != 0 {
				p.bcpIndex = 0x80 | ((p.bcpIndex + 1) & 0x3F)
			}
		}
	case addr == 0xFF6A:
		p.ocpIndex = value & 0xBF
	case addr == 0xFF6B:
		if p.cgb {
			p.ocpram[p.ocpIndex&0x3F] = value
			if p.ocpIndex&0x80 != 0 {
				p.ocpIndex = 0x80 | ((p.ocpIndex + 1) & 0x3F)
			}
		}
	}
}

// Tick advances PPU state by the given number of dots (CPU cycles).
func (p *PPU) Tick(cycles int) {
	if cycles <= 0 {
		return
	}
	for i := 0; i < cycles; i++ {
		if (p.lcdc & 0x80) == 0 {
			continue
		}
		prevMode := p.stat & 0x03
		p.dot++

		var mode byte
		if p.ly >= 144 {
			mode = 1
		} else {
			switch {
			case p.dot < 80:
				mode = 2
			case p.dot < 80+172:
				mode = 3
			default:
				mode = 0
			}
		}
		p.setMode(mode)
		if prevMode != 3 && mode == 3 {
			p.captureAndRenderLine()
		}

		if p.dot >= 456 {
			p.dot = 0
			p.ly++
			if p.ly == 144 {
				if p.req != nil {
					p.req(0)
				}
				if (p.stat & (1 << 4)) != 0 {
					if p.req != nil {
						p.req(1)
					}
				}
			} else if p.ly > 153 {
				p.ly = 0
				p.windowLine = 0
			}
			p.updateLYC()
			if p.ly >= 144 {
				p.setMode(1)
			} else {
				p.setMode(2)
			}
		}
	}
}

func (p *PPU) setMode(mode byte) {
	prev := p.stat & 0x03
	if prev == mode {
		return
	}
	p.stat = (p.stat &^ 0x03) | (mode & 0x03)
	switch mode {
	case 0:
		if (p.stat & (1 << 3)) != 0 {
			if p.req != nil {
				p.req(1)
			}
		}
	case 2:
		if (p.stat & (1 << 5)) != 0 {
			if p.req != nil {
				p.req(1)
			}
		}
	}
}

func (p *PPU) updateLYC() {
	if p.ly == p.lyc {
		p.stat |= 1 << 2
		if (p.stat & (1 << 6)) != 0 {
			if p.req != nil {
				p.req(1)
			}
		}
	} else {
		p.stat &^= 1 << 2
	}
}

// LineRegs returns the registers latched for the given line at the moment
// mode 3 started rendering it.
func (p *PPU) LineRegs(ly int) LineRegs {
	if ly < 0 || ly >= len(p.lineRegs) {
		return LineRegs{}
	}
	return p.lineRegs[ly]
}

func (p *PPU) captureAndRenderLine() {
	if int(p.ly) >= 144 {
		return
	}
	bgMapBase := uint16(0x9800)
	if p.lcdc&0x08 != 0 {
		bgMapBase = 0x9C00
	}
	winMapBase := uint16(0x9800)
	if p.lcdc&0x40 != 0 {
		winMapBase = 0x9C00
	}
	tileData8000 := p.lcdc&0x10 != 0
	windowEnabled := p.lcdc&0x20 != 0
	windowVisible := windowEnabled && p.wx <= 166 && p.ly >= p.wy

	lr := LineRegs{
		SCX: p.scx, SCY: p.scy, WY: p.wy, WX: p.wx,
		LCDC: p.lcdc, BGP: p.bgp, OBP0: p.obp0, OBP1: p.obp1,
		BGMapBase: bgMapBase, WinMapBase: winMapBase,
		BGTileData8000: tileData8000,
		WinLine:        byte(p.windowLine),
		WindowVisible:  windowVisible,
	}
	p.lineRegs[p.ly] = lr
	if windowVisible {
		p.windowLine++
	}

	p.renderLine(lr)
}

func (p *PPU) renderLine(lr LineRegs) {
	ly := p.ly
	var bgci, winci [160]byte
	var bgpal, winpal [160]byte
	var bgprio, winprio [160]bool

	bgEnabled := lr.LCDC&0x01 != 0 || p.cgb // on CGB, bit0 means BG-under-OBJ priority, BG always drawn
	if bgEnabled {
		if p.cgb {
			// CGB attribute bytes share the tile map's address, in VRAM bank 1.
			bgci, bgpal, bgprio = RenderBGScanlineCGB(p, lr.BGMapBase, lr.BGMapBase, lr.BGTileData8000, lr.SCX, lr.SCY, ly)
		} else {
			bgci = RenderBGScanlineUsingFetcher(p, lr.BGMapBase, lr.BGTileData8000, lr.SCX, lr.SCY, ly)
		}
	}
	if lr.WindowVisible {
		wxStart := int(lr.WX) - 7
		if p.cgb {
			winci, winpal, winprio = RenderWindowScanlineCGB(p, lr.WinMapBase, lr.WinMapBase, lr.BGTileData8000, wxStart, lr.WinLine)
		} else {
			winci = RenderWindowScanlineUsingFetcher(p, lr.WinMapBase, lr.BGTileData8000, wxStart, lr.WinLine)
		}
		wxStartClamped := wxStart
		if wxStartClamped < 0 {
			wxStartClamped = 0
		}
		for x := wxStartClamped; x < 160; x++ {
			bgci[x] = winci[x]
			bgpal[x] = winpal[x]
			bgprio[x] = winprio[x]
		}
	}

	sprites := p.scanSprites(ly)
	var spriteOut [160]byte
	spriteEnabled := lr.LCDC&0x02 != 0
	if spriteEnabled && len(sprites) > 0 {
		spriteOut = ComposeSpriteLine(p, sprites, ly, bgci, p.cgb)
	}

	for x := 0; x < 160; x++ {
		var rgb [3]byte
		if p.cgb {
			rgb = p.cgbBGColor(bgpal[x], bgci[x])
		} else {
			rgb = dmgShade(applyPalette(lr.BGP, bgci[x]))
		}
		if spriteEnabled {
			if sp, ok := p.spriteAt(sprites, x, int(ly), bgci); ok {
				behind := sp.Attr&0x80 != 0
				if !behind || bgci[x] == 0 {
					if spriteOut[x] != 0 {
						if p.cgb {
							rgb = p.cgbOBJColor(sp.Attr&0x07, spriteOut[x])
						} else {
							pal := lr.OBP0
							if sp.Attr&0x10 != 0 {
								pal = lr.OBP1
							}
							rgb = dmgShade(applyPalette(pal, spriteOut[x]))
						}
					}
				}
			}
		}
		off := (int(ly)*160 + x) * 3
		p.fb[off], p.fb[off+1], p.fb[off+2] = rgb[0], rgb[1], rgb[2]
	}
}

// spriteAt finds the sprite, if any, that ComposeSpriteLine chose to draw at
// (x, ly) so renderLine can pick its palette/priority bits.
func (p *PPU) spriteAt(sprites []Sprite, x, ly int, bgci [160]byte) (Sprite, bool) {
	var best Sprite
	found := false
	for _, s := range sprites {
		row := ly - s.Y
		if row < 0 || row > 7 {
			continue
		}
		if x < s.X || x >= s.X+8 {
			continue
		}
		// Skip the pixels ComposeSpriteLine skips: transparent, or hidden behind BG.
		if s.Attr&0x40 != 0 {
			row = 7 - row
		}
		bit := byte(7 - (x - s.X))
		if s.Attr&0x20 != 0 {
			bit = byte(x - s.X)
		}
		base := uint16(0x8000) + uint16(s.Tile)*16 + uint16(row)*2
		ci := ((p.Read(base+1)>>bit)&1)<<1 | ((p.Read(base) >> bit) & 1)
		if ci == 0 || (s.Attr&0x80 != 0 && bgci[x] != 0) {
			continue
		}
		if !found {
			best, found = s, true
			continue
		}
		if p.cgb {
			if s.OAMIndex < best.OAMIndex {
				best = s
			}
		} else if s.X < best.X || (s.X == best.X && s.OAMIndex < best.OAMIndex) {
			best = s
		}
	}
	return best, found
}

func (p *PPU) scanSprites(ly byte) []Sprite {
	tall := p.lcdc&0x04 != 0
	height := 8
	if tall {
		height = 16
	}
	var found []Sprite
	for i := 0; i < 40 && len(found) < 10; i++ {
		base := i * 4
		y := int(p.oam[base]) - 16
		x := int(p.oam[base+1]) - 8
		tile := p.oam[base+2]
		attr := p.oam[base+3]
		row := int(ly) - y
		if row < 0 || row >= height {
			continue
		}
		if tall {
			tile &^= 0x01
			if row >= 8 {
				y += 8 // bottom half becomes its own 8-row entry
				if attr&0x40 == 0 {
					tile |= 0x01
				}
			} else if attr&0x40 != 0 {
				tile |= 0x01
			}
		}
		found = append(found, Sprite{X: x, Y: y, Tile: tile, Attr: attr, OAMIndex: i})
	}
	return found
}

func applyPalette(pal, ci byte) byte {
	return (pal >> (ci * 2)) & 0x03
}

func dmgShade(shade byte) [3]byte {
	switch shade {
	case 0:
		return [3]byte{0xE0, 0xF8, 0xD0}
	case 1:
		return [3]byte{0x88, 0xC0, 0x70}
	case 2:
		return [3]byte{0x34, 0x68, 0x56}
	default:
		return [3]byte{0x08, 0x18, 0x20}
	}
}

func (p *PPU) cgbBGColor(pal, ci byte) [3]byte {
	return rgb555(p.bcpram, pal, ci)
}

func (p *PPU) cgbOBJColor(pal, ci byte) [3]byte {
	return rgb555(p.ocpram, pal, ci)
}

// ApplyCompatPalette seeds every BG and OBJ color-palette slot with the same
// four shades, the way the CGB boot ROM primes palette RAM for a DMG-only
// cartridge running in compatibility mode.
func (p *PPU) ApplyCompatPalette(shades [4][3]byte) {
	var packed [8]byte
	for i, c := range shades {
		r5 := uint16(c[0]) * 31 / 255
		g5 := uint16(c[1]) * 31 / 255
		b5 := uint16(c[2]) * 31 / 255
		word := r5 | g5<<5 | b5<<10
		packed[i*2] = byte(word)
		packed[i*2+1] = byte(word >> 8)
	}
	for pal := 0; pal < 8; pal++ {
		for i := 0; i < 8; i++ {
			p.bcpram[pal*8+i] = packed[i]
			p.ocpram[pal*8+i] = packed[i]
		}
	}
}

func rgb555(ram [64]byte, pal, ci byte) [3]byte {
	idx := (int(pal)*4 + int(ci)) * 2
	if idx+1 >= len(ram) {
		return [3]byte{}
	}
	lo, hi := ram[idx], ram[idx+1]
	word := uint16(lo) | uint16(hi)<<8
	r5 := word & 0x1F
	g5 := (word >> 5) & 0x1F
	b5 := (word >> 10) & 0x1F
	scale := func(v uint16) byte { return byte((v*255 + 15) / 31) }
	return [3]byte{scale(r5), scale(g5), scale(b5)}
}

type ppuState struct {
	VRAM                         [2][0x2000]byte
	VBK                          byte
	OAM                          [0xA0]byte
	CGB                          bool
	BCPRAM, OCPRAM               [64]byte
	BCPIndex, OCPIndex           byte
	LCDC, STAT, SCY, SCX, LY     byte
	LYC, BGP, OBP0, OBP1, WY, WX byte
	Dot, WindowLine              int
}

func (p *PPU) SaveState() []byte {
	s := ppuState{
		VRAM: p.vram, VBK: p.vbk, OAM: p.oam, CGB: p.cgb,
		BCPRAM: p.bcpram, OCPRAM: p.ocpram, BCPIndex: p.bcpIndex, OCPIndex: p.ocpIndex,
		LCDC: p.lcdc, STAT: p.stat, SCY: p.scy, SCX: p.scx, LY: p.ly,
		LYC: p.lyc, BGP: p.bgp, OBP0: p.obp0, OBP1: p.obp1, WY: p.wy, WX: p.wx,
		Dot: p.dot, WindowLine: p.windowLine,
	}
	return saveutil.Encode(s)
}

func (p *PPU) LoadState(data []byte) {
	var s ppuState
	if !saveutil.Decode(data, &s) {
		return
	}
	p.vram, p.vbk, p.oam, p.cgb = s.VRAM, s.VBK, s.OAM, s.CGB
	p.bcpram, p.ocpram, p.bcpIndex, p.ocpIndex = s.BCPRAM, s.OCPRAM, s.BCPIndex, s.OCPIndex
	p.lcdc, p.stat, p.scy, p.scx, p.ly = s.LCDC, s.STAT, s.SCY, s.SCX, s.LY
	p.lyc, p.bgp, p.obp0, p.obp1, p.wy, p.wx = s.LYC, s.BGP, s.OBP0, s.OBP1, s.WY, s.WX
	p.dot, p.windowLine = s.Dot, s.WindowLine
}

// Expose palettes and scroll for renderer convenience (optional helpers)
func (p *PPU) BGP() byte  { return p.bgp }
func (p *PPU) OBP0() byte { return p.obp0 }
func (p *PPU) OBP1() byte { return p.obp1 }
func (p *PPU) LCDC() byte { return p.lcdc }
func (p *PPU) SCY() byte  { return p.scy }
func (p *PPU) SCX() byte  { return p.scx }
func (p *PPU) WY() byte   { return p.wy }
func (p *PPU) WX() byte   { return p.wx }
