package ppu

// RenderBGScanlineCGB renders 160 BG color indices for CGB mode, honoring the
// per-tile attribute byte (palette, VRAM bank, X/Y flip, BG-to-OBJ priority)
// stored alongside the tile map in VRAM bank 1.
func RenderBGScanlineCGB(mem VRAMBankReader, mapBase, attrBase uint16, tileData8000 bool, scx, scy, ly byte) (ci [160]byte, pal [160]byte, prio [160]bool) {
	bgY := uint16(ly) + uint16(scy)
	mapY := (bgY >> 3) & 31
	fineYBase := byte(bgY & 7)

	for x := 0; x < 160; x++ {
		bgX := (uint16(scx) + uint16(x)) & 0xFF
		tileX := (bgX >> 3) & 31
		fineX := byte(bgX & 7)

		mapOff := mapY*32 + tileX
		tileNum := mem.ReadBank(0, mapBase+mapOff)
		attr := mem.ReadBank(1, attrBase+mapOff)

		bank := 0
		if attr&0x10 != 0 {
			bank = 1
		}
		xflip := attr&0x20 != 0
		yflip := attr&0x40 != 0
		palette := attr & 0x07
		priority := attr&0x80 != 0

		fineY := fineYBase
		if yflip {
			fineY = 7 - fineY
		}

		var base uint16
		if tileData8000 {
			base = 0x8000 + uint16(tileNum)*16 + uint16(fineY)*2
		} else {
			base = 0x9000 + uint16(int8(tileNum))*16 + uint16(fineY)*2
		}
		lo := mem.ReadBank(bank, base)
		hi := mem.ReadBank(bank, base+1)

		bit := 7 - fineX
		if xflip {
			bit = fineX
		}
		px := ((hi>>bit)&1)<<1 | ((lo >> bit) & 1)

		ci[x] = px
		pal[x] = palette
		prio[x] = priority
	}
	return
}

// RenderWindowScanlineCGB renders the CGB window layer the same way as
// RenderBGScanlineCGB, starting at wxStart and using winLine as the window's
// own internal vertical counter.
func RenderWindowScanlineCGB(mem VRAMBankReader, mapBase, attrBase uint16, tileData8000 bool, wxStart int, winLine byte) (ci [160]byte, pal [160]byte, prio [160]bool) {
	if wxStart < 0 {
		wxStart = 0
	}
	mapY := (uint16(winLine) >> 3) & 31
	fineYBase := winLine & 7

	for x := wxStart; x < 160; x++ {
		winX := uint16(x - wxStart)
		tileX := (winX >> 3) & 31
		fineX := byte(winX & 7)

		mapOff := mapY*32 + tileX
		tileNum := mem.ReadBank(0, mapBase+mapOff)
		attr := mem.ReadBank(1, attrBase+mapOff)

		bank := 0
		if attr&0x10 != 0 {
			bank = 1
		}
		xflip := attr&0x20 != 0
		yflip := attr&0x40 != 0
		palette := attr & 0x07
		priority := attr&0x80 != 0

		fineY := fineYBase
		if yflip {
			fineY = 7 - fineY
		}

		var base uint16
		if tileData8000 {
			base = 0x8000 + uint16(tileNum)*16 + uint16(fineY)*2
		} else {
			base = 0x9000 + uint16(int8(tileNum))*16 + uint16(fineY)*2
		}
		lo := mem.ReadBank(bank, base)
		hi := mem.ReadBank(bank, base+1)

		bit := 7 - fineX
		if xflip {
			bit = fineX
		}
		px := ((hi>>bit)&1)<<1 | ((lo >> bit) & 1)

		ci[x] = px
		pal[x] = palette
		prio[x] = priority
	}
	return
}
