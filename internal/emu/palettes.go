package emu

// cgbCompatSetNames labels the built-in DMG compatibility palettes selectable
// via SetCompatPalette/CycleCompatPalette. Index order matches the IDs used
// by compatTitleExact/compatTitleContains in compat_tables.go.
var cgbCompatSetNames = []string{
	"Green",
	"Sepia",
	"Blue",
	"Red",
	"Pastel",
	"Grayscale",
}

// cgbCompatSets holds the four shades (lightest to darkest) of each
// compatibility palette, in the RGB888 order the PPU's background/window
// renderer expects for a DMG-only cartridge shown in color.
var cgbCompatSets = [][4][3]byte{
	{{0xE0, 0xF8, 0xD0}, {0x88, 0xC0, 0x70}, {0x34, 0x68, 0x56}, {0x08, 0x18, 0x20}}, // Green
	{{0xF8, 0xE8, 0xC8}, {0xD0, 0xA0, 0x68}, {0x90, 0x58, 0x38}, {0x30, 0x18, 0x10}}, // Sepia
	{{0xE0, 0xF0, 0xF8}, {0x78, 0xA8, 0xD8}, {0x38, 0x58, 0x90}, {0x10, 0x18, 0x38}}, // Blue
	{{0xF8, 0xE0, 0xE0}, {0xD8, 0x80, 0x78}, {0x90, 0x38, 0x38}, {0x30, 0x10, 0x10}}, // Red
	{{0xF8, 0xF0, 0xF8}, {0xD0, 0xB0, 0xD8}, {0x90, 0x78, 0xA0}, {0x40, 0x30, 0x48}}, // Pastel
	{{0xFF, 0xFF, 0xFF}, {0xAA, 0xAA, 0xAA}, {0x55, 0x55, 0x55}, {0x00, 0x00, 0x00}}, // Grayscale
}
