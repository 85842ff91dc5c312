// Package joypad models the JOYP button matrix register.
package joypad

import "github.com/palewave/gbcore/internal/saveutil"

// Button bitmasks for SetState. Set bits mean "pressed".
const (
	Right = 1 << 0
	Left  = 1 << 1
	Up    = 1 << 2
	Down  = 1 << 3
	A     = 1 << 4
	B     = 1 << 5
	Select = 1 << 6
	Start  = 1 << 7
)

// Joypad latches host button state and presents it through the FF00 matrix.
// All bits are active-low; bits 6-7 always read 1.
type Joypad struct {
	selectBits byte // last written bits 5-4
	pressed    byte // Button* mask, 1 = pressed
	lowerNibble byte // last computed active-low lower 4 bits, for edge detection
}

func New() *Joypad { return &Joypad{lowerNibble: 0x0F} }

// Select handles a write to FF00 (only bits 5-4 are writable). Changing which
// group is selected can itself reveal an already-pressed button, which is
// also an edge that requests the joypad interrupt.
func (j *Joypad) Select(value byte) (interrupt bool) {
	j.selectBits = value & 0x30
	return j.poll()
}

// Read returns the FF00 register value.
func (j *Joypad) Read() byte {
	res := byte(0xC0 | (j.selectBits & 0x30) | 0x0F)
	if j.selectBits&0x10 == 0 { // P14 low selects D-pad
		if j.pressed&Right != 0 {
			res &^= 0x01
		}
		if j.pressed&Left != 0 {
			res &^= 0x02
		}
		if j.pressed&Up != 0 {
			res &^= 0x04
		}
		if j.pressed&Down != 0 {
			res &^= 0x08
		}
	}
	if j.selectBits&0x20 == 0 { // P15 low selects buttons
		if j.pressed&A != 0 {
			res &^= 0x01
		}
		if j.pressed&B != 0 {
			res &^= 0x02
		}
		if j.pressed&Select != 0 {
			res &^= 0x04
		}
		if j.pressed&Start != 0 {
			res &^= 0x08
		}
	}
	return res
}

// SetState updates which buttons are currently pressed and reports whether
// any previously-unselected low bit just transitioned 1->0, which requests
// the joypad interrupt (IF bit 4).
func (j *Joypad) SetState(mask byte) (interrupt bool) {
	j.pressed = mask
	return j.poll()
}

func (j *Joypad) poll() (interrupt bool) {
	newLower := j.Read() & 0x0F
	falling := j.lowerNibble &^ newLower
	j.lowerNibble = newLower
	return falling != 0
}

type state struct {
	SelectBits, Pressed, LowerNibble byte
}

func (j *Joypad) SaveState() []byte {
	return saveutil.Encode(state{j.selectBits, j.pressed, j.lowerNibble})
}

func (j *Joypad) LoadState(data []byte) {
	var s state
	if saveutil.Decode(data, &s) {
		j.selectBits, j.pressed, j.lowerNibble = s.SelectBits, s.Pressed, s.LowerNibble
	}
}
