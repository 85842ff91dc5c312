package emu

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/palewave/gbcore/internal/cart"
	"github.com/palewave/gbcore/internal/cpu"
	"github.com/palewave/gbcore/internal/mmu"
)

// Buttons reports the instantaneous state of every physical Game Boy input.
type Buttons struct {
	A, B, Start, Select   bool
	Up, Down, Left, Right bool
}

func (b Buttons) mask() byte {
	var m byte
	if b.Right {
		m |= 1 << 0
	}
	if b.Left {
		m |= 1 << 1
	}
	if b.Up {
		m |= 1 << 2
	}
	if b.Down {
		m |= 1 << 3
	}
	if b.A {
		m |= 1 << 4
	}
	if b.B {
		m |= 1 << 5
	}
	if b.Select {
		m |= 1 << 6
	}
	if b.Start {
		m |= 1 << 7
	}
	return m
}

// Machine wires the CPU to its MMU and steps whole frames for a host UI.
type Machine struct {
	cfg  Config
	w, h int
	fb   []byte // RGBA 160x144x4

	cpu *cpu.CPU
	bus *mmu.MMU

	romPath string
	romData []byte
	header  *cart.Header
	boot    []byte

	cgbCompat     bool // DMG-only ROM running under a CGB palette
	wantCGBColors bool
	compatPalette int
}

func New(cfg Config) *Machine {
	m := &Machine{cfg: cfg, w: 160, h: 144, fb: make([]byte, 160*144*4)}
	m.bus = mmu.New(make([]byte, 0x8000))
	m.cpu = cpu.New(m.bus)
	m.cpu.ResetNoBoot()
	return m
}

// SetBootROM stages a boot ROM overlay used by the next reset/cartridge load.
func (m *Machine) SetBootROM(data []byte) {
	m.boot = data
	m.bus.SetBootROM(data)
}

// LoadCartridge wires a freshly parsed cartridge and resets the core.
func (m *Machine) LoadCartridge(rom []byte, boot []byte) error {
	h, err := cart.ParseHeader(rom)
	if err != nil {
		return err
	}
	m.header = h
	m.romData = rom
	if len(boot) > 0 {
		m.boot = boot
	}

	m.bus = mmu.NewWithCartridge(cart.NewCartridge(rom))
	cgbCapable := h.CGBFlag == 0x80 || h.CGBFlag == 0xC0
	m.cgbCompat = m.wantCGBColors && !cgbCapable
	m.bus.SetCGB(cgbCapable || m.cgbCompat)
	if len(m.boot) > 0 {
		m.bus.SetBootROM(m.boot)
	}
	m.cpu = cpu.New(m.bus)
	if len(m.boot) >= 0x100 {
		m.cpu.SetPC(0x0000)
	} else {
		m.cpu.ResetNoBoot()
		m.applyPostBootIO()
	}
	if m.cgbCompat {
		if id, ok := autoCompatPaletteFromHeader(h); ok {
			m.compatPalette = id
		}
		m.bus.PPU().ApplyCompatPalette(cgbCompatSets[m.compatPalette])
	}
	return nil
}

// LoadROMFromFile reads a ROM from disk, loads it, and remembers the path so
// the UI can derive .sav/.savestate sibling files.
func (m *Machine) LoadROMFromFile(path string) error {
	rom, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := m.LoadCartridge(rom, m.boot); err != nil {
		return err
	}
	m.romPath = path
	return nil
}

func (m *Machine) applyPostBootIO() {
	m.bus.Write(0xFF00, 0xCF)
	m.bus.Write(0xFF05, 0x00)
	m.bus.Write(0xFF06, 0x00)
	m.bus.Write(0xFF07, 0x00)
	m.bus.Write(0xFF40, 0x91)
	m.bus.Write(0xFF42, 0x00)
	m.bus.Write(0xFF43, 0x00)
	m.bus.Write(0xFF45, 0x00)
	m.bus.Write(0xFF47, 0xFC)
	m.bus.Write(0xFF48, 0xFF)
	m.bus.Write(0xFF49, 0xFF)
	m.bus.Write(0xFF4A, 0x00)
	m.bus.Write(0xFF4B, 0x00)
	m.bus.Write(0xFFFF, 0x00)
}

// ResetPostBoot reinitializes the core at its DMG post-boot defaults,
// keeping the currently loaded cartridge.
func (m *Machine) ResetPostBoot() {
	if m.header != nil {
		m.bus = mmu.NewWithCartridge(cart.NewCartridge(m.romData))
	}
	m.bus.SetCGB(false)
	m.cgbCompat = false
	m.cpu = cpu.New(m.bus)
	m.cpu.ResetNoBoot()
	m.applyPostBootIO()
}

// ResetWithBoot restarts execution from the staged boot ROM, if any.
func (m *Machine) ResetWithBoot() {
	if len(m.boot) < 0x100 {
		m.ResetPostBoot()
		return
	}
	if m.header != nil {
		m.bus = mmu.NewWithCartridge(cart.NewCartridge(m.romData))
	}
	m.bus.SetBootROM(m.boot)
	m.cpu = cpu.New(m.bus)
	m.cpu.SetPC(0x0000)
}

// ResetCGBPostBoot restarts the current cartridge under CGB compatibility
// rendering (forceCompat forces DMG-only titles into the palette path).
func (m *Machine) ResetCGBPostBoot(forceCompat bool) {
	if m.header == nil {
		return
	}
	m.bus = mmu.NewWithCartridge(cart.NewCartridge(m.romData))
	cgbCapable := m.header.CGBFlag == 0x80 || m.header.CGBFlag == 0xC0
	m.cgbCompat = forceCompat && !cgbCapable
	m.bus.SetCGB(cgbCapable || m.cgbCompat)
	m.cpu = cpu.New(m.bus)
	m.cpu.ResetNoBoot()
	m.applyPostBootIO()
	if m.cgbCompat {
		m.bus.PPU().ApplyCompatPalette(cgbCompatSets[m.compatPalette])
	}
}

// ROMPath returns the path LoadROMFromFile was called with, or "".
func (m *Machine) ROMPath() string { return m.romPath }

// ROMTitle returns the cartridge header title, or "" if none is loaded.
func (m *Machine) ROMTitle() string {
	if m.header == nil {
		return ""
	}
	return m.header.Title
}

// SetSerialWriter routes serial-port (link cable) output, used by test ROMs.
func (m *Machine) SetSerialWriter(w io.Writer) { m.bus.SetSerialWriter(w) }

// SetButtons applies the current input state to the joypad immediately.
func (m *Machine) SetButtons(b Buttons) { m.bus.SetJoypadState(b.mask()) }

// SetUseFetcherBG is carried through for API compatibility; the PPU always
// renders via its scanline compositor regardless of this toggle.
func (m *Machine) SetUseFetcherBG(bool) {}

const cyclesPerFrame = 70224

// StepFrame advances one emulated frame and refreshes the RGBA framebuffer.
func (m *Machine) StepFrame() {
	m.runFrame()
	m.blit()
}

// StepFrameNoRender advances one emulated frame without touching the host
// framebuffer, for headless test-ROM runners.
func (m *Machine) StepFrameNoRender() {
	m.runFrame()
}

func (m *Machine) runFrame() {
	speedDiv := m.bus.SpeedMultiplier()
	target := cyclesPerFrame * speedDiv
	done := 0
	for done < target {
		done += m.cpu.Step()
	}
}

// blit converts the PPU's RGB888 framebuffer into the RGBA buffer ebiten expects.
func (m *Machine) blit() {
	src := m.bus.PPU().Framebuffer()
	for i, n := 0, len(src)/3; i < n; i++ {
		m.fb[i*4+0] = src[i*3+0]
		m.fb[i*4+1] = src[i*3+1]
		m.fb[i*4+2] = src[i*3+2]
		m.fb[i*4+3] = 0xFF
	}
}

// Framebuffer returns the last rendered RGBA frame (160x144x4 bytes).
func (m *Machine) Framebuffer() []byte { return m.fb }

// APUBufferedStereo returns the number of stereo sample frames queued for playback.
func (m *Machine) APUBufferedStereo() int { return m.bus.APU().StereoAvailable() }

// APUPullStereo drains up to max interleaved [L,R] stereo frames.
func (m *Machine) APUPullStereo(max int) []int16 { return m.bus.APU().PullStereo(max) }

// APUCapBufferedStereo drops buffered audio down to at most max frames, used
// to resync playback latency after pausing or fast-forwarding.
func (m *Machine) APUCapBufferedStereo(max int) {
	for m.bus.APU().StereoAvailable() > max {
		if m.bus.APU().PullStereo(m.bus.APU().StereoAvailable()-max) == nil {
			break
		}
	}
}

// APUClearAudioLatency discards all buffered audio outright.
func (m *Machine) APUClearAudioLatency() {
	for m.bus.APU().StereoAvailable() > 0 {
		if m.bus.APU().PullStereo(4096) == nil {
			break
		}
	}
}

// SaveBattery returns battery-backed cartridge RAM, if the cartridge has any.
func (m *Machine) SaveBattery() ([]byte, bool) {
	bb, ok := m.bus.Cart().(cart.BatteryBacked)
	if !ok {
		return nil, false
	}
	data := bb.SaveRAM()
	return data, data != nil
}

// LoadBattery restores battery-backed cartridge RAM saved by SaveBattery.
func (m *Machine) LoadBattery(data []byte) bool {
	bb, ok := m.bus.Cart().(cart.BatteryBacked)
	if !ok {
		return false
	}
	bb.LoadRAM(data)
	return true
}

type stateEnvelope struct {
	CPU struct {
		A, F, B, C, D, E, H, L byte
		SP, PC                 uint16
		IME                    bool
	}
	Bus []byte
}

// SaveState serializes the machine (CPU registers plus the MMU's own state
// and its PPU, timer, joypad and cartridge state) into an opaque blob
// suitable for SaveStateToFile. APU state is not included.
func (m *Machine) SaveState() []byte {
	var env stateEnvelope
	env.CPU.A, env.CPU.F = m.cpu.A, m.cpu.F
	env.CPU.B, env.CPU.C = m.cpu.B, m.cpu.C
	env.CPU.D, env.CPU.E = m.cpu.D, m.cpu.E
	env.CPU.H, env.CPU.L = m.cpu.H, m.cpu.L
	env.CPU.SP, env.CPU.PC = m.cpu.SP, m.cpu.PC
	env.CPU.IME = m.cpu.IME
	env.Bus = m.bus.SaveState()
	b, _ := json.Marshal(env)
	return b
}

// LoadState restores a blob produced by SaveState.
func (m *Machine) LoadState(data []byte) error {
	var env stateEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	m.cpu.A, m.cpu.F = env.CPU.A, env.CPU.F
	m.cpu.B, m.cpu.C = env.CPU.B, env.CPU.C
	m.cpu.D, m.cpu.E = env.CPU.D, env.CPU.E
	m.cpu.H, m.cpu.L = env.CPU.H, env.CPU.L
	m.cpu.SP, m.cpu.PC = env.CPU.SP, env.CPU.PC
	m.cpu.IME = env.CPU.IME
	m.bus.LoadState(env.Bus)
	return nil
}

// SaveStateToFile writes SaveState's output to path.
func (m *Machine) SaveStateToFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, m.SaveState(), 0644)
}

// LoadStateFromFile restores a state previously written by SaveStateToFile.
func (m *Machine) LoadStateFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return m.LoadState(data)
}

// --- CGB compatibility-palette controls (DMG-only ROM, CGB colors on) ---

// IsCGBCompat reports whether the loaded ROM is DMG-only but is currently
// being rendered through a CGB compatibility palette.
func (m *Machine) IsCGBCompat() bool { return m.cgbCompat }

// UseCGBBG reports whether the PPU is currently driven in color mode.
func (m *Machine) UseCGBBG() bool {
	return m.header != nil && (m.header.CGBFlag == 0x80 || m.header.CGBFlag == 0xC0 || m.cgbCompat)
}

// WantCGBColors reports the user's sticky preference for CGB-style colors.
func (m *Machine) WantCGBColors() bool { return m.wantCGBColors }

// SetUseCGBBG toggles the sticky CGB-colors preference; the UI follows this
// with a reset (ResetCGBPostBoot/ResetPostBoot) to apply it.
func (m *Machine) SetUseCGBBG(on bool) { m.wantCGBColors = on }

// CurrentCompatPalette returns the active compatibility-palette ID.
func (m *Machine) CurrentCompatPalette() int { return m.compatPalette }

// SetCompatPalette selects a compatibility palette by ID.
func (m *Machine) SetCompatPalette(id int) {
	if id < 0 {
		id = 0
	}
	if id >= len(cgbCompatSets) {
		id = len(cgbCompatSets) - 1
	}
	m.compatPalette = id
	if m.cgbCompat {
		m.bus.PPU().ApplyCompatPalette(cgbCompatSets[m.compatPalette])
	}
}

// CycleCompatPalette moves the active compatibility palette by delta, wrapping.
func (m *Machine) CycleCompatPalette(delta int) {
	n := len(cgbCompatSets)
	m.compatPalette = ((m.compatPalette+delta)%n + n) % n
	if m.cgbCompat {
		m.bus.PPU().ApplyCompatPalette(cgbCompatSets[m.compatPalette])
	}
}

// CompatPaletteName returns a human label for a compatibility-palette ID.
func (m *Machine) CompatPaletteName(id int) string {
	if id < 0 || id >= len(cgbCompatSetNames) {
		return fmt.Sprintf("Palette %d", id)
	}
	return cgbCompatSetNames[id]
}
