// machine.go - Device registry and machine lifecycle

/*
 ██▓ ███▄    █ ▄▄▄█████▓ █    ██  ██▓▄▄▄█████▓ ██▓ ▒█████   ███▄    █    ▓█████  ███▄    █   ▄████  ██▓ ███▄    █ ▓█████
▓██▒ ██ ▀█   █ ▓  ██▒ ▓▒ ██  ▓██▒▓██▒▓  ██▒ ▓▒▓██▒▒██▒  ██▒ ██ ▀█   █    ▓█   ▀  ██ ▀█   █  ██▒ ▀█▒▓██▒ ██ ▀█   █ ▓█   ▀
▒██▒▓██  ▀█ ██▒▒ ▓██░ ▒░▓██  ▒██░▒██▒▒ ▓██░ ▒░▒██▒▒██░  ██▒▓██  ▀█ ██▒   ▒███   ▓██  ▀█ ██▒▒██░▄▄▄░▒██▒▓██  ▀█ ██▒▒███
░██░▓██▒  ▐▌██▒░ ▓██▓ ░ ▓▓█  ░██░░██░░ ▓██▓ ░ ░██░▒██   ██░▓██▒  ▐▌██▒   ▒▓█  ▄ ▓██▒  ▐▌██▒░▓█  ██▓░██░▓██▒  ▐▌██▒▒▓█  ▄
░██░▒██░   ▓██░  ▒██▒ ░ ▒▒█████▓ ░██░  ▒██▒ ░ ░██░░ ████▓▒░▒██░   ▓██░   ░▒████▒▒██░   ▓██░░▒▓███▀▒░██░▒██░   ▓██░░▒████▒
░▓  ░ ▒░   ▒ ▒   ▒ ░░   ░▒▓▒ ▒ ▒ ░▓    ▒ ░░   ░▓  ░ ▒░▒░▒░ ░ ▒░   ▒ ▒    ░░ ▒░ ░░ ▒░   ▒ ▒  ░▒   ▒ ░▓  ░ ▒░   ▒ ▒ ░░ ▒░ ░
 ▒ ░░ ░░   ░ ▒░    ░    ░░▒░ ░ ░  ▒ ░    ░     ▒ ░  ░ ▒ ▒░ ░ ░░   ░ ▒░    ░ ░  ░░ ░░   ░ ▒░  ░   ░  ▒ ░░ ░░   ░ ▒░ ░ ░  ░
 ▒ ░   ░   ░ ░   ░       ░░░ ░ ░  ▒ ░  ░       ▒ ░░ ░ ░ ▒     ░   ░ ░       ░      ░   ░ ░ ░ ░   ░  ▒ ░   ░   ░ ░    ░
 ░           ░             ░      ░            ░      ░ ░           ░       ░  ░         ░       ░  ░           ░    ░  ░

(c) 2024 - 2026 Zayn Otley
https://github.com/IntuitionAmiga/IntuitionEngine
Buy me a coffee: https://ko-fi.com/intuition/tip

License: GPLv3 or later
*/

/*
machine.go - Machine

A Machine is the explicit context every device is built against. It owns
the registry of devices in registration order, the primary event scheduler
and the save-state format that ties them together.

Core Features:

    Device ids assigned in registration order, starting with a no-op
    placeholder (id 0) and the scheduler (id 1) so that every device can
    resolve its event manager without being told.
    Lifecycle fan-out (Initialize, Reset, SpecialReset, UpdateConfig,
    Release) in registration order, never reversed.
    Sealing: once execution starts, wiring calls panic. Bank switching and
    event registration stay legal.
    Save-state: a global version, then one length-framed blob per device.
    Loading validates the framing first, snapshots the live state, applies
    the blobs and rolls every device back if any of them rejects its blob,
    so a bad file never leaves a half-restored machine.

Technical Details:

    Device blobs start with the device's own version tag and id; each device
    checks those itself in LoadState.
    All callbacks run synchronously on the goroutine calling Drive. A
    machine must not be touched from another goroutine while Drive runs.
*/

package vm

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"slices"
	"sync/atomic"
)

// StateVersion tags the machine-level save-state layout.
const StateVersion = 1

const maxStateBlob = 1 << 30

var (
	ErrStateVersion  = errors.New("unsupported state version")
	ErrStateLayout   = errors.New("state layout does not match machine")
	ErrStateMismatch = errors.New("device rejected state")
)

// Config carries the timing defaults a machine starts with. Zero timing
// fields take the DefaultConfig value; BankFill is used as given.
type Config struct {
	CPUClock      uint64  // primary clock in Hz until a CPU context sets it
	FramesPerSec  float64 // video frames per emulated second
	LinesPerFrame int     // scanlines per frame
	BankFill      byte    // value read from unmapped memory
}

func DefaultConfig() Config {
	return Config{
		CPUClock:      4000000,
		FramesPerSec:  60,
		LinesPerFrame: 262,
		BankFill:      0xFF,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.CPUClock == 0 {
		c.CPUClock = def.CPUClock
	}
	if !(c.FramesPerSec > 0) {
		c.FramesPerSec = def.FramesPerSec
	}
	if c.LinesPerFrame <= 0 {
		c.LinesPerFrame = def.LinesPerFrame
	}
	return c
}

type Machine struct {
	cfg     Config
	devices []Device
	events  *Scheduler
	sealed  atomic.Bool
	logf    func(format string, args ...any)
}

// NewMachine creates a machine holding only the placeholder and the
// scheduler.
func NewMachine(cfg Config) *Machine {
	m := &Machine{cfg: cfg.withDefaults()}
	m.Register(&dummy{})
	m.devices[0].base().SetName("Dummy")
	m.events = newScheduler(m.cfg)
	m.Register(m.events)
	m.events.SetName("Event Manager")
	return m
}

func (m *Machine) Config() Config { return m.cfg }

// Register appends dev to the registry and returns its id. Devices call it
// from their constructors.
func (m *Machine) Register(dev Device) ID {
	if m.sealed.Load() {
		panic(fmt.Sprintf("Register called after execution started (%T)", dev))
	}
	b := dev.base()
	if b.machine != nil {
		panic(fmt.Sprintf("device %q registered twice", b.name))
	}
	b.id = ID(len(m.devices))
	b.machine = m
	b.self = dev
	if b.name == "" {
		b.name = fmt.Sprintf("Device %d", b.id)
	}
	m.devices = append(m.devices, dev)
	return b.id
}

// Device returns the device with the given id, nil if there is none.
func (m *Machine) Device(id ID) Device {
	if id < 0 || int(id) >= len(m.devices) {
		return nil
	}
	return m.devices[id]
}

// Devices returns the registry in registration order.
func (m *Machine) Devices() []Device { return slices.Clone(m.devices) }

func (m *Machine) Next(id ID) Device { return m.Device(id + 1) }

func (m *Machine) Prev(id ID) Device {
	if id <= 0 {
		return nil
	}
	return m.Device(id - 1)
}

// Scheduler returns the primary event manager.
func (m *Machine) Scheduler() *Scheduler { return m.events }

// Seal marks the start of execution. Wiring calls made afterwards panic.
func (m *Machine) Seal() { m.sealed.Store(true) }

func (m *Machine) Sealed() bool { return m.sealed.Load() }

// SetDebugLog installs the sink for device debug output. nil discards.
func (m *Machine) SetDebugLog(fn func(format string, args ...any)) { m.logf = fn }

func (m *Machine) DebugLog(format string, args ...any) {
	if m.logf != nil {
		m.logf(format, args...)
	}
}

// Initialize runs the scheduler's Initialize first, then every other
// device's in registration order.
func (m *Machine) Initialize() {
	m.events.Initialize()
	for _, dev := range m.devices {
		if d, ok := dev.(Initializer); ok && dev != Device(m.events) {
			d.Initialize()
		}
	}
}

func (m *Machine) Reset() {
	for _, dev := range m.devices {
		if d, ok := dev.(Resetter); ok {
			d.Reset()
		}
	}
}

// SpecialReset is the secondary reset some machines wire to a front-panel
// button. Devices without a special reset get their normal one.
func (m *Machine) SpecialReset() {
	for _, dev := range m.devices {
		switch d := dev.(type) {
		case SpecialResetter:
			d.SpecialReset()
		case Resetter:
			d.Reset()
		}
	}
}

// UpdateConfig tells devices that host configuration changed.
func (m *Machine) UpdateConfig() {
	for _, dev := range m.devices {
		if d, ok := dev.(ConfigUpdater); ok {
			d.UpdateConfig()
		}
	}
}

// Release tears devices down in registration order.
func (m *Machine) Release() {
	for _, dev := range m.devices {
		if d, ok := dev.(Releaser); ok {
			d.Release()
		}
	}
}

// Drive runs one frame on the primary scheduler.
func (m *Machine) Drive() { m.events.Drive() }

// PassedClock is the wrap-safe clock delta on the primary scheduler.
func (m *Machine) PassedClock(prev uint32) uint32 { return m.events.PassedClock(prev) }

// snapshot captures every device's state blob in registration order.
func (m *Machine) snapshot() ([][]byte, error) {
	blobs := make([][]byte, len(m.devices))
	for i, dev := range m.devices {
		s, ok := dev.(StateSaver)
		if !ok {
			continue
		}
		var buf bytes.Buffer
		w := NewStateWriter(&buf)
		s.SaveState(w)
		if err := w.Err(); err != nil {
			return nil, fmt.Errorf("saving %q: %w", dev.base().name, err)
		}
		blobs[i] = buf.Bytes()
	}
	return blobs, nil
}

func (m *Machine) apply(blobs [][]byte) error {
	for i, dev := range m.devices {
		s, ok := dev.(StateSaver)
		if !ok {
			continue
		}
		rd := bytes.NewReader(blobs[i])
		r := NewStateReader(rd)
		if !s.LoadState(r) || r.Err() != nil || rd.Len() != 0 {
			return fmt.Errorf("device %d (%s): %w", i, dev.base().name, ErrStateMismatch)
		}
	}
	return nil
}

// SaveState writes the machine's state: global version, device count,
// then id, length and blob for every device.
func (m *Machine) SaveState(w io.Writer) error {
	blobs, err := m.snapshot()
	if err != nil {
		return err
	}
	sw := NewStateWriter(w)
	sw.PutUint32(StateVersion)
	sw.PutUint32(uint32(len(blobs)))
	for i, blob := range blobs {
		sw.PutInt32(int32(i))
		sw.PutUint32(uint32(len(blob)))
		sw.PutBytes(blob)
	}
	return sw.Err()
}

// LoadState restores a stream written by SaveState. On any error the
// machine is left exactly as it was.
func (m *Machine) LoadState(r io.Reader) error {
	blobs, err := m.readFrames(r)
	if err != nil {
		return err
	}
	prev, err := m.snapshot()
	if err != nil {
		return err
	}
	if err := m.apply(blobs); err != nil {
		if rerr := m.apply(prev); rerr != nil {
			panic(fmt.Sprintf("state rollback failed: %v (after %v)", rerr, err))
		}
		return err
	}
	return nil
}

func (m *Machine) readFrames(r io.Reader) ([][]byte, error) {
	sr := NewStateReader(r)
	version := sr.Uint32()
	count := sr.Uint32()
	if err := sr.Err(); err != nil {
		return nil, fmt.Errorf("reading state header: %w", err)
	}
	if version != StateVersion {
		return nil, fmt.Errorf("machine state version %d: %w", version, ErrStateVersion)
	}
	if int(count) != len(m.devices) {
		return nil, fmt.Errorf("%d device blobs for %d devices: %w", count, len(m.devices), ErrStateLayout)
	}
	blobs := make([][]byte, count)
	for i := range blobs {
		id := sr.Int32()
		size := sr.Uint32()
		if err := sr.Err(); err != nil {
			return nil, fmt.Errorf("reading frame %d: %w", i, err)
		}
		if int(id) != i {
			return nil, fmt.Errorf("frame %d carries device id %d: %w", i, id, ErrStateLayout)
		}
		if size > maxStateBlob {
			return nil, fmt.Errorf("frame %d: blob of %d bytes: %w", i, size, ErrStateLayout)
		}
		if _, ok := m.devices[i].(StateSaver); !ok && size != 0 {
			return nil, fmt.Errorf("frame %d: %q has no state: %w", i, m.devices[i].base().name, ErrStateLayout)
		}
		blobs[i] = make([]byte, size)
		sr.Bytes(blobs[i])
		if err := sr.Err(); err != nil {
			return nil, fmt.Errorf("reading frame %d: %w", i, err)
		}
	}
	return blobs, nil
}
