// machine.go - Demonstration machine assembled from the core devices

package main

import (
	"fmt"
	"math"

	"github.com/intuitionamiga/chipbus/devices"
	"github.com/intuitionamiga/chipbus/script"
	"github.com/intuitionamiga/chipbus/vm"
)

const (
	DEMO_FIXED_END    = 0x3FFF
	DEMO_WINDOW_START = 0x4000
	DEMO_WINDOW_END   = 0x7FFF
	DEMO_PAGES        = 4
	DEMO_KEY_BUFFER   = 0x0100 // 256-byte ring of received keys
	DEMO_KEY_HEAD     = 0x00FF // ring write index
	DEMO_PORT_KEY     = 0x00
	DEMO_PORT_BANK    = 0x02
	DEMO_KEY_VECTOR   = 0x38
	DEMO_CHIME_USEC   = 100000
	DEMO_BEEP_VOLUME  = 4000
	DEMO_BASE_FREQ_HZ = 220.0
)

type options struct {
	clockHz    uint64
	fps        float64
	lines      int
	sampleRate int
	scriptPath string
}

// demo holds the wired machine and the devices the host loop talks to.
type demo struct {
	m     *vm.Machine
	mem   *vm.MemoryBus
	ports *vm.IOBus
	cpu   *devices.ClockSink
	keys  *devices.KeyLatch
	beep  *devices.Beep
	bell  *devices.Gate
	chime *chime
	lua   *script.Device
	pager *devices.Pager
}

// newDemo builds and seals the machine:
//
//	host key -> Key Latch -(daisy chain)-> Clock Sink ISR -> Chime
//	Chime / script port 0 -> OR gate -> Beep ON
//	port 2 -> Pager bank select ($4000-$7FFF window)
func newDemo(opts options) (*demo, error) {
	m := vm.NewMachine(vm.Config{
		CPUClock:      opts.clockHz,
		FramesPerSec:  opts.fps,
		LinesPerFrame: opts.lines,
		BankFill:      0xFF,
	})
	d := &demo{m: m}

	d.mem = vm.NewMemoryBus(m, 0x10000, 12)
	pager, err := devices.NewPager(m, d.mem, devices.PagerLayout{
		FixedStart:  0x0000,
		FixedEnd:    DEMO_FIXED_END,
		WindowStart: DEMO_WINDOW_START,
		WindowEnd:   DEMO_WINDOW_END,
		Pages:       DEMO_PAGES,
	})
	if err != nil {
		return nil, fmt.Errorf("mapping ram: %w", err)
	}
	d.pager = pager
	d.ports = vm.NewIOBus(m, 0x100)
	d.ports.SetIOMapSingleRW(DEMO_PORT_BANK, d.pager)

	d.cpu = devices.NewClockSink(m, 4)
	d.keys = devices.NewKeyLatch(m)
	d.beep = devices.NewBeep(m)
	d.bell = devices.NewGate(m, devices.GATE_OR)
	d.chime = newChime(m, d.beep)

	d.ports.SetIOMapRangeR(DEMO_PORT_KEY, DEMO_PORT_KEY+1, d.keys)
	d.ports.SetIOWaitRangeR(DEMO_PORT_KEY, DEMO_PORT_KEY+1, 1)

	d.keys.SetVector(0, DEMO_KEY_VECTOR)
	d.keys.SetContextIntr(d.cpu, 1)
	vm.Chain(d.keys)
	d.cpu.SetIntrHead(d.keys)
	d.cpu.OnInterrupt = d.serviceKey

	d.chime.Out.MustRegister(d.bell, devices.SIG_GATE_BIT_0, 1, 0)
	d.bell.Out.MustRegister(d.beep, devices.SIG_BEEP_ON, 1, 0)

	if opts.scriptPath != "" {
		lua, err := script.NewFile(m, opts.scriptPath)
		if err != nil {
			return nil, err
		}
		lua.Output(0).MustRegister(d.bell, devices.SIG_GATE_BIT_1, 1, 0)
		lua.Output(1).MustRegister(d.beep, devices.SIG_BEEP_MUTE, 1, 0)
		if err := d.mem.SetMappedIORW(0xF000, 0xFFFF, lua); err != nil {
			return nil, fmt.Errorf("mapping script: %w", err)
		}
		d.ports.SetIOMapRangeRW(0x80, 0x8F, lua)
		d.lua = lua
	}

	s := m.Scheduler()
	s.SetContextCPU(d.cpu, opts.clockHz)
	if opts.sampleRate > 0 {
		samples := int(math.Ceil(float64(opts.sampleRate) / opts.fps))
		s.InitializeSound(opts.sampleRate, samples)
		s.SetContextSound(d.beep)
		d.beep.InitializeSound(opts.sampleRate, DEMO_BASE_FREQ_HZ, DEMO_BEEP_VOLUME)
	}

	m.Seal()
	m.Initialize()
	m.Reset()
	return d, nil
}

// serviceKey is the interrupt routine: read the key through the port,
// append it to the RAM ring and strike the chime.
func (d *demo) serviceKey(vector uint32) {
	if vector != DEMO_KEY_VECTOR {
		return
	}
	key, _ := vm.Read8W(d.ports, vm.IO, DEMO_PORT_KEY)
	head := d.mem.Read8(vm.Data, DEMO_KEY_HEAD)
	d.mem.Write8(vm.Data, DEMO_KEY_BUFFER+head, key)
	d.mem.Write8(vm.Data, DEMO_KEY_HEAD, (head+1)&0xFF)
	d.chime.Strike(key)
}

// PressKey latches a host key. Call it between frames only.
func (d *demo) PressKey(b byte) {
	d.keys.WriteSignal(devices.SIG_KEY_DATA, uint32(b), 0xFF)
}

// KeyLog returns the keys the interrupt routine has stored, oldest first
// within the current lap of the ring.
func (d *demo) KeyLog() []byte {
	ram := d.pager.Fixed()
	head := ram[DEMO_KEY_HEAD]
	return append([]byte(nil), ram[DEMO_KEY_BUFFER:DEMO_KEY_BUFFER+int(head)]...)
}

const chimeStateVersion = 1

// chime holds the bell line high for a fixed time after each strike and
// tunes the beeper to the key pressed.
type chime struct {
	vm.Base
	Out vm.Outputs

	beep  *devices.Beep
	timer vm.EventID
	key   uint32
}

func newChime(m *vm.Machine, beep *devices.Beep) *chime {
	c := &chime{beep: beep}
	m.Register(c)
	c.SetName("Chime")
	return c
}

func (c *chime) Reset() {
	c.CancelEvent(&c.timer)
	c.Out.Write(0)
}

// Strike retunes the beeper to a semitone picked by key and restarts the
// release timer.
func (c *chime) Strike(key uint32) {
	c.key = key
	c.retune()
	c.CancelEvent(&c.timer)
	c.timer = c.RegisterEvent(0, DEMO_CHIME_USEC, false)
	c.Out.Write(1)
}

func (c *chime) retune() {
	if c.EventManager().SoundRate() == 0 {
		return
	}
	semitone := float64(c.key % 24)
	c.beep.SetFrequency(DEMO_BASE_FREQ_HZ * math.Pow(2, semitone/12))
}

func (c *chime) EventCallback(kind, err int) {
	c.timer = 0
	c.Out.Write(0)
}

func (c *chime) SaveState(w *vm.StateWriter) {
	w.Header(chimeStateVersion, c.ID())
	w.PutUint64(uint64(c.timer))
	w.PutUint32(c.key)
}

func (c *chime) LoadState(r *vm.StateReader) bool {
	if !r.CheckHeader(chimeStateVersion, c.ID()) {
		return false
	}
	timer := vm.EventID(r.Uint64())
	key := r.Uint32()
	if r.Err() != nil {
		return false
	}
	c.timer, c.key = timer, key
	c.retune()
	return true
}
