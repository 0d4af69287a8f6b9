package vm

import (
	"fmt"
	"slices"
	"testing"
)

// lifecycleDev logs every lifecycle hook it receives into a shared log.
type lifecycleDev struct {
	Base
	log *[]string
}

func (d *lifecycleDev) note(hook string) { *d.log = append(*d.log, d.Name()+"."+hook) }

func (d *lifecycleDev) Initialize()   { d.note("init") }
func (d *lifecycleDev) Reset()        { d.note("reset") }
func (d *lifecycleDev) UpdateConfig() { d.note("config") }
func (d *lifecycleDev) Release()      { d.note("release") }

// special adds a secondary reset to lifecycleDev.
type special struct {
	lifecycleDev
}

func (d *special) SpecialReset() { d.note("special") }

func TestMachine_ReservedIDs(t *testing.T) {
	m := NewMachine(Config{})
	if m.Device(0) == nil || m.Device(0).(interface{ Name() string }).Name() != "Dummy" {
		t.Fatal("id 0 is not the placeholder")
	}
	if m.Device(1) != Device(m.Scheduler()) || m.Scheduler().ID() != 1 {
		t.Fatal("id 1 is not the scheduler")
	}
	if m.Scheduler().Name() != "Event Manager" {
		t.Fatalf("scheduler named %q", m.Scheduler().Name())
	}

	dev := newByteDev(m)
	if dev.ID() != 2 || dev.Name() != "Device 2" {
		t.Fatalf("first device got id %d name %q", dev.ID(), dev.Name())
	}
	if m.Next(1) != Device(dev) || m.Prev(2) != Device(m.Scheduler()) {
		t.Fatal("Next/Prev do not follow registration order")
	}
	if m.Device(3) != nil || m.Device(-1) != nil || m.Prev(0) != nil || m.Next(2) != nil {
		t.Fatal("lookup outside the registry returned a device")
	}
	if dev.EventManager() != m.Scheduler() {
		t.Fatal("device did not resolve the machine's scheduler")
	}
	if got := len(m.Devices()); got != 3 {
		t.Fatalf("registry holds %d devices, expected 3", got)
	}
}

func TestMachine_LifecycleInRegistrationOrder(t *testing.T) {
	m := NewMachine(Config{})
	var log []string
	a := &lifecycleDev{log: &log}
	m.Register(a)
	a.SetName("a")
	b := &special{lifecycleDev{log: &log}}
	m.Register(b)
	b.SetName("b")

	m.Initialize()
	m.Reset()
	m.SpecialReset()
	m.UpdateConfig()
	m.Release()

	want := []string{
		"a.init", "b.init",
		"a.reset", "b.reset",
		"a.reset", "b.special",
		"a.config", "b.config",
		"a.release", "b.release",
	}
	if !slices.Equal(log, want) {
		t.Fatalf("hooks ran as %v, expected %v", log, want)
	}
}

func TestMachine_WiringPanics(t *testing.T) {
	m := NewMachine(Config{})
	dev := newByteDev(m)

	expectPanic(t, func() { m.Register(dev) })

	m.Seal()
	if !m.Sealed() {
		t.Fatal("Seal did not stick")
	}
	expectPanic(t, func() { newByteDev(m) })
	expectPanic(t, func() { (&recorder{}).EventManager() })
}

func TestMachine_DebugLog(t *testing.T) {
	m := NewMachine(Config{})
	dev := newByteDev(m)
	dev.DebugLog("dropped %d", 1)

	var lines []string
	m.SetDebugLog(func(format string, args ...any) {
		lines = append(lines, fmt.Sprintf(format, args...))
	})
	dev.DebugLog("port $%02X", 0x3F)
	if !slices.Equal(lines, []string{"port $3F"}) {
		t.Fatalf("debug log got %q", lines)
	}
}

func TestMachine_ConfigDefaults(t *testing.T) {
	m := NewMachine(Config{LinesPerFrame: 100})
	cfg := m.Config()
	def := DefaultConfig()
	if cfg.CPUClock != def.CPUClock || cfg.FramesPerSec != def.FramesPerSec {
		t.Fatalf("zero timing fields not defaulted: %+v", cfg)
	}
	if cfg.LinesPerFrame != 100 || cfg.BankFill != 0 {
		t.Fatalf("explicit fields overridden: %+v", cfg)
	}
}
