// device.go - Device contract shared by every chip, bus and pseudo device

/*
(c) 2024 - 2026 Zayn Otley
https://github.com/IntuitionAmiga/IntuitionEngine
License: GPLv3 or later
*/

package vm

import "fmt"

// ID is the registration index of a device inside its Machine.
type ID int

// Device is the unit of composition. Implementations embed Base, which
// supplies the registry identity and the default bus and signal behaviour:
// reads float high (0xFF), writes and signals are ignored.
type Device interface {
	Read8(sp Space, addr uint32) uint32
	Write8(sp Space, addr, data uint32)
	WriteSignal(id int, data, mask uint32)
	ReadSignal(id int) uint32
	base() *Base
}

// Optional lifecycle hooks, invoked by Machine in registration order.
type (
	Initializer interface {
		Initialize()
	}
	Releaser interface {
		Release()
	}
	Resetter interface {
		Reset()
	}
	SpecialResetter interface {
		SpecialReset()
	}
	ConfigUpdater interface {
		UpdateConfig()
	}
)

// Timing hooks. The handler interfaces embed Device so a non-device can
// never be handed to the scheduler.
type (
	EventHandler interface {
		Device
		EventCallback(kind, err int)
	}
	PreFrameHandler interface {
		Device
		EventPreFrame()
	}
	FrameHandler interface {
		Device
		EventFrame()
	}
	VlineHandler interface {
		Device
		EventVline(v, clocks int)
	}
	// TimingUpdater is told when the scheduler applies a new frame rate or
	// line count.
	TimingUpdater interface {
		UpdateTiming(cpuHz uint64, framesPerSec float64, linesPerFrame int)
	}
)

// CPU is a device the scheduler can advance. Run executes at least one
// instruction, aiming for the given clock budget, and returns the clocks
// actually consumed. Returning 0 means the CPU is halted for the rest of
// the budget.
type CPU interface {
	Device
	Run(clocks int) int
}

// SoundSource adds n stereo frames into buf (interleaved L, R).
type SoundSource interface {
	Device
	Mix(buf []int32, n int)
}

// StateSaver persists device fields. LoadState returns false to reject a
// blob, which aborts the whole machine load.
type StateSaver interface {
	SaveState(w *StateWriter)
	LoadState(r *StateReader) bool
}

// Base is embedded by every device.
type Base struct {
	id      ID
	name    string
	machine *Machine
	self    Device
	events  *Scheduler
}

func (b *Base) base() *Base { return b }

func (b *Base) ID() ID { return b.id }

func (b *Base) Name() string { return b.name }

func (b *Base) SetName(name string) { b.name = name }

// Machine returns the owning machine, nil before registration.
func (b *Base) Machine() *Machine { return b.machine }

// SetEventManager binds the device to a scheduler other than the machine's
// primary one.
func (b *Base) SetEventManager(s *Scheduler) { b.events = s }

// EventManager resolves lazily to the device registered right after the
// placeholder, which is always the machine's scheduler.
func (b *Base) EventManager() *Scheduler {
	if b.events == nil {
		if b.machine == nil {
			panic(fmt.Sprintf("device %q used before registration", b.name))
		}
		b.events = b.machine.Scheduler()
	}
	return b.events
}

func (b *Base) Read8(sp Space, addr uint32) uint32 { return 0xFF }

func (b *Base) Write8(sp Space, addr, data uint32) {}

func (b *Base) WriteSignal(id int, data, mask uint32) {}

func (b *Base) ReadSignal(id int) uint32 { return 0 }

// DebugLog forwards to the machine's debug log hook.
func (b *Base) DebugLog(format string, args ...any) {
	if b.machine != nil {
		b.machine.DebugLog(format, args...)
	}
}

// Helpers that route through the device's event manager on behalf of the
// embedding device. They require the outer device to implement the hook
// the scheduler will call.

func (b *Base) RegisterEvent(kind int, usec float64, loop bool) EventID {
	return b.EventManager().RegisterEvent(b.eventHandler(), kind, usec, loop)
}

func (b *Base) RegisterEventByClock(kind int, clocks uint64, loop bool) EventID {
	return b.EventManager().RegisterEventByClock(b.eventHandler(), kind, clocks, loop)
}

// CancelEvent cancels *id and zeroes it, the usual pattern for devices
// that keep one handle per timer.
func (b *Base) CancelEvent(id *EventID) {
	if *id != 0 {
		b.EventManager().CancelEvent(*id)
		*id = 0
	}
}

func (b *Base) CurrentClock() uint32 { return b.EventManager().CurrentClock() }

func (b *Base) PassedClock(prev uint32) uint32 { return b.EventManager().PassedClock(prev) }

func (b *Base) PassedUsec(prev uint32) float64 { return b.EventManager().PassedUsec(prev) }

func (b *Base) TouchSound() { b.EventManager().TouchSound() }

func (b *Base) eventHandler() EventHandler {
	h, ok := b.self.(EventHandler)
	if !ok {
		panic(fmt.Sprintf("device %q registers events without an EventCallback", b.name))
	}
	return h
}

// dummy is the no-op placeholder occupying id 0 of every machine.
type dummy struct {
	Base
}
