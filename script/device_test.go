package script

import (
	"bytes"
	"fmt"
	"slices"
	"strings"
	"testing"

	"github.com/intuitionamiga/chipbus/vm"
)

type sink struct {
	vm.Base
	got []uint32
}

func newSink(m *vm.Machine) *sink {
	s := &sink{}
	m.Register(s)
	return s
}

func (s *sink) WriteSignal(id int, data, mask uint32) {
	s.got = append(s.got, data&mask)
}

const counterScript = `
local n = 0
local frames = 0

dev.register_frame_event()

function initialize()
	dev.register_event_by_clock(1, 100, true)
end

function event_callback(kind, err)
	n = n + 1
	dev.write_signals(0, n)
end

function event_frame()
	frames = frames + 1
end

function read_signal(id)
	if id == 0 then return n end
	return frames
end

function save_state() return tostring(n) end

function load_state(s)
	n = tonumber(s)
	return n ~= nil
end
`

func newCounter(t *testing.T) (*vm.Machine, *Device, *sink) {
	t.Helper()
	m := vm.NewMachine(vm.Config{CPUClock: 1000, FramesPerSec: 1, LinesPerFrame: 4})
	d, err := New(m, "counter", counterScript)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	out := newSink(m)
	d.Output(0).MustRegister(out, 0, 0xFF, 0)
	m.Initialize()
	return m, d, out
}

func TestScript_LoopingEventDrivesOutput(t *testing.T) {
	m, d, out := newCounter(t)
	m.Scheduler().RunClocks(1050)

	if want := []uint32{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}; !slices.Equal(out.got, want) {
		t.Fatalf("output %v, expected %v", out.got, want)
	}
	if d.Err() != nil {
		t.Fatalf("script error: %v", d.Err())
	}
}

func TestScript_FrameHook(t *testing.T) {
	m, d, _ := newCounter(t)
	m.Drive()
	m.Drive()
	if got := d.ReadSignal(1); got != 2 {
		t.Fatalf("event_frame ran %d times, expected 2", got)
	}
}

func TestScript_StateRoundTrip(t *testing.T) {
	m, d, _ := newCounter(t)
	m.Scheduler().RunClocks(350)

	var buf bytes.Buffer
	if err := m.SaveState(&buf); err != nil {
		t.Fatalf("SaveState: %v", err)
	}
	m.Scheduler().RunClocks(500)
	if err := m.LoadState(&buf); err != nil {
		t.Fatalf("LoadState: %v", err)
	}
	if got := d.ReadSignal(0); got != 3 {
		t.Fatalf("restored count %d, expected 3", got)
	}
}

func TestScript_MappedIO(t *testing.T) {
	m := vm.NewMachine(vm.Config{})
	bus := vm.NewMemoryBus(m, 0x10000, 12)
	d, err := New(m, "mmio", `
		local last = 0
		function read8(space, addr) return addr + 1 end
		function write8(space, addr, data) last = space * 256 + data end
		function read_signal(id) return last end
	`)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := bus.SetMappedIORW(0x1000, 0x1FFF, d); err != nil {
		t.Fatal(err)
	}

	if got := bus.Read8(vm.Data, 0x1005); got != 0x06 {
		t.Fatalf("read got $%02X, expected $06", got)
	}
	bus.Write8(vm.Data, 0x1005, 0x42)
	if got := d.ReadSignal(0); got != uint32(vm.MMIO)<<8|0x42 {
		t.Fatalf("write8 saw $%X", got)
	}
}

func TestScript_Errors(t *testing.T) {
	m := vm.NewMachine(vm.Config{})
	if _, err := New(m, "broken", "function ("); err == nil {
		t.Fatal("syntax error accepted")
	}

	var logged []string
	m.SetDebugLog(func(format string, args ...any) {
		logged = append(logged, fmt.Sprintf(format, args...))
	})
	d, err := New(m, "faulty", `function reset() error("boom") end`)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	m.Reset()
	m.Reset()
	if d.Err() == nil || !strings.Contains(d.Err().Error(), "boom") {
		t.Fatalf("Err() = %v, expected the Lua error", d.Err())
	}
	if len(logged) != 1 {
		t.Fatalf("logged %d times, expected once", len(logged))
	}

	// Hooks the script does not define keep the device defaults.
	if got := d.Read8(vm.IO, 0); got != 0xFF {
		t.Fatalf("undefined read8 returned $%02X", got)
	}
}
