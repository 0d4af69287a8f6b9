package devices

import (
	"bytes"
	"errors"
	"slices"
	"testing"

	"github.com/intuitionamiga/chipbus/vm"
)

// tap records every signal written to it.
type tap struct {
	vm.Base
	got []uint32
}

func newTap(m *vm.Machine) *tap {
	p := &tap{}
	m.Register(p)
	return p
}

func (p *tap) WriteSignal(id int, data, mask uint32) {
	p.got = append(p.got, data&mask)
}

func TestGate_AND(t *testing.T) {
	m := vm.NewMachine(vm.Config{})
	g := NewGate(m, GATE_AND)
	g.AddInput(SIG_GATE_BIT_0)
	g.AddInput(SIG_GATE_BIT_1)
	out := newTap(m)
	g.Out.MustRegister(out, 0, 1, 0)

	g.WriteSignal(SIG_GATE_BIT_0, 1, 1) // first evaluation propagates low
	g.WriteSignal(SIG_GATE_BIT_0, 1, 1) // no change
	g.WriteSignal(SIG_GATE_BIT_1, 0xFF, 0x80)
	g.WriteSignal(SIG_GATE_BIT_1, 0xFF, 0x80)
	g.WriteSignal(SIG_GATE_BIT_0, 0, 1)

	if want := []uint32{0, 1, 0}; !slices.Equal(out.got, want) {
		t.Fatalf("AND output %v, expected %v", out.got, want)
	}
	if g.ReadSignal(0) != 0 {
		t.Fatal("ReadSignal reports high with one input low")
	}
}

func TestGate_ORAndNOT(t *testing.T) {
	m := vm.NewMachine(vm.Config{})
	or := NewGate(m, GATE_OR)
	not := NewGate(m, GATE_NOT)
	out := newTap(m)
	or.Out.MustRegister(not, SIG_GATE_INPUT, 1, 0)
	not.Out.MustRegister(out, 0, 1, 0)

	or.WriteSignal(SIG_GATE_BIT_2, 1, 1)
	or.WriteSignal(SIG_GATE_BIT_5, 1, 1)
	or.WriteSignal(SIG_GATE_BIT_2, 0, 1)
	or.WriteSignal(SIG_GATE_BIT_5, 0, 1)

	if want := []uint32{0, 1}; !slices.Equal(out.got, want) {
		t.Fatalf("NOT(OR) output %v, expected %v", out.got, want)
	}
	if not.Name() != "NOT Gate" {
		t.Fatalf("gate named %q", not.Name())
	}
}

func TestBeep_SquareWave(t *testing.T) {
	m := vm.NewMachine(vm.Config{})
	b := NewBeep(m)
	b.InitializeSound(8000, 1000, 100)

	buf := make([]int32, 16)
	b.Mix(buf, 8)
	if slices.ContainsFunc(buf, func(v int32) bool { return v != 0 }) {
		t.Fatalf("beep mixed while off: %v", buf)
	}

	b.WriteSignal(SIG_BEEP_ON, 1, 1)
	b.Mix(buf, 8)
	want := []int32{100, 100, 100, 100, 100, 100, 100, 100, -100, -100, -100, -100, -100, -100, -100, -100}
	if !slices.Equal(buf, want) {
		t.Fatalf("mixed %v, expected %v", buf, want)
	}

	b.WriteSignal(SIG_BEEP_MUTE, 1, 1)
	clear(buf)
	b.Mix(buf, 8)
	if slices.ContainsFunc(buf, func(v int32) bool { return v != 0 }) {
		t.Fatalf("beep mixed while muted: %v", buf)
	}
	if b.ReadSignal(SIG_BEEP_ON) != 1 || b.ReadSignal(SIG_BEEP_MUTE) != 1 {
		t.Fatal("ReadSignal does not reflect the lines")
	}
}

func TestBeep_PlaysThroughScheduler(t *testing.T) {
	m := vm.NewMachine(vm.Config{CPUClock: 6000, FramesPerSec: 60, LinesPerFrame: 10})
	b := NewBeep(m)
	s := m.Scheduler()
	s.InitializeSound(8000, 64)
	s.SetContextSound(b)
	b.InitializeSound(8000, 1000, 1000)
	m.Initialize()
	b.WriteSignal(SIG_BEEP_ON, 1, 1)

	buf, _ := s.CreateSound()
	if len(buf) != 128 {
		t.Fatalf("buffer holds %d samples, expected 128", len(buf))
	}
	if buf[0] != 1000 || buf[8] != -1000 || buf[16] != 1000 {
		t.Fatalf("unexpected waveform %v", buf[:24])
	}
}

func TestKeyLatch_InterruptsClockSink(t *testing.T) {
	m := vm.NewMachine(vm.Config{CPUClock: 1000000, FramesPerSec: 50, LinesPerFrame: 10})
	cpu := NewClockSink(m, 4)
	ports := vm.NewIOBus(m, 0x100)
	keys := NewKeyLatch(m)
	ready := newTap(m)

	ports.SetIOMapRangeR(0x30, 0x31, keys)
	keys.SetVector(0, 0x38)
	keys.SetContextIntr(cpu, 1)
	keys.Ready.MustRegister(ready, 0, 1, 0)
	vm.Chain(keys)
	cpu.SetIntrHead(keys)

	var served []uint32
	cpu.OnInterrupt = func(vector uint32) {
		served = append(served, vector, ports.Read8(vm.Data, 0x30))
	}
	m.Scheduler().SetContextCPU(cpu, 1000000)
	m.Seal()
	m.Initialize()

	keys.WriteSignal(SIG_KEY_DATA, 'A', 0xFF)
	if ports.Read8(vm.Data, 0x31) != 1 {
		t.Fatal("status port does not show ready")
	}
	m.Drive()

	if want := []uint32{0x38, 'A'}; !slices.Equal(served, want) {
		t.Fatalf("served %v, expected %v", served, want)
	}
	if cpu.Interrupts() != 1 {
		t.Fatalf("%d acknowledge cycles, expected 1", cpu.Interrupts())
	}
	if ports.Read8(vm.Data, 0x31) != 0 || keys.InService(0) {
		t.Fatal("latch still busy after the service routine")
	}
	if want := []uint32{1, 0}; !slices.Equal(ready.got, want) {
		t.Fatalf("ready line %v, expected %v", ready.got, want)
	}
	if cpu.Total() < 20000 {
		t.Fatalf("cpu ran %d clocks in one frame, expected at least 20000", cpu.Total())
	}
}

func TestClockSink_Halt(t *testing.T) {
	m := vm.NewMachine(vm.Config{})
	cpu := NewClockSink(m, 3)
	if got := cpu.Run(10); got != 12 {
		t.Fatalf("Run(10) used %d clocks, expected 12", got)
	}
	cpu.WriteSignal(SIG_CPU_HALT, 1, 1)
	if got := cpu.Run(10); got != 0 {
		t.Fatalf("halted Run used %d clocks", got)
	}
	cpu.Reset()
	if cpu.Total() != 0 || cpu.Run(1) != 3 {
		t.Fatal("Reset did not release the halt")
	}
}

func TestDevices_StateRoundTrip(t *testing.T) {
	m := vm.NewMachine(vm.Config{})
	g := NewGate(m, GATE_OR)
	b := NewBeep(m)
	b.InitializeSound(8000, 1000, 10)
	keys := NewKeyLatch(m)
	cpu := NewClockSink(m, 2)

	g.WriteSignal(SIG_GATE_BIT_3, 1, 1)
	b.WriteSignal(SIG_BEEP_ON, 1, 1)
	b.Mix(make([]int32, 6), 3)
	keys.WriteSignal(SIG_KEY_DATA, 0x1B, 0xFF)
	cpu.Run(100)

	var buf bytes.Buffer
	if err := m.SaveState(&buf); err != nil {
		t.Fatalf("SaveState: %v", err)
	}

	m.Reset()
	g.WriteSignal(SIG_GATE_BIT_3, 0, 1)
	if err := m.LoadState(&buf); err != nil {
		t.Fatalf("LoadState: %v", err)
	}
	if g.ReadSignal(0) != 1 || b.ReadSignal(SIG_BEEP_ON) != 1 {
		t.Fatal("gate or beep not restored")
	}
	if keys.ReadSignal(SIG_KEY_DATA) != 0x1B || !keys.Pending(0) {
		t.Fatal("key latch not restored")
	}
	if cpu.Total() != 100 {
		t.Fatalf("cpu total %d, expected 100", cpu.Total())
	}
}

// intrLine records the level of a CPU interrupt input.
type intrLine struct {
	vm.Base
	line bool
}

func (l *intrLine) SetIntrLine(line, pending bool, bit uint32) { l.line = line }

func TestKeyLatch_LoadStateDrivesOutputs(t *testing.T) {
	m := vm.NewMachine(vm.Config{})
	keys := NewKeyLatch(m)
	ready := newTap(m)
	cpu := &intrLine{}
	m.Register(cpu)
	keys.SetContextIntr(cpu, 1)
	keys.Ready.MustRegister(ready, 0, 1, 0)
	vm.Chain(keys)
	m.Initialize()

	keys.WriteSignal(SIG_KEY_DATA, 'k', 0xFF)
	if !cpu.line {
		t.Fatal("latched key did not raise the interrupt line")
	}
	var buf bytes.Buffer
	if err := m.SaveState(&buf); err != nil {
		t.Fatalf("SaveState: %v", err)
	}

	m.Reset()
	if cpu.line || ready.got[len(ready.got)-1] != 0 {
		t.Fatal("Reset left the latch asserted")
	}
	if err := m.LoadState(&buf); err != nil {
		t.Fatalf("LoadState: %v", err)
	}
	if got := ready.got[len(ready.got)-1]; got != 1 {
		t.Fatalf("ready line %d after load, expected 1", got)
	}
	if !cpu.line {
		t.Fatal("interrupt line not raised after load")
	}
}

func newPagedMachine(t *testing.T) (*vm.Machine, *vm.MemoryBus, *vm.IOBus, *Pager) {
	t.Helper()
	m := vm.NewMachine(vm.Config{BankFill: 0xFF})
	bus := vm.NewMemoryBus(m, 0x10000, 12)
	ports := vm.NewIOBus(m, 0x100)
	pg, err := NewPager(m, bus, PagerLayout{
		FixedStart: 0x0000, FixedEnd: 0x3FFF,
		WindowStart: 0x4000, WindowEnd: 0x7FFF,
		Pages: 4,
	})
	if err != nil {
		t.Fatalf("NewPager: %v", err)
	}
	ports.SetIOMapSingleRW(0x02, pg)
	m.Seal()
	m.Initialize()
	m.Reset()
	return m, bus, ports, pg
}

func TestPager_BankSelectSwitchesWindow(t *testing.T) {
	_, bus, ports, pg := newPagedMachine(t)

	bus.Write8(vm.Data, 0x4000, 0xA0)
	ports.Write8(vm.Data, 0x02, 2)
	bus.Write8(vm.Data, 0x4000, 0xA2)

	if pg.Page(0)[0] != 0xA0 || pg.Page(2)[0] != 0xA2 {
		t.Fatalf("pages hold %02X and %02X, expected A0 and A2", pg.Page(0)[0], pg.Page(2)[0])
	}
	if got := ports.Read8(vm.Data, 0x02); got != 2 {
		t.Fatalf("bank register reads %d, expected 2", got)
	}
	ports.Write8(vm.Data, 0x02, 5)
	if pg.Bank() != 1 {
		t.Fatalf("bank %d after selecting 5 of 4 pages, expected 1", pg.Bank())
	}
	if got := bus.Read8(vm.Data, 0x8000); got != 0xFF {
		t.Fatalf("read above the window returned %02X, expected FF", got)
	}
}

func TestPager_LoadStateRemapsWindow(t *testing.T) {
	m, bus, ports, pg := newPagedMachine(t)

	bus.Write8(vm.Data, 0x0100, 0x11)
	bus.Write8(vm.Data, 0x4000, 0xA0)
	ports.Write8(vm.Data, 0x02, 3)
	bus.Write8(vm.Data, 0x7FFF, 0xA3)

	var buf bytes.Buffer
	if err := m.SaveState(&buf); err != nil {
		t.Fatalf("SaveState: %v", err)
	}

	m.Reset()
	bus.Write8(vm.Data, 0x0100, 0)
	bus.Write8(vm.Data, 0x4000, 0xFF)
	if pg.Bank() != 0 {
		t.Fatalf("bank %d after Reset, expected 0", pg.Bank())
	}

	if err := m.LoadState(&buf); err != nil {
		t.Fatalf("LoadState: %v", err)
	}
	if pg.Bank() != 3 {
		t.Fatalf("bank %d after load, expected 3", pg.Bank())
	}
	banks := bus.Banks()
	for _, a := range []uint32{0x4000, 0x5234, 0x7FFF} {
		_, off := banks.Decode(a)
		want := &pg.Page(3)[a-0x4000]
		if &banks.ReadBlock(a)[off] != want || &banks.WriteBlock(a)[off] != want {
			t.Fatalf("$%04X does not decode into page 3 after load", a)
		}
	}
	if got := bus.Read8(vm.Data, 0x7FFF); got != 0xA3 {
		t.Fatalf("window reads %02X, expected A3", got)
	}
	if got := bus.Read8(vm.Data, 0x0100); got != 0x11 {
		t.Fatalf("fixed ram reads %02X, expected 11", got)
	}
	if pg.Page(0)[0] != 0xA0 {
		t.Fatalf("page 0 holds %02X, expected A0", pg.Page(0)[0])
	}
}

func TestPager_RejectsBadLayout(t *testing.T) {
	tests := []struct {
		name   string
		layout PagerLayout
		want   error
	}{
		{"no pages", PagerLayout{0, 0xFFF, 0x1000, 0x1FFF, 0}, nil},
		{"reversed window", PagerLayout{0, 0xFFF, 0x2000, 0x1FFF, 2}, vm.ErrBankRange},
		{"unaligned window", PagerLayout{0, 0xFFF, 0x1000, 0x17FF, 2}, vm.ErrBankAlign},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := vm.NewMachine(vm.Config{})
			bus := vm.NewMemoryBus(m, 0x10000, 12)
			_, err := NewPager(m, bus, tt.layout)
			if err == nil {
				t.Fatal("bad layout accepted")
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Fatalf("got %v, expected %v", err, tt.want)
			}
		})
	}
}
