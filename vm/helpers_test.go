package vm

import "testing"

func expectPanic(t *testing.T, fn func()) {
	t.Helper()
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic, got none")
		}
	}()
	fn()
}

type sigRecord struct {
	id         int
	data, mask uint32
}

type fired struct {
	kind, err int
	clock     uint64
}

// recorder logs every signal and event it receives.
type recorder struct {
	Base
	signals []sigRecord
	events  []fired
	onEvent func(kind, err int)
}

func newRecorder(m *Machine, name string) *recorder {
	r := &recorder{}
	m.Register(r)
	r.SetName(name)
	return r
}

func (r *recorder) WriteSignal(id int, data, mask uint32) {
	r.signals = append(r.signals, sigRecord{id, data, mask})
}

func (r *recorder) EventCallback(kind, err int) {
	r.events = append(r.events, fired{kind, err, r.EventManager().CurrentClock64()})
	if r.onEvent != nil {
		r.onEvent(kind, err)
	}
}

func (r *recorder) kinds() []int {
	out := make([]int, len(r.events))
	for i, e := range r.events {
		out[i] = e.kind
	}
	return out
}

// stepCPU executes fixed-length instructions until its budget is used.
type stepCPU struct {
	Base
	step  int
	total int
}

func newStepCPU(m *Machine, step int) *stepCPU {
	c := &stepCPU{step: step}
	m.Register(c)
	c.SetName("CPU")
	return c
}

func (c *stepCPU) Run(clocks int) int {
	used := 0
	for used < clocks {
		used += c.step
	}
	c.total += used
	return used
}

// byteDev serves reads with the low byte of the address and logs writes.
type byteDev struct {
	Base
	writes []sigRecord
	spaces []Space
}

func newByteDev(m *Machine) *byteDev {
	d := &byteDev{}
	m.Register(d)
	return d
}

func (d *byteDev) Read8(sp Space, addr uint32) uint32 {
	d.spaces = append(d.spaces, sp)
	return addr & 0xFF
}

func (d *byteDev) Write8(sp Space, addr, data uint32) {
	d.spaces = append(d.spaces, sp)
	d.writes = append(d.writes, sigRecord{int(addr), data, 0})
}
