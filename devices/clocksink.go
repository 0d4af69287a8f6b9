// clocksink.go - Stand-in CPU for machines without a core

package devices

import "github.com/intuitionamiga/chipbus/vm"

// SIG_CPU_HALT stops the CPU while the line is high.
const SIG_CPU_HALT = 0

const (
	clockSinkStateVersion = 1
	clockSinkIntrClocks   = 13 // acknowledge + handler entry + RETI
)

// ClockSink executes nothing but fixed-length instructions. It keeps the
// scheduler's timeline moving and answers interrupts from a daisy chain,
// running OnInterrupt as its service routine.
type ClockSink struct {
	vm.Base

	// OnInterrupt runs between acknowledge and return-from-interrupt with
	// the vector the chain supplied.
	OnInterrupt func(vector uint32)

	step   int
	head   vm.InterruptController
	intr   uint32
	halted bool
	total  uint64
	acks   uint64
}

func NewClockSink(m *vm.Machine, step int) *ClockSink {
	if step <= 0 {
		step = 1
	}
	c := &ClockSink{step: step}
	m.Register(c)
	c.SetName("Clock Sink")
	return c
}

// SetIntrHead connects the controller nearest the CPU.
func (c *ClockSink) SetIntrHead(head vm.InterruptController) {
	c.head = head
}

func (c *ClockSink) SetIntrLine(line, pending bool, bit uint32) {
	if line {
		c.intr |= bit
	} else {
		c.intr &^= bit
	}
}

func (c *ClockSink) WriteSignal(id int, data, mask uint32) {
	if id == SIG_CPU_HALT {
		c.halted = data&mask != 0
	}
}

func (c *ClockSink) Reset() {
	c.halted = false
	c.intr = 0
	c.total = 0
	c.acks = 0
}

// Run burns clocks in whole instructions, taking interrupts between them.
func (c *ClockSink) Run(clocks int) int {
	if c.halted {
		return 0
	}
	used := 0
	for used < clocks {
		if c.intr != 0 && c.head != nil {
			c.serve()
			used += clockSinkIntrClocks
			continue
		}
		used += c.step
	}
	c.total += uint64(used)
	return used
}

func (c *ClockSink) serve() {
	vector := c.head.IntrAck()
	c.acks++
	if vector != vm.InvalidVector && c.OnInterrupt != nil {
		c.OnInterrupt(vector)
	}
	c.head.IntrReti()
}

// Total is the number of clocks executed since reset.
func (c *ClockSink) Total() uint64 { return c.total }

// Interrupts is the number of acknowledge cycles run since reset.
func (c *ClockSink) Interrupts() uint64 { return c.acks }

func (c *ClockSink) SaveState(w *vm.StateWriter) {
	w.Header(clockSinkStateVersion, c.ID())
	w.PutUint32(c.intr)
	w.PutBool(c.halted)
	w.PutUint64(c.total)
	w.PutUint64(c.acks)
}

func (c *ClockSink) LoadState(r *vm.StateReader) bool {
	if !r.CheckHeader(clockSinkStateVersion, c.ID()) {
		return false
	}
	intr, halted := r.Uint32(), r.Bool()
	total, acks := r.Uint64(), r.Uint64()
	if r.Err() != nil {
		return false
	}
	c.intr, c.halted, c.total, c.acks = intr, halted, total, acks
	return true
}
