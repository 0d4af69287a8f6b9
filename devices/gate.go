// gate.go - Logic gates built from signal lines

package devices

import "github.com/intuitionamiga/chipbus/vm"

// AND and OR gates take one input per bit: the signal id is the bit.
const (
	SIG_GATE_BIT_0 = 1 << iota
	SIG_GATE_BIT_1
	SIG_GATE_BIT_2
	SIG_GATE_BIT_3
	SIG_GATE_BIT_4
	SIG_GATE_BIT_5
	SIG_GATE_BIT_6
	SIG_GATE_BIT_7
)

// SIG_GATE_INPUT is the input of a NOT gate. It ignores the id.
const SIG_GATE_INPUT = 0

type GateOp int

const (
	GATE_AND GateOp = iota
	GATE_OR
	GATE_NOT
)

func (op GateOp) String() string {
	switch op {
	case GATE_AND:
		return "AND"
	case GATE_OR:
		return "OR"
	case GATE_NOT:
		return "NOT"
	}
	return "GATE?"
}

const gateStateVersion = 1

// Gate drives Out with all ones or zero. The first evaluation always
// propagates; after that only changes do.
type Gate struct {
	vm.Base
	Out vm.Outputs

	op     GateOp
	inputs uint32 // AND: bits that must all be high
	bits   uint32
	prev   bool
	first  bool
}

func NewGate(m *vm.Machine, op GateOp) *Gate {
	g := &Gate{op: op, first: true}
	m.Register(g)
	g.SetName(op.String() + " Gate")
	return g
}

// AddInput declares an AND input bit. OR and NOT gates ignore it.
func (g *Gate) AddInput(bit uint32) {
	g.inputs |= bit
}

func (g *Gate) WriteSignal(id int, data, mask uint32) {
	high := data&mask != 0
	if g.op == GATE_NOT {
		g.update(!high)
		return
	}

	if high {
		g.bits |= uint32(id)
	} else {
		g.bits &^= uint32(id)
	}
	switch g.op {
	case GATE_AND:
		g.update(g.bits&g.inputs == g.inputs)
	case GATE_OR:
		g.update(g.bits != 0)
	}
}

func (g *Gate) update(out bool) {
	if out == g.prev && !g.first {
		return
	}
	g.prev, g.first = out, false
	if out {
		g.Out.Write(0xFFFFFFFF)
	} else {
		g.Out.Write(0)
	}
}

// ReadSignal returns the current output level.
func (g *Gate) ReadSignal(id int) uint32 {
	if g.prev {
		return 1
	}
	return 0
}

func (g *Gate) SaveState(w *vm.StateWriter) {
	w.Header(gateStateVersion, g.ID())
	w.PutUint32(g.bits)
	w.PutBool(g.prev)
	w.PutBool(g.first)
}

func (g *Gate) LoadState(r *vm.StateReader) bool {
	if !r.CheckHeader(gateStateVersion, g.ID()) {
		return false
	}
	g.bits = r.Uint32()
	g.prev = r.Bool()
	g.first = r.Bool()
	return r.Err() == nil
}
