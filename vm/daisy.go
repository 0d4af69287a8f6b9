// daisy.go - Interrupt daisy chain arbitration

package vm

// InvalidVector is returned by IntrAck when the chain is acknowledged while
// a controller is already in service. Real hardware reads an undefined bus
// value here; callers treat it as a spurious interrupt.
const InvalidVector = 0xFF

// InterruptController is one link of an interrupt daisy chain.
type InterruptController interface {
	// SetIntrIEI tells the controller whether everything above it in the
	// chain is free to let it interrupt.
	SetIntrIEI(enabled bool)
	// IntrAck answers an interrupt acknowledge cycle with a vector.
	IntrAck() uint32
	// IntrReti signals that the CPU executed a return-from-interrupt.
	IntrReti()
	SetChild(child InterruptController)
}

// IntrLine is the CPU side of an interrupt request line. bit identifies
// the requesting controller when several share one CPU input.
type IntrLine interface {
	SetIntrLine(line, pending bool, bit uint32)
}

// Chain links ctrls head to tail and enables the head. The head is the
// controller nearest the CPU.
func Chain(ctrls ...InterruptController) {
	for i := 0; i+1 < len(ctrls); i++ {
		ctrls[i].SetChild(ctrls[i+1])
	}
	if len(ctrls) > 0 {
		ctrls[0].SetIntrIEI(true)
	}
}

// DaisyNode implements the daisy chain protocol for a controller with a
// fixed number of prioritised channels, channel 0 highest. Chips embed it
// and call Request/Cancel as their internal state changes.
type DaisyNode struct {
	iei, oei  bool
	req       []bool
	inService []bool
	vectors   []uint32
	child     InterruptController
	cpu       IntrLine
	bit       uint32
}

func NewDaisyNode(channels int) *DaisyNode {
	d := &DaisyNode{}
	d.InitDaisy(channels)
	return d
}

// InitDaisy prepares an embedded node. A controller standing alone (or at
// the head of a chain) starts enabled.
func (d *DaisyNode) InitDaisy(channels int) {
	d.iei, d.oei = true, true
	d.req = make([]bool, channels)
	d.inService = make([]bool, channels)
	d.vectors = make([]uint32, channels)
}

func (d *DaisyNode) Channels() int { return len(d.req) }

func (d *DaisyNode) SetChild(child InterruptController) { d.child = child }

func (d *DaisyNode) Child() InterruptController { return d.child }

// SetContextIntr connects the node to the CPU interrupt input.
func (d *DaisyNode) SetContextIntr(cpu IntrLine, bit uint32) {
	d.cpu, d.bit = cpu, bit
}

func (d *DaisyNode) SetVector(ch int, v uint32) { d.vectors[ch] = v }

func (d *DaisyNode) Vector(ch int) uint32 { return d.vectors[ch] }

func (d *DaisyNode) Pending(ch int) bool { return d.req[ch] }

func (d *DaisyNode) InService(ch int) bool { return d.inService[ch] }

func (d *DaisyNode) IEI() bool { return d.iei }

// IEO is the enable this node passes down the chain.
func (d *DaisyNode) IEO() bool { return d.oei }

// Request raises an interrupt on ch.
func (d *DaisyNode) Request(ch int) {
	if !d.req[ch] {
		d.req[ch] = true
		d.UpdateIntr()
	}
}

// Cancel withdraws a request on ch that has not been acknowledged.
func (d *DaisyNode) Cancel(ch int) {
	if d.req[ch] {
		d.req[ch] = false
		d.UpdateIntr()
	}
}

// ResetDaisy drops every request and in-service flag.
func (d *DaisyNode) ResetDaisy() {
	clear(d.req)
	clear(d.inService)
	d.UpdateIntr()
}

func (d *DaisyNode) SetIntrIEI(enabled bool) {
	if d.iei != enabled {
		d.iei = enabled
		d.UpdateIntr()
	}
}

// UpdateIntr recomputes the output enable, propagates it to the child on
// change and drives the CPU line.
func (d *DaisyNode) UpdateIntr() {
	next := d.iei
	if next {
		for _, busy := range d.inService {
			if busy {
				next = false
				break
			}
		}
	}
	if d.oei != next {
		d.oei = next
		if d.child != nil {
			d.child.SetIntrIEI(d.oei)
		}
	}

	line := false
	if d.iei {
		for ch := range d.req {
			if d.inService[ch] {
				break
			}
			if d.req[ch] {
				line = true
				break
			}
		}
	}
	if d.cpu != nil {
		d.cpu.SetIntrLine(line, true, d.bit)
	}
}

func (d *DaisyNode) IntrAck() uint32 {
	for ch := range d.req {
		if d.inService[ch] {
			return InvalidVector
		}
		if d.req[ch] {
			d.req[ch] = false
			d.inService[ch] = true
			d.UpdateIntr()
			return d.vectors[ch]
		}
	}
	if d.child != nil {
		return d.child.IntrAck()
	}
	return InvalidVector
}

func (d *DaisyNode) IntrReti() {
	for ch := range d.inService {
		if d.inService[ch] {
			d.inService[ch] = false
			d.req[ch] = false
			d.UpdateIntr()
			return
		}
	}
	if d.child != nil {
		d.child.IntrReti()
	}
}

// SaveDaisy writes the node's flags and vectors; the owning device
// calls it from its SaveState.
func (d *DaisyNode) SaveDaisy(w *StateWriter) {
	w.PutBool(d.iei)
	w.PutBool(d.oei)
	for ch := range d.req {
		w.PutBool(d.req[ch])
		w.PutBool(d.inService[ch])
		w.PutUint32(d.vectors[ch])
	}
}

func (d *DaisyNode) LoadDaisy(r *StateReader) {
	d.iei = r.Bool()
	d.oei = r.Bool()
	for ch := range d.req {
		d.req[ch] = r.Bool()
		d.inService[ch] = r.Bool()
		d.vectors[ch] = r.Uint32()
	}
}
