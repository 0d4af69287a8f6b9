// signal.go - Output signal tables and fan-out

package vm

import (
	"errors"
	"fmt"
)

// MaxOutputs is the fan-out capacity of one output table.
const MaxOutputs = 16

var (
	ErrOutputsFull  = errors.New("output table full")
	ErrNilTarget    = errors.New("nil signal target")
	ErrUnregistered = errors.New("signal target not registered with a machine")
)

type output struct {
	dev   Device
	id    int
	mask  uint32
	shift int
}

// Outputs is one output port of a device. The zero value is an empty table.
type Outputs struct {
	items [MaxOutputs]output
	count int
}

// Register appends a receiver. Data and mask are shifted left by shift
// (right when negative) before delivery. Wiring past MaxOutputs fails.
func (o *Outputs) Register(dev Device, id int, mask uint32, shift int) error {
	if dev == nil {
		return ErrNilTarget
	}
	if dev.base().machine == nil {
		return fmt.Errorf("signal %d: %w", id, ErrUnregistered)
	}
	if o.count >= MaxOutputs {
		return fmt.Errorf("signal %d to %q: %w", id, dev.base().name, ErrOutputsFull)
	}
	o.items[o.count] = output{dev: dev, id: id, mask: mask, shift: shift}
	o.count++
	return nil
}

// MustRegister is Register for static machine wiring, where a failure is a
// bug in the wiring code.
func (o *Outputs) MustRegister(dev Device, id int, mask uint32, shift int) {
	if err := o.Register(dev, id, mask, shift); err != nil {
		panic(err)
	}
}

func (o *Outputs) Len() int { return o.count }

// Clear drops every receiver.
func (o *Outputs) Clear() {
	clear(o.items[:o.count])
	o.count = 0
}

// Write delivers value to every receiver in registration order.
func (o *Outputs) Write(value uint32) {
	for i := 0; i < o.count; i++ {
		item := &o.items[i]
		var data, mask uint32
		if item.shift < 0 {
			data = value >> -item.shift
			mask = item.mask >> -item.shift
		} else {
			data = value << item.shift
			mask = item.mask << item.shift
		}
		item.dev.WriteSignal(item.id, data, mask)
	}
}
