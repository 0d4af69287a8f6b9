// iobus.go - Port IO bus device

package vm

import "fmt"

type ioPort struct {
	dev   Device
	addr  uint32
	wait  int
	value uint32
	fixed bool
}

// IOBus decodes port addresses for a machine. Each port forwards to one
// device, optionally under an alias address, and can carry a wait count
// or a constant read value. Ports decode on the low bits only; the high
// bits of the incoming address are passed through to the target.
type IOBus struct {
	Base
	mask uint32
	rd   []ioPort
	wr   []ioPort
}

// NewIOBus registers a bus with size decoded ports (a power of two).
// Unmapped ports hit the machine's placeholder device.
func NewIOBus(m *Machine, size uint32) *IOBus {
	if size == 0 || size&(size-1) != 0 {
		panic(fmt.Sprintf("io bus size $%X is not a power of two", size))
	}
	bus := &IOBus{
		mask: size - 1,
		rd:   make([]ioPort, size),
		wr:   make([]ioPort, size),
	}
	m.Register(bus)
	bus.SetName("IO Bus")
	placeholder := m.Device(0)
	for i := range bus.rd {
		bus.rd[i] = ioPort{dev: placeholder, addr: uint32(i)}
		bus.wr[i] = ioPort{dev: placeholder, addr: uint32(i)}
	}
	return bus
}

func (bus *IOBus) checkSealed(op string, addr uint32) {
	if bus.machine.Sealed() {
		panic(fmt.Sprintf("%s called after execution started (port $%04X)", op, addr))
	}
}

func (bus *IOBus) port(table []ioPort, op string, addr uint32) *ioPort {
	bus.checkSealed(op, addr)
	if addr > bus.mask {
		panic(fmt.Sprintf("%s: port $%04X outside io space $%04X", op, addr, bus.mask))
	}
	return &table[addr]
}

func (bus *IOBus) SetIOMapSingleR(addr uint32, dev Device) {
	p := bus.port(bus.rd, "SetIOMapSingleR", addr)
	p.dev, p.addr, p.fixed = dev, addr, false
}

func (bus *IOBus) SetIOMapSingleW(addr uint32, dev Device) {
	p := bus.port(bus.wr, "SetIOMapSingleW", addr)
	p.dev, p.addr = dev, addr
}

func (bus *IOBus) SetIOMapSingleRW(addr uint32, dev Device) {
	bus.SetIOMapSingleR(addr, dev)
	bus.SetIOMapSingleW(addr, dev)
}

// SetIOMapAliasR forwards reads of addr to dev as if alias had been read.
func (bus *IOBus) SetIOMapAliasR(addr uint32, dev Device, alias uint32) {
	p := bus.port(bus.rd, "SetIOMapAliasR", addr)
	p.dev, p.addr, p.fixed = dev, alias, false
}

func (bus *IOBus) SetIOMapAliasW(addr uint32, dev Device, alias uint32) {
	p := bus.port(bus.wr, "SetIOMapAliasW", addr)
	p.dev, p.addr = dev, alias
}

func (bus *IOBus) SetIOMapAliasRW(addr uint32, dev Device, alias uint32) {
	bus.SetIOMapAliasR(addr, dev, alias)
	bus.SetIOMapAliasW(addr, dev, alias)
}

func (bus *IOBus) SetIOMapRangeR(start, end uint32, dev Device) {
	for a := start; a <= end; a++ {
		bus.SetIOMapSingleR(a, dev)
	}
}

func (bus *IOBus) SetIOMapRangeW(start, end uint32, dev Device) {
	for a := start; a <= end; a++ {
		bus.SetIOMapSingleW(a, dev)
	}
}

func (bus *IOBus) SetIOMapRangeRW(start, end uint32, dev Device) {
	bus.SetIOMapRangeR(start, end, dev)
	bus.SetIOMapRangeW(start, end, dev)
}

// SetIOValueSingleR makes reads of addr return value without touching
// any device, for jumper and strap ports.
func (bus *IOBus) SetIOValueSingleR(addr uint32, value uint32) {
	p := bus.port(bus.rd, "SetIOValueSingleR", addr)
	p.value, p.fixed = value, true
}

func (bus *IOBus) SetIOValueRangeR(start, end uint32, value uint32) {
	for a := start; a <= end; a++ {
		bus.SetIOValueSingleR(a, value)
	}
}

func (bus *IOBus) SetIOWaitSingleR(addr uint32, wait int) {
	bus.port(bus.rd, "SetIOWaitSingleR", addr).wait = wait
}

func (bus *IOBus) SetIOWaitSingleW(addr uint32, wait int) {
	bus.port(bus.wr, "SetIOWaitSingleW", addr).wait = wait
}

func (bus *IOBus) SetIOWaitSingleRW(addr uint32, wait int) {
	bus.SetIOWaitSingleR(addr, wait)
	bus.SetIOWaitSingleW(addr, wait)
}

func (bus *IOBus) SetIOWaitRangeR(start, end uint32, wait int) {
	for a := start; a <= end; a++ {
		bus.SetIOWaitSingleR(a, wait)
	}
}

func (bus *IOBus) SetIOWaitRangeW(start, end uint32, wait int) {
	for a := start; a <= end; a++ {
		bus.SetIOWaitSingleW(a, wait)
	}
}

func (bus *IOBus) SetIOWaitRangeRW(start, end uint32, wait int) {
	bus.SetIOWaitRangeR(start, end, wait)
	bus.SetIOWaitRangeW(start, end, wait)
}

func (bus *IOBus) Read8W(sp Space, addr uint32) (uint32, int) {
	p := &bus.rd[addr&bus.mask]
	if p.fixed {
		return p.value, p.wait
	}
	return p.dev.Read8(IO|sp&DMA, addr&^bus.mask|p.addr), p.wait
}

func (bus *IOBus) Write8W(sp Space, addr, data uint32) int {
	p := &bus.wr[addr&bus.mask]
	p.dev.Write8(IO|sp&DMA, addr&^bus.mask|p.addr, data)
	return p.wait
}

func (bus *IOBus) Read8(sp Space, addr uint32) uint32 {
	v, _ := bus.Read8W(sp, addr)
	return v
}

func (bus *IOBus) Write8(sp Space, addr, data uint32) {
	bus.Write8W(sp, addr, data)
}
