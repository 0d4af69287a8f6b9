// membus.go - Data-space bus device backed by a bank table

/*
(c) 2024 - 2026 Zayn Otley
https://github.com/IntuitionAmiga/IntuitionEngine
License: GPLv3 or later
*/

/*
membus.go - Memory Bus

The memory bus is the one device a CPU talks to for data-space accesses.
Every address decodes through a bank table into either a RAM/ROM block
accessed directly, or a device that serves the granule as memory-mapped
IO. The bus charges the wait states configured for the slot on the
wait-state entry points.

Bank switching through the Set* methods stays legal after the machine is
sealed; it is how memory controllers implement paging at run time.
*/

package vm

// MemoryBus implements the data space of a machine.
type MemoryBus struct {
	Base
	banks *BankTable
}

// NewMemoryBus registers a bus covering size bytes in slots of 1<<bits.
func NewMemoryBus(m *Machine, size uint32, bits uint) *MemoryBus {
	bus := &MemoryBus{
		banks: NewBankTable(size, bits, m.Config().BankFill),
	}
	m.Register(bus)
	bus.SetName("Memory Bus")
	return bus
}

// Banks exposes the bank table for direct block access by CPU cores.
func (bus *MemoryBus) Banks() *BankTable { return bus.banks }

func (bus *MemoryBus) SetMemoryR(start, end uint32, mem []byte) error {
	return bus.banks.SetMemoryR(start, end, mem)
}

func (bus *MemoryBus) SetMemoryW(start, end uint32, mem []byte) error {
	return bus.banks.SetMemoryW(start, end, mem)
}

func (bus *MemoryBus) SetMemoryRW(start, end uint32, mem []byte) error {
	return bus.banks.SetMemoryRW(start, end, mem)
}

func (bus *MemoryBus) SetBank(start, end uint32, w, r []byte) error {
	return bus.banks.SetBank(start, end, w, r)
}

func (bus *MemoryBus) UnsetMemory(start, end uint32) error {
	return bus.banks.UnsetBank(start, end)
}

func (bus *MemoryBus) SetMappedIOR(start, end uint32, dev Device) error {
	return bus.banks.SetDevice(start, end, nil, dev)
}

func (bus *MemoryBus) SetMappedIOW(start, end uint32, dev Device) error {
	return bus.banks.SetDevice(start, end, dev, nil)
}

func (bus *MemoryBus) SetMappedIORW(start, end uint32, dev Device) error {
	return bus.banks.SetDevice(start, end, dev, dev)
}

func (bus *MemoryBus) SetWaitR(start, end uint32, wait int) error {
	return bus.banks.SetWaitR(start, end, wait)
}

func (bus *MemoryBus) SetWaitW(start, end uint32, wait int) error {
	return bus.banks.SetWaitW(start, end, wait)
}

func (bus *MemoryBus) SetWaitRW(start, end uint32, wait int) error {
	return bus.banks.SetWaitRW(start, end, wait)
}

func (bus *MemoryBus) Read8(sp Space, addr uint32) uint32 {
	t := bus.banks
	addr &= t.addrMask
	s := &t.rd[addr>>t.bits]
	if s.dev != nil {
		return s.dev.Read8(MMIO|sp&DMA, addr)
	}
	return uint32(s.mem[addr&(t.gran-1)])
}

func (bus *MemoryBus) Write8(sp Space, addr, data uint32) {
	t := bus.banks
	addr &= t.addrMask
	s := &t.wr[addr>>t.bits]
	if s.dev != nil {
		s.dev.Write8(MMIO|sp&DMA, addr, data)
		return
	}
	s.mem[addr&(t.gran-1)] = byte(data)
}

func (bus *MemoryBus) Read8W(sp Space, addr uint32) (uint32, int) {
	t := bus.banks
	return bus.Read8(sp, addr), t.rd[(addr&t.addrMask)>>t.bits].wait
}

func (bus *MemoryBus) Write8W(sp Space, addr, data uint32) int {
	t := bus.banks
	bus.Write8(sp, addr, data)
	return t.wr[(addr&t.addrMask)>>t.bits].wait
}
