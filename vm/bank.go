// bank.go - Fixed-granularity bank table for O(1) address decode

package vm

import (
	"errors"
	"fmt"
)

var (
	ErrBankRange = errors.New("bank range outside address space")
	ErrBankAlign = errors.New("bank range not aligned to slot granularity")
	ErrBankShort = errors.New("backing block shorter than bank range")
)

// bankSlot is what one granule of address space resolves to. mem is never
// nil: unmapped slots point at the table's dummy blocks. When dev is set
// the slot is memory-mapped IO and mem is the dummy.
type bankSlot struct {
	mem  []byte
	dev  Device
	wait int
}

// BankTable maps an address space onto backing blocks in slots of
// 1<<bits bytes. Reconfiguring a range only rewrites slot entries.
type BankTable struct {
	bits     uint
	gran     uint32
	size     uint32
	addrMask uint32
	rd       []bankSlot
	wr       []bankSlot
	rdummy   []byte
	wdummy   []byte
}

// NewBankTable creates a table for a power-of-two address space of size
// bytes, with every slot unmapped. Unmapped reads return fill.
func NewBankTable(size uint32, bits uint, fill byte) *BankTable {
	if size == 0 || size&(size-1) != 0 {
		panic(fmt.Sprintf("bank table size $%X is not a power of two", size))
	}
	if bits >= 32 || uint32(1)<<bits > size {
		panic(fmt.Sprintf("bank granularity 1<<%d does not fit size $%X", bits, size))
	}
	gran := uint32(1) << bits
	t := &BankTable{
		bits:     bits,
		gran:     gran,
		size:     size,
		addrMask: size - 1,
		rd:       make([]bankSlot, size>>bits),
		wr:       make([]bankSlot, size>>bits),
		rdummy:   make([]byte, gran),
		wdummy:   make([]byte, gran),
	}
	for i := range t.rdummy {
		t.rdummy[i] = fill
	}
	for i := range t.rd {
		t.rd[i].mem = t.rdummy
		t.wr[i].mem = t.wdummy
	}
	return t
}

func (t *BankTable) Size() uint32        { return t.size }
func (t *BankTable) Granularity() uint32 { return t.gran }
func (t *BankTable) Slots() int          { return len(t.rd) }

// Decode splits an address into slot index and offset within the slot.
// Addresses wrap at the table size.
func (t *BankTable) Decode(addr uint32) (slot, offset uint32) {
	addr &= t.addrMask
	return addr >> t.bits, addr & (t.gran - 1)
}

func (t *BankTable) slotRange(start, end uint32) (sb, eb uint32, err error) {
	if end < start || end >= t.size {
		return 0, 0, fmt.Errorf("$%X-$%X: %w", start, end, ErrBankRange)
	}
	if start&(t.gran-1) != 0 || (end+1)&(t.gran-1) != 0 {
		return 0, 0, fmt.Errorf("$%X-$%X: %w", start, end, ErrBankAlign)
	}
	return start >> t.bits, end >> t.bits, nil
}

// checkMem validates a range and its backing block without touching the
// table.
func (t *BankTable) checkMem(start, end uint32, mem []byte) (sb, eb uint32, err error) {
	sb, eb, err = t.slotRange(start, end)
	if err != nil {
		return 0, 0, err
	}
	if mem != nil && uint32(len(mem)) < end-start+1 {
		return 0, 0, fmt.Errorf("$%X-$%X needs $%X bytes, have $%X: %w", start, end, end-start+1, len(mem), ErrBankShort)
	}
	return sb, eb, nil
}

func (t *BankTable) fillMem(slots []bankSlot, sb, eb uint32, mem, dummy []byte) {
	for i := sb; i <= eb; i++ {
		if mem == nil {
			slots[i].mem = dummy
		} else {
			off := t.gran * (i - sb)
			slots[i].mem = mem[off : off+t.gran : off+t.gran]
		}
		slots[i].dev = nil
	}
}

func (t *BankTable) setMem(slots []bankSlot, start, end uint32, mem, dummy []byte) error {
	sb, eb, err := t.checkMem(start, end, mem)
	if err != nil {
		return err
	}
	t.fillMem(slots, sb, eb, mem, dummy)
	return nil
}

func (t *BankTable) setWait(slots []bankSlot, start, end uint32, wait int) error {
	sb, eb, err := t.slotRange(start, end)
	if err != nil {
		return err
	}
	for i := sb; i <= eb; i++ {
		slots[i].wait = wait
	}
	return nil
}

// SetBank points [start, end] at w for writes and r for reads. A nil block
// leaves that direction unmapped. On error the table is unchanged.
func (t *BankTable) SetBank(start, end uint32, w, r []byte) error {
	sb, eb, err := t.checkMem(start, end, w)
	if err != nil {
		return err
	}
	if _, _, err := t.checkMem(start, end, r); err != nil {
		return err
	}
	t.fillMem(t.wr, sb, eb, w, t.wdummy)
	t.fillMem(t.rd, sb, eb, r, t.rdummy)
	return nil
}

func (t *BankTable) SetMemoryR(start, end uint32, mem []byte) error {
	return t.setMem(t.rd, start, end, mem, t.rdummy)
}

func (t *BankTable) SetMemoryW(start, end uint32, mem []byte) error {
	return t.setMem(t.wr, start, end, mem, t.wdummy)
}

func (t *BankTable) SetMemoryRW(start, end uint32, mem []byte) error {
	return t.SetBank(start, end, mem, mem)
}

// UnsetBank returns [start, end] to the dummy blocks in both directions.
func (t *BankTable) UnsetBank(start, end uint32) error {
	return t.SetBank(start, end, nil, nil)
}

// SetDevice routes [start, end] to devices as memory-mapped IO. A nil
// device leaves that direction untouched. On error the table is unchanged.
func (t *BankTable) SetDevice(start, end uint32, w, r Device) error {
	sb, eb, err := t.slotRange(start, end)
	if err != nil {
		return err
	}
	for i := sb; i <= eb; i++ {
		if w != nil {
			t.wr[i].mem, t.wr[i].dev = t.wdummy, w
		}
		if r != nil {
			t.rd[i].mem, t.rd[i].dev = t.rdummy, r
		}
	}
	return nil
}

func (t *BankTable) SetWaitR(start, end uint32, wait int) error {
	return t.setWait(t.rd, start, end, wait)
}

func (t *BankTable) SetWaitW(start, end uint32, wait int) error {
	return t.setWait(t.wr, start, end, wait)
}

func (t *BankTable) SetWaitRW(start, end uint32, wait int) error {
	sb, eb, err := t.slotRange(start, end)
	if err != nil {
		return err
	}
	for i := sb; i <= eb; i++ {
		t.rd[i].wait, t.wr[i].wait = wait, wait
	}
	return nil
}

// ReadBlock returns the slot-sized read block addr decodes to.
func (t *BankTable) ReadBlock(addr uint32) []byte {
	return t.rd[(addr&t.addrMask)>>t.bits].mem
}

// WriteBlock returns the slot-sized write block addr decodes to.
func (t *BankTable) WriteBlock(addr uint32) []byte {
	return t.wr[(addr&t.addrMask)>>t.bits].mem
}

func (t *BankTable) ReadDevice(addr uint32) Device {
	return t.rd[(addr&t.addrMask)>>t.bits].dev
}

func (t *BankTable) WriteDevice(addr uint32) Device {
	return t.wr[(addr&t.addrMask)>>t.bits].dev
}

// IsUnmapped reports whether a read of addr hits the dummy block.
func (t *BankTable) IsUnmapped(addr uint32) bool {
	s := &t.rd[(addr&t.addrMask)>>t.bits]
	return s.dev == nil && &s.mem[0] == &t.rdummy[0]
}

// Read8 reads backing memory only; memory-mapped slots return the fill.
func (t *BankTable) Read8(addr uint32) byte {
	addr &= t.addrMask
	return t.rd[addr>>t.bits].mem[addr&(t.gran-1)]
}

func (t *BankTable) Write8(addr uint32, v byte) {
	addr &= t.addrMask
	t.wr[addr>>t.bits].mem[addr&(t.gran-1)] = v
}
