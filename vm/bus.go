// bus.go - Memory, IO and MMIO dispatch with the default wide-access fallback

package vm

// Space selects the address space of a bus access. DMA may be OR'ed onto
// any space; devices that ignore it behave exactly as for CPU accesses.
type Space uint8

const (
	Data Space = iota
	IO
	MMIO

	DMA Space = 0x80
)

// Kind strips the DMA modifier.
func (sp Space) Kind() Space { return sp &^ DMA }

// IsDMA reports whether the access was issued by a DMA controller.
func (sp Space) IsDMA() bool { return sp&DMA != 0 }

// IsIO is true for port IO and memory-mapped IO. A device that only decodes
// ports serves MMIO through the same code path.
func (sp Space) IsIO() bool { return sp.Kind() != Data }

func (sp Space) String() string {
	var s string
	switch sp.Kind() {
	case Data:
		s = "data"
	case IO:
		s = "io"
	case MMIO:
		s = "mmio"
	default:
		s = "space?"
	}
	if sp.IsDMA() {
		s += "+dma"
	}
	return s
}

// Optional wide and wait-state entry points. A device implements one only
// when the byte composition below is wrong for it (big-endian registers,
// atomic wide latches, per-access wait tables).
type (
	Bus16 interface {
		Read16(sp Space, addr uint32) uint32
		Write16(sp Space, addr, data uint32)
	}
	Bus32 interface {
		Read32(sp Space, addr uint32) uint32
		Write32(sp Space, addr, data uint32)
	}
	WaitBus8 interface {
		Read8W(sp Space, addr uint32) (uint32, int)
		Write8W(sp Space, addr, data uint32) int
	}
	WaitBus16 interface {
		Read16W(sp Space, addr uint32) (uint32, int)
		Write16W(sp Space, addr, data uint32) int
	}
	WaitBus32 interface {
		Read32W(sp Space, addr uint32) (uint32, int)
		Write32W(sp Space, addr, data uint32) int
	}
)

func Read16(d Device, sp Space, addr uint32) uint32 {
	if b, ok := d.(Bus16); ok {
		return b.Read16(sp, addr)
	}
	return ComposeRead16(d, sp, addr)
}

func Write16(d Device, sp Space, addr, data uint32) {
	if b, ok := d.(Bus16); ok {
		b.Write16(sp, addr, data)
		return
	}
	ComposeWrite16(d, sp, addr, data)
}

func Read32(d Device, sp Space, addr uint32) uint32 {
	if b, ok := d.(Bus32); ok {
		return b.Read32(sp, addr)
	}
	return ComposeRead32(d, sp, addr)
}

func Write32(d Device, sp Space, addr, data uint32) {
	if b, ok := d.(Bus32); ok {
		b.Write32(sp, addr, data)
		return
	}
	ComposeWrite32(d, sp, addr, data)
}

func Read8W(d Device, sp Space, addr uint32) (uint32, int) {
	if b, ok := d.(WaitBus8); ok {
		return b.Read8W(sp, addr)
	}
	return d.Read8(sp, addr), 0
}

func Write8W(d Device, sp Space, addr, data uint32) int {
	if b, ok := d.(WaitBus8); ok {
		return b.Write8W(sp, addr, data)
	}
	d.Write8(sp, addr, data)
	return 0
}

func Read16W(d Device, sp Space, addr uint32) (uint32, int) {
	if b, ok := d.(WaitBus16); ok {
		return b.Read16W(sp, addr)
	}
	return ComposeRead16W(d, sp, addr)
}

func Write16W(d Device, sp Space, addr, data uint32) int {
	if b, ok := d.(WaitBus16); ok {
		return b.Write16W(sp, addr, data)
	}
	return ComposeWrite16W(d, sp, addr, data)
}

func Read32W(d Device, sp Space, addr uint32) (uint32, int) {
	if b, ok := d.(WaitBus32); ok {
		return b.Read32W(sp, addr)
	}
	return ComposeRead32W(d, sp, addr)
}

func Write32W(d Device, sp Space, addr, data uint32) int {
	if b, ok := d.(WaitBus32); ok {
		return b.Write32W(sp, addr, data)
	}
	return ComposeWrite32W(d, sp, addr, data)
}

// Default composition. Word = byte0 | byte1<<8, dword = word0 | word1<<16,
// each half dispatched through the device's own narrower entry point.
// Devices overriding a wide access for only some spaces call these for
// the rest.

func ComposeRead16(d Device, sp Space, addr uint32) uint32 {
	val := d.Read8(sp, addr)
	val |= d.Read8(sp, addr+1) << 8
	return val
}

func ComposeWrite16(d Device, sp Space, addr, data uint32) {
	d.Write8(sp, addr, data&0xFF)
	d.Write8(sp, addr+1, (data>>8)&0xFF)
}

func ComposeRead32(d Device, sp Space, addr uint32) uint32 {
	val := Read16(d, sp, addr)
	val |= Read16(d, sp, addr+2) << 16
	return val
}

func ComposeWrite32(d Device, sp Space, addr, data uint32) {
	Write16(d, sp, addr, data&0xFFFF)
	Write16(d, sp, addr+2, (data>>16)&0xFFFF)
}

func ComposeRead16W(d Device, sp Space, addr uint32) (uint32, int) {
	lo, waitL := Read8W(d, sp, addr)
	hi, waitH := Read8W(d, sp, addr+1)
	return lo | hi<<8, waitL + waitH
}

func ComposeWrite16W(d Device, sp Space, addr, data uint32) int {
	waitL := Write8W(d, sp, addr, data&0xFF)
	waitH := Write8W(d, sp, addr+1, (data>>8)&0xFF)
	return waitL + waitH
}

func ComposeRead32W(d Device, sp Space, addr uint32) (uint32, int) {
	lo, waitL := Read16W(d, sp, addr)
	hi, waitH := Read16W(d, sp, addr+2)
	return lo | hi<<16, waitL + waitH
}

func ComposeWrite32W(d Device, sp Space, addr, data uint32) int {
	waitL := Write16W(d, sp, addr, data&0xFFFF)
	waitH := Write16W(d, sp, addr+2, (data>>16)&0xFFFF)
	return waitL + waitH
}
