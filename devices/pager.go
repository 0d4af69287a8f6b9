// pager.go - Paged RAM controller with a bank select port

/*
(c) 2024 - 2026 Zayn Otley
https://github.com/IntuitionAmiga/IntuitionEngine
License: GPLv3 or later
*/

package devices

import (
	"fmt"

	"github.com/intuitionamiga/chipbus/vm"
)

const pagerStateVersion = 1

// PagerLayout places a pager's RAM in the data space. The fixed area is
// always mapped; the window shows one of Pages equally sized pages.
type PagerLayout struct {
	FixedStart, FixedEnd   uint32
	WindowStart, WindowEnd uint32
	Pages                  int
}

// Pager owns a machine's RAM and switches its window through the memory
// bus. Any port it is mapped on reads and writes the bank register.
type Pager struct {
	vm.Base

	bus    *vm.MemoryBus
	layout PagerLayout
	ram    []byte
	fixed  uint32
	window uint32
	bank   uint32
}

// NewPager allocates the RAM, maps the fixed area and page 0, and
// registers the pager. Layout errors are returned from the bus.
func NewPager(m *vm.Machine, bus *vm.MemoryBus, layout PagerLayout) (*Pager, error) {
	if layout.Pages < 1 {
		return nil, fmt.Errorf("pager needs at least one page, have %d", layout.Pages)
	}
	if layout.FixedEnd < layout.FixedStart || layout.WindowEnd < layout.WindowStart {
		return nil, fmt.Errorf("pager layout %+v: %w", layout, vm.ErrBankRange)
	}
	p := &Pager{
		bus:    bus,
		layout: layout,
		fixed:  layout.FixedEnd - layout.FixedStart + 1,
		window: layout.WindowEnd - layout.WindowStart + 1,
	}
	p.ram = make([]byte, int(p.fixed)+int(p.window)*layout.Pages)

	if err := bus.SetMemoryRW(layout.FixedStart, layout.FixedEnd, p.ram[:p.fixed]); err != nil {
		return nil, fmt.Errorf("mapping fixed ram: %w", err)
	}
	if err := bus.SetMemoryRW(layout.WindowStart, layout.WindowEnd, p.Page(0)); err != nil {
		return nil, fmt.Errorf("mapping page window: %w", err)
	}
	m.Register(p)
	p.SetName("Pager")
	return p, nil
}

// RAM returns the whole backing store: the fixed area, then every page.
func (p *Pager) RAM() []byte { return p.ram }

// Fixed returns the always-mapped area.
func (p *Pager) Fixed() []byte { return p.ram[:p.fixed] }

func (p *Pager) Page(n int) []byte {
	off := p.fixed + uint32(n)*p.window
	return p.ram[off : off+p.window]
}

func (p *Pager) Bank() uint32 { return p.bank }

func (p *Pager) Reset() {
	p.bank = 0
	p.updateBank()
}

// updateBank maps the selected page into the window. The layout was
// checked by NewPager, so an error here is a wiring bug.
func (p *Pager) updateBank() {
	if err := p.bus.SetMemoryRW(p.layout.WindowStart, p.layout.WindowEnd, p.Page(int(p.bank))); err != nil {
		panic(fmt.Sprintf("pager: %v", err))
	}
}

func (p *Pager) Write8(sp vm.Space, addr, data uint32) {
	if !sp.IsIO() {
		return
	}
	bank := data % uint32(p.layout.Pages)
	if bank != p.bank {
		p.bank = bank
		p.updateBank()
		p.DebugLog("pager: bank %d\n", bank)
	}
}

func (p *Pager) Read8(sp vm.Space, addr uint32) uint32 {
	return p.bank
}

func (p *Pager) SaveState(w *vm.StateWriter) {
	w.Header(pagerStateVersion, p.ID())
	w.PutUint32(p.bank)
	w.PutBytes(p.ram)
}

// LoadState restores RAM in place so blocks the bank table already points
// at stay valid, then remaps the window from the restored register.
func (p *Pager) LoadState(r *vm.StateReader) bool {
	if !r.CheckHeader(pagerStateVersion, p.ID()) {
		return false
	}
	bank := r.Uint32()
	ram := make([]byte, len(p.ram))
	r.Bytes(ram)
	if r.Err() != nil || bank >= uint32(p.layout.Pages) {
		return false
	}
	copy(p.ram, ram)
	p.bank = bank
	p.updateBank()
	return true
}
