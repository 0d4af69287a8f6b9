// beep.go - 1-bit square wave beeper

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

const (
	SIG_BEEP_ON = iota
	SIG_BEEP_MUTE
)

const beepStateVersion = 1

// Beep is a square wave at a fixed frequency, gated by the ON and MUTE
// signals. The phase counter runs in 1/1024 sample units.
type Beep struct {
	vm.Base

	rate   int
	vol    int32
	diff   int
	count  int
	signal bool
	on     bool
	mute   bool
}

func NewBeep(m *vm.Machine) *Beep {
	b := &Beep{}
	m.Register(b)
	b.SetName("Beep")
	return b
}

// InitializeSound sets the host sample rate, tone frequency and output
// level.
func (b *Beep) InitializeSound(rate int, freq float64, volume int32) {
	if rate <= 0 {
		panic(fmt.Sprintf("beep: invalid sample rate %d", rate))
	}
	b.rate = rate
	b.vol = volume
	b.SetFrequency(freq)
}

func (b *Beep) SetFrequency(freq float64) {
	if !(freq > 0) {
		panic(fmt.Sprintf("beep: invalid frequency %v", freq))
	}
	b.diff = int(1024*float64(b.rate)/freq/2 + 0.5)
}

func (b *Beep) SetVolume(volume int32) {
	b.vol = volume
}

func (b *Beep) Reset() {
	b.on = false
	b.mute = false
	b.signal = false
	b.count = 0
}

func (b *Beep) WriteSignal(id int, data, mask uint32) {
	high := data&mask != 0
	switch id {
	case SIG_BEEP_ON:
		if b.on != high {
			b.TouchSound()
			b.on = high
		}
	case SIG_BEEP_MUTE:
		if b.mute != high {
			b.TouchSound()
			b.mute = high
		}
	}
}

func (b *Beep) ReadSignal(id int) uint32 {
	switch id {
	case SIG_BEEP_ON:
		if b.on {
			return 1
		}
	case SIG_BEEP_MUTE:
		if b.mute {
			return 1
		}
	}
	return 0
}

func (b *Beep) Mix(buf []int32, n int) {
	if !b.on || b.mute || b.diff == 0 {
		return
	}
	for i := 0; i < n; i++ {
		b.count -= 1024
		for b.count < 0 {
			b.count += b.diff
			b.signal = !b.signal
		}
		v := -b.vol
		if b.signal {
			v = b.vol
		}
		buf[i*2] += v
		buf[i*2+1] += v
	}
}

func (b *Beep) SaveState(w *vm.StateWriter) {
	w.Header(beepStateVersion, b.ID())
	w.PutBool(b.on)
	w.PutBool(b.mute)
	w.PutBool(b.signal)
	w.PutInt(b.count)
}

func (b *Beep) LoadState(r *vm.StateReader) bool {
	if !r.CheckHeader(beepStateVersion, b.ID()) {
		return false
	}
	on, mute, signal := r.Bool(), r.Bool(), r.Bool()
	count := r.Int()
	if r.Err() != nil || count < 0 {
		return false
	}
	b.on, b.mute, b.signal, b.count = on, mute, signal, count
	return true
}
