// sound.go - Sound pacing for the scheduler

package vm

import "fmt"

// InitializeSound sizes the mix buffer for host buffers of samples stereo
// frames at rate Hz. The accumulation buffer holds two host buffers so a
// frame that overruns one is kept for the next.
func (s *Scheduler) InitializeSound(rate, samples int) {
	if rate <= 0 || samples <= 0 {
		panic(fmt.Sprintf("InitializeSound: invalid rate %d or buffer %d", rate, samples))
	}
	s.soundRate = rate
	s.soundSamples = samples
	s.mixBuf = make([]int32, samples*2*2)
	s.out = make([]int16, samples*2)
	s.bufferPtr = 0
	s.accumSamples = 0
	s.touched = 0
	s.timingDirty = true
}

// SetContextSound adds dev to the mix. Sources mix in the order added.
func (s *Scheduler) SetContextSound(dev SoundSource) {
	s.checkSealed("SetContextSound")
	s.checkOwner(dev)
	s.sounds = append(s.sounds, dev)
}

func (s *Scheduler) SoundRate() int { return s.soundRate }

// SoundBufferPos is the number of stereo frames mixed and not yet taken by
// CreateSound.
func (s *Scheduler) SoundBufferPos() int { return s.bufferPtr }

func (s *Scheduler) updateSound() {
	if s.soundSamples == 0 {
		return
	}
	s.accumSamples += s.updateSamples
	n := int(s.accumSamples >> 10)
	s.accumSamples -= uint64(n) << 10
	n -= s.touched
	s.touched = 0
	s.mixSound(n)
}

func (s *Scheduler) mixSound(n int) {
	if room := len(s.mixBuf)/2 - s.bufferPtr; n > room {
		n = room
	}
	if n <= 0 {
		return
	}
	buf := s.mixBuf[s.bufferPtr*2 : (s.bufferPtr+n)*2]
	clear(buf)
	for _, dev := range s.sounds {
		dev.Mix(buf, n)
	}
	s.bufferPtr += n
}

// TouchSound mixes up to the current clock inside the running scanline.
// Sound chips call it before a register write so the change lands on the
// right sample instead of at the end of the line.
func (s *Scheduler) TouchSound() {
	if !s.inDrive || s.soundSamples == 0 {
		return
	}
	vc := uint64(s.vclocks[s.curLine])
	if vc == 0 {
		return
	}
	passed := s.clock - s.lineStart
	if passed > vc {
		passed = vc
	}
	want := int((s.accumSamples+s.updateSamples*passed/vc)>>10) - s.touched
	if want > 0 {
		s.mixSound(want)
		s.touched += want
	}
}

// CreateSound returns one host buffer of interleaved stereo samples,
// driving extra frames first when the timeline has not produced enough.
// The second result is the number of extra frames driven. The returned
// slice is reused by the next call.
func (s *Scheduler) CreateSound() ([]int16, int) {
	if s.soundSamples == 0 {
		return nil, 0
	}
	frames := 0
	for s.bufferPtr < s.soundSamples {
		s.Drive()
		frames++
	}
	for i := range s.out {
		v := s.mixBuf[i]
		switch {
		case v > 0x7FFF:
			v = 0x7FFF
		case v < -0x8000:
			v = -0x8000
		}
		s.out[i] = int16(v)
	}
	if s.bufferPtr > s.soundSamples {
		copy(s.mixBuf, s.mixBuf[s.soundSamples*2:s.bufferPtr*2])
		s.bufferPtr -= s.soundSamples
	} else {
		s.bufferPtr = 0
	}
	return s.out, frames
}
