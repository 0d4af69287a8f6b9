package vm

import (
	"slices"
	"testing"
)

// tone adds a constant level to both channels and logs mix sizes.
type tone struct {
	Base
	level int32
	mixes []int
}

func newTone(m *Machine, level int32) *tone {
	d := &tone{level: level}
	m.Register(d)
	return d
}

func (d *tone) Mix(buf []int32, n int) {
	d.mixes = append(d.mixes, n)
	for i := 0; i < n*2; i++ {
		buf[i] += d.level
	}
}

func (d *tone) EventCallback(kind, err int) {
	d.TouchSound()
}

func TestSound_CreateSoundDrivesExtraFrames(t *testing.T) {
	m := NewMachine(Config{CPUClock: 6000, FramesPerSec: 60, LinesPerFrame: 10})
	src := newTone(m, 1000)
	s := m.Scheduler()
	s.InitializeSound(600, 5)
	s.SetContextSound(src)
	m.Initialize()

	buf, frames := s.CreateSound()
	if frames != 1 {
		t.Fatalf("drove %d extra frames, expected 1", frames)
	}
	if len(buf) != 10 {
		t.Fatalf("buffer holds %d samples, expected 10 (5 stereo frames)", len(buf))
	}
	for i, v := range buf {
		if v != 1000 {
			t.Fatalf("sample %d is %d, expected 1000", i, v)
		}
	}
	if s.SoundBufferPos() != 5 {
		t.Fatalf("%d frames carried over, expected 5", s.SoundBufferPos())
	}

	// The carried-over half fills the next buffer without driving.
	if _, frames = s.CreateSound(); frames != 0 {
		t.Fatalf("drove %d frames for a full buffer, expected 0", frames)
	}
	if s.SoundBufferPos() != 0 {
		t.Fatalf("buffer position %d after drain, expected 0", s.SoundBufferPos())
	}
}

func TestSound_MixClampsToInt16(t *testing.T) {
	m := NewMachine(Config{CPUClock: 6000, FramesPerSec: 60, LinesPerFrame: 10})
	loud := newTone(m, 30000)
	quiet := newTone(m, 10000)
	s := m.Scheduler()
	s.InitializeSound(600, 4)
	s.SetContextSound(loud)
	s.SetContextSound(quiet)
	m.Initialize()

	buf, _ := s.CreateSound()
	for i, v := range buf {
		if v != 0x7FFF {
			t.Fatalf("sample %d is %d, expected clamp to 32767", i, v)
		}
	}

	loud.level, quiet.level = -30000, -10000
	s.CreateSound()
	buf, _ = s.CreateSound()
	for i, v := range buf {
		if v != -0x8000 {
			t.Fatalf("sample %d is %d, expected clamp to -32768", i, v)
		}
	}
}

func TestSound_TouchSoundSplitsLine(t *testing.T) {
	m := NewMachine(Config{CPUClock: 6000, FramesPerSec: 60, LinesPerFrame: 10})
	src := newTone(m, 1)
	s := m.Scheduler()
	s.InitializeSound(6000, 200)
	s.SetContextSound(src)
	m.Initialize()

	src.RegisterEventByClock(0, 5, false)
	m.Drive()

	if len(src.mixes) < 2 || !slices.Equal(src.mixes[:2], []int{5, 5}) {
		t.Fatalf("first line mixed as %v, expected [5 5 ...]", src.mixes)
	}
	if s.SoundBufferPos() != 100 {
		t.Fatalf("%d frames mixed in one frame, expected 100", s.SoundBufferPos())
	}
}

func TestSound_NoSoundWithoutInitialize(t *testing.T) {
	m := NewMachine(Config{})
	s := m.Scheduler()
	m.Initialize()
	m.Drive()

	if buf, frames := s.CreateSound(); buf != nil || frames != 0 {
		t.Fatal("CreateSound produced output without InitializeSound")
	}
}
