// scheduler.go - Discrete-event scheduler and frame driver

/*
 ██▓ ███▄    █ ▄▄▄█████▓ █    ██  ██▓▄▄▄█████▓ ██▓ ▒█████   ███▄    █    ▓█████  ███▄    █   ▄████  ██▓ ███▄    █ ▓█████
▓██▒ ██ ▀█   █ ▓  ██▒ ▓▒ ██  ▓██▒▓██▒▓  ██▒ ▓▒▓██▒▒██▒  ██▒ ██ ▀█   █    ▓█   ▀  ██ ▀█   █  ██▒ ▀█▒▓██▒ ██ ▀█   █ ▓█   ▀
▒██▒▓██  ▀█ ██▒▒ ▓██░ ▒░▓██  ▒██░▒██▒▒ ▓██░ ▒░▒██▒▒██░  ██▒▓██  ▀█ ██▒   ▒███   ▓██  ▀█ ██▒▒██░▄▄▄░▒██▒▓██  ▀█ ██▒▒███
░██░▓██▒  ▐▌██▒░ ▓██▓ ░ ▓▓█  ░██░░██░░ ▓██▓ ░ ░██░▒██   ██░▓██▒  ▐▌██▒   ▒▓█  ▄ ▓██▒  ▐▌██▒░▓█  ██▓░██░▓██▒  ▐▌██▒▒▓█  ▄
░██░▒██░   ▓██░  ▒██▒ ░ ▒▒█████▓ ░██░  ▒██▒ ░ ░██░░ ████▓▒░▒██░   ▓██░   ░▒████▒▒██░   ▓██░░▒▓███▀▒░██░▒██░   ▓██░░▒████▒
░▓  ░ ▒░   ▒ ▒   ▒ ░░   ░▒▓▒ ▒ ▒ ░▓    ▒ ░░   ░▓  ░ ▒░▒░▒░ ░ ▒░   ▒ ▒    ░░ ▒░ ░░ ▒░   ▒ ▒  ░▒   ▒ ░▓  ░ ▒░   ▒ ▒ ░░ ▒░ ░
 ▒ ░░ ░░   ░ ▒░    ░    ░░▒░ ░ ░  ▒ ░    ░     ▒ ░  ░ ▒ ▒░ ░ ░░   ░ ▒░    ░ ░  ░░ ░░   ░ ▒░  ░   ░  ▒ ░░ ░░   ░ ▒░ ░ ░  ░
 ▒ ░   ░   ░ ░   ░       ░░░ ░ ░  ▒ ░  ░       ▒ ░░ ░ ░ ▒     ░   ░ ░       ░      ░   ░ ░ ░ ░   ░  ▒ ░   ░   ░ ░    ░
 ░           ░             ░      ░            ░      ░ ░           ░       ░  ░         ░       ░  ░           ░    ░  ░

(c) 2024 - 2026 Zayn Otley
https://github.com/IntuitionAmiga/IntuitionEngine
Buy me a coffee: https://ko-fi.com/intuition/tip

License: GPLv3 or later
*/

/*
scheduler.go - Event Scheduler

The scheduler owns the virtual clock of a machine. It is itself a device,
always registered second, so every other device can resolve it lazily as
its event manager.

Core Features:

    One-shot and looping events keyed by absolute clock, ordered by expiry
    and then by insertion, cancellable through generation-checked handles.
    Frame and scanline subscriptions fired in device registration order.
    A primary CPU plus any number of sub-CPUs on their own clocks, driven in
    lock step from the primary's consumed clocks.
    Per-device clock domains for delays expressed in the device's own clocks.
    Sound pacing: every scanline mixes the samples that elapsed on the
    emulated timeline into a stereo accumulation buffer.

Technical Details:

    Loop periods and clock-domain ratios are kept in 1/1024 clock fixed
    point so fractional periods do not drift.
    A frame's clocks are spread over its scanlines with the remainder
    distributed evenly. A CPU that overshoots a scanline carries the
    overshoot into the next one; event time never runs ahead of the
    scanline boundary before the vline hooks have run.
    Callbacks see the clock set to the event's expiry; the err argument is
    how far the CPU had actually run past it.
*/

package vm

import (
	"container/heap"
	"fmt"
	"slices"
)

// EventID is a cancellation handle. The zero value is never a live event.
type EventID uint64

type event struct {
	owner  EventHandler
	kind   int
	expire uint64
	loop   uint64 // period in 1/1024 clocks, 0 for one-shot
	accum  uint64
	seq    uint64
	gen    uint32
	slot   int
	index  int
	active bool
}

// eventQueue is a min-heap on (expire, seq).
type eventQueue []*event

func (q eventQueue) Len() int { return len(q) }

func (q eventQueue) Less(i, j int) bool {
	if q[i].expire != q[j].expire {
		return q[i].expire < q[j].expire
	}
	return q[i].seq < q[j].seq
}

func (q eventQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *eventQueue) Push(x any) {
	e := x.(*event)
	e.index = len(*q)
	*q = append(*q, e)
}

func (q *eventQueue) Pop() any {
	old := *q
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*q = old[:n-1]
	return e
}

type cpuContext struct {
	dev    CPU
	hz     uint64
	update uint64 // sub-CPU clocks per primary clock, 1/1024 fixed point
	accum  uint64
}

const (
	maxCPUPower           = 8
	schedulerStateVersion = 1
)

// Scheduler drives a machine's timeline.
type Scheduler struct {
	Base

	cpus   []cpuContext
	cpuHz  uint64
	clocks map[ID]uint64
	power  uint

	clock      uint64
	lineRemain int64
	cpuAccum   uint64

	fps, nextFPS     float64
	lines, nextLines int
	timingDirty      bool
	vclocks          []int
	curLine          int
	lineStart        uint64
	inDrive          bool

	pool  []*event
	free  []int
	queue eventQueue
	seq   uint64

	frame []FrameHandler
	vline []VlineHandler

	sounds        []SoundSource
	soundRate     int
	soundSamples  int
	updateSamples uint64
	accumSamples  uint64
	touched       int
	mixBuf        []int32
	bufferPtr     int
	out           []int16
}

func newScheduler(cfg Config) *Scheduler {
	return &Scheduler{
		cpuHz:       cfg.CPUClock,
		clocks:      make(map[ID]uint64),
		nextFPS:     cfg.FramesPerSec,
		nextLines:   cfg.LinesPerFrame,
		timingDirty: true,
	}
}

func (s *Scheduler) checkOwner(dev Device) {
	if dev == nil {
		panic("scheduler: nil device")
	}
	if dev.base().machine != s.machine {
		panic(fmt.Sprintf("scheduler: device %q belongs to another machine", dev.base().name))
	}
}

func (s *Scheduler) checkSealed(op string) {
	if s.machine.Sealed() {
		panic(fmt.Sprintf("%s called after execution started", op))
	}
}

// Initialize applies the configured timing so devices initialised after
// the scheduler can query it.
func (s *Scheduler) Initialize() {
	s.applyTiming()
}

// Reset drops pending one-shot events and all partial clock and sound
// accumulation. Looping events keep running.
func (s *Scheduler) Reset() {
	for _, e := range s.pool {
		if e.active && e.loop == 0 {
			heap.Remove(&s.queue, e.index)
			s.release(e)
		}
	}
	s.lineRemain = 0
	s.cpuAccum = 0
	for i := range s.cpus {
		s.cpus[i].accum = 0
	}
	clear(s.mixBuf)
	s.bufferPtr = 0
	s.accumSamples = 0
	s.touched = 0
}

// SetContextCPU attaches a CPU. The first call names the primary CPU whose
// clock rate becomes the scheduler's; later calls add sub-CPUs.
func (s *Scheduler) SetContextCPU(cpu CPU, hz uint64) {
	s.checkSealed("SetContextCPU")
	s.checkOwner(cpu)
	if hz == 0 {
		panic(fmt.Sprintf("SetContextCPU: zero clock for %q", cpu.base().name))
	}
	s.cpus = append(s.cpus, cpuContext{dev: cpu, hz: hz})
	if len(s.cpus) == 1 {
		s.cpuHz = hz
	}
	s.clocks[cpu.base().id] = hz
	s.timingDirty = true
}

// SetCPUClock changes a CPU's frequency at run time. A new primary rate is
// used at once for microsecond conversions; line lengths and sub-CPU
// ratios are recomputed at the next frame.
func (s *Scheduler) SetCPUClock(cpu CPU, hz uint64) {
	for i := range s.cpus {
		if s.cpus[i].dev == cpu {
			s.cpus[i].hz = hz
			s.clocks[cpu.base().id] = hz
			if i == 0 {
				s.cpuHz = hz
			}
			s.timingDirty = true
			return
		}
	}
	panic(fmt.Sprintf("SetCPUClock: %q is not a CPU context", cpu.base().name))
}

// SetCPUPower runs every CPU 1<<n clocks per scheduler clock.
func (s *Scheduler) SetCPUPower(n uint) {
	if n > maxCPUPower {
		n = maxCPUPower
	}
	s.power = n
	s.cpuAccum = 0
}

// SetDeviceClock gives dev its own clock domain: delays it registers in
// clocks are counted at hz rather than at the primary CPU rate.
func (s *Scheduler) SetDeviceClock(dev Device, hz uint64) {
	s.checkOwner(dev)
	if hz == 0 {
		delete(s.clocks, dev.base().id)
		return
	}
	s.clocks[dev.base().id] = hz
}

func (s *Scheduler) CPUClock() uint64 { return s.cpuHz }

func (s *Scheduler) SetFramesPerSec(fps float64) {
	if !(fps > 0) {
		panic(fmt.Sprintf("SetFramesPerSec: invalid rate %v", fps))
	}
	if s.nextFPS != fps {
		s.nextFPS = fps
		s.timingDirty = true
	}
}

func (s *Scheduler) SetLinesPerFrame(lines int) {
	if lines <= 0 {
		panic(fmt.Sprintf("SetLinesPerFrame: invalid line count %d", lines))
	}
	if s.nextLines != lines {
		s.nextLines = lines
		s.timingDirty = true
	}
}

func (s *Scheduler) FramesPerSec() float64 { return s.fps }
func (s *Scheduler) LinesPerFrame() int    { return s.lines }

// CurLine is the scanline being driven, valid inside Drive.
func (s *Scheduler) CurLine() int { return s.curLine }

// LineClocks returns the clock length of scanline v in the current frame.
func (s *Scheduler) LineClocks(v int) int { return s.vclocks[v] }

func (s *Scheduler) applyTiming() {
	if !s.timingDirty {
		return
	}
	s.timingDirty = false
	s.fps, s.lines = s.nextFPS, s.nextLines

	sum := int(float64(s.cpuHz)/s.fps + 0.5)
	s.vclocks = slices.Grow(s.vclocks[:0], s.lines)[:s.lines]
	remain := sum
	for i := range s.vclocks {
		s.vclocks[i] = sum / s.lines
		remain -= s.vclocks[i]
	}
	for i := 0; i < remain; i++ {
		s.vclocks[int(float64(s.lines)*float64(i)/float64(remain))]++
	}
	for i := 1; i < len(s.cpus); i++ {
		s.cpus[i].update = uint64(1024.0*float64(s.cpus[i].hz)/float64(s.cpuHz) + 0.5)
	}
	if s.soundRate > 0 {
		s.updateSamples = uint64(1024.0*float64(s.soundRate)/s.fps/float64(s.lines) + 0.5)
	}
	for _, dev := range s.machine.devices {
		if t, ok := dev.(TimingUpdater); ok && dev.base().EventManager() == s {
			t.UpdateTiming(s.cpuHz, s.fps, s.lines)
		}
	}
}

// toFixed converts a delay in dev's clocks to primary clocks in 1/1024
// fixed point.
func (s *Scheduler) toFixed(dev Device, clocks uint64) uint64 {
	hz, ok := s.clocks[dev.base().id]
	if !ok || hz == s.cpuHz {
		return clocks << 10
	}
	return uint64(float64(clocks)*1024.0*float64(s.cpuHz)/float64(hz) + 0.5)
}

func (s *Scheduler) usecToFixed(usec float64) uint64 {
	if !(usec >= 0) {
		panic(fmt.Sprintf("register event: invalid delay %vus", usec))
	}
	return uint64(1024.0*float64(s.cpuHz)/1000000.0*usec + 0.5)
}

func (s *Scheduler) alloc() *event {
	if n := len(s.free); n > 0 {
		slot := s.free[n-1]
		s.free = s.free[:n-1]
		return s.pool[slot]
	}
	e := &event{slot: len(s.pool), index: -1}
	s.pool = append(s.pool, e)
	return e
}

func (s *Scheduler) release(e *event) {
	e.active = false
	e.owner = nil
	e.gen++
	e.index = -1
	s.free = append(s.free, e.slot)
}

func (s *Scheduler) handle(e *event) EventID {
	return EventID(uint64(e.slot+1)<<32 | uint64(e.gen))
}

func (s *Scheduler) lookup(id EventID) *event {
	slot := int(id>>32) - 1
	if slot < 0 || slot >= len(s.pool) {
		return nil
	}
	e := s.pool[slot]
	if !e.active || e.gen != uint32(id) {
		return nil
	}
	return e
}

func (s *Scheduler) insert(dev EventHandler, kind int, fixed uint64, loop bool) EventID {
	if loop && fixed == 0 {
		panic(fmt.Sprintf("register event: zero-period loop for %q", dev.base().name))
	}
	e := s.alloc()
	e.owner, e.kind, e.active = dev, kind, true
	if loop {
		e.loop = fixed
		e.accum = fixed
		step := e.accum >> 10
		e.accum -= step << 10
		e.expire = s.clock + step
	} else {
		e.loop, e.accum = 0, 0
		e.expire = s.clock + (fixed+512)>>10
	}
	s.seq++
	e.seq = s.seq
	heap.Push(&s.queue, e)
	return s.handle(e)
}

// RegisterEvent schedules dev.EventCallback(kind, err) usec microseconds
// from now, repeating every usec when loop is set.
func (s *Scheduler) RegisterEvent(dev EventHandler, kind int, usec float64, loop bool) EventID {
	s.checkOwner(dev)
	return s.insert(dev, kind, s.usecToFixed(usec), loop)
}

// RegisterEventByClock schedules a callback clocks cycles of dev's clock
// domain from now.
func (s *Scheduler) RegisterEventByClock(dev EventHandler, kind int, clocks uint64, loop bool) EventID {
	s.checkOwner(dev)
	return s.insert(dev, kind, s.toFixed(dev, clocks), loop)
}

// CancelEvent removes a pending event. Stale and zero handles are ignored.
func (s *Scheduler) CancelEvent(id EventID) {
	e := s.lookup(id)
	if e == nil {
		return
	}
	heap.Remove(&s.queue, e.index)
	s.release(e)
}

// EventRemainingClock returns the clocks until id fires, 0 if it is not
// pending.
func (s *Scheduler) EventRemainingClock(id EventID) uint64 {
	e := s.lookup(id)
	if e == nil || e.expire <= s.clock {
		return 0
	}
	return e.expire - s.clock
}

func (s *Scheduler) EventRemainingUsec(id EventID) float64 {
	return float64(s.EventRemainingClock(id)) * 1000000.0 / float64(s.cpuHz)
}

// Pending reports the number of scheduled events.
func (s *Scheduler) Pending() int { return len(s.queue) }

// RegisterFrameEvent subscribes dev to EventFrame (and EventPreFrame when
// implemented) once per Drive. Subscriptions are permanent.
func (s *Scheduler) RegisterFrameEvent(dev FrameHandler) {
	s.checkOwner(dev)
	s.frame = insertByID(s.frame, dev)
}

// RegisterVlineEvent subscribes dev to EventVline once per scanline.
func (s *Scheduler) RegisterVlineEvent(dev VlineHandler) {
	s.checkOwner(dev)
	s.vline = insertByID(s.vline, dev)
}

func insertByID[T Device](list []T, dev T) []T {
	id := dev.base().id
	pos := len(list)
	for i, d := range list {
		switch {
		case d.base().id == id:
			return list
		case d.base().id > id && pos == len(list):
			pos = i
		}
	}
	return slices.Insert(list, pos, dev)
}

// CurrentClock is the low 32 bits of the free-running clock.
func (s *Scheduler) CurrentClock() uint32 { return uint32(s.clock) }

func (s *Scheduler) CurrentClock64() uint64 { return s.clock }

// PassedClock returns the clocks elapsed since prev, a CurrentClock value,
// across 32-bit wraparound.
func (s *Scheduler) PassedClock(prev uint32) uint32 {
	return uint32(s.clock) - prev
}

func (s *Scheduler) PassedUsec(prev uint32) float64 {
	return float64(s.PassedClock(prev)) * 1000000.0 / float64(s.cpuHz)
}

// Drive runs exactly one video frame.
func (s *Scheduler) Drive() {
	for _, h := range s.frame {
		if p, ok := h.(PreFrameHandler); ok {
			p.EventPreFrame()
		}
	}
	s.applyTiming()

	for _, h := range s.frame {
		h.EventFrame()
	}
	s.inDrive = true
	for s.curLine = 0; s.curLine < s.lines; s.curLine++ {
		vc := s.vclocks[s.curLine]
		for _, h := range s.vline {
			h.EventVline(s.curLine, vc)
		}
		s.extend(uint64(vc))
		s.lineStart = s.clock
		s.run()
		s.updateSound()
	}
	s.inDrive = false
}

// RunClocks advances the timeline by exactly n clocks, running CPUs and
// firing events, without frame, scanline or sound processing.
func (s *Scheduler) RunClocks(n uint64) {
	s.applyTiming()
	s.extend(n)
	s.run()
}

// extend grants the CPUs n more clocks. Clocks a CPU already ran past the
// previous boundary count toward the grant and move the clock first.
func (s *Scheduler) extend(n uint64) {
	if s.lineRemain < 0 {
		s.updateEvent(min(uint64(-s.lineRemain), n))
	}
	s.lineRemain += int64(n)
}

func (s *Scheduler) run() {
	for s.lineRemain > 0 {
		delta := s.lineRemain
		if len(s.queue) > 0 {
			next := s.queue[0].expire
			if next <= s.clock {
				delta = 0
			} else if d := int64(next - s.clock); d < delta {
				delta = d
			}
		}
		done := delta
		if delta > 0 && len(s.cpus) > 0 {
			done = s.runCPUs(delta)
		}
		if done > s.lineRemain {
			s.updateEvent(uint64(s.lineRemain))
		} else {
			s.updateEvent(uint64(done))
		}
		s.lineRemain -= done
	}
}

func (s *Scheduler) runCPUs(delta int64) int64 {
	budget := int(delta << s.power)
	used := s.cpus[0].dev.Run(budget)
	if used <= 0 {
		used = budget
	}
	for i := 1; i < len(s.cpus); i++ {
		c := &s.cpus[i]
		c.accum += c.update * uint64(used)
		if sub := c.accum >> 10; sub > 0 {
			c.accum -= sub << 10
			c.dev.Run(int(sub))
		}
	}
	s.cpuAccum += uint64(used)
	done := s.cpuAccum >> s.power
	s.cpuAccum -= done << s.power
	return int64(done)
}

func (s *Scheduler) updateEvent(n uint64) {
	target := s.clock + n
	for len(s.queue) > 0 && s.queue[0].expire <= target {
		e := heap.Pop(&s.queue).(*event)
		expire, owner, kind := e.expire, e.owner, e.kind
		if e.loop != 0 {
			e.accum += e.loop
			step := e.accum >> 10
			e.accum -= step << 10
			e.expire += step
			s.seq++
			e.seq = s.seq
			heap.Push(&s.queue, e)
		} else {
			s.release(e)
		}
		s.clock = expire
		owner.EventCallback(kind, int(target-expire))
	}
	s.clock = target
}

// SaveState persists the clock, timing and every pending event with its
// owner's id so restored handles stay valid.
func (s *Scheduler) SaveState(w *StateWriter) {
	w.Header(schedulerStateVersion, s.id)
	w.PutUint64(s.clock)
	w.PutInt64(s.lineRemain)
	w.PutUint64(s.cpuAccum)
	w.PutUint32(uint32(s.power))
	w.PutInt(len(s.cpus))
	for _, c := range s.cpus {
		w.PutUint64(c.hz)
		w.PutUint64(c.update)
		w.PutUint64(c.accum)
	}
	w.PutUint64(s.cpuHz)
	w.PutFloat64(s.fps)
	w.PutFloat64(s.nextFPS)
	w.PutInt(s.lines)
	w.PutInt(s.nextLines)
	w.PutBool(s.timingDirty)
	w.PutInt(len(s.vclocks))
	for _, vc := range s.vclocks {
		w.PutInt(vc)
	}
	w.PutUint64(s.accumSamples)
	w.PutUint64(s.seq)
	w.PutInt(len(s.pool))
	for _, e := range s.pool {
		w.PutBool(e.active)
		w.PutUint32(e.gen)
		if !e.active {
			continue
		}
		w.PutInt32(int32(e.owner.base().id))
		w.PutInt(e.kind)
		w.PutUint64(e.expire)
		w.PutUint64(e.loop)
		w.PutUint64(e.accum)
		w.PutUint64(e.seq)
	}
	w.PutInt(len(s.frame))
	for _, h := range s.frame {
		w.PutInt32(int32(h.base().id))
	}
	w.PutInt(len(s.vline))
	for _, h := range s.vline {
		w.PutInt32(int32(h.base().id))
	}
}

// LoadState validates the whole blob before touching the live scheduler.
func (s *Scheduler) LoadState(r *StateReader) bool {
	if !r.CheckHeader(schedulerStateVersion, s.id) {
		return false
	}
	clock := r.Uint64()
	lineRemain := r.Int64()
	cpuAccum := r.Uint64()
	power := uint(r.Uint32())
	if r.Int() != len(s.cpus) || power > maxCPUPower {
		return false
	}
	cpus := slices.Clone(s.cpus)
	for i := range cpus {
		cpus[i].hz = r.Uint64()
		cpus[i].update = r.Uint64()
		cpus[i].accum = r.Uint64()
	}
	cpuHz := r.Uint64()
	fps := r.Float64()
	nextFPS := r.Float64()
	lines := r.Int()
	nextLines := r.Int()
	dirty := r.Bool()
	nv := r.Int()
	if r.Err() != nil || nv < 0 || nv > 1<<16 || !(nextFPS > 0) || nextLines <= 0 {
		return false
	}
	vclocks := make([]int, nv)
	for i := range vclocks {
		vclocks[i] = r.Int()
	}
	if !dirty && nv != lines {
		return false
	}
	accumSamples := r.Uint64()
	seq := r.Uint64()
	np := r.Int()
	if r.Err() != nil || np < 0 || np > 1<<20 {
		return false
	}
	pool := make([]*event, np)
	var free []int
	var queue eventQueue
	for i := range pool {
		e := &event{slot: i, index: -1}
		e.active = r.Bool()
		e.gen = r.Uint32()
		pool[i] = e
		if !e.active {
			free = append(free, i)
			continue
		}
		owner, ok := s.machine.Device(ID(r.Int32())).(EventHandler)
		if !ok {
			return false
		}
		e.owner = owner
		e.kind = r.Int()
		e.expire = r.Uint64()
		e.loop = r.Uint64()
		e.accum = r.Uint64()
		e.seq = r.Uint64()
		e.index = len(queue)
		queue = append(queue, e)
	}
	frame, ok := loadSubscribers[FrameHandler](r, s.machine)
	if !ok {
		return false
	}
	vline, ok := loadSubscribers[VlineHandler](r, s.machine)
	if !ok || r.Err() != nil {
		return false
	}

	heap.Init(&queue)
	s.clock, s.lineRemain, s.cpuAccum, s.power = clock, lineRemain, cpuAccum, power
	s.cpus, s.cpuHz = cpus, cpuHz
	for _, c := range cpus {
		s.clocks[c.dev.base().id] = c.hz
	}
	s.fps, s.nextFPS, s.lines, s.nextLines = fps, nextFPS, lines, nextLines
	s.timingDirty, s.vclocks = dirty, vclocks
	s.accumSamples, s.bufferPtr, s.touched = accumSamples, 0, 0
	s.seq, s.pool, s.free, s.queue = seq, pool, free, queue
	s.frame, s.vline = frame, vline
	return true
}

func loadSubscribers[T Device](r *StateReader, m *Machine) ([]T, bool) {
	n := r.Int()
	if r.Err() != nil || n < 0 || n > len(m.devices) {
		return nil, false
	}
	list := make([]T, 0, n)
	for i := 0; i < n; i++ {
		h, ok := m.Device(ID(r.Int32())).(T)
		if !ok {
			return nil, false
		}
		list = append(list, h)
	}
	return list, true
}

