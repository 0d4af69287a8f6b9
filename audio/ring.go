// ring.go - Sample ring between the emulation loop and the audio backend

package audio

import (
	"encoding/binary"
	"sync"
)

// Ring is a bounded FIFO of interleaved stereo int16 samples. The
// emulation goroutine pushes whole CreateSound buffers; the backend pulls
// bytes. An empty ring reads as silence.
type Ring struct {
	mu      sync.Mutex
	buf     []int16
	head    int // next sample to read
	n       int
	dropped uint64
	starved uint64
}

// NewRing returns a ring holding up to size samples.
func NewRing(size int) *Ring {
	if size <= 0 {
		size = 1
	}
	return &Ring{buf: make([]int16, size)}
}

// Push appends samples and returns how many fit. Samples that do not fit
// are dropped and counted.
func (r *Ring) Push(samples []int16) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	room := len(r.buf) - r.n
	accepted := min(room, len(samples))
	tail := (r.head + r.n) % len(r.buf)
	for i := 0; i < accepted; i++ {
		r.buf[tail] = samples[i]
		tail++
		if tail == len(r.buf) {
			tail = 0
		}
	}
	r.n += accepted
	r.dropped += uint64(len(samples) - accepted)
	return accepted
}

// Read fills p with little-endian samples. It never blocks: a short ring
// pads with zeros.
func (r *Ring) Read(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	want := len(p) / 2
	have := min(want, r.n)
	for i := 0; i < have; i++ {
		binary.LittleEndian.PutUint16(p[i*2:], uint16(r.buf[r.head]))
		r.head++
		if r.head == len(r.buf) {
			r.head = 0
		}
	}
	r.n -= have
	if have < want {
		r.starved += uint64(want - have)
	}
	clear(p[have*2:])
	return len(p), nil
}

// Len is the number of buffered samples.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.n
}

// Stats returns the samples dropped on overflow and padded on underrun.
func (r *Ring) Stats() (dropped, starved uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped, r.starved
}
