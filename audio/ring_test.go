package audio

import (
	"encoding/binary"
	"sync"
	"testing"
)

func TestRing_PushRead(t *testing.T) {
	r := NewRing(4)
	if n := r.Push([]int16{1, -2, 3}); n != 3 {
		t.Fatalf("accepted %d samples, expected 3", n)
	}
	if n := r.Push([]int16{4, 5}); n != 1 {
		t.Fatalf("accepted %d samples into one free slot", n)
	}

	p := make([]byte, 6)
	r.Read(p)
	want := []int16{1, -2, 3}
	for i, w := range want {
		if got := int16(binary.LittleEndian.Uint16(p[i*2:])); got != w {
			t.Fatalf("sample %d: got %d, expected %d", i, got, w)
		}
	}

	// Wraps around the end of the buffer.
	r.Push([]int16{6, 7})
	r.Read(p)
	for i, w := range []int16{4, 6, 7} {
		if got := int16(binary.LittleEndian.Uint16(p[i*2:])); got != w {
			t.Fatalf("wrapped sample %d: got %d, expected %d", i, got, w)
		}
	}
	if dropped, _ := r.Stats(); dropped != 1 {
		t.Fatalf("dropped %d, expected 1", dropped)
	}
}

func TestRing_UnderrunReadsSilence(t *testing.T) {
	r := NewRing(8)
	r.Push([]int16{0x1234})

	p := []byte{0xAA, 0xAA, 0xAA, 0xAA, 0xAA, 0xAA}
	if n, err := r.Read(p); n != len(p) || err != nil {
		t.Fatalf("Read returned (%d, %v)", n, err)
	}
	if p[0] != 0x34 || p[1] != 0x12 {
		t.Fatalf("first sample bytes %02X %02X", p[0], p[1])
	}
	for i := 2; i < len(p); i++ {
		if p[i] != 0 {
			t.Fatalf("byte %d is %02X, expected silence", i, p[i])
		}
	}
	if _, starved := r.Stats(); starved != 2 {
		t.Fatalf("starved %d samples, expected 2", starved)
	}
	if r.Len() != 0 {
		t.Fatalf("ring holds %d samples after drain", r.Len())
	}
}

func TestRing_ConcurrentProducerConsumer(t *testing.T) {
	r := NewRing(256)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		buf := make([]int16, 64)
		for i := 0; i < 200; i++ {
			r.Push(buf)
		}
	}()
	go func() {
		defer wg.Done()
		p := make([]byte, 100)
		for i := 0; i < 200; i++ {
			r.Read(p)
		}
	}()
	wg.Wait()

	dropped, _ := r.Stats()
	if total := uint64(200*64) - dropped; total < uint64(r.Len()) {
		t.Fatalf("ring holds %d samples but only %d were accepted", r.Len(), total)
	}
}
