//go:build !headless

// player_oto.go - oto v3 playback of scheduler sound buffers

/*
(c) 2024 - 2026 Zayn Otley
https://github.com/IntuitionAmiga/IntuitionEngine
License: GPLv3 or later
*/

package audio

import (
	"sync"
	"sync/atomic"

	"github.com/ebitengine/oto/v3"
)

type Player struct {
	ctx     *oto.Context
	player  *oto.Player
	ring    atomic.Pointer[Ring] // Atomic for lock-free Read()
	started bool
	mutex   sync.Mutex // Only for setup/control operations
}

// NewPlayer opens the host audio device for 16-bit stereo at sampleRate.
func NewPlayer(sampleRate int) (*Player, error) {
	op := &oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: 2,
		Format:       oto.FormatSignedInt16LE,
	}

	ctx, ready, err := oto.NewContext(op)
	if err != nil {
		return nil, err
	}
	<-ready

	return &Player{ctx: ctx}, nil
}

// SetupPlayer attaches the ring the emulation loop fills.
func (p *Player) SetupPlayer(ring *Ring) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	p.ring.Store(ring)
	p.player = p.ctx.NewPlayer(p)
}

func (p *Player) Read(buf []byte) (int, error) {
	ring := p.ring.Load()
	if ring == nil {
		clear(buf)
		return len(buf), nil
	}
	return ring.Read(buf)
}

func (p *Player) Start() {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if !p.started && p.player != nil {
		p.player.Play()
		p.started = true
	}
}

func (p *Player) Stop() {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.started && p.player != nil {
		p.player.Pause()
		p.started = false
	}
}

func (p *Player) Close() {
	p.Stop()
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.player != nil {
		p.player.Close()
		p.player = nil
	}
}

func (p *Player) IsStarted() bool {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.started
}
