//go:build headless

package audio

type Player struct {
	started bool
	ring    *Ring
}

func NewPlayer(sampleRate int) (*Player, error) {
	return &Player{}, nil
}

func (p *Player) SetupPlayer(ring *Ring) {
	p.ring = ring
}

// Read drains the ring so a headless run paces like a real one.
func (p *Player) Read(buf []byte) (int, error) {
	if p.ring == nil {
		return len(buf), nil
	}
	return p.ring.Read(buf)
}

func (p *Player) Start() {
	p.started = true
}

func (p *Player) Stop() {
	p.started = false
}

func (p *Player) Close() {
	p.started = false
}

func (p *Player) IsStarted() bool {
	return p.started
}
