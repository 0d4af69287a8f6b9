// keylatch.go - Host key latch with a daisy chain interrupt

package devices

import "github.com/intuitionamiga/chipbus/vm"

// SIG_KEY_DATA latches a key code (data & mask).
const SIG_KEY_DATA = 0

// Port offsets decoded on the low address bit.
const (
	KEY_PORT_DATA   = 0
	KEY_PORT_STATUS = 1
)

const keyLatchStateVersion = 1

// KeyLatch holds the last key written to it and requests an interrupt on
// channel 0 until the CPU reads the data port. Ready mirrors the status
// bit as a signal.
type KeyLatch struct {
	vm.Base
	vm.DaisyNode
	Ready vm.Outputs

	key   uint32
	ready bool
}

func NewKeyLatch(m *vm.Machine) *KeyLatch {
	k := &KeyLatch{}
	k.InitDaisy(1)
	m.Register(k)
	k.SetName("Key Latch")
	return k
}

func (k *KeyLatch) Reset() {
	k.key = 0
	k.setReady(false)
	k.ResetDaisy()
}

func (k *KeyLatch) WriteSignal(id int, data, mask uint32) {
	if id != SIG_KEY_DATA {
		return
	}
	k.key = data & mask
	k.setReady(true)
	k.Request(0)
}

func (k *KeyLatch) ReadSignal(id int) uint32 {
	if id == SIG_KEY_DATA {
		return k.key
	}
	return 0
}

func (k *KeyLatch) setReady(ready bool) {
	if k.ready == ready {
		return
	}
	k.ready = ready
	k.driveReady()
}

func (k *KeyLatch) driveReady() {
	if k.ready {
		k.Ready.Write(1)
	} else {
		k.Ready.Write(0)
	}
}

// Read8 serves the data port (reading clears ready) and the status port
// (bit 0 = ready). DMA reads do not acknowledge the key.
func (k *KeyLatch) Read8(sp vm.Space, addr uint32) uint32 {
	switch addr & 1 {
	case KEY_PORT_DATA:
		if !sp.IsDMA() {
			k.setReady(false)
			k.Cancel(0)
		}
		return k.key
	default:
		if k.ready {
			return 1
		}
		return 0
	}
}

func (k *KeyLatch) SaveState(w *vm.StateWriter) {
	w.Header(keyLatchStateVersion, k.ID())
	w.PutUint32(k.key)
	w.PutBool(k.ready)
	k.SaveDaisy(w)
}

func (k *KeyLatch) LoadState(r *vm.StateReader) bool {
	if !r.CheckHeader(keyLatchStateVersion, k.ID()) {
		return false
	}
	k.key = r.Uint32()
	k.ready = r.Bool()
	k.LoadDaisy(r)
	if r.Err() != nil {
		return false
	}
	// Receivers and the CPU line see the restored levels.
	k.driveReady()
	k.UpdateIntr()
	return true
}
