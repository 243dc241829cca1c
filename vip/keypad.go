package vip

import (
	"strings"
	"sync/atomic"
)

// keyNames maps keyboard names to hex keys. The left-hand block of a
// QWERTY keyboard stands in for the COSMAC VIP's 4x4 keypad:
//
//	1 2 3 4      1 2 3 C
//	q w e r  ->  4 5 6 D
//	a s d f      7 8 9 E
//	z x c v      A 0 B F
var keyNames = map[string]byte{
	"1": 0x1, "2": 0x2, "3": 0x3, "4": 0xc,
	"q": 0x4, "w": 0x5, "e": 0x6, "r": 0xd,
	"a": 0x7, "s": 0x8, "d": 0x9, "f": 0xe,
	"z": 0xa, "x": 0x0, "c": 0xb, "v": 0xf,
}

// KeyFor returns the hex key bound to the named keyboard key.
func KeyFor(name string) (key byte, ok bool) {
	key, ok = keyNames[strings.ToLower(name)]
	return
}

// Keypad holds the up/down state of the 16 hex keys. It implements
// chip8.Keypad.
//
// In shared mode, KeyDown and friends update the state immediately and the
// interpreter observes it whenever it next looks. Otherwise events are
// queued and only applied when the interpreter goroutine calls Poll, so key
// state never changes in the middle of an instruction.
type Keypad struct {
	keys   [16]atomic.Bool
	shared bool
	events chan keyEvent
	ready  chan struct{}

	// Newest state of keys whose events did not fit in the queue, applied
	// by Poll after the queue is drained. Bit n of overflow marks key n.
	latest   [16]atomic.Bool
	overflow atomic.Uint32

	held *keyEvent // release deferred to the next Poll
}

type keyEvent struct {
	key  byte
	down bool
}

const keyQueueLen = 64

// NewKeypad returns a Keypad with all keys up.
func NewKeypad(shared bool) *Keypad {
	k := &Keypad{
		shared: shared,
		ready:  make(chan struct{}, 1),
	}
	if !shared {
		k.events = make(chan keyEvent, keyQueueLen)
	}
	return k
}

// KeyDown presses the hex key bound to name. Unmapped names are ignored.
func (k *Keypad) KeyDown(name string) {
	if key, ok := KeyFor(name); ok {
		k.set(key, true)
	}
}

// KeyUp releases the hex key bound to name. Unmapped names are ignored.
func (k *Keypad) KeyUp(name string) {
	if key, ok := KeyFor(name); ok {
		k.set(key, false)
	}
}

func (k *Keypad) Press(key byte) { k.set(key, true) }
func (k *Keypad) Release(key byte) { k.set(key, false) }

func (k *Keypad) set(key byte, down bool) {
	key &= 0xf
	bit := uint32(1) << key
	switch {
	case k.shared:
		k.keys[key].Store(down)
	case k.overflow.Load()&bit != 0:
		// Later events for an overflowed key must not be queued behind it.
		k.latest[key].Store(down)
		k.overflow.Or(bit)
	default:
		select {
		case k.events <- keyEvent{key, down}:
		default:
			// The interpreter isn't draining the queue.
			k.latest[key].Store(down)
			k.overflow.Or(bit)
		}
	}
	select {
	case k.ready <- struct{}{}:
	default:
	}
}

// Poll applies queued key events. It must be called from the goroutine
// that executes instructions.
//
// A key pressed and released between two calls stays down until the next
// Poll, so that the interpreter sees the tap.
func (k *Keypad) Poll() {
	if e := k.held; e != nil {
		k.held = nil
		k.keys[e.key].Store(e.down)
	}
	var pressed uint32
	for {
		select {
		case e := <-k.events:
			bit := uint32(1) << e.key
			if !e.down && pressed&bit != 0 {
				k.held = &e
				return
			}
			if e.down {
				pressed |= bit
			}
			k.keys[e.key].Store(e.down)
		default:
			mask := k.overflow.Swap(0)
			for key := range k.latest {
				if mask&(1<<key) != 0 {
					k.keys[key].Store(k.latest[key].Load())
				}
			}
			return
		}
	}
}

// IsActive reports whether key is down.
func (k *Keypad) IsActive(key byte) bool {
	return k.keys[key&0xf].Load()
}

// Ready is signalled after each key event.
func (k *Keypad) Ready() <-chan struct{} { return k.ready }

// Reset releases every key and discards queued events.
func (k *Keypad) Reset() {
	k.Poll()
	for k.held != nil {
		k.Poll()
	}
	for i := range k.keys {
		k.keys[i].Store(false)
	}
}
