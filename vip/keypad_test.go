package vip

import "testing"

func TestKeyFor(t *testing.T) {
	for name, want := range map[string]byte{
		"1": 0x1, "2": 0x2, "3": 0x3, "4": 0xc,
		"q": 0x4, "w": 0x5, "e": 0x6, "r": 0xd,
		"a": 0x7, "s": 0x8, "d": 0x9, "f": 0xe,
		"z": 0xa, "x": 0x0, "c": 0xb, "v": 0xf,
		"Q": 0x4, "X": 0x0,
	} {
		got, ok := KeyFor(name)
		if !ok || got != want {
			t.Errorf("KeyFor(%q) = %x, %v; want %x, true", name, got, ok, want)
		}
	}
	for _, name := range []string{"", "5", "t", "space", "0"} {
		if _, ok := KeyFor(name); ok {
			t.Errorf("KeyFor(%q) reported a mapping", name)
		}
	}
}

func TestKeypadShared(t *testing.T) {
	k := NewKeypad(true)
	k.KeyDown("x")
	if !k.IsActive(0x0) {
		t.Fatal("key 0 not active after KeyDown(x)")
	}
	select {
	case <-k.Ready():
	default:
		t.Error("Ready not signalled")
	}
	k.KeyDown("space")
	k.KeyUp("x")
	if k.IsActive(0x0) {
		t.Fatal("key 0 active after KeyUp(x)")
	}
}

func TestKeypadQueued(t *testing.T) {
	k := NewKeypad(false)
	k.Press(0xa)
	if k.IsActive(0xa) {
		t.Fatal("queued key applied before Poll")
	}
	k.Poll()
	if !k.IsActive(0xa) {
		t.Fatal("queued key not applied by Poll")
	}
	k.Release(0xa)
	k.Press(0xb)
	k.Poll()
	if k.IsActive(0xa) || !k.IsActive(0xb) {
		t.Errorf("after Poll, A=%v B=%v; want false, true", k.IsActive(0xa), k.IsActive(0xb))
	}

	// Events beyond the queue length are applied by Poll.
	for i := 0; i < keyQueueLen+1; i++ {
		k.Press(0xc)
	}
	k.Poll()
	if !k.IsActive(0xc) {
		t.Errorf("overflowed event not applied")
	}

	k.Reset()
	for key := byte(0); key < 16; key++ {
		if k.IsActive(key) {
			t.Errorf("key %x active after Reset", key)
		}
	}
}

// The newest state of a key wins even when its event overflowed the queue
// behind older events for the same key.
func TestKeypadQueuedOverflowOrder(t *testing.T) {
	k := NewKeypad(false)
	for i := 0; i < keyQueueLen; i++ {
		k.Press(0x1)
	}
	k.Release(0x1)
	k.Poll()
	if k.IsActive(0x1) {
		t.Fatal("key 1 down after overflowed release")
	}

	// Once a key has overflowed, its later events follow the overflow
	// rather than the queue, until Poll applies them.
	for i := 0; i < keyQueueLen; i++ {
		k.Press(0x2)
	}
	k.Press(0x3)
	k.Release(0x2)
	k.Poll()
	if k.IsActive(0x2) || !k.IsActive(0x3) {
		t.Errorf("after Poll, 2=%v 3=%v; want false, true", k.IsActive(0x2), k.IsActive(0x3))
	}

	k.Press(0x2)
	k.Poll()
	if !k.IsActive(0x2) {
		t.Errorf("queued press after overflow not applied")
	}
}

func TestKeypadQueuedTap(t *testing.T) {
	k := NewKeypad(false)
	k.Press(0x5)
	k.Release(0x5)
	k.Press(0x6)
	k.Poll()
	if !k.IsActive(0x5) || k.IsActive(0x6) {
		t.Fatalf("after first Poll, 5=%v 6=%v; want true, false", k.IsActive(0x5), k.IsActive(0x6))
	}
	k.Poll()
	if k.IsActive(0x5) || !k.IsActive(0x6) {
		t.Fatalf("after second Poll, 5=%v 6=%v; want false, true", k.IsActive(0x5), k.IsActive(0x6))
	}

	k.Press(0x7)
	k.Release(0x7)
	k.Reset()
	if k.IsActive(0x7) {
		t.Errorf("key 7 active after Reset")
	}
	k.Poll()
	if k.IsActive(0x7) {
		t.Errorf("held release survived Reset")
	}
}
