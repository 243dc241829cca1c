package chip8

import (
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// stateVersion is bumped whenever State changes incompatibly.
const stateVersion = 1

// State is a snapshot of the interpreter, excluding its collaborators and
// the display contents.
type State struct {
	Version int               `cbor:"1,keyasint"`
	Mem     []byte            `cbor:"2,keyasint"`
	V       [16]byte          `cbor:"3,keyasint"`
	I       uint16            `cbor:"4,keyasint"`
	PC      uint16            `cbor:"5,keyasint"`
	Stack   [StackSize]uint16 `cbor:"6,keyasint"`
	SP      byte              `cbor:"7,keyasint"`
	Delay   byte              `cbor:"8,keyasint"`
	Sound   byte              `cbor:"9,keyasint"`
	End     uint16            `cbor:"10,keyasint"`
}

var ErrBadState = errors.New("chip8: bad state")

var stateEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("chip8: creating CBOR enc mode: %v", err))
	}
	stateEncMode = em
}

// State returns a snapshot of the machine.
func (m *Machine) State() State {
	return State{
		Version: stateVersion,
		Mem:     append([]byte(nil), m.Mem[:]...),
		V:       m.V,
		I:       m.I,
		PC:      m.PC,
		Stack:   m.Stack.Addrs,
		SP:      m.Stack.Ptr,
		Delay:   m.Timers.Delay,
		Sound:   m.Timers.Sound,
		End:     m.End,
	}
}

// SetState restores a snapshot taken by State.
// The machine is left unchanged if the snapshot is invalid.
func (m *Machine) SetState(s State) error {
	switch {
	case s.Version != stateVersion:
		return fmt.Errorf("%w: version %d, want %d", ErrBadState, s.Version, stateVersion)
	case len(s.Mem) != MemSize:
		return fmt.Errorf("%w: memory is %d bytes", ErrBadState, len(s.Mem))
	case int(s.SP) >= StackSize:
		return fmt.Errorf("%w: stack pointer %d", ErrBadState, s.SP)
	case s.End > MemSize:
		return fmt.Errorf("%w: program end %.4x", ErrBadState, s.End)
	}
	copy(m.Mem[:], s.Mem)
	m.V = s.V
	m.I = s.I & addrMask
	m.PC = s.PC & addrMask
	m.Stack = Stack{Addrs: s.Stack, Ptr: s.SP}
	m.Timers.Delay = s.Delay
	m.Timers.Sound = s.Sound
	m.End = s.End
	m.keyLatched = false
	return nil
}

// MarshalState encodes a snapshot of the machine as CBOR.
func (m *Machine) MarshalState() ([]byte, error) {
	return stateEncMode.Marshal(m.State())
}

// UnmarshalState restores a snapshot encoded by MarshalState.
func (m *Machine) UnmarshalState(b []byte) error {
	var s State
	if err := cbor.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("%w: %v", ErrBadState, err)
	}
	return m.SetState(s)
}
