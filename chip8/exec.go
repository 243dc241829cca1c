// Package chip8 provides an implementation of the CHIP-8 interpreter,
// called Machine, that can be used to execute CHIP-8 programs.
package chip8

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"
)

const (
	MemSize      = 0x1000
	ProgramStart = 0x200
	MaxROMSize   = MemSize - ProgramStart
	addrMask     = MemSize - 1
)

// Machine is an implementation of the CHIP-8 interpreter.
//
// All memory accesses are reduced modulo MemSize, so reads and writes
// through I or PC that run off the end of memory wrap to address 0.
type Machine struct {
	Mem    [MemSize]byte
	V      [16]byte
	I      uint16
	PC     uint16
	Stack  Stack
	Timers Timers
	End    uint16 // one past the last byte of the loaded program

	Display Display
	Keypad  Keypad
	Rand    func() byte

	keyLatched bool
	key        byte
}

// Display is the frame buffer operated on by CLS and DRW.
type Display interface {
	Clear()
	Sprite(x, y byte, rows []byte) (collision bool)
}

// Keypad reports the state of the 16 hexadecimal keys.
type Keypad interface {
	IsActive(key byte) bool
}

var (
	ErrMissingCollaborator = errors.New("chip8: missing display or keypad")
	ErrROMTooLarge         = errors.New("chip8: rom too large")

	// ErrAwaitingKey is returned by Exec when LD Vx, K is waiting for a
	// key to be pressed and released. PC is left pointing at the
	// instruction so that the next call to Exec retries it.
	ErrAwaitingKey = errors.New("awaiting key")
)

// New returns a Machine with the font loaded at 0 and rom loaded at
// ProgramStart. The display and keypad must be non-nil.
func New(rom []byte, d Display, k Keypad) (*Machine, error) {
	if d == nil || k == nil {
		return nil, ErrMissingCollaborator
	}
	m := &Machine{Display: d, Keypad: k}
	if err := m.Load(rom); err != nil {
		return nil, err
	}
	return m, nil
}

// Load resets the machine state and loads rom at ProgramStart.
// If rom is larger than MaxROMSize the machine is left unchanged.
func (m *Machine) Load(rom []byte) error {
	if len(rom) > MaxROMSize {
		return fmt.Errorf("%w: %d bytes, limit is %d", ErrROMTooLarge, len(rom), MaxROMSize)
	}
	m.Mem = [MemSize]byte{}
	copy(m.Mem[:], font[:])
	copy(m.Mem[ProgramStart:], rom)
	m.V = [16]byte{}
	m.I = 0
	m.PC = ProgramStart
	m.Stack = Stack{}
	m.Timers.Reset(time.Now())
	m.End = ProgramStart + uint16(len(rom))
	m.keyLatched = false
	return nil
}

// OpAt returns the instruction word stored at addr.
func (m *Machine) OpAt(addr uint16) Op {
	return Op(short(m.Mem[addr&addrMask], m.Mem[(addr+1)&addrMask]))
}

// Exec executes the instruction at m.PC. It returns ErrAwaitingKey if that
// instruction is waiting for input, and otherwise only returns a non-nil
// error if it encounters a halt condition.
func (m *Machine) Exec() (err error) {
	var (
		opPC = m.PC
		op   = m.OpAt(opPC)
	)
	defer func() {
		if e := recover(); e != nil {
			if code, ok := e.(HaltCode); ok {
				err = HaltError{
					Addr:     opPC,
					Op:       op,
					HaltCode: code,
				}
			} else {
				panic(e)
			}
		}
	}()

	m.PC += 2

	x, y := op.X(), op.Y()
	switch op.Instr() {
	case CLS:
		m.Display.Clear()
	case RET:
		m.PC = m.Stack.pop()
	case SYS:
		// Machine code routines are not supported.
	case JP:
		m.PC = op.NNN()
	case CALL:
		m.Stack.push(m.PC)
		m.PC = op.NNN()
	case SE:
		m.skipIf(m.V[x] == op.KK())
	case SNE:
		m.skipIf(m.V[x] != op.KK())
	case SEV:
		m.skipIf(m.V[x] == m.V[y])
	case SNEV:
		m.skipIf(m.V[x] != m.V[y])
	case LD:
		m.V[x] = op.KK()
	case ADD:
		m.V[x] += op.KK()
	case LDV:
		m.V[x] = m.V[y]
	case OR:
		m.V[x] |= m.V[y]
	case AND:
		m.V[x] &= m.V[y]
	case XOR:
		m.V[x] ^= m.V[y]
	case ADDV:
		sum := uint16(m.V[x]) + uint16(m.V[y])
		m.V[x] = byte(sum)
		m.V[0xf] = flag(sum > 0xff)
	case SUB:
		vx, vy := m.V[x], m.V[y]
		m.V[x] = vx - vy
		m.V[0xf] = flag(vx >= vy)
	case SHR:
		vx := m.V[x]
		m.V[x] = vx >> 1
		m.V[0xf] = vx & 0x1
	case SUBN:
		vx, vy := m.V[x], m.V[y]
		m.V[x] = vy - vx
		m.V[0xf] = flag(vy >= vx)
	case SHL:
		vx := m.V[x]
		m.V[x] = vx << 1
		m.V[0xf] = vx >> 7
	case LDI:
		m.I = op.NNN()
	case JPV0:
		m.PC = (op.NNN() + uint16(m.V[0])) & addrMask
	case RND:
		m.V[x] = m.random() & op.KK()
	case DRW:
		m.V[0xf] = flag(m.Display.Sprite(m.V[x], m.V[y], m.read(m.I, int(op.N()))))
	case SKP:
		m.skipIf(m.Keypad.IsActive(m.V[x]))
	case SKNP:
		m.skipIf(!m.Keypad.IsActive(m.V[x]))
	case LDVDT:
		m.V[x] = m.Timers.Delay
	case LDK:
		return m.awaitKey(x)
	case LDDT:
		m.Timers.Delay = m.V[x]
	case LDST:
		m.Timers.Sound = m.V[x]
	case ADDI:
		m.I = (m.I + uint16(m.V[x])) & addrMask
	case LDF:
		m.I = uint16(m.V[x]&0xf) * FontSize
	case LDB:
		v := m.V[x]
		m.write(m.I, v/100, v/10%10, v%10)
	case STM:
		m.write(m.I, m.V[:x+1]...)
	case LDM:
		copy(m.V[:x+1], m.read(m.I, int(x)+1))
	default:
		panic(IllegalOp)
	}

	return nil
}

func (m *Machine) skipIf(cond bool) {
	if cond {
		m.PC += 2
	}
}

// awaitKey implements LD Vx, K. The first key seen down is latched and the
// instruction completes once that key is released.
func (m *Machine) awaitKey(x byte) error {
	if !m.keyLatched {
		for k := byte(0); k < 16; k++ {
			if m.Keypad.IsActive(k) {
				m.key, m.keyLatched = k, true
				break
			}
		}
	} else if !m.Keypad.IsActive(m.key) {
		m.V[x] = m.key
		m.keyLatched = false
		return nil
	}
	m.PC -= 2
	return ErrAwaitingKey
}

// KeyLatched reports the key that a waiting LD Vx, K has seen pressed
// and is waiting to be released.
func (m *Machine) KeyLatched() (key byte, ok bool) {
	return m.key, m.keyLatched
}

func (m *Machine) random() byte {
	if m.Rand != nil {
		return m.Rand()
	}
	return byte(rand.UintN(0x100))
}

// read returns n bytes of memory starting at addr, wrapping at the end of
// memory.
func (m *Machine) read(addr uint16, n int) []byte {
	addr &= addrMask
	if int(addr)+n <= MemSize {
		return m.Mem[addr : int(addr)+n]
	}
	b := make([]byte, n)
	for i := range b {
		b[i] = m.Mem[(int(addr)+i)&addrMask]
	}
	return b
}

func (m *Machine) write(addr uint16, b ...byte) {
	for i, v := range b {
		m.Mem[(int(addr)+i)&addrMask] = v
	}
}

// HexDump returns count instruction words starting at addr, formatted as
// space-separated hexadecimal.
func (m *Machine) HexDump(addr uint16, count int) string {
	var b strings.Builder
	for i := 0; i < count; i++ {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%.4x", uint16(m.OpAt(addr)))
		addr += 2
	}
	return b.String()
}

// HaltError is returned by Exec if execution is halted by
// the program for some reason.
type HaltError struct {
	HaltCode
	Op   Op
	Addr uint16
}

func (e HaltError) Error() string {
	return fmt.Sprintf("%s executing %.4x (%s) at %.3x", e.HaltCode, uint16(e.Op), e.Op, e.Addr)
}

// HaltCode signifies the type of condition that halted execution.
type HaltCode byte

const (
	Underflow HaltCode = 0x01 // RET with an empty stack
	Overflow  HaltCode = 0x02 // CALL with a full stack
	IllegalOp HaltCode = 0x03 // unknown instruction in family 8, E or F
)

func (c HaltCode) String() string {
	if s, ok := map[HaltCode]string{
		Underflow: "stack underflow",
		Overflow:  "stack overflow",
		IllegalOp: "illegal instruction",
	}[c]; ok {
		return s
	}
	return fmt.Sprintf("unknown (%.2x)", byte(c))
}

func flag(b bool) byte {
	if b {
		return 1
	}
	return 0
}

func short(hi, lo byte) uint16 {
	return uint16(hi)<<8 + uint16(lo)
}
