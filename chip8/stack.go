package chip8

import (
	"fmt"
	"strings"
)

// StackSize is the number of return address slots.
const StackSize = 16

// Stack holds subroutine return addresses.
// Ptr indexes the top of the stack; slot 0 is never written, as CALL
// increments Ptr before storing the return address.
type Stack struct {
	Addrs [StackSize]uint16
	Ptr   byte
}

func (s *Stack) push(addr uint16) {
	if int(s.Ptr) >= StackSize-1 {
		panic(Overflow)
	}
	s.Ptr++
	s.Addrs[s.Ptr] = addr
}

func (s *Stack) pop() uint16 {
	if s.Ptr == 0 {
		panic(Underflow)
	}
	addr := s.Addrs[s.Ptr]
	s.Ptr--
	return addr
}

// Valid reports whether the stack pointer is within range.
func (s *Stack) Valid() bool { return int(s.Ptr) < StackSize }

func (s Stack) String() string {
	var b strings.Builder
	b.WriteByte('(')
	for _, v := range s.Addrs[1 : int(s.Ptr)+1] {
		fmt.Fprintf(&b, " %.3x", v)
	}
	b.WriteString(" )")
	return b.String()
}
