package chip8

import "fmt"

// Op represents a CHIP-8 instruction word.
type Op uint16

// X returns the register index in the second nibble.
func (o Op) X() byte { return byte(o>>8) & 0xf }

// Y returns the register index in the third nibble.
func (o Op) Y() byte { return byte(o>>4) & 0xf }

// N returns the low nibble.
func (o Op) N() byte { return byte(o) & 0xf }

// KK returns the low byte.
func (o Op) KK() byte { return byte(o) }

// NNN returns the low 12 bits, an address.
func (o Op) NNN() uint16 { return uint16(o) & 0xfff }

// Instr decodes the instruction word. It returns Illegal if the word does
// not encode any of the standard instructions.
func (o Op) Instr() Instr {
	switch o >> 12 {
	case 0x0:
		switch o {
		case 0x00e0:
			return CLS
		case 0x00ee:
			return RET
		}
		return SYS
	case 0x1:
		return JP
	case 0x2:
		return CALL
	case 0x3:
		return SE
	case 0x4:
		return SNE
	case 0x5:
		return SEV
	case 0x6:
		return LD
	case 0x7:
		return ADD
	case 0x8:
		switch o.N() {
		case 0x0:
			return LDV
		case 0x1:
			return OR
		case 0x2:
			return AND
		case 0x3:
			return XOR
		case 0x4:
			return ADDV
		case 0x5:
			return SUB
		case 0x6:
			return SHR
		case 0x7:
			return SUBN
		case 0xe:
			return SHL
		}
	case 0x9:
		return SNEV
	case 0xa:
		return LDI
	case 0xb:
		return JPV0
	case 0xc:
		return RND
	case 0xd:
		return DRW
	case 0xe:
		switch o.KK() {
		case 0x9e:
			return SKP
		case 0xa1:
			return SKNP
		}
	case 0xf:
		switch o.KK() {
		case 0x07:
			return LDVDT
		case 0x0a:
			return LDK
		case 0x15:
			return LDDT
		case 0x18:
			return LDST
		case 0x1e:
			return ADDI
		case 0x29:
			return LDF
		case 0x33:
			return LDB
		case 0x55:
			return STM
		case 0x65:
			return LDM
		}
	}
	return Illegal
}

// String disassembles the instruction, for example "DRW V1, V2, 5".
func (o Op) String() string {
	x, y := o.X(), o.Y()
	switch i := o.Instr(); i {
	case CLS, RET:
		return i.String()
	case SYS, JP, CALL:
		return fmt.Sprintf("%s %.3x", i, o.NNN())
	case SE, SNE, LD, ADD, RND:
		return fmt.Sprintf("%s V%X, %.2x", i, x, o.KK())
	case SEV, SNEV, LDV, OR, AND, XOR, ADDV, SUB, SUBN:
		return fmt.Sprintf("%s V%X, V%X", i, x, y)
	case SHR, SHL:
		return fmt.Sprintf("%s V%X {, V%X}", i, x, y)
	case LDI:
		return fmt.Sprintf("LD I, %.3x", o.NNN())
	case JPV0:
		return fmt.Sprintf("JP V0, %.3x", o.NNN())
	case DRW:
		return fmt.Sprintf("DRW V%X, V%X, %x", x, y, o.N())
	case SKP, SKNP:
		return fmt.Sprintf("%s V%X", i, x)
	case LDVDT:
		return fmt.Sprintf("LD V%X, DT", x)
	case LDK:
		return fmt.Sprintf("LD V%X, K", x)
	case LDDT:
		return fmt.Sprintf("LD DT, V%X", x)
	case LDST:
		return fmt.Sprintf("LD ST, V%X", x)
	case ADDI:
		return fmt.Sprintf("ADD I, V%X", x)
	case LDF:
		return fmt.Sprintf("LD F, V%X", x)
	case LDB:
		return fmt.Sprintf("LD B, V%X", x)
	case STM:
		return fmt.Sprintf("LD [I], V%X", x)
	case LDM:
		return fmt.Sprintf("LD V%X, [I]", x)
	}
	return fmt.Sprintf("??? %.4x", uint16(o))
}

// Instr identifies one of the 35 CHIP-8 instructions.
type Instr byte

const (
	Illegal Instr = iota
	CLS           // 00E0
	RET           // 00EE
	SYS           // 0nnn
	JP            // 1nnn
	CALL          // 2nnn
	SE            // 3xkk
	SNE           // 4xkk
	SEV           // 5xy0
	LD            // 6xkk
	ADD           // 7xkk
	LDV           // 8xy0
	OR            // 8xy1
	AND           // 8xy2
	XOR           // 8xy3
	ADDV          // 8xy4
	SUB           // 8xy5
	SHR           // 8xy6
	SUBN          // 8xy7
	SHL           // 8xyE
	SNEV          // 9xy0
	LDI           // Annn
	JPV0          // Bnnn
	RND           // Cxkk
	DRW           // Dxyn
	SKP           // Ex9E
	SKNP          // ExA1
	LDVDT         // Fx07
	LDK           // Fx0A
	LDDT          // Fx15
	LDST          // Fx18
	ADDI          // Fx1E
	LDF           // Fx29
	LDB           // Fx33
	STM           // Fx55
	LDM           // Fx65
)

// String returns the mnemonic shared by all forms of the instruction.
func (i Instr) String() string {
	if int(i) < len(instrStrings) {
		return instrStrings[i]
	}
	return fmt.Sprintf("Instr(%d)", byte(i))
}

var instrStrings = [...]string{
	Illegal: "???",
	CLS:     "CLS",
	RET:     "RET",
	SYS:     "SYS",
	JP:      "JP",
	CALL:    "CALL",
	SE:      "SE",
	SNE:     "SNE",
	SEV:     "SE",
	LD:      "LD",
	ADD:     "ADD",
	LDV:     "LD",
	OR:      "OR",
	AND:     "AND",
	XOR:     "XOR",
	ADDV:    "ADD",
	SUB:     "SUB",
	SHR:     "SHR",
	SUBN:    "SUBN",
	SHL:     "SHL",
	SNEV:    "SNE",
	LDI:     "LD",
	JPV0:    "JP",
	RND:     "RND",
	DRW:     "DRW",
	SKP:     "SKP",
	SKNP:    "SKNP",
	LDVDT:   "LD",
	LDK:     "LD",
	LDDT:    "LD",
	LDST:    "LD",
	ADDI:    "ADD",
	LDF:     "LD",
	LDB:     "LD",
	STM:     "LD",
	LDM:     "LD",
}
