package cpu

import (
	"math"

	"golang.org/x/arch/x86/x86asm"
)

// arithKind names one of the two-operand ALU operations sharing the
// opArith dispatch shell; each maps onto the generic arith.go core at
// whichever width the decoded instruction carries.
type arithKind int

const (
	arithAdd arithKind = iota
	arithSub
	arithAdc
	arithSbb
	arithAnd
	arithOr
	arithXor
	arithCmp
	arithTest
)

// opArith handles ADD/SUB/ADC/SBB/AND/OR/XOR/CMP/TEST uniformly: read both
// operands at the destination's width, compute via arith.go, write back
// (except CMP/TEST, which only set flags), and update eflags.
func (m *Machine) opArith(inst *x86asm.Inst, kind arithKind) error {
	dst, src := inst.Args[0], inst.Args[1]
	switch argWidth(dst) {
	case 8:
		x, y := m.readArg8(dst), m.readArg8(src)
		result, flags := applyArith8(kind, x, y, m.Regs.Flags.CF)
		if writesBack(kind) {
			m.writeArg8(dst, result)
		}
		m.setFlagsFromAdd8(flags)
	case 16:
		x, y := m.readArg16(dst), m.readArg16(src)
		result, flags := applyArith16(kind, x, y, m.Regs.Flags.CF)
		if writesBack(kind) {
			m.writeArg16(dst, result)
		}
		m.setFlagsFromAdd16(flags)
	default:
		x, y := m.readArg32(dst), m.readArg32(src)
		result, flags := applyArith32(kind, x, y, m.Regs.Flags.CF)
		if writesBack(kind) {
			m.writeArg32(dst, result)
		}
		m.setFlagsFromAdd32(flags)
	}
	return nil
}

func writesBack(kind arithKind) bool {
	return kind != arithCmp && kind != arithTest
}

func applyArith32(kind arithKind, x, y uint32, cf bool) (uint32, AddResult[uint32]) {
	switch kind {
	case arithAdd:
		r := Add(x, y)
		return r.Value, r
	case arithSub, arithCmp:
		r := Sub(x, y)
		return r.Value, r
	case arithAdc:
		r := Adc(x, y, cf)
		return r.Value, r
	case arithSbb:
		r := Sbb(x, y, cf)
		return r.Value, r
	case arithAnd, arithTest:
		r := And(x, y)
		return r.Value, AddResult[uint32]{Value: r.Value, ZF: r.ZF, SF: r.SF}
	case arithOr:
		r := Or(x, y)
		return r.Value, AddResult[uint32]{Value: r.Value, ZF: r.ZF, SF: r.SF}
	case arithXor:
		r := Xor(x, y)
		return r.Value, AddResult[uint32]{Value: r.Value, ZF: r.ZF, SF: r.SF}
	}
	return x, AddResult[uint32]{Value: x}
}

func applyArith16(kind arithKind, x, y uint16, cf bool) (uint16, AddResult[uint16]) {
	switch kind {
	case arithAdd:
		r := Add(x, y)
		return r.Value, r
	case arithSub, arithCmp:
		r := Sub(x, y)
		return r.Value, r
	case arithAdc:
		r := Adc(x, y, cf)
		return r.Value, r
	case arithSbb:
		r := Sbb(x, y, cf)
		return r.Value, r
	case arithAnd, arithTest:
		r := And(x, y)
		return r.Value, AddResult[uint16]{Value: r.Value, ZF: r.ZF, SF: r.SF}
	case arithOr:
		r := Or(x, y)
		return r.Value, AddResult[uint16]{Value: r.Value, ZF: r.ZF, SF: r.SF}
	case arithXor:
		r := Xor(x, y)
		return r.Value, AddResult[uint16]{Value: r.Value, ZF: r.ZF, SF: r.SF}
	}
	return x, AddResult[uint16]{Value: x}
}

func applyArith8(kind arithKind, x, y uint8, cf bool) (uint8, AddResult[uint8]) {
	switch kind {
	case arithAdd:
		r := Add(x, y)
		return r.Value, r
	case arithSub, arithCmp:
		r := Sub(x, y)
		return r.Value, r
	case arithAdc:
		r := Adc(x, y, cf)
		return r.Value, r
	case arithSbb:
		r := Sbb(x, y, cf)
		return r.Value, r
	case arithAnd, arithTest:
		r := And(x, y)
		return r.Value, AddResult[uint8]{Value: r.Value, ZF: r.ZF, SF: r.SF}
	case arithOr:
		r := Or(x, y)
		return r.Value, AddResult[uint8]{Value: r.Value, ZF: r.ZF, SF: r.SF}
	case arithXor:
		r := Xor(x, y)
		return r.Value, AddResult[uint8]{Value: r.Value, ZF: r.ZF, SF: r.SF}
	}
	return x, AddResult[uint8]{Value: x}
}

// unaryKind names the single-operand ALU operations: NEG/NOT/INC/DEC.
type unaryKind int

const (
	unaryNeg unaryKind = iota
	unaryNot
	unaryInc
	unaryDec
)

// opUnary handles NEG/NOT/INC/DEC. NOT affects no flags; INC/DEC affect
// ZF/SF/OF but leave CF untouched (per the SDM), so those two preserve the
// incoming carry explicitly.
func (m *Machine) opUnary(inst *x86asm.Inst, kind unaryKind) error {
	dst := inst.Args[0]
	cf := m.Regs.Flags.CF
	switch argWidth(dst) {
	case 8:
		x := m.readArg8(dst)
		v, r := applyUnary8(kind, x)
		m.writeArg8(dst, v)
		m.applyUnaryFlags8(kind, r, cf)
	case 16:
		x := m.readArg16(dst)
		v, r := applyUnary16(kind, x)
		m.writeArg16(dst, v)
		m.applyUnaryFlags16(kind, r, cf)
	default:
		x := m.readArg32(dst)
		v, r := applyUnary32(kind, x)
		m.writeArg32(dst, v)
		m.applyUnaryFlags32(kind, r, cf)
	}
	return nil
}

func applyUnary32(kind unaryKind, x uint32) (uint32, AddResult[uint32]) {
	switch kind {
	case unaryNeg:
		r := Neg(x)
		return r.Value, r
	case unaryNot:
		return ^x, AddResult[uint32]{Value: ^x}
	case unaryInc:
		r := Add(x, 1)
		return r.Value, r
	default:
		r := Sub(x, 1)
		return r.Value, r
	}
}

func applyUnary16(kind unaryKind, x uint16) (uint16, AddResult[uint16]) {
	switch kind {
	case unaryNeg:
		r := Neg(x)
		return r.Value, r
	case unaryNot:
		return ^x, AddResult[uint16]{Value: ^x}
	case unaryInc:
		r := Add(x, 1)
		return r.Value, r
	default:
		r := Sub(x, 1)
		return r.Value, r
	}
}

func applyUnary8(kind unaryKind, x uint8) (uint8, AddResult[uint8]) {
	switch kind {
	case unaryNeg:
		r := Neg(x)
		return r.Value, r
	case unaryNot:
		return ^x, AddResult[uint8]{Value: ^x}
	case unaryInc:
		r := Add(x, 1)
		return r.Value, r
	default:
		r := Sub(x, 1)
		return r.Value, r
	}
}

func (m *Machine) applyUnaryFlags32(kind unaryKind, r AddResult[uint32], prevCF bool) {
	if kind == unaryNot {
		return
	}
	m.Regs.Flags.ZF, m.Regs.Flags.SF, m.Regs.Flags.OF = r.ZF, r.SF, r.OF
	if kind == unaryNeg {
		m.Regs.Flags.CF = r.Value != 0
	} else {
		m.Regs.Flags.CF = prevCF
	}
}
func (m *Machine) applyUnaryFlags16(kind unaryKind, r AddResult[uint16], prevCF bool) {
	if kind == unaryNot {
		return
	}
	m.Regs.Flags.ZF, m.Regs.Flags.SF, m.Regs.Flags.OF = r.ZF, r.SF, r.OF
	if kind == unaryNeg {
		m.Regs.Flags.CF = r.Value != 0
	} else {
		m.Regs.Flags.CF = prevCF
	}
}
func (m *Machine) applyUnaryFlags8(kind unaryKind, r AddResult[uint8], prevCF bool) {
	if kind == unaryNot {
		return
	}
	m.Regs.Flags.ZF, m.Regs.Flags.SF, m.Regs.Flags.OF = r.ZF, r.SF, r.OF
	if kind == unaryNeg {
		m.Regs.Flags.CF = r.Value != 0
	} else {
		m.Regs.Flags.CF = prevCF
	}
}

// shiftKind names SHL/SHR/SAR/ROL/ROR, sharing one dispatch shell.
type shiftKind int

const (
	shiftShl shiftKind = iota
	shiftShr
	shiftSar
	shiftRol
	shiftRor
)

// opShift reads the shift count from the second argument (an immediate or
// CL, per the decoded form), masks it to 0-31 as real hardware does, and
// applies the selected shift/rotate at the destination's width.
func (m *Machine) opShift(inst *x86asm.Inst, kind shiftKind) error {
	dst := inst.Args[0]
	count := uint(m.readArg8(inst.Args[1])) & 0x1f
	switch argWidth(dst) {
	case 8:
		x := m.readArg8(dst)
		r := applyShift8(kind, x, count)
		m.writeArg8(dst, r.Value)
		if count != 0 {
			m.Regs.Flags.CF, m.Regs.Flags.ZF, m.Regs.Flags.SF, m.Regs.Flags.OF = r.CF, r.ZF, r.SF, r.OF
		}
	case 16:
		x := m.readArg16(dst)
		r := applyShift16(kind, x, count)
		m.writeArg16(dst, r.Value)
		if count != 0 {
			m.Regs.Flags.CF, m.Regs.Flags.ZF, m.Regs.Flags.SF, m.Regs.Flags.OF = r.CF, r.ZF, r.SF, r.OF
		}
	default:
		x := m.readArg32(dst)
		r := applyShift32(kind, x, count)
		m.writeArg32(dst, r.Value)
		if count != 0 {
			m.setFlagsFromShift32(r)
		}
	}
	return nil
}

func applyShift32(kind shiftKind, x uint32, count uint) ShiftResult[uint32] {
	switch kind {
	case shiftShl:
		return Shl(x, count)
	case shiftShr:
		return Shr(x, count)
	case shiftSar:
		return Sar(x, count)
	case shiftRol:
		return Rol(x, count)
	default:
		return Ror(x, count)
	}
}
func applyShift16(kind shiftKind, x uint16, count uint) ShiftResult[uint16] {
	switch kind {
	case shiftShl:
		return Shl(x, count)
	case shiftShr:
		return Shr(x, count)
	case shiftSar:
		return Sar(x, count)
	case shiftRol:
		return Rol(x, count)
	default:
		return Ror(x, count)
	}
}
func applyShift8(kind shiftKind, x uint8, count uint) ShiftResult[uint8] {
	switch kind {
	case shiftShl:
		return Shl(x, count)
	case shiftShr:
		return Shr(x, count)
	case shiftSar:
		return Sar(x, count)
	case shiftRol:
		return Rol(x, count)
	default:
		return Ror(x, count)
	}
}

// opImul covers the one-, two-, and three-operand IMUL encodings.
// Only the widest (32-bit) form is implemented; 8/16-bit IMUL is rare in
// Win32 user code and falls through to UnimplementedInstruction.
func (m *Machine) opImul(inst *x86asm.Inst) error {
	if argWidth(inst.Args[0]) != 32 || (inst.MemBytes != 0 && inst.MemBytes != 4) {
		return &UnimplementedInstructionError{Opcode: "imul-narrow", EIP: m.Regs.EIP}
	}
	switch numArgs(inst) {
	case 1:
		x := int64(int32(m.readArg32(inst.Args[0])))
		eax := int64(int32(m.Regs.Get32(EAX)))
		full := x * eax
		m.Regs.Set32(EAX, uint32(full))
		m.Regs.Set32(EDX, uint32(full>>32))
		overflow := full != int64(int32(full))
		m.Regs.Flags.CF, m.Regs.Flags.OF = overflow, overflow
	case 2:
		x := int64(int32(m.readArg32(inst.Args[0])))
		y := int64(int32(m.readArg32(inst.Args[1])))
		full := x * y
		m.writeArg32(inst.Args[0], uint32(full))
		overflow := full != int64(int32(full))
		m.Regs.Flags.CF, m.Regs.Flags.OF = overflow, overflow
	case 3:
		y := int64(int32(m.readArg32(inst.Args[1])))
		imm := int64(inst.Args[2].(x86asm.Imm))
		full := y * imm
		m.writeArg32(inst.Args[0], uint32(full))
		overflow := full != int64(int32(full))
		m.Regs.Flags.CF, m.Regs.Flags.OF = overflow, overflow
	default:
		return &UnimplementedInstructionError{Opcode: "imul-arity", EIP: m.Regs.EIP}
	}
	return nil
}

// opMul implements the unsigned one-operand MUL: edx:eax = eax * src.
func (m *Machine) opMul(inst *x86asm.Inst) error {
	x := uint64(m.Regs.Get32(EAX))
	y := uint64(m.readArg32(inst.Args[0]))
	full := x * y
	m.Regs.Set32(EAX, uint32(full))
	m.Regs.Set32(EDX, uint32(full>>32))
	overflow := uint32(full>>32) != 0
	m.Regs.Flags.CF, m.Regs.Flags.OF = overflow, overflow
	return nil
}

// opDiv implements unsigned DIV: edx:eax / src -> eax=quotient, edx=rem.
func (m *Machine) opDiv(inst *x86asm.Inst) error {
	divisor := uint64(m.readArg32(inst.Args[0]))
	if divisor == 0 {
		return &DivideByZeroError{EIP: m.Regs.EIP}
	}
	dividend := uint64(m.Regs.Get32(EDX))<<32 | uint64(m.Regs.Get32(EAX))
	q, r := dividend/divisor, dividend%divisor
	m.Regs.Set32(EAX, uint32(q))
	m.Regs.Set32(EDX, uint32(r))
	return nil
}

// opIdiv implements signed IDIV over the same edx:eax dividend. Real
// hardware raises #DE both for a zero divisor and for a quotient that
// overflows the 32-bit destination (the sole case being
// INT32_MIN / -1, whose mathematical quotient is 2^31 and cannot be
// represented); spec.md §8 leaves the choice between the two documented
// behaviors open, and this emulator picks the #DE-raising one rather than
// silently wrapping, so a guest that hits it faults the same way it would
// on every other integer-overflow-shaped error this core reports.
func (m *Machine) opIdiv(inst *x86asm.Inst) error {
	divisor := int64(int32(m.readArg32(inst.Args[0])))
	if divisor == 0 {
		return &DivideByZeroError{EIP: m.Regs.EIP}
	}
	dividend := int64(uint64(m.Regs.Get32(EDX))<<32 | uint64(m.Regs.Get32(EAX)))
	q, r := dividend/divisor, dividend%divisor
	if q > math.MaxInt32 || q < math.MinInt32 {
		return &DivideByZeroError{EIP: m.Regs.EIP}
	}
	m.Regs.Set32(EAX, uint32(int32(q)))
	m.Regs.Set32(EDX, uint32(int32(r)))
	return nil
}
