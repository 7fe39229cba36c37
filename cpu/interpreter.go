package cpu

import (
	"golang.org/x/arch/x86/x86asm"
)

// Step decodes and executes exactly one instruction at Regs.EIP, advancing
// EIP past the instruction before dispatching its effect (matching the
// SDM's own description and spec.md §4.2: "eip is advanced to point past
// the current instruction before the instruction's effect is applied").
// It returns a StepResult rather than a bare error so the driver can
// distinguish a clean halt from a real fault without string-matching,
// mirroring the teacher's execInstructions switch in vm/vm.go generalized
// to a single-step contract.
func (m *Machine) Step() StepResult {
	if m.halted {
		return StepResult{Kind: Halted, Addr: m.Regs.EIP}
	}

	eip := m.Regs.EIP
	if eip >= uint32(len(m.mem)) {
		return m.fault(&BadMemoryAccessError{Addr: eip, EIP: eip})
	}
	window := m.mem[eip:min32(eip+16, uint32(len(m.mem)))]

	inst, err := x86asm.Decode(window, 32)
	if err != nil {
		return m.fault(&UnimplementedInstructionError{Opcode: "decode-failed", EIP: eip})
	}

	if err := m.checkPrefixes(&inst); err != nil {
		return m.fault(err)
	}

	m.Regs.EIP = eip + uint32(inst.Len)

	if err := m.execute(&inst, eip); err != nil {
		if err == errHalt {
			m.halted = true
			return StepResult{Kind: Halted, Addr: eip}
		}
		m.Regs.EIP = eip
		// Handlers build their errors after eip was advanced; report the
		// address the faulting instruction was fetched from instead.
		switch e := err.(type) {
		case *UnimplementedInstructionError:
			e.EIP = eip
		case *DivideByZeroError:
			e.EIP = eip
		}
		return m.fault(err)
	}

	if m.halted {
		return StepResult{Kind: Halted, Addr: m.Regs.EIP}
	}
	return StepResult{Kind: Continued, Addr: m.Regs.EIP}
}

func (m *Machine) fault(err error) StepResult {
	return StepResult{Kind: Errored, Addr: m.Regs.EIP, Err: err}
}

func min32(a, b uint32) uint32 {
	if a < b {
		return a
	}
	return b
}

// numArgs counts the non-nil leading entries of the fixed-size Args array,
// since x86asm.Args is always [4]Arg with trailing nils rather than a
// slice truncated to the real operand count.
func numArgs(inst *x86asm.Inst) int {
	n := 0
	for _, a := range inst.Args {
		if a == nil {
			break
		}
		n++
	}
	return n
}

// checkPrefixes rejects lock (no multi-core semantics to honor) and
// restricts rep/repe/repne to the string-instruction family, per spec.md
// §4.3.
func (m *Machine) checkPrefixes(inst *x86asm.Inst) error {
	for _, p := range inst.Prefix {
		switch p & 0xff {
		case x86asm.PrefixLOCK:
			return &UnsupportedPrefixError{Prefix: "lock", EIP: m.Regs.EIP}
		case x86asm.PrefixREP, x86asm.PrefixREPN:
			if !isStringOp(inst.Op) {
				return &UnsupportedPrefixError{Prefix: "rep/repne on non-string op", EIP: m.Regs.EIP}
			}
		}
	}
	return nil
}

func isStringOp(op x86asm.Op) bool {
	switch op {
	case x86asm.MOVSB, x86asm.MOVSW, x86asm.MOVSD,
		x86asm.STOSB, x86asm.STOSW, x86asm.STOSD,
		x86asm.CMPSB, x86asm.CMPSW, x86asm.CMPSD,
		x86asm.SCASB, x86asm.SCASW, x86asm.SCASD,
		x86asm.LODSB, x86asm.LODSW, x86asm.LODSD:
		return true
	}
	return false
}

// execute dispatches on the decoded opcode. origEIP is the address the
// instruction was fetched from, needed for relative-call IAT checks and
// error reporting; Regs.EIP already points past the instruction.
func (m *Machine) execute(inst *x86asm.Inst, origEIP uint32) error {
	switch inst.Op {
	case x86asm.NOP:
		return nil
	case x86asm.HLT:
		return errHalt

	case x86asm.MOV:
		return m.opMov(inst)
	case x86asm.MOVZX:
		return m.opMovzx(inst)
	case x86asm.MOVSX:
		return m.opMovsx(inst)
	case x86asm.LEA:
		return m.opLea(inst)

	case x86asm.PUSH:
		return m.opPush(inst)
	case x86asm.POP:
		return m.opPop(inst)
	case x86asm.PUSHAD:
		return m.opPushad()
	case x86asm.POPAD:
		return m.opPopad()
	case x86asm.ENTER:
		return m.opEnter(inst)
	case x86asm.LEAVE:
		return m.opLeave()

	case x86asm.CALL:
		return m.opCall(inst)
	case x86asm.RET:
		return m.opRet(inst)
	case x86asm.JMP:
		return m.opJmp(inst)
	case x86asm.LOOP, x86asm.LOOPE, x86asm.LOOPNE:
		return m.opLoop(inst)

	case x86asm.JA, x86asm.JAE, x86asm.JB, x86asm.JBE, x86asm.JE, x86asm.JNE,
		x86asm.JG, x86asm.JGE, x86asm.JL, x86asm.JLE,
		x86asm.JS, x86asm.JNS, x86asm.JO, x86asm.JNO, x86asm.JP, x86asm.JNP:
		return m.opJcc(inst)

	case x86asm.ADD:
		return m.opArith(inst, arithAdd)
	case x86asm.SUB:
		return m.opArith(inst, arithSub)
	case x86asm.ADC:
		return m.opArith(inst, arithAdc)
	case x86asm.SBB:
		return m.opArith(inst, arithSbb)
	case x86asm.AND:
		return m.opArith(inst, arithAnd)
	case x86asm.OR:
		return m.opArith(inst, arithOr)
	case x86asm.XOR:
		return m.opArith(inst, arithXor)
	case x86asm.CMP:
		return m.opArith(inst, arithCmp)
	case x86asm.TEST:
		return m.opArith(inst, arithTest)

	case x86asm.NEG:
		return m.opUnary(inst, unaryNeg)
	case x86asm.NOT:
		return m.opUnary(inst, unaryNot)
	case x86asm.INC:
		return m.opUnary(inst, unaryInc)
	case x86asm.DEC:
		return m.opUnary(inst, unaryDec)

	case x86asm.SHL, x86asm.SAL:
		return m.opShift(inst, shiftShl)
	case x86asm.SHR:
		return m.opShift(inst, shiftShr)
	case x86asm.SAR:
		return m.opShift(inst, shiftSar)
	case x86asm.ROL:
		return m.opShift(inst, shiftRol)
	case x86asm.ROR:
		return m.opShift(inst, shiftRor)

	case x86asm.IMUL:
		return m.opImul(inst)
	case x86asm.MUL:
		return m.opMul(inst)
	case x86asm.IDIV:
		return m.opIdiv(inst)
	case x86asm.DIV:
		return m.opDiv(inst)

	case x86asm.MOVSB, x86asm.MOVSW, x86asm.MOVSD:
		return m.execStringOp(inst, origEIP)
	case x86asm.STOSB, x86asm.STOSW, x86asm.STOSD:
		return m.execStringOp(inst, origEIP)
	case x86asm.CMPSB, x86asm.CMPSW, x86asm.CMPSD:
		return m.execStringOp(inst, origEIP)
	case x86asm.SCASB, x86asm.SCASW, x86asm.SCASD:
		return m.execStringOp(inst, origEIP)
	case x86asm.LODSB, x86asm.LODSW, x86asm.LODSD:
		return m.execStringOp(inst, origEIP)

	case x86asm.FLD, x86asm.FST, x86asm.FSTP, x86asm.FADD, x86asm.FSUB,
		x86asm.FMUL, x86asm.FDIV, x86asm.FCOM, x86asm.FCOMP, x86asm.FCOMI,
		x86asm.FCHS, x86asm.FABS, x86asm.FILD, x86asm.FISTP, x86asm.FXCH,
		x86asm.FLDZ, x86asm.FLD1, x86asm.FLDCW, x86asm.FNSTCW:
		return m.execFPU(inst)

	case x86asm.MOVQ, x86asm.MOVD, x86asm.PADDD, x86asm.PSUBD, x86asm.PAND,
		x86asm.POR, x86asm.PXOR, x86asm.PCMPEQD, x86asm.PSRLD, x86asm.PSLLD:
		return m.execMMX(inst)

	default:
		return &UnimplementedInstructionError{Opcode: inst.Op.String(), EIP: origEIP}
	}
}

// effAddr computes the flat guest address of a memory operand, applying
// the fs: segment override as a synthetic base (FSAddr) and treating every
// other segment prefix as zero-based, per spec.md §4.2's
// addr = base + index*scale + disp32 (wraparound on 32-bit overflow).
func (m *Machine) effAddr(mem x86asm.Mem) uint32 {
	var addr uint32
	if mem.Base != 0 {
		if reg, ok := x86RegTo32(mem.Base); ok {
			addr += m.Regs.Get32(reg)
		}
	}
	if mem.Index != 0 {
		if reg, ok := x86RegTo32(mem.Index); ok {
			addr += m.Regs.Get32(reg) * uint32(mem.Scale)
		}
	}
	addr += uint32(mem.Disp)
	if mem.Segment == x86asm.FS {
		addr += m.Regs.FSAddr
	}
	return addr
}

// readArg32/readArg16/readArg8 and writeArg* resolve an x86asm.Arg of any
// supported kind (Reg, Mem, Imm) against the register file and guest
// memory, the Go analogue of the teacher's "read helper, write helper"
// pairing generalized per spec.md §4.4's rmW_x / op1_rmW convention.
func (m *Machine) readArg32(a x86asm.Arg) uint32 {
	switch v := a.(type) {
	case x86asm.Reg:
		reg, _ := x86RegTo32(v)
		return m.Regs.Get32(reg)
	case x86asm.Mem:
		return m.ReadU32(m.effAddr(v))
	case x86asm.Imm:
		return uint32(v)
	}
	return 0
}

func (m *Machine) writeArg32(a x86asm.Arg, v uint32) {
	switch d := a.(type) {
	case x86asm.Reg:
		reg, _ := x86RegTo32(d)
		m.Regs.Set32(reg, v)
	case x86asm.Mem:
		m.WriteU32(m.effAddr(d), v)
	}
}

func (m *Machine) readArg16(a x86asm.Arg) uint16 {
	switch v := a.(type) {
	case x86asm.Reg:
		reg, _ := x86RegTo32(v)
		return m.Regs.Get16(reg)
	case x86asm.Mem:
		return m.ReadU16(m.effAddr(v))
	case x86asm.Imm:
		return uint16(v)
	}
	return 0
}

func (m *Machine) writeArg16(a x86asm.Arg, v uint16) {
	switch d := a.(type) {
	case x86asm.Reg:
		reg, _ := x86RegTo32(d)
		m.Regs.Set16(reg, v)
	case x86asm.Mem:
		m.WriteU16(m.effAddr(d), v)
	}
}

func (m *Machine) readArg8(a x86asm.Arg) uint8 {
	switch v := a.(type) {
	case x86asm.Reg:
		b, _ := x86RegToByte(v)
		return m.Regs.Get8(b)
	case x86asm.Mem:
		return m.ReadU8(m.effAddr(v))
	case x86asm.Imm:
		return uint8(v)
	}
	return 0
}

func (m *Machine) writeArg8(a x86asm.Arg, v uint8) {
	switch d := a.(type) {
	case x86asm.Reg:
		b, _ := x86RegToByte(d)
		m.Regs.Set8(b, v)
	case x86asm.Mem:
		m.WriteU8(m.effAddr(d), v)
	}
}

// argWidth reports the operand width in bits of a destination arg, used to
// select which generic instantiation of the arith.go core to invoke.
func argWidth(a x86asm.Arg) int {
	switch v := a.(type) {
	case x86asm.Reg:
		return regWidth(v)
	}
	return 32
}

func (m *Machine) setFlagsFromAdd32(r AddResult[uint32]) {
	m.Regs.Flags.CF, m.Regs.Flags.ZF, m.Regs.Flags.SF, m.Regs.Flags.OF = r.CF, r.ZF, r.SF, r.OF
}
func (m *Machine) setFlagsFromAdd16(r AddResult[uint16]) {
	m.Regs.Flags.CF, m.Regs.Flags.ZF, m.Regs.Flags.SF, m.Regs.Flags.OF = r.CF, r.ZF, r.SF, r.OF
}
func (m *Machine) setFlagsFromAdd8(r AddResult[uint8]) {
	m.Regs.Flags.CF, m.Regs.Flags.ZF, m.Regs.Flags.SF, m.Regs.Flags.OF = r.CF, r.ZF, r.SF, r.OF
}
func (m *Machine) setFlagsFromLogic32(r LogicResult[uint32]) {
	m.Regs.Flags.CF, m.Regs.Flags.OF = false, false
	m.Regs.Flags.ZF, m.Regs.Flags.SF = r.ZF, r.SF
}
func (m *Machine) setFlagsFromLogic16(r LogicResult[uint16]) {
	m.Regs.Flags.CF, m.Regs.Flags.OF = false, false
	m.Regs.Flags.ZF, m.Regs.Flags.SF = r.ZF, r.SF
}
func (m *Machine) setFlagsFromLogic8(r LogicResult[uint8]) {
	m.Regs.Flags.CF, m.Regs.Flags.OF = false, false
	m.Regs.Flags.ZF, m.Regs.Flags.SF = r.ZF, r.SF
}
func (m *Machine) setFlagsFromShift32(r ShiftResult[uint32]) {
	m.Regs.Flags.CF, m.Regs.Flags.ZF, m.Regs.Flags.SF, m.Regs.Flags.OF = r.CF, r.ZF, r.SF, r.OF
}
