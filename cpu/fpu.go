package cpu

import (
	"math"

	"golang.org/x/arch/x86/x86asm"
)

// stReg maps a decoded x86asm.Reg naming one of the eight FPU stack slots
// (F0..F7) to its ST(i) index; ok is false for any other register.
func stReg(r x86asm.Reg) (int, bool) {
	switch r {
	case x86asm.F0:
		return 0, true
	case x86asm.F1:
		return 1, true
	case x86asm.F2:
		return 2, true
	case x86asm.F3:
		return 3, true
	case x86asm.F4:
		return 4, true
	case x86asm.F5:
		return 5, true
	case x86asm.F6:
		return 6, true
	case x86asm.F7:
		return 7, true
	}
	return 0, false
}

// readFPUMem reads a floating-point memory operand at the width implied
// by the decoded instruction's data size (32-bit single or 64-bit double;
// this emulator does not model 80-bit extended loads/stores distinctly
// from double precision, per spec.md's simplification of the FPU model).
func (m *Machine) readFPUMem(mem x86asm.Mem, dataSize int) float64 {
	addr := m.effAddr(mem)
	if dataSize == 64 {
		bits := uint64(m.ReadU32(addr)) | uint64(m.ReadU32(addr+4))<<32
		return math.Float64frombits(bits)
	}
	return float64(math.Float32frombits(m.ReadU32(addr)))
}

func (m *Machine) writeFPUMem(mem x86asm.Mem, v float64, dataSize int) {
	addr := m.effAddr(mem)
	if dataSize == 64 {
		bits := math.Float64bits(v)
		m.WriteU32(addr, uint32(bits))
		m.WriteU32(addr+4, uint32(bits>>32))
		return
	}
	m.WriteU32(addr, math.Float32bits(float32(v)))
}

func (m *Machine) execFPU(inst *x86asm.Inst) error {
	fpu := &m.Regs.FPU
	switch inst.Op {
	case x86asm.FLDZ:
		fpu.Push(0)
	case x86asm.FLD1:
		fpu.Push(1)

	case x86asm.FLD:
		switch src := inst.Args[0].(type) {
		case x86asm.Mem:
			fpu.Push(m.readFPUMem(src, inst.DataSize))
		case x86asm.Reg:
			i, _ := stReg(src)
			fpu.Push(fpu.GetST(i))
		}

	case x86asm.FILD:
		mem, ok := inst.Args[0].(x86asm.Mem)
		if !ok {
			return &UnimplementedInstructionError{Opcode: "fild-nonmem", EIP: m.Regs.EIP}
		}
		addr := m.effAddr(mem)
		fpu.Push(float64(int32(m.ReadU32(addr))))

	case x86asm.FST, x86asm.FSTP:
		switch dst := inst.Args[0].(type) {
		case x86asm.Mem:
			m.writeFPUMem(dst, fpu.GetST(0), inst.DataSize)
		case x86asm.Reg:
			i, _ := stReg(dst)
			fpu.SetST(i, fpu.GetST(0))
		}
		if inst.Op == x86asm.FSTP {
			fpu.Pop()
		}

	case x86asm.FISTP:
		mem, ok := inst.Args[0].(x86asm.Mem)
		if !ok {
			return &UnimplementedInstructionError{Opcode: "fistp-nonmem", EIP: m.Regs.EIP}
		}
		addr := m.effAddr(mem)
		m.WriteU32(addr, uint32(int32(math.Round(fpu.GetST(0)))))
		fpu.Pop()

	case x86asm.FADD, x86asm.FSUB, x86asm.FMUL, x86asm.FDIV:
		m.execFPUArith(inst)

	case x86asm.FCOM, x86asm.FCOMP:
		var other float64
		switch src := inst.Args[0].(type) {
		case x86asm.Mem:
			other = m.readFPUMem(src, inst.DataSize)
		case x86asm.Reg:
			i, _ := stReg(src)
			other = fpu.GetST(i)
		}
		m.setFPUCompare(fpu.GetST(0), other)
		if inst.Op == x86asm.FCOMP {
			fpu.Pop()
		}

	case x86asm.FCOMI:
		reg := inst.Args[0].(x86asm.Reg)
		i, _ := stReg(reg)
		other := fpu.GetST(i)
		top := fpu.GetST(0)
		m.Regs.Flags.ZF = top == other
		m.Regs.Flags.CF = top < other

	case x86asm.FCHS:
		fpu.SetST(0, -fpu.GetST(0))
	case x86asm.FABS:
		fpu.SetST(0, math.Abs(fpu.GetST(0)))

	case x86asm.FXCH:
		i := 1
		if numArgs(inst) > 0 {
			if reg, ok := inst.Args[0].(x86asm.Reg); ok {
				i, _ = stReg(reg)
			}
		}
		fpu.Swap(0, i)

	case x86asm.FLDCW:
		mem, ok := inst.Args[0].(x86asm.Mem)
		if !ok {
			return &UnimplementedInstructionError{Opcode: "fldcw-nonmem", EIP: m.Regs.EIP}
		}
		fpu.ControlWord = m.ReadU16(m.effAddr(mem))
	case x86asm.FNSTCW:
		mem, ok := inst.Args[0].(x86asm.Mem)
		if !ok {
			return &UnimplementedInstructionError{Opcode: "fnstcw-nonmem", EIP: m.Regs.EIP}
		}
		m.WriteU16(m.effAddr(mem), fpu.ControlWord)

	default:
		return &UnimplementedInstructionError{Opcode: inst.Op.String(), EIP: m.Regs.EIP}
	}
	return nil
}

func (m *Machine) execFPUArith(inst *x86asm.Inst) {
	fpu := &m.Regs.FPU
	var operand float64
	last := inst.Args[0]
	if n := numArgs(inst); n > 1 {
		last = inst.Args[n-1]
	}
	switch src := last.(type) {
	case x86asm.Mem:
		operand = m.readFPUMem(src, inst.DataSize)
	case x86asm.Reg:
		i, _ := stReg(src)
		operand = fpu.GetST(i)
	}
	top := fpu.GetST(0)
	switch inst.Op {
	case x86asm.FADD:
		fpu.SetST(0, top+operand)
	case x86asm.FSUB:
		fpu.SetST(0, top-operand)
	case x86asm.FMUL:
		fpu.SetST(0, top*operand)
	case x86asm.FDIV:
		fpu.SetST(0, top/operand)
	}
}

func (m *Machine) setFPUCompare(a, b float64) {
	fpu := &m.Regs.FPU
	fpu.C0, fpu.C2, fpu.C3 = false, false, false
	switch {
	case math.IsNaN(a) || math.IsNaN(b):
		fpu.C0, fpu.C2, fpu.C3 = true, true, true
	case a < b:
		fpu.C0 = true
	case a == b:
		fpu.C3 = true
	}
}
