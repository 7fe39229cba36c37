package cpu

import "golang.org/x/arch/x86/x86asm"

// mmxReg maps a decoded x86asm.Reg naming one of the eight MMX registers
// (M0..M7) to its index into Registers.MMX.
func mmxReg(r x86asm.Reg) (int, bool) {
	switch r {
	case x86asm.M0:
		return 0, true
	case x86asm.M1:
		return 1, true
	case x86asm.M2:
		return 2, true
	case x86asm.M3:
		return 3, true
	case x86asm.M4:
		return 4, true
	case x86asm.M5:
		return 5, true
	case x86asm.M6:
		return 6, true
	case x86asm.M7:
		return 7, true
	}
	return 0, false
}

// readMMXArg resolves an MMX source operand, which may be another MMX
// register, a 64-bit memory location, or (for MOVD) a 32-bit GP
// register/memory zero-extended into the low lane.
func (m *Machine) readMMXArg(a x86asm.Arg, op x86asm.Op) uint64 {
	switch v := a.(type) {
	case x86asm.Reg:
		if i, ok := mmxReg(v); ok {
			return m.Regs.MMX[i]
		}
		if op == x86asm.MOVD {
			return uint64(m.readArg32(v))
		}
	case x86asm.Mem:
		addr := m.effAddr(v)
		if op == x86asm.MOVD {
			return uint64(m.ReadU32(addr))
		}
		lo := uint64(m.ReadU32(addr))
		hi := uint64(m.ReadU32(addr + 4))
		return lo | hi<<32
	}
	return 0
}

func (m *Machine) writeMMXArg(a x86asm.Arg, v uint64, op x86asm.Op) {
	switch d := a.(type) {
	case x86asm.Reg:
		if i, ok := mmxReg(d); ok {
			m.Regs.MMX[i] = v
			return
		}
		if op == x86asm.MOVD {
			reg, _ := x86RegTo32(d)
			m.Regs.Set32(reg, uint32(v))
		}
	case x86asm.Mem:
		addr := m.effAddr(d)
		if op == x86asm.MOVD {
			m.WriteU32(addr, uint32(v))
			return
		}
		m.WriteU32(addr, uint32(v))
		m.WriteU32(addr+4, uint32(v>>32))
	}
}

// execMMX implements a representative subset of the MMX integer SIMD
// instructions: move, packed add/sub/and/or/xor/compare-equal on 32-bit
// lanes, and packed shifts. Each 64-bit value is treated as two 32-bit
// dword lanes, matching the dword-granularity opcodes actually named
// (PADDD, PSUBD, ...).
func (m *Machine) execMMX(inst *x86asm.Inst) error {
	switch inst.Op {
	case x86asm.MOVQ, x86asm.MOVD:
		v := m.readMMXArg(inst.Args[1], inst.Op)
		m.writeMMXArg(inst.Args[0], v, inst.Op)
		return nil
	}

	dst := inst.Args[0]
	x := m.readMMXArg(dst, inst.Op)
	y := m.readMMXArg(inst.Args[1], inst.Op)
	xlo, xhi := uint32(x), uint32(x>>32)
	ylo, yhi := uint32(y), uint32(y>>32)

	var rlo, rhi uint32
	switch inst.Op {
	case x86asm.PADDD:
		rlo, rhi = xlo+ylo, xhi+yhi
	case x86asm.PSUBD:
		rlo, rhi = xlo-ylo, xhi-yhi
	case x86asm.PAND:
		rlo, rhi = xlo&ylo, xhi&yhi
	case x86asm.POR:
		rlo, rhi = xlo|ylo, xhi|yhi
	case x86asm.PXOR:
		rlo, rhi = xlo^ylo, xhi^yhi
	case x86asm.PCMPEQD:
		rlo, rhi = eqMask(xlo, ylo), eqMask(xhi, yhi)
	case x86asm.PSRLD:
		count := uint(y)
		rlo, rhi = xlo>>count, xhi>>count
	case x86asm.PSLLD:
		count := uint(y)
		rlo, rhi = xlo<<count, xhi<<count
	default:
		return &UnimplementedInstructionError{Opcode: inst.Op.String(), EIP: m.Regs.EIP}
	}

	m.writeMMXArg(dst, uint64(rlo)|uint64(rhi)<<32, inst.Op)
	return nil
}

func eqMask(a, b uint32) uint32 {
	if a == b {
		return 0xffffffff
	}
	return 0
}
