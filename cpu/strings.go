package cpu

import "golang.org/x/arch/x86/x86asm"

// stringWidth returns the per-iteration step size in bytes for a string op
// opcode, and the bit width for reads that need it (scas/cmps/lods).
func stringWidth(op x86asm.Op) uint32 {
	switch op {
	case x86asm.MOVSB, x86asm.STOSB, x86asm.CMPSB, x86asm.SCASB, x86asm.LODSB:
		return 1
	case x86asm.MOVSW, x86asm.STOSW, x86asm.CMPSW, x86asm.SCASW, x86asm.LODSW:
		return 2
	default:
		return 4
	}
}

// execStringOp implements MOVS/STOS/CMPS/SCAS/LODS, honoring the DF flag
// for step direction and the rep/repe/repne prefixes for repetition, per
// spec.md §4.4. repe/repne terminate early on the zero flag in addition to
// the ecx-exhaustion condition that plain rep alone checks.
func (m *Machine) execStringOp(inst *x86asm.Inst, origEIP uint32) error {
	width := stringWidth(inst.Op)
	step := int32(width)
	if m.Regs.Flags.DF {
		step = -step
	}

	rep, repCC := stringRepKind(inst)
	if !rep {
		m.stepStringOnce(inst.Op, width, step)
		return nil
	}

	for {
		ecx := m.Regs.Get32(ECX)
		if ecx == 0 {
			break
		}
		m.stepStringOnce(inst.Op, width, step)
		ecx--
		m.Regs.Set32(ECX, ecx)
		if ecx == 0 {
			break
		}
		switch repCC {
		case repE:
			if !m.Regs.Flags.ZF {
				return nil
			}
		case repNE:
			if m.Regs.Flags.ZF {
				return nil
			}
		}
	}
	return nil
}

type repCond int

const (
	repPlain repCond = iota
	repE
	repNE
)

func stringRepKind(inst *x86asm.Inst) (bool, repCond) {
	for _, p := range inst.Prefix {
		switch p & 0xff {
		case x86asm.PrefixREP:
			switch inst.Op {
			case x86asm.CMPSB, x86asm.CMPSW, x86asm.CMPSD, x86asm.SCASB, x86asm.SCASW, x86asm.SCASD:
				return true, repE
			default:
				return true, repPlain
			}
		case x86asm.PrefixREPN:
			return true, repNE
		}
	}
	return false, repPlain
}

func (m *Machine) stepStringOnce(op x86asm.Op, width uint32, step int32) {
	esi, edi := m.Regs.Get32(ESI), m.Regs.Get32(EDI)
	switch op {
	case x86asm.MOVSB, x86asm.MOVSW, x86asm.MOVSD:
		switch width {
		case 1:
			m.WriteU8(edi, m.ReadU8(esi))
		case 2:
			m.WriteU16(edi, m.ReadU16(esi))
		default:
			m.WriteU32(edi, m.ReadU32(esi))
		}
		m.Regs.Set32(ESI, uint32(int32(esi)+step))
		m.Regs.Set32(EDI, uint32(int32(edi)+step))

	case x86asm.STOSB, x86asm.STOSW, x86asm.STOSD:
		switch width {
		case 1:
			m.WriteU8(edi, m.Regs.Get8(alReg))
		case 2:
			m.WriteU16(edi, m.Regs.Get16(EAX))
		default:
			m.WriteU32(edi, m.Regs.Get32(EAX))
		}
		m.Regs.Set32(EDI, uint32(int32(edi)+step))

	case x86asm.LODSB, x86asm.LODSW, x86asm.LODSD:
		switch width {
		case 1:
			m.Regs.Set8(alReg, m.ReadU8(esi))
		case 2:
			m.Regs.Set16(EAX, m.ReadU16(esi))
		default:
			m.Regs.Set32(EAX, m.ReadU32(esi))
		}
		m.Regs.Set32(ESI, uint32(int32(esi)+step))

	case x86asm.CMPSB, x86asm.CMPSW, x86asm.CMPSD:
		switch width {
		case 1:
			r := Sub(m.ReadU8(esi), m.ReadU8(edi))
			m.setFlagsFromAdd8(r)
		case 2:
			r := Sub(m.ReadU16(esi), m.ReadU16(edi))
			m.setFlagsFromAdd16(r)
		default:
			r := Sub(m.ReadU32(esi), m.ReadU32(edi))
			m.setFlagsFromAdd32(r)
		}
		m.Regs.Set32(ESI, uint32(int32(esi)+step))
		m.Regs.Set32(EDI, uint32(int32(edi)+step))

	case x86asm.SCASB, x86asm.SCASW, x86asm.SCASD:
		switch width {
		case 1:
			r := Sub(m.Regs.Get8(alReg), m.ReadU8(edi))
			m.setFlagsFromAdd8(r)
		case 2:
			r := Sub(m.Regs.Get16(EAX), m.ReadU16(edi))
			m.setFlagsFromAdd16(r)
		default:
			r := Sub(m.Regs.Get32(EAX), m.ReadU32(edi))
			m.setFlagsFromAdd32(r)
		}
		m.Regs.Set32(EDI, uint32(int32(edi)+step))
	}
}
