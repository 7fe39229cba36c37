package cpu

import "golang.org/x/arch/x86/x86asm"

// targetAddr resolves a branch/call argument to an absolute guest address.
// Relative targets decode as x86asm.Rel, already resolved by the decoder
// against the instruction's own length; register/memory targets are
// indirect calls/jumps and are read like any other 32-bit operand.
func (m *Machine) targetAddr(a x86asm.Arg, nextEIP uint32) uint32 {
	switch v := a.(type) {
	case x86asm.Rel:
		return uint32(int64(nextEIP) + int64(v))
	default:
		return m.readArg32(a)
	}
}

// opCall implements direct and indirect calls. An indirect call through a
// memory operand whose address is an IAT slot bound in the import table,
// or through a register holding a bound address, is an IAT call: per spec.md §9
// and original_source/win32/src/x86.rs's Call_rm32 arm, these do NOT push
// a return address — control returns to the host dispatcher which, after
// running the shim, resumes at the already-advanced eip. Every other call
// form pushes the return address (the post-instruction eip) before
// transferring control.
func (m *Machine) opCall(inst *x86asm.Inst) error {
	nextEIP := m.Regs.EIP
	target := m.targetAddr(inst.Args[0], nextEIP)

	switch v := inst.Args[0].(type) {
	case x86asm.Mem:
		slot := m.effAddr(v)
		if entry, ok := m.Imports.Lookup(slot); ok {
			return m.dispatchImport(entry, slot)
		}
	case x86asm.Reg:
		if entry, ok := m.Imports.Lookup(target); ok {
			return m.dispatchImport(entry, target)
		}
	}

	m.Push(nextEIP)
	m.Regs.EIP = target
	return nil
}

// dispatchImport invokes a bound host handler, or logs once and continues
// with eax=0 for a recognized-but-unimplemented symbol, per spec.md §4.5:
// arguments are popped blindly as u32s per the symbol's declared arity so
// esp ends up exactly where a real shim call would have left it.
func (m *Machine) dispatchImport(entry *ImportEntry, addr uint32) error {
	if entry.Handler == nil {
		m.Imports.warnOnce(addr, entry)
		m.PopArgsBlindly(entry.Arity)
		m.Regs.Set32(EAX, 0)
		return nil
	}
	entry.Handler(m)
	return nil
}

func (m *Machine) opRet(inst *x86asm.Inst) error {
	target := m.Pop()
	if numArgs(inst) > 0 {
		if imm, ok := inst.Args[0].(x86asm.Imm); ok {
			m.Regs.Set32(ESP, m.Regs.Get32(ESP)+uint32(imm))
		}
	}
	m.Regs.EIP = target
	return nil
}

func (m *Machine) opJmp(inst *x86asm.Inst) error {
	m.Regs.EIP = m.targetAddr(inst.Args[0], m.Regs.EIP)
	return nil
}

// opJcc evaluates one of the sixteen flag-based condition codes.
func (m *Machine) opJcc(inst *x86asm.Inst) error {
	if m.evalCondition(inst.Op) {
		m.Regs.EIP = m.targetAddr(inst.Args[0], m.Regs.EIP)
	}
	return nil
}

func (m *Machine) evalCondition(op x86asm.Op) bool {
	f := m.Regs.Flags
	switch op {
	case x86asm.JE:
		return f.ZF
	case x86asm.JNE:
		return !f.ZF
	case x86asm.JA:
		return !f.CF && !f.ZF
	case x86asm.JAE:
		return !f.CF
	case x86asm.JB:
		return f.CF
	case x86asm.JBE:
		return f.CF || f.ZF
	case x86asm.JG:
		return !f.ZF && f.SF == f.OF
	case x86asm.JGE:
		return f.SF == f.OF
	case x86asm.JL:
		return f.SF != f.OF
	case x86asm.JLE:
		return f.ZF || f.SF != f.OF
	case x86asm.JS:
		return f.SF
	case x86asm.JNS:
		return !f.SF
	case x86asm.JO:
		return f.OF
	case x86asm.JNO:
		return !f.OF
	// PF is not modeled (spec.md §3: "parity ... [is] not [modeled]") and is
	// treated as always 0, so jp (taken when PF=1) never branches and jnp
	// (taken when PF=0) always does.
	case x86asm.JP:
		return false
	case x86asm.JNP:
		return true
	}
	return false
}

// opLoop implements LOOP/LOOPE/LOOPNE: ecx is decremented first, then the
// branch taken per the loop variant's extra zero-flag condition.
func (m *Machine) opLoop(inst *x86asm.Inst) error {
	ecx := m.Regs.Get32(ECX) - 1
	m.Regs.Set32(ECX, ecx)
	take := ecx != 0
	switch inst.Op {
	case x86asm.LOOPE:
		take = take && m.Regs.Flags.ZF
	case x86asm.LOOPNE:
		take = take && !m.Regs.Flags.ZF
	}
	if take {
		m.Regs.EIP = m.targetAddr(inst.Args[0], m.Regs.EIP)
	}
	return nil
}
