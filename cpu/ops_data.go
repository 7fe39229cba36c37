package cpu

import "golang.org/x/arch/x86/x86asm"

// opMov handles the MOV family across all three widths; width is taken
// from the destination argument per the decoded instruction's own
// register class, since x86asm already disambiguates AL/AX/EAX forms.
func (m *Machine) opMov(inst *x86asm.Inst) error {
	dst, src := inst.Args[0], inst.Args[1]
	switch argWidth(dst) {
	case 8:
		m.writeArg8(dst, m.readArg8(src))
	case 16:
		m.writeArg16(dst, m.readArg16(src))
	default:
		m.writeArg32(dst, m.readArg32(src))
	}
	return nil
}

// srcOperandWidth reports the width in bits of a MOVZX/MOVSX source
// operand: a register's own width, or the decoded memory-operand size
// (inst.MemBytes, in bytes) for a memory source.
func srcOperandWidth(inst *x86asm.Inst, src x86asm.Arg) int {
	if reg, ok := src.(x86asm.Reg); ok {
		return regWidth(reg)
	}
	return inst.MemBytes * 8
}

// opMovzx zero-extends an 8- or 16-bit source into a 32- or 16-bit
// destination.
func (m *Machine) opMovzx(inst *x86asm.Inst) error {
	dst, src := inst.Args[0], inst.Args[1]
	var v uint32
	if srcOperandWidth(inst, src) == 8 {
		v = uint32(m.readArg8(src))
	} else {
		v = uint32(m.readArg16(src))
	}
	if argWidth(dst) == 16 {
		m.writeArg16(dst, uint16(v))
	} else {
		m.writeArg32(dst, v)
	}
	return nil
}

// opMovsx sign-extends an 8- or 16-bit source into a 32- or 16-bit
// destination.
func (m *Machine) opMovsx(inst *x86asm.Inst) error {
	dst, src := inst.Args[0], inst.Args[1]
	var v int32
	if srcOperandWidth(inst, src) == 8 {
		v = int32(int8(m.readArg8(src)))
	} else {
		v = int32(int16(m.readArg16(src)))
	}
	if argWidth(dst) == 16 {
		m.writeArg16(dst, uint16(int16(v)))
	} else {
		m.writeArg32(dst, uint32(v))
	}
	return nil
}

// opLea computes the effective address of a memory operand without
// dereferencing it and stores it into a GP register.
func (m *Machine) opLea(inst *x86asm.Inst) error {
	dst := inst.Args[0].(x86asm.Reg)
	mem, ok := inst.Args[1].(x86asm.Mem)
	if !ok {
		return &UnimplementedInstructionError{Opcode: "lea-nonmem", EIP: m.Regs.EIP}
	}
	reg, _ := x86RegTo32(dst)
	m.Regs.Set32(reg, m.effAddr(mem))
	return nil
}

// opPush pushes a 32-bit value (register, memory, or immediate) onto the
// guest stack.
func (m *Machine) opPush(inst *x86asm.Inst) error {
	m.Push(m.readArg32(inst.Args[0]))
	return nil
}

func (m *Machine) opPop(inst *x86asm.Inst) error {
	m.writeArg32(inst.Args[0], m.Pop())
	return nil
}

// opPushad pushes all eight GP registers in the fixed SDM order, using the
// value of esp captured before any of the pushes (matching real PUSHAD
// semantics: the pushed esp is the pre-instruction value).
func (m *Machine) opPushad() error {
	orig := m.Regs.Get32(ESP)
	order := []GPReg{EAX, ECX, EDX, EBX, ESP, EBP, ESI, EDI}
	for _, r := range order {
		if r == ESP {
			m.Push(orig)
		} else {
			m.Push(m.Regs.Get32(r))
		}
	}
	return nil
}

// opPopad restores all eight GP registers in reverse order, discarding the
// stacked esp value per the SDM (esp is recomputed from the actual pops).
func (m *Machine) opPopad() error {
	order := []GPReg{EDI, ESI, EBP, ESP, EBX, EDX, ECX, EAX}
	for _, r := range order {
		v := m.Pop()
		if r != ESP {
			m.Regs.Set32(r, v)
		}
	}
	return nil
}

// opEnter implements the ENTER frame-setup instruction for nesting level 0
// only, which is the only form any real Win32 binary emits.
func (m *Machine) opEnter(inst *x86asm.Inst) error {
	size := uint32(inst.Args[0].(x86asm.Imm))
	m.Push(m.Regs.Get32(EBP))
	frame := m.Regs.Get32(ESP)
	m.Regs.Set32(EBP, frame)
	m.Regs.Set32(ESP, frame-size)
	return nil
}

func (m *Machine) opLeave() error {
	ebp := m.Regs.Get32(EBP)
	m.Regs.Set32(ESP, ebp)
	m.Regs.Set32(EBP, m.Pop())
	return nil
}
