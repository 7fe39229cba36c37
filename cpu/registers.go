package cpu

import "golang.org/x/arch/x86/x86asm"

// GPReg is a dense index into the eight general-purpose registers, laid out
// in the same order the opcode's register enumeration uses: EAX=0,...,EDI=7.
// The Registers struct's general-purpose words MUST be stored in exactly
// this order so get32/set32 reduce to a single indexed load/store.
type GPReg int

const (
	EAX GPReg = iota
	ECX
	EDX
	EBX
	ESP
	EBP
	ESI
	EDI
	numGPRegs
)

// SegReg indexes the six 16-bit segment selectors.
type SegReg int

const (
	ES SegReg = iota
	CS
	SS
	DS
	FS
	GS
	numSegRegs
)

// Flags restricted to the five bits this emulator models, per spec.
type Flags struct {
	CF bool
	ZF bool
	SF bool
	DF bool
	OF bool
}

// Distinguishable sentinel words for registers the loader never
// initializes, so uninitialized reads are obvious rather than silently
// reading zero. One per GP register, indexed the same as the GP array.
var sentinelGPValues = [numGPRegs]uint32{
	EAX: 0xdeadbeea,
	ECX: 0xdeadbeec,
	EDX: 0xdeadbeed,
	EBX: 0xdeadbeeb,
	ESP: 0, // always set explicitly by the loader's stack allocation
	EBP: 0, // always set explicitly by the loader's stack allocation
	ESI: 0xdeadbe51,
	EDI: 0xdeadbed1,
}

// Registers is the full register file for one guest CPU core: general
// purpose, segment selectors, the synthetic fs_addr TEB base, eflags, the
// FPU stack, and the MMX register bank.
type Registers struct {
	gp  [numGPRegs]uint32
	seg [numSegRegs]uint16

	// Synthetic 32-bit base used whenever an instruction's memory operand
	// carries an fs: segment override, emulating Windows TEB-relative
	// accesses. All other segment prefixes are treated as zero-based.
	FSAddr uint32

	EIP uint32

	Flags Flags

	FPU FPUState
	MMX [8]uint64
}

// NewRegisters returns a register file with every GP register initialized
// to its distinguishable sentinel pattern; the loader overwrites esp/ebp
// once the stack is allocated.
func NewRegisters() *Registers {
	r := &Registers{}
	r.gp = sentinelGPValues
	r.FPU.top = 8 // empty
	return r
}

// Get32 / Set32 dispatch on the eight general-purpose registers using the
// dense GPReg index; the underlying array is laid out EAX..EDI so this is a
// single indexed load/store.
func (r *Registers) Get32(reg GPReg) uint32     { return r.gp[reg] }
func (r *Registers) Set32(reg GPReg, v uint32)  { r.gp[reg] = v }

// Get16 / Set16 address the low 16 bits of a GP register; Set16 preserves
// the high 16 bits.
func (r *Registers) Get16(reg GPReg) uint16 { return uint16(r.gp[reg]) }
func (r *Registers) Set16(reg GPReg, v uint16) {
	r.gp[reg] = (r.gp[reg] &^ 0xffff) | uint32(v)
}

// byteReg identifies one of the four low or four high 8-bit sub-registers.
type byteReg struct {
	gp   GPReg
	high bool
}

var (
	alReg = byteReg{EAX, false}
	clReg = byteReg{ECX, false}
	dlReg = byteReg{EDX, false}
	blReg = byteReg{EBX, false}
	ahReg = byteReg{EAX, true}
	chReg = byteReg{ECX, true}
	dhReg = byteReg{EDX, true}
	bhReg = byteReg{EBX, true}
)

// Get8 / Set8 handle both low bytes (AL,CL,DL,BL) and high bytes
// (AH,CH,DH,BH), preserving the bits they don't own.
func (r *Registers) Get8(b byteReg) uint8 {
	if b.high {
		return uint8(r.gp[b.gp] >> 8)
	}
	return uint8(r.gp[b.gp])
}

func (r *Registers) Set8(b byteReg, v uint8) {
	if b.high {
		r.gp[b.gp] = (r.gp[b.gp] &^ 0xff00) | (uint32(v) << 8)
	} else {
		r.gp[b.gp] = (r.gp[b.gp] &^ 0xff) | uint32(v)
	}
}

// GetSeg / SetSeg read and write the 16-bit segment selectors.
func (r *Registers) GetSeg(s SegReg) uint16    { return r.seg[s] }
func (r *Registers) SetSeg(s SegReg, v uint16) { r.seg[s] = v }

// x86RegTo32 maps a decoded x86asm.Reg operand of any GP width to the dense
// GPReg index it aliases.
func x86RegTo32(reg x86asm.Reg) (GPReg, bool) {
	switch reg {
	case x86asm.EAX, x86asm.AX, x86asm.AL, x86asm.AH:
		return EAX, true
	case x86asm.ECX, x86asm.CX, x86asm.CL, x86asm.CH:
		return ECX, true
	case x86asm.EDX, x86asm.DX, x86asm.DL, x86asm.DH:
		return EDX, true
	case x86asm.EBX, x86asm.BX, x86asm.BL, x86asm.BH:
		return EBX, true
	case x86asm.ESP, x86asm.SP:
		return ESP, true
	case x86asm.EBP, x86asm.BP:
		return EBP, true
	case x86asm.ESI, x86asm.SI:
		return ESI, true
	case x86asm.EDI, x86asm.DI:
		return EDI, true
	}
	return 0, false
}

// x86RegToByte maps a decoded x86asm.Reg operand that names an 8-bit
// sub-register to our internal byteReg.
func x86RegToByte(reg x86asm.Reg) (byteReg, bool) {
	switch reg {
	case x86asm.AL:
		return alReg, true
	case x86asm.CL:
		return clReg, true
	case x86asm.DL:
		return dlReg, true
	case x86asm.BL:
		return blReg, true
	case x86asm.AH:
		return ahReg, true
	case x86asm.CH:
		return chReg, true
	case x86asm.DH:
		return dhReg, true
	case x86asm.BH:
		return bhReg, true
	}
	return byteReg{}, false
}

func x86SegOf(reg x86asm.Reg) (SegReg, bool) {
	switch reg {
	case x86asm.ES:
		return ES, true
	case x86asm.CS:
		return CS, true
	case x86asm.SS:
		return SS, true
	case x86asm.DS:
		return DS, true
	case x86asm.FS:
		return FS, true
	case x86asm.GS:
		return GS, true
	}
	return 0, false
}

// regWidth reports whether an x86asm.Reg names an 8-, 16- or 32-bit GP
// sub-register.
func regWidth(reg x86asm.Reg) int {
	if _, ok := x86RegToByte(reg); ok {
		return 8
	}
	switch reg {
	case x86asm.AX, x86asm.CX, x86asm.DX, x86asm.BX, x86asm.SP, x86asm.BP, x86asm.SI, x86asm.DI:
		return 16
	}
	return 32
}

// FPUState models the eight-entry x87 stack with a movable top and status
// word. top starts at 8 for an empty stack; Push and Pop move it modulo 8,
// so after the first Push it stays in [0,7].
type FPUState struct {
	stack [8]float64
	top   int

	// Subset of the FPU status word this emulator tracks: the condition
	// code bits written by fcom/fcomp/fcomi live here instead of the full
	// SW, since nothing in this emulator reads any other status bit.
	C0, C1, C2, C3 bool

	ControlWord uint16
}

// STTop returns the current top-of-stack index: 8 before the first Push,
// otherwise in [0,7]. It does not distinguish an empty stack from a full one.
func (f *FPUState) STTop() int { return f.top }

// GetST indexes relative to the top: ST(0) is the current top of stack.
func (f *FPUState) GetST(i int) float64 {
	return f.stack[(f.top+i)&7]
}

func (f *FPUState) SetST(i int, v float64) {
	f.stack[(f.top+i)&7] = v
}

// Push decrements st_top (modulo 8) and stores v at the new top.
func (f *FPUState) Push(v float64) {
	f.top = (f.top - 1) & 7
	f.stack[f.top] = v
}

// Pop increments st_top (modulo 8) and returns the value that was on top.
func (f *FPUState) Pop() float64 {
	v := f.stack[f.top]
	f.top = (f.top + 1) & 7
	return v
}

// Swap exchanges two lanes relative to the current top.
func (f *FPUState) Swap(i, j int) {
	a, b := (f.top+i)&7, (f.top+j)&7
	f.stack[a], f.stack[b] = f.stack[b], f.stack[a]
}
