package cpu

import (
	"encoding/binary"
	"fmt"
	"log"
	"os"
)

// Logger is the ambient diagnostic sink for warnings that aren't fatal
// errors (stack-reserve clamping, "symbol recognized but shim not
// implemented"), in the teacher's spirit of low-ceremony logging but
// routed through the standard library's log package the way
// original_source's log::info!/log::warn! calls are, rather than bare
// fmt.Println calls sprinkled through the core.
var Logger = log.New(os.Stderr, "winterp: ", log.LstdFlags)

// HostHandler is a function over a Machine with no further arguments; by
// stdcall-shim convention it pops its own arguments off the guest stack and
// writes its return value into eax (or edx:eax for 64-bit returns).
type HostHandler func(m *Machine)

// ImportEntry records whether a recognized IAT slot has an implemented
// shim. A nil HostHandler records that the symbol was recognized by the
// loader but the shim is not implemented; executing such a slot logs once
// and continues per spec.md §4.5, popping Arity argument words blindly so
// esp ends up where the real shim would have left it.
type ImportEntry struct {
	DLL     string
	Symbol  string
	Handler HostHandler
	Arity   int
}

// ImportTable maps guest addresses appearing in the IAT to host handler
// functions, consulted on every indirect call.
type ImportTable struct {
	entries map[uint32]*ImportEntry
	warned  map[uint32]bool
}

func NewImportTable() *ImportTable {
	return &ImportTable{
		entries: make(map[uint32]*ImportEntry),
		warned:  make(map[uint32]bool),
	}
}

func (t *ImportTable) Bind(addr uint32, dll, symbol string, handler HostHandler, arity int) {
	t.entries[addr] = &ImportEntry{DLL: dll, Symbol: symbol, Handler: handler, Arity: arity}
}

func (t *ImportTable) Lookup(addr uint32) (*ImportEntry, bool) {
	e, ok := t.entries[addr]
	return e, ok
}

func (t *ImportTable) warnOnce(addr uint32, e *ImportEntry) {
	if t.warned[addr] {
		return
	}
	t.warned[addr] = true
	Logger.Printf("unimplemented import %s!%s at %#x, continuing with eax=0", e.DLL, e.Symbol, addr)
}

// StepKind classifies the outcome of one Machine.Step call.
type StepKind int

const (
	Continued StepKind = iota
	Halted
	Errored
	// Budget marks a forced stop imposed by the driver's instruction
	// budget (SPEC_FULL.md §3.1's -budget flag), not the guest program
	// itself; Step never produces this kind on its own.
	Budget
)

// StepResult is the tagged outcome spec.md §6 requires, so the driver can
// branch on Kind without string-matching an error.
type StepResult struct {
	Kind  StepKind
	Addr  uint32
	Err   error
}

// Machine is the aggregate runtime state: guest memory, register file,
// address space, import table, and opaque per-DLL host state.
type Machine struct {
	mem   []byte
	Regs  *Registers
	Space *AddressSpace
	Imports *ImportTable

	// Opaque per-DLL state accessible to shims (window handles, heap
	// bookkeeping, last-error code, open file handles, ...). Declared as
	// `any` here; each winapi sub-package type-asserts its own state out
	// of it the way the original's winapi::State aggregate groups
	// per-DLL state structs.
	HostState *HostDLLState

	ImageBase   uint32
	EntryPoint  uint32

	halted bool
}

// HostDLLState is a generic per-DLL state container: the cpu package has
// no business knowing what kernel32 or user32 keep in theirs, so each slot
// is typed `any` and each winapi sub-package owns the type assertion for
// its own slot, the Go analogue of original_source/win32/src/winapi/mod.rs's
// State struct aggregating per-DLL state structs.
type HostDLLState struct {
	Kernel32 any
	User32   any
	GDI32    any
	DDraw    any
}

// NewMachine allocates a Machine with memSize bytes of guest memory,
// zero-filled, and a fresh register file/address space/import table.
func NewMachine(memSize uint32) *Machine {
	return &Machine{
		mem:       make([]byte, memSize),
		Regs:      NewRegisters(),
		Space:     NewAddressSpace(),
		Imports:   NewImportTable(),
		HostState: &HostDLLState{},
	}
}

// Mem exposes the flat guest memory buffer to external observers (spec.md
// §6's Machine::mem() accessor). Callers must not retain the slice across
// a future Grow.
func (m *Machine) Mem() []byte { return m.mem }

// Grow extends guest memory to at least newSize bytes, zero-filling the
// new region. Used by the loader when allocating the stack beyond the
// image's reported size_of_image.
func (m *Machine) Grow(newSize uint32) {
	if uint32(len(m.mem)) >= newSize {
		return
	}
	grown := make([]byte, newSize)
	copy(grown, m.mem)
	m.mem = grown
}

func (m *Machine) checkBounds(addr, width uint32) error {
	if addr < NullPointerRegionSize {
		return &BadMemoryAccessError{Addr: addr, EIP: m.Regs.EIP}
	}
	if uint64(addr)+uint64(width) > uint64(len(m.mem)) {
		return &BadMemoryAccessError{Addr: addr, EIP: m.Regs.EIP}
	}
	return nil
}

// ReadU8/ReadU16/ReadU32 read little-endian values from guest memory.
// They index the memory slice directly and do not check the null-pointer
// region: an address past the end of guest memory panics instead of
// producing a BadMemoryAccessError. Driver.Run and Driver.RunDebug recover
// such a panic and log it (see run.go), in the teacher's
// getDefaultRecoverFuncForVM idiom from vm/run.go.
func (m *Machine) ReadU8(addr uint32) uint8  { return m.mem[addr] }
func (m *Machine) ReadU16(addr uint32) uint16 { return binary.LittleEndian.Uint16(m.mem[addr:]) }
func (m *Machine) ReadU32(addr uint32) uint32 { return binary.LittleEndian.Uint32(m.mem[addr:]) }

func (m *Machine) WriteU8(addr uint32, v uint8) { m.mem[addr] = v }
func (m *Machine) WriteU16(addr uint32, v uint16) {
	binary.LittleEndian.PutUint16(m.mem[addr:], v)
}
func (m *Machine) WriteU32(addr uint32, v uint32) {
	binary.LittleEndian.PutUint32(m.mem[addr:], v)
}

// ReadCString decodes a NUL-terminated string starting at ptr. Per
// spec.md §4.5, the returned string must not be retained past the
// caller's own return (it is a fresh copy here, so that constraint is
// conservative rather than load-bearing, but shim authors should still
// treat it as a borrow).
func (m *Machine) ReadCString(ptr uint32) string {
	end := ptr
	for end < uint32(len(m.mem)) && m.mem[end] != 0 {
		end++
	}
	return string(m.mem[ptr:end])
}

// Push/Pop move 32-bit values across the guest stack at esp, matching the
// teacher's pushStack/popStack pair (vm/vm.go) generalized from the
// teacher's software stack to the x86 esp-relative one.
func (m *Machine) Push(v uint32) {
	esp := m.Regs.Get32(ESP) - 4
	m.Regs.Set32(ESP, esp)
	m.WriteU32(esp, v)
}

func (m *Machine) Pop() uint32 {
	esp := m.Regs.Get32(ESP)
	v := m.ReadU32(esp)
	m.Regs.Set32(ESP, esp+4)
	return v
}

// PopArgsBlindly consumes n 32-bit stdcall argument words without
// interpreting them, for the None-handler path of spec.md §4.5: "arguments
// popped blindly as u32s (the shim generator encodes the arity)."
func (m *Machine) PopArgsBlindly(n int) {
	for i := 0; i < n; i++ {
		m.Pop()
	}
}

// Halt marks the machine as finished; the next Step call returns a Halted
// result without decoding further instructions. Shims that terminate the
// guest process (ExitProcess) call this instead of returning an error,
// since reaching it is success, not a fault.
func (m *Machine) Halt() { m.halted = true }

func (m *Machine) String() string {
	return fmt.Sprintf("eip=%#x esp=%#x eax=%#x", m.Regs.EIP, m.Regs.Get32(ESP), m.Regs.Get32(EAX))
}
