// Package loader builds a runnable cpu.Machine from a 32-bit Windows PE
// executable image: it lays out sections in guest memory, allocates and
// clamps the stack, and resolves the import address table against the
// winapi dispatch tables.
package loader

import (
	"fmt"

	"github.com/saferwall/pe"

	"winterp/cpu"
)

// imageScnCntUninitializedData is IMAGE_SCN_CNT_UNINITIALIZED_DATA; PE
// sections carrying this characteristic (.bss) have no on-disk bytes and
// must not be copied from the file buffer.
const imageScnCntUninitializedData = 0x00000080

// maxReasonableStackReserve is the point past which this emulator no
// longer trusts the PE header's requested stack size and substitutes a
// small fixed reserve instead, per spec.md's stack-clamp rule (grounded on
// original_source/win32/src/windows.rs::load_exe's "Zig reserves 16mb
// stacks, just truncate for now" comment).
const maxReasonableStackReserve = 1 << 20

// clampedStackSize is substituted whenever the requested reserve exceeds
// maxReasonableStackReserve.
const clampedStackSize = 32 << 10

// Resolver binds a DLL/symbol pair to a host handler and the symbol's
// declared stdcall arity (the number of 32-bit argument words a call to it
// pops), used for the None-handler blind-pop path of spec.md §4.5 even when
// no shim is implemented. The winapi package supplies the concrete
// implementation, kept decoupled here so loader doesn't import every
// winapi sub-package directly.
type Resolver func(dll, symbol string) (handler cpu.HostHandler, arity int)

// Load parses a PE32 executable image from buf and returns a Machine whose
// memory, registers, and import table are ready to run from EntryPoint.
func Load(buf []byte, resolve Resolver) (*cpu.Machine, error) {
	img, err := pe.NewBytes(buf, &pe.Options{Fast: false})
	if err != nil {
		return nil, &cpu.MalformedImageError{Reason: fmt.Sprintf("parse: %v", err)}
	}
	if err := img.Parse(); err != nil {
		return nil, &cpu.MalformedImageError{Reason: fmt.Sprintf("parse: %v", err)}
	}

	if img.NtHeader.FileHeader.Machine != pe.ImageFileMachineI386 {
		return nil, &cpu.MalformedImageError{Reason: fmt.Sprintf("unsupported machine type %s, only IMAGE_FILE_MACHINE_I386 is supported", img.NtHeader.FileHeader.Machine)}
	}

	opt, ok := img.NtHeader.OptionalHeader.(pe.ImageOptionalHeader32)
	if !ok {
		return nil, &cpu.MalformedImageError{Reason: "not a PE32 (32-bit) image"}
	}

	base := opt.ImageBase
	m := cpu.NewMachine(base + opt.SizeOfImage)
	m.ImageBase = base

	for _, sec := range img.Sections {
		dst := base + sec.Header.VirtualAddress
		size := sec.Header.SizeOfRawData
		srcOff := sec.Header.PointerToRawData

		if sec.Header.Characteristics&imageScnCntUninitializedData == 0 {
			if uint64(srcOff)+uint64(size) > uint64(len(buf)) {
				return nil, &cpu.MalformedImageError{Reason: fmt.Sprintf("section %s raw data out of file bounds", sec.String())}
			}
			copy(m.Mem()[dst:dst+size], buf[srcOff:srcOff+size])
		}

		if err := m.Space.AddMapping(cpu.Mapping{
			Addr: dst,
			Size: size,
			Desc: fmt.Sprintf("%s (%#x)", sec.String(), sec.Header.Characteristics),
		}); err != nil {
			return nil, &cpu.MalformedImageError{Reason: err.Error()}
		}
	}

	stackSize := opt.SizeOfStackReserve
	if stackSize > maxReasonableStackReserve {
		cpu.Logger.Printf("requested %dmb stack reserve, using 32kb instead", stackSize/(1<<20))
		stackSize = clampedStackSize
	}
	stack, err := m.Space.Alloc(uint32(stackSize), "stack")
	if err != nil {
		return nil, &cpu.MalformedImageError{Reason: fmt.Sprintf("stack allocation: %v", err)}
	}
	m.Grow(stack.Addr + stack.Size)
	stackTop := stack.Addr + stack.Size - 4
	m.Regs.Set32(cpu.ESP, stackTop)
	m.Regs.Set32(cpu.EBP, stackTop)

	importDir := opt.DataDirectory[1]
	if importDir.Size > 0 {
		imports, err := parseImportDirectory(m.Mem(), base, importDir.VirtualAddress, importDir.Size)
		if err != nil {
			return nil, &cpu.MalformedImageError{Reason: fmt.Sprintf("imports: %v", err)}
		}
		for _, imp := range imports {
			handler, arity := resolve(imp.DLL, imp.Symbol)
			m.Imports.Bind(imp.IATAddr, imp.DLL, imp.Symbol, handler, arity)
		}
	}

	m.EntryPoint = base + opt.AddressOfEntryPoint
	m.Regs.EIP = m.EntryPoint

	return m, nil
}
