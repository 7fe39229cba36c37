// Package kernel32 implements stdcall shims for a representative subset of
// kernel32.dll: process lifetime, the heap, standard handles, and file
// primitives. Each exported shim follows the same pattern as
// original_source/win32/src/winapi/mod.rs's winapi_shims! macro: pop typed
// stdcall arguments off the guest stack, perform the host-side effect, and
// write the return value into eax.
package kernel32

import (
	"winterp/cpu"
)

// State holds kernel32's per-machine bookkeeping: the simulated heap
// cursor, the last-error code, and the table of open pseudo-handles.
type State struct {
	lastError  uint32
	heapCursor uint32
	nextHandle uint32
	handles    map[uint32]string
}

func NewState() *State {
	return &State{
		heapCursor: 0x20000000,
		nextHandle: 0x1000,
		handles:    make(map[uint32]string),
	}
}

func state(m *cpu.Machine) *State {
	if m.HostState.Kernel32 == nil {
		m.HostState.Kernel32 = NewState()
	}
	return m.HostState.Kernel32.(*State)
}

// Standard handle identifiers as passed to GetStdHandle: STD_INPUT_HANDLE
// (-10), STD_OUTPUT_HANDLE (-11), STD_ERROR_HANDLE (-12), represented as
// their 32-bit two's-complement encoding.
const (
	stdInputHandle  = 0xfffffff6
	stdOutputHandle = 0xfffffff5
	stdErrorHandle  = 0xfffffff4
)

func getLastError(m *cpu.Machine) {
	m.Regs.Set32(cpu.EAX, state(m).lastError)
}

func setLastError(m *cpu.Machine) {
	code := m.Pop()
	state(m).lastError = code
}

// exitProcess halts the machine entirely; the exit code is discarded
// since there is no host process to propagate it to.
func exitProcess(m *cpu.Machine) {
	m.Pop()
	m.Halt()
}

func getModuleHandleA(m *cpu.Machine) {
	m.Pop() // lpModuleName, ignored: one synthetic module handle for everything
	m.Regs.Set32(cpu.EAX, m.ImageBase)
}

// getProcAddress cannot resolve a real host function pointer for an
// arbitrary guest-requested symbol at runtime (unlike the loader's static
// IAT resolution), so it always reports failure, matching the common
// "dynamic GetProcAddress lookups aren't supported" limitation called out
// in spec.md's Non-goals for runtime-only import resolution.
func getProcAddress(m *cpu.Machine) {
	m.Pop() // hModule
	m.Pop() // lpProcName
	state(m).lastError = 127 // ERROR_PROC_NOT_FOUND
	m.Regs.Set32(cpu.EAX, 0)
}

func heapCreate(m *cpu.Machine) {
	m.Pop() // flOptions
	m.Pop() // dwInitialSize
	m.Pop() // dwMaximumSize
	m.Regs.Set32(cpu.EAX, 1) // synthetic default-heap handle
}

func getProcessHeap(m *cpu.Machine) {
	m.Regs.Set32(cpu.EAX, 1)
}

// heapAlloc bumps a simple arena cursor; allocations are never reused.
func heapAlloc(m *cpu.Machine) {
	m.Pop() // hHeap
	flags := m.Pop()
	size := m.Pop()

	st := state(m)
	addr := st.heapCursor
	st.heapCursor += align16(size)

	if flags&0x8 != 0 { // HEAP_ZERO_MEMORY
		mem := m.Mem()
		for i := uint32(0); i < size && addr+i < uint32(len(mem)); i++ {
			mem[addr+i] = 0
		}
	}
	m.Regs.Set32(cpu.EAX, addr)
}

func align16(v uint32) uint32 { return (v + 15) &^ 15 }

// heapFree is a no-op beyond reporting success: the arena allocator never
// reclaims memory, matching spec.md's simplified heap model.
func heapFree(m *cpu.Machine) {
	m.Pop() // hHeap
	m.Pop() // dwFlags
	m.Pop() // lpMem
	m.Regs.Set32(cpu.EAX, 1)
}

func getStdHandle(m *cpu.Machine) {
	id := m.Pop()
	st := state(m)
	h := st.nextHandle
	st.nextHandle++
	switch id {
	case stdInputHandle:
		st.handles[h] = "stdin"
	case stdOutputHandle:
		st.handles[h] = "stdout"
	case stdErrorHandle:
		st.handles[h] = "stderr"
	default:
		st.handles[h] = "unknown"
	}
	m.Regs.Set32(cpu.EAX, h)
}

// writeFile copies lpBuffer's bytes to the host's stderr when the target
// handle is stdout/stderr, and reports the written count unconditionally,
// since this emulator has no other I/O backend.
func writeFile(m *cpu.Machine) {
	handle := m.Pop()
	buf := m.Pop()
	size := m.Pop()
	written := m.Pop()
	m.Pop() // lpOverlapped

	st := state(m)
	if name, ok := st.handles[handle]; ok && (name == "stdout" || name == "stderr") {
		data := m.Mem()
		if uint64(buf)+uint64(size) <= uint64(len(data)) {
			cpu.Logger.Printf("guest write: %s", string(data[buf:buf+size]))
		}
	}
	if written != 0 {
		m.WriteU32(written, size)
	}
	m.Regs.Set32(cpu.EAX, 1)
}

func closeHandle(m *cpu.Machine) {
	handle := m.Pop()
	delete(state(m).handles, handle)
	m.Regs.Set32(cpu.EAX, 1)
}

func createFileA(m *cpu.Machine) {
	for i := 0; i < 7; i++ {
		m.Pop()
	}
	state(m).lastError = 2 // ERROR_FILE_NOT_FOUND: no filesystem is modeled
	m.Regs.Set32(cpu.EAX, 0xffffffff) // INVALID_HANDLE_VALUE
}

func virtualAlloc(m *cpu.Machine) {
	m.Pop() // lpAddress, ignored: always placed by our own arena
	size := m.Pop()
	m.Pop() // flAllocationType
	m.Pop() // flProtect

	mapping, err := m.Space.Alloc(size, "VirtualAlloc")
	if err != nil {
		m.Regs.Set32(cpu.EAX, 0)
		return
	}
	m.Grow(mapping.Addr + mapping.Size)
	m.Regs.Set32(cpu.EAX, mapping.Addr)
}

func virtualFree(m *cpu.Machine) {
	m.Pop() // lpAddress
	m.Pop() // dwSize
	m.Pop() // dwFreeType
	m.Regs.Set32(cpu.EAX, 1)
}

func sleep(m *cpu.Machine) {
	m.Pop() // dwMilliseconds, a no-op: there is no wall-clock to block on
}

func getCommandLineA(m *cpu.Machine) {
	m.Regs.Set32(cpu.EAX, m.ImageBase)
}

func getVersion(m *cpu.Machine) {
	m.Regs.Set32(cpu.EAX, 0x0a00_0005) // report Windows 5.0 (major 5, minor 0) with build number 0x0a00
}

func getTickCount(m *cpu.Machine) {
	m.Regs.Set32(cpu.EAX, 0)
}

// Exports maps exported symbol names to their shim, the Go analogue of
// kernel32::resolve(sym) generated by the winapi! macro.
var Exports = map[string]cpu.HostHandler{
	"GetLastError":     getLastError,
	"SetLastError":     setLastError,
	"ExitProcess":      exitProcess,
	"GetModuleHandleA": getModuleHandleA,
	"GetProcAddress":   getProcAddress,
	"HeapCreate":       heapCreate,
	"GetProcessHeap":   getProcessHeap,
	"HeapAlloc":        heapAlloc,
	"HeapFree":         heapFree,
	"GetStdHandle":     getStdHandle,
	"WriteFile":        writeFile,
	"CloseHandle":      closeHandle,
	"CreateFileA":      createFileA,
	"VirtualAlloc":     virtualAlloc,
	"VirtualFree":      virtualFree,
	"Sleep":            sleep,
	"GetCommandLineA":  getCommandLineA,
	"GetVersion":       getVersion,
	"GetTickCount":     getTickCount,
}

// Arity records each symbol's declared stdcall parameter count, so an IAT
// slot bound to a recognized-but-unimplemented symbol can still pop the
// right number of argument words per spec.md §4.5.
var Arity = map[string]int{
	"GetLastError":     0,
	"SetLastError":     1,
	"ExitProcess":      1,
	"GetModuleHandleA": 1,
	"GetProcAddress":   2,
	"HeapCreate":       3,
	"GetProcessHeap":   0,
	"HeapAlloc":        3,
	"HeapFree":         3,
	"GetStdHandle":     1,
	"WriteFile":        5,
	"CloseHandle":      1,
	"CreateFileA":      7,
	"VirtualAlloc":     4,
	"VirtualFree":      3,
	"Sleep":            1,
	"GetCommandLineA":  0,
	"GetVersion":       0,
	"GetTickCount":     0,
}
