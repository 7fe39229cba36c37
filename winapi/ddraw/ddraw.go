// Package ddraw implements minimal stdcall shims for ddraw.dll, enough for
// a guest to believe it has a DirectDraw surface without this emulator
// presenting anything: COM-style interface pointers are synthesized as
// guest-visible handles whose vtable this emulator never actually
// constructs, which is sufficient as long as the guest never dereferences
// it (true for the title-screen-only binaries this shim set targets).
package ddraw

import "winterp/cpu"

// State tracks whether DirectDrawCreate has been called, since most
// guests call it exactly once at startup.
type State struct {
	created bool
}

func NewState() *State { return &State{} }

func state(m *cpu.Machine) *State {
	if m.HostState.DDraw == nil {
		m.HostState.DDraw = NewState()
	}
	return m.HostState.DDraw.(*State)
}

// directDrawCreate reports DD_OK (0) and writes a nonzero sentinel
// interface pointer to *lplpDD, without backing it with a real vtable.
func directDrawCreate(m *cpu.Machine) {
	m.Pop() // lpGUID
	lplpDD := m.Pop()
	m.Pop() // pUnkOuter

	state(m).created = true
	if lplpDD != 0 {
		m.WriteU32(lplpDD, 0xdd000001)
	}
	m.Regs.Set32(cpu.EAX, 0)
}

var Exports = map[string]cpu.HostHandler{
	"DirectDrawCreate": directDrawCreate,
}

// Arity records each symbol's declared stdcall parameter count, so an IAT
// slot bound to a recognized-but-unimplemented symbol can still pop the
// right number of argument words per spec.md §4.5.
var Arity = map[string]int{
	"DirectDrawCreate": 3,
}
