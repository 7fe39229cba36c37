// Package user32 implements stdcall shims for a representative subset of
// user32.dll: window creation and the message box/message loop primitives
// a GUI-shaped Win32 binary calls into before any rendering backend is
// needed.
package user32

import "winterp/cpu"

// State tracks the handful of synthetic window handles this emulator
// hands out; no actual window ever appears, since there is no display
// backend behind it (see gdi32/ddraw for the same simplification).
type State struct {
	nextHWND uint32
}

func NewState() *State {
	return &State{nextHWND: 0x00010000}
}

func state(m *cpu.Machine) *State {
	if m.HostState.User32 == nil {
		m.HostState.User32 = NewState()
	}
	return m.HostState.User32.(*State)
}

// messageBoxA logs the guest's message/caption and reports IDOK, the
// universally-accepted answer a scripted run needs to keep going.
func messageBoxA(m *cpu.Machine) {
	m.Pop() // hWnd
	text := m.Pop()
	caption := m.Pop()
	m.Pop() // uType

	data := m.Mem()
	cpu.Logger.Printf("MessageBoxA: %q / %q", cString(data, caption), cString(data, text))
	m.Regs.Set32(cpu.EAX, 1) // IDOK
}

func cString(mem []byte, addr uint32) string {
	if addr == 0 || addr >= uint32(len(mem)) {
		return ""
	}
	end := addr
	for end < uint32(len(mem)) && mem[end] != 0 {
		end++
	}
	return string(mem[addr:end])
}

func createWindowExA(m *cpu.Machine) {
	for i := 0; i < 12; i++ {
		m.Pop()
	}
	st := state(m)
	h := st.nextHWND
	st.nextHWND += 4
	m.Regs.Set32(cpu.EAX, h)
}

func showWindow(m *cpu.Machine) {
	m.Pop() // hWnd
	m.Pop() // nCmdShow
	m.Regs.Set32(cpu.EAX, 1)
}

func updateWindow(m *cpu.Machine) {
	m.Pop() // hWnd
	m.Regs.Set32(cpu.EAX, 1)
}

// getMessageA always reports WM_QUIT-equivalent emptiness (returns 0) so a
// guest's classic message loop terminates immediately rather than spinning
// forever with no real input source behind it.
func getMessageA(m *cpu.Machine) {
	for i := 0; i < 4; i++ {
		m.Pop()
	}
	m.Regs.Set32(cpu.EAX, 0)
}

func translateMessage(m *cpu.Machine) {
	m.Pop() // lpMsg
	m.Regs.Set32(cpu.EAX, 0)
}

func dispatchMessageA(m *cpu.Machine) {
	m.Pop() // lpMsg
	m.Regs.Set32(cpu.EAX, 0)
}

func postQuitMessage(m *cpu.Machine) {
	m.Pop() // nExitCode
}

func defWindowProcA(m *cpu.Machine) {
	m.Pop() // hWnd
	m.Pop() // Msg
	m.Pop() // wParam
	m.Pop() // lParam
	m.Regs.Set32(cpu.EAX, 0)
}

var Exports = map[string]cpu.HostHandler{
	"MessageBoxA":     messageBoxA,
	"CreateWindowExA":  createWindowExA,
	"ShowWindow":      showWindow,
	"UpdateWindow":    updateWindow,
	"GetMessageA":     getMessageA,
	"TranslateMessage": translateMessage,
	"DispatchMessageA": dispatchMessageA,
	"PostQuitMessage":  postQuitMessage,
	"DefWindowProcA":   defWindowProcA,
}

// Arity records each symbol's declared stdcall parameter count, so an IAT
// slot bound to a recognized-but-unimplemented symbol can still pop the
// right number of argument words per spec.md §4.5.
var Arity = map[string]int{
	"MessageBoxA":      4,
	"CreateWindowExA":  12,
	"ShowWindow":       2,
	"UpdateWindow":     1,
	"GetMessageA":      4,
	"TranslateMessage": 1,
	"DispatchMessageA": 1,
	"PostQuitMessage":  1,
	"DefWindowProcA":   4,
}
