// Package gdi32 implements minimal stdcall shims for gdi32.dll: device
// context and stock-object handles are allocated and tracked, but nothing
// is ever rendered, since this emulator has no display backend.
package gdi32

import "winterp/cpu"

// State hands out synthetic device-context and GDI-object handles.
type State struct {
	nextHandle uint32
}

func NewState() *State {
	return &State{nextHandle: 0x00020000}
}

func state(m *cpu.Machine) *State {
	if m.HostState.GDI32 == nil {
		m.HostState.GDI32 = NewState()
	}
	return m.HostState.GDI32.(*State)
}

func (s *State) alloc() uint32 {
	h := s.nextHandle
	s.nextHandle += 4
	return h
}

func createCompatibleDC(m *cpu.Machine) {
	m.Pop() // hdc
	m.Regs.Set32(cpu.EAX, state(m).alloc())
}

func createCompatibleBitmap(m *cpu.Machine) {
	m.Pop() // hdc
	m.Pop() // width
	m.Pop() // height
	m.Regs.Set32(cpu.EAX, state(m).alloc())
}

func selectObject(m *cpu.Machine) {
	m.Pop() // hdc
	obj := m.Pop()
	m.Regs.Set32(cpu.EAX, obj) // report the previous object as the same one
}

func deleteObject(m *cpu.Machine) {
	m.Pop() // hObject
	m.Regs.Set32(cpu.EAX, 1)
}

func deleteDC(m *cpu.Machine) {
	m.Pop() // hdc
	m.Regs.Set32(cpu.EAX, 1)
}

func getStockObject(m *cpu.Machine) {
	m.Pop() // fnObject
	m.Regs.Set32(cpu.EAX, state(m).alloc())
}

var Exports = map[string]cpu.HostHandler{
	"CreateCompatibleDC":     createCompatibleDC,
	"CreateCompatibleBitmap": createCompatibleBitmap,
	"SelectObject":           selectObject,
	"DeleteObject":           deleteObject,
	"DeleteDC":               deleteDC,
	"GetStockObject":         getStockObject,
}

// Arity records each symbol's declared stdcall parameter count, so an IAT
// slot bound to a recognized-but-unimplemented symbol can still pop the
// right number of argument words per spec.md §4.5.
var Arity = map[string]int{
	"CreateCompatibleDC":     1,
	"CreateCompatibleBitmap": 3,
	"SelectObject":           2,
	"DeleteObject":           1,
	"DeleteDC":               1,
	"GetStockObject":         1,
}
