package gdi32

import (
	"testing"

	"winterp/cpu"
)

func assert(t *testing.T, cond bool, format string, args ...any) {
	if !cond {
		t.Fatalf(format, args...)
	}
}

func newTestMachine() *cpu.Machine {
	m := cpu.NewMachine(0x20000)
	m.Regs.Set32(cpu.ESP, 0x9000)
	return m
}

func TestCreateCompatibleDCAndBitmapHandOutDistinctHandles(t *testing.T) {
	m := newTestMachine()
	m.Push(0) // hdc
	createCompatibleDC(m)
	dc := m.Regs.Get32(cpu.EAX)
	assert(t, dc != 0, "expected a nonzero DC handle")

	m.Push(480) // height
	m.Push(640) // width
	m.Push(dc)  // hdc
	createCompatibleBitmap(m)
	bmp := m.Regs.Get32(cpu.EAX)
	assert(t, bmp != 0 && bmp != dc, "expected a distinct nonzero bitmap handle, got %#x vs dc %#x", bmp, dc)
}

func TestSelectObjectEchoesInputHandle(t *testing.T) {
	m := newTestMachine()
	m.Push(0x42) // obj
	m.Push(0)    // hdc
	selectObject(m)
	assert(t, m.Regs.Get32(cpu.EAX) == 0x42, "got %#x", m.Regs.Get32(cpu.EAX))
}

func TestGetStockObjectReturnsNonzeroHandle(t *testing.T) {
	m := newTestMachine()
	m.Push(0) // fnObject
	getStockObject(m)
	assert(t, m.Regs.Get32(cpu.EAX) != 0, "expected a nonzero stock object handle")
}
