package ddraw

import (
	"testing"

	"winterp/cpu"
)

func assert(t *testing.T, cond bool, format string, args ...any) {
	if !cond {
		t.Fatalf(format, args...)
	}
}

func TestDirectDrawCreateWritesSentinelPointerAndReportsDDOK(t *testing.T) {
	m := cpu.NewMachine(0x20000)
	m.Regs.Set32(cpu.ESP, 0x9000)

	const lplpDD = 0x3000

	// pops lpGUID, lplpDD, pUnkOuter in that order.
	m.Push(0)       // pUnkOuter
	m.Push(lplpDD)  // lplpDD
	m.Push(0)       // lpGUID
	directDrawCreate(m)

	assert(t, m.Regs.Get32(cpu.EAX) == 0, "DirectDrawCreate must report DD_OK, got %#x", m.Regs.Get32(cpu.EAX))
	assert(t, m.ReadU32(lplpDD) == 0xdd000001, "expected sentinel interface pointer written, got %#x", m.ReadU32(lplpDD))
	assert(t, state(m).created, "expected State.created to be set")
}
