package kernel32

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

func TestExitProcessHaltsMachine(t *testing.T) {
	m := newTestMachine()
	m.Push(1) // uExitCode
	exitProcess(m)

	r := m.Step()
	assert(t, r.Kind == cpu.Halted, "ExitProcess must leave the machine halted, got %+v", r)
}

func TestHeapAllocBumpsCursor(t *testing.T) {
	// heapAlloc pops hHeap, then flags, then size, so hHeap must be pushed
	// last (it sits on top of the stack and is popped first).
	m2 := newTestMachine()
	m2.Push(64)  // dwBytes
	m2.Push(0x8) // dwFlags
	m2.Push(1)   // hHeap
	heapAlloc(m2)
	firstAddr := m2.Regs.Get32(cpu.EAX)
	assert(t, firstAddr != 0, "expected a nonzero heap address")

	m2.Push(32)
	m2.Push(0x8)
	m2.Push(1)
	heapAlloc(m2)
	secondAddr := m2.Regs.Get32(cpu.EAX)
	assert(t, secondAddr == firstAddr+64, "second allocation should follow the first 16-aligned, got %#x want %#x", secondAddr, firstAddr+64)
}

func TestGetLastErrorRoundTripsSetLastError(t *testing.T) {
	m := newTestMachine()
	m.Push(0x57) // ERROR_INVALID_PARAMETER
	setLastError(m)
	getLastError(m)
	assert(t, m.Regs.Get32(cpu.EAX) == 0x57, "got %#x", m.Regs.Get32(cpu.EAX))
}

func TestGetProcAddressAlwaysFails(t *testing.T) {
	m := newTestMachine()
	m.Push(0x1000) // lpProcName
	m.Push(1)      // hModule
	getProcAddress(m)
	assert(t, m.Regs.Get32(cpu.EAX) == 0, "GetProcAddress must report failure, got %#x", m.Regs.Get32(cpu.EAX))
	assert(t, state(m).lastError == 127, "expected ERROR_PROC_NOT_FOUND, got %d", state(m).lastError)
}

func TestGetStdHandleTracksHandleIdentity(t *testing.T) {
	m := newTestMachine()
	m.Push(stdOutputHandle)
	getStdHandle(m)
	h := m.Regs.Get32(cpu.EAX)
	assert(t, state(m).handles[h] == "stdout", "expected stdout handle, got %q", state(m).handles[h])
}

func TestWriteFileReportsFullWrite(t *testing.T) {
	m := newTestMachine()
	m.Push(stdOutputHandle)
	getStdHandle(m)
	handle := m.Regs.Get32(cpu.EAX)

	msg := "hello, guest\x00"
	copy(m.Mem()[0x3000:], msg)

	m.Push(0)      // lpOverlapped
	m.Push(0x3100) // lpNumberOfBytesWritten
	m.Push(uint32(len(msg) - 1))
	m.Push(0x3000) // lpBuffer
	m.Push(handle)
	writeFile(m)

	assert(t, m.Regs.Get32(cpu.EAX) == 1, "WriteFile should report success")
	assert(t, m.ReadU32(0x3100) == uint32(len(msg)-1), "expected bytes-written out-param set, got %d", m.ReadU32(0x3100))
}
