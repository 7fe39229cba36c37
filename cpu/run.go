package cpu

import (
	"bufio"
	"fmt"
	"os"
	"runtime/debug"
	"strconv"
	"strings"
)

// Driver wraps a Machine with the breakpoint/debug-stepping state needed by
// RunDebug, generalizing the teacher's RunProgramDebugMode from a
// bytecode pc to an x86 eip.
type Driver struct {
	M *Machine

	breakpoints map[uint32]struct{}

	// Budget is the maximum number of instructions Run will execute
	// before forcing a Budget-kind stop, per SPEC_FULL.md §3.1's -budget
	// flag. Zero (the default) means unbounded.
	Budget uint64
}

func NewDriver(m *Machine) *Driver {
	return &Driver{M: m, breakpoints: make(map[uint32]struct{})}
}

func (d *Driver) AddBreakpoint(addr uint32) { d.breakpoints[addr] = struct{}{} }

func getDefaultRecoverFunc(m *Machine) func() {
	return func() {
		if r := recover(); r != nil {
			Logger.Printf("panic at eip=%#x: %v", m.Regs.EIP, r)
		}
	}
}

// Run executes the machine to completion with the garbage collector
// disabled for the duration, matching the teacher's RunProgram: memory is
// allocated up front by the loader, so the only per-step allocation is
// incidental and the GC can be safely deferred until the tight step loop
// finishes. If Budget is nonzero, Run stops after that many instructions
// with a Budget-kind result even if the guest program would otherwise
// keep going.
func (d *Driver) Run() StepResult {
	key, ok := os.LookupEnv("GOGC")
	if !ok {
		key = "100"
	}
	gcPercent, err := strconv.ParseInt(key, 10, 32)
	if err != nil {
		gcPercent = 100
	}

	defer getDefaultRecoverFunc(d.M)()
	defer debug.SetGCPercent(int(gcPercent))
	debug.SetGCPercent(-1)

	var executed uint64
	for {
		if d.Budget != 0 && executed >= d.Budget {
			return StepResult{Kind: Budget, Addr: d.M.Regs.EIP}
		}
		r := d.M.Step()
		executed++
		if r.Kind != Continued {
			return r
		}
	}
}

// RunDebug runs an interactive REPL over stdin: n/next single-steps,
// r/run continues until a breakpoint or fault, b/break <addr hex> toggles
// a breakpoint.
func (d *Driver) RunDebug() {
	defer getDefaultRecoverFunc(d.M)()

	fmt.Printf("Commands:\n\tn or next: execute next instruction\n\tr or run: run program\n\tb or break <hex addr>: toggle breakpoint\n\n")
	d.printState()

	reader := bufio.NewReader(os.Stdin)
	waitForInput := true
	lastBreak := uint32(0xffffffff)

	for {
		line := ""
		if waitForInput {
			fmt.Print("\n->")
			line, _ = reader.ReadString('\n')
			line = strings.ToLower(strings.TrimSpace(line))
		} else {
			eip := d.M.Regs.EIP
			if _, ok := d.breakpoints[eip]; ok && lastBreak != eip {
				fmt.Println("breakpoint")
				d.printState()
				waitForInput = true
				lastBreak = eip
				continue
			}
		}

		if !waitForInput || line == "n" || line == "next" {
			lastBreak = 0xffffffff
			r := d.M.Step()
			if waitForInput {
				d.printState()
			}
			if r.Kind != Continued {
				if r.Kind == Errored {
					fmt.Println(r.Err)
				} else {
					fmt.Println("program finished")
				}
				return
			}
		} else if line == "r" || line == "run" {
			waitForInput = false
		} else if strings.HasPrefix(line, "b") {
			arg := strings.TrimSpace(strings.TrimPrefix(strings.TrimPrefix(line, "break"), "b"))
			addr, err := strconv.ParseUint(strings.TrimPrefix(arg, "0x"), 16, 32)
			if err != nil {
				fmt.Println("unknown address:", err)
				continue
			}
			a := uint32(addr)
			if _, ok := d.breakpoints[a]; ok {
				delete(d.breakpoints, a)
			} else {
				d.breakpoints[a] = struct{}{}
			}
		}
	}
}

func (d *Driver) printState() {
	fmt.Printf("%s\n", d.M.String())
}
