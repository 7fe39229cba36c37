package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"winterp/cpu"
	"winterp/loader"
	"winterp/winapi"
)

var (
	debugMode   = flag.Bool("debug", false, "enter single-step debug mode")
	budget      = flag.Uint64("budget", 0, "instruction budget before forcing a stop (0 = unbounded)")
	breakpoints stringList
)

// stringList accumulates repeated -breakpoint flags.
type stringList []string

func (s *stringList) String() string     { return strings.Join(*s, ",") }
func (s *stringList) Set(v string) error { *s = append(*s, v); return nil }

func init() {
	flag.Var(&breakpoints, "breakpoint", "hex address to break at (repeatable)")
	flag.Parse()
}

func main() {
	args := flag.Args()
	if len(args) == 0 {
		fmt.Println("Usage: winterp [-debug] [-budget N] [-breakpoint 0xADDR ...] <exe>")
		return
	}

	buf, err := os.ReadFile(args[0])
	if err != nil {
		fmt.Println(err)
		return
	}

	m, err := loader.Load(buf, winapi.Resolve)
	if err != nil {
		fmt.Println(err)
		return
	}

	driver := cpu.NewDriver(m)
	driver.Budget = *budget
	for _, bp := range breakpoints {
		addr, err := strconv.ParseUint(strings.TrimPrefix(strings.ToLower(bp), "0x"), 16, 32)
		if err != nil {
			fmt.Printf("skipping invalid breakpoint %q: %v\n", bp, err)
			continue
		}
		driver.AddBreakpoint(uint32(addr))
	}

	if *debugMode {
		driver.RunDebug()
		return
	}

	result := driver.Run()
	switch result.Kind {
	case cpu.Errored:
		fmt.Println(result.Err)
	case cpu.Budget:
		fmt.Printf("instruction budget exhausted at eip=%#x\n", result.Addr)
	}
}
