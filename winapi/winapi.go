// Package winapi aggregates the per-DLL shim tables (kernel32, user32,
// gdi32, ddraw) behind a single dll+symbol resolve function, the Go
// analogue of original_source/win32/src/winapi/mod.rs's top-level
// resolve().
package winapi

import (
	"strings"

	"winterp/cpu"
	"winterp/winapi/ddraw"
	"winterp/winapi/gdi32"
	"winterp/winapi/kernel32"
	"winterp/winapi/user32"
)

// module bundles one DLL's exported shims with each symbol's declared
// stdcall arity, so an unimplemented-but-recognized symbol can still have
// its arguments popped blindly in the right count.
type module struct {
	exports map[string]cpu.HostHandler
	arity   map[string]int
}

var modules = map[string]module{
	"kernel32.dll": {kernel32.Exports, kernel32.Arity},
	"user32.dll":   {user32.Exports, user32.Arity},
	"gdi32.dll":    {gdi32.Exports, gdi32.Arity},
	"ddraw.dll":    {ddraw.Exports, ddraw.Arity},
}

// Resolve maps a DLL name and exported symbol to a host handler and its
// declared arity. DLL names are matched case-insensitively and must carry
// the .dll suffix. A nil handler is not an error: the import table still
// binds the guest address, and each call through it pops arity argument
// words and returns eax=0, logging only the first time, per spec.md §4.5.
// An unknown DLL or an unrecognized symbol within a known DLL both resolve
// to a nil handler with arity 0, since this emulator has no way to learn
// the true arity of a symbol it doesn't implement.
func Resolve(dll, symbol string) (cpu.HostHandler, int) {
	key := strings.ToLower(dll)
	mod, ok := modules[key]
	if !ok {
		return nil, 0
	}
	return mod.exports[symbol], mod.arity[symbol]
}
