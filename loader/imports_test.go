package loader

import (
	"encoding/binary"
	"testing"
)

func assert(t *testing.T, cond bool, format string, args ...any) {
	if !cond {
		t.Fatalf(format, args...)
	}
}

func putU32(mem []byte, addr uint32, v uint32) {
	binary.LittleEndian.PutUint32(mem[addr:], v)
}

func putCString(mem []byte, addr uint32, s string) {
	copy(mem[addr:], s)
	mem[addr+uint32(len(s))] = 0
}

// buildImportDirectory hand-assembles one IMAGE_IMPORT_DESCRIPTOR for a
// single DLL with two name-imported functions, terminated by the required
// all-zero descriptor, entirely independent of any PE-parsing library so
// parseImportDirectory's own thunk-walking logic is what's under test.
func buildImportDirectory() (mem []byte, base, dirRVA, dirSize uint32) {
	mem = make([]byte, 0x2000)
	base = 0

	const (
		dllNameRVA   = 0x500
		importName1  = 0x600 // "ExitProcess"
		importName2  = 0x620 // "GetStdHandle"
		iltRVA       = 0x700
		iatRVA       = 0x740
		descriptorRVA = 0x400
	)

	putCString(mem, dllNameRVA, "KERNEL32.DLL")
	putCString(mem, importName1+2, "ExitProcess")  // +2 skips the Hint field
	putCString(mem, importName2+2, "GetStdHandle")

	putU32(mem, iltRVA+0, importName1)
	putU32(mem, iltRVA+4, importName2)
	putU32(mem, iltRVA+8, 0)

	putU32(mem, iatRVA+0, importName1)
	putU32(mem, iatRVA+4, importName2)
	putU32(mem, iatRVA+8, 0)

	putU32(mem, descriptorRVA+0, iltRVA)  // OriginalFirstThunk
	putU32(mem, descriptorRVA+4, 0)       // TimeDateStamp
	putU32(mem, descriptorRVA+8, 0)       // ForwarderChain
	putU32(mem, descriptorRVA+12, dllNameRVA)
	putU32(mem, descriptorRVA+16, iatRVA) // FirstThunk

	// null terminator descriptor, already zeroed by make([]byte, ...)

	return mem, base, descriptorRVA, importDescriptorSize * 2
}

func TestParseImportDirectoryResolvesNamesAndIATAddrs(t *testing.T) {
	mem, base, dirRVA, dirSize := buildImportDirectory()

	imports, err := parseImportDirectory(mem, base, dirRVA, dirSize)
	assert(t, err == nil, "unexpected error: %v", err)
	assert(t, len(imports) == 2, "expected 2 resolved imports, got %d", len(imports))

	assert(t, imports[0].DLL == "KERNEL32.DLL", "got dll %q", imports[0].DLL)
	assert(t, imports[0].Symbol == "ExitProcess", "got symbol %q", imports[0].Symbol)
	assert(t, imports[0].IATAddr == base+0x740, "got iat addr %#x", imports[0].IATAddr)

	assert(t, imports[1].Symbol == "GetStdHandle", "got symbol %q", imports[1].Symbol)
	assert(t, imports[1].IATAddr == base+0x744, "got iat addr %#x", imports[1].IATAddr)
}

func TestParseImportDirectoryHandlesOrdinalImports(t *testing.T) {
	mem := make([]byte, 0x2000)
	const (
		dllNameRVA    = 0x500
		iltRVA        = 0x700
		iatRVA        = 0x740
		descriptorRVA = 0x400
	)
	putCString(mem, dllNameRVA, "WS2_32.DLL")

	putU32(mem, iltRVA+0, ordinalFlag32|42)
	putU32(mem, iltRVA+4, 0)
	putU32(mem, iatRVA+0, ordinalFlag32|42)
	putU32(mem, iatRVA+4, 0)

	putU32(mem, descriptorRVA+0, iltRVA)
	putU32(mem, descriptorRVA+12, dllNameRVA)
	putU32(mem, descriptorRVA+16, iatRVA)

	imports, err := parseImportDirectory(mem, 0, descriptorRVA, importDescriptorSize*2)
	assert(t, err == nil, "unexpected error: %v", err)
	assert(t, len(imports) == 1, "expected 1 import, got %d", len(imports))
	assert(t, imports[0].Symbol == "ordinal_42", "got symbol %q", imports[0].Symbol)
}

func TestParseImportDirectoryStopsAtNullDescriptor(t *testing.T) {
	mem, base, dirRVA, _ := buildImportDirectory()
	// Report a dirSize that would cover a third (garbage) descriptor slot;
	// the null terminator descriptor must still stop the walk.
	imports, err := parseImportDirectory(mem, base, dirRVA, importDescriptorSize*3)
	assert(t, err == nil, "unexpected error: %v", err)
	assert(t, len(imports) == 2, "null descriptor should stop the walk, got %d imports", len(imports))
}
