package loader

import (
	"encoding/binary"
	"fmt"
)

// importDescriptorSize is sizeof(IMAGE_IMPORT_DESCRIPTOR).
const importDescriptorSize = 20

// ordinalFlag32 marks a thunk entry as an ordinal import rather than an
// RVA to an IMAGE_IMPORT_BY_NAME.
const ordinalFlag32 = 0x80000000

// boundImport is one resolved IAT slot: the DLL and symbol name it names,
// and the guest address of the IAT slot itself (the value the interpreter
// keys its ImportTable lookups on).
type boundImport struct {
	DLL     string
	Symbol  string
	IATAddr uint32
}

// parseImportDirectory walks the Import Directory Table at
// base+dirRVA..base+dirRVA+dirSize, and for each descriptor walks its IAT
// thunk array, resolving names from IMAGE_IMPORT_BY_NAME entries. This
// mirrors original_source/win32/src/x86.rs's pe::parse_imports operating
// directly over already-mapped guest bytes, rather than trusting a
// library's higher-level import model, since the exact guest address of
// each IAT slot (not just the symbol name) is what the interpreter needs.
func parseImportDirectory(mem []byte, base, dirRVA, dirSize uint32) ([]boundImport, error) {
	var out []boundImport

	dirStart := base + dirRVA
	dirEnd := dirStart + dirSize
	for off := dirStart; off+importDescriptorSize <= dirEnd; off += importDescriptorSize {
		originalFirstThunk := readU32(mem, off)
		nameRVA := readU32(mem, off+12)
		firstThunk := readU32(mem, off+16)
		if originalFirstThunk == 0 && nameRVA == 0 && firstThunk == 0 {
			break
		}

		dllName := readCString(mem, base+nameRVA)

		iltRVA := originalFirstThunk
		if iltRVA == 0 {
			iltRVA = firstThunk
		}

		for i := uint32(0); ; i++ {
			ilt := readU32(mem, base+iltRVA+i*4)
			if ilt == 0 {
				break
			}
			iatAddr := base + firstThunk + i*4

			var symbol string
			if ilt&ordinalFlag32 != 0 {
				symbol = fmt.Sprintf("ordinal_%d", ilt&0x7fffffff)
			} else {
				symbol = readCString(mem, base+(ilt&0x7fffffff)+2)
			}

			out = append(out, boundImport{DLL: dllName, Symbol: symbol, IATAddr: iatAddr})
		}
	}

	return out, nil
}

func readU32(mem []byte, addr uint32) uint32 {
	if uint64(addr)+4 > uint64(len(mem)) {
		return 0
	}
	return binary.LittleEndian.Uint32(mem[addr:])
}

func readCString(mem []byte, addr uint32) string {
	end := addr
	for end < uint32(len(mem)) && mem[end] != 0 {
		end++
	}
	if addr >= uint32(len(mem)) {
		return ""
	}
	return string(mem[addr:end])
}
