package loader

import (
	"encoding/binary"
	"testing"

	"winterp/cpu"
)

// Offsets below follow IMAGE_DOS_HEADER/IMAGE_NT_HEADERS32/
// IMAGE_SECTION_HEADER exactly as laid out in the PE32 file format: a
// 64-byte DOS stub with e_lfanew at 0x3C, the 4-byte "PE\0\0" signature,
// a 20-byte IMAGE_FILE_HEADER, a 224-byte IMAGE_OPTIONAL_HEADER32 (with
// 16 data directories), then one IMAGE_SECTION_HEADER per section.
const (
	peDOSHeaderSize     = 0x40
	peLfanew            = peDOSHeaderSize
	peSignatureOff      = peLfanew
	peFileHeaderOff     = peSignatureOff + 4
	peFileHeaderSize    = 20
	peOptHeaderOff      = peFileHeaderOff + peFileHeaderSize
	peOptHeaderSize     = 224
	peSectionTableOff   = peOptHeaderOff + peOptHeaderSize
	peSectionHeaderSize = 40
	peHeadersTotalSize  = 0x200 // file-aligned SizeOfHeaders
)

type testSection struct {
	name             string
	virtualAddress   uint32
	sizeOfRawData    uint32
	pointerToRawData uint32
	characteristics  uint32
	data             []byte
}

// buildPE32 hand-assembles a minimal, otherwise-valid PE32 executable image
// around the given sections, independent of any PE-parsing library, so
// loader.Load's own layout logic (not a third-party parser) is what's
// under test.
func buildPE32(machine uint16, imageBase, entryRVA, stackReserve uint32, sections []testSection, fileSize uint32) []byte {
	buf := make([]byte, fileSize)

	buf[0], buf[1] = 'M', 'Z'
	binary.LittleEndian.PutUint32(buf[0x3C:], peLfanew)

	copy(buf[peSignatureOff:], []byte("PE\x00\x00"))

	binary.LittleEndian.PutUint16(buf[peFileHeaderOff+0:], machine)
	binary.LittleEndian.PutUint16(buf[peFileHeaderOff+2:], uint16(len(sections)))
	binary.LittleEndian.PutUint16(buf[peFileHeaderOff+16:], peOptHeaderSize)
	binary.LittleEndian.PutUint16(buf[peFileHeaderOff+18:], 0x0102) // EXECUTABLE_IMAGE | 32BIT_MACHINE

	opt := peOptHeaderOff
	binary.LittleEndian.PutUint16(buf[opt+0:], 0x10b) // PE32 magic
	binary.LittleEndian.PutUint32(buf[opt+16:], entryRVA)
	binary.LittleEndian.PutUint32(buf[opt+28:], imageBase)
	binary.LittleEndian.PutUint32(buf[opt+32:], 0x1000) // SectionAlignment
	binary.LittleEndian.PutUint32(buf[opt+36:], 0x200)  // FileAlignment

	sizeOfImage := uint32(0x1000)
	for _, s := range sections {
		end := alignUp32(s.virtualAddress+s.sizeOfRawData, 0x1000)
		if end > sizeOfImage {
			sizeOfImage = end
		}
	}
	binary.LittleEndian.PutUint32(buf[opt+56:], sizeOfImage)
	binary.LittleEndian.PutUint32(buf[opt+60:], peHeadersTotalSize) // SizeOfHeaders
	binary.LittleEndian.PutUint32(buf[opt+72:], stackReserve)       // SizeOfStackReserve
	binary.LittleEndian.PutUint32(buf[opt+92:], 16)                 // NumberOfRvaAndSizes

	for i, s := range sections {
		off := peSectionTableOff + i*peSectionHeaderSize
		copy(buf[off:off+8], s.name)
		binary.LittleEndian.PutUint32(buf[off+8:], uint32(len(s.data)))
		binary.LittleEndian.PutUint32(buf[off+12:], s.virtualAddress)
		binary.LittleEndian.PutUint32(buf[off+16:], s.sizeOfRawData)
		binary.LittleEndian.PutUint32(buf[off+20:], s.pointerToRawData)
		binary.LittleEndian.PutUint32(buf[off+36:], s.characteristics)
		copy(buf[s.pointerToRawData:], s.data)
	}

	return buf
}

func alignUp32(v, align uint32) uint32 { return (v + align - 1) &^ (align - 1) }

func noResolve(dll, symbol string) (cpu.HostHandler, int) { return nil, 0 }

// Scenario 6: two 0x1000-byte sections at RVA 0x1000 and 0x2000 load into a
// strictly increasing, non-overlapping mapping list alongside the
// null-pointer guard and the stack allocation.
func TestLoadTwoSectionsProduceNonOverlappingMappings(t *testing.T) {
	// A zero image base packs the sections directly against the
	// null-pointer guard, with no gap the allocator could slot the stack
	// into ahead of them, so the resulting mapping order is exactly
	// [guard, section1, section2, stack].
	const imageBase = 0
	sections := []testSection{
		{name: ".text", virtualAddress: 0x1000, sizeOfRawData: 0x1000, pointerToRawData: peHeadersTotalSize,
			characteristics: 0x60000020, data: []byte{0xB8, 0x2A, 0x00, 0x00, 0x00, 0xC3}},
		{name: ".data", virtualAddress: 0x2000, sizeOfRawData: 0x1000, pointerToRawData: peHeadersTotalSize + 0x1000,
			characteristics: 0xC0000040, data: []byte{0x01, 0x02, 0x03, 0x04}},
	}
	buf := buildPE32(0x014c, imageBase, 0x1000, 0x10000, sections, peHeadersTotalSize+0x2000)

	m, err := Load(buf, noResolve)
	assert(t, err == nil, "unexpected error: %v", err)

	mappings := m.Space.Mappings()
	assert(t, len(mappings) == 4, "expected 4 mappings (guard, 2 sections, stack), got %d", len(mappings))

	for i := 1; i < len(mappings); i++ {
		prev, cur := mappings[i-1], mappings[i]
		assert(t, cur.Addr >= prev.Addr+prev.Size, "mapping %d (%q) [%#x,%#x) overlaps or precedes mapping %d (%q) ending at %#x",
			i, cur.Desc, cur.Addr, cur.Addr+cur.Size, i-1, prev.Desc, prev.Addr+prev.Size)
	}

	assert(t, mappings[1].Addr == imageBase+0x1000, "got first section addr %#x", mappings[1].Addr)
	assert(t, mappings[2].Addr == imageBase+0x2000, "got second section addr %#x", mappings[2].Addr)
}

func TestLoadSetsEntryPointAndStack(t *testing.T) {
	const imageBase = 0
	sections := []testSection{
		{name: ".text", virtualAddress: 0x1000, sizeOfRawData: 0x1000, pointerToRawData: peHeadersTotalSize,
			characteristics: 0x60000020, data: []byte{0xB8, 0x2A, 0x00, 0x00, 0x00, 0xC3}},
	}
	buf := buildPE32(0x014c, imageBase, 0x1000, 0x10000, sections, peHeadersTotalSize+0x1000)

	m, err := Load(buf, noResolve)
	assert(t, err == nil, "unexpected error: %v", err)

	assert(t, m.EntryPoint == imageBase+0x1000, "got entry point %#x", m.EntryPoint)
	assert(t, m.Regs.EIP == m.EntryPoint, "eip should start at the entry point, got %#x", m.Regs.EIP)
	assert(t, m.Regs.Get32(cpu.ESP) == m.Regs.Get32(cpu.EBP), "esp and ebp should both start at the stack top")
	assert(t, m.Regs.Get32(cpu.ESP) >= imageBase+0x2000, "stack should be allocated above the code section, got esp=%#x", m.Regs.Get32(cpu.ESP))

	assert(t, m.ReadU8(m.EntryPoint) == 0xB8, "section bytes not copied into guest memory at entry point")
}

func TestLoadClampsOversizedStackReserve(t *testing.T) {
	const imageBase = 0
	sections := []testSection{
		{name: ".text", virtualAddress: 0x1000, sizeOfRawData: 0x1000, pointerToRawData: peHeadersTotalSize,
			characteristics: 0x60000020, data: []byte{0xF4}},
	}
	// 16MiB requested reserve, comfortably over maxReasonableStackReserve.
	buf := buildPE32(0x014c, imageBase, 0x1000, 16<<20, sections, peHeadersTotalSize+0x1000)

	m, err := Load(buf, noResolve)
	assert(t, err == nil, "unexpected error: %v", err)

	mappings := m.Space.Mappings()
	stack := mappings[len(mappings)-1]
	assert(t, stack.Size == clampedStackSize, "expected clamped stack size %#x, got %#x", clampedStackSize, stack.Size)
}

func TestLoadRejectsNonI386MachineType(t *testing.T) {
	const imageBase = 0x00400000
	sections := []testSection{
		{name: ".text", virtualAddress: 0x1000, sizeOfRawData: 0x1000, pointerToRawData: peHeadersTotalSize,
			characteristics: 0x60000020, data: []byte{0xF4}},
	}
	// IMAGE_FILE_MACHINE_AMD64 (0x8664), not the only supported machine type.
	buf := buildPE32(0x8664, imageBase, 0x1000, 0x10000, sections, peHeadersTotalSize+0x1000)

	_, err := Load(buf, noResolve)
	assert(t, err != nil, "expected an error for a non-I386 machine type")
	_, ok := err.(*cpu.MalformedImageError)
	assert(t, ok, "expected a *cpu.MalformedImageError, got %T: %v", err, err)
}
