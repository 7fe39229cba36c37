package cpu

import "fmt"

// NullPointerRegionSize is the size of the always-reserved region at guest
// address 0, which traps null-pointer dereferences.
const NullPointerRegionSize = 0x1000

// pageSize is the allocator's alignment granularity.
const pageSize = 0x1000

// Mapping describes one non-overlapping region of guest virtual memory and
// its purpose. Mappings are never destroyed once created.
type Mapping struct {
	Addr uint32
	Size uint32
	Desc string
}

func (m Mapping) end() uint32 { return m.Addr + m.Size }

// AddressSpace is a sorted list of non-overlapping Mappings plus an
// allocator that finds the first sufficiently large gap, page-aligned.
type AddressSpace struct {
	mappings []Mapping
}

// NewAddressSpace returns an AddressSpace whose only mapping is the
// null-pointer guard, inserted first so every subsequent insertion sees it
// as a neighbor.
func NewAddressSpace() *AddressSpace {
	as := &AddressSpace{}
	as.mappings = append(as.mappings, Mapping{
		Addr: 0,
		Size: NullPointerRegionSize,
		Desc: "avoid null pointers",
	})
	return as
}

// Mappings returns the sorted, non-overlapping mapping list.
func (as *AddressSpace) Mappings() []Mapping {
	return as.mappings
}

// AddMapping inserts m into the sorted list, asserting no overlap with
// either neighbor.
func (as *AddressSpace) AddMapping(m Mapping) error {
	pos := 0
	for pos < len(as.mappings) && as.mappings[pos].Addr < m.Addr {
		pos++
	}
	if pos > 0 {
		prev := as.mappings[pos-1]
		if prev.end() > m.Addr {
			return fmt.Errorf("mapping %q [%#x,%#x) overlaps preceding mapping %q [%#x,%#x)",
				m.Desc, m.Addr, m.end(), prev.Desc, prev.Addr, prev.end())
		}
	}
	if pos < len(as.mappings) {
		next := as.mappings[pos]
		if m.end() > next.Addr {
			return fmt.Errorf("mapping %q [%#x,%#x) overlaps following mapping %q [%#x,%#x)",
				m.Desc, m.Addr, m.end(), next.Desc, next.Addr, next.end())
		}
	}

	as.mappings = append(as.mappings, Mapping{})
	copy(as.mappings[pos+1:], as.mappings[pos:])
	as.mappings[pos] = m
	return nil
}

func alignUp(v, align uint32) uint32 {
	return (v + align - 1) &^ (align - 1)
}

// Alloc finds the first gap whose length exceeds size, page-aligns the
// candidate start, inserts a new Mapping there, and returns it. The
// allocator deliberately does not guarantee a minimum guard gap between
// mappings beyond page alignment.
func (as *AddressSpace) Alloc(size uint32, desc string) (Mapping, error) {
	end := uint32(0)
	for i, m := range as.mappings {
		candidate := alignUp(end, pageSize)
		if m.Addr >= candidate && m.Addr-candidate > size {
			newMapping := Mapping{Addr: candidate, Size: size, Desc: desc}
			as.mappings = append(as.mappings, Mapping{})
			copy(as.mappings[i+1:], as.mappings[i:])
			as.mappings[i] = newMapping
			return newMapping, nil
		}
		end = m.end()
	}

	candidate := alignUp(end, pageSize)
	newMapping := Mapping{Addr: candidate, Size: size, Desc: desc}
	as.mappings = append(as.mappings, newMapping)
	return newMapping, nil
}
