/*
 * m68kemu - ELF loader and symbol store (component G).
 *
 * Copyright 2024, Richard Cornwell
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in
 * all copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 */

// Package loader implements ELF32-BE m68k executable loading: segment/section
// loading into the address map, R_68K_32 relocation, reset-vector synthesis,
// and the address/name symbol store used to annotate traces (component G).
// Grounded on original_source/imageELF.py for the loading and symbolication
// algorithm; that file never implements relocation (the original always
// loads at link address), so the relocation logic here is authored fresh
// from SPEC_FULL.md §4.6's textual description, in debug/elf (the stdlib's
// complete ELF32-BE parser — see DESIGN.md for why no third-party ELF
// library is used).
package loader

import (
	"debug/elf"
	"encoding/binary"
	"fmt"
	"io"
	"sort"

	"github.com/rcornwell/m68kemu/internal/machine"
)

// relocR68k32 is the R_68K_32 relocation type number (absolute 32-bit).
const relocR68k32 = 1

// Symbol is one entry in the symbol store: (name, address, size).
type Symbol struct {
	Name    string
	Address uint32
	Size    uint32
}

// SymbolTable supports exact name->range lookup and address->best-match
// lookup, per SPEC_FULL.md §4.6.
type SymbolTable struct {
	byName    map[string]*Symbol
	byAddress map[uint32][]*Symbol
	sorted    []*Symbol // unique addresses, ascending
}

func newSymbolTable() *SymbolTable {
	return &SymbolTable{byName: make(map[string]*Symbol), byAddress: make(map[uint32][]*Symbol)}
}

func (t *SymbolTable) add(sym *Symbol) {
	t.byName[sym.Name] = sym
	if _, seen := t.byAddress[sym.Address]; !seen {
		t.sorted = append(t.sorted, sym)
	}
	t.byAddress[sym.Address] = append(t.byAddress[sym.Address], sym)
}

func (t *SymbolTable) finalize() {
	sort.Slice(t.sorted, func(i, j int) bool { return t.sorted[i].Address < t.sorted[j].Address })
}

// Lookup returns the symbol registered under name, by exact name match.
func (t *SymbolTable) Lookup(name string) (*Symbol, bool) {
	s, ok := t.byName[name]
	return s, ok
}

// Add registers a symbol learned from outside the loaded ELF image -- a
// supplementary `--symbols` file, per SPEC_FULL.md §6 -- and re-sorts the
// address index. Exported for that one caller; Load itself only ever uses
// the unexported add/finalize pair during a single parse.
func (t *SymbolTable) Add(name string, address, size uint32) {
	t.add(&Symbol{Name: name, Address: address, Size: size})
	t.finalize()
}

// Symbolicate implements SPEC_FULL.md §4.6's address->name lookup: an exact
// address match returns the comma-joined aliases at that address; otherwise
// the greatest symbol address <= a is found by binary search, and included
// with a "+offset" suffix if a falls within its size.
func (t *SymbolTable) Symbolicate(a uint32) (string, bool) {
	if syms, ok := t.byAddress[a]; ok {
		return joinNames(syms, 0), true
	}
	// Binary search for the greatest symbol address <= a.
	i := sort.Search(len(t.sorted), func(i int) bool { return t.sorted[i].Address > a })
	if i == 0 {
		return "", false
	}
	s := t.sorted[i-1]
	if s.Size == 0 || a-s.Address >= s.Size {
		return "", false
	}
	return joinNames(t.byAddress[s.Address], a-s.Address), true
}

func joinNames(syms []*Symbol, offset uint32) string {
	out := ""
	for i, s := range syms {
		if i > 0 {
			out += ","
		}
		out += s.Name
		if offset > 0 {
			out += fmt.Sprintf("+%#x", offset)
		}
	}
	return out
}

// Image is the result of loading an ELF executable: where it was loaded,
// its entry point, the .text bounds (for --trace-check-pc-in-text,
// SPEC_FULL.md §12), and its symbol store.
type Image struct {
	LoadBase         uint32
	Entry            uint32
	TextBase, TextEnd uint32
	Symbols          *SymbolTable
}

// CheckText reports whether addr falls within the loaded .text section,
// supplementing the original's check_text safety check (SPEC_FULL.md §12).
func (img *Image) CheckText(addr uint32) bool {
	return addr >= img.TextBase && addr < img.TextEnd
}

// Load parses an ELF32-BE m68k executable from r, writes its allocatable
// sections into bus at loadBase, applies R_68K_32 relocations, synthesizes
// the __STACK__ symbol from PT_GNU_STACK (if present), and writes the
// initial SP/PC into the low vector table (vectors 0 and 1).
func Load(bus *machine.Bus, r io.ReaderAt, loadBase uint32) (*Image, error) {
	ef, err := elf.NewFile(r)
	if err != nil {
		return nil, &machine.ConfigError{Reason: fmt.Sprintf("parsing ELF: %v", err)}
	}
	if ef.Type != elf.ET_EXEC {
		return nil, &machine.ConfigError{Reason: fmt.Sprintf("not an executable ELF (type=%v)", ef.Type)}
	}
	if ef.Machine != elf.EM_68K {
		return nil, &machine.ConfigError{Reason: fmt.Sprintf("not an m68k ELF (machine=%v)", ef.Machine)}
	}
	if ef.ByteOrder != binary.BigEndian {
		return nil, &machine.ConfigError{Reason: "ELF is not big-endian"}
	}
	if len(ef.Progs) == 0 {
		return nil, &machine.ConfigError{Reason: "ELF has no program headers (no loadable segments)"}
	}

	img := &Image{LoadBase: loadBase, Entry: uint32(ef.Entry) + loadBase, Symbols: newSymbolTable()}

	var endOfImage uint32
	for _, sec := range ef.Sections {
		if sec.Flags&elf.SHF_ALLOC == 0 {
			continue
		}
		addr := uint32(sec.Addr) + loadBase
		end := addr + uint32(sec.Size)
		if end > endOfImage {
			endOfImage = end
		}
		if sec.Name == ".text" {
			img.TextBase, img.TextEnd = addr, end
		}
		if sec.Type == elf.SHT_NOBITS || sec.Size == 0 {
			continue // .bss: reserved, backing store already zeroed
		}
		data, err := sec.Data()
		if err != nil {
			return nil, &machine.ConfigError{Reason: fmt.Sprintf("reading section %s: %v", sec.Name, err)}
		}
		dst := bus.Bytes(addr, uint32(len(data)))
		if dst == nil {
			return nil, &machine.ConfigError{Reason: fmt.Sprintf(
				"section %s at %#08x..%#08x falls outside any mapped memory region", sec.Name, addr, addr+uint32(len(data)))}
		}
		copy(dst, data)
	}

	relocCount, err := applyRelocations(ef, bus, loadBase)
	if err != nil {
		return nil, err
	}
	if loadBase != 0 && relocCount == 0 {
		return nil, &machine.ConfigError{Reason: "load base is non-zero but the image carries no relocations " +
			"(it was not linked with --emit-relocs)"}
	}

	loadSymbols(ef, loadBase, img.Symbols)
	img.Symbols.finalize()

	stackTop := synthesizeStack(ef, loadBase, endOfImage, img.Symbols)

	if err := writeVector(bus, 0, stackTop); err != nil {
		return nil, err
	}
	if err := writeVector(bus, 4, img.Entry); err != nil {
		return nil, err
	}

	return img, nil
}

// applyRelocations implements SPEC_FULL.md §4.6's relocation paragraph: for
// every RELA section targeting a loadable section, read the 32-bit word at
// the referenced offset within the target section's data, add loadBase, and
// write it back. Non-R_68K_32 entries are ignored.
func applyRelocations(ef *elf.File, bus *machine.Bus, loadBase uint32) (int, error) {
	count := 0
	for _, sec := range ef.Sections {
		if sec.Type != elf.SHT_RELA {
			continue
		}
		if int(sec.Info) >= len(ef.Sections) {
			continue
		}
		target := ef.Sections[sec.Info]
		if target.Flags&elf.SHF_ALLOC == 0 {
			continue
		}
		data, err := sec.Data()
		if err != nil {
			return count, &machine.ConfigError{Reason: fmt.Sprintf("reading relocations in %s: %v", sec.Name, err)}
		}
		const entrySize = 12 // Elf32_Rela: r_offset, r_info, r_addend
		for off := 0; off+entrySize <= len(data); off += entrySize {
			rOffset := binary.BigEndian.Uint32(data[off:])
			rInfo := binary.BigEndian.Uint32(data[off+4:])
			rType := rInfo & 0xff
			if rType != relocR68k32 {
				continue
			}
			addr := uint32(target.Addr) + rOffset + loadBase
			orig, err := bus.Read(addr, machine.Width32)
			if err != nil {
				return count, &machine.ConfigError{Reason: fmt.Sprintf(
					"relocation at %#08x falls outside mapped memory: %v", addr, err)}
			}
			if err := bus.Write(addr, machine.Width32, orig+loadBase); err != nil {
				return count, err
			}
			count++
		}
	}
	return count, nil
}

// loadSymbols caches every named symbol from both .symtab and .dynsym (§4.6's
// "all symbol tables"), restricted to STT_FUNC/STT_OBJECT: those are the only
// types Symbolicate should ever resolve an address to. STT_SECTION/STT_FILE
// entries would otherwise make a code or data address inside a function
// resolve to its compilation unit or section name instead, which is not a
// useful symbol for a trace line or disassembly annotation.
func loadSymbols(ef *elf.File, loadBase uint32, table *SymbolTable) {
	add := func(syms []elf.Symbol) {
		for _, s := range syms {
			if s.Name == "" {
				continue
			}
			switch elf.ST_TYPE(s.Info) {
			case elf.STT_FUNC, elf.STT_OBJECT:
				table.add(&Symbol{Name: s.Name, Address: uint32(s.Value) + loadBase, Size: uint32(s.Size)})
			}
		}
	}
	if syms, err := ef.Symbols(); err == nil {
		add(syms)
	}
	if syms, err := ef.DynamicSymbols(); err == nil {
		add(syms)
	}
}

// synthesizeStack implements the PT_GNU_STACK handling in SPEC_FULL.md §4.6:
// if present, synthesize __STACK__ spanning [endOfImage, endOfImage+size) and
// return its upper bound as the initial SP. If absent, fall back to placing
// a conservative default stack right after the image.
func synthesizeStack(ef *elf.File, loadBase, endOfImage uint32, table *SymbolTable) uint32 {
	const defaultStackSize = 64 * 1024
	size := uint32(defaultStackSize)
	for _, p := range ef.Progs {
		if p.Type == elf.PT_GNU_STACK && p.Memsz > 0 {
			size = uint32(p.Memsz)
			break
		}
	}
	sym := &Symbol{Name: "__STACK__", Address: endOfImage, Size: size}
	table.add(sym)
	table.finalize()
	return endOfImage + size
}

func writeVector(bus *machine.Bus, address uint32, value uint32) error {
	return bus.Write(address, machine.Width32, value)
}
