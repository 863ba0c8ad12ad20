package loader

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"testing"

	"github.com/go-test/deep"
	"github.com/rcornwell/m68kemu/internal/machine"
)

// buildELF assembles a minimal ET_EXEC/EM_68K big-endian image in memory:
// one .text section holding a single long-word at entry, one symbol table
// naming it "_start", and optionally a PT_GNU_STACK program header.
func buildELF(t *testing.T, textAddr, entry uint32, text []byte, withRela bool, relocTarget uint32, gnuStack uint64) []byte {
	t.Helper()

	const ehsize = 52
	const phentsize = 32
	const shstrtabIdx = 1

	shstrtab := []byte{0}
	addName := func(name string) uint32 {
		off := uint32(len(shstrtab))
		shstrtab = append(shstrtab, []byte(name)...)
		shstrtab = append(shstrtab, 0)
		return off
	}
	textNameOff := addName(".text")
	shstrNameOff := addName(".shstrtab")
	symtabNameOff := addName(".symtab")
	strtabNameOff := addName(".strtab")
	var relaNameOff uint32
	if withRela {
		relaNameOff = addName(".rela.text")
	}

	strtab := []byte{0}
	startOff := uint32(len(strtab))
	strtab = append(strtab, []byte("_start")...)
	strtab = append(strtab, 0)

	// One symbol: _start, STT_FUNC, bound to text section (index 2 below).
	symtab := make([]byte, 16) // null symbol
	sym := make([]byte, 16)
	binary.BigEndian.PutUint32(sym[0:], startOff)
	binary.BigEndian.PutUint32(sym[4:], textAddr)
	binary.BigEndian.PutUint32(sym[8:], uint32(len(text)))
	sym[12] = byte(elf.STT_FUNC) | byte(elf.STB_GLOBAL)<<4
	sym[13] = 0
	binary.BigEndian.PutUint16(sym[14:], 2) // shndx: text section
	symtab = append(symtab, sym...)

	var rela []byte
	if withRela {
		rela = make([]byte, 12)
		binary.BigEndian.PutUint32(rela[0:], relocTarget-textAddr) // r_offset within .text
		binary.BigEndian.PutUint32(rela[4:], uint32(1)<<8|relocR68k32)
		binary.BigEndian.PutUint32(rela[8:], 0)
	}

	// Layout file: ehdr, phdrs, text, rela, symtab, strtab, shstrtab, shdrs.
	var phdrs []byte
	nPhdr := 1
	if gnuStack != 0 {
		nPhdr = 2
	}
	fileOff := uint32(ehsize) + uint32(nPhdr)*phentsize
	textFileOff := fileOff
	ph := make([]byte, phentsize)
	binary.BigEndian.PutUint32(ph[0:], uint32(elf.PT_LOAD))
	binary.BigEndian.PutUint32(ph[4:], textFileOff)
	binary.BigEndian.PutUint32(ph[8:], textAddr)
	binary.BigEndian.PutUint32(ph[12:], textAddr)
	binary.BigEndian.PutUint32(ph[16:], uint32(len(text)))
	binary.BigEndian.PutUint32(ph[20:], uint32(len(text)))
	binary.BigEndian.PutUint32(ph[24:], 5)
	binary.BigEndian.PutUint32(ph[28:], 4)
	phdrs = append(phdrs, ph...)
	if gnuStack != 0 {
		ph2 := make([]byte, phentsize)
		binary.BigEndian.PutUint32(ph2[0:], 0x6474e551) // PT_GNU_STACK
		binary.BigEndian.PutUint32(ph2[20:], 0)
		binary.BigEndian.PutUint32(ph2[24:], uint32(gnuStack))
		phdrs = append(phdrs, ph2...)
	}

	fileOff += uint32(len(text))
	relaFileOff := fileOff
	fileOff += uint32(len(rela))
	symtabFileOff := fileOff
	fileOff += uint32(len(symtab))
	strtabFileOff := fileOff
	fileOff += uint32(len(strtab))
	shstrtabFileOff := fileOff
	fileOff += uint32(len(shstrtab))
	shFileOff := fileOff

	ehdr := make([]byte, ehsize)
	copy(ehdr[0:4], []byte{0x7f, 'E', 'L', 'F'})
	ehdr[4] = 1 // ELFCLASS32
	ehdr[5] = 2 // ELFDATA2MSB
	ehdr[6] = 1 // EV_CURRENT
	binary.BigEndian.PutUint16(ehdr[16:], uint16(elf.ET_EXEC))
	binary.BigEndian.PutUint16(ehdr[18:], uint16(elf.EM_68K))
	binary.BigEndian.PutUint32(ehdr[20:], 1)
	binary.BigEndian.PutUint32(ehdr[24:], entry)
	binary.BigEndian.PutUint32(ehdr[28:], ehsize)
	binary.BigEndian.PutUint32(ehdr[32:], shFileOff)
	binary.BigEndian.PutUint16(ehdr[40:], ehsize)
	binary.BigEndian.PutUint16(ehdr[42:], phentsize)
	binary.BigEndian.PutUint16(ehdr[44:], uint16(nPhdr))
	const shentsize = 40
	nShdr := 6
	if !withRela {
		nShdr = 5
	}
	binary.BigEndian.PutUint16(ehdr[46:], shentsize)
	binary.BigEndian.PutUint16(ehdr[48:], uint16(nShdr))
	binary.BigEndian.PutUint16(ehdr[50:], shstrtabIdx)

	mkShdr := func(nameOff uint32, typ elf.SectionType, flags elf.SectionFlag, addr, off, size, link, info, addralign uint32) []byte {
		sh := make([]byte, shentsize)
		binary.BigEndian.PutUint32(sh[0:], nameOff)
		binary.BigEndian.PutUint32(sh[4:], uint32(typ))
		binary.BigEndian.PutUint32(sh[8:], uint32(flags))
		binary.BigEndian.PutUint32(sh[12:], addr)
		binary.BigEndian.PutUint32(sh[16:], off)
		binary.BigEndian.PutUint32(sh[20:], size)
		binary.BigEndian.PutUint32(sh[24:], link)
		binary.BigEndian.PutUint32(sh[28:], info)
		binary.BigEndian.PutUint32(sh[32:], addralign)
		return sh
	}

	var shdrs []byte
	shdrs = append(shdrs, make([]byte, shentsize)...) // SHN_UNDEF
	textShIdx := uint32(2)
	symtabShIdx := uint32(3)
	shdrs = append(shdrs, mkShdr(shstrNameOff, elf.SHT_STRTAB, 0, 0, shstrtabFileOff, uint32(len(shstrtab)), 0, 0, 1)...)
	shdrs = append(shdrs, mkShdr(textNameOff, elf.SHT_PROGBITS, elf.SHF_ALLOC|elf.SHF_EXECINSTR, textAddr, textFileOff, uint32(len(text)), 0, 0, 4)...)
	shdrs = append(shdrs, mkShdr(symtabNameOff, elf.SHT_SYMTAB, 0, 0, symtabFileOff, uint32(len(symtab)), 4, 1, 4)...)
	shdrs = append(shdrs, mkShdr(strtabNameOff, elf.SHT_STRTAB, 0, 0, strtabFileOff, uint32(len(strtab)), 0, 0, 1)...)
	if withRela {
		shdrs = append(shdrs, mkShdr(relaNameOff, elf.SHT_RELA, 0, 0, relaFileOff, uint32(len(rela)), symtabShIdx, textShIdx, 4)...)
	}

	var buf bytes.Buffer
	buf.Write(ehdr)
	buf.Write(phdrs)
	buf.Write(text)
	buf.Write(rela)
	buf.Write(symtab)
	buf.Write(strtab)
	buf.Write(shstrtab)
	buf.Write(shdrs)
	return buf.Bytes()
}

func TestLoadAtLinkAddress(t *testing.T) {
	text := make([]byte, 4)
	binary.BigEndian.PutUint32(text, 0xdeadbeef)
	raw := buildELF(t, 0x400, 0x400, text, false, 0, 0)

	bus := machine.NewBus(true, machine.MissReturnsZero)
	if err := bus.AddMemory(0, 0x10000, true, nil); err != nil {
		t.Fatal(err)
	}
	img, err := Load(bus, bytes.NewReader(raw), 0)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if img.Entry != 0x400 {
		t.Errorf("Entry = %#x, want 0x400", img.Entry)
	}
	v, err := bus.Read(0x400, machine.Width32)
	if err != nil || v != 0xdeadbeef {
		t.Errorf("memory at entry = %#x, %v, want 0xdeadbeef", v, err)
	}
	pc, err := bus.Read(4, machine.Width32)
	if err != nil || pc != 0x400 {
		t.Errorf("vector1 (PC) = %#x, want 0x400", pc)
	}
	if name, ok := img.Symbols.Symbolicate(0x400); !ok || name != "_start" {
		t.Errorf("Symbolicate(0x400) = %q,%v want _start,true", name, ok)
	}
}

func TestLoadRelocatedRequiresRelocations(t *testing.T) {
	text := make([]byte, 4)
	raw := buildELF(t, 0x400, 0x400, text, false, 0, 0)
	bus := machine.NewBus(true, machine.MissReturnsZero)
	_ = bus.AddMemory(0, 0x20000, true, nil)
	if _, err := Load(bus, bytes.NewReader(raw), 0x10000); err == nil {
		t.Fatal("expected error loading non-relocatable image at non-zero load base")
	}
}

func TestLoadAppliesR68K32Relocation(t *testing.T) {
	text := make([]byte, 8)
	binary.BigEndian.PutUint32(text[4:], 0x400) // pointer to _start at offset 0x404
	raw := buildELF(t, 0x400, 0x400, text, true, 0x404, 0)

	bus := machine.NewBus(true, machine.MissReturnsZero)
	_ = bus.AddMemory(0, 0x20000, true, nil)
	img, err := Load(bus, bytes.NewReader(raw), 0x10000)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if img.Entry != 0x10400 {
		t.Errorf("Entry = %#x, want 0x10400", img.Entry)
	}
	v, err := bus.Read(0x10404, machine.Width32)
	if err != nil || v != 0x10400 {
		t.Errorf("relocated pointer = %#x, %v, want 0x00010400", v, err)
	}
	pc, err := bus.Read(4, machine.Width32)
	if err != nil || pc != 0x10400 {
		t.Errorf("vector1 (PC) = %#x, want 0x10400", pc)
	}
}

func TestSymbolTableMissOutsideAnyRange(t *testing.T) {
	tab := newSymbolTable()
	tab.add(&Symbol{Name: "foo", Address: 0x1000, Size: 0x10})
	tab.finalize()
	if _, ok := tab.Symbolicate(0x2000); ok {
		t.Error("expected no match far past any symbol")
	}
	if name, ok := tab.Symbolicate(0x1004); !ok || name != "foo+0x4" {
		t.Errorf("Symbolicate(0x1004) = %q,%v want foo+0x4,true", name, ok)
	}
	if got := deep.Equal([]string{"foo"}, []string{tab.sorted[0].Name}); got != nil {
		t.Errorf("unexpected diff: %v", got)
	}
}
