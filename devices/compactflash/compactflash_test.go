package compactflash

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/rcornwell/m68kemu/internal/machine"
)

func newImage(t *testing.T, sectors int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "disk.img")
	if err := os.WriteFile(path, make([]byte, sectors*sectorSize), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func build(t *testing.T, m *machine.Machine, path string) *CompactFlash {
	t.Helper()
	dev, err := New(m, "compactflash@ff2000", machine.Options{
		"address": "0xff2000",
		"file":    path,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return dev.(*CompactFlash)
}

func newTestMachine(t *testing.T) *machine.Machine {
	t.Helper()
	m := machine.New(1_000_000, true, machine.MissReturnsZero)
	return m
}

// TestScenario4Identify reproduces SPEC_FULL.md §8 scenario 4: a 1MiB image
// (2048 sectors) answers IDENTIFY DEVICE with the sector count at bytes
// 60-61, little-endian, and zero elsewhere.
func TestScenario4Identify(t *testing.T) {
	m := newTestMachine(t)
	path := newImage(t, 2048)
	build(t, m, path)

	if err := m.Bus.Write(0xff2005, machine.Width8, cmdIdentify); err != nil {
		t.Fatalf("write command: %v", err)
	}

	status, err := m.Bus.Read(0xff2006, machine.Width8)
	if err != nil || status&statusDRQ == 0 {
		t.Fatalf("status = %#x, err = %v; want DRQ set", status, err)
	}

	var got [sectorSize]byte
	for i := range got {
		v, err := m.Bus.Read(0xff2007, machine.Width8)
		if err != nil {
			t.Fatalf("read data[%d]: %v", i, err)
		}
		got[i] = byte(v)
	}

	want := binary.LittleEndian.Uint16(got[60:62])
	if want != 2048 {
		t.Errorf("bytes 60-61 = %d, want 2048", want)
	}
	for i, b := range got {
		if i >= 60 && i < 64 {
			continue
		}
		if b != 0 {
			t.Fatalf("byte %d = %#x, want 0", i, b)
		}
	}

	status, _ = m.Bus.Read(0xff2006, machine.Width8)
	if status&statusDRQ != 0 {
		t.Error("DRQ still set after draining all 512 bytes")
	}
}

func TestReadSectorWriteSectorDirect(t *testing.T) {
	m := newTestMachine(t)
	path := newImage(t, 4)
	cf := build(t, m, path)

	src := make([]byte, sectorSize)
	for i := range src {
		src[i] = byte(i)
	}
	if err := cf.WriteSector(1, src); err != nil {
		t.Fatalf("WriteSector: %v", err)
	}

	dst := make([]byte, sectorSize)
	if err := cf.ReadSector(1, dst); err != nil {
		t.Fatalf("ReadSector: %v", err)
	}
	for i := range src {
		if dst[i] != src[i] {
			t.Fatalf("byte %d = %#x, want %#x", i, dst[i], src[i])
		}
	}
}

func TestReadSectorOutOfRange(t *testing.T) {
	m := newTestMachine(t)
	cf := build(t, m, newImage(t, 2))
	if err := cf.ReadSector(5, make([]byte, sectorSize)); err == nil {
		t.Fatal("expected out-of-range error")
	}
}

func TestRejectsBadImageSize(t *testing.T) {
	m := newTestMachine(t)
	path := filepath.Join(t.TempDir(), "bad.img")
	if err := os.WriteFile(path, make([]byte, 100), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := New(m, "compactflash@ff2000", machine.Options{
		"address": "0xff2000", "file": path,
	}); err == nil {
		t.Fatal("expected error for non-sector-multiple image size")
	}
}

func TestRegisterCommandViaRegisters(t *testing.T) {
	m := newTestMachine(t)
	path := newImage(t, 4)
	build(t, m, path)

	if err := m.Bus.Write(0xff2000, machine.Width32, 2); err != nil {
		t.Fatalf("write lba: %v", err)
	}
	lba, err := m.Bus.Read(0xff2000, machine.Width32)
	if err != nil || lba != 2 {
		t.Fatalf("lba = %d, err = %v; want 2", lba, err)
	}

	if err := m.Bus.Write(0xff2005, machine.Width8, cmdWriteSector); err != nil {
		t.Fatalf("write command: %v", err)
	}
	for i := 0; i < sectorSize; i++ {
		if err := m.Bus.Write(0xff2007, machine.Width8, uint32(byte(i))); err != nil {
			t.Fatalf("write data[%d]: %v", i, err)
		}
	}

	if err := m.Bus.Write(0xff2005, machine.Width8, cmdReadSector); err != nil {
		t.Fatalf("write command: %v", err)
	}
	for i := 0; i < sectorSize; i++ {
		v, err := m.Bus.Read(0xff2007, machine.Width8)
		if err != nil {
			t.Fatalf("read data[%d]: %v", i, err)
		}
		if v != uint32(byte(i)) {
			t.Fatalf("data[%d] = %#x, want %#x", i, v, byte(i))
		}
	}
}
