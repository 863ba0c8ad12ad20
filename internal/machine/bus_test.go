package machine

import "testing"

func TestBusMemoryReadWrite(t *testing.T) {
	b := NewBus(true, MissReturnsZero)
	if err := b.AddMemory(0x1000, 0x100, true, nil); err != nil {
		t.Fatalf("AddMemory: %v", err)
	}

	if err := b.Write(0x1004, Width32, 0xdeadbeef); err != nil {
		t.Fatalf("Write: %v", err)
	}
	v, err := b.Read(0x1004, Width32)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if v != 0xdeadbeef {
		t.Errorf("Read = %#x, want 0xdeadbeef", v)
	}

	// Byte-wise reads observe big-endian order.
	lo, err := b.Read(0x1007, Width8)
	if err != nil {
		t.Fatalf("Read byte: %v", err)
	}
	if lo != 0xef {
		t.Errorf("low byte = %#x, want 0xef", lo)
	}
}

func TestBusReadOnlyWriteIgnored(t *testing.T) {
	b := NewBus(true, MissReturnsZero)
	if err := b.AddMemory(0, 0x10, false, []byte{1, 2, 3, 4}); err != nil {
		t.Fatalf("AddMemory: %v", err)
	}
	if err := b.Write(0, Width8, 0xff); err != nil {
		t.Fatalf("Write to read-only region should not error: %v", err)
	}
	v, _ := b.Read(0, Width8)
	if v != 1 {
		t.Errorf("read-only region was modified: got %#x, want 1", v)
	}
}

func TestBusOverlappingMemoryRejected(t *testing.T) {
	b := NewBus(true, MissReturnsZero)
	if err := b.AddMemory(0, 0x100, true, nil); err != nil {
		t.Fatalf("AddMemory: %v", err)
	}
	if err := b.AddMemory(0x80, 0x10, true, nil); err == nil {
		t.Fatal("expected overlap error, got nil")
	}
}

// TestRegisterLookupInvariant checks SPEC_FULL.md §8 invariant 1: the lookup
// (r.address, r.width, r.direction) returns exactly r.
func TestRegisterLookupInvariant(t *testing.T) {
	b := NewBus(true, MissReturnsZero)
	desc := &RegisterDescriptor{
		DeviceName: "uart", RegisterName: "data",
		Address: 0xFF0000, Width: Width8, Direction: DirRead,
		Read: func() uint32 { return 0x41 },
	}
	if err := b.AddRegister(desc); err != nil {
		t.Fatalf("AddRegister: %v", err)
	}
	got, ok := b.Lookup(0xFF0000, Width8, DirRead)
	if !ok || got != desc {
		t.Fatalf("Lookup did not return the registered descriptor")
	}
}

func TestRegisterAlignment(t *testing.T) {
	b := NewBus(true, MissReturnsZero)
	cases := []struct {
		width Width
		addr  uint32
		ok    bool
	}{
		{Width8, 0x1001, true},
		{Width16, 0x1001, false},
		{Width16, 0x1002, true},
		{Width32, 0x1002, false},
		{Width32, 0x1004, true},
	}
	for _, c := range cases {
		err := b.AddRegister(&RegisterDescriptor{
			DeviceName: "d", RegisterName: "r", Address: c.addr, Width: c.width, Direction: DirRead,
			Read: func() uint32 { return 0 },
		})
		if (err == nil) != c.ok {
			t.Errorf("width=%d addr=%#x: err=%v, want ok=%v", c.width, c.addr, err, c.ok)
		}
	}
}

func TestRegisterDuplicateRejected(t *testing.T) {
	b := NewBus(true, MissReturnsZero)
	desc := &RegisterDescriptor{DeviceName: "a", RegisterName: "x", Address: 0x2000, Width: Width8, Direction: DirWrite,
		Write: func(uint32) {}}
	if err := b.AddRegister(desc); err != nil {
		t.Fatalf("first AddRegister: %v", err)
	}
	dup := &RegisterDescriptor{DeviceName: "b", RegisterName: "y", Address: 0x2000, Width: Width8, Direction: DirWrite,
		Write: func(uint32) {}}
	if err := b.AddRegister(dup); err == nil {
		t.Fatal("expected duplicate-register error, got nil")
	}

	// Differing only by direction is allowed (e.g. MC68681 style split registers).
	readSide := &RegisterDescriptor{DeviceName: "a", RegisterName: "x", Address: 0x2000, Width: Width8, Direction: DirRead,
		Read: func() uint32 { return 0 }}
	if err := b.AddRegister(readSide); err != nil {
		t.Errorf("read/write split at same address should be allowed: %v", err)
	}
}

// TestBusMissInvariant checks SPEC_FULL.md §8 invariant 2.
func TestBusMissInvariant(t *testing.T) {
	t.Run("bus error enabled", func(t *testing.T) {
		b := NewBus(true, MissReturnsZero)
		_, err := b.Read(0x00A00000, Width16)
		var busErr *BusError
		if err == nil {
			t.Fatal("expected BusError on unmapped read")
		}
		if !asBusError(err, &busErr) {
			t.Fatalf("expected *BusError, got %T: %v", err, err)
		}
	})
	t.Run("bus error disabled returns sentinel", func(t *testing.T) {
		b := NewBus(false, MissReturnsAllOnes)
		v, err := b.Read(0x00A00000, Width16)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if v != 0xFFFFFFFF {
			t.Errorf("open-bus read = %#x, want all-ones", v)
		}
	})
}

func asBusError(err error, target **BusError) bool {
	be, ok := err.(*BusError)
	if ok {
		*target = be
	}
	return ok
}
