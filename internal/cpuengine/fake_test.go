package cpuengine

import "testing"

func TestFakeEngineMemoryRoundTrip(t *testing.T) {
	e := NewFakeEngine()
	e.MemWriteBulk(0x1000, []byte{0x01, 0x02, 0x03, 0x04})
	if got := e.MemReadMemory(0x1000, 4); got != 0x01020304 {
		t.Errorf("MemReadMemory = %#x, want 0x01020304", got)
	}
	e.MemWriteMemory(0x2000, 2, 0xBEEF)
	if got := e.MemReadMemory(0x2000, 2); got != 0xBEEF {
		t.Errorf("MemReadMemory = %#x, want 0xBEEF", got)
	}
}

func TestFakeEngineExecuteRunsFullQuantum(t *testing.T) {
	e := NewFakeEngine()
	ran := e.Execute(1000)
	if ran != 1000 {
		t.Fatalf("Execute(1000) = %d, want 1000 with no shortening requested", ran)
	}
}

func TestFakeEngineDeviceDispatch(t *testing.T) {
	e := NewFakeEngine()
	var seen uint32
	e.MemAddDevice(0xFF0000, 0x10)
	e.MemSetDeviceHandler(func(op MemOp, address uint32, width int, value uint32) uint32 {
		seen = address
		if op == OpRead {
			return 0x42
		}
		return 0
	})
	v := e.Access(OpRead, 0xFF0000, 1, 0)
	if v != 0x42 || seen != 0xFF0000 {
		t.Errorf("Access = %#x seen=%#x, want 0x42/0xff0000", v, seen)
	}
}

func TestFakeEngineIntAck(t *testing.T) {
	e := NewFakeEngine()
	e.SetIntAckCallback(func(level int) uint32 {
		if level == 6 {
			return 0x40
		}
		return IRQSpurious
	})
	if got := e.Ack(6); got != 0x40 {
		t.Errorf("Ack(6) = %#x, want 0x40", got)
	}
	if got := e.Ack(2); got != IRQSpurious {
		t.Errorf("Ack(2) = %#x, want IRQSpurious", got)
	}
}
