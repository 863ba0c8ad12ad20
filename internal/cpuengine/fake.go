/*
 * m68kemu - scriptable fake CPU engine for tests.
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

package cpuengine

// deviceRange records one MemAddDevice declaration.
type deviceRange struct {
	base, size uint32
}

// FakeEngine is a scriptable stand-in for the real m68k interpreter. It does
// not execute guest instructions; tests (and the emulator loop's own test
// suite) drive it directly through Access, Ack, RaiseIllegal, and InstrHook to
// exercise the framework's side of the §6 contract. Production wiring
// replaces this with a real interpreter behind the same Engine interface.
type FakeEngine struct {
	mem    map[uint32]byte
	ranges []deviceRange

	deviceHandler DeviceAccessFunc
	traceHandler  TraceFunc
	intAck        IntAckFunc
	resetCB       func()
	illegalCB     func(opcode uint16) bool
	instrHook     InstrHookFunc

	regs [18]uint32
	irq  int
	cpl  int

	quantumLimit  int64
	endRequested  bool
	totalCyclesRun int64
	shutdown      bool

	busErrorRaised  bool
	busErrorAddress uint32
	busErrorWrite   bool
}

// NewFakeEngine creates an idle fake engine.
func NewFakeEngine() *FakeEngine {
	return &FakeEngine{mem: make(map[uint32]byte)}
}

func (e *FakeEngine) SetCPUType(string) {}
func (e *FakeEngine) CPUInit()          {}

func (e *FakeEngine) PulseReset() {
	if e.resetCB != nil {
		e.resetCB()
	}
}

// Execute "runs" for cycles and returns cycles unchanged. It resets the
// quantum limit and the end-of-timeslice flag on entry, so a
// ModifyTimeslice/EndTimeslice request made before the call does not shorten
// it; no guest code runs inside the call, so no request arrives during it.
func (e *FakeEngine) Execute(cycles int64) int64 {
	e.quantumLimit = cycles
	e.endRequested = false
	ran := e.quantumLimit
	if e.endRequested {
		ran = 0
	}
	e.totalCyclesRun += ran
	return ran
}

func (e *FakeEngine) CyclesRun() int64       { return e.totalCyclesRun }
func (e *FakeEngine) CyclesRemaining() int64 { return e.quantumLimit }

func (e *FakeEngine) ModifyTimeslice(cyclesFromNow int64) {
	if cyclesFromNow < e.quantumLimit {
		e.quantumLimit = cyclesFromNow
	}
}

func (e *FakeEngine) EndTimeslice() { e.endRequested = true; e.quantumLimit = 0 }

func (e *FakeEngine) SetIRQ(level int)         { e.irq = level }
func (e *FakeEngine) CurrentPriorityMask() int { return e.cpl }

// SetPriorityMask lets a test simulate the guest program masking interrupts
// by writing the status register.
func (e *FakeEngine) SetPriorityMask(cpl int) { e.cpl = cpl }

func (e *FakeEngine) IRQLevel() int { return e.irq }

func (e *FakeEngine) GetReg(id RegID) uint32        { return e.regs[id] }
func (e *FakeEngine) SetReg(id RegID, value uint32) { e.regs[id] = value }

func (e *FakeEngine) Disassemble(pc uint32) string { return "nop" }

func (e *FakeEngine) MemAddMemory(base, size uint32, writable bool) {}

func (e *FakeEngine) MemWriteBulk(base uint32, data []byte) {
	for i, b := range data {
		e.mem[base+uint32(i)] = b
	}
}

func (e *FakeEngine) MemReadMemory(address uint32, width int) uint32 {
	var v uint32
	for i := 0; i < width; i++ {
		v = v<<8 | uint32(e.mem[address+uint32(i)])
	}
	return v
}

func (e *FakeEngine) MemWriteMemory(address uint32, width int, value uint32) {
	for i := 0; i < width; i++ {
		shift := 8 * (width - 1 - i)
		e.mem[address+uint32(i)] = byte(value >> shift)
	}
}

func (e *FakeEngine) MemAddDevice(base, size uint32) {
	e.ranges = append(e.ranges, deviceRange{base, size})
}

func (e *FakeEngine) MemSetDeviceHandler(fn DeviceAccessFunc) { e.deviceHandler = fn }
func (e *FakeEngine) MemSetTraceHandler(fn TraceFunc)         { e.traceHandler = fn }

// RaiseBusError records the fault for the test harness to inspect. A real
// interpreter would unwind the in-flight access and dispatch its bus-error
// vector here instead; FakeEngine never executes guest code, so there is no
// exception dispatch to simulate beyond recording that it would have fired.
func (e *FakeEngine) RaiseBusError(address uint32, write bool) {
	e.busErrorRaised = true
	e.busErrorAddress = address
	e.busErrorWrite = write
}

func (e *FakeEngine) SetIntAckCallback(fn IntAckFunc)              { e.intAck = fn }
func (e *FakeEngine) SetResetInstrCallback(fn func())              { e.resetCB = fn }
func (e *FakeEngine) SetIllegalInstrCallback(fn func(uint16) bool) { e.illegalCB = fn }
func (e *FakeEngine) SetInstrHookCallback(fn InstrHookFunc)        { e.instrHook = fn }

func (e *FakeEngine) Shutdown() { e.shutdown = true }

// --- test-harness driving surface (not part of Engine) ----------------------

// Access simulates a guest memory access that the real interpreter would
// route to the declared device-space handler.
func (e *FakeEngine) Access(op MemOp, address uint32, width int, value uint32) uint32 {
	if e.traceHandler != nil {
		e.traceHandler(op, address, width, value)
	}
	if e.deviceHandler != nil {
		return e.deviceHandler(op, address, width, value)
	}
	return 0
}

// Ack simulates the engine initiating interrupt-acknowledge for level.
func (e *FakeEngine) Ack(level int) uint32 {
	if e.intAck == nil {
		return IRQSpurious
	}
	return e.intAck(level)
}

// RaiseIllegal simulates the guest executing opcode; returns whatever the
// installed illegal-instruction callback returns (true = handled).
func (e *FakeEngine) RaiseIllegal(opcode uint16) bool {
	if e.illegalCB == nil {
		return false
	}
	return e.illegalCB(opcode)
}

// InstrHook simulates the per-instruction trace callback firing at pc.
func (e *FakeEngine) InstrHook(pc uint32) {
	if e.instrHook != nil {
		e.instrHook(pc)
	}
}

// BusErrorRaised reports whether RaiseBusError has been called, and with
// what address/direction, for tests asserting that a faulting access was
// delivered to the CPU rather than swallowed.
func (e *FakeEngine) BusErrorRaised() (raised bool, address uint32, write bool) {
	return e.busErrorRaised, e.busErrorAddress, e.busErrorWrite
}
