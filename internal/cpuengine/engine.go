/*
 * m68kemu - CPU engine contract (SPEC_FULL.md §6).
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

// Package cpuengine models the native m68k instruction interpreter as a Go
// interface. The interpreter itself is explicitly out of scope (SPEC_FULL.md
// §1); this package exists so the rest of the framework compiles and is
// fully testable against a scriptable fake (see fake.go) without a real
// interpreter wired in. A cgo-backed engine (e.g. adapted from a Musashi-
// style core) would implement Engine unchanged.
package cpuengine

// Vector sentinels returned from the interrupt-acknowledge callback.
const (
	IRQAutovector uint32 = 0xFFFFFFFF
	IRQSpurious   uint32 = 0xFFFFFFFE
)

// Memory operation codes passed to the device-access and trace handlers.
type MemOp uint8

const (
	OpRead MemOp = iota
	OpWrite
)

// Register IDs understood by GetReg/SetReg: the data registers D0-D7, the
// address registers A0-A7 (A7 is the stack pointer), PC and SR.
type RegID int

const (
	RegD0 RegID = iota
	RegD1
	RegD2
	RegD3
	RegD4
	RegD5
	RegD6
	RegD7
	RegA0
	RegA1
	RegA2
	RegA3
	RegA4
	RegA5
	RegA6
	RegA7 // stack pointer
	RegPC
	RegSR
)

// DeviceAccessFunc is invoked by the engine for every access that falls in
// device space declared via MemAddDevice. For a read, value is ignored and
// the return value is the bus result; for a write, the return value is
// ignored.
type DeviceAccessFunc func(op MemOp, address uint32, width int, value uint32) uint32

// TraceFunc is invoked by the engine for every traced memory access.
type TraceFunc func(op MemOp, address uint32, width int, value uint32)

// IntAckFunc is invoked by the engine during interrupt acknowledge for the
// given level; it returns a vector number, IRQAutovector, or IRQSpurious.
type IntAckFunc func(level int) uint32

// InstrHookFunc is invoked before every instruction when instruction tracing
// is enabled; pc is the address of the instruction about to execute.
type InstrHookFunc func(pc uint32)

// Engine is the narrow surface SPEC_FULL.md §6 requires of the external CPU
// interpreter.
type Engine interface {
	SetCPUType(cpuType string)
	CPUInit()
	PulseReset()

	Execute(cycles int64) (cyclesRun int64)
	CyclesRun() int64
	CyclesRemaining() int64
	ModifyTimeslice(cyclesFromNow int64)
	EndTimeslice()

	SetIRQ(level int)
	CurrentPriorityMask() int

	GetReg(id RegID) uint32
	SetReg(id RegID, value uint32)

	Disassemble(pc uint32) string

	MemAddMemory(base, size uint32, writable bool)
	MemWriteBulk(base uint32, data []byte)
	MemReadMemory(address uint32, width int) uint32
	MemWriteMemory(address uint32, width int, value uint32)
	MemAddDevice(base, size uint32)
	MemSetDeviceHandler(fn DeviceAccessFunc)
	MemSetTraceHandler(fn TraceFunc)

	// RaiseBusError notifies the engine that the access it is currently
	// dispatching through DeviceAccessFunc faulted: the engine abandons the
	// access and takes the CPU's bus-error exception (vector 2) instead of
	// returning normally from it. Valid only while inside a DeviceAccessFunc
	// call; it does not itself stop Execute's quantum.
	RaiseBusError(address uint32, write bool)

	SetIntAckCallback(fn IntAckFunc)
	SetResetInstrCallback(fn func())
	SetIllegalInstrCallback(fn func(opcode uint16) bool)
	SetInstrHookCallback(fn InstrHookFunc)

	Shutdown()
}
