/*
 * m68kemu - emulator main loop (component F).
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

// Package emuloop implements the quantum-based emulator loop (component F,
// SPEC_FULL.md §4.5) and the host-services ABI reached through illegal-
// instruction traps. Grounded on the shape of emu/core/core.go's Start/Stop/
// processPacket loop (running flag, done channel, a switch over a small
// command set) generalized from S/370's event+master-packet model to the
// quantum/scheduler/interrupt-aggregator model this framework uses instead.
package emuloop

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/rcornwell/m68kemu/internal/cpuengine"
	"github.com/rcornwell/m68kemu/internal/machine"
	"github.com/rcornwell/m68kemu/internal/trace"
)

// TerminationReason identifies why Run returned, per SPEC_FULL.md §4.8/§7.
type TerminationReason int

const (
	TerminationNone TerminationReason = iota
	TerminationCycleLimit
	TerminationHostShutdown
	TerminationBusError
	TerminationFatalDevice
	TerminationUserInterrupt
)

func (r TerminationReason) String() string {
	switch r {
	case TerminationCycleLimit:
		return "cycle-limit"
	case TerminationHostShutdown:
		return "host-shutdown"
	case TerminationBusError:
		return "bus-error"
	case TerminationFatalDevice:
		return "fatal-device"
	case TerminationUserInterrupt:
		return "user-interrupt"
	default:
		return "none"
	}
}

// ExitCode maps a termination reason to the process exit code SPEC_FULL.md
// §6 assigns it: 0 for a clean cycle-limit or host-requested shutdown, a
// distinct nonzero code per failure class.
func (r TerminationReason) ExitCode() int {
	switch r {
	case TerminationNone, TerminationCycleLimit, TerminationHostShutdown:
		return 0
	case TerminationBusError:
		return 2
	case TerminationFatalDevice:
		return 3
	case TerminationUserInterrupt:
		return 130
	default:
		return 1
	}
}

// hostServiceLineA is the opcode family (m68k "line-A", 0xA000-0xAFFF) used
// to carry host-service traps; the low 12 bits select the service.
const hostServiceLineA = 0xA000

// HostServiceFunc implements one host-services ABI call. Its arguments are
// in the guest's registers (D0-D2 and A0, depending on the service); an
// implementation reads/writes engine registers and memory directly via
// Loop's fields.
type HostServiceFunc func(l *Loop) error

const (
	ServiceVersion       = 0x00
	ServiceWriteStderr   = 0x01
	ServiceShutdown      = 0x02
	ServiceTraceControl  = 0x03
	ServiceBlockTransfer = 0x04
)

// protocolVersion is returned by ServiceVersion, for guest code to detect
// which host-services ABI revision it is running against.
const protocolVersion = 1

// ServiceTraceControl's D1 sub-opcodes: stop/start a category (D0 selects
// which), or set a cycle-count limit (D2) beyond which tracing is forced off
// regardless of category (SPEC_FULL.md §4.5's "trace control (stop/start/
// limit)").
const (
	traceControlStop = iota
	traceControlStart
	traceControlLimit
)

// BlockDevice is the optional raw block-device backdoor a device model can
// register for ServiceBlockTransfer (SPEC_FULL.md §6's "device-supplied
// options"); CompactFlash is the expected implementer.
type BlockDevice interface {
	ReadSector(lba uint32, dst []byte) error
	WriteSector(lba uint32, src []byte) error
}

// Loop drives Engine across successive quanta, keeping it synchronized with
// Machine's scheduler and interrupt aggregator, and dispatches the host-
// services ABI.
type Loop struct {
	Machine *machine.Machine
	Engine  cpuengine.Engine
	Trace   *trace.Sink
	Stderr  io.Writer

	// CycleLimit bounds total cycles executed; 0 means unbounded (the loop
	// still exits on host shutdown, user interrupt, or fatal device error).
	CycleLimit int64

	// MaxQuantum is the largest cycle count the loop passes to one Execute
	// call; the quantum is shorter when the scheduler's next deadline or a
	// limit is nearer.
	MaxQuantum int64

	// TraceLimit, if nonzero, is the total cycle count at which the loop
	// forces every trace category off, set by the guest through
	// ServiceTraceControl's limit form (SPEC_FULL.md §4.5's trace_limit
	// term). Quanta are shortened so the run lands exactly on it; 0 means
	// no limit.
	TraceLimit int64

	// Poll, if set, is invoked once per quantum boundary -- the console's
	// non-blocking suspension point (SPEC_FULL.md §5).
	Poll func()

	// Interrupted is checked once per quantum boundary; when it reports
	// true the loop terminates with TerminationUserInterrupt. Wired to the
	// debounced SIGINT handler (SPEC_FULL.md §5, §12).
	Interrupted func() bool

	BlockDevice BlockDevice

	services map[int]HostServiceFunc
	reason   TerminationReason
	fatalErr error
}

const defaultMaxQuantum = 10000

// New builds a Loop with the default host services registered.
func New(m *machine.Machine, engine cpuengine.Engine) *Loop {
	l := &Loop{Machine: m, Engine: engine, MaxQuantum: defaultMaxQuantum, services: make(map[int]HostServiceFunc)}
	l.registerDefaultServices()
	return l
}

// RegisterService overrides or adds a host-services ABI entry point.
func (l *Loop) RegisterService(id int, fn HostServiceFunc) { l.services[id] = fn }

func (l *Loop) registerDefaultServices() {
	l.services[ServiceVersion] = func(l *Loop) error {
		l.Engine.SetReg(cpuengine.RegD0, protocolVersion)
		return nil
	}
	l.services[ServiceWriteStderr] = func(l *Loop) error {
		ptr := l.Engine.GetReg(cpuengine.RegA0)
		length := l.Engine.GetReg(cpuengine.RegD0)
		if l.Stderr == nil || length == 0 {
			return nil
		}
		buf := make([]byte, length)
		for i := range buf {
			buf[i] = byte(l.Engine.MemReadMemory(ptr+uint32(i), 1))
		}
		_, err := l.Stderr.Write(buf)
		return err
	}
	l.services[ServiceShutdown] = func(l *Loop) error {
		l.reason = TerminationHostShutdown
		return nil
	}
	l.services[ServiceTraceControl] = func(l *Loop) error {
		if l.Trace == nil {
			return nil
		}
		switch l.Engine.GetReg(cpuengine.RegD1) {
		case traceControlLimit:
			l.TraceLimit = int64(l.Engine.GetReg(cpuengine.RegD2))
		default:
			cat := trace.Category(categoryName(l.Engine.GetReg(cpuengine.RegD0)))
			enable := l.Engine.GetReg(cpuengine.RegD1) == traceControlStart
			l.Trace.Enable(cat, enable)
		}
		return nil
	}
	l.services[ServiceBlockTransfer] = func(l *Loop) error {
		if l.BlockDevice == nil {
			return &machine.HostServiceError{Code: uint32(ServiceBlockTransfer)}
		}
		lba := l.Engine.GetReg(cpuengine.RegD0)
		ptr := l.Engine.GetReg(cpuengine.RegA0)
		write := l.Engine.GetReg(cpuengine.RegD1) != 0
		buf := make([]byte, 512)
		if write {
			for i := range buf {
				buf[i] = byte(l.Engine.MemReadMemory(ptr+uint32(i), 1))
			}
			return l.BlockDevice.WriteSector(lba, buf)
		}
		if err := l.BlockDevice.ReadSector(lba, buf); err != nil {
			return err
		}
		for i, b := range buf {
			l.Engine.MemWriteMemory(ptr+uint32(i), 1, uint32(b))
		}
		return nil
	}
}

func categoryName(id uint32) string {
	names := []string{"memory", "register", "instruction", "jump", "execute", "exception", "diagnostic"}
	if int(id) < len(names) {
		return names[id]
	}
	return "diagnostic"
}

// Run installs the framework's hooks into Engine, pulses reset, and drives
// quanta until a termination condition is reached.
func (l *Loop) Run() TerminationReason {
	l.installHooks()
	l.Engine.CPUInit()
	l.Engine.PulseReset()
	if err := l.Machine.Reset(); err != nil {
		l.fatal(err)
	}

	var cyclesRun int64
	for l.reason == TerminationNone {
		if l.Interrupted != nil && l.Interrupted() {
			l.reason = TerminationUserInterrupt
			break
		}

		quantum := l.computeQuantum(cyclesRun)
		if quantum <= 0 {
			l.reason = TerminationCycleLimit
			break
		}

		ran := l.Engine.Execute(quantum)
		cyclesRun += ran
		l.Machine.Advance(ran)

		if l.Poll != nil {
			l.Poll()
		}
		if l.TraceLimit > 0 && cyclesRun >= l.TraceLimit {
			l.Trace.DisableAll()
			l.TraceLimit = 0
		}
		if l.fatalErr != nil {
			l.reason = l.classify(l.fatalErr)
		}
		if l.reason == TerminationNone && l.CycleLimit > 0 && cyclesRun >= l.CycleLimit {
			l.reason = TerminationCycleLimit
		}
	}

	l.Engine.Shutdown()
	return l.reason
}

// Err returns the error that caused termination, if any.
func (l *Loop) Err() error { return l.fatalErr }

func (l *Loop) classify(err error) TerminationReason {
	var busErr *machine.BusError
	if asBusError(err, &busErr) {
		return TerminationBusError
	}
	return TerminationFatalDevice
}

func asBusError(err error, target **machine.BusError) bool {
	be, ok := err.(*machine.BusError)
	if ok {
		*target = be
	}
	return ok
}

func (l *Loop) fatal(err error) {
	if l.fatalErr == nil {
		l.fatalErr = err
	}
}

// computeQuantum implements SPEC_FULL.md §4.5's quantum formula: the
// smaller of MaxQuantum, the scheduler's next deadline minus now, the
// cycles remaining under CycleLimit, and the cycles remaining under
// TraceLimit.
func (l *Loop) computeQuantum(cyclesRun int64) int64 {
	now := l.Machine.CurrentCycle()
	quantum := l.MaxQuantum
	if quantum <= 0 {
		quantum = defaultMaxQuantum
	}
	if deadline, ok := l.Machine.Scheduler.NextDeadline(); ok {
		if d := deadline - now; d < quantum {
			quantum = d
		}
	}
	if l.CycleLimit > 0 {
		remaining := l.CycleLimit - cyclesRun
		if remaining <= 0 {
			return 0
		}
		if remaining < quantum {
			quantum = remaining
		}
	}
	if l.TraceLimit > 0 && cyclesRun < l.TraceLimit {
		if remaining := l.TraceLimit - cyclesRun; remaining < quantum {
			quantum = remaining
		}
	}
	if quantum <= 0 {
		quantum = 1
	}
	return quantum
}

func (l *Loop) installHooks() {
	l.Engine.SetIntAckCallback(func(level int) uint32 { return l.Machine.IRQ.Ack(level) })
	l.Engine.SetIllegalInstrCallback(l.handleIllegal)
	l.Engine.SetResetInstrCallback(func() {
		if err := l.Machine.Reset(); err != nil {
			l.fatal(err)
		}
	})
	l.bridgeMemory()
	if l.Trace != nil {
		l.Engine.SetInstrHookCallback(func(pc uint32) {
			l.Trace.TraceCategory(trace.CategoryInstruction, "EXEC", pc, l.Engine.Disassemble(pc))
		})
		l.Engine.MemSetTraceHandler(func(op cpuengine.MemOp, address uint32, width int, value uint32) {
			action := "READ"
			if op == cpuengine.OpWrite {
				action = "WRITE"
			}
			l.Trace.TraceCategory(trace.CategoryMemory, action, address, fmt.Sprintf("%#x", value))
		})
	}
}

// bridgeMemory mirrors every region Machine.Bus has declared into Engine's
// own memory (so a real interpreter's fast-path RAM array sees the same
// contents the bus does -- in particular whatever internal/loader already
// wrote there) and routes everything else through a device handler that
// dispatches to the bus, so device registers work regardless of how the
// engine partitions its address space (SPEC_FULL.md §4.2). FakeEngine never
// consults MemAddMemory/MemAddDevice ranges and sends every Access call to
// the device handler, so for it this reduces to "route everything through
// the bus" -- which is exactly what a register-mapped machine needs.
func (l *Loop) bridgeMemory() {
	for _, r := range l.Machine.Bus.Regions() {
		l.Engine.MemAddMemory(r.Base, r.Size, r.Writable)
		l.Engine.MemWriteBulk(r.Base, l.Machine.Bus.Bytes(r.Base, r.Size))
	}
	l.Engine.MemAddDevice(0, 0xFFFFFFFF)
	l.Engine.MemSetDeviceHandler(func(op cpuengine.MemOp, address uint32, width int, value uint32) uint32 {
		w := machine.Width(width)
		if op == cpuengine.OpWrite {
			if err := l.Machine.Bus.Write(address, w, value); err != nil {
				l.handleBusFault(err, address, true)
			}
			return 0
		}
		v, err := l.Machine.Bus.Read(address, w)
		if err != nil {
			l.handleBusFault(err, address, false)
			return 0
		}
		return v
	})
}

// handleBusFault routes a Bus.Read/Write error back to the access that
// caused it. A *machine.BusError is the guest's problem, not the host's:
// SPEC_FULL.md §7 requires it be delivered to Engine as a synchronous
// exception (vector 2) and must never stop the run. Anything else reaching
// here is a device misbehaving, which is still fatal.
func (l *Loop) handleBusFault(err error, address uint32, write bool) {
	var busErr *machine.BusError
	if asBusError(err, &busErr) {
		l.Engine.RaiseBusError(address, write)
		return
	}
	l.fatal(err)
}

// handleIllegal is the illegal-instruction callback wired to Engine. It
// recognizes the line-A host-services encoding and dispatches the
// registered service; any other illegal opcode is reported unhandled so the
// engine can raise its normal illegal-instruction exception.
func (l *Loop) handleIllegal(opcode uint16) bool {
	if opcode&0xF000 != hostServiceLineA {
		return false
	}
	id := int(opcode & 0x0FFF)
	fn, ok := l.services[id]
	if !ok {
		slog.Warn("unknown host service requested", "id", id)
		return false
	}
	if err := fn(l); err != nil {
		if _, unrecognized := err.(*machine.HostServiceError); unrecognized {
			return false
		}
		l.fatal(err)
	}
	return true
}
