/*
 * m68kemu - Machine: the explicit injected context replacing process-wide
 * globals (SPEC_FULL.md §9).
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

package machine

// ConsoleSink is the opaque output/input byte-stream collaborator devices
// talk to through Services.ConsoleOutput / Services.RegisterConsoleInput
// (SPEC_FULL.md §4.1, §6). internal/console implements it.
type ConsoleSink interface {
	Output(data []byte)
	RegisterInputHandler(fn func(data []byte))
}

// Services is the framework surface offered to devices (SPEC_FULL.md §4.1):
// clock views, the callback scheduler, interrupt lines, and console I/O.
// Every method that addresses a per-device resource (callbacks, IPL) takes
// the owning device explicitly, per the "machine reaches device by index,
// device references machine for services" resolution in SPEC_FULL.md §9 —
// there is no implicit "self" binding.
type Services interface {
	CurrentCycle() int64
	CurrentTime() float64 // microseconds, cycles * 1e6 / frequency
	CycleRate() int64     // Hz

	CallbackAt(owner Device, name string, cycle int64, fn CallbackFunc)
	CallbackAfter(owner Device, name string, delta int64, fn CallbackFunc)
	CallbackEvery(owner Device, name string, period int64, fn CallbackFunc)
	CallbackCancel(owner Device, name string)

	AssertIPL(owner Device, ipl int) error
	DeassertIPL(owner Device)

	AddRegister(desc *RegisterDescriptor) error
	AddMemory(base, size uint32, writable bool, initial []byte) error

	ConsoleOutput(data []byte)
	RegisterConsoleInput(fn func(data []byte))

	Trace(action, symbol, info string)
}

// Machine owns every piece of mutable simulation state: the address map,
// the device registry, the scheduler, and the interrupt aggregator. It is
// passed into every device constructor instead of the source's process-wide
// mutable class variables (SPEC_FULL.md §9).
type Machine struct {
	Bus       *Bus
	Registry  *Registry
	Scheduler *Scheduler
	IRQ       *InterruptAggregator

	frequency int64 // Hz
	elapsed   int64 // cycles since reset

	console ConsoleSink
	tracer  Tracer
}

// New creates a Machine with the given simulated CPU frequency (Hz) and bus
// miss behavior. The scheduler and interrupt aggregator are wired to cpu
// once the CPU engine is constructed; see SetCPU.
func New(frequency int64, enableBusError bool, missBehavior MissBehavior) *Machine {
	reg := NewRegistry()
	return &Machine{
		Bus:       NewBus(enableBusError, missBehavior),
		Registry:  reg,
		Scheduler: NewScheduler(),
		IRQ:       NewInterruptAggregator(reg),
		frequency: frequency,
	}
}

// quantumAndIRQ is satisfied by internal/cpuengine.Engine: it is both a
// QuantumRequester (for the scheduler) and an IRQSink (for the aggregator).
type quantumAndIRQ interface {
	QuantumRequester
	IRQSink
}

// SetCPU wires the scheduler's deadline coupling and the aggregator's IRQ
// line to the CPU engine, per SPEC_FULL.md §4.3/§4.4.
func (m *Machine) SetCPU(cpu quantumAndIRQ) {
	m.Scheduler.SetQuantumRequester(cpu)
	m.IRQ.SetIRQSink(cpu)
}

// SetConsole installs the console sink (component in §6). May be nil.
func (m *Machine) SetConsole(c ConsoleSink) { m.console = c }

// SetTracer installs the trace sink (component H) for bus traces as well as
// device-initiated trace lines.
func (m *Machine) SetTracer(t Tracer) {
	m.tracer = t
	m.Bus.SetTracer(t)
}

// SetIOTrace toggles per-register trace lines on the bus (SPEC_FULL.md §4.2).
func (m *Machine) SetIOTrace(enabled bool) { m.Bus.SetIOTrace(enabled) }

// Advance moves the elapsed-cycle counter forward by n and fires any now-due
// scheduler entries. Called by the emulator loop (component F) once per
// quantum.
func (m *Machine) Advance(n int64) {
	m.elapsed += n
	m.Scheduler.FireDue(m.elapsed)
}

// Reset runs every device's Reset() in registration order (SPEC_FULL.md §4.8).
func (m *Machine) Reset() error {
	return m.Registry.Reset()
}

// --- Services implementation -------------------------------------------------

func (m *Machine) CurrentCycle() int64 { return m.elapsed }

func (m *Machine) CurrentTime() float64 {
	if m.frequency == 0 {
		return 0
	}
	return float64(m.elapsed) * 1e6 / float64(m.frequency)
}

func (m *Machine) CycleRate() int64 { return m.frequency }

func (m *Machine) CallbackAt(owner Device, name string, cycle int64, fn CallbackFunc) {
	m.Scheduler.At(m.elapsed, owner, name, cycle, fn)
}

func (m *Machine) CallbackAfter(owner Device, name string, delta int64, fn CallbackFunc) {
	m.Scheduler.After(m.elapsed, owner, name, delta, fn)
}

func (m *Machine) CallbackEvery(owner Device, name string, period int64, fn CallbackFunc) {
	m.Scheduler.Every(m.elapsed, owner, name, period, fn)
}

func (m *Machine) CallbackCancel(owner Device, name string) {
	m.Scheduler.Cancel(owner, name)
}

func (m *Machine) AssertIPL(owner Device, ipl int) error {
	return m.IRQ.Assert(owner, ipl)
}

func (m *Machine) DeassertIPL(owner Device) {
	m.IRQ.Deassert(owner)
}

func (m *Machine) AddRegister(desc *RegisterDescriptor) error {
	return m.Bus.AddRegister(desc)
}

func (m *Machine) AddMemory(base, size uint32, writable bool, initial []byte) error {
	return m.Bus.AddMemory(base, size, writable, initial)
}

func (m *Machine) ConsoleOutput(data []byte) {
	if m.console != nil {
		m.console.Output(data)
	}
}

func (m *Machine) RegisterConsoleInput(fn func(data []byte)) {
	if m.console != nil {
		m.console.RegisterInputHandler(fn)
	}
}

func (m *Machine) Trace(action, symbol, info string) {
	if m.tracer != nil {
		m.tracer.Trace(action, symbol, info)
	}
}
