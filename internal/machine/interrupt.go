/*
 * m68kemu - prioritized interrupt aggregator (component E).
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

// IRQSink is the slice of the CPU engine the interrupt aggregator drives:
// the IRQ input line, the current priority mask (from the status register),
// and the ability to force an early quantum exit. Satisfied by
// internal/cpuengine.Engine.
type IRQSink interface {
	SetIRQ(level int)
	CurrentPriorityMask() int
	EndTimeslice()
}

// InterruptAggregator computes the maximum asserted IPL across all devices
// and drives the CPU engine's IRQ line, per SPEC_FULL.md §4.4. It holds only
// a reference to the Registry it reads IPLs from; the Registry, not the
// aggregator, owns device lifetime.
type InterruptAggregator struct {
	registry *Registry
	cpu      IRQSink
}

// NewInterruptAggregator creates an aggregator reading device state from reg.
func NewInterruptAggregator(reg *Registry) *InterruptAggregator {
	return &InterruptAggregator{registry: reg}
}

// SetIRQSink installs the CPU engine handle. May be nil for tests that only
// check the computed IPL.
func (a *InterruptAggregator) SetIRQSink(cpu IRQSink) { a.cpu = cpu }

// Assert records device d's asserted IPL and recomputes the aggregate line.
func (a *InterruptAggregator) Assert(d Device, ipl int) error {
	if err := a.registry.assertIPL(d, ipl); err != nil {
		return err
	}
	a.recompute()
	return nil
}

// Deassert clears device d's asserted IPL and recomputes the aggregate line.
func (a *InterruptAggregator) Deassert(d Device) {
	a.registry.deassertIPL(d)
	a.recompute()
}

// CurrentIPL returns max(asserted IPL over all devices).
func (a *InterruptAggregator) CurrentIPL() int {
	return a.registry.maxIPL()
}

// recompute implements SPEC_FULL.md §4.4 steps 1-4.
func (a *InterruptAggregator) recompute() {
	ipl := a.registry.maxIPL()
	if a.cpu == nil {
		return
	}
	a.cpu.SetIRQ(ipl)
	cpl := a.cpu.CurrentPriorityMask()
	if ipl > cpl && ipl > 0 {
		a.cpu.EndTimeslice()
	}
}

// Ack implements interrupt-acknowledge for level, iterating devices in
// registration order and returning the first non-spurious vector, or
// VectorSpurious if none claims it (SPEC_FULL.md §4.4, §9 open question #1:
// frozen to registration order, never priority order).
func (a *InterruptAggregator) Ack(level int) uint32 {
	return a.registry.ackVector(level)
}
