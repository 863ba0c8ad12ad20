/*
 * m68kemu - programmable interval timer device.
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

// Package timer implements a fixed-period interval timer that asserts an IPL
// every configured number of microseconds. The line is level-triggered
// (machine.InterruptAggregator), so ticks that occur while the guest has the
// IPL masked do not queue up: unmasking sees one pending interrupt, not one
// per missed tick, with no bookkeeping needed here to make that true.
package timer

import (
	"strconv"

	"github.com/rcornwell/m68kemu/config/configparser"
	"github.com/rcornwell/m68kemu/internal/machine"
)

const callbackName = "tick"

// Timer periodically asserts its configured IPL; acknowledging it (GetVector)
// deasserts the line until the next tick.
type Timer struct {
	svc      machine.Services
	name     string
	address  uint32
	irq      int
	vector   uint32
	periodUS int64
	enabled  bool
}

const controlOffset = 0

// New constructs a Timer device. Recognized options: "interrupt" (IPL 1-7,
// required), "period" (microseconds between ticks, required), and "vector"
// (programmed interrupt vector; defaults to autovectoring). The bus address
// backs a single control register (bit 0: counting enabled) so a guest can
// stop and restart the timer without a full machine reset.
func New(svc machine.Services, name string, opts machine.Options) (machine.Device, error) {
	address, ok := opts.Address()
	if !ok {
		return nil, &machine.ConfigError{Device: name, Reason: "timer requires a bus address"}
	}
	irq, ok := opts.Interrupt()
	if !ok {
		return nil, &machine.ConfigError{Device: name, Reason: "timer requires an interrupt option"}
	}
	periodStr, ok := opts["period"]
	if !ok {
		return nil, &machine.ConfigError{Device: name, Reason: "timer requires a period option (microseconds)"}
	}
	periodUS, err := strconv.ParseInt(periodStr, 10, 64)
	if err != nil || periodUS <= 0 {
		return nil, &machine.ConfigError{Device: name, Reason: "timer period must be a positive integer of microseconds"}
	}

	t := &Timer{
		svc:      svc,
		name:     name,
		address:  address,
		irq:      irq,
		vector:   machine.VectorAutovector,
		periodUS: periodUS,
	}
	if v, ok := opts["vector"]; ok {
		n, err := strconv.ParseUint(v, 0, 32)
		if err != nil {
			return nil, &machine.ConfigError{Device: name, Reason: "timer vector must be numeric"}
		}
		t.vector = uint32(n)
	}

	if err := svc.AddRegister(&machine.RegisterDescriptor{
		DeviceName: name, RegisterName: "control",
		Address: address + controlOffset, Width: machine.Width8, Direction: machine.DirWrite,
		Write: t.writeControl,
	}); err != nil {
		return nil, err
	}
	if err := svc.AddRegister(&machine.RegisterDescriptor{
		DeviceName: name, RegisterName: "control",
		Address: address + controlOffset, Width: machine.Width8, Direction: machine.DirRead,
		Read: t.readControl,
	}); err != nil {
		return nil, err
	}

	t.start()
	return t, nil
}

func (t *Timer) readControl() uint32 {
	if t.enabled {
		return 1
	}
	return 0
}

// writeControl enables or disables counting: bit 0 set starts (or restarts)
// the periodic callback, clear stops it and drops any pending interrupt.
func (t *Timer) writeControl(value uint32) {
	if value&1 != 0 {
		t.start()
	} else {
		t.stop()
	}
}

func (t *Timer) start() {
	t.enabled = true
	t.arm()
}

func (t *Timer) stop() {
	t.enabled = false
	t.svc.CallbackCancel(t, callbackName)
	t.svc.DeassertIPL(t)
}

// arm (re-)schedules the periodic tick callback from the current cycle.
func (t *Timer) arm() {
	period := t.periodUS * t.svc.CycleRate() / 1_000_000
	if period <= 0 {
		period = 1
	}
	t.svc.CallbackEvery(t, callbackName, period, t.fire)
}

// fire asserts the configured IPL. Asserting while already asserted is a
// no-op from the aggregator's perspective (level-triggered), which is what
// collapses any number of ticks under mask into a single pending interrupt.
func (t *Timer) fire() {
	_ = t.svc.AssertIPL(t, t.irq)
}

// Reset cancels any pending interrupt and restarts counting, returning the
// timer to its just-configured, enabled state.
func (t *Timer) Reset() error {
	t.svc.CallbackCancel(t, callbackName)
	t.svc.DeassertIPL(t)
	t.start()
	return nil
}

// GetVector returns the configured vector and acknowledges the tick.
func (t *Timer) GetVector(ipl int) uint32 {
	t.svc.DeassertIPL(t)
	return t.vector
}

func init() {
	configparser.RegisterModel("timer", configparser.TypeModel, New)
}
