/*
 * m68kemu - device framework contract.
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

// Package machine implements the device framework core: the address map and
// register table, the device registry, the cooperative scheduler, and the
// interrupt aggregator. It owns all machine state explicitly through the
// Machine type; there is no package-level mutable state.
package machine

// Vector sentinels returned by GetVector, mirroring the CPU engine's own
// IRQ_AUTOVECTOR / IRQ_SPURIOUS constants (see internal/cpuengine).
const (
	VectorAutovector uint32 = 0xFFFFFFFF
	VectorSpurious   uint32 = 0xFFFFFFFE
)

// Device is the small capability set every peripheral model implements.
// Everything else a device needs (callbacks, interrupt lines, console I/O)
// is obtained through the Services handed to its constructor, not through a
// deeper inheritance hierarchy.
type Device interface {
	// Reset returns the device to power-on state. Called on every CPU
	// reset, in registration order. Must be idempotent.
	Reset() error

	// GetVector is invoked on the interrupting device during interrupt
	// acknowledge for the IPL it last asserted. It returns a programmed
	// vector, VectorAutovector, or VectorSpurious.
	GetVector(ipl int) uint32
}

// Factory constructs a device given its configuration bundle. Registered
// against a target name at init() time by device packages (config/configparser).
type Factory func(svc Services, name string, opts Options) (Device, error)

// Options is the parsed option bundle handed to a Factory: recognized values
// are pulled out by name; device-specific options are contributed freely by
// target modules per SPEC_FULL.md §6.
type Options map[string]string

// Address returns the "address" option as a bus address, if present.
func (o Options) Address() (uint32, bool) {
	v, ok := o["address"]
	if !ok {
		return 0, false
	}
	n, err := parseUintAuto(v)
	if err != nil {
		return 0, false
	}
	return uint32(n), true
}

// Interrupt returns the "interrupt" option as an IPL 1-7, if present.
func (o Options) Interrupt() (int, bool) {
	v, ok := o["interrupt"]
	if !ok {
		return 0, false
	}
	n, err := parseUintAuto(v)
	if err != nil || n == 0 || n > 7 {
		return 0, false
	}
	return int(n), true
}
