/*
 * m68kemu - device registry (component C).
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

import "fmt"

// deviceEntry is the registry's sole-owner record for one device. The
// interrupt aggregator reads IPL through the registry rather than holding
// its own copy of device state (SPEC_FULL.md §3 "weak references").
type deviceEntry struct {
	name        string
	device      Device
	assertedIPL int // 0 = none
}

// Registry owns every constructed device, in registration order. Order is
// significant: reset() fan-out and interrupt-acknowledge tie-breaks both
// iterate in registration order (SPEC_FULL.md §4.4, §9 open question #1).
type Registry struct {
	entries []*deviceEntry
	byName  map[string]*deviceEntry
}

// NewRegistry creates an empty device registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]*deviceEntry)}
}

// Register adds a constructed device under name. Names must be unique.
func (r *Registry) Register(name string, d Device) error {
	if _, exists := r.byName[name]; exists {
		return &ConfigError{Device: name, Reason: "device name already registered"}
	}
	e := &deviceEntry{name: name, device: d}
	r.entries = append(r.entries, e)
	r.byName[name] = e
	return nil
}

// Lookup returns the device registered under name.
func (r *Registry) Lookup(name string) (Device, bool) {
	e, ok := r.byName[name]
	if !ok {
		return nil, false
	}
	return e.device, true
}

// Reset runs every device's Reset() in registration order. The first error
// aborts the fan-out and is wrapped with the offending device's name
// (SPEC_FULL.md §4.8).
func (r *Registry) Reset() error {
	for _, e := range r.entries {
		if err := e.device.Reset(); err != nil {
			return &DeviceError{Device: e.name, Cause: err}
		}
	}
	return nil
}

// Names returns every registered device name, in registration order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.entries))
	for i, e := range r.entries {
		names[i] = e.name
	}
	return names
}

func (r *Registry) entryFor(d Device) *deviceEntry {
	for _, e := range r.entries {
		if e.device == d {
			return e
		}
	}
	return nil
}

// assertIPL and deassertIPL are called through the Services a device holds
// (see machine.go); they are unexported here because devices never touch the
// registry directly — only through the capability surface in SPEC_FULL.md §4.1.
func (r *Registry) assertIPL(d Device, ipl int) error {
	e := r.entryFor(d)
	if e == nil {
		return fmt.Errorf("machine: assert_ipl from unregistered device")
	}
	if ipl < 0 || ipl > 7 {
		return fmt.Errorf("machine: invalid IPL %d", ipl)
	}
	e.assertedIPL = ipl
	return nil
}

func (r *Registry) deassertIPL(d Device) {
	if e := r.entryFor(d); e != nil {
		e.assertedIPL = 0
	}
}

// maxIPL computes max(asserted IPL over all devices), per SPEC_FULL.md §4.4 step 1.
func (r *Registry) maxIPL() int {
	max := 0
	for _, e := range r.entries {
		if e.assertedIPL > max {
			max = e.assertedIPL
		}
	}
	return max
}

// ackVector implements interrupt-acknowledge for level n: the first device,
// in registration order, whose asserted IPL equals n and whose GetVector
// returns a non-spurious vector supplies it (SPEC_FULL.md §4.4).
func (r *Registry) ackVector(level int) uint32 {
	for _, e := range r.entries {
		if e.assertedIPL != level {
			continue
		}
		v := e.device.GetVector(level)
		if v != VectorSpurious {
			return v
		}
	}
	return VectorSpurious
}
