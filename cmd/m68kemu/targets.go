/*
 * m68kemu - built-in targets.
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

package main

import (
	"fmt"
	"sort"

	"github.com/rcornwell/m68kemu/devices/timer"
	"github.com/rcornwell/m68kemu/devices/uart"
	"github.com/rcornwell/m68kemu/internal/machine"
)

// builtinTarget constructs a target's memory and devices directly in Go, for
// targets small enough not to need a configuration file of their own.
// SPEC_FULL.md §10's configuration paragraph names exactly one of these:
// "simple", the walkthrough target for §8 scenario 1.
type builtinTarget struct {
	description string
	build       func(m *machine.Machine) error
}

var builtinTargets = map[string]builtinTarget{
	"simple": {
		description: "15MiB RAM; UART@0xff0000/IPL2; Timer@0xff1000/IPL6,1000us",
		build:       buildSimpleTarget,
	},
}

const simpleRAMSize = 15 * 1024 * 1024

func buildSimpleTarget(m *machine.Machine) error {
	if err := m.AddMemory(0, simpleRAMSize, true, nil); err != nil {
		return err
	}
	if err := addBuiltinDevice(m, "uart@ff0000", uart.New, machine.Options{
		"address": "0xff0000", "interrupt": "2",
	}); err != nil {
		return err
	}
	return addBuiltinDevice(m, "timer@ff1000", timer.New, machine.Options{
		"address": "0xff1000", "interrupt": "6", "period": "1000",
	})
}

func addBuiltinDevice(m *machine.Machine, name string, factory machine.Factory, opts machine.Options) error {
	dev, err := factory(m, name, opts)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return m.Registry.Register(name, dev)
}

// listTargets returns one formatted line per built-in target, sorted by
// name, for --list-targets. Config-file targets aren't enumerable without a
// search-path convention this module doesn't define.
func listTargets() []string {
	names := make([]string, 0, len(builtinTargets))
	for name := range builtinTargets {
		names = append(names, name)
	}
	sort.Strings(names)
	lines := make([]string, len(names))
	for i, name := range names {
		lines[i] = fmt.Sprintf("%-10s %s", name, builtinTargets[name].description)
	}
	return lines
}
