/*
 * m68kemu - debounced SIGINT handling.
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
	"sync"
	"time"
)

// sigintDebouncer reproduces the original's three-presses-within-one-second
// rule for turning repeated Ctrl-C into a forced "user interrupt"
// termination (SPEC_FULL.md §5, §12): fewer presses do not stop the run and
// are not passed on to the guest.
type sigintDebouncer struct {
	mu       sync.Mutex
	presses  []time.Time
	tripped  bool
}

const (
	debounceCount  = 3
	debounceWindow = time.Second
)

// Press records one SIGINT and reports whether the debounce threshold has
// now been met.
func (d *sigintDebouncer) Press() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := time.Now()
	cutoff := now.Add(-debounceWindow)
	kept := d.presses[:0]
	for _, t := range d.presses {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	d.presses = append(kept, now)
	if len(d.presses) >= debounceCount {
		d.tripped = true
	}
	return d.tripped
}

// Tripped reports whether the threshold has ever been met. Wired to
// emuloop.Loop.Interrupted, which the loop samples once per quantum.
func (d *sigintDebouncer) Tripped() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.tripped
}

// Force trips the debouncer unconditionally, for signals (SIGTERM) that
// mean "stop now" without needing the three-press debounce SIGINT gets.
func (d *sigintDebouncer) Force() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tripped = true
}
