/*
 * m68kemu - cooperative cycle scheduler (component D).
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

// CallbackFunc is a scheduled handler. It takes no argument; a device that
// needs one closes over it.
type CallbackFunc func()

// QuantumRequester is the narrow slice of the CPU engine the scheduler needs:
// the ability to shorten the currently-running execute() quantum so it ends
// no later than cyclesFromNow. Satisfied by internal/cpuengine.Engine.
type QuantumRequester interface {
	ModifyTimeslice(cyclesFromNow int64)
}

type ownerKey struct {
	owner Device
	name  string
}

type callbackEntry struct {
	owner  Device
	name   string
	target int64 // absolute cycle
	period int64 // 0 = one-shot
	fn     CallbackFunc
}

// Scheduler tracks pending one-shot and periodic callback entries keyed by
// (device, name), per SPEC_FULL.md §4.3. It holds no notion of "now" itself;
// callers (the emulator loop) pass the current elapsed-cycle count into every
// operation, which keeps the scheduler usable from tests without a Machine.
type Scheduler struct {
	entries map[ownerKey]*callbackEntry
	cpu     QuantumRequester
}

// NewScheduler creates an empty scheduler.
func NewScheduler() *Scheduler {
	return &Scheduler{entries: make(map[ownerKey]*callbackEntry)}
}

// SetQuantumRequester installs the CPU engine handle used for deadline
// coupling. May be nil (useful in unit tests that only check entry state).
func (s *Scheduler) SetQuantumRequester(cpu QuantumRequester) { s.cpu = cpu }

// At schedules fn to run at absolute cycle target, replacing any existing
// entry owned by (owner, name). Scheduling at or before now is a programming
// error per SPEC_FULL.md §4.3 and panics, matching the original's "fails
// loudly" requirement — this is a configuration bug, not a runtime condition
// a device should need to recover from.
func (s *Scheduler) At(now int64, owner Device, name string, target int64, fn CallbackFunc) {
	if target <= now {
		panic(fmt.Sprintf("machine: callback %q scheduled at cycle %d at or before current cycle %d", name, target, now))
	}
	s.entries[ownerKey{owner, name}] = &callbackEntry{owner: owner, name: name, target: target, fn: fn}
	s.arm(now)
}

// After schedules fn to run delta cycles from now (delta must be > 0).
func (s *Scheduler) After(now int64, owner Device, name string, delta int64, fn CallbackFunc) {
	s.At(now, owner, name, now+delta, fn)
}

// Every schedules fn to run every period cycles, first firing at now+period.
func (s *Scheduler) Every(now int64, owner Device, name string, period int64, fn CallbackFunc) {
	if period <= 0 {
		panic(fmt.Sprintf("machine: callback_every %q requires a positive period, got %d", name, period))
	}
	s.entries[ownerKey{owner, name}] = &callbackEntry{owner: owner, name: name, target: now + period, period: period, fn: fn}
	s.arm(now)
}

// Cancel removes a pending entry, if any. Safe to call from within a firing
// callback, including to cancel the entry currently executing.
func (s *Scheduler) Cancel(owner Device, name string) {
	delete(s.entries, ownerKey{owner, name})
}

// NextDeadline returns the earliest pending target cycle, if any entry is
// pending.
func (s *Scheduler) NextDeadline() (int64, bool) {
	found := false
	var earliest int64
	for _, e := range s.entries {
		if !found || e.target < earliest {
			earliest = e.target
			found = true
		}
	}
	return earliest, found
}

// FireDue fires every entry whose target cycle is <= now, in non-decreasing
// target-cycle order (SPEC_FULL.md §4.3 monotonicity). Periodic entries are
// re-armed by period and kept; one-shot entries are removed before their
// handler runs, so a handler that reschedules itself under the same name
// (including its own periodic re-arm) observes a clean slate. After firing
// everything due, the CPU engine is re-armed to the new earliest deadline.
func (s *Scheduler) FireDue(now int64) {
	for {
		var due *callbackEntry
		var dueKey ownerKey
		for k, e := range s.entries {
			if e.target > now {
				continue
			}
			if due == nil || e.target < due.target {
				due = e
				dueKey = k
			}
		}
		if due == nil {
			break
		}
		if due.period > 0 {
			due.target += due.period
			for due.target <= now {
				due.target += due.period
			}
		} else {
			delete(s.entries, dueKey)
		}
		due.fn()
	}
	s.arm(now)
}

// arm re-requests a shortened quantum from the CPU engine if a pending
// deadline is now the nearest thing on the horizon.
func (s *Scheduler) arm(now int64) {
	if s.cpu == nil {
		return
	}
	if deadline, ok := s.NextDeadline(); ok {
		s.cpu.ModifyTimeslice(deadline - now)
	}
}
