/*
 * m68kemu - goroutine lifecycle helpers.
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

// Package lifecycle consolidates the "close(done); select on wg.Wait vs a
// one-second timeout" shutdown pattern that recurs across the teacher's
// telnet listener and timer task into a single errgroup-backed helper, and
// adapts the teacher's emu/timer ticker into a wall-clock pulse source used
// to drive host-side polling cadence (console I/O). Neither
// type here ever drives in-machine device timing -- that is entirely the
// cycle-counted job of internal/machine.Scheduler.
package lifecycle

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Shutdowner runs a set of goroutines under a shared cancellation context
// and waits for them to exit with a bounded grace period on Stop.
type Shutdowner struct {
	g       *errgroup.Group
	ctx     context.Context
	cancel  context.CancelFunc
	timeout time.Duration
	label   string
}

// New creates a Shutdowner. label identifies the component in the warning
// logged if Stop times out.
func New(label string, timeout time.Duration) *Shutdowner {
	ctx, cancel := context.WithCancel(context.Background())
	g, ctx := errgroup.WithContext(ctx)
	return &Shutdowner{g: g, ctx: ctx, cancel: cancel, timeout: timeout, label: label}
}

// Done returns the context closed when Stop is called.
func (s *Shutdowner) Done() <-chan struct{} { return s.ctx.Done() }

// Go runs fn under the managed group. fn should return promptly once Done()
// closes.
func (s *Shutdowner) Go(fn func() error) { s.g.Go(fn) }

// Stop cancels the shared context and waits up to the configured timeout for
// every goroutine started with Go to return, logging rather than failing on
// timeout (matching the teacher's "Timed out waiting for ... to finish").
func (s *Shutdowner) Stop() error {
	s.cancel()
	done := make(chan error, 1)
	go func() { done <- s.g.Wait() }()
	select {
	case err := <-done:
		return err
	case <-time.After(s.timeout):
		slog.Warn("timed out waiting for goroutines to finish", "component", s.label)
		return nil
	}
}

// Ticker delivers wall-clock pulses on a buffered channel while enabled.
// Adapted from emu/timer/timer.go's enable/done/ticker shape; used by
// cmd/m68kemu's --console-server relay to poll the console socket at a fixed
// cadence, not to drive any emulated device.
type Ticker struct {
	wg      sync.WaitGroup
	running bool
	pulses  chan struct{}
	enable  chan bool
	done    chan struct{}
}

// NewTicker creates a Ticker that pulses every period once Start is called.
func NewTicker(period time.Duration) *Ticker {
	t := &Ticker{
		pulses: make(chan struct{}, 1),
		enable: make(chan bool, 1),
		done:   make(chan struct{}),
	}
	t.wg.Add(1)
	go t.run(period)
	return t
}

// Start begins delivering pulses.
func (t *Ticker) Start() { t.enable <- true }

// Stop suspends pulse delivery without tearing down the goroutine.
func (t *Ticker) Stop() { t.enable <- false }

// Pulses returns the channel pulses are delivered on. Delivery is
// best-effort: a pulse is dropped rather than blocking if the previous one
// hasn't been consumed yet.
func (t *Ticker) Pulses() <-chan struct{} { return t.pulses }

// Shutdown stops the ticker goroutine permanently.
func (t *Ticker) Shutdown() {
	close(t.done)
	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		slog.Warn("timed out waiting for ticker to finish")
	}
}

func (t *Ticker) run(period time.Duration) {
	defer t.wg.Done()
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if t.running {
				select {
				case t.pulses <- struct{}{}:
				default:
				}
			}
		case t.running = <-t.enable:
			if t.running {
				ticker.Reset(period)
			}
		case <-t.done:
			return
		}
	}
}
