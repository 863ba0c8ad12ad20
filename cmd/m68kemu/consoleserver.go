/*
 * m68kemu - standalone console-server mode.
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
	"bufio"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rcornwell/m68kemu/internal/console"
	"github.com/rcornwell/m68kemu/internal/lifecycle"
)

// runConsoleServer implements --console-server: a bare TCP console relay
// with no machine attached at all, for exercising internal/console.TCPConsole
// in isolation (SPEC_FULL.md §6's mutual-exclusivity rule reads literally as
// three independent top-level modes, not --console-server as a modifier of
// --target; a target's own console defaults to stdout-only, per §6's
// "Alternative: direct stdout with no input"). Echoes received bytes to
// stdout so an operator driving it by hand can see what arrived.
func runConsoleServer(port string) int {
	tc, err := console.Listen(port)
	if err != nil {
		slog.Error("console-server: listen failed", "error", err)
		return 1
	}
	defer tc.Close()

	events := make(chan Event, 16)
	tc.OnConnect(func() { events <- Event{Kind: EventConnect} })
	tc.OnDisconnect(func() { events <- Event{Kind: EventDisconnect} })
	tc.RegisterInputHandler(func(data []byte) { events <- Event{Kind: EventConsoleRX, Data: data} })

	slog.Info("console-server listening", "addr", tc.Addr())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	debouncer := &sigintDebouncer{}

	stdout := bufio.NewWriter(os.Stdout)
	defer stdout.Flush()

	pollTicker := lifecycle.NewTicker(20 * time.Millisecond)
	pollTicker.Start()
	defer pollTicker.Shutdown()

	for {
		select {
		case sig := <-sigChan:
			if sig == syscall.SIGTERM || debouncer.Press() {
				slog.Info("console-server shutting down")
				return 0
			}
			slog.Info("press Ctrl-C three times within one second to exit")

		case ev := <-events:
			switch ev.Kind {
			case EventConnect:
				slog.Info("console client connected")
			case EventDisconnect:
				slog.Info("console client disconnected")
			case EventConsoleRX:
				stdout.Write(ev.Data)
				stdout.Flush()
			}

		case <-pollTicker.Pulses():
			tc.Poll()
		}
	}
}
