/*
 * m68kemu - console sinks (component, SPEC_FULL.md §6, §12).
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

// Package console implements the two console backends SPEC_FULL.md §12
// requires: a stdout-only sink for plain CLI runs, and a raw-byte TCP
// socket sink (adapted from the teacher's telnet/listener.go) for
// --console-server. Both satisfy internal/machine.ConsoleSink. The socket
// backend's reader goroutines hand received bytes to a buffered channel,
// which Poll drains without blocking.
package console

import (
	"io"
)

// StdoutConsole is the machine.ConsoleSink used for every --target run:
// guest output goes to stdout, there is no input path.
type StdoutConsole struct {
	w io.Writer
}

// NewStdout builds a StdoutConsole writing to w.
func NewStdout(w io.Writer) *StdoutConsole {
	return &StdoutConsole{w: w}
}

func (c *StdoutConsole) Output(data []byte) {
	_, _ = c.w.Write(data)
}

// RegisterInputHandler is a no-op: stdout-only mode has no input source.
func (c *StdoutConsole) RegisterInputHandler(fn func(data []byte)) {}
