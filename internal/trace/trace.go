/*
 * m68kemu - trace sink (component H).
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

// Package trace implements the append-only, fixed-column text trace sink
// (component H). Format follows SPEC_FULL.md §4.7:
// "ACTION (<=10) : SYMBOL/ADDRESS (<=40) : FREEFORM", flushed on every line.
// Grounded on original_source/emulator.py's trace() formatting and the
// teacher's util/logger mutex-guarded-writer idiom.
package trace

import (
	"fmt"
	"io"
	"sync"
)

// Category names the trace classes that can be toggled independently at
// runtime by the host-services ABI (SPEC_FULL.md §4.5, §4.7).
type Category string

const (
	CategoryMemory      Category = "memory"
	CategoryRegister    Category = "register"
	CategoryInstruction Category = "instruction"
	CategoryJump        Category = "jump"
	CategoryExecute     Category = "execute"
	CategoryException   Category = "exception"
	CategoryDiagnostic  Category = "diagnostic"
)

// Symbolicator resolves an address to a display string, per the loader's
// lookup contract (SPEC_FULL.md §4.6). internal/loader.SymbolTable satisfies
// this.
type Symbolicator interface {
	Symbolicate(address uint32) (string, bool)
}

// Sink is the trace writer. Safe for concurrent use, though in practice only
// the single simulation goroutine ever calls Trace (SPEC_FULL.md §5).
type Sink struct {
	mu      sync.Mutex
	w       io.Writer
	enabled map[Category]bool
	sym     Symbolicator
}

// New creates a trace sink writing to w. All categories start disabled; the
// host-services ABI (or CLI flags) turn individual categories on.
func New(w io.Writer) *Sink {
	return &Sink{w: w, enabled: make(map[Category]bool)}
}

// SetSymbolicator installs the address->symbol resolver used to fill the
// SYMBOL/ADDRESS column.
func (s *Sink) SetSymbolicator(sym Symbolicator) { s.sym = sym }

// Enable turns a trace category on or off.
func (s *Sink) Enable(cat Category, on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enabled[cat] = on
}

// EnableAll turns every category on, for --trace-everything.
func (s *Sink) EnableAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range []Category{CategoryMemory, CategoryRegister, CategoryInstruction,
		CategoryJump, CategoryExecute, CategoryException, CategoryDiagnostic} {
		s.enabled[c] = true
	}
}

// DisableAll turns every category off, for the host-services trace-limit
// cutoff (SPEC_FULL.md §4.5): once the run's cycle count reaches the limit
// the guest requested, tracing stops regardless of which categories were on.
func (s *Sink) DisableAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.enabled {
		s.enabled[c] = false
	}
}

// Enabled reports whether cat is currently active.
func (s *Sink) Enabled(cat Category) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled[cat]
}

// Trace writes one line unconditionally; no Category applies. The bus uses
// it for its READ/WRITE/DECODE lines, written whenever a tracer is
// installed, and its REG-READ/REG-WRITE lines, written only when the bus's
// io-trace flag is on. Satisfies machine.Tracer.
func (s *Sink) Trace(action, symbol, info string) {
	s.writeLine(action, symbol, info)
}

// TraceCategory writes a line for address, symbolicated if possible, when
// cat is enabled. This is the entry point device models and the emulator
// loop use for instruction/jump/exception/execute/diagnostic lines.
func (s *Sink) TraceCategory(cat Category, action string, address uint32, info string) {
	if !s.Enabled(cat) {
		return
	}
	symbol := fmt.Sprintf("%#08x", address)
	if s.sym != nil {
		if name, ok := s.sym.Symbolicate(address); ok {
			symbol = name
		}
	}
	s.writeLine(action, symbol, info)
}

func (s *Sink) writeLine(action, symbol, info string) {
	if s.w == nil {
		return
	}
	line := fmt.Sprintf("%-10.10s: %-40.40s: %s\n", action, symbol, info)
	s.mu.Lock()
	defer s.mu.Unlock()
	_, _ = io.WriteString(s.w, line)
	if f, ok := s.w.(interface{ Sync() error }); ok {
		_ = f.Sync()
	} else if f, ok := s.w.(interface{ Flush() error }); ok {
		_ = f.Flush()
	}
}
