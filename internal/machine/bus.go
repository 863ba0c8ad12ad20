/*
 * m68kemu - address map and register table (components A+B).
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

import (
	"fmt"
)

// Width is a register or memory access width in bytes.
type Width uint8

const (
	Width8  Width = 1
	Width16 Width = 2
	Width32 Width = 4
)

// Direction distinguishes a read access from a write access.
type Direction uint8

const (
	DirRead Direction = iota
	DirWrite
)

// registerKey is the (address, width, direction) triple register
// descriptors are looked up by (SPEC_FULL.md §3, invariant 1 in §8).
type registerKey struct {
	Address   uint32
	Width     Width
	Direction Direction
}

// ReadHandler returns the value observed by the CPU on a register read.
type ReadHandler func() uint32

// WriteHandler consumes the value written by the CPU to a register.
type WriteHandler func(value uint32)

// RegisterDescriptor binds one (address, width, direction) to the handler
// that services it, plus enough identity to label trace lines and error
// messages. Created once at device-construction time and never destroyed.
type RegisterDescriptor struct {
	DeviceName   string
	RegisterName string
	Address      uint32
	Width        Width
	Direction    Direction
	Read         ReadHandler  // nil when Direction == DirWrite
	Write        WriteHandler // nil when Direction == DirRead
}

func (r *RegisterDescriptor) key() registerKey {
	return registerKey{Address: r.Address, Width: r.Width, Direction: r.Direction}
}

// aligned reports whether address satisfies the alignment SPEC_FULL.md §3
// requires for width: 16-bit registers 2-aligned, 32-bit registers 4-aligned.
func (w Width) aligned(address uint32) bool {
	switch w {
	case Width16:
		return address%2 == 0
	case Width32:
		return address%4 == 0
	default:
		return true
	}
}

// memoryRegion backs a contiguous range of RAM or ROM.
type memoryRegion struct {
	base     uint32
	size     uint32
	writable bool
	data     []byte
}

func (m *memoryRegion) contains(address uint32) bool {
	return address >= m.base && address < m.base+m.size
}

// MissBehavior controls what the bus does on a register/memory-space miss
// when bus-error emulation is disabled (SPEC_FULL.md §4.2 step 4).
type MissBehavior uint8

const (
	MissReturnsZero    MissBehavior = iota // open bus reads as 0
	MissReturnsAllOnes                     // open bus reads as all-ones
)

// Bus is the combined address map + register table (components A and B).
// Regions and registers are populated at configuration time and frozen for
// the run (SPEC_FULL.md §5 "Shared resource policy").
type Bus struct {
	regions      []*memoryRegion
	registers    map[registerKey]*RegisterDescriptor
	busError     bool
	missBehavior MissBehavior
	ioTrace      bool
	tracer       Tracer
}

// Tracer is the minimal sink the bus writes trace lines to (component H).
// Defined here, rather than imported from internal/trace, to avoid a
// dependency cycle; internal/trace.Sink satisfies it.
type Tracer interface {
	Trace(action, symbol, info string)
}

// NewBus creates an empty address map. enableBusError selects whether
// register/memory misses raise a BusError (true) or return an
// implementation-defined open-bus sentinel (false).
func NewBus(enableBusError bool, missBehavior MissBehavior) *Bus {
	return &Bus{
		registers:    make(map[registerKey]*RegisterDescriptor),
		busError:     enableBusError,
		missBehavior: missBehavior,
	}
}

// SetTracer installs the trace sink used for READ/WRITE/DECODE lines.
func (b *Bus) SetTracer(t Tracer) { b.tracer = t }

// SetIOTrace toggles per-register-access trace lines (SPEC_FULL.md §4.2).
func (b *Bus) SetIOTrace(enabled bool) { b.ioTrace = enabled }

// AddMemory declares a memory region backing RAM/ROM. initial, if non-nil,
// seeds the region's contents (truncated/zero-padded to size).
func (b *Bus) AddMemory(base, size uint32, writable bool, initial []byte) error {
	for _, r := range b.regions {
		if overlaps(base, size, r.base, r.size) {
			return &ConfigError{Reason: fmt.Sprintf("memory region %#x..%#x overlaps existing region %#x..%#x",
				base, base+size, r.base, r.base+r.size)}
		}
	}
	data := make([]byte, size)
	copy(data, initial)
	b.regions = append(b.regions, &memoryRegion{base: base, size: size, writable: writable, data: data})
	return nil
}

func overlaps(baseA, sizeA, baseB, sizeB uint32) bool {
	endA, endB := baseA+sizeA, baseB+sizeB
	return baseA < endB && baseB < endA
}

// AddRegister registers one device register descriptor. It is an error to
// register a misaligned address for its width, or to register a duplicate
// (address, width, direction) triple.
func (b *Bus) AddRegister(desc *RegisterDescriptor) error {
	if !desc.Width.aligned(desc.Address) {
		return &ConfigError{Device: desc.DeviceName, Reason: fmt.Sprintf(
			"register %q at %#08x is not %d-byte aligned", desc.RegisterName, desc.Address, desc.Width)}
	}
	key := desc.key()
	if existing, ok := b.registers[key]; ok {
		return &ConfigError{Device: desc.DeviceName, Reason: fmt.Sprintf(
			"register %q at %#08x/%d/%v collides with %q on device %q",
			desc.RegisterName, desc.Address, desc.Width, desc.Direction, existing.RegisterName, existing.DeviceName)}
	}
	b.registers[key] = desc
	return nil
}

// Lookup returns the register descriptor for (address, width, direction), if
// any. Exposed for the invariant-1 test in SPEC_FULL.md §8 and for callers
// that need descriptor metadata (trace labels) without performing the access.
func (b *Bus) Lookup(address uint32, width Width, dir Direction) (*RegisterDescriptor, bool) {
	d, ok := b.registers[registerKey{Address: address, Width: width, Direction: dir}]
	return d, ok
}

// Read services a CPU read of width bytes at address, per SPEC_FULL.md §4.2.
func (b *Bus) Read(address uint32, width Width) (uint32, error) {
	if r := b.findRegion(address); r != nil {
		v := readRegion(r, address, width)
		b.trace("READ", address, fmt.Sprintf("%#x", v))
		return v, nil
	}

	desc, ok := b.Lookup(address, width, DirRead)
	if !ok {
		return b.miss(address, DirRead)
	}
	v := desc.Read()
	if b.ioTrace {
		b.trace("REG-READ", address, fmt.Sprintf("%s.%s=%#x", desc.DeviceName, desc.RegisterName, v))
	}
	return v, nil
}

// Write services a CPU write of width bytes at address, per SPEC_FULL.md §4.2.
func (b *Bus) Write(address uint32, width Width, value uint32) error {
	if r := b.findRegion(address); r != nil {
		if !r.writable {
			b.trace("WRITE", address, "ignored (read-only region)")
			return nil
		}
		writeRegion(r, address, width, value)
		b.trace("WRITE", address, fmt.Sprintf("%#x", value))
		return nil
	}

	desc, ok := b.Lookup(address, width, DirWrite)
	if !ok {
		_, err := b.miss(address, DirWrite)
		return err
	}
	desc.Write(value)
	if b.ioTrace {
		b.trace("REG-WRITE", address, fmt.Sprintf("%s.%s=%#x", desc.DeviceName, desc.RegisterName, value))
	}
	return nil
}

func (b *Bus) miss(address uint32, dir Direction) (uint32, error) {
	b.trace("DECODE", address, "no memory or register at this address")
	if b.busError {
		return 0, &BusError{Address: address, Direction: dir}
	}
	if b.missBehavior == MissReturnsAllOnes {
		return 0xFFFFFFFF, nil
	}
	return 0, nil
}

func (b *Bus) trace(action string, address uint32, info string) {
	if b.tracer == nil {
		return
	}
	b.tracer.Trace(action, fmt.Sprintf("%#08x", address), info)
}

func (b *Bus) findRegion(address uint32) *memoryRegion {
	for _, r := range b.regions {
		if r.contains(address) {
			return r
		}
	}
	return nil
}

func readRegion(r *memoryRegion, address uint32, width Width) uint32 {
	off := address - r.base
	var v uint32
	for i := Width(0); i < width; i++ {
		v = v<<8 | uint32(r.data[off+uint32(i)])
	}
	return v
}

func writeRegion(r *memoryRegion, address uint32, width Width, value uint32) {
	off := address - r.base
	for i := Width(0); i < width; i++ {
		shift := 8 * (width - 1 - i)
		r.data[off+uint32(i)] = byte(value >> shift)
	}
}

// RegionInfo describes one declared memory region's extent, without exposing
// its backing store directly. Used by callers that need to mirror a region
// into a collaborator with its own memory -- a native CPU engine behind
// cpuengine.Engine, which keeps its own RAM for speed and is only routed
// through the bus for device-register space (SPEC_FULL.md §4.2).
type RegionInfo struct {
	Base, Size uint32
	Writable   bool
}

// Regions returns every declared memory region, in declaration order.
func (b *Bus) Regions() []RegionInfo {
	out := make([]RegionInfo, len(b.regions))
	for i, r := range b.regions {
		out[i] = RegionInfo{Base: r.base, Size: r.size, Writable: r.writable}
	}
	return out
}

// Bytes returns a direct slice view onto a region's backing store, used by
// the ELF loader (component G) to write loaded segment contents and by tests
// to seed/inspect memory. Returns nil if address is not in a region or the
// requested span would run past the region's end.
func (b *Bus) Bytes(address, length uint32) []byte {
	r := b.findRegion(address)
	if r == nil {
		return nil
	}
	off := address - r.base
	if off+length > r.size {
		return nil
	}
	return r.data[off : off+length]
}
