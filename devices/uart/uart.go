/*
 * m68kemu - simple polled/interrupt UART device.
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

// Package uart implements a minimal two-register console UART: a status
// register the guest polls for transmit-ready/receive-ready, and a data
// register it reads/writes a byte at a time. Modeled on the teacher's
// model1052 console device, stripped of BCD translation and channel-program
// framing that has no m68k analogue.
package uart

import (
	"strconv"
	"strings"

	"github.com/rcornwell/m68kemu/config/configparser"
	"github.com/rcornwell/m68kemu/internal/machine"
)

const (
	statusOffset = 0
	dataOffset   = 1

	statusTxReady = 1 << 0
	statusRxReady = 1 << 1
)

// UART is a one-character-at-a-time console device: status register at the
// configured base address, data register immediately after it.
type UART struct {
	svc     machine.Services
	name    string
	address uint32
	irq     int    // 0 = interrupts disabled
	vector  uint32 // machine.VectorAutovector if unprogrammed

	rx []byte // pending input bytes, oldest first
}

// New constructs a UART device. Recognized options: "interrupt" (IPL 1-7,
// asserted while input is pending) and "vector" (programmed interrupt
// vector; defaults to autovectoring).
func New(svc machine.Services, name string, opts machine.Options) (machine.Device, error) {
	address, ok := opts.Address()
	if !ok {
		return nil, &machine.ConfigError{Device: name, Reason: "uart requires a bus address"}
	}

	u := &UART{
		svc:     svc,
		name:    name,
		address: address,
		vector:  machine.VectorAutovector,
	}
	if irq, ok := opts.Interrupt(); ok {
		u.irq = irq
	}
	if v, ok := opts["vector"]; ok {
		n, err := parseVector(v)
		if err != nil {
			return nil, &machine.ConfigError{Device: name, Reason: err.Error()}
		}
		u.vector = n
	}

	if err := svc.AddRegister(&machine.RegisterDescriptor{
		DeviceName: name, RegisterName: "status",
		Address: address + statusOffset, Width: machine.Width8, Direction: machine.DirRead,
		Read: u.readStatus,
	}); err != nil {
		return nil, err
	}
	if err := svc.AddRegister(&machine.RegisterDescriptor{
		DeviceName: name, RegisterName: "data",
		Address: address + dataOffset, Width: machine.Width8, Direction: machine.DirRead,
		Read: u.readData,
	}); err != nil {
		return nil, err
	}
	if err := svc.AddRegister(&machine.RegisterDescriptor{
		DeviceName: name, RegisterName: "data",
		Address: address + dataOffset, Width: machine.Width8, Direction: machine.DirWrite,
		Write: u.writeData,
	}); err != nil {
		return nil, err
	}

	svc.RegisterConsoleInput(u.receive)
	return u, nil
}

// Reset clears pending input and drops any asserted interrupt.
func (u *UART) Reset() error {
	u.rx = nil
	u.svc.DeassertIPL(u)
	return nil
}

// GetVector returns the configured vector and clears the interrupt: the
// guest's IACK cycle is treated as the acknowledge for the pending byte.
func (u *UART) GetVector(ipl int) uint32 {
	u.svc.DeassertIPL(u)
	return u.vector
}

func (u *UART) readStatus() uint32 {
	status := uint32(statusTxReady)
	if len(u.rx) > 0 {
		status |= statusRxReady
	}
	return status
}

// readData pops the oldest pending input byte, or 0 if none is pending.
func (u *UART) readData() uint32 {
	if len(u.rx) == 0 {
		return 0
	}
	b := u.rx[0]
	u.rx = u.rx[1:]
	if len(u.rx) == 0 {
		u.svc.DeassertIPL(u)
	}
	return uint32(b)
}

// writeData transmits a single byte to the console. Transmit is modeled as
// always-ready: there is no FIFO to fill and no busy delay to emulate.
func (u *UART) writeData(value uint32) {
	u.svc.ConsoleOutput([]byte{byte(value)})
}

// receive is installed as the console's input handler; it runs on the
// simulation goroutine (SPEC_FULL.md §5), so no locking is needed here.
func (u *UART) receive(data []byte) {
	if len(data) == 0 {
		return
	}
	u.rx = append(u.rx, data...)
	if u.irq > 0 {
		_ = u.svc.AssertIPL(u, u.irq)
	}
}

// parseVector accepts a decimal or "0x"-prefixed hex vector number.
func parseVector(s string) (uint32, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		n, err := strconv.ParseUint(s[2:], 16, 32)
		return uint32(n), err
	}
	n, err := strconv.ParseUint(s, 10, 32)
	return uint32(n), err
}

func init() {
	configparser.RegisterModel("uart", configparser.TypeModel, New)
}
