/*
 * m68kemu - machine error kinds.
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
	"strconv"
	"strings"
)

// ConfigError reports a configuration-time failure: unknown target, register
// overlap, non-aligned register, missing required option.
type ConfigError struct {
	Device string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Device == "" {
		return "config: " + e.Reason
	}
	return fmt.Sprintf("config: device %q: %s", e.Device, e.Reason)
}

// BusError reports an access to unmapped address space with bus-error
// emulation enabled. It is delivered to the CPU engine as a synchronous
// exception and is not fatal to the emulator (SPEC_FULL.md §7).
type BusError struct {
	Address   uint32
	Direction Direction
}

func (e *BusError) Error() string {
	dir := "read"
	if e.Direction == DirWrite {
		dir = "write"
	}
	return fmt.Sprintf("bus error: %s at %#08x", dir, e.Address)
}

// DeviceError wraps an error returned by a device's Reset hook; Registry.Reset
// builds it, and the emulator loop captures it into its fatal flag. Panics
// raised inside device code are not recovered into a DeviceError.
type DeviceError struct {
	Device string
	Cause  error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("device %q: %v", e.Device, e.Cause)
}

func (e *DeviceError) Unwrap() error { return e.Cause }

// HostServiceError reports an unrecognized host-service identify name or
// call code; the emulator loop re-raises this to the CPU as an illegal
// instruction rather than treating it as fatal.
type HostServiceError struct {
	Code uint32
}

func (e *HostServiceError) Error() string {
	return fmt.Sprintf("host service: unknown code %#x", e.Code)
}

func parseUintAuto(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	switch {
	case strings.HasPrefix(s, "0x"), strings.HasPrefix(s, "0X"):
		return strconv.ParseUint(s[2:], 16, 64)
	case strings.HasSuffix(s, "K") || strings.HasSuffix(s, "k"):
		n, err := strconv.ParseUint(s[:len(s)-1], 10, 64)
		return n * 1024, err
	case strings.HasSuffix(s, "M") || strings.HasSuffix(s, "m"):
		n, err := strconv.ParseUint(s[:len(s)-1], 10, 64)
		return n * 1024 * 1024, err
	default:
		return strconv.ParseUint(s, 10, 64)
	}
}
