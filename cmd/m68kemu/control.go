/*
 * m68kemu - process-level control events.
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

// EventKind enumerates the host-process control events of this binary,
// generalized from the teacher's emu/core.core.processPacket switch over
// master.Packet.Msg (SPEC_FULL.md §5): connection lifecycle for the optional
// console socket, inbound console bytes, a wall-clock pulse for host-side
// polling, and run/stop control. Only the --console-server relay loop
// receives events, and it is sent only Connect, Disconnect and ConsoleRX;
// no code here sends RealtimeTick, Start or Stop. Unlike the teacher's
// S/370-specific IPLdevice/TelReceive messages, none of these carry a
// device number -- every device reachable
// from cmd/m68kemu is addressed by name through Machine.Registry instead.
type EventKind int

const (
	EventConnect EventKind = iota
	EventDisconnect
	EventConsoleRX
	EventRealtimeTick
	EventStart
	EventStop
)

func (k EventKind) String() string {
	switch k {
	case EventConnect:
		return "connect"
	case EventDisconnect:
		return "disconnect"
	case EventConsoleRX:
		return "console-rx"
	case EventRealtimeTick:
		return "realtime-tick"
	case EventStart:
		return "start"
	case EventStop:
		return "stop"
	default:
		return "unknown"
	}
}

// Event is one control-channel message.
type Event struct {
	Kind EventKind
	Data []byte
}
