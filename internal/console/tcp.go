/*
 * m68kemu - TCP console socket (component, SPEC_FULL.md §6, §12).
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

package console

import (
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/rcornwell/m68kemu/internal/lifecycle"
)

// DefaultPort is the raw-byte console port SPEC_FULL.md §6 names for
// --console-server (localhost only, no telnet option negotiation).
const DefaultPort = "6809"

// TCPConsole accepts a single console client at a time on localhost and
// passes bytes through unmodified in both directions. Adapted from the
// teacher's telnet/listener.go accept-loop shape, trimmed to one listener,
// one live connection, and no RFC854 option negotiation -- this is a raw
// pass-through wire, not a telnet server.
type TCPConsole struct {
	mu       sync.Mutex
	listener net.Listener
	conn     net.Conn

	incoming chan []byte
	sd       *lifecycle.Shutdowner

	inputHandler func(data []byte)
	onConnect    func()
	onDisconnect func()
}

// OnConnect installs a callback fired each time a client connects, replacing
// whatever client (if any) was previously attached. Used by cmd/m68kemu to
// surface a Connect event on its process-level bridging channel
// (SPEC_FULL.md §5).
func (c *TCPConsole) OnConnect(fn func()) { c.onConnect = fn }

// OnDisconnect installs a callback fired each time a client's connection
// drops (read error or EOF). Used by cmd/m68kemu to surface a Disconnect
// event (SPEC_FULL.md §5).
func (c *TCPConsole) OnDisconnect(fn func()) { c.onDisconnect = fn }

// Listen opens a TCP listener on localhost:port and starts the accept loop.
func Listen(port string) (*TCPConsole, error) {
	l, err := net.Listen("tcp", "localhost:"+port)
	if err != nil {
		return nil, fmt.Errorf("console: listen on %s: %w", port, err)
	}
	c := &TCPConsole{
		listener: l,
		incoming: make(chan []byte, 256),
		sd:       lifecycle.New("console", time.Second),
	}
	c.sd.Go(func() error {
		c.acceptLoop()
		return nil
	})
	return c, nil
}

// Addr returns the listener's bound address, useful when port "0" was
// requested.
func (c *TCPConsole) Addr() string { return c.listener.Addr().String() }

func (c *TCPConsole) acceptLoop() {
	for {
		conn, err := c.listener.Accept()
		if err != nil {
			select {
			case <-c.sd.Done():
				return
			default:
				continue
			}
		}
		c.mu.Lock()
		if c.conn != nil {
			_ = c.conn.Close() // only one live console client at a time
		}
		c.conn = conn
		c.mu.Unlock()
		if c.onConnect != nil {
			c.onConnect()
		}
		c.sd.Go(func() error {
			c.readLoop(conn)
			return nil
		})
	}
}

func (c *TCPConsole) readLoop(conn net.Conn) {
	buf := make([]byte, 4096)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			select {
			case c.incoming <- chunk:
			case <-c.sd.Done():
				return
			}
		}
		if err != nil {
			if c.onDisconnect != nil {
				c.onDisconnect()
			}
			return
		}
	}
}

// Output writes data to the currently connected client, if any. Silently
// drops output when no client is connected (SPEC_FULL.md §5: the loop never
// blocks on console I/O).
func (c *TCPConsole) Output(data []byte) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return
	}
	if _, err := conn.Write(data); err != nil {
		slog.Warn("console write failed", "error", err)
	}
}

// RegisterInputHandler installs the callback invoked by Poll for each chunk
// of bytes received from the console client.
func (c *TCPConsole) RegisterInputHandler(fn func(data []byte)) {
	c.inputHandler = fn
}

// Poll drains whatever input has arrived without ever blocking. In
// cmd/m68kemu it is called on every tick of the --console-server poll loop.
func (c *TCPConsole) Poll() {
	for {
		select {
		case chunk := <-c.incoming:
			if c.inputHandler != nil {
				c.inputHandler(chunk)
			}
		default:
			return
		}
	}
}

// Close shuts the listener and any live connection down, waiting up to one
// second for the accept/read goroutines to exit via the shared Shutdowner.
func (c *TCPConsole) Close() {
	_ = c.listener.Close()
	c.mu.Lock()
	if c.conn != nil {
		_ = c.conn.Close()
	}
	c.mu.Unlock()
	_ = c.sd.Stop()
}
