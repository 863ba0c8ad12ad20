package console

import (
	"net"
	"strings"
	"testing"
	"time"
)

func TestStdoutConsoleOutput(t *testing.T) {
	var buf strings.Builder
	c := NewStdout(&buf)
	c.Output([]byte("Hi\n"))
	if buf.String() != "Hi\n" {
		t.Errorf("got %q, want %q", buf.String(), "Hi\n")
	}
}

func TestTCPConsoleEchoRoundTrip(t *testing.T) {
	c, err := Listen("0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer c.Close()

	received := make(chan []byte, 1)
	c.RegisterInputHandler(func(data []byte) { received <- data })

	conn, err := net.Dial("tcp", c.Addr())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte("Hi\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		c.Poll()
		select {
		case got := <-received:
			if string(got) != "Hi\n" {
				t.Fatalf("got %q, want %q", got, "Hi\n")
			}
			return
		case <-deadline:
			t.Fatal("timed out waiting for console input to arrive")
		default:
			time.Sleep(time.Millisecond)
		}
	}
}

func TestTCPConsoleOutputToClient(t *testing.T) {
	c, err := Listen("0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer c.Close()

	conn, err := net.Dial("tcp", c.Addr())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	// Give the accept loop a moment to register the connection.
	time.Sleep(20 * time.Millisecond)
	c.Output([]byte("Hi\n"))

	buf := make([]byte, 3)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := conn.Read(buf); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(buf) != "Hi\n" {
		t.Errorf("got %q, want %q", buf, "Hi\n")
	}
}
