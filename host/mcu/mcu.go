// Package mcu talks to the steptrain firmware console over a serial port.
package mcu

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"steptrain/host/serial"
)

// ErrClosed is returned once the connection is gone
var ErrClosed = errors.New("mcu: connection closed")

// RemoteError is an error reply from the firmware
type RemoteError struct {
	Code    int
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("mcu: error %d: %s", e.Code, e.Message)
}

// Reply is the outcome of one command
type Reply struct {
	Value string   // Text after "ok"
	Info  []string // Informational "#" lines received before the reply
}

// MCU represents a connection to the firmware console
type MCU struct {
	port io.ReadWriteCloser

	writeMu sync.Mutex // One command in flight
	replies chan string
	done    chan string // "done" notifications of background cycles
	closed  chan struct{}
}

// Connect connects to an MCU via serial port
func Connect(device string) (*MCU, error) {
	return ConnectWithConfig(serial.DefaultConfig(device))
}

// ConnectWithConfig connects to an MCU with a custom serial config
func ConnectWithConfig(cfg *serial.Config) (*MCU, error) {
	port, err := serial.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port: %w", err)
	}
	port.Flush()

	// Give MCU time to initialize (if it just powered on)
	time.Sleep(100 * time.Millisecond)
	return New(port), nil
}

// New wraps an open port
func New(port io.ReadWriteCloser) *MCU {
	m := &MCU{
		port:    port,
		replies: make(chan string, 64),
		done:    make(chan string, 16),
		closed:  make(chan struct{}),
	}
	go m.readLoop()
	return m
}

// readLoop splits incoming lines into replies and cycle notifications
func (m *MCU) readLoop() {
	defer close(m.closed)
	scanner := bufio.NewScanner(m.port)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
		case strings.HasPrefix(line, "done"):
			select {
			case m.done <- line:
			default: // Nobody waiting
			}
		default:
			select {
			case m.replies <- line:
			default: // Unsolicited and nobody reading
			}
		}
	}
}

// Exec sends a command line and waits for its reply
func (m *MCU) Exec(line string) (*Reply, error) {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	// Drop anything nobody asked for
	for len(m.replies) > 0 {
		<-m.replies
	}

	if _, err := io.WriteString(m.port, line+"\n"); err != nil {
		return nil, fmt.Errorf("mcu: write: %w", err)
	}

	reply := &Reply{}
	for {
		select {
		case s := <-m.replies:
			switch {
			case strings.HasPrefix(s, "#"):
				reply.Info = append(reply.Info, strings.TrimSpace(s[1:]))
			case s == "ok":
				return reply, nil
			case strings.HasPrefix(s, "ok "):
				reply.Value = s[3:]
				return reply, nil
			case strings.HasPrefix(s, "error "):
				return nil, parseError(s)
			default:
				reply.Info = append(reply.Info, s)
			}
		case <-m.closed:
			return nil, ErrClosed
		}
	}
}

// Done returns notifications of finished cycles
func (m *MCU) Done() <-chan string {
	return m.done
}

// ParseDone decodes a cycle notification, "done <mask>" or
// "done <mask> error <code>: <message>" for a cycle that failed after its
// start was acknowledged.
func ParseDone(s string) (uint32, error) {
	rest, ok := strings.CutPrefix(s, "done ")
	if !ok {
		return 0, fmt.Errorf("mcu: not a done line: %q", s)
	}
	field, tail, _ := strings.Cut(rest, " ")
	mask, err := strconv.ParseUint(field, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("mcu: bad done mask %q", field)
	}
	if tail != "" {
		return uint32(mask), parseError(tail)
	}
	return uint32(mask), nil
}

// Close closes the connection to the MCU
func (m *MCU) Close() error {
	return m.port.Close()
}

// parseError decodes "error <code>: <message>"
func parseError(s string) error {
	rest := strings.TrimPrefix(s, "error ")
	code, msg, ok := strings.Cut(rest, ":")
	if !ok {
		return &RemoteError{Message: rest}
	}
	n, err := strconv.Atoi(strings.TrimSpace(code))
	if err != nil {
		return &RemoteError{Message: rest}
	}
	return &RemoteError{Code: n, Message: strings.TrimSpace(msg)}
}
