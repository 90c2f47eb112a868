package serialport

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

var (
	// ErrConnectionFault is returned when the link times out, reaches EOF or
	// fails mid-exchange. Once returned, the Conn stays broken.
	ErrConnectionFault = errors.New("serial connection fault")

	// ErrWriteFailed reports a short write to the port.
	ErrWriteFailed = errors.New("failed to write to serial port")

	// ErrReadTimeout reports a read that returned no data before the port's
	// read timeout elapsed.
	ErrReadTimeout = errors.New("timed out waiting for response")
)

// Conn is a request/response channel over a serial port: each Query writes a
// single command line and reads back a single response line.
type Conn struct {
	port SerialPorter

	commandMu sync.Mutex
	pending   []byte
	buf       []byte
	fault     error
}

// NewConn wraps port in a Conn. The port should already be configured with a
// read timeout, otherwise a silent device blocks Query forever.
func NewConn(port SerialPorter) *Conn {
	return &Conn{
		port: port,
		buf:  make([]byte, 256),
	}
}

// NewConnWithTimeout sets the read timeout on ports that support it and wraps
// the port in a Conn.
func NewConnWithTimeout(port SerialPorter, timeout time.Duration) (*Conn, error) {
	if tp, ok := port.(TimeoutSerialPorter); ok && timeout > 0 {
		if err := tp.SetReadTimeout(timeout); err != nil {
			return nil, fmt.Errorf("failed to set read timeout: %w", err)
		}
	}
	return NewConn(port), nil
}

// Query sends command terminated by a newline and returns the next response
// line with surrounding whitespace removed.
func (c *Conn) Query(command string) (string, error) {
	c.commandMu.Lock()
	defer c.commandMu.Unlock()

	if c.fault != nil {
		return "", c.fault
	}

	if !strings.HasSuffix(command, "\n") {
		command += "\n"
	}
	n, err := c.port.Write([]byte(command))
	if err != nil {
		return "", c.broken(err)
	}
	if n != len(command) {
		return "", c.broken(ErrWriteFailed)
	}

	line, err := c.readLine()
	if err != nil {
		return "", c.broken(err)
	}
	return strings.TrimSpace(line), nil
}

// Broken reports whether the Conn has seen a connection fault.
func (c *Conn) Broken() bool {
	c.commandMu.Lock()
	defer c.commandMu.Unlock()
	return c.fault != nil
}

// Close closes the underlying port.
func (c *Conn) Close() error {
	c.commandMu.Lock()
	defer c.commandMu.Unlock()
	if c.fault == nil {
		c.fault = fmt.Errorf("%w: connection closed", ErrConnectionFault)
	}
	return c.port.Close()
}

func (c *Conn) broken(cause error) error {
	c.fault = fmt.Errorf("%w: %v", ErrConnectionFault, cause)
	c.pending = nil
	return c.fault
}

// readLine reads from the port until a newline is buffered. go.bug.st/serial
// reports an expired read timeout as a zero-byte read with a nil error.
func (c *Conn) readLine() (string, error) {
	for {
		if i := bytes.IndexByte(c.pending, '\n'); i >= 0 {
			line := string(c.pending[:i])
			c.pending = c.pending[i+1:]
			return line, nil
		}

		n, err := c.port.Read(c.buf)
		if n > 0 {
			c.pending = append(c.pending, c.buf[:n]...)
			if err == nil || bytes.IndexByte(c.pending, '\n') >= 0 {
				continue
			}
		}
		if err != nil {
			return "", err
		}
		if n == 0 {
			return "", ErrReadTimeout
		}
	}
}
