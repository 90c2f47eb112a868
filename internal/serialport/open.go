package serialport

import (
	"fmt"
	"time"

	"go.bug.st/serial"
)

// Open opens the serial device at path with the given options and wraps it in
// a Conn whose reads time out after timeout. A timed-out read is reported by
// the Conn as a connection fault.
func Open(path string, opts PortOptions, timeout time.Duration) (*Conn, error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}

	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	conn, err := NewConnWithTimeout(port, timeout)
	if err != nil {
		port.Close()
		return nil, err
	}
	return conn, nil
}
