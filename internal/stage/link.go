package stage

import (
	"fmt"
	"strings"
)

// Link is the command/response channel to the stage controller. SendCommand
// fails with an error wrapping ErrConnectionFault on timeout or disconnect.
type Link interface {
	SendCommand(command string) (string, error)
	Close() error
}

// Dialer opens a fresh Link to the controller.
type Dialer func() (Link, error)

// Querier is the serial transport used by SerialLink. It is satisfied by
// *serialport.Conn.
type Querier interface {
	Query(command string) (string, error)
	Close() error
}

// SerialLink speaks the controller's text protocol over a serial transport.
type SerialLink struct {
	conn Querier
}

// NewSerialLink wraps conn.
func NewSerialLink(conn Querier) *SerialLink {
	return &SerialLink{conn: conn}
}

// SendCommand sends command and returns the trimmed response. A literal "E"
// reply is reported as ErrInvalidCommand.
func (l *SerialLink) SendCommand(command string) (string, error) {
	resp, err := l.conn.Query(command)
	if err != nil {
		return "", err
	}
	resp = strings.TrimSpace(resp)
	if resp == "E" {
		return "", fmt.Errorf("%w: %q", ErrInvalidCommand, command)
	}
	return resp, nil
}

// Close closes the underlying transport.
func (l *SerialLink) Close() error {
	return l.conn.Close()
}

func moveCommand(axis Axis, distance float64) string {
	return fmt.Sprintf("MR%d=%s", int(axis), formatDistance(distance))
}

func endstopCommand(axis Axis) string {
	return fmt.Sprintf("?L%d", int(axis))
}

const identityCommand = "*IDN?"
