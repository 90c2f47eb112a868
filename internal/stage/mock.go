package stage

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
)

// ScriptedLink is an in-memory Link for tests. Unless overridden through
// Responses it acknowledges every move, answers *IDN? with Identity and
// reports the endstop matching the sign of the last move on each axis.
type ScriptedLink struct {
	Identity string

	// Responses overrides the reply for an exact command. A reply of "E" is
	// reported as ErrInvalidCommand.
	Responses map[string]string

	// BeforeSend, when set, runs before every command. A non-nil error is
	// returned in place of the reply.
	BeforeSend func(command string) error

	mu       sync.Mutex
	commands []string
	lastMove [NumAxes]float64
	closed   bool
	closes   int
}

// NewScriptedLink returns a link that identifies as the default controller.
func NewScriptedLink() *ScriptedLink {
	return &ScriptedLink{
		Identity:  DefaultIdentity,
		Responses: make(map[string]string),
	}
}

// Dialer returns a Dialer that hands out l, reopening it on each call.
func (l *ScriptedLink) Dialer() Dialer {
	return func() (Link, error) {
		l.mu.Lock()
		l.closed = false
		l.mu.Unlock()
		return l, nil
	}
}

// SendCommand implements Link.
func (l *ScriptedLink) SendCommand(command string) (string, error) {
	l.mu.Lock()
	l.commands = append(l.commands, command)
	hook := l.BeforeSend
	closed := l.closed
	l.mu.Unlock()

	if closed {
		return "", fmt.Errorf("%w: link closed", ErrConnectionFault)
	}
	if hook != nil {
		if err := hook(command); err != nil {
			return "", err
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if resp, ok := l.Responses[command]; ok {
		if resp == "E" {
			return "", fmt.Errorf("%w: %q", ErrInvalidCommand, command)
		}
		if axis, d, ok := parseMove(command); ok {
			l.lastMove[axis] = d
		}
		return resp, nil
	}

	switch {
	case command == identityCommand:
		return l.Identity, nil
	case strings.HasPrefix(command, "MR"):
		axis, d, ok := parseMove(command)
		if !ok {
			return "", fmt.Errorf("%w: %q", ErrInvalidCommand, command)
		}
		l.lastMove[axis] = d
		return "", nil
	case strings.HasPrefix(command, "?L"):
		axis, err := strconv.Atoi(strings.TrimPrefix(command, "?L"))
		if err != nil || !Axis(axis).Valid() {
			return "", fmt.Errorf("%w: %q", ErrInvalidCommand, command)
		}
		switch d := l.lastMove[axis]; {
		case d > 0:
			return "10", nil
		case d < 0:
			return "01", nil
		}
		return "00", nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidCommand, command)
}

// Close implements Link.
func (l *ScriptedLink) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	l.closes++
	return nil
}

// Commands returns every command sent so far.
func (l *ScriptedLink) Commands() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.commands))
	copy(out, l.commands)
	return out
}

// Moves returns only the MR commands sent so far.
func (l *ScriptedLink) Moves() []string {
	var moves []string
	for _, c := range l.Commands() {
		if strings.HasPrefix(c, "MR") {
			moves = append(moves, c)
		}
	}
	return moves
}

// Reset clears the command log.
func (l *ScriptedLink) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.commands = nil
}

// Closes reports how many times Close has been called.
func (l *ScriptedLink) Closes() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closes
}

func parseMove(command string) (Axis, float64, bool) {
	rest, ok := strings.CutPrefix(command, "MR")
	if !ok {
		return 0, 0, false
	}
	a, d, ok := strings.Cut(rest, "=")
	if !ok {
		return 0, 0, false
	}
	axis, err := strconv.Atoi(a)
	if err != nil || !Axis(axis).Valid() {
		return 0, 0, false
	}
	dist, err := strconv.ParseFloat(d, 64)
	if err != nil {
		return 0, 0, false
	}
	return Axis(axis), dist, true
}
