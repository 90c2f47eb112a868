// Package sim provides simulated stage and sampler hardware for development
// without an instrument attached and for end-to-end tests.
package sim

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/banshee-data/stagescan/internal/stage"
	"github.com/banshee-data/stagescan/internal/timeutil"
)

// Stage simulates the stage controller. It keeps a physical position per axis
// that is clamped at the endstops, so homing behaves as on real hardware.
type Stage struct {
	mu       sync.Mutex
	travel   [stage.NumAxes]stage.Limits
	position [stage.NumAxes]float64
	closed   bool

	// Identity is the *IDN? reply.
	Identity string

	// MoveDelay is slept per millimetre moved.
	MoveDelay time.Duration

	// Clock is used for MoveDelay; nil selects the real clock.
	Clock timeutil.Clock

	moves int
}

// NewStage returns a simulated stage with the given travel. The carriage
// starts mid-travel so that position is unknown until homed.
func NewStage(travel [stage.NumAxes]stage.Limits) *Stage {
	s := &Stage{travel: travel, Identity: stage.DefaultIdentity}
	for i, l := range travel {
		s.position[i] = (l.Min + l.Max) / 2
	}
	return s
}

// Dialer returns a stage.Dialer that reopens s.
func (s *Stage) Dialer() stage.Dialer {
	return func() (stage.Link, error) {
		s.mu.Lock()
		s.closed = false
		s.mu.Unlock()
		return s, nil
	}
}

// SendCommand implements stage.Link.
func (s *Stage) SendCommand(command string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return "", fmt.Errorf("%w: simulated stage closed", stage.ErrConnectionFault)
	}

	command = strings.TrimSpace(command)
	switch {
	case command == "*IDN?":
		return s.Identity, nil
	case strings.HasPrefix(command, "MR"):
		axis, distance, ok := parseAssignment(strings.TrimPrefix(command, "MR"))
		if !ok {
			break
		}
		s.moveLocked(axis, distance)
		return "", nil
	case strings.HasPrefix(command, "?L"):
		n, err := strconv.Atoi(strings.TrimPrefix(command, "?L"))
		if err != nil || !stage.Axis(n).Valid() {
			break
		}
		return s.endstopLocked(stage.Axis(n)), nil
	}
	return "", fmt.Errorf("%w: %q", stage.ErrInvalidCommand, command)
}

func (s *Stage) moveLocked(axis stage.Axis, distance float64) {
	from := s.position[axis]
	to := s.clamp(axis, from+distance)
	s.position[axis] = to
	s.moves++

	if s.MoveDelay > 0 {
		clock := s.Clock
		if clock == nil {
			clock = timeutil.RealClock{}
		}
		travelled := to - from
		if travelled < 0 {
			travelled = -travelled
		}
		clock.Sleep(time.Duration(travelled * float64(s.MoveDelay)))
	}
}

func (s *Stage) endstopLocked(axis stage.Axis) string {
	l := s.travel[axis]
	maxFlag, minFlag := '0', '0'
	if s.position[axis] >= l.Max {
		maxFlag = '1'
	}
	if s.position[axis] <= l.Min {
		minFlag = '1'
	}
	return string([]rune{maxFlag, minFlag})
}

// Close implements stage.Link.
func (s *Stage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Position returns the physical position of axis.
func (s *Stage) Position(axis stage.Axis) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.position[axis]
}

// SetPosition places the carriage at v on axis, clamped to travel.
func (s *Stage) SetPosition(axis stage.Axis, v float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.position[axis] = s.clamp(axis, v)
}

func (s *Stage) clamp(axis stage.Axis, v float64) float64 {
	l := s.travel[axis]
	if v < l.Min {
		return l.Min
	}
	if v > l.Max {
		return l.Max
	}
	return v
}

// Moves returns the number of MR commands executed.
func (s *Stage) Moves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.moves
}

func parseAssignment(s string) (stage.Axis, float64, bool) {
	a, d, ok := strings.Cut(s, "=")
	if !ok {
		return 0, 0, false
	}
	n, err := strconv.Atoi(a)
	if err != nil || !stage.Axis(n).Valid() {
		return 0, 0, false
	}
	v, err := strconv.ParseFloat(d, 64)
	if err != nil {
		return 0, 0, false
	}
	return stage.Axis(n), v, true
}
