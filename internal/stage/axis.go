// Package stage keeps the software model of the two-axis stage position.
//
// The controller offers no trusted absolute position readback, so the model
// dead-reckons: it adds every successful relative move to the tracked
// position and only trusts that position after the axis has been driven into
// an endstop. Any transport fault drops the instrument handle and forgets the
// calibration of every axis.
package stage

import (
	"fmt"
	"strings"
)

// Axis identifies one linear degree of freedom of the stage.
type Axis int

const (
	X Axis = 0
	Y Axis = 1

	// NumAxes is the number of independent axes on the stage.
	NumAxes = 2
)

// Valid reports whether a is a known axis.
func (a Axis) Valid() bool { return a == X || a == Y }

// Other returns the axis orthogonal to a.
func (a Axis) Other() Axis {
	if a == X {
		return Y
	}
	return X
}

func (a Axis) String() string {
	switch a {
	case X:
		return "x"
	case Y:
		return "y"
	}
	return fmt.Sprintf("axis(%d)", int(a))
}

// ParseAxis accepts "x"/"y" or "0"/"1".
func ParseAxis(s string) (Axis, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "x", "0":
		return X, nil
	case "y", "1":
		return Y, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidAxis, s)
}

// Limits is the inclusive travel interval of one axis in millimetres.
type Limits struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Contains reports whether v lies within the limits.
func (l Limits) Contains(v float64) bool {
	return v >= l.Min && v <= l.Max
}

func (l Limits) String() string {
	return fmt.Sprintf("[%g, %g]", l.Min, l.Max)
}

// MarshalText encodes a as "x" or "y".
func (a Axis) MarshalText() ([]byte, error) {
	if !a.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidAxis, int(a))
	}
	return []byte(a.String()), nil
}

// UnmarshalText accepts anything ParseAxis does.
func (a *Axis) UnmarshalText(b []byte) error {
	v, err := ParseAxis(string(b))
	if err != nil {
		return err
	}
	*a = v
	return nil
}
