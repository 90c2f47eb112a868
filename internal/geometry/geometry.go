// Package geometry validates scan geometries against the stage travel
// envelope before any motion is commanded, and derives the sample grid.
package geometry

import (
	"errors"
	"fmt"
	"math"

	"github.com/banshee-data/stagescan/internal/stage"
)

// pointEpsilon absorbs floating point error in extent/step so that an extent
// which is an exact multiple of step keeps its final point.
const pointEpsilon = 1e-9

// MaxPoints bounds the number of measurement points in one scan.
const MaxPoints = 1 << 20

// ErrInvalidGeometry matches every *Error with errors.Is.
var ErrInvalidGeometry = errors.New("invalid scan geometry")

// Check identifies one validation rule. Rules are evaluated in declaration
// order and the first violation is reported.
type Check int

const (
	CheckAxis Check = iota
	CheckStepPositive
	CheckExtentPositive
	CheckStepWithinExtent
	CheckStartInLimits
	CheckEndInLimits
	CheckOffAxisInLimits
	CheckPointCount
)

func (c Check) String() string {
	switch c {
	case CheckAxis:
		return "axis"
	case CheckStepPositive:
		return "step-positive"
	case CheckExtentPositive:
		return "extent-positive"
	case CheckStepWithinExtent:
		return "step-within-extent"
	case CheckStartInLimits:
		return "start-in-limits"
	case CheckEndInLimits:
		return "end-in-limits"
	case CheckOffAxisInLimits:
		return "off-axis-in-limits"
	case CheckPointCount:
		return "point-count"
	}
	return fmt.Sprintf("check(%d)", int(c))
}

// Error describes the first rule a geometry violates.
type Error struct {
	Check  Check
	Axis   stage.Axis
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", ErrInvalidGeometry, e.Reason)
}

// Is reports whether target is ErrInvalidGeometry.
func (e *Error) Is(target error) bool {
	return target == ErrInvalidGeometry
}

// Vector holds one value per axis, indexed by stage.Axis.
type Vector [stage.NumAxes]float64

// Envelope is the travel interval of every axis, indexed by stage.Axis.
type Envelope [stage.NumAxes]stage.Limits

// DefaultEnvelope is the 50 mm x 50 mm travel of the supported stage.
func DefaultEnvelope() Envelope {
	return Envelope{
		stage.X: {Min: 0, Max: 50},
		stage.Y: {Min: 0, Max: 50},
	}
}

// Raster is a 2D scan: X is the outer axis and Y the inner axis.
type Raster struct {
	Start  Vector `json:"start"`
	Extent Vector `json:"extent"`
	Step   Vector `json:"step"`
}

// Line is a 1D scan along Axis with the other axis held at OffAxis.
type Line struct {
	Axis    stage.Axis `json:"axis"`
	OffAxis float64    `json:"off_axis"`
	Start   float64    `json:"start"`
	Extent  float64    `json:"extent"`
	Step    float64    `json:"step"`
}

// span is the per-axis sweep that the ordered checks run over.
type span struct {
	axis                stage.Axis
	start, extent, step float64
}

// Validate2D returns nil if r can be scanned within env, or the first
// violated rule as an *Error.
func Validate2D(r Raster, env Envelope) error {
	spans := []span{
		{stage.X, r.Start[stage.X], r.Extent[stage.X], r.Step[stage.X]},
		{stage.Y, r.Start[stage.Y], r.Extent[stage.Y], r.Step[stage.Y]},
	}
	if err := validateSpans(spans, env); err != nil {
		return err
	}
	return validatePointCount(spans)
}

// Validate1D returns nil if l can be scanned within env, or the first
// violated rule as an *Error.
func Validate1D(l Line, env Envelope) error {
	if !l.Axis.Valid() {
		return &Error{
			Check:  CheckAxis,
			Axis:   l.Axis,
			Reason: fmt.Sprintf("unknown scan axis %d", int(l.Axis)),
		}
	}
	if err := validateSpans([]span{{l.Axis, l.Start, l.Extent, l.Step}}, env); err != nil {
		return err
	}
	off := l.Axis.Other()
	if !env[off].Contains(l.OffAxis) {
		return &Error{
			Check:  CheckOffAxisInLimits,
			Axis:   off,
			Reason: fmt.Sprintf("%s position %g outside travel %s", off, l.OffAxis, env[off]),
		}
	}
	return validatePointCount([]span{{l.Axis, l.Start, l.Extent, l.Step}})
}

func validateSpans(spans []span, env Envelope) error {
	for _, s := range spans {
		if !(s.step > 0) {
			return &Error{CheckStepPositive, s.axis,
				fmt.Sprintf("%s step must be positive, got %g", s.axis, s.step)}
		}
	}
	for _, s := range spans {
		if !(s.extent > 0) {
			return &Error{CheckExtentPositive, s.axis,
				fmt.Sprintf("%s extent must be positive, got %g", s.axis, s.extent)}
		}
	}
	for _, s := range spans {
		if s.step > s.extent {
			return &Error{CheckStepWithinExtent, s.axis,
				fmt.Sprintf("%s step %g exceeds extent %g", s.axis, s.step, s.extent)}
		}
	}
	for _, s := range spans {
		if !env[s.axis].Contains(s.start) {
			return &Error{CheckStartInLimits, s.axis,
				fmt.Sprintf("%s start %g outside travel %s", s.axis, s.start, env[s.axis])}
		}
	}
	for _, s := range spans {
		if end := s.start + s.extent; !env[s.axis].Contains(end) {
			return &Error{CheckEndInLimits, s.axis,
				fmt.Sprintf("%s end %g outside travel %s", s.axis, end, env[s.axis])}
		}
	}
	return nil
}

// validatePointCount runs after every ordered check, so extent and step are
// known to be positive here.
func validatePointCount(spans []span) error {
	total := 1.0
	for _, s := range spans {
		n := math.Floor(s.extent/s.step+pointEpsilon) + 1
		total *= n
		if math.IsInf(n, 0) || math.IsNaN(n) || n > MaxPoints || total > MaxPoints {
			return &Error{CheckPointCount, s.axis,
				fmt.Sprintf("%s step %g over extent %g gives too many points (max %d per scan)",
					s.axis, s.step, s.extent, MaxPoints)}
		}
	}
	return nil
}

// Points returns the number of sample positions along a sweep of extent
// covered in increments of step. Both endpoints are included, so an extent of
// 2 with a step of 1 yields 3 points; a final partial step is dropped.
// Sweeps with more than MaxPoints positions report 0.
func Points(extent, step float64) int {
	if !(step > 0) || !(extent >= 0) {
		return 0
	}
	n := math.Floor(extent/step+pointEpsilon) + 1
	if !(n <= MaxPoints) {
		return 0
	}
	return int(n)
}

// Coordinates returns the n positions start, start+step, ...
func Coordinates(start, step float64, n int) []float64 {
	if n <= 0 {
		return nil
	}
	out := make([]float64, n)
	for i := range out {
		out[i] = start + float64(i)*step
	}
	return out
}

// Points returns the number of positions along each axis.
func (r Raster) Points() (nx, ny int) {
	return Points(r.Extent[stage.X], r.Step[stage.X]), Points(r.Extent[stage.Y], r.Step[stage.Y])
}

// Coordinates returns the positions along axis.
func (r Raster) Coordinates(axis stage.Axis) []float64 {
	if !axis.Valid() {
		return nil
	}
	return Coordinates(r.Start[axis], r.Step[axis], Points(r.Extent[axis], r.Step[axis]))
}

// Points returns the number of positions along the line.
func (l Line) Points() int {
	return Points(l.Extent, l.Step)
}

// Coordinates returns the positions along the line.
func (l Line) Coordinates() []float64 {
	return Coordinates(l.Start, l.Step, l.Points())
}
