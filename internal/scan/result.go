package scan

import (
	"time"

	"github.com/banshee-data/stagescan/internal/aggregate"
	"github.com/banshee-data/stagescan/internal/geometry"
	"github.com/banshee-data/stagescan/internal/stage"
)

// Kind distinguishes line scans from raster scans.
type Kind string

const (
	Kind1D Kind = "1d"
	Kind2D Kind = "2d"
)

// Params selects how each point is measured.
type Params struct {
	SampleCount int                 `json:"sample_count"`
	Statistic   aggregate.Statistic `json:"statistic"`
}

// DefaultParams returns DefaultSampleCount samples reduced by mean-square.
func DefaultParams() Params {
	return Params{SampleCount: aggregate.DefaultSampleCount, Statistic: aggregate.MeanSquare}
}

// Result is the measurement artifact of a completed scan. Exactly one of Line
// and Raster is set, matching Kind.
type Result struct {
	ID          string              `json:"id"`
	Kind        Kind                `json:"kind"`
	Line        *geometry.Line      `json:"line,omitempty"`
	Raster      *geometry.Raster    `json:"raster,omitempty"`
	SampleCount int                 `json:"sample_count"`
	Statistic   aggregate.Statistic `json:"statistic"`

	// Values holds one measurement per point of a line scan.
	Values []float64 `json:"values,omitempty"`

	// Grid holds raster measurements as Grid[i][j], with i along x and j
	// along y.
	Grid [][]float64 `json:"grid,omitempty"`

	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
}

// Clone returns a deep copy of r. Cloning nil returns nil.
func (r *Result) Clone() *Result {
	if r == nil {
		return nil
	}
	c := *r
	if r.Line != nil {
		line := *r.Line
		c.Line = &line
	}
	if r.Raster != nil {
		raster := *r.Raster
		c.Raster = &raster
	}
	if r.Values != nil {
		c.Values = append([]float64(nil), r.Values...)
	}
	if r.Grid != nil {
		c.Grid = make([][]float64, len(r.Grid))
		for i, row := range r.Grid {
			c.Grid[i] = append([]float64(nil), row...)
		}
	}
	return &c
}

// Measurements returns the number of points measured.
func (r *Result) Measurements() int {
	if r.Kind == Kind1D {
		return len(r.Values)
	}
	n := 0
	for _, row := range r.Grid {
		n += len(row)
	}
	return n
}

// Coords returns the scan-axis position of every value of a line scan.
func (r *Result) Coords() []float64 {
	if r.Line == nil {
		return nil
	}
	return geometry.Coordinates(r.Line.Start, r.Line.Step, len(r.Values))
}

// XCoords returns the x position of every row of a raster scan.
func (r *Result) XCoords() []float64 {
	if r.Raster == nil {
		return nil
	}
	return geometry.Coordinates(r.Raster.Start[stage.X], r.Raster.Step[stage.X], len(r.Grid))
}

// YCoords returns the y position of every column of a raster scan.
func (r *Result) YCoords() []float64 {
	if r.Raster == nil || len(r.Grid) == 0 {
		return nil
	}
	return geometry.Coordinates(r.Raster.Start[stage.Y], r.Raster.Step[stage.Y], len(r.Grid[0]))
}
