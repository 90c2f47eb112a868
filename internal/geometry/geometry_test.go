package geometry

import (
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/stagescan/internal/stage"
	"github.com/banshee-data/stagescan/internal/testutil"
)

func validRaster() Raster {
	return Raster{
		Start:  Vector{0, 0},
		Extent: Vector{2, 2},
		Step:   Vector{1, 1},
	}
}

func validLine() Line {
	return Line{Axis: stage.X, OffAxis: 25, Start: 10, Extent: 30, Step: 5}
}

func checkOf(t *testing.T, err error) *Error {
	t.Helper()
	var gerr *Error
	require.True(t, errors.As(err, &gerr), "expected *geometry.Error, got %v", err)
	assert.ErrorIs(t, err, ErrInvalidGeometry)
	return gerr
}

func TestValidate2D_Valid(t *testing.T) {
	env := DefaultEnvelope()
	for name, r := range map[string]Raster{
		"small":          validRaster(),
		"full travel":    {Start: Vector{0, 0}, Extent: Vector{50, 50}, Step: Vector{5, 5}},
		"step == extent": {Start: Vector{10, 20}, Extent: Vector{3, 4}, Step: Vector{3, 4}},
	} {
		if err := Validate2D(r, env); err != nil {
			t.Errorf("%s: Validate2D() = %v, want nil", name, err)
		}
	}
}

func TestValidate2D_SingleViolations(t *testing.T) {
	env := DefaultEnvelope()
	tests := []struct {
		name   string
		mutate func(*Raster)
		check  Check
		axis   stage.Axis
	}{
		{"zero step x", func(r *Raster) { r.Step[stage.X] = 0 }, CheckStepPositive, stage.X},
		{"negative step y", func(r *Raster) { r.Step[stage.Y] = -1 }, CheckStepPositive, stage.Y},
		{"NaN step", func(r *Raster) { r.Step[stage.Y] = math.NaN() }, CheckStepPositive, stage.Y},
		{"zero extent x", func(r *Raster) { r.Extent[stage.X] = 0; r.Step[stage.X] = 1 }, CheckExtentPositive, stage.X},
		{"negative extent y", func(r *Raster) { r.Extent[stage.Y] = -2 }, CheckExtentPositive, stage.Y},
		{"step exceeds extent", func(r *Raster) { r.Step[stage.Y] = 3 }, CheckStepWithinExtent, stage.Y},
		{"start below min", func(r *Raster) { r.Start[stage.X] = -1 }, CheckStartInLimits, stage.X},
		{"start above max", func(r *Raster) { r.Start[stage.Y] = 51 }, CheckStartInLimits, stage.Y},
		{"end beyond max", func(r *Raster) { r.Start[stage.Y] = 49 }, CheckEndInLimits, stage.Y},
		{"step underflows count", func(r *Raster) { r.Step[stage.X] = 1e-300 }, CheckPointCount, stage.X},
		{"rows times columns too many", func(r *Raster) {
			r.Extent = Vector{40, 40}
			r.Step = Vector{0.01, 0.01}
		}, CheckPointCount, stage.Y},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := validRaster()
			tc.mutate(&r)
			gerr := checkOf(t, Validate2D(r, env))
			assert.Equal(t, tc.check, gerr.Check)
			assert.Equal(t, tc.axis, gerr.Axis)
			assert.NotEmpty(t, gerr.Reason)
		})
	}
}

func TestValidate2D_CheckOrder(t *testing.T) {
	env := DefaultEnvelope()

	// step=0, extent=5 reports step positivity, not extent.
	r := Raster{Start: Vector{0, 0}, Extent: Vector{5, 0}, Step: Vector{0, 1}}
	assert.Equal(t, CheckStepPositive, checkOf(t, Validate2D(r, env)).Check)

	// A later check on x loses to an earlier check on y.
	r = Raster{Start: Vector{-5, 0}, Extent: Vector{2, 0}, Step: Vector{1, 1}}
	gerr := checkOf(t, Validate2D(r, env))
	assert.Equal(t, CheckExtentPositive, gerr.Check)
	assert.Equal(t, stage.Y, gerr.Axis)

	// Within one check, x is reported before y.
	r = Raster{Start: Vector{0, 0}, Extent: Vector{2, 2}, Step: Vector{-1, -1}}
	gerr = checkOf(t, Validate2D(r, env))
	assert.Equal(t, stage.X, gerr.Axis)

	// Start checks for every axis run before end checks.
	r = Raster{Start: Vector{49, 60}, Extent: Vector{2, 2}, Step: Vector{1, 1}}
	gerr = checkOf(t, Validate2D(r, env))
	assert.Equal(t, CheckStartInLimits, gerr.Check)
	assert.Equal(t, stage.Y, gerr.Axis)
}

func TestValidate1D(t *testing.T) {
	env := DefaultEnvelope()
	require.NoError(t, Validate1D(validLine(), env))

	tests := []struct {
		name   string
		mutate func(*Line)
		check  Check
		axis   stage.Axis
	}{
		{"bad axis", func(l *Line) { l.Axis = 3; l.Step = 0 }, CheckAxis, 3},
		{"zero step", func(l *Line) { l.Step = 0 }, CheckStepPositive, stage.X},
		{"zero extent", func(l *Line) { l.Extent = 0; l.Step = 1 }, CheckExtentPositive, stage.X},
		{"step exceeds extent", func(l *Line) { l.Step = 31 }, CheckStepWithinExtent, stage.X},
		{"start out", func(l *Line) { l.Start = 55; l.OffAxis = -1 }, CheckStartInLimits, stage.X},
		{"end out", func(l *Line) { l.Start = 30; l.OffAxis = -1 }, CheckEndInLimits, stage.X},
		{"off axis out", func(l *Line) { l.OffAxis = 50.5 }, CheckOffAxisInLimits, stage.Y},
		{"off axis out on y line", func(l *Line) { l.Axis = stage.Y; l.OffAxis = -0.1 }, CheckOffAxisInLimits, stage.X},
		{"tiny step", func(l *Line) { l.Step = 1e-300 }, CheckPointCount, stage.X},
		{"step just over the point limit", func(l *Line) { l.Step = l.Extent / MaxPoints }, CheckPointCount, stage.X},
		{"off axis out beats point count", func(l *Line) { l.Step = 1e-300; l.OffAxis = 60 }, CheckOffAxisInLimits, stage.Y},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			l := validLine()
			tc.mutate(&l)
			gerr := checkOf(t, Validate1D(l, env))
			assert.Equal(t, tc.check, gerr.Check)
			assert.Equal(t, tc.axis, gerr.Axis)
		})
	}
}

func TestValidate_AsymmetricEnvelope(t *testing.T) {
	env := Envelope{
		stage.X: {Min: -10, Max: 10},
		stage.Y: {Min: 5, Max: 6},
	}
	r := Raster{Start: Vector{-10, 5}, Extent: Vector{20, 1}, Step: Vector{10, 0.5}}
	require.NoError(t, Validate2D(r, env))

	r.Start[stage.Y] = 4
	assert.Equal(t, CheckStartInLimits, checkOf(t, Validate2D(r, env)).Check)
}

func TestErrorMessage(t *testing.T) {
	err := Validate2D(Raster{Extent: Vector{5, 5}, Step: Vector{0, 1}}, DefaultEnvelope())
	assert.EqualError(t, err, "invalid scan geometry: x step must be positive, got 0")
}

func TestPoints(t *testing.T) {
	tests := []struct {
		extent, step float64
		want         int
	}{
		{2, 1, 3},
		{30, 5, 7},
		{1, 1, 2},
		{2.5, 1, 3},
		{0.3, 0.1, 4},
		{1, 0.1, 11},
		{0, 1, 1},
		{1, 0, 0},
		{-1, 1, 0},
		{1, 1e-300, 0},
		{1, math.SmallestNonzeroFloat64, 0},
		{math.Inf(1), 1, 0},
		{1, 1.0 / (MaxPoints - 1), MaxPoints},
	}
	for _, tc := range tests {
		if got := Points(tc.extent, tc.step); got != tc.want {
			t.Errorf("Points(%g, %g) = %d, want %d", tc.extent, tc.step, got, tc.want)
		}
	}
}

func TestCoordinates(t *testing.T) {
	got := Coordinates(10, 5, 7)
	want := []float64{10, 15, 20, 25, 30, 35, 40}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Coordinates mismatch (-want +got):\n%s", diff)
	}
	assert.Nil(t, Coordinates(0, 1, 0))

	nx, ny := validRaster().Points()
	assert.Equal(t, 3, nx)
	assert.Equal(t, 3, ny)
	assert.Equal(t, []float64{0, 1, 2}, validRaster().Coordinates(stage.Y))
	assert.Nil(t, validRaster().Coordinates(stage.Axis(4)))
	assert.Equal(t, 7, validLine().Points())
	assert.Len(t, validLine().Coordinates(), 7)
}

func TestCheckString(t *testing.T) {
	assert.Equal(t, "step-positive", CheckStepPositive.String())
	assert.Equal(t, "off-axis-in-limits", CheckOffAxisInLimits.String())
	assert.Equal(t, "point-count", CheckPointCount.String())
	assert.Equal(t, "check(99)", Check(99).String())
}

func TestCoordinates_FineStepReachesEnd(t *testing.T) {
	c := Coordinates(5, 0.1, Points(1, 0.1))
	require.Len(t, c, 11)
	testutil.AssertNear(t, c[10], 6.0, 1e-9)
}

func TestPoints_NeverNegative(t *testing.T) {
	for _, step := range []float64{1e-300, 1e-100, 1e-20, 1e-9, 1e-7} {
		n := Points(50, step)
		assert.GreaterOrEqual(t, n, 0, "Points(50, %g)", step)
		assert.LessOrEqual(t, n, MaxPoints, "Points(50, %g)", step)
	}
	l := Line{Axis: stage.X, Extent: 1, Step: 1e-300}
	assert.Nil(t, l.Coordinates())
}

func TestValidate1D_PointLimitBoundary(t *testing.T) {
	l := Line{Axis: stage.X, OffAxis: 0, Start: 0, Extent: 1, Step: 1.0 / (MaxPoints - 1)}
	require.NoError(t, Validate1D(l, DefaultEnvelope()))
	assert.Equal(t, MaxPoints, l.Points())
}
