package sim

import (
	"math"
	"math/rand"
	"sync"

	"github.com/banshee-data/stagescan/internal/stage"
)

// Spot describes a Gaussian intensity spot on the sample surface.
type Spot struct {
	Centre [stage.NumAxes]float64 // mm, physical stage coordinates
	Sigma  float64                // mm
	Peak   float64
	Floor  float64 // background level
	Noise  float64 // standard deviation of additive noise
}

// DefaultSpot is a 4 mm spot in the middle of a 50 mm stage.
func DefaultSpot() Spot {
	return Spot{
		Centre: [stage.NumAxes]float64{25, 25},
		Sigma:  4,
		Peak:   1.0,
		Floor:  0.01,
		Noise:  0.005,
	}
}

// Sampler reads the simulated intensity at the current carriage position of
// a simulated Stage.
type Sampler struct {
	stage *Stage
	spot  Spot

	mu  sync.Mutex
	rng *rand.Rand
}

// NewSampler returns a sampler over st with a seeded noise source so that
// runs are reproducible.
func NewSampler(st *Stage, spot Spot, seed int64) *Sampler {
	return &Sampler{
		stage: st,
		spot:  spot,
		rng:   rand.New(rand.NewSource(seed)),
	}
}

// ReadOne implements sampler.Sampler.
func (s *Sampler) ReadOne() (float64, error) {
	x := s.stage.Position(stage.X)
	y := s.stage.Position(stage.Y)
	v := s.spot.Intensity(x, y)
	if s.spot.Noise > 0 {
		s.mu.Lock()
		v += s.rng.NormFloat64() * s.spot.Noise
		s.mu.Unlock()
	}
	return v, nil
}

// Intensity returns the noise-free intensity at (x, y).
func (sp Spot) Intensity(x, y float64) float64 {
	if sp.Sigma <= 0 {
		return sp.Floor
	}
	dx := x - sp.Centre[stage.X]
	dy := y - sp.Centre[stage.Y]
	return sp.Floor + sp.Peak*math.Exp(-(dx*dx+dy*dy)/(2*sp.Sigma*sp.Sigma))
}
