// Package aggregate reduces the raw samples taken at one scan point into a
// single measurement.
package aggregate

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// DefaultSampleCount is the number of raw samples taken per point unless the
// caller configures otherwise.
const DefaultSampleCount = 5

var (
	ErrInvalidStatistic   = errors.New("invalid statistic")
	ErrInvalidSampleCount = errors.New("invalid sample count")
)

// Statistic selects how raw samples are reduced.
type Statistic string

const (
	Max        Statistic = "max"
	Average    Statistic = "average"
	Sum        Statistic = "sum"
	MeanSquare Statistic = "mean-square"
	RMS        Statistic = "rms"
)

// Statistics lists every supported statistic in display order.
var Statistics = []Statistic{RMS, MeanSquare, Average, Sum, Max}

// ParseStatistic maps a user-supplied name to a Statistic. Matching ignores
// case and surrounding space; "rms2" and "mean_square" are accepted for
// mean-square.
func ParseStatistic(name string) (Statistic, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "max":
		return Max, nil
	case "average", "mean":
		return Average, nil
	case "sum":
		return Sum, nil
	case "mean-square", "mean_square", "rms2":
		return MeanSquare, nil
	case "rms":
		return RMS, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidStatistic, name)
}

// Valid reports whether s is one of the supported statistics.
func (s Statistic) Valid() bool {
	switch s {
	case Max, Average, Sum, MeanSquare, RMS:
		return true
	}
	return false
}

// Aggregate reduces samples to one value using stat.
func Aggregate(samples []float64, s Statistic) (float64, error) {
	if !s.Valid() {
		return 0, fmt.Errorf("%w: %q", ErrInvalidStatistic, string(s))
	}
	if len(samples) == 0 {
		return 0, fmt.Errorf("%w: no samples", ErrInvalidSampleCount)
	}

	switch s {
	case Max:
		return floats.Max(samples), nil
	case Average:
		return stat.Mean(samples, nil), nil
	case Sum:
		return floats.Sum(samples), nil
	case MeanSquare:
		return meanSquare(samples), nil
	default:
		return math.Sqrt(meanSquare(samples)), nil
	}
}

func meanSquare(samples []float64) float64 {
	return floats.Dot(samples, samples) / float64(len(samples))
}
