package aggregate

import "fmt"

// Reader yields one raw sample per call.
type Reader interface {
	ReadOne() (float64, error)
}

// Collect reads n samples from r and reduces them with s. The statistic and
// count are checked before any sample is taken.
func Collect(r Reader, n int, s Statistic) (float64, error) {
	if !s.Valid() {
		return 0, fmt.Errorf("%w: %q", ErrInvalidStatistic, string(s))
	}
	if n <= 0 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidSampleCount, n)
	}

	samples := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		v, err := r.ReadOne()
		if err != nil {
			return 0, fmt.Errorf("read sample %d/%d: %w", i+1, n, err)
		}
		samples = append(samples, v)
	}
	return Aggregate(samples, s)
}
