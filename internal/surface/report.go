package surface

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// SpacingStats describes nearest neighbor distances of a point set.
type SpacingStats struct {
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	StdDev float64 `json:"stddev"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}

// NeighborSpacing measures every point's distance to its nearest neighbor.
// It is quadratic in the number of points.
func NeighborSpacing(points []SamplePoint) SpacingStats {
	if len(points) < 2 {
		return SpacingStats{}
	}
	nearest := make([]float64, len(points))
	for i, p := range points {
		best := math.Inf(1)
		for j, q := range points {
			if i == j {
				continue
			}
			if d := p.Position.Sub(q.Position).Norm2(); d < best {
				best = d
			}
		}
		nearest[i] = math.Sqrt(best)
	}
	mean, std := stat.MeanStdDev(nearest, nil)
	sorted := append([]float64(nil), nearest...)
	floats.Argsort(sorted, make([]int, len(sorted)))
	return SpacingStats{
		Mean:   mean,
		Median: stat.Quantile(0.5, stat.Empirical, sorted, nil),
		StdDev: std,
		Min:    floats.Min(nearest),
		Max:    floats.Max(nearest),
	}
}
