package stats

import "math"

// Welford keeps a running mean and population standard deviation without
// storing the observations.
type Welford struct {
	Count int
	Mean  float64
	M2    float64
}

func (w *Welford) Update(value float64) {
	w.Count++
	delta := value - w.Mean
	w.Mean += delta / float64(w.Count)
	w.M2 += delta * (value - w.Mean)
}

func (w *Welford) StdDev() float64 {
	if w.Count < 2 {
		return 0
	}
	return math.Sqrt(w.M2 / float64(w.Count))
}
