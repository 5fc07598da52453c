package utils

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
)

// RandomArray draws size values uniformly from ±1/sqrt(fanIn).
func RandomArray(rng *rand.Rand, size int, fanIn float64) []float64 {
	min := -1.0 / math.Sqrt(fanIn+1e-12)
	max := 1.0 / math.Sqrt(fanIn+1e-12)
	out := make([]float64, size)
	for i := 0; i < size; i++ {
		out[i] = min + (max-min)*rng.Float64()
	}
	return out
}

// GlobalNorm is the L2 norm of all grads taken together.
func GlobalNorm(grads ...*mat.Dense) float64 {
	sum := 0.0
	for _, g := range grads {
		if g == nil {
			continue
		}
		n := mat.Norm(g, 2)
		sum += n * n
	}
	return math.Sqrt(sum)
}

// ClipGrads scales all grads so their combined norm <= maxNorm.
// Returns the scale actually applied (<=1.0) or 1.0 if no clip.
func ClipGrads(maxNorm float64, grads ...*mat.Dense) float64 {
	if maxNorm <= 0 {
		return 1.0
	}
	gn := GlobalNorm(grads...)
	if gn <= maxNorm || gn == 0 {
		return 1.0
	}
	s := maxNorm / gn
	for _, g := range grads {
		if g != nil {
			g.Scale(s, g)
		}
	}
	return s
}

// AllFinite reports whether no grad holds a NaN or Inf.
func AllFinite(grads ...*mat.Dense) bool {
	for _, g := range grads {
		if g == nil {
			continue
		}
		r, c := g.Dims()
		for i := 0; i < r; i++ {
			for _, v := range g.RawRowView(i)[:c] {
				if math.IsNaN(v) || math.IsInf(v, 0) {
					return false
				}
			}
		}
	}
	return true
}
