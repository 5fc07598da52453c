package vaelm

import (
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"
)

// NoiseSource draws the ε of the reparameterization z = mean + σ⊙ε.
type NoiseSource interface {
	Sample(n int) []float64
}

// GaussianNoise draws independent standard-normal values.
type GaussianNoise struct {
	dist distuv.Normal
}

func NewGaussianNoise(seed uint64) *GaussianNoise {
	return &GaussianNoise{dist: distuv.Normal{Mu: 0, Sigma: 1, Src: rand.NewPCG(seed, seed^0x5851f42d4c957f2d)}}
}

func (g *GaussianNoise) Sample(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = g.dist.Rand()
	}
	return out
}

// ZeroNoise makes the sampler return the posterior mean.
type ZeroNoise struct{}

func (ZeroNoise) Sample(n int) []float64 { return make([]float64, n) }

// FixedNoise replays the same ε on every draw, repeating it across rows.
type FixedNoise []float64

func (f FixedNoise) Sample(n int) []float64 {
	out := make([]float64, n)
	if len(f) == 0 {
		return out
	}
	for i := range out {
		out[i] = f[i%len(f)]
	}
	return out
}
