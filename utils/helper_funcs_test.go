package utils

import (
	"math"
	"math/rand/v2"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func TestRandomArrayBounds(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	limit := 1.0 / math.Sqrt(16)
	for _, v := range RandomArray(rng, 1000, 16) {
		if v < -limit || v > limit {
			t.Fatalf("value %v outside ±%v", v, limit)
		}
	}
}

func TestClipGrads(t *testing.T) {
	a := mat.NewDense(1, 2, []float64{3, 0})
	b := mat.NewDense(2, 1, []float64{0, 4})
	s := ClipGrads(1, a, b)
	if math.Abs(s-0.2) > 1e-12 {
		t.Fatalf("scale = %v, want 0.2", s)
	}
	if n := GlobalNorm(a, b); math.Abs(n-1) > 1e-12 {
		t.Fatalf("norm after clip = %v, want 1", n)
	}
	if s := ClipGrads(10, a, b); s != 1 {
		t.Fatalf("under the limit scale = %v, want 1", s)
	}
	if s := ClipGrads(0, a, b); s != 1 {
		t.Fatalf("disabled clip scale = %v, want 1", s)
	}
}

func TestAllFinite(t *testing.T) {
	ok := mat.NewDense(2, 2, []float64{1, 2, 3, 4})
	if !AllFinite(ok, nil) {
		t.Fatal("finite matrix reported non-finite")
	}
	bad := mat.NewDense(1, 2, []float64{1, math.NaN()})
	if AllFinite(ok, bad) {
		t.Fatal("NaN not detected")
	}
}
