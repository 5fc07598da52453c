package optimizations

import (
	"math"
	"math/rand/v2"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/manningwu07/VaeLM/vaelm"
)

func TestAdamUpdateFirstStep(t *testing.T) {
	p := mat.NewDense(1, 2, []float64{1, -1})
	g := mat.NewDense(1, 2, []float64{0.5, -2})
	m := mat.NewDense(1, 2, nil)
	v := mat.NewDense(1, 2, nil)
	AdamUpdateInPlace(p, g, m, v, 1, 0.1, 0.9, 0.999, 1e-8)

	// at t=1 the bias-corrected mhat/sqrt(vhat) is sign(g)
	want := []float64{1 - 0.1*0.5/(0.5+1e-8), -1 + 0.1*2/(2+1e-8)}
	for j, w := range want {
		if math.Abs(p.At(0, j)-w) > 1e-12 {
			t.Fatalf("p[%d] = %v, want %v", j, p.At(0, j), w)
		}
	}
	if math.Abs(m.At(0, 0)-0.05) > 1e-12 || math.Abs(v.At(0, 1)-0.004) > 1e-12 {
		t.Fatalf("moments m=%v v=%v", m.RawMatrix().Data, v.RawMatrix().Data)
	}
}

func TestAdamStepKeepsStatePerParameter(t *testing.T) {
	pc := vaelm.NewParameterCollection(rand.New(rand.NewPCG(3, 4)))
	w := pc.AddMatrix("w", 2, 2)
	b := pc.AddVector("b", 2)
	before := mat.DenseCopyOf(w.Value)

	opt := NewAdam(0.01, 0.9, 0.999, 1e-8, 0)
	gw := mat.NewDense(2, 2, []float64{1, 1, 1, 1})
	gb := mat.NewDense(2, 1, []float64{-1, 0})
	if _, err := opt.Step([]*vaelm.Parameter{w, b}, []*mat.Dense{gw, gb}); err != nil {
		t.Fatal(err)
	}
	if opt.Steps() != 1 {
		t.Fatalf("steps = %d, want 1", opt.Steps())
	}
	for i := 0; i < 2; i++ {
		for j := 0; j < 2; j++ {
			if d := before.At(i, j) - w.Value.At(i, j); math.Abs(d-0.01) > 1e-6 {
				t.Fatalf("w[%d,%d] moved by %v, want 0.01", i, j, d)
			}
		}
	}
	if math.Abs(b.Value.At(0, 0)-0.01) > 1e-6 || b.Value.At(1, 0) != 0 {
		t.Fatalf("bias after step = %v", b.Value.RawMatrix().Data)
	}
}

func TestAdamStepRejectsShapeMismatch(t *testing.T) {
	pc := vaelm.NewParameterCollection(rand.New(rand.NewPCG(1, 1)))
	w := pc.AddMatrix("w", 2, 3)
	opt := NewAdam(0.01, 0.9, 0.999, 1e-8, 0)
	if _, err := opt.Step([]*vaelm.Parameter{w}, []*mat.Dense{mat.NewDense(3, 2, nil)}); err == nil {
		t.Fatal("expected shape error")
	}
	if _, err := opt.Step([]*vaelm.Parameter{w}, nil); err == nil {
		t.Fatal("expected count error")
	}
}

func TestAdamStepClips(t *testing.T) {
	pc := vaelm.NewParameterCollection(rand.New(rand.NewPCG(1, 1)))
	b := pc.AddVector("b", 2)
	opt := NewAdam(0.01, 0.9, 0.999, 1e-8, 1)
	g := mat.NewDense(2, 1, []float64{30, 40})
	scale, err := opt.Step([]*vaelm.Parameter{b}, []*mat.Dense{g})
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(scale-1.0/50) > 1e-12 {
		t.Fatalf("clip scale = %v, want 0.02", scale)
	}
}
