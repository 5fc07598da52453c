package optimizations

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/manningwu07/VaeLM/utils"
	"github.com/manningwu07/VaeLM/vaelm"
)

// p -= lr * mhat / (sqrt(vhat)+eps) with bias correction.
func AdamUpdateInPlace(
	p, g, m, v *mat.Dense,
	t int,
	lr, beta1, beta2, eps float64,
) {
	pr, pc := p.Dims()
	if gr, gc := g.Dims(); gr != pr || gc != pc {
		panic("adamUpdateInPlace: grad shape mismatch")
	}
	if mr, mc := m.Dims(); mr != pr || mc != pc {
		panic("adamUpdateInPlace: m shape mismatch")
	}
	if vr, vc := v.Dims(); vr != pr || vc != pc {
		panic("adamUpdateInPlace: v shape mismatch")
	}
	b1t := math.Pow(beta1, float64(t))
	b2t := math.Pow(beta2, float64(t))
	c1 := 1.0 / (1.0 - b1t)
	c2 := 1.0 / (1.0 - b2t)
	for i := 0; i < pr; i++ {
		for j := 0; j < pc; j++ {
			gij := g.At(i, j)
			mij := beta1*m.At(i, j) + (1.0-beta1)*gij
			vij := beta2*v.At(i, j) + (1.0-beta2)*gij*gij
			mhat := mij * c1
			vhat := vij * c2
			m.Set(i, j, mij)
			v.Set(i, j, vij)
			p.Set(i, j, p.At(i, j)-lr*mhat/(math.Sqrt(vhat)+eps))
		}
	}
}

// ------- Adam optimizer (in-place) --------

type moments struct {
	m, v *mat.Dense
}

// Adam keeps the moment estimates of every parameter it has updated and
// one shared step count.
type Adam struct {
	LearningRate float64
	Beta1, Beta2 float64
	Eps          float64
	Clip         float64 // global-norm clip, <=0 disables

	t     int
	state map[*vaelm.Parameter]*moments
}

func NewAdam(lr, beta1, beta2, eps, clip float64) *Adam {
	return &Adam{
		LearningRate: lr,
		Beta1:        beta1,
		Beta2:        beta2,
		Eps:          eps,
		Clip:         clip,
		state:        make(map[*vaelm.Parameter]*moments),
	}
}

// Steps is the number of updates applied so far.
func (a *Adam) Steps() int { return a.t }

// Step clips grads by global norm and applies one bias-corrected update to
// each parameter in place. It returns the clip scale.
func (a *Adam) Step(ps []*vaelm.Parameter, grads []*mat.Dense) (float64, error) {
	if len(ps) != len(grads) {
		return 0, fmt.Errorf("adam: %d parameters but %d gradients", len(ps), len(grads))
	}
	for i, p := range ps {
		pr, pc := p.Value.Dims()
		if gr, gc := grads[i].Dims(); gr != pr || gc != pc {
			return 0, fmt.Errorf("adam: gradient of %s is %dx%d, want %dx%d", p.Name, gr, gc, pr, pc)
		}
	}
	scale := utils.ClipGrads(a.Clip, grads...)
	a.t++
	for i, p := range ps {
		st, ok := a.state[p]
		if !ok {
			st = &moments{m: zerosLike(p.Value), v: zerosLike(p.Value)}
			a.state[p] = st
		}
		AdamUpdateInPlace(p.Value, grads[i], st.m, st.v, a.t, a.LearningRate, a.Beta1, a.Beta2, a.Eps)
	}
	return scale, nil
}

func zerosLike(a *mat.Dense) *mat.Dense {
	r, c := a.Dims()
	return mat.NewDense(r, c, nil)
}
