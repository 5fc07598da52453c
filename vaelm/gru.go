package vaelm

import (
	"fmt"

	G "gorgonia.org/gorgonia"
)

// GRU is a single-layer gated recurrent cell over row-batched states:
//
//	z  = σ(x·Wxzᵀ + h·Whzᵀ + bz)
//	r  = σ(x·Wxrᵀ + h·Whrᵀ + br)
//	n  = tanh(x·Wxnᵀ + (r⊙h)·Whnᵀ + bn)
//	h' = n + z⊙(h − n)
type GRU struct {
	InputDim, HiddenDim int

	wxz, whz, bz *Parameter
	wxr, whr, br *Parameter
	wxn, whn, bn *Parameter
}

func NewGRU(pc *ParameterCollection, prefix string, inputDim, hiddenDim int) *GRU {
	return &GRU{
		InputDim:  inputDim,
		HiddenDim: hiddenDim,
		wxz:       pc.AddMatrix(prefix+"_Wxz", hiddenDim, inputDim),
		whz:       pc.AddMatrix(prefix+"_Whz", hiddenDim, hiddenDim),
		bz:        pc.AddVector(prefix+"_bz", hiddenDim),
		wxr:       pc.AddMatrix(prefix+"_Wxr", hiddenDim, inputDim),
		whr:       pc.AddMatrix(prefix+"_Whr", hiddenDim, hiddenDim),
		br:        pc.AddVector(prefix+"_br", hiddenDim),
		wxn:       pc.AddMatrix(prefix+"_Wxn", hiddenDim, inputDim),
		whn:       pc.AddMatrix(prefix+"_Whn", hiddenDim, hiddenDim),
		bn:        pc.AddVector(prefix+"_bn", hiddenDim),
	}
}

// Step advances the rows×hidden state h by one rows×input x.
func (c *GRU) Step(b *Binding, h, x *G.Node) (*G.Node, error) {
	z, err := gate(b, c.wxz, c.whz, c.bz, x, h, G.Sigmoid)
	if err != nil {
		return nil, fmt.Errorf("gru update gate: %w", err)
	}
	r, err := gate(b, c.wxr, c.whr, c.br, x, h, G.Sigmoid)
	if err != nil {
		return nil, fmt.Errorf("gru reset gate: %w", err)
	}
	rh, err := G.HadamardProd(r, h)
	if err != nil {
		return nil, err
	}
	n, err := gate(b, c.wxn, c.whn, c.bn, x, rh, G.Tanh)
	if err != nil {
		return nil, fmt.Errorf("gru candidate: %w", err)
	}
	diff, err := G.Sub(h, n)
	if err != nil {
		return nil, err
	}
	zd, err := G.HadamardProd(z, diff)
	if err != nil {
		return nil, err
	}
	return G.Add(n, zd)
}

// Run feeds xs in order starting from h0 and returns every produced state.
func (c *GRU) Run(b *Binding, h0 *G.Node, xs []*G.Node) ([]*G.Node, error) {
	states := make([]*G.Node, 0, len(xs))
	h := h0
	for t, x := range xs {
		var err error
		if h, err = c.Step(b, h, x); err != nil {
			return nil, fmt.Errorf("step %d: %w", t, err)
		}
		states = append(states, h)
	}
	return states, nil
}

// affine computes x·wᵀ + bias for a rows×in x.
func affine(b *Binding, w, bias *Parameter, x *G.Node) (*G.Node, error) {
	xw, err := project(b, w, x)
	if err != nil {
		return nil, err
	}
	bs, err := b.Bias(bias, x.Shape()[0])
	if err != nil {
		return nil, err
	}
	return G.Add(xw, bs)
}

func project(b *Binding, w *Parameter, x *G.Node) (*G.Node, error) {
	wt, err := b.T(w)
	if err != nil {
		return nil, err
	}
	xw, err := G.Mul(x, wt)
	if err != nil {
		return nil, fmt.Errorf("x·%sᵀ: %w", w.Name, err)
	}
	return xw, nil
}

func gate(b *Binding, wx, wh, bias *Parameter, x, h *G.Node, act func(*G.Node) (*G.Node, error)) (*G.Node, error) {
	in, err := affine(b, wx, bias, x)
	if err != nil {
		return nil, err
	}
	rec, err := project(b, wh, h)
	if err != nil {
		return nil, err
	}
	pre, err := G.Add(in, rec)
	if err != nil {
		return nil, err
	}
	return act(pre)
}
